package model

import "time"

// Profile is the identity record of an end user, including the phone
// verification state used to link the WhatsApp channel.
type Profile struct {
	ID                        string     `json:"id"`
	Name                      string     `json:"name"`
	PhoneNumber               *string    `json:"phone_number,omitempty"`
	PhoneVerified             bool       `json:"phone_verified"`
	VerificationCode          *string    `json:"-"` // never exposed
	VerificationCodeExpiresAt *time.Time `json:"-"`
	WhatsAppConnected         bool       `json:"whatsapp_connected"`
}

// HasPendingCode reports whether a verification code is waiting to be confirmed.
func (p *Profile) HasPendingCode() bool {
	return p.VerificationCode != nil && *p.VerificationCode != ""
}

// ChannelVerified is true only when the phone is verified and no code is pending.
func (p *Profile) ChannelVerified() bool {
	return p.PhoneVerified && p.VerificationCode == nil && p.VerificationCodeExpiresAt == nil
}
