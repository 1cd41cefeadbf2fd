package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ExpenseSourceManual   = "manual"
	ExpenseSourceWhatsApp = "whatsapp"
)

// Expense represents a single spending record
type Expense struct {
	ID                string          `json:"id"`
	UserID            string          `json:"user_id"`
	Amount            decimal.Decimal `json:"amount"` // 2 fraction digits
	Description       string          `json:"description"`
	CategoryID        *string         `json:"category_id,omitempty"`
	Date              time.Time       `json:"date"`
	Source            string          `json:"source"` // "manual" or "whatsapp"
	WhatsAppMessageID *string         `json:"whatsapp_message_id,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// InboundMessage is one text message received from the channel provider.
type InboundMessage struct {
	From      string // sender phone, digits only as delivered by the provider
	Text      string
	MessageID string
}
