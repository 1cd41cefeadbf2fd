package service

import "errors"

var (
	ErrInvalidPhone    = errors.New("invalid phone number: at least 8 digits are required")
	ErrProfileNotFound = errors.New("user not found")
	ErrCodeNotFound    = errors.New("no pending verification code")
	ErrIncorrectCode   = errors.New("incorrect verification code")
	ErrCodeExpired     = errors.New("verification code expired")
	ErrTooManyRequests = errors.New("too many verification requests, please wait")
)
