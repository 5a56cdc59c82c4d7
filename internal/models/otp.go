package models

import "time"

// Delivery methods for one-time codes
const (
	DeliveryMethodSMS   = "sms"
	DeliveryMethodEmail = "email"
	DeliveryMethodBoth  = "both"
)

// OTPChallenge represents an outstanding one-time code for an email address.
// At most one challenge is active per email; issuing a new one replaces it.
type OTPChallenge struct {
	ID        string
	Email     string
	CodeHash  string // Bcrypt hash of the 6-digit code
	Method    string // Delivery method actually used
	SentTo    string // Masked destination (email or phone) for display
	CreatedAt time.Time
	ExpiresAt time.Time
}

// IsExpired reports whether the challenge can no longer be verified.
func (c *OTPChallenge) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Contact holds the directory entry used to pick a delivery channel
// before issuing a code.
type Contact struct {
	Email                  string
	Phone                  string
	NotificationPreference string // "sms", "email" or "both"
}
