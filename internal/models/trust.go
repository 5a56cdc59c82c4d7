package models

import "time"

// TrustedDevice represents a device that has completed a verified second
// factor and is exempt from OTP verification until TrustedUntil.
type TrustedDevice struct {
	ID           string
	Email        string
	Fingerprint  string
	TrustedUntil time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsExpired reports whether the trust window has lapsed.
func (d *TrustedDevice) IsExpired(now time.Time) bool {
	return !now.Before(d.TrustedUntil)
}
