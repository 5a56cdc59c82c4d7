package otp

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// passcodePeriod matches the challenge lifetime so a code read from
	// a delayed email is still usable within its window.
	passcodePeriod = 300
	passcodeSkew   = 1
)

// generatePasscode derives a 6-digit code from a throwaway random
// secret using RFC 6238 digit extraction. The secret is discarded after
// the code is hashed for storage; only the bcrypt hash is kept at rest.
func generatePasscode(now time.Time) (string, error) {
	secretBytes := make([]byte, 20)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", fmt.Errorf("failed to generate passcode secret: %w", err)
	}
	secret := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(secretBytes)

	code, err := totp.GenerateCodeCustom(secret, now, totp.ValidateOpts{
		Period:    passcodePeriod,
		Skew:      passcodeSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA512,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate passcode: %w", err)
	}

	return code, nil
}

// isSixDigits reports whether the code is exactly six ASCII digits.
func isSixDigits(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
