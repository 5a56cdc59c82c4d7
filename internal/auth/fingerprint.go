package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
)

// FingerprintData contains the components used to derive a device
// fingerprint.
type FingerprintData struct {
	UserAgent        string
	AcceptHeaders    string
	Timezone         string
	ScreenResolution string
	DeviceID         string // set by mobile clients
}

// Fingerprint derives a stable, reproducible identifier for a device.
// It is a SHA-256 hash over the device characteristics: for mobile
// clients the device ID alone, for browsers the combination of
// user-agent, accept headers, timezone and screen resolution. It never
// fails and has no side effects; the result is meaningful only paired
// with an email.
func Fingerprint(data FingerprintData) string {
	var combined string

	if data.DeviceID != "" {
		combined = data.DeviceID
	} else {
		combined = fmt.Sprintf("%s|%s|%s|%s",
			data.UserAgent,
			data.AcceptHeaders,
			data.Timezone,
			data.ScreenResolution,
		)
	}

	hash := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(hash[:])
}

// FingerprintDataFromRequest extracts fingerprint components from the
// headers the dashboard client sends with every flow request.
func FingerprintDataFromRequest(r *http.Request) FingerprintData {
	acceptHeaders := r.Header.Get("Accept") + "|" +
		r.Header.Get("Accept-Language") + "|" +
		r.Header.Get("Accept-Encoding")

	return FingerprintData{
		UserAgent:        r.UserAgent(),
		AcceptHeaders:    acceptHeaders,
		Timezone:         r.Header.Get("X-Timezone"),
		ScreenResolution: r.Header.Get("X-Screen-Resolution"),
		DeviceID:         r.Header.Get("X-Device-ID"),
	}
}

// RequestFingerprint extracts data from a request and derives the
// fingerprint in one step.
func RequestFingerprint(r *http.Request) string {
	return Fingerprint(FingerprintDataFromRequest(r))
}
