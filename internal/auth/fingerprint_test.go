package auth

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint_Deterministic(t *testing.T) {
	data := FingerprintData{
		UserAgent:        "Mozilla/5.0",
		AcceptHeaders:    "text/html|en-US|gzip",
		Timezone:         "America/New_York",
		ScreenResolution: "1920x1080",
	}

	first := Fingerprint(data)
	second := Fingerprint(data)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestFingerprint_DiffersByComponent(t *testing.T) {
	base := FingerprintData{
		UserAgent:        "Mozilla/5.0",
		AcceptHeaders:    "text/html|en-US|gzip",
		Timezone:         "America/New_York",
		ScreenResolution: "1920x1080",
	}

	other := base
	other.Timezone = "Europe/Berlin"

	assert.NotEqual(t, Fingerprint(base), Fingerprint(other))
}

func TestFingerprint_DeviceIDTakesPrecedence(t *testing.T) {
	withID := FingerprintData{
		UserAgent: "Mozilla/5.0",
		DeviceID:  "device_abc",
	}
	idOnly := FingerprintData{DeviceID: "device_abc"}

	assert.Equal(t, Fingerprint(idOnly), Fingerprint(withID),
		"browser characteristics are ignored when a device ID is present")
}

func TestFingerprint_EmptyDataStillProducesValue(t *testing.T) {
	fp := Fingerprint(FingerprintData{})
	assert.Len(t, fp, 64)
}

func TestRequestFingerprint(t *testing.T) {
	req := httptest.NewRequest("POST", "/auth/flow/credentials", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "en-US")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("X-Timezone", "America/New_York")
	req.Header.Set("X-Screen-Resolution", "1920x1080")

	first := RequestFingerprint(req)
	second := RequestFingerprint(req)
	assert.Equal(t, first, second)

	req.Header.Set("X-Screen-Resolution", "2560x1440")
	assert.NotEqual(t, first, RequestFingerprint(req))
}

func TestRequestFingerprint_MobileDeviceID(t *testing.T) {
	browser := httptest.NewRequest("POST", "/auth/flow/credentials", nil)
	browser.Header.Set("User-Agent", "Mozilla/5.0")

	mobile := httptest.NewRequest("POST", "/auth/flow/credentials", nil)
	mobile.Header.Set("User-Agent", "OpsGate-iOS/2.1")
	mobile.Header.Set("X-Device-ID", "device_abc")

	mobileAgain := httptest.NewRequest("POST", "/auth/flow/credentials", nil)
	mobileAgain.Header.Set("User-Agent", "OpsGate-iOS/2.2")
	mobileAgain.Header.Set("X-Device-ID", "device_abc")

	assert.NotEqual(t, RequestFingerprint(browser), RequestFingerprint(mobile))
	assert.Equal(t, RequestFingerprint(mobile), RequestFingerprint(mobileAgain),
		"device ID keeps the fingerprint stable across app updates")
}
