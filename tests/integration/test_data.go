package integration

import (
	"fmt"
	"time"

	"github.com/mereside/opsgate/internal/auth"
)

// TestUser generates unique test user credentials using timestamp
func TestUser(suffix string) (email, password string) {
	ts := time.Now().UnixNano()
	email = fmt.Sprintf("test-%d-%s@example.com", ts, suffix)
	password = "TestPassword123!"
	return
}

// DeviceHeaders returns the headers a mobile client sends to identify
// its device, plus the fingerprint the server will derive from them.
func DeviceHeaders(deviceID string) (map[string]string, string) {
	headers := map[string]string{
		"X-Device-ID": deviceID,
	}
	fingerprint := auth.Fingerprint(auth.FingerprintData{DeviceID: deviceID})
	return headers, fingerprint
}

// FlowResponse mirrors the JSON body of every flow endpoint
type FlowResponse struct {
	Step           string `json:"step"`
	Message        string `json:"message"`
	DeliveryMethod string `json:"delivery_method"`
	SentTo         string `json:"sent_to"`
	ResendIn       int    `json:"resend_in"`
	ChallengeToken string `json:"challenge_token"`
	Session        *struct {
		AccessToken  string    `json:"access_token"`
		RefreshToken string    `json:"refresh_token"`
		ExpiresAt    time.Time `json:"expires_at"`
	} `json:"session"`
}
