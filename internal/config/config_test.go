package config

import (
	"os"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	os.Setenv("CHALLENGE_TOKEN_SECRET", "test-secret-32-characters-long!!")
	os.Setenv("DB_PASSWORD", "test")
	os.Setenv("IDENTITY_BASE_URL", "http://localhost:9999")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	tests := []struct {
		name     string
		actual   time.Duration
		expected time.Duration
	}{
		{"ChallengeExpiry", cfg.Login.ChallengeExpiry, 5 * time.Minute},
		{"TrustWindow", cfg.Login.TrustWindow, 30 * 24 * time.Hour},
		{"CodeExpiry", cfg.Login.CodeExpiry, 5 * time.Minute},
		{"IdentityTimeout", cfg.Identity.Timeout, 10 * time.Second},
	}

	for _, tt := range tests {
		if tt.actual != tt.expected {
			t.Errorf("%s: got %v, want %v", tt.name, tt.actual, tt.expected)
		}
	}

	if cfg.Login.ResendCooldown != 60 {
		t.Errorf("ResendCooldown: got %d, want 60", cfg.Login.ResendCooldown)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	setRequiredEnv(t)
	os.Setenv("DEVICE_TRUST_WINDOW", "168h")
	os.Setenv("OTP_RESEND_COOLDOWN", "30")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Login.TrustWindow != 168*time.Hour {
		t.Errorf("TrustWindow: got %v, want 168h", cfg.Login.TrustWindow)
	}
	if cfg.Login.ResendCooldown != 30 {
		t.Errorf("ResendCooldown: got %d, want 30", cfg.Login.ResendCooldown)
	}
}

func TestLoad_MissingChallengeSecret(t *testing.T) {
	os.Clearenv()
	os.Setenv("DB_PASSWORD", "test")
	os.Setenv("IDENTITY_BASE_URL", "http://localhost:9999")
	defer os.Clearenv()

	if _, err := Load(); err == nil {
		t.Fatal("Load() = nil, want error for missing CHALLENGE_TOKEN_SECRET")
	}
}

func TestLoad_WeakChallengeSecret(t *testing.T) {
	os.Clearenv()
	os.Setenv("CHALLENGE_TOKEN_SECRET", "short")
	os.Setenv("DB_PASSWORD", "test")
	os.Setenv("IDENTITY_BASE_URL", "http://localhost:9999")
	defer os.Clearenv()

	if _, err := Load(); err == nil {
		t.Fatal("Load() = nil, want error for weak secret")
	}
}

func TestLoad_MissingIdentityBaseURL(t *testing.T) {
	os.Clearenv()
	os.Setenv("CHALLENGE_TOKEN_SECRET", "test-secret-32-characters-long!!")
	os.Setenv("DB_PASSWORD", "test")
	defer os.Clearenv()

	if _, err := Load(); err == nil {
		t.Fatal("Load() = nil, want error for missing IDENTITY_BASE_URL")
	}
}
