package loginflow

import (
	"context"
	"sync"

	"github.com/mereside/opsgate/internal/identity"
	"github.com/mereside/opsgate/internal/otp"
)

// MockCredentialVerifier implements CredentialVerifier for testing
type MockCredentialVerifier struct {
	VerifyFunc  func(ctx context.Context, email, password string) identity.Outcome
	SignOutFunc func(ctx context.Context) error

	mu           sync.Mutex
	VerifyCalls  int
	SignOutCalls int
}

func (m *MockCredentialVerifier) Verify(ctx context.Context, email, password string) identity.Outcome {
	m.mu.Lock()
	m.VerifyCalls++
	m.mu.Unlock()
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, email, password)
	}
	return identity.Outcome{Reason: identity.ReasonInvalidCredentials}
}

func (m *MockCredentialVerifier) SignOut(ctx context.Context) error {
	m.mu.Lock()
	m.SignOutCalls++
	m.mu.Unlock()
	if m.SignOutFunc != nil {
		return m.SignOutFunc(ctx)
	}
	return nil
}

// MockSuppressionGuard implements SuppressionGuard with real flag
// semantics so tests can observe suppression bracketing.
type MockSuppressionGuard struct {
	mu            sync.Mutex
	suppressed    bool
	SuppressCalls int
	ReleaseCalls  int
}

func (g *MockSuppressionGuard) Suppress() func() {
	g.mu.Lock()
	g.suppressed = true
	g.SuppressCalls++
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.suppressed = false
			g.ReleaseCalls++
			g.mu.Unlock()
		})
	}
}

func (g *MockSuppressionGuard) Suppressed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.suppressed
}

// MockDeviceTrust implements DeviceTrust for testing
type MockDeviceTrust struct {
	IsTrustedFunc       func(ctx context.Context, email, fingerprint string) bool
	RegisterTrustedFunc func(ctx context.Context, email, fingerprint string) error

	mu            sync.Mutex
	RegisterCalls int
}

func (m *MockDeviceTrust) IsTrusted(ctx context.Context, email, fingerprint string) bool {
	if m.IsTrustedFunc != nil {
		return m.IsTrustedFunc(ctx, email, fingerprint)
	}
	return false
}

func (m *MockDeviceTrust) RegisterTrusted(ctx context.Context, email, fingerprint string) error {
	m.mu.Lock()
	m.RegisterCalls++
	m.mu.Unlock()
	if m.RegisterTrustedFunc != nil {
		return m.RegisterTrustedFunc(ctx, email, fingerprint)
	}
	return nil
}

// MockChallengeService implements ChallengeService for testing
type MockChallengeService struct {
	IssueFunc  func(ctx context.Context, email string) (*otp.IssueResult, error)
	VerifyFunc func(ctx context.Context, email, code string) (*otp.VerifyResult, error)

	mu          sync.Mutex
	IssueCalls  int
	VerifyCalls int
}

func (m *MockChallengeService) Issue(ctx context.Context, email string) (*otp.IssueResult, error) {
	m.mu.Lock()
	m.IssueCalls++
	m.mu.Unlock()
	if m.IssueFunc != nil {
		return m.IssueFunc(ctx, email)
	}
	return &otp.IssueResult{Method: "email", SentTo: "u***@example.com"}, nil
}

func (m *MockChallengeService) Verify(ctx context.Context, email, code string) (*otp.VerifyResult, error) {
	m.mu.Lock()
	m.VerifyCalls++
	m.mu.Unlock()
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, email, code)
	}
	return &otp.VerifyResult{Valid: false, Reason: "invalid code"}, nil
}
