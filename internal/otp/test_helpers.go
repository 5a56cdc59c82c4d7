package otp

import (
	"context"
	"time"

	"github.com/mereside/opsgate/internal/models"
)

// MockChallengeStore implements ChallengeStore for testing
type MockChallengeStore struct {
	ReplaceFunc   func(ctx context.Context, challenge *models.OTPChallenge) error
	GetActiveFunc func(ctx context.Context, email string) (*models.OTPChallenge, error)
	ConsumeFunc   func(ctx context.Context, id string) error
}

func (m *MockChallengeStore) Replace(ctx context.Context, challenge *models.OTPChallenge) error {
	if m.ReplaceFunc != nil {
		return m.ReplaceFunc(ctx, challenge)
	}
	return nil
}

func (m *MockChallengeStore) GetActive(ctx context.Context, email string) (*models.OTPChallenge, error) {
	if m.GetActiveFunc != nil {
		return m.GetActiveFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockChallengeStore) Consume(ctx context.Context, id string) error {
	if m.ConsumeFunc != nil {
		return m.ConsumeFunc(ctx, id)
	}
	return nil
}

// MockDirectoryLookup implements DirectoryLookup for testing
type MockDirectoryLookup struct {
	GetContactFunc func(ctx context.Context, email string) (*models.Contact, error)
}

func (m *MockDirectoryLookup) GetContact(ctx context.Context, email string) (*models.Contact, error) {
	if m.GetContactFunc != nil {
		return m.GetContactFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

// MockEmailSender implements EmailSender for testing
type MockEmailSender struct {
	SendPasscodeEmailFunc func(ctx context.Context, email, code string, expiresAt time.Time) error
}

func (m *MockEmailSender) SendPasscodeEmail(ctx context.Context, email, code string, expiresAt time.Time) error {
	if m.SendPasscodeEmailFunc != nil {
		return m.SendPasscodeEmailFunc(ctx, email, code, expiresAt)
	}
	return nil
}

// MockSMSSender implements SMSSender for testing
type MockSMSSender struct {
	SendPasscodeSMSFunc func(ctx context.Context, phone, code string) error
}

func (m *MockSMSSender) SendPasscodeSMS(ctx context.Context, phone, code string) error {
	if m.SendPasscodeSMSFunc != nil {
		return m.SendPasscodeSMSFunc(ctx, phone, code)
	}
	return nil
}
