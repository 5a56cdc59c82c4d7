package otp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mereside/opsgate/internal/models"
	"github.com/mereside/opsgate/pkg/logger"
)

// ChallengeStore persists outstanding one-time codes.
type ChallengeStore interface {
	Replace(ctx context.Context, challenge *models.OTPChallenge) error
	GetActive(ctx context.Context, email string) (*models.OTPChallenge, error)
	Consume(ctx context.Context, id string) error
}

// DirectoryLookup resolves a contact record for delivery-channel selection.
type DirectoryLookup interface {
	GetContact(ctx context.Context, email string) (*models.Contact, error)
}

// EmailSender delivers a one-time code by email.
type EmailSender interface {
	SendPasscodeEmail(ctx context.Context, email, code string, expiresAt time.Time) error
}

// SMSSender delivers a one-time code by text message.
type SMSSender interface {
	SendPasscodeSMS(ctx context.Context, phone, code string) error
}

// IssueResult reports how a code was actually delivered. The method may
// differ from the directory preference when a channel is unavailable.
type IssueResult struct {
	Method string
	SentTo string
}

// VerifyResult reports the outcome of a code verification. Reason is
// safe to surface to the client.
type VerifyResult struct {
	Valid  bool
	Reason string
}

// Service issues and verifies one-time codes for the second login step.
type Service struct {
	store       ChallengeStore
	directory   DirectoryLookup
	email       EmailSender
	sms         SMSSender
	codeExpiry  time.Duration
	logger      *slog.Logger
	auditLogger *logger.AuditLogger
}

func NewService(
	store ChallengeStore,
	directory DirectoryLookup,
	email EmailSender,
	sms SMSSender,
	codeExpiry time.Duration,
	log *slog.Logger,
	auditLogger *logger.AuditLogger,
) *Service {
	return &Service{
		store:       store,
		directory:   directory,
		email:       email,
		sms:         sms,
		codeExpiry:  codeExpiry,
		logger:      log,
		auditLogger: auditLogger,
	}
}

// Issue generates a fresh 6-digit code, delivers it over the contact's
// preferred channel and stores its hash, replacing any prior challenge
// for the same email. A directory lookup failure falls back to email
// delivery rather than blocking the login.
func (s *Service) Issue(ctx context.Context, email string) (*IssueResult, error) {
	contact, err := s.directory.GetContact(ctx, email)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Warn("directory lookup failed, falling back to email delivery",
				"email", logger.SanitizedEmail(email),
				"error", err)
		}
		contact = &models.Contact{
			Email:                  email,
			NotificationPreference: models.DeliveryMethodEmail,
		}
	}

	now := time.Now().UTC()
	code, err := generatePasscode(now)
	if err != nil {
		return nil, err
	}

	method, sentTo, err := s.deliver(ctx, contact, code, now.Add(s.codeExpiry))
	if err != nil {
		s.auditLogger.LogChallengeAction("challenge_issued", email, "", false)
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash passcode: %w", err)
	}

	challenge := &models.OTPChallenge{
		Email:     email,
		CodeHash:  string(hash),
		Method:    method,
		SentTo:    sentTo,
		CreatedAt: now,
		ExpiresAt: now.Add(s.codeExpiry),
	}
	if err := s.store.Replace(ctx, challenge); err != nil {
		return nil, fmt.Errorf("failed to store challenge: %w", err)
	}

	s.auditLogger.LogChallengeAction("challenge_issued", email, method, true)

	return &IssueResult{Method: method, SentTo: sentTo}, nil
}

// deliver sends the code over the preferred channel, downgrading to
// email when a phone number is missing. For "both", a single successful
// channel is enough; the returned method reflects what actually went out.
func (s *Service) deliver(ctx context.Context, contact *models.Contact, code string, expiresAt time.Time) (method, sentTo string, err error) {
	preference := contact.NotificationPreference
	if (preference == models.DeliveryMethodSMS || preference == models.DeliveryMethodBoth) && contact.Phone == "" {
		preference = models.DeliveryMethodEmail
	}

	switch preference {
	case models.DeliveryMethodSMS:
		if err := s.sms.SendPasscodeSMS(ctx, contact.Phone, code); err != nil {
			return "", "", fmt.Errorf("failed to deliver passcode by sms: %w", err)
		}
		return models.DeliveryMethodSMS, logger.SanitizedPhone(contact.Phone), nil

	case models.DeliveryMethodBoth:
		emailErr := s.email.SendPasscodeEmail(ctx, contact.Email, code, expiresAt)
		smsErr := s.sms.SendPasscodeSMS(ctx, contact.Phone, code)
		switch {
		case emailErr == nil && smsErr == nil:
			return models.DeliveryMethodBoth, logger.SanitizedEmail(contact.Email), nil
		case emailErr == nil:
			s.logger.Warn("sms delivery failed, code sent by email only",
				"email", logger.SanitizedEmail(contact.Email),
				"error", smsErr)
			return models.DeliveryMethodEmail, logger.SanitizedEmail(contact.Email), nil
		case smsErr == nil:
			s.logger.Warn("email delivery failed, code sent by sms only",
				"email", logger.SanitizedEmail(contact.Email),
				"error", emailErr)
			return models.DeliveryMethodSMS, logger.SanitizedPhone(contact.Phone), nil
		default:
			return "", "", fmt.Errorf("failed to deliver passcode: %w", errors.Join(emailErr, smsErr))
		}

	default:
		if err := s.email.SendPasscodeEmail(ctx, contact.Email, code, expiresAt); err != nil {
			return "", "", fmt.Errorf("failed to deliver passcode by email: %w", err)
		}
		return models.DeliveryMethodEmail, logger.SanitizedEmail(contact.Email), nil
	}
}

// Verify checks a submitted code against the active challenge for the
// email. Malformed codes are rejected without touching the store, and
// all failure modes share a single client-facing reason so the response
// does not reveal whether a challenge exists.
func (s *Service) Verify(ctx context.Context, email, code string) (*VerifyResult, error) {
	if !isSixDigits(code) {
		return &VerifyResult{Valid: false, Reason: "code must be exactly 6 digits"}, nil
	}

	challenge, err := s.store.GetActive(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.auditLogger.LogChallengeAction("challenge_verified", email, "", false)
			return &VerifyResult{Valid: false, Reason: "invalid code"}, nil
		}
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}

	if challenge.IsExpired(time.Now().UTC()) {
		s.auditLogger.LogChallengeAction("challenge_verified", email, challenge.Method, false)
		return &VerifyResult{Valid: false, Reason: "invalid code"}, nil
	}

	if err := bcrypt.CompareHashAndPassword([]byte(challenge.CodeHash), []byte(code)); err != nil {
		s.auditLogger.LogChallengeAction("challenge_verified", email, challenge.Method, false)
		return &VerifyResult{Valid: false, Reason: "invalid code"}, nil
	}

	if err := s.store.Consume(ctx, challenge.ID); err != nil {
		return nil, fmt.Errorf("failed to consume challenge: %w", err)
	}

	s.auditLogger.LogChallengeAction("challenge_verified", email, challenge.Method, true)

	return &VerifyResult{Valid: true}, nil
}
