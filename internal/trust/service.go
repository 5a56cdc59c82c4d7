// Package trust decides whether a device may skip the second factor and
// registers devices after a verified one-time code.
package trust

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mereside/opsgate/internal/models"
	pkglogger "github.com/mereside/opsgate/pkg/logger"
)

// Ledger defines the interface for trusted-device storage
type Ledger interface {
	Get(ctx context.Context, email, fingerprint string) (*models.TrustedDevice, error)
	Upsert(ctx context.Context, email, fingerprint string, trustedUntil time.Time) error
}

// Service answers trust checks and registers devices. Checks fail
// closed: any ledger failure is treated as "not trusted" so a storage
// outage can never skip the second factor.
type Service struct {
	ledger      Ledger
	window      time.Duration
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewService creates a trust service with the given trust window.
func NewService(ledger Ledger, window time.Duration, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *Service {
	return &Service{
		ledger:      ledger,
		window:      window,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// IsTrusted reports whether the (email, fingerprint) pair is inside an
// unexpired trust window. It never returns an error: "not found" and
// ledger failures both mean the device must complete the second factor.
func (s *Service) IsTrusted(ctx context.Context, email, fingerprint string) bool {
	device, err := s.ledger.Get(ctx, email, fingerprint)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("trust lookup failed, treating device as untrusted",
				slog.String("email", pkglogger.SanitizedEmail(email)),
				slog.Any("error", err))
		}
		return false
	}

	if device.IsExpired(time.Now()) {
		s.logger.Info("device trust window expired",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Time("trusted_until", device.TrustedUntil))
		return false
	}

	s.auditLogger.LogDeviceAction("device_trusted", email, fingerprint, nil)
	return true
}

// RegisterTrusted records the pair as trusted for a fresh window.
// Callers treat failure as best-effort: the user has already verified a
// second factor, so a ledger error is logged and surfaced but must not
// fail the login.
func (s *Service) RegisterTrusted(ctx context.Context, email, fingerprint string) error {
	trustedUntil := time.Now().Add(s.window)

	if err := s.ledger.Upsert(ctx, email, fingerprint, trustedUntil); err != nil {
		s.logger.Error("failed to register trusted device",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return err
	}

	s.auditLogger.LogDeviceAction("device_registered", email, fingerprint, map[string]string{
		"trusted_until": trustedUntil.UTC().Format(time.RFC3339),
	})
	return nil
}
