package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/mereside/opsgate/internal/repositories"
)

// CleanupManager periodically removes expired one-time-code challenges
// and lapsed trusted-device rows from the database.
type CleanupManager struct {
	challengeRepo *repositories.OTPChallengeRepository
	deviceRepo    *repositories.TrustedDeviceRepository
	logger        *slog.Logger
	interval      time.Duration
	stopCh        chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	challengeRepo *repositories.OTPChallengeRepository,
	deviceRepo *repositories.TrustedDeviceRepository,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		challengeRepo: challengeRepo,
		deviceRepo:    deviceRepo,
		logger:        logger,
		interval:      interval,
		stopCh:        make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	challenges, err := cm.challengeRepo.DeleteExpired(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to clean up expired challenges", slog.Any("error", err))
	}

	devices, err := cm.deviceRepo.DeleteExpired(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to clean up lapsed trusted devices", slog.Any("error", err))
	}

	if challenges > 0 || devices > 0 {
		cm.logger.Info("cleanup completed",
			slog.Int64("expired_challenges", challenges),
			slog.Int64("lapsed_devices", devices))
	}
}
