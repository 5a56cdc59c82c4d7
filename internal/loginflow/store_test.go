package loginflow

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mereside/opsgate/internal/models"
	"github.com/mereside/opsgate/pkg/logger"
)

func storeTestMachine(ttl time.Duration) (*Machine, *MockSuppressionGuard) {
	log := slog.Default()
	guard := &MockSuppressionGuard{}
	cfg := MachineConfig{ResendCooldown: 60 * time.Second, AttemptTTL: ttl}
	m := NewMachine(testFP, &MockCredentialVerifier{}, guard, &MockDeviceTrust{}, &MockChallengeService{}, cfg, log, logger.NewAuditLogger(log))
	return m, guard
}

func TestStore_PutGetRemove(t *testing.T) {
	store := NewStore(time.Minute, slog.Default())
	m, _ := storeTestMachine(5 * time.Minute)

	store.Put(m)
	assert.Equal(t, 1, store.Len())

	got, err := store.Get(m.ID())
	require.NoError(t, err)
	assert.Same(t, m, got)

	store.Remove(m.ID())
	assert.Equal(t, 0, store.Len())

	_, err = store.Get(m.ID())
	assert.ErrorIs(t, err, models.ErrAttemptNotFound)
}

func TestStore_GetUnknownID(t *testing.T) {
	store := NewStore(time.Minute, slog.Default())

	_, err := store.Get("no_such_attempt")

	assert.ErrorIs(t, err, models.ErrAttemptNotFound)
}

func TestStore_GetExpiredAttempt(t *testing.T) {
	store := NewStore(time.Minute, slog.Default())
	m, _ := storeTestMachine(-time.Second)
	store.Put(m)

	_, err := store.Get(m.ID())

	assert.ErrorIs(t, err, models.ErrAttemptNotFound)
	assert.Equal(t, 0, store.Len())
}

func TestStore_RemoveClosesAttempt(t *testing.T) {
	store := NewStore(time.Minute, slog.Default())
	m, _ := storeTestMachine(5 * time.Minute)
	store.Put(m)

	store.Remove(m.ID())

	_, err := m.SubmitCredentials(context.Background(), testEmail, testPassword)
	assert.ErrorIs(t, err, models.ErrAttemptNotFound)
}

func TestStore_SweepReleasesSuppression(t *testing.T) {
	store := NewStore(time.Minute, slog.Default())
	m, guard := storeTestMachine(-time.Second)
	store.Put(m)

	// Simulate an abandoned attempt that still holds suppression.
	m.mu.Lock()
	m.release = guard.Suppress()
	m.mu.Unlock()
	require.True(t, guard.Suppressed())

	store.sweep()

	assert.Equal(t, 0, store.Len())
	assert.False(t, guard.Suppressed(), "sweeping an expired attempt must release its suppression")
}
