package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mereside/opsgate/internal/models"
	"github.com/mereside/opsgate/internal/repositories"
)

func TestTrustedDeviceRepository_UpsertAndGet(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	repo := repositories.NewTrustedDeviceRepository(testDB.DB)
	email, _ := TestUser("trust-upsert")
	fingerprint := "a1b2c3d4"
	until := time.Now().Add(30 * 24 * time.Hour)

	require.NoError(t, repo.Upsert(ctx, email, fingerprint, until))

	device, err := repo.Get(ctx, email, fingerprint)
	require.NoError(t, err)
	assert.Equal(t, email, device.Email)
	assert.Equal(t, fingerprint, device.Fingerprint)
	assert.WithinDuration(t, until, device.TrustedUntil, time.Second)
	assert.False(t, device.IsExpired(time.Now()))
}

func TestTrustedDeviceRepository_UpsertRefreshesWindow(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	repo := repositories.NewTrustedDeviceRepository(testDB.DB)
	email, _ := TestUser("trust-refresh")
	fingerprint := "e5f6a7b8"

	first := time.Now().Add(1 * time.Hour)
	require.NoError(t, repo.Upsert(ctx, email, fingerprint, first))

	second := time.Now().Add(30 * 24 * time.Hour)
	require.NoError(t, repo.Upsert(ctx, email, fingerprint, second))

	device, err := repo.Get(ctx, email, fingerprint)
	require.NoError(t, err)
	assert.WithinDuration(t, second, device.TrustedUntil, time.Second)
}

func TestTrustedDeviceRepository_GetUnknownPair(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	repo := repositories.NewTrustedDeviceRepository(testDB.DB)

	_, err := repo.Get(ctx, "nobody@example.com", "deadbeef")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestTrustedDeviceRepository_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	repo := repositories.NewTrustedDeviceRepository(testDB.DB)
	lapsedEmail, _ := TestUser("trust-lapsed")
	activeEmail, _ := TestUser("trust-active")

	require.NoError(t, repo.Upsert(ctx, lapsedEmail, "aaaa", time.Now().Add(-1*time.Minute)))
	require.NoError(t, repo.Upsert(ctx, activeEmail, "bbbb", time.Now().Add(1*time.Hour)))

	deleted, err := repo.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = repo.Get(ctx, lapsedEmail, "aaaa")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = repo.Get(ctx, activeEmail, "bbbb")
	assert.NoError(t, err)
}

func TestOTPChallengeRepository_ReplaceDiscardsPrior(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	repo := repositories.NewOTPChallengeRepository(testDB.DB)
	email, _ := TestUser("otp-replace")

	first, err := SeedChallenge(ctx, testDB.DB, email, "111111", time.Now().Add(5*time.Minute))
	require.NoError(t, err)

	second, err := SeedChallenge(ctx, testDB.DB, email, "222222", time.Now().Add(5*time.Minute))
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	active, err := repo.GetActive(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(active.CodeHash), []byte("222222")))
	assert.Error(t, bcrypt.CompareHashAndPassword([]byte(active.CodeHash), []byte("111111")))
}

func TestOTPChallengeRepository_Consume(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	repo := repositories.NewOTPChallengeRepository(testDB.DB)
	email, _ := TestUser("otp-consume")

	challenge, err := SeedChallenge(ctx, testDB.DB, email, "333333", time.Now().Add(5*time.Minute))
	require.NoError(t, err)

	require.NoError(t, repo.Consume(ctx, challenge.ID))

	_, err = repo.GetActive(ctx, email)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestOTPChallengeRepository_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	repo := repositories.NewOTPChallengeRepository(testDB.DB)
	expiredEmail, _ := TestUser("otp-expired")
	activeEmail, _ := TestUser("otp-active")

	_, err := SeedChallenge(ctx, testDB.DB, expiredEmail, "444444", time.Now().Add(-1*time.Minute))
	require.NoError(t, err)
	_, err = SeedChallenge(ctx, testDB.DB, activeEmail, "555555", time.Now().Add(5*time.Minute))
	require.NoError(t, err)

	deleted, err := repo.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = repo.GetActive(ctx, expiredEmail)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = repo.GetActive(ctx, activeEmail)
	assert.NoError(t, err)
}

func TestUserDirectoryRepository_GetContact(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	repo := repositories.NewUserDirectoryRepository(testDB.DB)
	email, _ := TestUser("dir-contact")

	require.NoError(t, SeedDirectoryContact(ctx, testDB.Pool, email, "+15551234567", models.DeliveryMethodSMS))

	contact, err := repo.GetContact(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, email, contact.Email)
	assert.Equal(t, "+15551234567", contact.Phone)
	assert.Equal(t, models.DeliveryMethodSMS, contact.NotificationPreference)
}

func TestUserDirectoryRepository_GetContact_MissingPhone(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	repo := repositories.NewUserDirectoryRepository(testDB.DB)
	email, _ := TestUser("dir-nophone")

	require.NoError(t, SeedDirectoryContact(ctx, testDB.Pool, email, "", models.DeliveryMethodSMS))

	contact, err := repo.GetContact(ctx, email)
	require.NoError(t, err)
	assert.Empty(t, contact.Phone)
}

func TestUserDirectoryRepository_GetContact_Unknown(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	repo := repositories.NewUserDirectoryRepository(testDB.DB)

	_, err := repo.GetContact(ctx, "missing@example.com")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
