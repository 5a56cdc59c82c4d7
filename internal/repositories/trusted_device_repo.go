package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/mereside/opsgate/internal/database"
	"github.com/mereside/opsgate/internal/models"
)

// TrustedDeviceRepository handles database operations for the device
// trust ledger
type TrustedDeviceRepository struct {
	db *database.DB
}

// NewTrustedDeviceRepository creates a new TrustedDeviceRepository
func NewTrustedDeviceRepository(db *database.DB) *TrustedDeviceRepository {
	return &TrustedDeviceRepository{db: db}
}

// Get returns the ledger entry for an (email, fingerprint) pair, or
// models.ErrNotFound when none exists.
func (r *TrustedDeviceRepository) Get(ctx context.Context, email, fingerprint string) (*models.TrustedDevice, error) {
	query := `
		SELECT id, email, fingerprint, trusted_until, created_at, updated_at
		FROM trusted_devices
		WHERE email = $1 AND fingerprint = $2
	`

	var device models.TrustedDevice
	err := r.db.Pool.QueryRow(ctx, query, email, fingerprint).Scan(
		&device.ID,
		&device.Email,
		&device.Fingerprint,
		&device.TrustedUntil,
		&device.CreatedAt,
		&device.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &device, nil
}

// Upsert registers the pair as trusted until the given time, refreshing
// the window when an entry already exists.
func (r *TrustedDeviceRepository) Upsert(ctx context.Context, email, fingerprint string, trustedUntil time.Time) error {
	query := `
		INSERT INTO trusted_devices (id, email, fingerprint, trusted_until)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email, fingerprint)
		DO UPDATE SET trusted_until = EXCLUDED.trusted_until, updated_at = CURRENT_TIMESTAMP
	`

	_, err := r.db.Pool.Exec(ctx, query, uuid.New().String(), email, fingerprint, trustedUntil)
	return database.MapPostgresError(err)
}

// DeleteExpired removes ledger entries whose trust window has lapsed
func (r *TrustedDeviceRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM trusted_devices WHERE trusted_until <= CURRENT_TIMESTAMP`
	tag, err := r.db.Pool.Exec(ctx, query)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
