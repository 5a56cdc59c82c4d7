package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/mereside/opsgate/internal/database"
	"github.com/mereside/opsgate/internal/models"
)

// OTPChallengeRepository handles database operations for outstanding
// one-time codes. At most one challenge is active per email.
type OTPChallengeRepository struct {
	db *database.DB
}

// NewOTPChallengeRepository creates a new OTPChallengeRepository
func NewOTPChallengeRepository(db *database.DB) *OTPChallengeRepository {
	return &OTPChallengeRepository{db: db}
}

// Replace stores a fresh challenge for the email, discarding any prior
// outstanding one in the same transaction.
func (r *OTPChallengeRepository) Replace(ctx context.Context, challenge *models.OTPChallenge) error {
	challenge.ID = uuid.New().String()

	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM otp_challenges WHERE email = $1`, challenge.Email); err != nil {
			return database.MapPostgresError(err)
		}

		query := `
			INSERT INTO otp_challenges (id, email, code_hash, method, sent_to, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`
		_, err := tx.Exec(ctx, query,
			challenge.ID,
			challenge.Email,
			challenge.CodeHash,
			challenge.Method,
			challenge.SentTo,
			challenge.ExpiresAt,
		)
		return database.MapPostgresError(err)
	})
}

// GetActive returns the outstanding challenge for an email, or
// models.ErrNotFound when none exists.
func (r *OTPChallengeRepository) GetActive(ctx context.Context, email string) (*models.OTPChallenge, error) {
	query := `
		SELECT id, email, code_hash, method, sent_to, created_at, expires_at
		FROM otp_challenges
		WHERE email = $1
	`

	var challenge models.OTPChallenge
	err := r.db.Pool.QueryRow(ctx, query, email).Scan(
		&challenge.ID,
		&challenge.Email,
		&challenge.CodeHash,
		&challenge.Method,
		&challenge.SentTo,
		&challenge.CreatedAt,
		&challenge.ExpiresAt,
	)
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &challenge, nil
}

// Consume deletes a verified challenge so the code cannot be replayed
func (r *OTPChallengeRepository) Consume(ctx context.Context, id string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM otp_challenges WHERE id = $1`, id)
	return database.MapPostgresError(err)
}

// DeleteExpired removes challenges past their expiry
func (r *OTPChallengeRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM otp_challenges WHERE expires_at <= CURRENT_TIMESTAMP`
	tag, err := r.db.Pool.Exec(ctx, query)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
