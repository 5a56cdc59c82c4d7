package repositories

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/mereside/opsgate/internal/database"
	"github.com/mereside/opsgate/internal/models"
)

// UserDirectoryRepository looks up delivery contact details for an
// email before a one-time code is issued
type UserDirectoryRepository struct {
	db *database.DB
}

// NewUserDirectoryRepository creates a new UserDirectoryRepository
func NewUserDirectoryRepository(db *database.DB) *UserDirectoryRepository {
	return &UserDirectoryRepository{db: db}
}

// GetContact returns the directory entry for an email, or
// models.ErrNotFound when the email is not in the directory.
func (r *UserDirectoryRepository) GetContact(ctx context.Context, email string) (*models.Contact, error) {
	query := `
		SELECT email, COALESCE(phone, ''), COALESCE(notification_preference, 'email')
		FROM user_directory
		WHERE email = $1
	`

	var contact models.Contact
	err := r.db.Pool.QueryRow(ctx, query, email).Scan(
		&contact.Email,
		&contact.Phone,
		&contact.NotificationPreference,
	)
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &contact, nil
}
