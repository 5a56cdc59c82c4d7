package integration

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"

	"github.com/mereside/opsgate/internal/database"
	"github.com/mereside/opsgate/internal/models"
	"github.com/mereside/opsgate/internal/repositories"
)

// TestDB manages PostgreSQL testcontainer and database operations
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
	DB         *database.DB
}

// SetupTestDatabase creates a PostgreSQL testcontainer, runs migrations, returns TestDB
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("opsgate"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(ctx, pool); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		Pool:       pool,
		DB:         &database.DB{Pool: pool},
	}, nil
}

// runMigrations executes all goose migrations
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir, err := filepath.Abs("../../migrations")
	if err != nil {
		return fmt.Errorf("failed to get migrations path: %w", err)
	}

	// Suppress goose logs
	goose.SetLogger(log.New(io.Discard, "", 0))

	// Goose needs a stdlib DB connection; use the stdlib adapter from pgx
	sqlDB := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer sqlDB.Close()

	if err := goose.UpContext(ctx, sqlDB, migrationsDir); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}

// Teardown stops the container and closes the connection pool
func (db *TestDB) Teardown(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

// CleanupTables truncates all tables for test isolation
func (db *TestDB) CleanupTables(ctx context.Context) error {
	tables := []string{
		"otp_challenges",
		"trusted_devices",
		"user_directory",
	}

	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return nil
}

// InitializeRepositories creates all repository instances from database wrapper
func InitializeRepositories(db *database.DB) (
	*repositories.TrustedDeviceRepository,
	*repositories.OTPChallengeRepository,
	*repositories.UserDirectoryRepository,
) {
	return repositories.NewTrustedDeviceRepository(db),
		repositories.NewOTPChallengeRepository(db),
		repositories.NewUserDirectoryRepository(db)
}

// SeedDirectoryContact inserts a directory entry used for delivery routing
func SeedDirectoryContact(ctx context.Context, pool *pgxpool.Pool, email, phone, preference string) error {
	query := `
		INSERT INTO user_directory (email, phone, notification_preference)
		VALUES ($1, NULLIF($2, ''), $3)
		ON CONFLICT (email)
		DO UPDATE SET phone = NULLIF($2, ''), notification_preference = $3, updated_at = NOW()
	`

	if _, err := pool.Exec(ctx, query, email, phone, preference); err != nil {
		return fmt.Errorf("failed to insert directory contact: %w", err)
	}
	return nil
}

// SeedTrustedDevice registers a device as trusted until the given time
func SeedTrustedDevice(ctx context.Context, db *database.DB, email, fingerprint string, trustedUntil time.Time) error {
	repo := repositories.NewTrustedDeviceRepository(db)
	if err := repo.Upsert(ctx, email, fingerprint, trustedUntil); err != nil {
		return fmt.Errorf("failed to seed trusted device: %w", err)
	}
	return nil
}

// SeedChallenge stores an outstanding one-time code for an email
func SeedChallenge(ctx context.Context, db *database.DB, email, code string, expiresAt time.Time) (*models.OTPChallenge, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash code: %w", err)
	}

	challenge := &models.OTPChallenge{
		Email:     email,
		CodeHash:  string(hash),
		Method:    models.DeliveryMethodEmail,
		SentTo:    email,
		ExpiresAt: expiresAt,
	}

	repo := repositories.NewOTPChallengeRepository(db)
	if err := repo.Replace(ctx, challenge); err != nil {
		return nil, fmt.Errorf("failed to seed challenge: %w", err)
	}

	return challenge, nil
}
