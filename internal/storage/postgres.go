package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"runtime"
	"tgisper/pkg/logger"
	"tgisper/pkg/model"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

// PostgresStorage is the transcript journal.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage connects and applies the migrations found in migrationsDir.
func NewPostgresStorage(ctx context.Context, databaseURL, migrationsDir string) (*PostgresStorage, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connection established")

	if err := RunMigrations(databaseURL, migrationsDir); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

// MigrationsURL converts a directory into a file:// source URL for golang-migrate.
func MigrationsURL(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to get migrations path: %w", err)
	}

	if runtime.GOOS == "windows" {
		u := &url.URL{
			Scheme: "file",
			Path:   filepath.ToSlash(abs),
		}
		return u.String(), nil
	}

	return "file://" + abs, nil
}

func newMigrate(databaseURL, migrationsDir string) (*migrate.Migrate, func(), error) {
	migrationsURL, err := MigrationsURL(migrationsDir)
	if err != nil {
		return nil, nil, err
	}

	connConfig, err := pgx.ParseConfig(databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	db := stdlib.OpenDB(*connConfig)

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(migrationsURL, "postgres", driver)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	logger.Info("Migrations source", zap.String("path", migrationsURL))

	closeFn := func() {
		m.Close()
		db.Close()
	}
	return m, closeFn, nil
}

// RunMigrations applies all pending up migrations.
func RunMigrations(databaseURL, migrationsDir string) error {
	m, closeFn, err := newMigrate(databaseURL, migrationsDir)
	if err != nil {
		return err
	}
	defer closeFn()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("No new migrations to apply")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("Migrations applied successfully")
	return nil
}

// ResetMigrations drops all tables and re-runs migrations (for development)
func ResetMigrations(databaseURL, migrationsDir string) error {
	logger.Warn("Resetting database - this will drop all data!")

	if err := dropAll(databaseURL, migrationsDir); err != nil {
		return err
	}

	logger.Info("Database dropped successfully")

	// Drop removes the version table too, so migrating up needs a fresh instance.
	if err := RunMigrations(databaseURL, migrationsDir); err != nil {
		return fmt.Errorf("failed to run migrations after reset: %w", err)
	}

	logger.Info("Database reset and migrations applied successfully")
	return nil
}

func dropAll(databaseURL, migrationsDir string) error {
	m, closeFn, err := newMigrate(databaseURL, migrationsDir)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := m.Drop(); err != nil {
		return fmt.Errorf("failed to drop database: %w", err)
	}
	return nil
}

// Close closes the database connection pool
func (s *PostgresStorage) Close() {
	s.pool.Close()
}

// CreateTranscript inserts a new transcript into the journal
func (s *PostgresStorage) CreateTranscript(ctx context.Context, t *model.Transcript) error {
	query := `
		INSERT INTO transcripts (
			id, chat_id, chat_type, message_id, file_unique_id, text,
			audio_duration, processing_time, archive_key, meta, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)`

	_, err := s.pool.Exec(ctx, query,
		t.ID,
		t.ChatID,
		t.ChatType,
		t.MessageID,
		t.FileUniqueID,
		t.Text,
		t.AudioDuration,
		t.ProcessingTime,
		t.ArchiveKey,
		t.Meta,
		t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create transcript: %w", err)
	}

	return nil
}
