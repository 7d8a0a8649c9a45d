// Package store provides storage backends for FolioPipe.
//
// This file implements a PostgreSQL-backed session store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/FolioPipe/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore stores sessions and dedup records in PostgreSQL.
type PostgresStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

var (
	_ SessionStore = (*PostgresStore)(nil)
	_ Purger       = (*PostgresStore)(nil)
)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	cfg := applyOptions(opts)
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "", "ttl", cfg.TTL)
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	slog.Debug("Postgres ping successful")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db, ttl: cfg.TTL, now: cfg.Now}, nil
}

// GetSession returns the user's unexpired session, or nil if none exists.
func (s *PostgresStore) GetSession(ctx context.Context, userID int64) (*models.Session, error) {
	var state string
	var metadata []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT state, metadata FROM bot_sessions WHERE user_id = $1 AND expires_at > $2`,
		userID, s.now(),
	).Scan(&state, &metadata)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetSession not found", "userID", userID)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query session for user %d: %w", userID, err)
	}

	sess, err := decodeSessionRow(state, metadata)
	if err != nil {
		slog.Error("PostgresStore GetSession decode failed", "error", err, "userID", userID)
		return nil, err
	}
	slog.Debug("PostgresStore GetSession found", "userID", userID, "state", sess.State)
	return sess, nil
}

// SaveSession overwrites the user's session and refreshes its expiry.
func (s *PostgresStore) SaveSession(ctx context.Context, userID int64, session models.Session) error {
	metadata, err := encodeMetadata(session.Metadata)
	if err != nil {
		return err
	}
	now := s.now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bot_sessions (user_id, state, metadata, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id)
		DO UPDATE SET
			state = EXCLUDED.state,
			metadata = EXCLUDED.metadata,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at`,
		userID, string(session.State), metadata, now.Add(s.ttl), now)
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to save session for user %d: %w", userID, err)
	}
	slog.Debug("PostgresStore SaveSession succeeded", "userID", userID, "state", session.State)
	return nil
}

// DeleteSession removes the user's session.
func (s *PostgresStore) DeleteSession(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM bot_sessions WHERE user_id = $1`, userID); err != nil {
		slog.Error("PostgresStore DeleteSession failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to delete session for user %d: %w", userID, err)
	}
	slog.Debug("PostgresStore DeleteSession succeeded", "userID", userID)
	return nil
}

// PurgeExpired deletes expired sessions and dedup records older than DedupRetention.
func (s *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx, `DELETE FROM bot_sessions WHERE expires_at <= $1`, now)
	if err != nil {
		slog.Error("PostgresStore PurgeExpired sessions failed", "error", err)
		return 0, fmt.Errorf("failed to purge expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge rows affected check failed: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM inbound_dedup WHERE received_at < $1`,
		now.Add(-DedupRetention)); err != nil {
		slog.Error("PostgresStore PurgeExpired dedup failed", "error", err)
		return n, fmt.Errorf("failed to purge dedup records: %w", err)
	}
	slog.Debug("PostgresStore PurgeExpired succeeded", "sessions", n)
	return n, nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close PostgreSQL database", "error", err)
	} else {
		slog.Debug("PostgreSQL database connection closed successfully")
	}
	return err
}
