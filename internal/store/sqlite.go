// Package store provides storage backends for FolioPipe.
//
// This file implements an SQLite-backed session store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/BTreeMap/FolioPipe/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore stores sessions and dedup records in an SQLite file.
// Timestamps are unix milliseconds.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

var (
	_ SessionStore = (*SQLiteStore)(nil)
	_ Purger       = (*SQLiteStore)(nil)
)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	cfg := applyOptions(opts)
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "", "ttl", cfg.TTL)

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	slog.Debug("SQLite database directory verified/created", "dir", dir)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}
	slog.Debug("SQLite ping successful")

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db, ttl: cfg.TTL, now: cfg.Now}, nil
}

// GetSession returns the user's unexpired session, or nil if none exists.
func (s *SQLiteStore) GetSession(ctx context.Context, userID int64) (*models.Session, error) {
	var state string
	var metadata []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT state, metadata FROM bot_sessions WHERE user_id = ? AND expires_at > ?`,
		userID, s.now().UnixMilli(),
	).Scan(&state, &metadata)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetSession not found", "userID", userID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query session for user %d: %w", userID, err)
	}

	sess, err := decodeSessionRow(state, metadata)
	if err != nil {
		slog.Error("SQLiteStore GetSession decode failed", "error", err, "userID", userID)
		return nil, err
	}
	slog.Debug("SQLiteStore GetSession found", "userID", userID, "state", sess.State)
	return sess, nil
}

// SaveSession overwrites the user's session and refreshes its expiry.
func (s *SQLiteStore) SaveSession(ctx context.Context, userID int64, session models.Session) error {
	metadata, err := encodeMetadata(session.Metadata)
	if err != nil {
		return err
	}
	now := s.now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bot_sessions (user_id, state, metadata, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			state = excluded.state,
			metadata = excluded.metadata,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		userID, string(session.State), string(metadata), now.Add(s.ttl).UnixMilli(), now.UnixMilli())
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to save session for user %d: %w", userID, err)
	}
	slog.Debug("SQLiteStore SaveSession succeeded", "userID", userID, "state", session.State)
	return nil
}

// DeleteSession removes the user's session.
func (s *SQLiteStore) DeleteSession(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM bot_sessions WHERE user_id = ?`, userID); err != nil {
		slog.Error("SQLiteStore DeleteSession failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to delete session for user %d: %w", userID, err)
	}
	slog.Debug("SQLiteStore DeleteSession succeeded", "userID", userID)
	return nil
}

// PurgeExpired deletes expired sessions and dedup records older than DedupRetention.
func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int64, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx, `DELETE FROM bot_sessions WHERE expires_at <= ?`, now.UnixMilli())
	if err != nil {
		slog.Error("SQLiteStore PurgeExpired sessions failed", "error", err)
		return 0, fmt.Errorf("failed to purge expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge rows affected check failed: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM inbound_dedup WHERE received_at < ?`,
		now.Add(-DedupRetention).UnixMilli()); err != nil {
		slog.Error("SQLiteStore PurgeExpired dedup failed", "error", err)
		return n, fmt.Errorf("failed to purge dedup records: %w", err)
	}
	slog.Debug("SQLiteStore PurgeExpired succeeded", "sessions", n)
	return n, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	} else {
		slog.Debug("SQLite database connection closed successfully")
	}
	return err
}
