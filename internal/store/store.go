// Package store provides storage backends for FolioPipe.
//
// Session stores keep per-user conversation state with expiry (in-memory,
// SQLite, PostgreSQL and Redis). Service repositories look up technical
// service records by folio (in-memory and GORM over SQLite, PostgreSQL or MySQL).
package store

import (
	"context"
	"strings"
	"time"

	"github.com/BTreeMap/FolioPipe/internal/models"
)

// DefaultSessionTTL is the inactivity window after which a session expires.
const DefaultSessionTTL = time.Hour

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
	TTL time.Duration
	Now func() time.Time
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithRedisURL sets the Redis connection URL (redis://host:port/db).
func WithRedisURL(url string) Option {
	return func(o *Opts) {
		o.DSN = url
	}
}

// WithTTL sets the session time-to-live. Non-positive values select DefaultSessionTTL.
func WithTTL(ttl time.Duration) Option {
	return func(o *Opts) {
		o.TTL = ttl
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) {
		o.Now = now
	}
}

func applyOptions(opts []Option) Opts {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultSessionTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return cfg
}

// SessionStore is implemented by every session backend.
type SessionStore interface {
	GetSession(ctx context.Context, userID int64) (*models.Session, error)
	SaveSession(ctx context.Context, userID int64, session models.Session) error
	DeleteSession(ctx context.Context, userID int64) error
	Close() error
}

// Purger is implemented by backends that do not expire rows on their own.
type Purger interface {
	// PurgeExpired deletes expired sessions and stale dedup records and
	// returns the number of sessions removed.
	PurgeExpired(ctx context.Context) (int64, error)
}

// DSN types returned by DetectDSNType.
const (
	DSNTypePostgres = "postgres"
	DSNTypeMySQL    = "mysql"
	DSNTypeSQLite   = "sqlite3"
	DSNTypeRedis    = "redis"
)

// DetectDSNType determines the database type from a DSN string.
func DetectDSNType(dsn string) string {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"),
		strings.Contains(dsn, "host="), strings.Contains(dsn, "dbname="):
		return DSNTypePostgres
	case strings.HasPrefix(dsn, "mysql://"), strings.Contains(dsn, "@tcp("):
		return DSNTypeMySQL
	case strings.HasPrefix(dsn, "redis://"), strings.HasPrefix(dsn, "rediss://"):
		return DSNTypeRedis
	default:
		return DSNTypeSQLite
	}
}
