package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BTreeMap/FolioPipe/internal/models"
)

// Key prefixes used in Redis.
const (
	RedisSessionPrefix = "bot_session:"
	RedisDedupPrefix   = "bot_dedup:"
)

// RedisStore keeps sessions in Redis with native key expiry. Each session is
// one key holding the JSON {"state": ..., "metadata": {...}}.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

var (
	_ SessionStore = (*RedisStore)(nil)
	_ DedupRepo    = (*RedisStore)(nil)
)

// NewRedisStore connects to the Redis server named by the configured URL.
func NewRedisStore(opts ...Option) (*RedisStore, error) {
	cfg := applyOptions(opts)
	slog.Debug("NewRedisStore invoked", "DSN_set", cfg.DSN != "", "ttl", cfg.TTL)
	if cfg.DSN == "" {
		slog.Error("RedisStore URL not set")
		return nil, fmt.Errorf("redis URL not set")
	}

	ropts, err := redis.ParseURL(cfg.DSN)
	if err != nil {
		slog.Error("Failed to parse Redis URL", "error", err)
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(ropts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Error("Redis ping failed", "error", err)
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	slog.Debug("Redis ping successful", "addr", ropts.Addr)
	return NewRedisStoreWithClient(client, cfg.TTL), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func sessionKey(userID int64) string {
	return RedisSessionPrefix + strconv.FormatInt(userID, 10)
}

// GetSession returns the user's session, or nil if the key is absent or expired.
func (s *RedisStore) GetSession(ctx context.Context, userID int64) (*models.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		slog.Debug("RedisStore GetSession not found", "userID", userID)
		return nil, nil
	}
	if err != nil {
		slog.Error("RedisStore GetSession failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to read session for user %d: %w", userID, err)
	}
	sess, err := models.UnmarshalSession(data)
	if err != nil {
		slog.Error("RedisStore GetSession decode failed", "error", err, "userID", userID)
		return nil, err
	}
	slog.Debug("RedisStore GetSession found", "userID", userID, "state", sess.State)
	return &sess, nil
}

// SaveSession overwrites the user's session with a fresh TTL.
func (s *RedisStore) SaveSession(ctx context.Context, userID int64, session models.Session) error {
	payload, err := models.MarshalSession(session)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, sessionKey(userID), payload, s.ttl).Err(); err != nil {
		slog.Error("RedisStore SaveSession failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to save session for user %d: %w", userID, err)
	}
	slog.Debug("RedisStore SaveSession succeeded", "userID", userID, "state", session.State)
	return nil
}

// DeleteSession removes the user's session key.
func (s *RedisStore) DeleteSession(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, sessionKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session for user %d: %w", userID, err)
	}
	return nil
}

func (s *RedisStore) IsDuplicate(ctx context.Context, messageID string) (bool, error) {
	n, err := s.client.Exists(ctx, RedisDedupPrefix+messageID).Result()
	if err != nil {
		return false, fmt.Errorf("dedup check failed: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) RecordInbound(ctx context.Context, messageID string, userID int64) (bool, error) {
	ok, err := s.client.SetNX(ctx, RedisDedupPrefix+messageID, strconv.FormatInt(userID, 10), DedupRetention).Result()
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) MarkProcessed(ctx context.Context, messageID string) error {
	err := s.client.SetArgs(ctx, RedisDedupPrefix+messageID, "processed", redis.SetArgs{Mode: "XX", KeepTTL: true}).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
