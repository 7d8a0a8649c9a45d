package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/FolioPipe/internal/models"
)

func newMiniRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(WithRedisURL("redis://"+mr.Addr()+"/0"), WithTTL(ttl))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestRedisStore(t *testing.T) {
	s, _ := newMiniRedisStore(t, time.Hour)
	sessionStoreContract(t, s)
	dedupContract(t, s)
}

func TestRedisStoreLayout(t *testing.T) {
	s, mr := newMiniRedisStore(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, s.SaveSession(ctx, 99, models.Session{State: models.StateMainMenu, Metadata: map[string]any{"a": 1.0}}))

	raw, err := mr.Get("bot_session:99")
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"MAIN_MENU","metadata":{"a":1}}`, raw)
	assert.Equal(t, time.Hour, mr.TTL("bot_session:99"))
}

func TestRedisStoreExpiry(t *testing.T) {
	s, mr := newMiniRedisStore(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, s.SaveSession(ctx, 1, models.Session{State: models.StateWaitingForFolio}))
	mr.FastForward(2 * time.Minute)

	got, err := s.GetSession(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStoreDecodeFailure(t *testing.T) {
	s, mr := newMiniRedisStore(t, time.Hour)
	require.NoError(t, mr.Set("bot_session:3", "not json"))

	_, err := s.GetSession(context.Background(), 3)
	assert.Error(t, err)
}

func TestRedisStoreBackendError(t *testing.T) {
	s, mr := newMiniRedisStore(t, time.Hour)
	mr.SetError("LOADING server is loading")

	_, err := s.GetSession(context.Background(), 1)
	assert.Error(t, err)
	assert.Error(t, s.SaveSession(context.Background(), 1, models.NewSession()))
}

func TestNewRedisStoreWithClientDefaultsTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 0)
	defer s.Close()
	assert.Equal(t, DefaultSessionTTL, s.ttl)
}

func TestNewRedisStoreErrors(t *testing.T) {
	_, err := NewRedisStore()
	assert.Error(t, err)

	_, err = NewRedisStore(WithRedisURL("not-a-url"))
	assert.Error(t, err)
}
