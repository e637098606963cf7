package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a miniredis instance for testing.
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err, "failed to start miniredis")

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})

	return client, mr
}

func TestNewRedisTier_DefaultPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		prefix   string
		expected string
	}{
		{"default when empty", "", "cache"},
		{"custom preserved", "screener", "screener"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tier := NewRedisTier(nil, tt.prefix)
			assert.Equal(t, tt.expected, tier.prefix)
		})
	}
}

func TestRedisTier_SetGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, mr := setupTestRedis(t)
	tier := NewRedisTier(client, "cache")

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	e := Entry{Namespace: "compliance", Key: "zoya:v1:BMW", Payload: []byte(`{"a":1}`), CreatedAt: now, TTL: time.Hour, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, tier.Set(ctx, e))

	// ":" inside the key is escaped
	assert.True(t, mr.Exists("cache:compliance:zoya_v1_BMW"))
	assert.Equal(t, time.Hour, mr.TTL("cache:compliance:zoya_v1_BMW"))

	got, ok, err := tier.Get(ctx, "compliance", "zoya:v1:BMW")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, e.Payload, got.Payload)
	assert.True(t, e.ExpiresAt.Equal(got.ExpiresAt))

	mr.FastForward(time.Hour)
	_, ok, err = tier.Get(ctx, "compliance", "zoya:v1:BMW")
	require.NoError(t, err)
	assert.False(t, ok, "redis expires the key with the entry ttl")
}

func TestRedisTier_SkipsNonPositiveTTL(t *testing.T) {
	t.Parallel()

	client, mr := setupTestRedis(t)
	tier := NewRedisTier(client, "cache")

	require.NoError(t, tier.Set(context.Background(), Entry{Namespace: "ns", Key: "k", Payload: []byte(`v`)}))
	assert.False(t, mr.Exists("cache:ns:k"))
}

func TestRedisTier_CorruptedEntryIsDeleted(t *testing.T) {
	t.Parallel()

	client, mr := setupTestRedis(t)
	tier := NewRedisTier(client, "cache")
	require.NoError(t, mr.Set("cache:ns:k", "not-json"))

	_, ok, err := tier.Get(context.Background(), "ns", "k")

	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists("cache:ns:k"))
}

func TestRedisTier_DeleteNamespace(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, mr := setupTestRedis(t)
	tier := NewRedisTier(client, "cache")

	for _, k := range []string{"A", "B", "C"} {
		require.NoError(t, tier.Set(ctx, Entry{Namespace: "compliance", Key: k, Payload: []byte(k), TTL: time.Hour}))
	}
	require.NoError(t, tier.Set(ctx, Entry{Namespace: "other", Key: "A", Payload: []byte(`x`), TTL: time.Hour}))

	require.NoError(t, tier.DeleteNamespace(ctx, "compliance"))

	assert.False(t, mr.Exists("cache:compliance:A"))
	assert.False(t, mr.Exists("cache:compliance:B"))
	assert.True(t, mr.Exists("cache:other:A"))
}

func TestRedisTier_GetError(t *testing.T) {
	t.Parallel()

	db, mock := redismock.NewClientMock()
	tier := NewRedisTier(db, "cache")

	mock.ExpectGet("cache:ns:k").SetErr(errors.New("connection refused"))

	_, ok, err := tier.Get(context.Background(), "ns", "k")

	assert.Error(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisTier_DeleteNamespaceScanError(t *testing.T) {
	t.Parallel()

	db, mock := redismock.NewClientMock()
	tier := NewRedisTier(db, "cache")

	mock.ExpectScan(0, "cache:ns:*", 200).SetErr(errors.New("scan failed"))

	assert.Error(t, tier.DeleteNamespace(context.Background(), "ns"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithRedisTier(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, _ := setupTestRedis(t)
	clock := newFakeClock()
	s, err := NewStore(newMemoryTier(t, 10), NewRedisTier(client, "cache"), WithClock(clock.Now))
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, "compliance", "AAPL", []byte(`aapl`), 30*24*time.Hour))

	// a fresh memory tier has to go through redis
	s2, err := NewStore(newMemoryTier(t, 10), NewRedisTier(client, "cache"), WithClock(clock.Now))
	require.NoError(t, err)
	got, ok := s2.Get(ctx, "compliance", "AAPL")
	require.True(t, ok)
	assert.Equal(t, []byte(`aapl`), got)

	clock.Advance(30 * 24 * time.Hour)
	_, ok = s2.Get(ctx, "compliance", "AAPL")
	assert.False(t, ok)
}
