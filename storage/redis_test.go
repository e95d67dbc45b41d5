package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisStore(t *testing.T, prefix string) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStoreWithClient(client, prefix, time.Hour)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	s := setupRedisStore(t, "sess-1")
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, ScopeLocal, "k", "v"))

	v, ok, err := s.Get(ctx, ScopeLocal, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	require.NoError(t, s.Delete(ctx, ScopeLocal, "k"))
	_, ok, err = s.Get(ctx, ScopeLocal, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStorePrefixIsolation(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	a := NewRedisStoreWithClient(client, "sess-a", time.Hour)
	b := NewRedisStoreWithClient(client, "sess-b", time.Hour)
	ctx := context.Background()

	require.NoError(t, a.Set(ctx, ScopeLocal, "k", "from-a"))

	_, ok, err := b.Get(ctx, ScopeLocal, "k")
	require.NoError(t, err)
	assert.False(t, ok, "stores with different prefixes must not share keys")
}

func TestRedisStoreKeys(t *testing.T) {
	s := setupRedisStore(t, "sess-1")
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, ScopeCookie, "md_widget_id", "1"))
	require.NoError(t, s.Set(ctx, ScopeCookie, "other", "2"))
	require.NoError(t, s.Set(ctx, ScopeLocal, "unrelated", "3"))

	keys, err := s.Keys(ctx, ScopeCookie)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"md_widget_id", "other"}, keys)
}

func TestRedisStoreWatch(t *testing.T) {
	s := setupRedisStore(t, "sess-1")
	ctx := context.Background()

	events, cancel, err := s.Watch(ctx)
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, s.Set(ctx, ScopeLocal, KeyAuthChangedAt, "now"))

	select {
	case ev := <-events:
		assert.Equal(t, KeyAuthChangedAt, ev.Key)
		assert.Equal(t, ScopeLocal, ev.Scope)
	case <-time.After(2 * time.Second):
		t.Fatal("no storage event received over pub/sub")
	}
}
