package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	defer s.Close()
	ctx := context.Background()

	for _, scope := range []Scope{ScopeLocal, ScopeSession, ScopeCookie} {
		require.NoError(t, s.Set(ctx, scope, "k", "v"))

		v, ok, err := s.Get(ctx, scope, "k")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "v", v)

		require.NoError(t, s.Delete(ctx, scope, "k"))
		_, ok, err = s.Get(ctx, scope, "k")
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestMemoryStoreScopesAreIsolated(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, ScopeLocal, "k", "local"))
	require.NoError(t, s.Set(ctx, ScopeSession, "k", "session"))

	v, _, _ := s.Get(ctx, ScopeLocal, "k")
	assert.Equal(t, "local", v)
	v, _, _ = s.Get(ctx, ScopeSession, "k")
	assert.Equal(t, "session", v)

	require.NoError(t, s.Delete(ctx, ScopeSession, "k"))
	_, ok, _ := s.Get(ctx, ScopeLocal, "k")
	assert.True(t, ok)
}

func TestMemoryStoreKeys(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, ScopeLocal, "a", "1"))
	require.NoError(t, s.Set(ctx, ScopeLocal, "b", "2"))

	keys, err := s.Keys(ctx, ScopeLocal)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, keys)
}

func TestMemoryStoreWatch(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	defer s.Close()
	ctx := context.Background()

	events, cancel, err := s.Watch(ctx)
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, s.Set(ctx, ScopeLocal, KeyAuthChangedAt, "now"))

	select {
	case ev := <-events:
		assert.Equal(t, ScopeLocal, ev.Scope)
		assert.Equal(t, KeyAuthChangedAt, ev.Key)
	case <-time.After(time.Second):
		t.Fatal("no storage event received")
	}
}

func TestMemoryStoreWatchCancel(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	defer s.Close()

	events, cancel, err := s.Watch(context.Background())
	require.NoError(t, err)

	cancel()
	_, open := <-events
	assert.False(t, open)

	// writes after cancel must not panic
	require.NoError(t, s.Set(context.Background(), ScopeLocal, "k", "v"))
}
