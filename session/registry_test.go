package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/wecanbr/portal-gateway/errors"
	"github.com/wecanbr/portal-gateway/storage"
)

func testRegistry(t *testing.T, ttl time.Duration) (*Registry, *fakeUpstream) {
	t.Helper()
	up := &fakeUpstream{user: testUser()}
	cfg := testConfig()
	cfg.RegistryTTL = ttl

	reg := NewRegistry(RegistryDeps{
		NewStorage: func(string) (storage.Store, error) {
			return storage.NewMemoryStore(time.Hour), nil
		},
		NewUpstream: func(string) (Upstream, error) { return up, nil },
		Config:      cfg,
	})
	t.Cleanup(reg.Close)
	return reg, up
}

func TestRegistryGetOrCreate(t *testing.T) {
	reg, _ := testRegistry(t, time.Hour)

	_, err := reg.Get("sid-1")
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)

	h1, err := reg.GetOrCreate("sid-1")
	require.NoError(t, err)
	require.NotNil(t, h1.Store)
	require.NotNil(t, h1.Revalidator)

	h2, err := reg.GetOrCreate("sid-1")
	require.NoError(t, err)
	assert.Same(t, h1, h2, "same browser session must map to the same handle")

	other, err := reg.GetOrCreate("sid-2")
	require.NoError(t, err)
	assert.NotSame(t, h1, other)
	assert.Equal(t, 2, reg.Len())
}

func TestRegistryEvictsIdleSessions(t *testing.T) {
	reg, _ := testRegistry(t, 50*time.Millisecond)

	_, err := reg.GetOrCreate("sid-1")
	require.NoError(t, err)

	// No Get polling here: registry reads touch the TTL, which is exactly
	// what keeps an active session alive.
	time.Sleep(300 * time.Millisecond)

	_, err = reg.Get("sid-1")
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}
