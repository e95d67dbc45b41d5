package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wecanbr/portal-gateway/config"
	"github.com/wecanbr/portal-gateway/domain"
	apperrors "github.com/wecanbr/portal-gateway/errors"
	"github.com/wecanbr/portal-gateway/storage"
)

// fakeUpstream counts identity requests and serves a programmable answer.
type fakeUpstream struct {
	mu           sync.Mutex
	fetchCalls   int
	refreshCalls int
	logoutCalls  int

	fetchDelay time.Duration
	user       *domain.User
	fetchErr   error
	refreshErr error
	logoutErr  error
}

func (f *fakeUpstream) FetchIdentity(_ context.Context) (*domain.User, error) {
	f.mu.Lock()
	f.fetchCalls++
	delay, user, err := f.fetchDelay, f.user, f.fetchErr
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	// fresh copy per fetch, like a decoded response body
	u := *user
	return &u, nil
}

func (f *fakeUpstream) RefreshToken(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	return f.refreshErr
}

func (f *fakeUpstream) Logout(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutCalls++
	return f.logoutErr
}

func (f *fakeUpstream) counts() (fetch, refresh, logout int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls, f.refreshCalls, f.logoutCalls
}

type fakeWidget struct {
	mu     sync.Mutex
	resets int
	err    error
}

func (w *fakeWidget) HardReset(_ context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resets++
	return w.err
}

func boolPtr(b bool) *bool { return &b }

func testUser() *domain.User {
	return &domain.User{
		Name:            "Maria Souza",
		Email:           "maria@wecan.com.br",
		CPF:             "12345678900",
		Internal:        true,
		PasswordChanged: boolPtr(true),
	}
}

func testConfig() config.SessionConfig {
	return config.SessionConfig{
		RevalidateOnFocus:   true,
		RevalidateOnStorage: true,
		RefreshEnabled:      true,
		MinSyncInterval:     5 * time.Minute,
		RefreshInterval:     time.Hour,
		MaxAgeCheckInterval: time.Hour,
		MaxLoginAge:         30 * 24 * time.Hour,
		RegistryTTL:         time.Hour,
	}
}

func newTestStore(t *testing.T, up *fakeUpstream) (*Store, storage.Store) {
	t.Helper()
	st := storage.NewMemoryStore(time.Hour)
	t.Cleanup(func() { _ = st.Close() })
	return New(up, st, testConfig(), nil), st
}

func TestFetchIdentitySuccess(t *testing.T) {
	up := &fakeUpstream{user: testUser()}
	s, _ := newTestStore(t, up)

	sess, err := s.FetchIdentity(context.Background(), false, false)
	require.NoError(t, err)

	assert.True(t, sess.IsAuthenticated)
	require.NotNil(t, sess.User)
	assert.Equal(t, "Maria Souza", sess.User.Name)
	assert.False(t, sess.IsLoading)
}

func TestAuthenticatedIffUserPresent(t *testing.T) {
	up := &fakeUpstream{user: testUser()}
	s, _ := newTestStore(t, up)
	ctx := context.Background()

	check := func() {
		sess := s.Snapshot()
		assert.Equal(t, sess.User != nil, sess.IsAuthenticated,
			"authenticated flag must track user presence")
	}

	check()
	_, _ = s.FetchIdentity(ctx, false, false)
	check()

	up.mu.Lock()
	up.fetchErr = apperrors.NewAuthError(401)
	up.mu.Unlock()
	_, _ = s.FetchIdentity(ctx, true, false)
	check()

	s.Logout(ctx, "", true)
	check()
}

func TestFetchIdentityAuthErrorClearsEverything(t *testing.T) {
	up := &fakeUpstream{user: testUser()}
	s, _ := newTestStore(t, up)
	ctx := context.Background()

	_, err := s.FetchIdentity(ctx, false, false)
	require.NoError(t, err)
	s.SetLoginPassword("s3gredo")
	s.SetInternalTokenValidated(true)

	up.mu.Lock()
	up.fetchErr = apperrors.NewAuthError(401)
	up.mu.Unlock()

	sess, err := s.FetchIdentity(ctx, true, false)
	require.NoError(t, err, "auth rejection is handled, not propagated")

	assert.Nil(t, sess.User)
	assert.False(t, sess.IsAuthenticated)
	assert.False(t, sess.InternalTokenValidated)
	assert.False(t, sess.InternalTokenBlocked)
	assert.Empty(t, s.GetLoginPassword(), "401 clears the transient password")
}

func TestFetchIdentityNon200ClearsAuthKeepsPassword(t *testing.T) {
	up := &fakeUpstream{user: testUser()}
	s, _ := newTestStore(t, up)
	ctx := context.Background()

	_, _ = s.FetchIdentity(ctx, false, false)
	s.SetLoginPassword("s3gredo")

	up.mu.Lock()
	up.fetchErr = &apperrors.RemoteOperationError{Op: "GET /usuario/me", Status: 500}
	up.mu.Unlock()

	sess, err := s.FetchIdentity(ctx, true, false)
	require.NoError(t, err)
	assert.False(t, sess.IsAuthenticated)
	assert.Equal(t, "s3gredo", s.GetLoginPassword())
}

func TestFetchIdentityTransientKeepsState(t *testing.T) {
	up := &fakeUpstream{user: testUser()}
	s, _ := newTestStore(t, up)
	ctx := context.Background()

	_, _ = s.FetchIdentity(ctx, false, false)

	up.mu.Lock()
	up.fetchErr = apperrors.ErrTransient
	up.mu.Unlock()

	sess, err := s.FetchIdentity(ctx, true, false)
	assert.Error(t, err)
	assert.True(t, sess.IsAuthenticated, "network failures never destroy a known-good session")
	require.NotNil(t, sess.User)
}

func TestFetchIdentityUnchangedUserKeepsPointer(t *testing.T) {
	up := &fakeUpstream{user: testUser()}
	s, _ := newTestStore(t, up)
	ctx := context.Background()

	first, _ := s.FetchIdentity(ctx, false, false)
	second, _ := s.FetchIdentity(ctx, true, true)

	assert.Same(t, first.User, second.User,
		"deep-equal payload must not replace the user snapshot")

	up.mu.Lock()
	up.user = &domain.User{Name: "Maria S.", CPF: "12345678900"}
	up.mu.Unlock()
	third, _ := s.FetchIdentity(ctx, true, true)
	assert.NotSame(t, first.User, third.User)
}

func TestFetchIdentitySingleFlight(t *testing.T) {
	up := &fakeUpstream{user: testUser(), fetchDelay: 100 * time.Millisecond}
	s, _ := newTestStore(t, up)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]domain.Session, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = s.FetchIdentity(ctx, false, false)
		}(i)
	}
	wg.Wait()

	fetches, _, _ := up.counts()
	assert.Equal(t, 1, fetches, "concurrent callers must share one request")
	assert.Same(t, results[0].User, results[1].User)
}

func TestFetchIdentitySkippedDuringLogin(t *testing.T) {
	up := &fakeUpstream{user: testUser()}
	s, _ := newTestStore(t, up)
	ctx := context.Background()

	s.BeginLogin(ctx)
	defer s.EndLogin()

	_, err := s.FetchIdentity(ctx, true, false)
	require.NoError(t, err)
	fetches, _, _ := up.counts()
	assert.Equal(t, 0, fetches, "background fetch must not overlap a login")

	_, err = s.FetchIdentity(ctx, false, true)
	require.NoError(t, err)
	fetches, _, _ = up.counts()
	assert.Equal(t, 1, fetches, "forced fetch goes through")
}

func TestBeginLoginResetsInternalTokenFlags(t *testing.T) {
	up := &fakeUpstream{user: testUser()}
	s, _ := newTestStore(t, up)
	ctx := context.Background()

	s.SetInternalTokenValidated(true)
	s.SetInternalTokenBlockedInSession(ctx, true)

	s.BeginLogin(ctx)
	sess := s.Snapshot()
	assert.False(t, sess.InternalTokenValidated)
	assert.False(t, sess.InternalTokenBlocked)
	assert.True(t, sess.IsLoggingIn)

	s.EndLogin()
	assert.False(t, s.Snapshot().IsLoggingIn)
}

func TestLogoutAlwaysCleansUp(t *testing.T) {
	up := &fakeUpstream{user: testUser(), logoutErr: errors.New("upstream down")}
	widget := &fakeWidget{err: errors.New("widget broken")}
	st := storage.NewMemoryStore(time.Hour)
	defer st.Close()
	s := New(up, st, testConfig(), widget)
	ctx := context.Background()

	_, _ = s.FetchIdentity(ctx, false, false)
	s.SetLoginPassword("s3gredo")
	s.SetInternalTokenValidated(true)
	s.SetInternalTokenBlockedInSession(ctx, true)
	s.RecordLogin(ctx)

	nav := s.Logout(ctx, "", true)

	sess := s.Snapshot()
	assert.Nil(t, sess.User)
	assert.False(t, sess.IsAuthenticated)
	assert.False(t, sess.InternalTokenValidated)
	assert.False(t, sess.InternalTokenBlocked)
	assert.Empty(t, s.GetLoginPassword())

	assert.Equal(t, "/", nav.RedirectTo)
	assert.True(t, nav.Reload)

	_, _, logouts := up.counts()
	assert.Equal(t, 1, logouts)
	assert.Equal(t, 1, widget.resets, "widget reset runs even when remote logout fails")

	// cross-tab signal written, bookkeeping removed
	_, ok, _ := st.Get(ctx, storage.ScopeLocal, storage.KeyAuthChangedAt)
	assert.True(t, ok)
	_, ok, _ = st.Get(ctx, storage.ScopeLocal, storage.KeyLoggedAt)
	assert.False(t, ok)
	_, ok, _ = st.Get(ctx, storage.ScopeSession, storage.KeyInternalTokenBlocked)
	assert.False(t, ok)
}

func TestInternalTokenBlockedSurvivesReload(t *testing.T) {
	up := &fakeUpstream{user: testUser()}
	st := storage.NewMemoryStore(time.Hour)
	defer st.Close()
	ctx := context.Background()

	s := New(up, st, testConfig(), nil)
	s.SetInternalTokenBlockedInSession(ctx, true)

	// a fresh store over the same storage, as after a page reload
	reloaded := New(up, st, testConfig(), nil)
	assert.True(t, reloaded.Snapshot().InternalTokenBlocked)

	reloaded.ClearInternalTokenSession(ctx)
	third := New(up, st, testConfig(), nil)
	assert.False(t, third.Snapshot().InternalTokenBlocked)
}

func TestRefreshUserReturnsLastKnownOnTransient(t *testing.T) {
	up := &fakeUpstream{user: testUser()}
	s, _ := newTestStore(t, up)
	ctx := context.Background()

	_, _ = s.FetchIdentity(ctx, false, false)

	up.mu.Lock()
	up.fetchErr = apperrors.ErrTransient
	up.mu.Unlock()

	user, err := s.RefreshUser(ctx)
	assert.Error(t, err)
	require.NotNil(t, user, "transient failure returns the previous snapshot")
	assert.Equal(t, "Maria Souza", user.Name)
}
