// Package session owns the identity state machine of one browser session:
// who is logged in, what must happen next (forced password change, internal
// token gate), and when identity gets revalidated against upstream.
package session

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/wecanbr/portal-gateway/config"
	"github.com/wecanbr/portal-gateway/domain"
	apperrors "github.com/wecanbr/portal-gateway/errors"
	"github.com/wecanbr/portal-gateway/internal/metrics"
	"github.com/wecanbr/portal-gateway/storage"
)

// Upstream is the slice of the backend client the store depends on.
type Upstream interface {
	FetchIdentity(ctx context.Context) (*domain.User, error)
	RefreshToken(ctx context.Context) error
	Logout(ctx context.Context) error
}

// WidgetResetter receives the best-effort hard-reset request during logout.
type WidgetResetter interface {
	HardReset(ctx context.Context) error
}

// NavigationResult tells the HTTP layer where to send the browser after
// logout, and whether a full page reload should be forced.
type NavigationResult struct {
	RedirectTo string
	Reload     bool
}

// Store is the single source of truth for one browser session's identity
// state. All mutation of the user/authenticated pair goes through setUser,
// which is what keeps the "authenticated iff user present" invariant from
// ever being observable in a broken state.
type Store struct {
	upstream Upstream
	store    storage.Store
	cfg      config.SessionConfig

	// widget is optional; logout proceeds without it.
	widget WidgetResetter

	flight singleflight.Group

	mu            sync.Mutex
	sess          domain.Session
	loginPassword string
	lastSync      time.Time
	hydrated      bool
}

// New creates a store for one browser session. The internal-token blocked
// flag is rehydrated from session-scoped storage so a page reload does not
// re-open the gate.
func New(up Upstream, st storage.Store, cfg config.SessionConfig, widget WidgetResetter) *Store {
	s := &Store{upstream: up, store: st, cfg: cfg, widget: widget}

	if v, ok, err := st.Get(context.Background(), storage.ScopeSession, storage.KeyInternalTokenBlocked); err == nil && ok {
		s.sess.InternalTokenBlocked = v == "true"
	}
	return s
}

// Snapshot returns the current session state as a value.
func (s *Store) Snapshot() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess
}

// Hydrated reports whether at least one identity fetch has completed for
// this session.
func (s *Store) Hydrated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hydrated
}

// fetchResult travels through the single-flight group.
type fetchResult struct {
	sess domain.Session
	err  error
}

// FetchIdentity revalidates identity against upstream.
//
// At most one request is in flight at a time: concurrent callers join the
// existing flight and observe its result. When a login is in progress the
// fetch short-circuits entirely unless forced, so background revalidation
// never races a login submission.
//
// Failure semantics: a 401/403 clears the session including the transient
// login password; any other answered non-200 clears the session but keeps
// the password; a transport failure leaves the previous known-good state
// untouched.
func (s *Store) FetchIdentity(ctx context.Context, background, force bool) (domain.Session, error) {
	s.mu.Lock()
	if s.sess.IsLoggingIn && !force {
		snap := s.sess
		s.mu.Unlock()
		return snap, nil
	}
	if !background && !s.hydrated {
		s.sess.IsLoading = true
	}
	s.mu.Unlock()

	v, _, _ := s.flight.Do("identity", func() (interface{}, error) {
		user, err := s.upstream.FetchIdentity(ctx)
		return s.applyFetch(user, err), nil
	})
	res := v.(fetchResult)
	return res.sess, res.err
}

// applyFetch folds one upstream answer into the state machine.
func (s *Store) applyFetch(user *domain.User, err error) fetchResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sess.IsLoading = false
	s.hydrated = true
	s.lastSync = time.Now()

	switch {
	case err == nil:
		metrics.IdentityFetchTotal.WithLabelValues("ok").Inc()
		// Replace the user only on actual change; downstream consumers key
		// re-renders off pointer identity.
		if !s.sess.User.Equal(user) {
			s.setUser(user)
		}
		return fetchResult{sess: s.sess}

	case errors.Is(err, apperrors.ErrAuth):
		metrics.IdentityFetchTotal.WithLabelValues("unauthenticated").Inc()
		log.Debug().Err(err).Msg("session: identity fetch rejected, clearing session")
		s.setUser(nil)
		s.loginPassword = ""
		s.resetInternalTokenLocked()
		return fetchResult{sess: s.sess}

	default:
		var opErr *apperrors.RemoteOperationError
		if errors.As(err, &opErr) {
			// Upstream answered with a non-200: the session is gone even
			// though the status was not an auth status.
			metrics.IdentityFetchTotal.WithLabelValues("cleared").Inc()
			log.Debug().Int("status", opErr.Status).Msg("session: identity fetch non-200, clearing session")
			s.setUser(nil)
			s.resetInternalTokenLocked()
			return fetchResult{sess: s.sess}
		}

		// Transient failure: the previous snapshot stands.
		metrics.IdentityFetchTotal.WithLabelValues("transient").Inc()
		log.Debug().Err(err).Msg("session: identity fetch failed transiently, keeping state")
		return fetchResult{sess: s.sess, err: err}
	}
}

// setUser is the single assignment path for the user/authenticated pair.
// Callers must hold s.mu.
func (s *Store) setUser(u *domain.User) {
	s.sess.User = u
	s.sess.IsAuthenticated = u != nil
}

// RefreshUser forces a foreground identity fetch and returns the resulting
// user, or the last known one when the fetch fails transiently.
func (s *Store) RefreshUser(ctx context.Context) (*domain.User, error) {
	sess, err := s.FetchIdentity(ctx, false, true)
	return sess.User, err
}

// BeginLogin brackets the start of a login submission. A new login always
// re-opens the internal-token gate, so both flags reset here.
func (s *Store) BeginLogin(ctx context.Context) {
	s.mu.Lock()
	s.sess.IsLoggingIn = true
	s.resetInternalTokenLocked()
	s.mu.Unlock()

	if err := s.store.Delete(ctx, storage.ScopeSession, storage.KeyInternalTokenBlocked); err != nil {
		log.Warn().Err(err).Msg("session: failed to clear internal-token flag in storage")
	}
}

// EndLogin closes the login bracket.
func (s *Store) EndLogin() {
	s.mu.Lock()
	s.sess.IsLoggingIn = false
	s.mu.Unlock()
}

// RecordLogin stores the login bookkeeping marks: the logged-at timestamp,
// the legacy access marker, and the cross-tab signal telling other tabs to
// revalidate.
func (s *Store) RecordLogin(ctx context.Context) {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	for _, key := range []string{storage.KeyLoggedAt, storage.KeyAccessToken, storage.KeyAuthChangedAt} {
		if err := s.store.Set(ctx, storage.ScopeLocal, key, now); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("session: login bookkeeping write failed")
		}
	}
	metrics.LoginSuccessTotal.Inc()
}

// Logout tears the session down. The remote call is best effort; local
// cleanup, the cross-tab signal and the widget reset always run. redirectTo
// defaults to "/" and reload defaults to true via LogoutDefaults.
func (s *Store) Logout(ctx context.Context, redirectTo string, reload bool) NavigationResult {
	if redirectTo == "" {
		redirectTo = "/"
	}

	s.mu.Lock()
	s.sess.IsLoggingIn = false
	s.loginPassword = ""
	s.mu.Unlock()

	if err := s.upstream.Logout(ctx); err != nil {
		log.Warn().Err(err).Msg("session: remote logout failed, continuing cleanup")
	}

	s.mu.Lock()
	s.setUser(nil)
	s.resetInternalTokenLocked()
	s.mu.Unlock()

	for _, key := range []string{storage.KeyLoggedAt, storage.KeyAccessToken} {
		if err := s.store.Delete(ctx, storage.ScopeLocal, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("session: logout cleanup write failed")
		}
	}
	if err := s.store.Delete(ctx, storage.ScopeSession, storage.KeyInternalTokenBlocked); err != nil {
		log.Warn().Err(err).Msg("session: logout cleanup write failed")
	}

	// Cross-tab signal: any tab observing this key revalidates.
	now := strconv.FormatInt(time.Now().Unix(), 10)
	if err := s.store.Set(ctx, storage.ScopeLocal, storage.KeyAuthChangedAt, now); err != nil {
		log.Warn().Err(err).Msg("session: cross-tab signal write failed")
	}

	if s.widget != nil {
		if err := s.widget.HardReset(ctx); err != nil {
			log.Debug().Err(err).Msg("session: widget reset during logout failed")
		}
	}

	metrics.LogoutTotal.Inc()
	return NavigationResult{RedirectTo: redirectTo, Reload: reload}
}

// LogoutDefaults calls Logout with its default navigation.
func (s *Store) LogoutDefaults(ctx context.Context) NavigationResult {
	return s.Logout(ctx, "/", true)
}

// SetInternalTokenValidated marks the internal token as confirmed for this
// process lifetime. Memory only.
func (s *Store) SetInternalTokenValidated(v bool) {
	s.mu.Lock()
	s.sess.InternalTokenValidated = v
	s.mu.Unlock()
}

// SetInternalTokenBlockedInSession persists the "satisfied or bypassed" flag
// into session-scoped storage so it survives reloads but not a new login.
func (s *Store) SetInternalTokenBlockedInSession(ctx context.Context, v bool) {
	s.mu.Lock()
	s.sess.InternalTokenBlocked = v
	s.mu.Unlock()

	var err error
	if v {
		err = s.store.Set(ctx, storage.ScopeSession, storage.KeyInternalTokenBlocked, "true")
	} else {
		err = s.store.Delete(ctx, storage.ScopeSession, storage.KeyInternalTokenBlocked)
	}
	if err != nil {
		log.Warn().Err(err).Msg("session: internal-token flag write failed")
	}
}

// ClearInternalTokenSession resets both internal-token flags and the stored
// one.
func (s *Store) ClearInternalTokenSession(ctx context.Context) {
	s.mu.Lock()
	s.resetInternalTokenLocked()
	s.mu.Unlock()

	if err := s.store.Delete(ctx, storage.ScopeSession, storage.KeyInternalTokenBlocked); err != nil {
		log.Warn().Err(err).Msg("session: internal-token flag clear failed")
	}
}

// resetInternalTokenLocked resets both flags together; they are never reset
// individually. Callers must hold s.mu.
func (s *Store) resetInternalTokenLocked() {
	s.sess.InternalTokenValidated = false
	s.sess.InternalTokenBlocked = false
}

// SetLoginPassword holds the submitted password between login and a forced
// password change. Memory only, cleared on logout and on 401/403.
func (s *Store) SetLoginPassword(pw string) {
	s.mu.Lock()
	s.loginPassword = pw
	s.mu.Unlock()
}

// GetLoginPassword returns the held password, if any.
func (s *Store) GetLoginPassword() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loginPassword
}

// ClearLoginPassword drops the held password.
func (s *Store) ClearLoginPassword() {
	s.mu.Lock()
	s.loginPassword = ""
	s.mu.Unlock()
}

// LastSync reports when the last identity fetch completed.
func (s *Store) LastSync() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync
}
