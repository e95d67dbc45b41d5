package session

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wecanbr/portal-gateway/config"
	"github.com/wecanbr/portal-gateway/internal/metrics"
	"github.com/wecanbr/portal-gateway/storage"
)

// Revalidator drives the background revalidation triggers of one session
// store: focus/visibility signals from the browser, cross-tab storage
// events, the login-age watchdog, and the periodic token refresh. Each
// trigger can be switched off in config.
type Revalidator struct {
	store *Store
	st    storage.Store
	cfg   config.SessionConfig

	focusCh chan struct{}

	mu      sync.Mutex
	visible bool
}

// NewRevalidator wires a revalidator to a store. It does nothing until Run.
func NewRevalidator(store *Store, st storage.Store, cfg config.SessionConfig) *Revalidator {
	return &Revalidator{
		store:   store,
		st:      st,
		cfg:     cfg,
		focusCh: make(chan struct{}, 1),
		visible: true,
	}
}

// NotifyFocus signals that the tab gained focus or became visible again.
// Coalesces when the loop is busy.
func (r *Revalidator) NotifyFocus() {
	select {
	case r.focusCh <- struct{}{}:
	default:
	}
}

// SetVisible tracks tab visibility; the periodic refresh only runs for a
// visible tab.
func (r *Revalidator) SetVisible(v bool) {
	r.mu.Lock()
	r.visible = v
	r.mu.Unlock()
	if v {
		r.NotifyFocus()
	}
}

func (r *Revalidator) isVisible() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.visible
}

// Run processes triggers until the context is cancelled. Storage watching
// failures are logged and disable only that trigger.
func (r *Revalidator) Run(ctx context.Context) {
	var storageEvents <-chan storage.Event
	if r.cfg.RevalidateOnStorage {
		events, cancel, err := r.st.Watch(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("session: storage watch unavailable, cross-tab trigger disabled")
		} else {
			storageEvents = events
			defer cancel()
		}
	}

	maxAgeTicker := time.NewTicker(r.cfg.MaxAgeCheckInterval)
	defer maxAgeTicker.Stop()
	refreshTicker := time.NewTicker(r.cfg.RefreshInterval)
	defer refreshTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-r.focusCh:
			r.onFocus(ctx)

		case ev, ok := <-storageEvents:
			if !ok {
				storageEvents = nil
				continue
			}
			if ev.Key == storage.KeyAuthChangedAt {
				log.Debug().Msg("session: cross-tab auth change observed, revalidating")
				_, _ = r.store.FetchIdentity(ctx, true, false)
			}

		case <-maxAgeTicker.C:
			r.checkLoginAge(ctx)

		case <-refreshTicker.C:
			r.periodicRefresh(ctx)
		}
	}
}

// onFocus revalidates in background when the throttle window has elapsed.
// A fetch already in flight absorbs the call via the single-flight group.
func (r *Revalidator) onFocus(ctx context.Context) {
	if !r.cfg.RevalidateOnFocus {
		return
	}
	if time.Since(r.store.LastSync()) < r.cfg.MinSyncInterval {
		return
	}
	_, _ = r.store.FetchIdentity(ctx, true, false)
}

// checkLoginAge refreshes the token once the recorded login timestamp is
// older than the allowed age; a refusal there forces a logout.
func (r *Revalidator) checkLoginAge(ctx context.Context) {
	if !r.store.Snapshot().IsAuthenticated {
		return
	}

	v, ok, err := r.st.Get(ctx, storage.ScopeLocal, storage.KeyLoggedAt)
	if err != nil || !ok {
		return
	}
	loggedAt, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return
	}
	if time.Since(time.Unix(loggedAt, 0)) < r.cfg.MaxLoginAge {
		return
	}

	if err := r.store.upstream.RefreshToken(ctx); err != nil {
		metrics.TokenRefreshTotal.WithLabelValues("failed").Inc()
		log.Warn().Err(err).Msg("session: token refresh past max login age failed, forcing logout")
		r.store.LogoutDefaults(ctx)
		return
	}
	metrics.TokenRefreshTotal.WithLabelValues("ok").Inc()
	if err := r.st.Set(ctx, storage.ScopeLocal, storage.KeyLoggedAt,
		strconv.FormatInt(time.Now().Unix(), 10)); err != nil {
		log.Warn().Err(err).Msg("session: logged-at refresh write failed")
	}
}

// periodicRefresh keeps a visible, authenticated tab's token fresh and
// revalidates identity afterwards.
func (r *Revalidator) periodicRefresh(ctx context.Context) {
	if !r.cfg.RefreshEnabled {
		return
	}
	if !r.store.Snapshot().IsAuthenticated || !r.isVisible() {
		return
	}

	if err := r.store.upstream.RefreshToken(ctx); err != nil {
		metrics.TokenRefreshTotal.WithLabelValues("failed").Inc()
		log.Debug().Err(err).Msg("session: periodic token refresh failed")
	} else {
		metrics.TokenRefreshTotal.WithLabelValues("ok").Inc()
	}
	_, _ = r.store.FetchIdentity(ctx, true, false)
}
