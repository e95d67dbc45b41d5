package session

import (
	"context"
	"sync"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog/log"

	"github.com/wecanbr/portal-gateway/config"
	apperrors "github.com/wecanbr/portal-gateway/errors"
	"github.com/wecanbr/portal-gateway/internal/metrics"
	"github.com/wecanbr/portal-gateway/storage"
)

// Handle bundles everything the gateway holds for one browser session.
type Handle struct {
	ID          string
	Store       *Store
	Revalidator *Revalidator
	Storage     storage.Store
	Upstream    Upstream
	Widget      WidgetResetter

	cancel context.CancelFunc
}

func (h *Handle) stop() {
	if h.cancel != nil {
		h.cancel()
	}
	if err := h.Storage.Close(); err != nil {
		log.Debug().Err(err).Str("session_id", h.ID).Msg("session: storage close failed")
	}
}

// RegistryDeps are the per-session factories the registry builds handles
// from.
type RegistryDeps struct {
	NewStorage  func(sessionID string) (storage.Store, error)
	NewUpstream func(sessionID string) (Upstream, error)
	// NewWidget may be nil when the widget is disabled.
	NewWidget func(st storage.Store) WidgetResetter
	Config    config.SessionConfig
}

// Registry tracks the live browser sessions. Idle sessions fall out after
// the configured TTL and get their revalidator and storage torn down.
type Registry struct {
	deps  RegistryDeps
	cache *ttlcache.Cache[string, *Handle]

	mu sync.Mutex
}

// NewRegistry creates the registry and starts its eviction loop.
func NewRegistry(deps RegistryDeps) *Registry {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *Handle](deps.Config.RegistryTTL),
	)
	cache.OnEviction(func(_ context.Context, _ ttlcache.EvictionReason, item *ttlcache.Item[string, *Handle]) {
		item.Value().stop()
		metrics.ActiveSessionsGauge.Dec()
		log.Debug().Str("session_id", item.Key()).Msg("session: evicted from registry")
	})
	go cache.Start()

	return &Registry{deps: deps, cache: cache}
}

// Get returns the handle for a known session id.
func (r *Registry) Get(sessionID string) (*Handle, error) {
	item := r.cache.Get(sessionID)
	if item == nil {
		return nil, apperrors.ErrSessionNotFound
	}
	return item.Value(), nil
}

// GetOrCreate returns the existing handle or builds a new one: storage,
// upstream client, store, widget resetter and a running revalidator.
func (r *Registry) GetOrCreate(sessionID string) (*Handle, error) {
	if h, err := r.Get(sessionID); err == nil {
		return h, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check under the lock; two requests may race the first miss.
	if item := r.cache.Get(sessionID); item != nil {
		return item.Value(), nil
	}

	st, err := r.deps.NewStorage(sessionID)
	if err != nil {
		return nil, err
	}
	up, err := r.deps.NewUpstream(sessionID)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	var widget WidgetResetter
	if r.deps.NewWidget != nil {
		widget = r.deps.NewWidget(st)
	}

	store := New(up, st, r.deps.Config, widget)
	reval := NewRevalidator(store, st, r.deps.Config)

	ctx, cancel := context.WithCancel(context.Background())
	go reval.Run(ctx)

	h := &Handle{
		ID:          sessionID,
		Store:       store,
		Revalidator: reval,
		Storage:     st,
		Upstream:    up,
		Widget:      widget,
		cancel:      cancel,
	}
	r.cache.Set(sessionID, h, ttlcache.DefaultTTL)
	metrics.ActiveSessionsGauge.Inc()
	log.Debug().Str("session_id", sessionID).Msg("session: new browser session registered")
	return h, nil
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	return r.cache.Len()
}

// Close tears down all sessions and stops the eviction loop. DeleteAll runs
// the eviction hook for every live handle.
func (r *Registry) Close() {
	r.cache.Stop()
	r.cache.DeleteAll()
}
