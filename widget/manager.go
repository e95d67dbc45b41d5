package widget

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/wecanbr/portal-gateway/config"
	"github.com/wecanbr/portal-gateway/internal/metrics"
	"github.com/wecanbr/portal-gateway/storage"
)

// State is the lifecycle state of the widget for the current identity.
type State int

const (
	StateDisabled State = iota
	StateEnabling
	StateLoading
	StateActive
)

func (s State) String() string {
	switch s {
	case StateEnabling:
		return "habilitando"
	case StateLoading:
		return "carregando"
	case StateActive:
		return "ativo"
	default:
		return "desabilitado"
	}
}

// flight is one in-progress script load shared by concurrent callers.
type flight struct {
	done chan struct{}
	err  error
}

// Manager owns the widget lifecycle for one browser session. All runtime
// state lives here, explicitly constructed and injected, never ambient.
type Manager struct {
	host Host
	st   storage.Store
	cfg  config.WidgetConfig

	// sleep is swapped out by tests measuring the backoff schedule.
	sleep func(time.Duration)
	// closedPredicate decides whether newly added text marks a closed
	// conversation. The vendor's markup is not ours, so the predicate is
	// configuration, not code.
	closedPredicate func(string) bool

	mu            sync.Mutex
	state         State
	loaded        bool
	closedApplied bool
	current       *flight
	unsubscribe   func()
}

// Option configures a Manager.
type Option func(*Manager)

// WithClosedPredicate replaces the sentinel-substring predicate.
func WithClosedPredicate(p func(string) bool) Option {
	return func(m *Manager) { m.closedPredicate = p }
}

// NewManager creates a manager in the Disabled state.
func NewManager(host Host, st storage.Store, cfg config.WidgetConfig, opts ...Option) *Manager {
	m := &Manager{
		host:  host,
		st:    st,
		cfg:   cfg,
		sleep: time.Sleep,
	}
	sentinel := cfg.ClosedSentinel
	m.closedPredicate = func(text string) bool {
		return sentinel != "" && strings.Contains(text, sentinel)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Host returns the page host the manager drives.
func (m *Manager) Host() Host {
	return m.host
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Ensure is the mount path: it reconciles the widget with the given identity
// key, hard-resetting first when the identity changed, then loads the vendor
// scripts if they are not already up.
func (m *Manager) Ensure(ctx context.Context, identityKey string) error {
	if !m.cfg.Enabled {
		m.Disable()
		return nil
	}

	m.mu.Lock()
	if m.state == StateDisabled {
		m.state = StateEnabling
	}
	m.mu.Unlock()

	if err := m.reconcileIdentity(ctx, identityKey); err != nil {
		return err
	}
	return m.load(ctx)
}

// reconcileIdentity compares the identity key against the persisted one and
// hard-resets on any change where either side is non-empty. That covers
// login, logout and account switch; an unchanged key never resets.
func (m *Manager) reconcileIdentity(ctx context.Context, identityKey string) error {
	current := strings.TrimSpace(identityKey)

	previous := ""
	if v, ok, err := m.st.Get(ctx, storage.ScopeLocal, storage.KeyWidgetIdentity); err == nil && ok {
		previous = strings.TrimSpace(v)
	}

	if previous != current && (previous != "" || current != "") {
		if err := m.HardReset(ctx); err != nil {
			return err
		}
	}

	if current == "" {
		return m.st.Delete(ctx, storage.ScopeLocal, storage.KeyWidgetIdentity)
	}
	return m.st.Set(ctx, storage.ScopeLocal, storage.KeyWidgetIdentity, current)
}

// load brings the vendor scripts up. A load already in flight is joined, not
// repeated; a loaded widget only gets its position re-applied.
func (m *Manager) load(ctx context.Context) error {
	m.mu.Lock()
	if m.loaded {
		m.mu.Unlock()
		m.applyPosition(ctx)
		return nil
	}
	if f := m.current; f != nil {
		m.mu.Unlock()
		select {
		case <-f.done:
			return f.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f := &flight{done: make(chan struct{})}
	m.current = f
	m.state = StateLoading
	m.mu.Unlock()

	err := m.loadScripts(ctx, m.cfg.ScriptURLs)

	m.mu.Lock()
	m.current = nil
	f.err = err
	if err == nil {
		m.loaded = true
		m.state = StateActive
		if m.unsubscribe == nil {
			m.unsubscribe = m.host.Subscribe(m.onDOMChanged)
		}
	} else {
		m.state = StateEnabling
	}
	m.mu.Unlock()
	close(f.done)

	if err == nil {
		m.host.SetHidden(false)
		m.applyPosition(ctx)
	}
	return err
}

// HardReset purges every trace of the widget for the previous identity:
// vendor-matched storage and cookie keys, injected DOM, and the in-memory
// flags. The widget is reloadable immediately afterwards.
func (m *Manager) HardReset(ctx context.Context) error {
	m.mu.Lock()
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	m.loaded = false
	m.closedApplied = false
	m.current = nil
	m.mu.Unlock()

	m.host.RemoveInjected()
	for _, sel := range m.cfg.OverlaySelectors {
		m.host.RemoveNodes(sel)
	}

	for _, scope := range []storage.Scope{storage.ScopeLocal, storage.ScopeSession, storage.ScopeCookie} {
		keys, err := m.st.Keys(ctx, scope)
		if err != nil {
			m.debugf("widget: storage scan during reset failed", map[string]interface{}{
				"scope": string(scope), "error": err.Error(),
			})
			continue
		}
		for _, key := range keys {
			if !m.matchesVendorKey(key) {
				continue
			}
			if err := m.st.Delete(ctx, scope, key); err != nil {
				m.debugf("widget: vendor key purge failed", map[string]interface{}{
					"key": key, "error": err.Error(),
				})
			}
		}
	}

	metrics.WidgetHardResetTotal.Inc()
	return nil
}

// Disable hides the overlay and clears the runtime flags.
func (m *Manager) Disable() {
	m.host.SetHidden(true)
	for _, sel := range m.cfg.OverlaySelectors {
		m.host.RemoveNodes(sel)
	}

	m.mu.Lock()
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	m.loaded = false
	m.closedApplied = false
	m.current = nil
	m.state = StateDisabled
	m.mu.Unlock()
}

// SavePosition persists a user-chosen position and applies it right away.
func (m *Manager) SavePosition(ctx context.Context, pos Position) error {
	payload, err := json.Marshal(pos)
	if err != nil {
		return err
	}
	if err := m.st.Set(ctx, storage.ScopeLocal, storage.KeyWidgetPosition, string(payload)); err != nil {
		return err
	}
	m.setPositionAll(pos)
	return nil
}

// applyPosition pins all overlay nodes to the persisted position, or the
// default when none was chosen yet.
func (m *Manager) applyPosition(ctx context.Context) {
	pos := DefaultPosition
	if v, ok, err := m.st.Get(ctx, storage.ScopeLocal, storage.KeyWidgetPosition); err == nil && ok {
		var stored Position
		if err := json.Unmarshal([]byte(v), &stored); err == nil {
			pos = stored
		}
	}
	m.setPositionAll(pos)
}

func (m *Manager) setPositionAll(pos Position) {
	for _, sel := range m.cfg.OverlaySelectors {
		m.host.SetPosition(sel, pos)
	}
}

// onDOMChanged runs for every DOM-change notification: it re-pins the
// overlay, and applies the closed-conversation state once per load when the
// sentinel shows up in newly added text.
func (m *Manager) onDOMChanged(addedText string) {
	m.applyPosition(context.Background())

	if !m.closedPredicate(addedText) {
		return
	}

	m.mu.Lock()
	apply := !m.closedApplied
	m.closedApplied = true
	m.mu.Unlock()

	if apply {
		m.host.ApplyClosedState()
	}
}

func (m *Manager) matchesVendorKey(key string) bool {
	lower := strings.ToLower(key)
	for _, sub := range m.cfg.VendorKeySubstrings {
		if sub != "" && strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}
