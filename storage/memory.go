package storage

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryStore implements Store in process memory. Session-scoped entries live
// in a ttlcache so an abandoned browser session cannot pin them forever;
// local and cookie scopes are plain maps.
type MemoryStore struct {
	mu      sync.RWMutex
	local   map[string]string
	cookies map[string]string
	session *ttlcache.Cache[string, string]

	watchMu  sync.Mutex
	watchers map[int]chan Event
	nextID   int
	closed   bool

	sessionTTL time.Duration
}

// NewMemoryStore creates an in-memory store. sessionTTL bounds the lifetime
// of session-scoped entries.
func NewMemoryStore(sessionTTL time.Duration) *MemoryStore {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, string](sessionTTL),
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go cache.Start()

	return &MemoryStore{
		local:      make(map[string]string),
		cookies:    make(map[string]string),
		session:    cache,
		watchers:   make(map[int]chan Event),
		sessionTTL: sessionTTL,
	}
}

// Get implements Store.Get.
func (s *MemoryStore) Get(_ context.Context, scope Scope, key string) (string, bool, error) {
	if scope == ScopeSession {
		item := s.session.Get(key)
		if item == nil {
			return "", false, nil
		}
		return item.Value(), true, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.scopeMap(scope)[key]
	return v, ok, nil
}

// Set implements Store.Set and notifies watchers.
func (s *MemoryStore) Set(_ context.Context, scope Scope, key, value string) error {
	if scope == ScopeSession {
		s.session.Set(key, value, s.sessionTTL)
	} else {
		s.mu.Lock()
		s.scopeMap(scope)[key] = value
		s.mu.Unlock()
	}
	s.notify(Event{Scope: scope, Key: key})
	return nil
}

// Delete implements Store.Delete and notifies watchers.
func (s *MemoryStore) Delete(_ context.Context, scope Scope, key string) error {
	if scope == ScopeSession {
		s.session.Delete(key)
	} else {
		s.mu.Lock()
		delete(s.scopeMap(scope), key)
		s.mu.Unlock()
	}
	s.notify(Event{Scope: scope, Key: key})
	return nil
}

// Keys implements Store.Keys.
func (s *MemoryStore) Keys(_ context.Context, scope Scope) ([]string, error) {
	if scope == ScopeSession {
		return s.session.Keys(), nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	m := s.scopeMap(scope)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys, nil
}

// Watch implements Store.Watch.
func (s *MemoryStore) Watch(_ context.Context) (<-chan Event, func(), error) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan Event, 16)
	s.watchers[id] = ch

	cancel := func() {
		s.watchMu.Lock()
		defer s.watchMu.Unlock()
		if w, ok := s.watchers[id]; ok {
			delete(s.watchers, id)
			close(w)
		}
	}
	return ch, cancel, nil
}

// Close stops the session cache cleanup and closes all watcher channels.
func (s *MemoryStore) Close() error {
	s.session.Stop()

	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for id, ch := range s.watchers {
		delete(s.watchers, id)
		close(ch)
	}
	return nil
}

// notify fans an event out to all watchers. Slow watchers drop events rather
// than block a writer.
func (s *MemoryStore) notify(ev Event) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for _, ch := range s.watchers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// scopeMap must be called with s.mu held. Session scope never reaches here.
func (s *MemoryStore) scopeMap(scope Scope) map[string]string {
	if scope == ScopeCookie {
		return s.cookies
	}
	return s.local
}
