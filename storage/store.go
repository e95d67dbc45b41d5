// Package storage models the browser-local shared mutable state of the
// portal: local storage, session storage and cookies, plus the storage-event
// channel tabs use to observe each other. A Store instance belongs to one
// browser session; backends differ only in whether that state is held in
// process memory or shared through redis.
package storage

import "context"

// Scope distinguishes the storage areas of a browser session.
type Scope string

const (
	// ScopeLocal survives logins within the same browser.
	ScopeLocal Scope = "local"
	// ScopeSession is cleared when the browser session ends; entries carry
	// a TTL in both backends.
	ScopeSession Scope = "session"
	// ScopeCookie holds cookie-shaped values; only vendor cookie purging
	// distinguishes it from ScopeLocal.
	ScopeCookie Scope = "cookie"
)

// Event is a change notification, the analog of a cross-tab storage event.
// Watchers receive events for writes and deletes from any holder of the same
// browser session's store.
type Event struct {
	Scope Scope  `json:"scope"`
	Key   string `json:"key"`
}

// Store is the session-scoped key/value surface.
//
//go:generate mockgen -source=$GOFILE -destination=../internal/mocks/mock_$GOPACKAGE/mock_$GOFILE -package=mock_$GOPACKAGE
type Store interface {
	Get(ctx context.Context, scope Scope, key string) (string, bool, error)
	Set(ctx context.Context, scope Scope, key, value string) error
	Delete(ctx context.Context, scope Scope, key string) error
	// Keys lists the keys currently present in a scope.
	Keys(ctx context.Context, scope Scope) ([]string, error)
	// Watch registers a change subscriber. The returned cancel func must be
	// called when the subscriber goes away; the channel is closed then.
	Watch(ctx context.Context) (<-chan Event, func(), error)
	Close() error
}

// Well-known keys. Names are stable contracts shared with the legacy pages.
const (
	// KeyAuthChangedAt is the coarse cross-tab invalidation signal: any tab
	// writing it makes the others revalidate identity.
	KeyAuthChangedAt = "auth:changed_at"
	// KeyLoggedAt records when the current login happened.
	KeyLoggedAt = "auth:logged_at"
	// KeyAccessToken is the legacy access-token marker some pages still read.
	KeyAccessToken = "auth:access_token"
	// KeyInternalTokenBlocked marks the internal-token gate as satisfied or
	// bypassed for the rest of the session. Session scope.
	KeyInternalTokenBlocked = "auth:internal_token_blocked"
	// KeyWidgetPosition persists the user-chosen widget position.
	KeyWidgetPosition = "widget:position"
	// KeyWidgetIdentity is the identity key the widget was last loaded for.
	KeyWidgetIdentity = "widget:identity_key"
)
