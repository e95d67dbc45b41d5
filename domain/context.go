package domain

import "context"

type sessionContextKey struct{}

// ContextWithSession returns a child context carrying the session snapshot.
// The gate middleware attaches it so handlers never re-evaluate identity.
func ContextWithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// SessionFromContext retrieves the snapshot attached by the gate middleware.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(Session)
	return s, ok
}
