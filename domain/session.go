package domain

import "strings"

// Session is a point-in-time snapshot of one browser session's identity
// state. Snapshots are values: the session store hands out copies, never the
// mutable state it guards.
type Session struct {
	User            *User
	IsAuthenticated bool // true iff User != nil; both are set on a single path
	IsLoading       bool // initial foreground identity fetch in progress
	IsLoggingIn     bool // between BeginLogin and EndLogin

	// InternalTokenValidated is memory-only: the internal-access token page
	// confirmed a token during this process lifetime.
	InternalTokenValidated bool
	// InternalTokenBlocked mirrors the session-scoped storage flag: the
	// internal-token requirement was satisfied or explicitly bypassed, so the
	// gate stays closed until the next login.
	InternalTokenBlocked bool
}

// MustChangePassword reports whether the user has to go through the forced
// password change flow before reaching any other page. An absent flag counts
// as "never changed": accounts provisioned by HR start without it.
func (s Session) MustChangePassword() bool {
	if !s.IsAuthenticated || s.User == nil {
		return false
	}
	return s.User.PasswordChanged == nil || !*s.User.PasswordChanged
}

// MustValidateInternalToken reports whether the one-time internal-access
// token gate still applies. The password gate always wins over the token
// gate.
func (s Session) MustValidateInternalToken() bool {
	if !s.IsAuthenticated || s.User == nil {
		return false
	}
	if s.MustChangePassword() {
		return false
	}
	if !s.User.Internal {
		return false
	}
	if s.InternalTokenBlocked || s.InternalTokenValidated {
		return false
	}
	return true
}

// IdentityKey derives the key the widget manager uses to detect account
// switches: trimmed CPF when present, else trimmed email, else empty for an
// anonymous visitor.
func (s Session) IdentityKey() string {
	if s.User == nil {
		return ""
	}
	if cpf := strings.TrimSpace(s.User.CPF); cpf != "" {
		return cpf
	}
	return strings.TrimSpace(s.User.Email)
}
