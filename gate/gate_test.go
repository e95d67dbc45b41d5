package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wecanbr/portal-gateway/domain"
)

func boolPtr(b bool) *bool { return &b }

func anon() domain.Session { return domain.Session{} }

func authed(u *domain.User) domain.Session {
	return domain.Session{User: u, IsAuthenticated: true}
}

func regular() domain.Session {
	return authed(&domain.User{PasswordChanged: boolPtr(true)})
}

func pendingPassword() domain.Session {
	return authed(&domain.User{PasswordChanged: boolPtr(false)})
}

func internalPending() domain.Session {
	return authed(&domain.User{Internal: true, PasswordChanged: boolPtr(true)})
}

func TestGatesShowLoadingPlaceholder(t *testing.T) {
	s := domain.Session{IsLoading: true}
	for name, g := range map[string]Func{
		"public-only":    PublicOnly,
		"protected":      Protected,
		"force-password": ForcePassword,
		"internal-token": InternalToken,
		"home":           Home,
	} {
		assert.Equal(t, Loading, g(s).Action, "gate %s", name)
	}
}

func TestPublicOnly(t *testing.T) {
	assert.Equal(t, Render, PublicOnly(anon()).Action)

	d := PublicOnly(regular())
	assert.Equal(t, Redirect, d.Action)
	assert.Equal(t, PathHome, d.RedirectTo)
}

func TestProtected(t *testing.T) {
	d := Protected(anon())
	assert.Equal(t, Redirect, d.Action)
	assert.Equal(t, PathLogin, d.RedirectTo)

	assert.Equal(t, Render, Protected(regular()).Action)
}

func TestForcePassword(t *testing.T) {
	tests := []struct {
		name string
		sess domain.Session
		want Decision
	}{
		{"anonymous", anon(), redirect(PathLogin)},
		{"nothing pending", regular(), redirect(PathHome)},
		{"pending change", pendingPassword(), render()},
		{"flag absent counts as pending", authed(&domain.User{}), render()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ForcePassword(tt.sess))
		})
	}
}

func TestInternalToken(t *testing.T) {
	blocked := internalPending()
	blocked.InternalTokenBlocked = true

	validated := internalPending()
	validated.InternalTokenValidated = true

	pendingBoth := authed(&domain.User{Internal: true, PasswordChanged: boolPtr(false)})

	tests := []struct {
		name string
		sess domain.Session
		want Decision
	}{
		{"anonymous", anon(), redirect(PathLogin)},
		{"password gate wins", pendingBoth, redirect(PathChangePassword)},
		{"not internal", regular(), redirect(PathHome)},
		{"blocked this session", blocked, redirect(PathHome)},
		{"already validated", validated, redirect(PathHome)},
		{"gate open", internalPending(), render()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InternalToken(tt.sess))
		})
	}
}

func TestHomeGateSequences(t *testing.T) {
	// anonymous visitor sees the public home
	d := Home(anon())
	assert.Equal(t, Render, d.Action)
	assert.Equal(t, HomePublic, d.Home)

	// senha_trocada false routes to the password page, never to /token
	d = Home(authed(&domain.User{Internal: true, PasswordChanged: boolPtr(false)}))
	assert.Equal(t, Redirect, d.Action)
	assert.Equal(t, PathChangePassword, d.RedirectTo)

	// internal user with password done and no session flags goes to /token
	d = Home(internalPending())
	assert.Equal(t, Redirect, d.Action)
	assert.Equal(t, PathInternalToken, d.RedirectTo)

	// after validation the authenticated home renders
	validated := internalPending()
	validated.InternalTokenValidated = true
	d = Home(validated)
	assert.Equal(t, Render, d.Action)
	assert.Equal(t, HomeAuthenticated, d.Home)

	// external user with password done goes straight home
	d = Home(regular())
	assert.Equal(t, Render, d.Action)
	assert.Equal(t, HomeAuthenticated, d.Home)
}
