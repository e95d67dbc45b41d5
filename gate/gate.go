// Package gate decides what happens when a route is evaluated against the
// current session state. Every gate is a pure function of a session snapshot;
// each re-derives eligibility on its own instead of trusting a prior gate, so
// direct URL navigation is always re-validated.
package gate

import "github.com/wecanbr/portal-gateway/domain"

// Route paths the gates redirect to. Stable contracts with the frontend.
const (
	PathHome           = "/"
	PathLogin          = "/login"
	PathChangePassword = "/trocar-senha"
	PathInternalToken  = "/token"
)

// Action is what a gate tells the HTTP layer to do.
type Action int

const (
	// Render lets the request through to the protected content.
	Render Action = iota
	// Redirect sends the browser to Decision.RedirectTo.
	Redirect
	// Loading shows the placeholder while the initial identity fetch runs.
	Loading
)

// HomeVariant distinguishes which home the composite gate renders.
type HomeVariant int

const (
	HomeNone HomeVariant = iota
	HomePublic
	HomeAuthenticated
)

// Decision is the outcome of evaluating one gate.
type Decision struct {
	Action     Action
	RedirectTo string
	// Home is set only by the Home gate when Action == Render.
	Home HomeVariant
}

func render() Decision               { return Decision{Action: Render} }
func redirect(path string) Decision  { return Decision{Action: Redirect, RedirectTo: path} }
func loading() Decision              { return Decision{Action: Loading} }
func renderHome(v HomeVariant) Decision {
	return Decision{Action: Render, Home: v}
}

// Func is a gate: session snapshot in, decision out.
type Func func(domain.Session) Decision

// PublicOnly guards routes that only make sense logged out, like the login
// page.
func PublicOnly(s domain.Session) Decision {
	if s.IsLoading {
		return loading()
	}
	if s.IsAuthenticated {
		return redirect(PathHome)
	}
	return render()
}

// Protected guards routes that require a login.
func Protected(s domain.Session) Decision {
	if s.IsLoading {
		return loading()
	}
	if !s.IsAuthenticated {
		return redirect(PathLogin)
	}
	return render()
}

// ForcePassword guards the forced password change page: only reachable when
// the change is actually pending.
func ForcePassword(s domain.Session) Decision {
	if s.IsLoading {
		return loading()
	}
	if !s.IsAuthenticated {
		return redirect(PathLogin)
	}
	if !s.MustChangePassword() {
		return redirect(PathHome)
	}
	return render()
}

// InternalToken guards the internal-access token page. The checks run in
// order; the password gate always takes precedence.
func InternalToken(s domain.Session) Decision {
	if s.IsLoading {
		return loading()
	}
	if !s.IsAuthenticated {
		return redirect(PathLogin)
	}
	if s.MustChangePassword() {
		return redirect(PathChangePassword)
	}
	if s.User == nil || !s.User.Internal {
		return redirect(PathHome)
	}
	if s.InternalTokenBlocked {
		return redirect(PathHome)
	}
	if !s.MustValidateInternalToken() {
		return redirect(PathHome)
	}
	return render()
}

// Home is the composite gate for the root route: it chains the pending-step
// checks and picks which home to render.
func Home(s domain.Session) Decision {
	if s.IsLoading {
		return loading()
	}
	if !s.IsAuthenticated {
		return renderHome(HomePublic)
	}
	if s.MustChangePassword() {
		return redirect(PathChangePassword)
	}
	if s.MustValidateInternalToken() {
		return redirect(PathInternalToken)
	}
	return renderHome(HomeAuthenticated)
}
