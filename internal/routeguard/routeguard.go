// Package routeguard redirects navigation according to the session state.
//
// The guard knows two rules and nothing else: an unauthenticated user inside the protected
// area is sent to the login entry point, and an authenticated user on the login entry point
// is sent to the protected area's default screen. Nothing is redirected while the session is
// still being restored.
package routeguard

import (
	"log/slog"
	"sync"

	"github.com/florianilch/tokenward/internal/session"
)

// Routes names the locations the guard knows about.
type Routes struct {
	// Protected is the first path segment of the protected area.
	Protected string
	// Login is the first path segment of the login entry point.
	Login string
	// LoginPath is the redirect target for unauthenticated users.
	LoginPath string
	// HomePath is the redirect target for authenticated users.
	HomePath string
}

// DefaultRoutes matches the mobile client's navigation tree.
var DefaultRoutes = Routes{
	Protected: "(tabs)",
	Login:     "login",
	LoginPath: "/login",
	HomePath:  "/(tabs)",
}

// Evaluate returns the redirect target for a user in state located at segments.
func Evaluate(state session.State, segments []string, routes Routes) (path string, redirect bool) {
	if len(segments) == 0 {
		return "", false
	}

	switch state {
	case session.StateUnauthenticated:
		if segments[0] == routes.Protected {
			return routes.LoginPath, true
		}
	case session.StateAuthenticated:
		if segments[0] == routes.Login {
			return routes.HomePath, true
		}
	}
	return "", false
}

// Navigator is the host's router.
type Navigator interface {
	CurrentSegments() []string
	Redirect(path string)
}

// StateSource reports the session state and its changes. Implemented by *session.Manager.
type StateSource interface {
	State() session.State
	Subscribe(fn func(session.State)) (unsubscribe func())
}

// Compile-time check to ensure *session.Manager implements StateSource
var _ StateSource = (*session.Manager)(nil)

// Guard applies Evaluate to a Navigator whenever the session state or the location changes.
type Guard struct {
	source StateSource
	nav    Navigator
	routes Routes

	mu sync.Mutex
}

// New creates a Guard. Call Attach to follow session changes and Check after navigation.
func New(source StateSource, nav Navigator, routes Routes) *Guard {
	return &Guard{source: source, nav: nav, routes: routes}
}

// Attach subscribes the guard to session changes and evaluates the current location once.
// The returned function detaches it.
func (g *Guard) Attach() (detach func()) {
	unsubscribe := g.source.Subscribe(g.evaluate)
	g.Check()
	return unsubscribe
}

// Check evaluates the current location against the current state.
func (g *Guard) Check() {
	g.evaluate(g.source.State())
}

func (g *Guard) evaluate(state session.State) {
	g.mu.Lock()
	defer g.mu.Unlock()

	segments := g.nav.CurrentSegments()
	path, ok := Evaluate(state, segments, g.routes)
	if !ok {
		return
	}
	slog.Debug("route guard redirect", "state", state, "segments", segments, "target", path)
	g.nav.Redirect(path)
}
