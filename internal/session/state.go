package session

import (
	"time"

	"github.com/florianilch/tokenward/internal/claims"
)

// State is the lifecycle state of the Manager.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// Session is the current credential and the identity decoded from it.
// Identity is always derived from AccessToken.
type Session struct {
	AccessToken  string
	RefreshToken string
	Identity     claims.Identity
	// ExpiresAt is zero when neither the grant response nor the token reports a lifetime.
	ExpiresAt time.Time
}
