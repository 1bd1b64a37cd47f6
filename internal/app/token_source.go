package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/florianilch/tokenward/internal/session"
)

// expiryDelta is how long before expiry an access token is considered stale.
const expiryDelta = 10 * time.Second

// SessionTokenSource exposes the session as an oauth2.TokenSource, refreshing the access
// token shortly before it expires.
type SessionTokenSource struct {
	ctx     context.Context
	session *session.Manager
	now     func() time.Time
}

// Compile-time check to ensure SessionTokenSource implements oauth2.TokenSource
var _ oauth2.TokenSource = (*SessionTokenSource)(nil)

// NewSessionTokenSource creates a SessionTokenSource. ctx is used for refreshes, as
// oauth2.TokenSource.Token takes no context.
func NewSessionTokenSource(ctx context.Context, s *session.Manager) *SessionTokenSource {
	return &SessionTokenSource{ctx: ctx, session: s, now: time.Now}
}

// Token returns the current access token, refreshing it first when it is about to expire.
func (ts *SessionTokenSource) Token() (*oauth2.Token, error) {
	current, ok := ts.session.Snapshot()
	if !ok {
		return nil, session.ErrNoSession
	}

	if !current.ExpiresAt.IsZero() && !current.ExpiresAt.After(ts.now().Add(expiryDelta)) {
		if _, err := ts.session.Refresh(ts.ctx); err != nil {
			return nil, fmt.Errorf("refreshing expired token: %w", err)
		}
		current, ok = ts.session.Snapshot()
		if !ok {
			return nil, session.ErrNoSession
		}
	}

	return &oauth2.Token{
		AccessToken: current.AccessToken,
		TokenType:   "Bearer",
		Expiry:      current.ExpiresAt,
	}, nil
}
