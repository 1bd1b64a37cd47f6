package session

import (
	"context"
	"errors"
	"log/slog"

	"github.com/florianilch/tokenward/internal/tokenstore"
)

// Logout revokes the refresh token at the provider and clears the session.
// Revocation is advisory: its failure is logged and the session is cleared regardless.
// Calling Logout without a session is a no-op.
func (m *Manager) Logout(ctx context.Context) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	refresh := ""
	if s, ok := m.Snapshot(); ok {
		refresh = s.RefreshToken
	}
	if refresh == "" {
		stored, err := m.store.Get(ctx, RefreshTokenKey)
		if err != nil && !errors.Is(err, tokenstore.ErrNotFound) {
			slog.WarnContext(ctx, "failed to read refresh token for revocation", "error", err)
		}
		refresh = stored
	}

	if refresh != "" {
		if err := m.provider.Revoke(ctx, refresh); err != nil {
			slog.WarnContext(ctx, "refresh token revocation failed", "error", err)
		}
	}

	wasAuthenticated := m.State() == StateAuthenticated
	m.clear(ctx)
	if wasAuthenticated {
		slog.InfoContext(ctx, "logged out")
	}
}
