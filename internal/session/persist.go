package session

import (
	"context"
	"log/slog"
)

// persist mirrors s into the store. Write failures are logged, not returned: the in-memory
// session stays valid and the next successful write repairs storage. Callers hold opMu.
func (m *Manager) persist(ctx context.Context, s *Session) {
	if err := m.store.Set(ctx, AccessTokenKey, s.AccessToken); err != nil {
		slog.ErrorContext(ctx, "failed to persist access token", "error", err)
	}

	if s.RefreshToken == "" {
		m.deleteKey(ctx, RefreshTokenKey)
		m.persistedRefresh = ""
		return
	}

	// Skip the write when the provider did not rotate the refresh token.
	if s.RefreshToken == m.persistedRefresh {
		return
	}
	if err := m.store.Set(ctx, RefreshTokenKey, s.RefreshToken); err != nil {
		// Access token is still valid, but future refreshes will fail without the persisted token
		slog.ErrorContext(ctx, "failed to persist refresh token", "error", err)
		return
	}
	m.persistedRefresh = s.RefreshToken
}

// clearStorage deletes both credential keys. Callers hold opMu.
func (m *Manager) clearStorage(ctx context.Context) {
	m.deleteKey(ctx, AccessTokenKey)
	m.deleteKey(ctx, RefreshTokenKey)
	m.persistedRefresh = ""
}

func (m *Manager) deleteKey(ctx context.Context, key string) {
	if err := m.store.Delete(ctx, key); err != nil {
		slog.ErrorContext(ctx, "failed to delete stored credential", "key", key, "error", err)
	}
}
