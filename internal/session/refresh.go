package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/florianilch/tokenward/internal/tokenstore"
)

// Refresh redeems the persisted refresh token for a new access token.
//
// At most one refresh is in flight: concurrent callers wait for it and share its result.
// The shared round trip runs with the first caller's context. A missing refresh token
// yields ErrNoSession; any failure yields ErrRefreshFailed. Both clear the session.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	v, err, shared := m.refreshGroup.Do("refresh", func() (any, error) {
		return m.refresh(ctx)
	})
	if shared {
		slog.DebugContext(ctx, "joined in-flight refresh")
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) refresh(ctx context.Context) (string, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	stored, err := m.store.Get(ctx, RefreshTokenKey)
	if errors.Is(err, tokenstore.ErrNotFound) {
		m.clear(ctx)
		return "", ErrNoSession
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to read refresh token", "error", err)
		m.clear(ctx)
		return "", fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	tok, err := m.provider.Refresh(ctx, stored)
	if err != nil {
		slog.WarnContext(ctx, "token refresh failed, clearing session", "error", err)
		m.clear(ctx)
		return "", fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	// The provider may omit the refresh token; the previous one stays valid then.
	m.persistedRefresh = stored
	s, err := m.establish(ctx, tok, stored)
	if err != nil {
		slog.WarnContext(ctx, "refreshed token is malformed, clearing session", "error", err)
		m.clear(ctx)
		return "", fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	slog.DebugContext(ctx, "refreshed session", "rotated", tok.RefreshToken != "")
	return s.AccessToken, nil
}
