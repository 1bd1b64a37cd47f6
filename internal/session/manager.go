package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/florianilch/tokenward/internal/claims"
	"github.com/florianilch/tokenward/internal/provider"
	"github.com/florianilch/tokenward/internal/tokenstore"
)

// Storage keys of the persisted credential.
const (
	AccessTokenKey  = "auth_token"
	RefreshTokenKey = "refresh_token"
)

// IdentityProvider issues the OAuth2 grants used by the Manager.
// Implemented by *provider.Client.
type IdentityProvider interface {
	PasswordGrant(ctx context.Context, username, password string) (*provider.Token, error)
	AuthCodeURL(state, redirectURI, verifier string) string
	ExchangeCode(ctx context.Context, code, redirectURI, verifier string) (*provider.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*provider.Token, error)
	Revoke(ctx context.Context, refreshToken string) error
	ClientID() string
	Scopes() []string
}

// Compile-time check to ensure *provider.Client implements IdentityProvider
var _ IdentityProvider = (*provider.Client)(nil)

// Option configures a Manager.
type Option func(*Manager)

// WithPresenter enables LoginWithBrowser.
func WithPresenter(p Presenter) Option {
	return func(m *Manager) {
		m.presenter = p
	}
}

// WithPasswordGrant enables or disables LoginWithPassword. Enabled by default.
func WithPasswordGrant(enabled bool) Option {
	return func(m *Manager) {
		m.passwordGrant = enabled
	}
}

// Manager owns the single session of the process.
type Manager struct {
	provider      IdentityProvider
	store         tokenstore.Store
	presenter     Presenter
	passwordGrant bool

	// opMu serializes every mutation (load, login, refresh, logout) including its I/O.
	opMu sync.Mutex
	// persistedRefresh is the refresh token last written to the store. Guarded by opMu.
	persistedRefresh string

	// mu guards the published snapshot.
	mu      sync.RWMutex
	state   State
	current *Session

	refreshGroup singleflight.Group

	subsMu  sync.Mutex
	subs    []subscription
	nextSub int
}

type subscription struct {
	id int
	fn func(State)
}

// New creates a Manager in StateUninitialized. Call Load before showing any UI.
func New(idp IdentityProvider, store tokenstore.Store, opts ...Option) (*Manager, error) {
	if idp == nil {
		return nil, fmt.Errorf("missing identity provider")
	}
	if store == nil {
		return nil, fmt.Errorf("missing token store")
	}

	m := &Manager{
		provider:      idp,
		store:         store,
		passwordGrant: true,
		state:         StateUninitialized,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Load seeds the session from storage. Only the first call has any effect.
// A missing, unreadable or undecodable stored token leaves the Manager unauthenticated.
func (m *Manager) Load(ctx context.Context) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.State() != StateUninitialized {
		return
	}
	m.publish(StateLoading, nil)

	access, err := m.store.Get(ctx, AccessTokenKey)
	if err != nil {
		if !errors.Is(err, tokenstore.ErrNotFound) {
			slog.ErrorContext(ctx, "failed to load stored credentials", "error", err)
		}
		m.publish(StateUnauthenticated, nil)
		return
	}

	identity, err := claims.Decode(access)
	if err != nil {
		slog.WarnContext(ctx, "discarding undecodable stored credentials", "error", err)
		m.clearStorage(ctx)
		m.publish(StateUnauthenticated, nil)
		return
	}

	refresh, err := m.store.Get(ctx, RefreshTokenKey)
	if err != nil && !errors.Is(err, tokenstore.ErrNotFound) {
		slog.ErrorContext(ctx, "failed to load stored refresh token", "error", err)
	}
	m.persistedRefresh = refresh

	m.publish(StateAuthenticated, &Session{
		AccessToken:  access,
		RefreshToken: refresh,
		Identity:     identity,
		ExpiresAt:    identity.ExpiresAt,
	})
	slog.DebugContext(ctx, "restored session", "subject", identity.Subject)
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsAuthenticated reports whether a session is present.
func (m *Manager) IsAuthenticated() bool {
	return m.State() == StateAuthenticated
}

// IsLoading reports whether the initial load from storage is in progress.
func (m *Manager) IsLoading() bool {
	return m.State() == StateLoading
}

// AccessToken returns the current access token, if any.
func (m *Manager) AccessToken() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return "", false
	}
	return m.current.AccessToken, true
}

// Identity returns the identity of the current session, if any.
func (m *Manager) Identity() (claims.Identity, bool) {
	s, ok := m.Snapshot()
	return s.Identity, ok
}

// Snapshot returns a copy of the current session.
func (m *Manager) Snapshot() (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return Session{}, false
	}
	s := *m.current
	s.Identity.Roles = slices.Clone(s.Identity.Roles)
	return s, true
}

// Subscribe registers fn to be called with the new state after every transition.
// Callbacks run synchronously in subscription order while the transition's operation is
// still in progress; they must not call Load, Login*, Refresh or Logout.
func (m *Manager) Subscribe(fn func(State)) (unsubscribe func()) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()

	id := m.nextSub
	m.nextSub++
	m.subs = append(m.subs, subscription{id: id, fn: fn})

	return func() {
		m.subsMu.Lock()
		defer m.subsMu.Unlock()
		m.subs = slices.DeleteFunc(m.subs, func(s subscription) bool { return s.id == id })
	}
}

// publish atomically replaces state and session, then notifies subscribers of changes.
// Callers hold opMu.
func (m *Manager) publish(state State, s *Session) {
	m.mu.Lock()
	changed := m.state != state
	m.state = state
	m.current = s
	m.mu.Unlock()

	if !changed {
		return
	}

	m.subsMu.Lock()
	subs := slices.Clone(m.subs)
	m.subsMu.Unlock()

	for _, sub := range subs {
		sub.fn(state)
	}
}

// establish decodes tok and makes it the current session. The previous session is kept
// when the token cannot be decoded. Callers hold opMu.
func (m *Manager) establish(ctx context.Context, tok *provider.Token, previousRefresh string) (*Session, error) {
	identity, err := claims.Decode(tok.AccessToken)
	if err != nil {
		return nil, err
	}

	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = previousRefresh
	}

	s := &Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: refresh,
		Identity:     identity,
	}
	if tok.ExpiresIn > 0 {
		s.ExpiresAt = time.Now().Add(tok.ExpiresIn)
	} else if !tok.Expiry.IsZero() {
		s.ExpiresAt = tok.Expiry
	} else {
		s.ExpiresAt = identity.ExpiresAt
	}

	m.publish(StateAuthenticated, s)
	m.persist(ctx, s)
	return s, nil
}

// clear drops the in-memory session and the persisted credential. Callers hold opMu.
func (m *Manager) clear(ctx context.Context) {
	if m.State() == StateAuthenticated {
		m.publish(StateUnauthenticated, nil)
	}
	m.clearStorage(ctx)
}
