package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/florianilch/tokenward/internal/apiclient"
	"github.com/florianilch/tokenward/internal/loopback"
	"github.com/florianilch/tokenward/internal/provider"
	"github.com/florianilch/tokenward/internal/session"
	"github.com/florianilch/tokenward/internal/tokenstore"
)

// App holds the object graph built from a Config.
type App struct {
	cfg *Config

	Store    tokenstore.Store
	Provider *provider.Client
	Session  *session.Manager
	API      *apiclient.Client
}

// Option configures New.
type Option func(*options)

type options struct {
	store         tokenstore.Store
	presenterOpts []loopback.Option
	providerOpts  []provider.Option
	apiHTTPClient *http.Client
}

// WithStore replaces the store described by the configuration.
func WithStore(store tokenstore.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithPresenterOptions adds options to the loopback presenter.
func WithPresenterOptions(opts ...loopback.Option) Option {
	return func(o *options) {
		o.presenterOpts = append(o.presenterOpts, opts...)
	}
}

// WithProviderOptions adds options to the identity provider client.
func WithProviderOptions(opts ...provider.Option) Option {
	return func(o *options) {
		o.providerOpts = append(o.providerOpts, opts...)
	}
}

// WithAPIHTTPClient sets the HTTP client of the API client.
func WithAPIHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		o.apiHTTPClient = hc
	}
}

// New creates a new App instance. Discovery, when enabled, is the only I/O performed.
func New(ctx context.Context, cfg *Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	store := o.store
	if store == nil {
		var err error
		store, err = cfg.Storage.NewStore()
		if err != nil {
			return nil, fmt.Errorf("failed to create token store: %w", err)
		}
	}

	idp, err := newProvider(ctx, cfg.Provider, o.providerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider client: %w", err)
	}

	presenterOpts := []loopback.Option{loopback.WithPort(cfg.Login.CallbackPort)}
	if !cfg.Login.NoBrowser {
		presenterOpts = append(presenterOpts, loopback.WithOpener(loopback.OpenBrowser))
	}
	presenterOpts = append(presenterOpts, o.presenterOpts...)

	manager, err := session.New(idp, store,
		session.WithPresenter(loopback.New(presenterOpts...)),
		session.WithPasswordGrant(*cfg.Provider.PasswordGrant),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}

	httpClient := o.apiHTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.API.Timeout}
	}
	api, err := apiclient.New(cfg.API.BaseURL, manager, apiclient.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	return &App{
		cfg:      cfg,
		Store:    store,
		Provider: idp,
		Session:  manager,
		API:      api,
	}, nil
}

// Config returns the configuration the App was built from.
func (a *App) Config() *Config {
	return a.cfg
}

// Start restores the persisted session. It must run before any other session operation.
func (a *App) Start(ctx context.Context) {
	a.Session.Load(ctx)
	slog.DebugContext(ctx, "application ready", "state", a.Session.State())
}

// TokenSource returns an oauth2.TokenSource backed by the session.
func (a *App) TokenSource(ctx context.Context) *SessionTokenSource {
	return NewSessionTokenSource(ctx, a.Session)
}

// newProvider creates the provider client, deriving or discovering its endpoints.
func newProvider(ctx context.Context, cfg ProviderConfig, extra []provider.Option) (*provider.Client, error) {
	opts := []provider.Option{
		provider.WithRequestFormat(provider.RequestFormat(cfg.RequestFormat)),
		provider.WithTimeout(cfg.Timeout),
	}
	if len(cfg.Scopes) > 0 {
		opts = append(opts, provider.WithScopes(cfg.Scopes...))
	}
	opts = append(opts, extra...)

	endpoints := provider.DeriveEndpoints(cfg.BaseURL, cfg.Realm)
	if cfg.Discovery {
		issuer := provider.IssuerURL(cfg.BaseURL, cfg.Realm)
		discovered, err := provider.Discover(ctx, issuer, opts...)
		if err != nil {
			return nil, fmt.Errorf("discovering endpoints: %w", err)
		}
		endpoints = discovered
		slog.DebugContext(ctx, "discovered provider endpoints", "issuer", issuer)
	}

	return provider.NewClient(cfg.ClientID, endpoints, opts...)
}
