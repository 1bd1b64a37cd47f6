package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// RequestFormat selects how grant parameters are encoded on the wire.
type RequestFormat string

const (
	FormatForm RequestFormat = "form"
	FormatJSON RequestFormat = "json"
)

// DefaultScopes are requested on every grant.
var DefaultScopes = []string{"openid", "profile", "email"}

// DefaultTimeout bounds each provider request.
const DefaultTimeout = 30 * time.Second

// Option configures a Client.
type Option func(*clientConfig)

// clientConfig holds configuration for NewClient and Discover.
type clientConfig struct {
	baseTransport http.RoundTripper
	format        RequestFormat
	timeout       time.Duration
	scopes        []string
}

func newClientConfig(opts []Option) *clientConfig {
	cfg := &clientConfig{
		baseTransport: http.DefaultTransport,
		format:        FormatForm,
		timeout:       DefaultTimeout,
		scopes:        DefaultScopes,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithTransport sets a custom base transport for provider requests.
// If not provided, http.DefaultTransport is used.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *clientConfig) {
		c.baseTransport = transport
	}
}

// WithRequestFormat sets the request body encoding. Defaults to FormatForm.
func WithRequestFormat(format RequestFormat) Option {
	return func(c *clientConfig) {
		c.format = format
	}
}

// WithTimeout bounds each provider request. Zero disables the timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) {
		c.timeout = timeout
	}
}

// WithScopes replaces DefaultScopes.
func WithScopes(scopes ...string) Option {
	return func(c *clientConfig) {
		c.scopes = scopes
	}
}

// Token is the result of a successful grant.
type Token struct {
	AccessToken string
	// RefreshToken is empty when the provider did not issue or rotate one.
	RefreshToken string
	IDToken      string
	// ExpiresIn is zero when the provider did not report a lifetime.
	ExpiresIn time.Duration
	Expiry    time.Time
}

// Client issues OAuth2 grants for one public client.
type Client struct {
	clientID   string
	endpoints  Endpoints
	scopes     []string
	httpClient *http.Client
}

// NewClient creates a Client for clientID at endpoints.
func NewClient(clientID string, endpoints Endpoints, opts ...Option) (*Client, error) {
	if clientID == "" {
		return nil, fmt.Errorf("missing client id")
	}
	if endpoints.Token == "" {
		return nil, fmt.Errorf("missing token endpoint")
	}

	cfg := newClientConfig(opts)

	transport := cfg.baseTransport
	switch cfg.format {
	case FormatForm, "":
	case FormatJSON:
		transport = &jsonRequestTransport{base: transport}
	default:
		return nil, fmt.Errorf("unsupported request format: %s", cfg.format)
	}

	return &Client{
		clientID:  clientID,
		endpoints: endpoints,
		scopes:    cfg.scopes,
		httpClient: &http.Client{
			Timeout:   cfg.timeout,
			Transport: transport,
		},
	}, nil
}

// ClientID returns the OAuth2 client identifier.
func (c *Client) ClientID() string {
	return c.clientID
}

// Scopes returns the scopes requested on every grant.
func (c *Client) Scopes() []string {
	return c.scopes
}

// Endpoints returns the provider endpoints in use.
func (c *Client) Endpoints() Endpoints {
	return c.endpoints
}

func (c *Client) oauth2Config(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:    c.clientID,
		RedirectURL: redirectURI,
		Scopes:      c.scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.endpoints.Authorization,
			TokenURL:  c.endpoints.Token,
			AuthStyle: oauth2.AuthStyleInParams, // public client, no secret
		},
	}
}

// oauth2 package injects custom HTTP clients via context (oauth2.HTTPClient key).
func (c *Client) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// PasswordGrant exchanges resource owner credentials for tokens.
func (c *Client) PasswordGrant(ctx context.Context, username, password string) (*Token, error) {
	tok, err := c.oauth2Config("").PasswordCredentialsToken(c.withHTTPClient(ctx), username, password)
	if err != nil {
		return nil, normalizeError("password grant", err)
	}
	return newToken(tok), nil
}

// AuthCodeURL returns the authorization URL for a PKCE authorization code request.
func (c *Client) AuthCodeURL(state, redirectURI, verifier string) string {
	return c.oauth2Config(redirectURI).AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

// ExchangeCode exchanges an authorization code and its PKCE verifier for tokens.
// redirectURI must match the one used to build the authorization URL.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI, verifier string) (*Token, error) {
	tok, err := c.oauth2Config(redirectURI).Exchange(c.withHTTPClient(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, normalizeError("code exchange", err)
	}
	return newToken(tok), nil
}

// Refresh redeems refreshToken for a new access token.
// The returned RefreshToken is empty when the provider did not rotate it.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	// An empty access token is never valid, so the source always performs the refresh grant.
	ts := c.oauth2Config("").TokenSource(c.withHTTPClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := ts.Token()
	if err != nil {
		return nil, normalizeError("refresh", err)
	}

	result := newToken(tok)
	// oauth2 copies the old refresh token forward when the response omits one.
	if result.RefreshToken == refreshToken {
		result.RefreshToken = ""
	}
	return result, nil
}

// Revoke invalidates refreshToken at the provider's revocation endpoint.
// Sends both RFC 7009 parameters and the refresh_token parameter of the Keycloak logout endpoint.
func (c *Client) Revoke(ctx context.Context, refreshToken string) error {
	if c.endpoints.Revocation == "" {
		return fmt.Errorf("no revocation endpoint configured")
	}

	form := url.Values{
		"client_id":       {c.clientID},
		"token":           {refreshToken},
		"token_type_hint": {"refresh_token"},
		"refresh_token":   {refreshToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.Revocation, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building revocation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: "revoke", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &NetworkError{Op: "revoke", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newErrorFromResponse(resp, body)
	}
	return nil
}

func newToken(tok *oauth2.Token) *Token {
	t := &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    time.Duration(tok.ExpiresIn) * time.Second,
		Expiry:       tok.Expiry,
	}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		t.IDToken = idToken
	}
	return t
}
