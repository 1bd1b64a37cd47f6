package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/florianilch/tokenward/internal/provider"
)

// AuthRequest describes one authorization code round trip. A fresh request, with a fresh
// PKCE verifier, is built for every attempt and discarded when the attempt ends.
type AuthRequest struct {
	ClientID      string
	RedirectURI   string
	State         string
	CodeVerifier  string
	CodeChallenge string
	Scopes        []string
	// URL is the authorization URL to present to the user.
	URL string
}

// ResultType is the outcome of presenting an AuthRequest.
type ResultType string

const (
	ResultSuccess ResultType = "success"
	ResultCancel  ResultType = "cancel"
	ResultDismiss ResultType = "dismiss"
	ResultError   ResultType = "error"
)

// AuthResult is the callback received at the redirect URI.
type AuthResult struct {
	Type             ResultType
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// Presenter shows the provider's authorization UI and waits for the redirect back.
type Presenter interface {
	// RedirectURI returns the redirect URI for the next Present call.
	RedirectURI(ctx context.Context) (string, error)

	// Present shows req.URL and blocks until the redirect arrives, the user gives up,
	// or ctx is done (reported as ResultCancel).
	Present(ctx context.Context, req *AuthRequest) (*AuthResult, error)
}

// LoginWithPassword performs a resource owner password credentials grant.
func (m *Manager) LoginWithPassword(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return ErrValidation
	}
	if !m.passwordGrant {
		return ErrPasswordGrantDisabled
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	tok, err := m.provider.PasswordGrant(ctx, username, password)
	if err != nil {
		return loginFailed(err)
	}

	s, err := m.establish(ctx, tok, "")
	if err != nil {
		return fmt.Errorf("establishing session: %w", err)
	}

	slog.InfoContext(ctx, "logged in", "method", "password", "subject", s.Identity.Subject)
	return nil
}

// LoginWithBrowser performs the authorization code flow with PKCE through the Presenter.
// Any outcome other than success leaves the existing session untouched.
func (m *Manager) LoginWithBrowser(ctx context.Context) error {
	if m.presenter == nil {
		return ErrBrowserLoginUnavailable
	}

	req, err := m.newAuthRequest(ctx)
	if err != nil {
		return err
	}

	result, err := m.presenter.Present(ctx, req)
	if err != nil {
		return &LoginFailedError{Message: defaultLoginFailedMessage, Err: err}
	}

	switch result.Type {
	case ResultSuccess:
	case ResultCancel, ResultDismiss:
		return ErrLoginCancelled
	case ResultError:
		return loginFailed(&provider.Error{Code: result.Error, Description: result.ErrorDescription})
	default:
		return &LoginFailedError{Message: defaultLoginFailedMessage, Err: fmt.Errorf("unexpected result type %q", result.Type)}
	}

	if result.State != req.State {
		return &LoginFailedError{Message: defaultLoginFailedMessage, Err: errors.New("authorization response state mismatch")}
	}
	if result.Code == "" {
		return &LoginFailedError{Message: defaultLoginFailedMessage, Err: errors.New("authorization response without code")}
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	tok, err := m.provider.ExchangeCode(ctx, result.Code, req.RedirectURI, req.CodeVerifier)
	if err != nil {
		return loginFailed(err)
	}

	s, err := m.establish(ctx, tok, "")
	if err != nil {
		return fmt.Errorf("establishing session: %w", err)
	}

	slog.InfoContext(ctx, "logged in", "method", "browser", "subject", s.Identity.Subject)
	return nil
}

func (m *Manager) newAuthRequest(ctx context.Context) (*AuthRequest, error) {
	redirectURI, err := m.presenter.RedirectURI(ctx)
	if err != nil {
		return nil, fmt.Errorf("preparing redirect URI: %w", err)
	}

	verifier := oauth2.GenerateVerifier()
	state := uuid.NewString()

	return &AuthRequest{
		ClientID:      m.provider.ClientID(),
		RedirectURI:   redirectURI,
		State:         state,
		CodeVerifier:  verifier,
		CodeChallenge: oauth2.S256ChallengeFromVerifier(verifier),
		Scopes:        m.provider.Scopes(),
		URL:           m.provider.AuthCodeURL(state, redirectURI, verifier),
	}, nil
}

// loginFailed wraps a grant failure with a displayable message.
func loginFailed(err error) error {
	msg := defaultLoginFailedMessage

	var perr *provider.Error
	var nerr *provider.NetworkError
	switch {
	case errors.As(err, &perr):
		if m := perr.Message(); m != "" {
			msg = m
		}
	case errors.As(err, &nerr):
		msg = "Unable to reach the identity provider"
	}

	return &LoginFailedError{Message: msg, Err: err}
}
