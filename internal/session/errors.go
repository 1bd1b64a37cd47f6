package session

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned for bad local input. No network call is made.
	ErrValidation = errors.New("username and password are required")

	// ErrPasswordGrantDisabled is returned by LoginWithPassword when the grant is turned off.
	ErrPasswordGrantDisabled = errors.New("password login is disabled")

	// ErrBrowserLoginUnavailable is returned by LoginWithBrowser without a Presenter.
	ErrBrowserLoginUnavailable = errors.New("browser login is not available")

	// ErrLoginCancelled is returned when the user abandons the browser flow.
	ErrLoginCancelled = errors.New("login cancelled")

	// ErrNoSession is returned by Refresh when no refresh token is stored.
	ErrNoSession = errors.New("no session")

	// ErrRefreshFailed is returned by Refresh when the provider could not be used to
	// renew the session. The session has been cleared.
	ErrRefreshFailed = errors.New("session refresh failed")
)

// defaultLoginFailedMessage is shown when the provider gives no description.
const defaultLoginFailedMessage = "Login failed"

// LoginFailedError reports a rejected or failed login attempt.
type LoginFailedError struct {
	// Message is suitable for display to the user.
	Message string
	Err     error
}

func (e *LoginFailedError) Error() string {
	if e.Err == nil {
		return "login failed: " + e.Message
	}
	return fmt.Sprintf("login failed: %s: %v", e.Message, e.Err)
}

func (e *LoginFailedError) Unwrap() error {
	return e.Err
}
