package provider

import (
	"encoding/json"
	"errors"
	"net/http"

	"golang.org/x/oauth2"
)

// Error is a rejection returned by the identity provider.
type Error struct {
	// StatusCode and Status are taken from the HTTP response, if any.
	StatusCode int
	Status     string

	// Code and Description are the OAuth2 "error" and "error_description" fields.
	// Description holds the raw status line when the body could not be parsed.
	Code        string
	Description string

	// Unparsed is set when Description was not read from an OAuth2 error body.
	Unparsed bool

	Err error
}

func (e *Error) Error() string {
	msg := "provider rejected request"
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Description != "" {
		msg += ": " + e.Description
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message returns the provider's error_description, falling back to its error code, or ""
// when the provider sent neither.
func (e *Error) Message() string {
	if e.Unparsed {
		return ""
	}
	if e.Description != "" {
		return e.Description
	}
	return e.Code
}

// NetworkError reports a transport failure or timeout talking to the provider.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return "provider " + e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// errorBody is the RFC 6749 §5.2 error response.
type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// newErrorFromResponse builds an Error from a non-2xx response body.
func newErrorFromResponse(resp *http.Response, body []byte) *Error {
	e := &Error{StatusCode: resp.StatusCode, Status: resp.Status}

	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != "" {
		e.Code = parsed.Error
		e.Description = parsed.ErrorDescription
		return e
	}

	e.Description = resp.Status
	e.Unparsed = true
	return e
}

// normalizeError maps oauth2 and transport failures onto Error and NetworkError.
func normalizeError(op string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		e := &Error{
			Code:        re.ErrorCode,
			Description: re.ErrorDescription,
			Err:         err,
		}
		if re.Response != nil {
			e.StatusCode = re.Response.StatusCode
			e.Status = re.Response.Status
		}
		if e.Code == "" && e.Description == "" {
			e.Description = e.Status
			e.Unparsed = true
		}
		return e
	}

	if isNetworkError(err) {
		return &NetworkError{Op: op, Err: err}
	}

	// oauth2 reports unusable 2xx bodies (e.g. missing access_token) as plain errors.
	return &Error{Description: err.Error(), Unparsed: true, Err: err}
}
