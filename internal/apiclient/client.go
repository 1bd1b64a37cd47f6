// Package apiclient issues authenticated requests to the application API.
//
// Every request carries the session's bearer token when one exists. A 401 response triggers
// exactly one session refresh and, if it succeeds, exactly one retry with the new token.
// A request therefore never reaches the network more than twice.
package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/florianilch/tokenward/internal/session"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 10 << 20

// Session supplies and renews the bearer token. Implemented by *session.Manager.
type Session interface {
	AccessToken() (string, bool)
	Refresh(ctx context.Context) (string, error)
	Logout(ctx context.Context)
}

// Compile-time check to ensure *session.Manager implements Session
var _ Session = (*session.Manager)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests. Callers that want a timeout
// set it here; a timeout is reported as a NetworkError and never retried.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Client sends requests relative to a base URL on behalf of a Session.
type Client struct {
	baseURL    *url.URL
	session    Session
	httpClient *http.Client
}

// New creates a Client for the API at baseURL.
func New(baseURL string, s Session, opts ...Option) (*Client, error) {
	if s == nil {
		return nil, fmt.Errorf("missing session")
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host required", baseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	c := &Client{
		baseURL:    base,
		session:    s,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Response is a successful (2xx) response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// JSON holds the decoded body when the response declares a JSON content type.
	JSON any
	// Text holds the body of non-JSON responses.
	Text string
}

// Decode unmarshals the body into v.
func (r *Response) Decode(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, opts...)
}

// Post issues a POST request with body encoded as JSON. A nil body sends no body.
func (c *Client) Post(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, withBody(body, opts)...)
}

// Put issues a PUT request with body encoded as JSON. A nil body sends no body.
func (c *Client) Put(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodPut, path, withBody(body, opts)...)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, path, opts...)
}

func withBody(body any, opts []RequestOption) []RequestOption {
	if body == nil {
		return opts
	}
	return append([]RequestOption{WithJSON(body)}, opts...)
}

// callState is the progress of one logical request.
type callState int

const (
	stateSend           callState = iota // first attempt
	stateWaitingRefresh                  // first attempt got 401
	stateRetry                           // second and last attempt
	stateFailed                          // refresh failed
	stateDone                            // a response is final
)

// Do issues method path, refreshing the session and retrying once on 401.
func (c *Client) Do(ctx context.Context, method, path string, opts ...RequestOption) (*Response, error) {
	r, err := newRequest(method, path, opts)
	if err != nil {
		return nil, err
	}
	u, err := r.resolve(c.baseURL)
	if err != nil {
		return nil, err
	}

	token, _ := c.session.AccessToken()

	var (
		resp       *http.Response
		refreshErr error
		state      = stateSend
	)
	for {
		switch state {
		case stateSend:
			resp, err = c.send(ctx, r, u, token)
			if err != nil {
				return nil, err
			}
			if resp.StatusCode != http.StatusUnauthorized {
				state = stateDone
				continue
			}
			discard(resp)
			slog.DebugContext(ctx, "request unauthorized, refreshing session", "method", method, "path", u.Path)
			state = stateWaitingRefresh

		case stateWaitingRefresh:
			token, refreshErr = c.session.Refresh(ctx)
			if refreshErr != nil {
				state = stateFailed
				continue
			}
			state = stateRetry

		case stateRetry:
			resp, err = c.send(ctx, r, u, token)
			if err != nil {
				return nil, err
			}
			state = stateDone

		case stateFailed:
			slog.InfoContext(ctx, "session refresh failed, logging out", "error", refreshErr)
			c.session.Logout(ctx)
			return nil, fmt.Errorf("%w: %w", ErrUnauthorized, refreshErr)

		case stateDone:
			return readResponse(resp)
		}
	}
}

func (c *Client) send(ctx context.Context, r *request, u *url.URL, token string) (*http.Response, error) {
	req, err := r.build(ctx, u, token)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Method: r.method, URL: u.Redacted(), Err: err}
	}
	return resp, nil
}

// discard drains and closes a response that will not be returned.
func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	_ = resp.Body.Close()
}

func readResponse(resp *http.Response) (*Response, error) {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &NetworkError{Method: resp.Request.Method, URL: resp.Request.URL.Redacted(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RequestError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Status, body)}
	}

	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}
	if !isJSON(resp.Header.Get("Content-Type")) {
		out.Text = string(body)
		return out, nil
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &out.JSON); err != nil {
			return nil, fmt.Errorf("decoding JSON response: %w", err)
		}
	}
	return out, nil
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(contentType, "application/json")
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// errorMessage extracts a message from an error body. JSON bodies yield their "error" or
// "message" field; other bodies are returned as text.
func errorMessage(status string, body []byte) string {
	fallback := "API Error: " + status

	var parsed any
	if err := json.Unmarshal(body, &parsed); err == nil {
		if fields, ok := parsed.(map[string]any); ok {
			for _, key := range []string{"error", "message"} {
				if msg, ok := fields[key].(string); ok && msg != "" {
					return msg
				}
			}
		}
		return fallback
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return fallback
}
