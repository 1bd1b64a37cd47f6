package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// RequestOption configures a single request.
type RequestOption func(*request)

type request struct {
	method  string
	path    string
	query   url.Values
	header  http.Header
	body    []byte
	hasBody bool
	err     error
}

// WithQuery appends a query parameter.
func WithQuery(key, value string) RequestOption {
	return func(r *request) {
		r.query.Add(key, value)
	}
}

// WithHeader sets a request header.
func WithHeader(key, value string) RequestOption {
	return func(r *request) {
		r.header.Set(key, value)
	}
}

// WithJSON sends v encoded as JSON.
func WithJSON(v any) RequestOption {
	return func(r *request) {
		body, err := json.Marshal(v)
		if err != nil {
			r.err = fmt.Errorf("encoding request body: %w", err)
			return
		}
		r.body = body
		r.hasBody = true
	}
}

// WithRawBody sends body as is with the given content type.
func WithRawBody(contentType string, body []byte) RequestOption {
	return func(r *request) {
		r.body = body
		r.hasBody = true
		r.header.Set("Content-Type", contentType)
	}
}

func newRequest(method, path string, opts []RequestOption) (*request, error) {
	r := &request{
		method: method,
		path:   path,
		query:  make(url.Values),
		header: make(http.Header),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.err != nil {
		return nil, r.err
	}
	return r, nil
}

// resolve joins path onto base. A leading slash on path does not discard base's path.
func (r *request) resolve(base *url.URL) (*url.URL, error) {
	ref, err := url.Parse(strings.TrimPrefix(r.path, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", r.path, err)
	}

	u := base.ResolveReference(ref)
	if len(r.query) > 0 {
		q := u.Query()
		for key, values := range r.query {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u, nil
}

// build creates one attempt of r. Each attempt gets a fresh body reader.
func (r *request) build(ctx context.Context, u *url.URL, token string) (*http.Request, error) {
	var body io.Reader
	if r.hasBody {
		body = bytes.NewReader(r.body)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), body)
	if err != nil {
		return nil, err
	}
	for key, values := range r.header {
		req.Header[key] = values
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}
