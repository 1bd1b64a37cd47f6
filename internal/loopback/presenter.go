package loopback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/florianilch/tokenward/internal/session"
)

// CallbackPath is the path of the redirect URI.
const CallbackPath = "/callback"

// DefaultHost is the loopback address the callback server binds to.
const DefaultHost = "127.0.0.1"

// shutdownTimeout bounds the callback server shutdown after a result arrived.
const shutdownTimeout = 5 * time.Second

// Opener shows url to the user, typically by launching a browser.
type Opener func(ctx context.Context, url string) error

// Option configures a Presenter.
type Option func(*Presenter)

// WithPort binds the callback server to port. Zero, the default, picks a free port.
func WithPort(port uint16) Option {
	return func(p *Presenter) {
		p.port = port
	}
}

// WithOpener sets how the authorization URL is shown. The URL is always printed as well.
func WithOpener(open Opener) Option {
	return func(p *Presenter) {
		p.open = open
	}
}

// WithOutput sets where the authorization URL is printed. Defaults to os.Stderr.
func WithOutput(w io.Writer) Option {
	return func(p *Presenter) {
		p.out = w
	}
}

// Presenter serves one redirect URI per login attempt.
type Presenter struct {
	port uint16
	open Opener
	out  io.Writer

	mu       sync.Mutex
	listener net.Listener
}

// Compile-time check to ensure Presenter implements session.Presenter
var _ session.Presenter = (*Presenter)(nil)

// New creates a Presenter.
func New(opts ...Option) *Presenter {
	p := &Presenter{out: os.Stderr}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RedirectURI reserves the callback port and returns the redirect URI served on it.
func (p *Presenter) RedirectURI(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.listener == nil {
		address := net.JoinHostPort(DefaultHost, strconv.FormatUint(uint64(p.port), 10))
		var lc net.ListenConfig
		listener, err := lc.Listen(ctx, "tcp", address)
		if err != nil {
			return "", fmt.Errorf("failed to listen on %s: %w", address, err)
		}
		p.listener = listener
	}

	return redirectURI(p.listener.Addr()), nil
}

func redirectURI(addr net.Addr) string {
	return "http://" + addr.String() + CallbackPath
}

// takeListener hands the reserved listener to a single Present call.
func (p *Presenter) takeListener(ctx context.Context) (net.Listener, error) {
	if _, err := p.RedirectURI(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	l := p.listener
	p.listener = nil
	return l, nil
}

// Present prints and opens req.URL, then waits for the provider to redirect back.
// A done ctx yields ResultCancel.
func (p *Presenter) Present(ctx context.Context, req *session.AuthRequest) (*session.AuthResult, error) {
	listener, err := p.takeListener(ctx)
	if err != nil {
		return nil, err
	}

	results := make(chan *session.AuthResult, 1)
	server := &http.Server{
		Handler:           newCallbackHandler(results),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	var result *session.AuthResult
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("callback server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		select {
		case result = <-results:
		case <-gCtx.Done():
			result = &session.AuthResult{Type: session.ResultCancel}
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			_ = server.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	slog.DebugContext(ctx, "waiting for authorization callback", "redirect_uri", req.RedirectURI)
	fmt.Fprintf(p.out, "Open the following URL in your browser to log in:\n\n  %s\n\n", req.URL)
	if p.open != nil {
		if err := p.open(ctx, req.URL); err != nil {
			slog.WarnContext(ctx, "failed to open browser", "error", err)
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}
