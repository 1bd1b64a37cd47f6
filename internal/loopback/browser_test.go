package loopback_test

import (
	"context"
	"errors"
	"testing"

	"github.com/florianilch/tokenward/internal/loopback"
)

func TestOpenBrowserCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := loopback.OpenBrowser(ctx, "http://127.0.0.1:1/callback"); !errors.Is(err, context.Canceled) {
		t.Fatalf("OpenBrowser() error = %v, want context.Canceled", err)
	}
}
