package loopback

import (
	"context"
	"fmt"

	"github.com/cli/browser"
)

// OpenBrowser launches the platform's default browser on url.
func OpenBrowser(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := browser.OpenURL(url); err != nil {
		return fmt.Errorf("opening browser: %w", err)
	}
	return nil
}
