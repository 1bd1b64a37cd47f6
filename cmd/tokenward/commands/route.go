package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/tokenward/internal/routeguard"
)

// printNavigator reports redirects instead of performing them.
type printNavigator struct {
	out        io.Writer
	segments   []string
	redirected bool
}

func (n *printNavigator) CurrentSegments() []string {
	return n.segments
}

func (n *printNavigator) Redirect(path string) {
	n.redirected = true
	fmt.Fprintf(n.out, "redirect %s\n", path)
}

func routeCommand() *cli.Command {
	return &cli.Command{
		Name:      "route",
		Usage:     "show where the route guard sends the current session for PATH",
		ArgsUsage: "PATH",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("expected PATH, got %d arguments", cmd.Args().Len())
			}

			a, cleanup, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			nav := &printNavigator{out: cmd.Root().Writer, segments: splitPath(cmd.Args().First())}
			routeguard.New(a.Session, nav, routeguard.DefaultRoutes).Check()
			if !nav.redirected {
				fmt.Fprintln(nav.out, "allow")
			}
			return nil
		},
	}
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
