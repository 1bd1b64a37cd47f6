package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/florianilch/tokenward/internal/app"
	"github.com/florianilch/tokenward/internal/loopback"
	"github.com/florianilch/tokenward/internal/session"
)

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "log in with username and password, or in the browser",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "browser",
				Usage: "use the authorization code flow in the browser",
			},
			&cli.StringFlag{
				Name:    "username",
				Aliases: []string{"u"},
				Usage:   "username for the password login (prompted if omitted)",
			},
			&cli.IntFlag{
				Name:  "login--callback-port",
				Usage: "port of the browser login callback (0 picks a free port)",
			},
			&cli.BoolFlag{
				Name:  "login--no-browser",
				Usage: "print the authorization URL instead of opening a browser",
			},
		},
		Action: loginAction,
	}
}

func loginAction(ctx context.Context, cmd *cli.Command) error {
	a, cleanup, err := setup(ctx, cmd, app.WithPresenterOptions(loopback.WithOutput(cmd.Root().ErrWriter)))
	if err != nil {
		return err
	}
	defer cleanup()

	if cmd.Bool("browser") {
		err = a.Session.LoginWithBrowser(ctx)
	} else {
		err = passwordLogin(ctx, cmd, a.Session)
	}
	if err != nil {
		return loginError(err)
	}

	identity, _ := a.Session.Identity()
	fmt.Fprintf(cmd.Root().Writer, "Logged in as %s\n", displayName(identity.Username, identity.DisplayName))
	return nil
}

func passwordLogin(ctx context.Context, cmd *cli.Command, m *session.Manager) error {
	in := bufio.NewReader(cmd.Root().Reader)
	prompt := cmd.Root().ErrWriter

	username := cmd.String("username")
	if username == "" {
		fmt.Fprint(prompt, "Username: ")
		line, err := readLine(in)
		if err != nil {
			return fmt.Errorf("reading username: %w", err)
		}
		username = line
	}

	fmt.Fprint(prompt, "Password: ")
	password, err := readPassword(cmd.Root().Reader, in)
	fmt.Fprintln(prompt)
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	return m.LoginWithPassword(ctx, username, password)
}

// readPassword reads without echo from a terminal, or a plain line otherwise.
func readPassword(r io.Reader, buffered *bufio.Reader) (string, error) {
	if f, ok := r.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		return string(b), err
	}
	return readLine(buffered)
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// loginError turns session errors into messages for the terminal.
func loginError(err error) error {
	var lerr *session.LoginFailedError
	switch {
	case errors.As(err, &lerr):
		return fmt.Errorf("login failed: %s", lerr.Message)
	case errors.Is(err, session.ErrValidation):
		return errors.New("username and password are required")
	case errors.Is(err, session.ErrLoginCancelled):
		return errors.New("login cancelled")
	default:
		return err
	}
}

func displayName(username, name string) string {
	if name == "" {
		return username
	}
	return fmt.Sprintf("%s (%s)", name, username)
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "revoke the refresh token and forget the session",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, cleanup, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			a.Session.Logout(ctx)
			fmt.Fprintln(cmd.Root().Writer, "Logged out")
			return nil
		},
	}
}

// status is the JSON form of the status command.
type status struct {
	State     string     `json:"state"`
	Username  string     `json:"username,omitempty"`
	Name      string     `json:"name,omitempty"`
	Email     string     `json:"email,omitempty"`
	Roles     []string   `json:"roles,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "show the current session",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "print as JSON"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, cleanup, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			st := status{State: a.Session.State().String()}
			if s, ok := a.Session.Snapshot(); ok {
				st.Username = s.Identity.Username
				st.Name = s.Identity.DisplayName
				st.Email = s.Identity.Email
				st.Roles = s.Identity.Roles
				if !s.ExpiresAt.IsZero() {
					st.ExpiresAt = &s.ExpiresAt
				}
			}

			out := cmd.Root().Writer
			if cmd.Bool("json") {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}

			fmt.Fprintf(out, "State:    %s\n", st.State)
			if st.Username == "" {
				return nil
			}
			fmt.Fprintf(out, "User:     %s\n", displayName(st.Username, st.Name))
			if st.Email != "" {
				fmt.Fprintf(out, "Email:    %s\n", st.Email)
			}
			if len(st.Roles) > 0 {
				fmt.Fprintf(out, "Roles:    %s\n", strings.Join(st.Roles, ", "))
			}
			if st.ExpiresAt != nil {
				fmt.Fprintf(out, "Expires:  %s\n", st.ExpiresAt.Local().Format(time.RFC1123))
			}
			return nil
		},
	}
}

func refreshCommand() *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "redeem the refresh token for a new access token",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, cleanup, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if _, err := a.Session.Refresh(ctx); err != nil {
				if errors.Is(err, session.ErrNoSession) {
					return errors.New("not logged in")
				}
				return fmt.Errorf("refresh failed, logged out: %w", err)
			}
			fmt.Fprintln(cmd.Root().Writer, "Token refreshed")
			return nil
		},
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "print a valid access token, refreshing it if it is about to expire",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, cleanup, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			tok, err := a.TokenSource(ctx).Token()
			if err != nil {
				if errors.Is(err, session.ErrNoSession) {
					return errors.New("not logged in")
				}
				return err
			}
			fmt.Fprintln(cmd.Root().Writer, tok.AccessToken)
			return nil
		},
	}
}
