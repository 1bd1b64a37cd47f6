package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/tokenward/internal/app"
	"github.com/florianilch/tokenward/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	cmd := newRootCommand()
	cmd.Writer = os.Stdout
	cmd.ErrWriter = os.Stderr
	cmd.Reader = os.Stdin
	return cmd.Run(ctx, args)
}

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "tokenward",
		Usage: "OAuth2 session manager for the customer app",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json|otel)",
			},
			&cli.StringFlag{
				Name:  "log-exporter",
				Usage: "OpenTelemetry log exporter (stdout|otlp-http|otlp-grpc)",
			},
			&cli.StringFlag{
				Name:  "provider--base-url",
				Usage: "identity provider base URL",
			},
			&cli.StringFlag{
				Name:  "provider--realm",
				Usage: "identity provider realm",
			},
			&cli.StringFlag{
				Name:  "provider--client-id",
				Usage: "OAuth2 client id",
			},
			&cli.BoolFlag{
				Name:  "provider--discovery",
				Usage: "discover endpoints from the realm's OpenID configuration",
			},
			&cli.StringFlag{
				Name:  "api--base-url",
				Usage: "application API base URL",
			},
			&cli.StringFlag{
				Name:  "storage--type",
				Usage: "credential storage (keyring|file|memory)",
			},
			&cli.StringFlag{
				Name:  "storage--file",
				Usage: "credential file for file storage",
			},
		},
		Commands: []*cli.Command{
			loginCommand(),
			logoutCommand(),
			statusCommand(),
			refreshCommand(),
			tokenCommand(),
			requestCommand(),
			routeCommand(),
			languageCommand(),
		},
	}
}

// setup loads configuration, installs logging and restores the session.
// The returned function flushes logs and must be called when the command ends.
func setup(ctx context.Context, cmd *cli.Command, opts ...app.Option) (*app.App, func(), error) {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	shutdown, err := observability.Instrument(ctx, observability.Config{
		Level:    cfg.LogLevel,
		Format:   observability.Format(cfg.LogFormat),
		Exporter: observability.Exporter(cfg.LogExporter),
		Output:   cmd.Root().ErrWriter,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}
	cleanup := func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			fmt.Fprintln(cmd.Root().ErrWriter, "failed to flush logs:", err)
		}
	}

	application, err := app.New(ctx, cfg, opts...)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to create app: %w", err)
	}

	application.Start(ctx)
	return application, cleanup, nil
}
