package commands

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/tokenward/internal/app"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

const fileConfig = `
log_level = "debug"

[provider]
base_url = "http://file.example:8080/"
realm = "file-realm"
client_id = "file-client"
password_grant = false

[storage]
type = "memory"
`

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := loadConfig(writeConfigFile(t, fileConfig), nil, func() []string { return nil })
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	if cfg.Provider.BaseURL != "http://file.example:8080/" || cfg.Provider.Realm != "file-realm" || cfg.Provider.ClientID != "file-client" {
		t.Errorf("provider = %+v", cfg.Provider)
	}
	if *cfg.Provider.PasswordGrant {
		t.Error("password_grant = true, want false from file")
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("log_level = %v, want debug", cfg.LogLevel)
	}
	if cfg.API.BaseURL != app.DefaultConfigAPIBaseURL {
		t.Errorf("api.base_url = %q, want default", cfg.API.BaseURL)
	}
}

func TestLoadConfigPrecedence(t *testing.T) {
	environ := func() []string {
		return []string{
			"TOKENWARD_PROVIDER__REALM=env-realm",
			"TOKENWARD_PROVIDER__CLIENT_ID=env-client",
			"TOKENWARD_PROVIDER__PASSWORD_GRANT=true",
			"UNRELATED=ignored",
		}
	}

	var cfg *app.Config
	cmd := &cli.Command{
		Name: "test",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "provider--client-id"},
			&cli.StringFlag{Name: "username"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			var err error
			cfg, err = loadConfig(writeConfigFile(t, fileConfig), cmd, environ)
			return err
		},
	}

	if err := cmd.Run(context.Background(), []string{"test", "--provider--client-id", "flag-client", "--username", "alice"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if cfg.Provider.BaseURL != "http://file.example:8080/" {
		t.Errorf("base_url = %q, want file value", cfg.Provider.BaseURL)
	}
	if cfg.Provider.Realm != "env-realm" {
		t.Errorf("realm = %q, want env value", cfg.Provider.Realm)
	}
	if cfg.Provider.ClientID != "flag-client" {
		t.Errorf("client_id = %q, want flag value", cfg.Provider.ClientID)
	}
	if !*cfg.Provider.PasswordGrant {
		t.Error("password_grant = false, want env override true")
	}
}

func TestLoadConfigMissingRequired(t *testing.T) {
	_, err := loadConfig("", nil, func() []string {
		return []string{"TOKENWARD_PROVIDER__BASE_URL=http://localhost:8080/"}
	})
	if !errors.Is(err, app.ErrConfiguration) {
		t.Errorf("loadConfig() error = %v, want ErrConfiguration", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "absent.toml"), nil, os.Environ); err == nil {
		t.Error("loadConfig() accepted a missing config file")
	}
}
