package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/tokenward/internal/tokenstore"
)

// ErrConfiguration is returned when required settings are missing or invalid.
var ErrConfiguration = errors.New("configuration error")

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
	LogFormatOTel LogFormat = "otel"
)

// LogExporter represents where OpenTelemetry log records are sent.
type LogExporter string

const (
	LogExporterStdout   LogExporter = "stdout"
	LogExporterOTLPHTTP LogExporter = "otlp-http"
	LogExporterOTLPGRPC LogExporter = "otlp-grpc"
)

// StorageType represents the different backends supported for persisted credentials.
type StorageType string

const (
	StorageTypeKeyring StorageType = "keyring"
	StorageTypeFile    StorageType = "file"
	StorageTypeMemory  StorageType = "memory"
)

// RequestFormat is the wire encoding of provider grant requests.
type RequestFormat string

const (
	RequestFormatForm RequestFormat = "form"
	RequestFormatJSON RequestFormat = "json"
)

// Default configuration values
const (
	DefaultConfigLogFormat       = LogFormatText
	DefaultConfigLogExporter     = LogExporterStdout
	DefaultConfigRequestFormat   = RequestFormatForm
	DefaultConfigProviderTimeout = 30 * time.Second
	DefaultConfigAPIBaseURL      = "http://localhost:3000"
	DefaultConfigAPITimeout      = 30 * time.Second
	DefaultConfigStorage         = StorageTypeKeyring
	DefaultConfigKeyringService  = "tokenward"
)

// ProviderConfig describes the identity provider and the client registered with it.
type ProviderConfig struct {
	BaseURL  string `json:"base_url" validate:"required,url"`
	Realm    string `json:"realm" validate:"required"`
	ClientID string `json:"client_id" validate:"required"`

	// PasswordGrant enables the resource owner password credentials grant (defaults to true).
	PasswordGrant *bool `json:"password_grant" validate:"required"`

	// Discovery reads endpoints from the realm's OpenID configuration instead of deriving them.
	Discovery     bool          `json:"discovery"`
	RequestFormat RequestFormat `json:"request_format" validate:"oneof=form json"`
	Timeout       time.Duration `json:"timeout" validate:"gte=0"`
	Scopes        []string      `json:"scopes,omitempty"`
}

// APIConfig holds application API configuration.
type APIConfig struct {
	BaseURL string        `json:"base_url" validate:"required,url"`
	Timeout time.Duration `json:"timeout" validate:"gte=0"`
}

// StorageConfig describes where credentials are persisted.
type StorageConfig struct {
	Type StorageType `json:"type" validate:"required,oneof=keyring file memory"`

	// Storage-specific settings (mutually exclusive based on Type)
	File           string `json:"file,omitempty"`            // For file storage: path to the credentials file
	KeyringService string `json:"keyring_service,omitempty"` // For keyring storage: service name
}

// LoginConfig holds settings of the browser login flow.
type LoginConfig struct {
	// CallbackPort binds the redirect listener; zero picks a free port. Providers that
	// require an exact redirect URI need a fixed port.
	CallbackPort uint16 `json:"callback_port"`
	// NoBrowser only prints the authorization URL.
	NoBrowser bool `json:"no_browser"`
}

// NewStore creates the Store described by the storage configuration.
func (s *StorageConfig) NewStore() (tokenstore.Store, error) {
	switch s.Type {
	case StorageTypeKeyring:
		return tokenstore.NewKeyringStore(s.KeyringService)
	case StorageTypeFile:
		return tokenstore.NewFileStore(s.File)
	case StorageTypeMemory:
		return tokenstore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", s.Type)
	}
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel    slog.Level     `json:"log_level"`
	LogFormat   LogFormat      `json:"log_format" validate:"oneof=text json otel"`
	LogExporter LogExporter    `json:"log_exporter" validate:"oneof=stdout otlp-http otlp-grpc"`
	Provider    ProviderConfig `json:"provider"`
	API         APIConfig      `json:"api"`
	Storage     StorageConfig  `json:"storage"`
	Login       LoginConfig    `json:"login"`
}

// ApplyDefaults fills unset config fields with defaults. Provider location and client id
// have none.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.LogExporter == "" {
		c.LogExporter = DefaultConfigLogExporter
	}
	if c.Provider.PasswordGrant == nil {
		enabled := true
		c.Provider.PasswordGrant = &enabled
	}
	if c.Provider.RequestFormat == "" {
		c.Provider.RequestFormat = DefaultConfigRequestFormat
	}
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = DefaultConfigProviderTimeout
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultConfigAPIBaseURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultConfigAPITimeout
	}
	if c.Storage.Type == "" {
		c.Storage.Type = DefaultConfigStorage
	}

	// Dynamic defaults based on storage type
	switch c.Storage.Type {
	case StorageTypeFile:
		if c.Storage.File == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("storage.file required (auto-detect failed: %w)", err)
			}
			c.Storage.File = filepath.Join(configDir, "tokenward", "credentials.json")
		}
	case StorageTypeKeyring:
		if c.Storage.KeyringService == "" {
			c.Storage.KeyringService = DefaultConfigKeyringService
		}
	case StorageTypeMemory:
		// nothing to configure
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
// Every failure wraps ErrConfiguration.
func (c *Config) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]error, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Errorf("%s: failed %q", configKey(fe.Namespace()), fe.Tag()))
			}
			return fmt.Errorf("%w: %w", ErrConfiguration, errors.Join(fields...))
		}
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	switch c.Storage.Type {
	case StorageTypeFile:
		if c.Storage.File == "" {
			return fmt.Errorf("%w: file path required for file storage", ErrConfiguration)
		}
	case StorageTypeKeyring:
		if c.Storage.KeyringService == "" {
			return fmt.Errorf("%w: keyring_service required for keyring storage", ErrConfiguration)
		}
	}

	return nil
}

// newValidator reports fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// configKey turns a validator namespace like "Config.provider.base_url" into the config key.
func configKey(namespace string) string {
	_, key, found := strings.Cut(namespace, ".")
	if !found {
		return namespace
	}
	return key
}
