// Package config loads relay settings from relay.toml and RELAY_* variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	EnvPrefix  = "RELAY"
	configName = "relay"
	configType = "toml"
	configDir  = ".config/editor-relay"
	dataDir    = ".local/share/editor-relay"
)

const (
	StoreMemory = "memory"
	StoreTOML   = "toml"
	StoreSQLite = "sqlite"
)

const (
	KeyListen        = "server.listen"
	KeyWaitTimeout   = "server.wait_timeout"
	KeyIdleTimeout   = "server.idle_timeout"
	KeySweepInterval = "server.sweep_interval"
	KeyMaxBodyBytes  = "server.max_body_bytes"
	KeyShutdownGrace = "server.shutdown_grace"
	KeyStoreDriver   = "store.driver"
	KeyStorePath     = "store.path"
	KeyLogLevel      = "log.level"
	KeyOTelEndpoint  = "otel.endpoint"
	KeyOTelEnabled   = "otel.enabled"
	KeyClientBaseURL = "client.base_url"
	KeyEditorURL     = "client.editor_url"
)

type Config struct {
	Server ServerConfig
	Store  StoreConfig
	Log    LogConfig
	OTel   OTelConfig
	Client ClientConfig
	// File is the config file that was read, empty when none was found.
	File string
}

type ServerConfig struct {
	Listen        string
	WaitTimeout   time.Duration
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	MaxBodyBytes  int64
	ShutdownGrace time.Duration
}

type StoreConfig struct {
	Driver string
	Path   string
}

type LogConfig struct {
	Level slog.Level
}

type OTelConfig struct {
	Endpoint string
	Enabled  bool
}

type ClientConfig struct {
	BaseURL   string
	EditorURL string
}

// New returns a viper instance with defaults, env binding and the config
// search path in place.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath(".")
	if homeDir, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(homeDir, configDir))
	}

	return v
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyListen, ":8787")
	v.SetDefault(KeyWaitTimeout, 25*time.Second)
	v.SetDefault(KeyIdleTimeout, 30*time.Minute)
	v.SetDefault(KeySweepInterval, time.Minute)
	v.SetDefault(KeyMaxBodyBytes, int64(1<<20))
	v.SetDefault(KeyShutdownGrace, 30*time.Second)
	v.SetDefault(KeyStoreDriver, StoreMemory)
	v.SetDefault(KeyStorePath, "")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyOTelEndpoint, "")
	v.SetDefault(KeyOTelEnabled, true)
	v.SetDefault(KeyClientBaseURL, "http://localhost:8787")
	v.SetDefault(KeyEditorURL, "")
}

// Load reads the config file, explicitly named or found on the search path,
// and returns the validated settings. A missing file on the search path is
// not an error.
func Load(v *viper.Viper, file string) (Config, error) {
	if v == nil {
		v = New()
	}

	if file != "" {
		v.SetConfigFile(file)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Config{
		Server: ServerConfig{
			Listen:        v.GetString(KeyListen),
			WaitTimeout:   v.GetDuration(KeyWaitTimeout),
			IdleTimeout:   v.GetDuration(KeyIdleTimeout),
			SweepInterval: v.GetDuration(KeySweepInterval),
			MaxBodyBytes:  v.GetInt64(KeyMaxBodyBytes),
			ShutdownGrace: v.GetDuration(KeyShutdownGrace),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(strings.TrimSpace(v.GetString(KeyStoreDriver))),
			Path:   strings.TrimSpace(v.GetString(KeyStorePath)),
		},
		OTel: OTelConfig{
			Endpoint: strings.TrimSpace(v.GetString(KeyOTelEndpoint)),
			Enabled:  v.GetBool(KeyOTelEnabled),
		},
		Client: ClientConfig{
			BaseURL:   strings.TrimSpace(v.GetString(KeyClientBaseURL)),
			EditorURL: strings.TrimSpace(v.GetString(KeyEditorURL)),
		},
		File: v.ConfigFileUsed(),
	}

	if err := cfg.Log.Level.UnmarshalText([]byte(v.GetString(KeyLogLevel))); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", KeyLogLevel, err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	if err := cfg.Store.resolvePath(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	if c.Server.Listen == "" {
		errs = append(errs, fmt.Errorf("%s is required", KeyListen))
	}
	if c.Server.WaitTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeyWaitTimeout))
	}
	if c.Server.IdleTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeyIdleTimeout))
	}
	if c.Server.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeySweepInterval))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeyMaxBodyBytes))
	}
	if c.Server.ShutdownGrace < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", KeyShutdownGrace))
	}

	switch c.Store.Driver {
	case StoreMemory, StoreTOML, StoreSQLite:
	default:
		errs = append(errs, fmt.Errorf("%s: unknown driver %q", KeyStoreDriver, c.Store.Driver))
	}

	return errors.Join(errs...)
}

// resolvePath fills in the per-driver default data file.
func (s *StoreConfig) resolvePath() error {
	if s.Path != "" || s.Driver == StoreMemory {
		return nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolve home directory: %w", err)
	}

	switch s.Driver {
	case StoreTOML:
		s.Path = filepath.Join(homeDir, dataDir, "sessions.toml")
	case StoreSQLite:
		s.Path = filepath.Join(homeDir, dataDir, "sessions.db")
	}
	return nil
}

// EditorLink returns the browser editor URL for id, or "" when no editor URL
// is configured. A "{id}" placeholder is replaced; otherwise the id becomes
// the URL fragment, which is where the editor page looks for it.
func (c ClientConfig) EditorLink(id string) string {
	if c.EditorURL == "" {
		return ""
	}
	if strings.Contains(c.EditorURL, "{id}") {
		return strings.ReplaceAll(c.EditorURL, "{id}", id)
	}

	base, _, _ := strings.Cut(c.EditorURL, "#")
	return base + "#" + id
}
