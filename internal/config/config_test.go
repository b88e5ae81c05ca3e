package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "relay.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, ":8787", cfg.Server.Listen)
	assert.Equal(t, 25*time.Second, cfg.Server.WaitTimeout)
	assert.Equal(t, 30*time.Minute, cfg.Server.IdleTimeout)
	assert.Equal(t, time.Minute, cfg.Server.SweepInterval)
	assert.Equal(t, int64(1<<20), cfg.Server.MaxBodyBytes)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownGrace)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Empty(t, cfg.Store.Path)
	assert.Equal(t, slog.LevelInfo, cfg.Log.Level)
	assert.Empty(t, cfg.OTel.Endpoint)
	assert.Equal(t, "http://localhost:8787", cfg.Client.BaseURL)
	assert.Empty(t, cfg.File)
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	path := writeConfig(t, `
[server]
listen = "127.0.0.1:9000"
wait_timeout = "5s"
idle_timeout = "10m"

[store]
driver = "sqlite"
path = "/tmp/relay-sessions.db"

[log]
level = "debug"

[client]
editor_url = "https://editor.example.com/"
`)

	cfg, err := Load(New(), path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Listen)
	assert.Equal(t, 5*time.Second, cfg.Server.WaitTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Server.IdleTimeout)
	assert.Equal(t, StoreSQLite, cfg.Store.Driver)
	assert.Equal(t, "/tmp/relay-sessions.db", cfg.Store.Path)
	assert.Equal(t, slog.LevelDebug, cfg.Log.Level)
	assert.Equal(t, "https://editor.example.com/", cfg.Client.EditorURL)
	assert.Equal(t, path, cfg.File)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("RELAY_SERVER_LISTEN", ":7000")
	t.Setenv("RELAY_STORE_DRIVER", "TOML")
	t.Setenv("RELAY_OTEL_ENDPOINT", "http://collector:4318")

	path := writeConfig(t, `
[server]
listen = ":9000"
`)

	cfg, err := Load(New(), path)
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.Listen)
	assert.Equal(t, StoreTOML, cfg.Store.Driver)
	assert.Equal(t, "http://collector:4318", cfg.OTel.Endpoint)
	assert.True(t, cfg.OTel.Enabled)
}

func TestDefaultStorePathPerDriver(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := []struct {
		driver string
		want   string
	}{
		{driver: StoreTOML, want: filepath.Join(home, ".local/share/editor-relay", "sessions.toml")},
		{driver: StoreSQLite, want: filepath.Join(home, ".local/share/editor-relay", "sessions.db")},
		{driver: StoreMemory, want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.driver, func(t *testing.T) {
			v := New()
			v.Set(KeyStoreDriver, tc.driver)

			cfg, err := Load(v, "")
			require.NoError(t, err)
			assert.Equal(t, tc.want, cfg.Store.Path)
		})
	}
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	tests := []struct {
		name    string
		key     string
		value   any
		wantErr string
	}{
		{name: "unknown driver", key: KeyStoreDriver, value: "redis", wantErr: "unknown driver"},
		{name: "bad log level", key: KeyLogLevel, value: "loud", wantErr: KeyLogLevel},
		{name: "zero wait timeout", key: KeyWaitTimeout, value: "0s", wantErr: KeyWaitTimeout},
		{name: "negative body cap", key: KeyMaxBodyBytes, value: -1, wantErr: KeyMaxBodyBytes},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := New()
			v.Set(tc.key, tc.value)

			_, err := Load(v, "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadFailsOnMissingExplicitFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	_, err := Load(New(), filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestEditorLink(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		editorURL string
		want      string
	}{
		{name: "not configured", editorURL: "", want: ""},
		{name: "fragment", editorURL: "https://editor.example.com/", want: "https://editor.example.com/#abc12345"},
		{name: "replaces fragment", editorURL: "https://editor.example.com/#old", want: "https://editor.example.com/#abc12345"},
		{name: "placeholder", editorURL: "https://editor.example.com/s/{id}", want: "https://editor.example.com/s/abc12345"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, ClientConfig{EditorURL: tc.editorURL}.EditorLink("abc12345"))
		})
	}
}
