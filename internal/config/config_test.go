package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/koustreak/dbconnector/internal/errs"
	"github.com/koustreak/dbconnector/internal/store"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dbconnector.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("config", "", "")
	fs.String("addr", ":8000", "")
	fs.String("log-level", "info", "")
	fs.Bool("read-only", false, "")
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Addr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.CORSOrigins)
	assert.Equal(t, string(store.KindMemory), cfg.Store)
	assert.Equal(t, 30*time.Second, cfg.QueryTimeout)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 1000, cfg.MaxPageSize)
	assert.False(t, cfg.ReadOnly)
	assert.Empty(t, cfg.FileUsed)
	assert.False(t, cfg.ObjectStore().Enabled())
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
addr: ":9090"
log_format: console
store: sqlite
store_path: /var/lib/dbconnector/profiles.db
query_timeout: 5s
read_only: true
cors_origins:
  - https://app.example.com
objectstore_endpoint: minio:9000
objectstore_bucket: exports
objectstore_url_ttl: 1h
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.FileUsed)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, 5*time.Second, cfg.QueryTimeout)
	assert.True(t, cfg.ReadOnly)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.CORSOrigins)

	opts := cfg.StoreOptions()
	assert.Equal(t, store.KindSQLite, opts.Kind)
	assert.Equal(t, "/var/lib/dbconnector/profiles.db", opts.Path)

	fc := cfg.ObjectStore()
	assert.True(t, fc.Enabled())
	assert.Equal(t, "exports", fc.Bucket)
	assert.Equal(t, time.Hour, fc.URLTTL)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "addr: \":9090\"\nlog_level: warn\n")
	t.Setenv("DBCONNECTOR_ADDR", ":7070")
	t.Setenv("DBCONNECTOR_CORS_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Addr)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSOrigins)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("DBCONNECTOR_ADDR", ":7070")
	t.Setenv("DBCONNECTOR_LOG_LEVEL", "warn")

	fs := testFlags()
	require.NoError(t, fs.Parse([]string{"--addr", ":6060", "--read-only"}))

	cfg, err := Load("", fs)
	require.NoError(t, err)

	assert.Equal(t, ":6060", cfg.Addr)
	assert.True(t, cfg.ReadOnly)
	// Unchanged flags keep the env value.
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestLoad_InvalidValue(t *testing.T) {
	path := writeConfig(t, "store: redis\n")

	_, err := Load(path, nil)
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
	assert.Contains(t, err.Error(), `invalid store "redis"`)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{LogLevel: "info", LogFormat: "json", Store: "memory", MaxPageSize: 100}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad level", func(c *Config) { c.LogLevel = "trace" }, "invalid log_level"},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }, "invalid log_format"},
		{"sqlite without path", func(c *Config) { c.Store = "sqlite" }, "store_path is required"},
		{"sqlite with path", func(c *Config) { c.Store = "sqlite"; c.StorePath = "x.db" }, ""},
		{"zero page size", func(c *Config) { c.MaxPageSize = 0 }, "max_page_size must be positive"},
		{"negative timeout", func(c *Config) { c.QueryTimeout = -time.Second }, "timeouts must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
