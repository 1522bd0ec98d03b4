// Package config loads dbconnector settings.
//
// Sources are layered with koanf, lowest precedence first: built-in
// defaults, the YAML file, DBCONNECTOR_* environment variables, then
// command-line flags that were explicitly set.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/koustreak/dbconnector/internal/errs"
	"github.com/koustreak/dbconnector/internal/filestore"
	"github.com/koustreak/dbconnector/internal/store"
	"github.com/spf13/pflag"
)

// EnvPrefix namespaces environment overrides: DBCONNECTOR_LOG_LEVEL -> log_level.
const EnvPrefix = "DBCONNECTOR_"

// DefaultFile is read from the working directory when --config is not given.
const DefaultFile = "dbconnector.yaml"

// Config is the fully resolved process configuration.
type Config struct {
	Addr        string   `koanf:"addr"`
	LogLevel    string   `koanf:"log_level"`
	LogFormat   string   `koanf:"log_format"`
	CORSOrigins []string `koanf:"cors_origins"`

	Store       string `koanf:"store"`
	StorePath   string `koanf:"store_path"`
	StoreSecret string `koanf:"store_secret"`

	ConnectionsFile string `koanf:"connections_file"`

	QueryTimeout   time.Duration `koanf:"query_timeout"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
	ReadOnly       bool          `koanf:"read_only"`
	MaxPageSize    int           `koanf:"max_page_size"`

	ObjectStoreEndpoint  string        `koanf:"objectstore_endpoint"`
	ObjectStoreAccessKey string        `koanf:"objectstore_access_key"`
	ObjectStoreSecretKey string        `koanf:"objectstore_secret_key"`
	ObjectStoreUseSSL    bool          `koanf:"objectstore_use_ssl"`
	ObjectStoreBucket    string        `koanf:"objectstore_bucket"`
	ObjectStoreURLTTL    time.Duration `koanf:"objectstore_url_ttl"`

	// FileUsed is the config file that was read, if any.
	FileUsed string `koanf:"-"`
}

// Defaults returns the built-in values for every key.
func Defaults() map[string]any {
	return map[string]any{
		"addr":                ":8000",
		"log_level":           "info",
		"log_format":          "json",
		"cors_origins":        []string{"http://localhost:3000", "http://localhost:5173"},
		"store":               string(store.KindMemory),
		"store_path":          "dbconnector.db",
		"query_timeout":       "30s",
		"connect_timeout":     "10s",
		"read_only":           false,
		"max_page_size":       1000,
		"objectstore_bucket":  "dbconnector-exports",
		"objectstore_url_ttl": filestore.DefaultURLTTL.String(),
	}
}

// Load resolves the configuration. cfgFile may be empty, in which case
// DefaultFile is used if it exists. flags may be nil.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	used := findConfigFile(cfgFile)
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, fmt.Sprintf("error reading config file %s", used), err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed || f.Name == "config" {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "unable to decode config", err)
	}
	cfg.FileUsed = used
	cfg.CORSOrigins = splitOrigins(cfg.CORSOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// findConfigFile returns explicit when set, otherwise DefaultFile if present.
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat(DefaultFile); err == nil {
		return DefaultFile
	}
	return ""
}

// splitOrigins accepts comma-separated entries so that
// DBCONNECTOR_CORS_ORIGINS="a,b" works like a YAML list.
func splitOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				out = append(out, o)
			}
		}
	}
	return out
}

// Validate checks enum-valued keys and numeric bounds.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errs.Newf(errs.ErrKindInvalidInput, "invalid log_level %q: must be debug, info, warn or error", c.LogLevel)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return errs.Newf(errs.ErrKindInvalidInput, "invalid log_format %q: must be json or console", c.LogFormat)
	}
	switch store.Kind(c.Store) {
	case store.KindMemory:
	case store.KindSQLite:
		if c.StorePath == "" {
			return errs.New(errs.ErrKindInvalidInput, "store_path is required when store is sqlite")
		}
	default:
		return errs.Newf(errs.ErrKindInvalidInput, "invalid store %q: must be memory or sqlite", c.Store)
	}
	if c.MaxPageSize < 1 {
		return errs.Newf(errs.ErrKindInvalidInput, "max_page_size must be positive, got %d", c.MaxPageSize)
	}
	if c.QueryTimeout < 0 || c.ConnectTimeout < 0 {
		return errs.New(errs.ErrKindInvalidInput, "timeouts must not be negative")
	}
	return nil
}

// StoreOptions returns the profile store settings.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Kind:   store.Kind(c.Store),
		Path:   c.StorePath,
		Secret: c.StoreSecret,
	}
}

// ObjectStore returns the export archive settings. The result is not
// Enabled when no endpoint is configured.
func (c *Config) ObjectStore() *filestore.Config {
	fc := filestore.DefaultConfig(c.ObjectStoreEndpoint, c.ObjectStoreAccessKey, c.ObjectStoreSecretKey)
	fc.UseSSL = c.ObjectStoreUseSSL
	if c.ObjectStoreBucket != "" {
		fc.Bucket = c.ObjectStoreBucket
	}
	if c.ObjectStoreURLTTL > 0 {
		fc.URLTTL = c.ObjectStoreURLTTL
	}
	return fc
}
