// Package config loads the authkit CLI configuration from a YAML file, AUTHKIT_*
// environment variables and command line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	authkit "github.com/chimerakang/authkit-go"
	"github.com/chimerakang/authkit-go/idp/cognito"
	"github.com/chimerakang/authkit-go/idp/oidc"
)

// Version information, set at build time.
var (
	version = "dev"
	commit  = "none"
)

// VersionInfo returns a formatted version string.
func VersionInfo() string {
	return fmt.Sprintf("authkit version %s, commit %s", version, commit)
}

// EnvPrefix prefixes every environment variable, e.g. AUTHKIT_COGNITO_CLIENT_ID.
const EnvPrefix = "AUTHKIT"

// Identity provider kinds.
const (
	ProviderCognito = "cognito"
	ProviderOIDC    = "oidc"
)

// Store drivers.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

type Config struct {
	Provider string         `mapstructure:"provider" yaml:"provider"`
	Cognito  cognito.Config `mapstructure:"cognito" yaml:"cognito"`
	OIDC     oidc.Config    `mapstructure:"oidc" yaml:"oidc"`
	Backend  BackendConfig  `mapstructure:"backend" yaml:"backend"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Session  authkit.Config `mapstructure:"session" yaml:"session"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Audit    AuditConfig    `mapstructure:"audit" yaml:"audit"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

type BackendConfig struct {
	// BaseURL of the companion backend API. Empty disables backend-first flows
	// and federated sign-in.
	BaseURL string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type StoreConfig struct {
	Driver     string      `mapstructure:"driver" yaml:"driver"`
	Path       string      `mapstructure:"path" yaml:"path"`
	Passphrase string      `mapstructure:"passphrase" yaml:"-"`
	Salt       string      `mapstructure:"salt" yaml:"salt,omitempty"`
	Redis      RedisConfig `mapstructure:"redis" yaml:"redis"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr" yaml:"addr"`
	Password string        `mapstructure:"password" yaml:"-"`
	DB       int           `mapstructure:"db" yaml:"db"`
	Prefix   string        `mapstructure:"prefix" yaml:"prefix"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	OutputPath string `mapstructure:"output_path" yaml:"output_path,omitempty"`
}

type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path,omitempty"`
}

type MetricsConfig struct {
	// TextfilePath, when set, receives the run's metrics in the node_exporter
	// textfile format on exit.
	TextfilePath string `mapstructure:"textfile_path" yaml:"textfile_path,omitempty"`
}

// Dir returns the default directory for configuration and session state.
func Dir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "authkit")
	}
	return ".authkit"
}

func setDefaults(v *viper.Viper) {
	dir := Dir()
	defaults := map[string]any{
		"provider":                 ProviderCognito,
		"cognito.region":           "",
		"cognito.client_id":        "",
		"cognito.client_secret":    "",
		"cognito.endpoint":         "",
		"oidc.issuer":              "",
		"oidc.client_id":           "",
		"oidc.client_secret":       "",
		"oidc.scopes":              []string{},
		"oidc.verify_id_token":     true,
		"backend.base_url":         "",
		"backend.timeout":          15 * time.Second,
		"store.driver":             DriverFile,
		"store.path":               filepath.Join(dir, "session.json"),
		"store.passphrase":         "",
		"store.salt":               "",
		"store.redis.addr":         "localhost:6379",
		"store.redis.password":     "",
		"store.redis.db":           0,
		"store.redis.prefix":       "authkit:",
		"store.redis.ttl":          time.Duration(0),
		"session.expiry_buffer":    authkit.DefaultExpiryBuffer,
		"session.persist_attempts": authkit.DefaultPersistAttempts,
		"session.persist_backoff":  authkit.DefaultPersistBackoff,
		"logging.level":            "warn",
		"logging.format":           "console",
		"logging.output_path":      "",
		"audit.enabled":            false,
		"audit.path":               "",
		"metrics.textfile_path":    "",
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// Load reads configuration. path names an explicit YAML file; when empty,
// authkit.yaml is looked up in the working directory and in Dir(). A missing
// file is not an error. flags, when non-nil, are bound by their names
// (e.g. "store.driver").
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("authkit")
		v.AddConfigPath(".")
		v.AddConfigPath(Dir())
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the selected provider and store are fully configured.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderCognito:
		if c.Cognito.Region == "" || c.Cognito.ClientID == "" {
			return errors.New("cognito.region and cognito.client_id are required (AUTHKIT_COGNITO_REGION, AUTHKIT_COGNITO_CLIENT_ID)")
		}
	case ProviderOIDC:
		if c.OIDC.Issuer == "" || c.OIDC.ClientID == "" {
			return errors.New("oidc.issuer and oidc.client_id are required (AUTHKIT_OIDC_ISSUER, AUTHKIT_OIDC_CLIENT_ID)")
		}
	default:
		return fmt.Errorf("unknown provider %q (want %s or %s)", c.Provider, ProviderCognito, ProviderOIDC)
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverFile, DriverSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the %s driver", c.Store.Driver)
		}
		if c.Store.Passphrase == "" {
			return fmt.Errorf("store.passphrase is required for the %s driver (AUTHKIT_STORE_PASSPHRASE)", c.Store.Driver)
		}
	case DriverRedis:
		if c.Store.Redis.Addr == "" {
			return errors.New("store.redis.addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	return c.Session.WithDefaults().Validate()
}
