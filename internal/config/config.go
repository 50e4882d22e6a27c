// Package config loads the svcauth command's settings from a YAML file and
// SVCAUTH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/svcauth/go-svcauth/assertion"
)

// EnvPrefix prefixes every environment variable, e.g. SVCAUTH_PROJECT_ID or
// SVCAUTH_CREDENTIALS_FILE.
const EnvPrefix = "SVCAUTH"

// Config is the command's settings.
type Config struct {
	ProjectID    string        `mapstructure:"project_id"`
	PublicKeyURL string        `mapstructure:"public_key_url"`
	TokenURL     string        `mapstructure:"token_url"`
	Scopes       []string      `mapstructure:"scopes"`
	TokenTTL     time.Duration `mapstructure:"token_lifetime"`
	ExpiryMargin time.Duration `mapstructure:"expiry_margin"`
	ClockSkew    time.Duration `mapstructure:"clock_skew"`
	HTTPTimeout  time.Duration `mapstructure:"http_timeout"`

	Credentials Credentials `mapstructure:"credentials"`
	Redis       Redis       `mapstructure:"redis"`
	Log         Log         `mapstructure:"log"`
}

// Credentials names where the service-account certificate comes from. At
// most one field may be set.
type Credentials struct {
	File   string `mapstructure:"file"`
	Env    string `mapstructure:"env"`
	Secret string `mapstructure:"secret"`
}

// Redis enables the shared access-token store when Addr is set.
type Redis struct {
	Addr string `mapstructure:"addr"`
	Key  string `mapstructure:"key"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("project_id", "")
	v.SetDefault("public_key_url", "")
	v.SetDefault("token_url", "https://oauth2.googleapis.com/token")
	v.SetDefault("scopes", []string{"https://www.googleapis.com/auth/cloud-platform"})
	v.SetDefault("token_lifetime", time.Hour)
	v.SetDefault("expiry_margin", 5*time.Minute)
	v.SetDefault("clock_skew", time.Duration(0))
	v.SetDefault("http_timeout", 30*time.Second)

	v.SetDefault("credentials.file", "")
	v.SetDefault("credentials.env", "")
	v.SetDefault("credentials.secret", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.key", "svcauth:access-token")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// New returns a viper instance with defaults and environment binding set up.
// Flags may be bound to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path, when not empty, into v and decodes the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	if c.TokenURL == "" {
		return errors.New("token_url cannot be empty")
	}
	if len(c.Scopes) == 0 {
		return errors.New("scopes cannot be empty")
	}
	if err := assertion.ValidateLifetime(c.TokenTTL); err != nil {
		return fmt.Errorf("invalid token_lifetime %s: %w", c.TokenTTL, err)
	}
	if c.ExpiryMargin < 0 {
		return errors.New("expiry_margin cannot be negative")
	}
	if c.ClockSkew < 0 {
		return errors.New("clock_skew cannot be negative")
	}
	if c.HTTPTimeout <= 0 {
		return errors.New("http_timeout must be positive")
	}

	sources := 0
	for _, s := range []string{c.Credentials.File, c.Credentials.Env, c.Credentials.Secret} {
		if s != "" {
			sources++
		}
	}
	if sources > 1 {
		return errors.New("only one of credentials.file, credentials.env and credentials.secret may be set")
	}

	if c.Redis.Addr != "" && c.Redis.Key == "" {
		return errors.New("redis.key cannot be empty when redis.addr is set")
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// HasCredentials reports whether a certificate source is configured.
func (c *Config) HasCredentials() bool {
	return c.Credentials.File != "" || c.Credentials.Env != "" || c.Credentials.Secret != ""
}
