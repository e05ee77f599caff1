// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Collabdoc Contributors

// Package config loads the service configuration from defaults, an optional
// YAML file, a .env file, the environment and command flags.
package config

import (
	"time"

	"github.com/samber/oops"

	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/auth"
	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/logging"
	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/ratelimit"
)

// Defaults for values that have one.
const (
	DefaultListen       = ":5000"
	DefaultMetricsAddr  = "127.0.0.1:9100"
	DefaultIssuer       = "collabdoc"
	DefaultLogFormat    = "json"
	DefaultLogLevel     = "info"
	DefaultLoginLimit   = "10/1m"
	DefaultResetLimit   = "5/15m"
	DefaultDBMaxConns   = 10
	DefaultShutdownWait = 10 * time.Second
)

const redacted = "[redacted]"

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server" yaml:"server"`
	Database  DatabaseConfig  `koanf:"database" yaml:"database"`
	Auth      AuthConfig      `koanf:"auth" yaml:"auth"`
	Log       LogConfig       `koanf:"log" yaml:"log"`
	RateLimit RateLimitConfig `koanf:"rate_limit" yaml:"rate_limit"`
}

// ServerConfig covers the listeners.
type ServerConfig struct {
	Listen          string        `koanf:"listen" yaml:"listen"`
	MetricsAddr     string        `koanf:"metrics_addr" yaml:"metrics_addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`

	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Enable only behind a proxy that sets those headers.
	TrustProxy bool `koanf:"trust_proxy" yaml:"trust_proxy"`
}

// DatabaseConfig covers the PostgreSQL pool.
type DatabaseConfig struct {
	URL         string `koanf:"url" yaml:"url"`
	MaxConns    int32  `koanf:"max_conns" yaml:"max_conns"`
	AutoMigrate bool   `koanf:"auto_migrate" yaml:"auto_migrate"`
}

// AuthConfig covers token signing, password policy and password reset.
type AuthConfig struct {
	AccessSecret      string        `koanf:"access_secret" yaml:"access_secret"`
	RefreshSecret     string        `koanf:"refresh_secret" yaml:"refresh_secret"`
	AccessTTL         time.Duration `koanf:"access_ttl" yaml:"access_ttl"`
	RefreshTTL        time.Duration `koanf:"refresh_ttl" yaml:"refresh_ttl"`
	Issuer            string        `koanf:"issuer" yaml:"issuer"`
	MinPasswordLength int           `koanf:"min_password_length" yaml:"min_password_length"`
	ResetTTL          time.Duration `koanf:"reset_ttl" yaml:"reset_ttl"`
	ResetURLBase      string        `koanf:"reset_url_base" yaml:"reset_url_base"`
}

// LogConfig selects the log output.
type LogConfig struct {
	Format string `koanf:"format" yaml:"format"`
	Level  string `koanf:"level" yaml:"level"`
}

// RateLimitConfig covers throttling of login and password reset.
type RateLimitConfig struct {
	RedisURL string `koanf:"redis_url" yaml:"redis_url"`
	Login    string `koanf:"login" yaml:"login"`
	Reset    string `koanf:"reset" yaml:"reset"`
	FailOpen bool   `koanf:"fail_open" yaml:"fail_open"`
}

// Defaults returns the built-in configuration. Secrets and the database URL
// have no default.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Listen:          DefaultListen,
			MetricsAddr:     DefaultMetricsAddr,
			ShutdownTimeout: DefaultShutdownWait,
		},
		Database: DatabaseConfig{MaxConns: DefaultDBMaxConns},
		Auth: AuthConfig{
			AccessTTL:         auth.DefaultAccessTTL,
			RefreshTTL:        auth.DefaultRefreshTTL,
			Issuer:            DefaultIssuer,
			MinPasswordLength: auth.DefaultMinPasswordLength,
			ResetTTL:          auth.DefaultResetTTL,
		},
		Log: LogConfig{Format: DefaultLogFormat, Level: DefaultLogLevel},
		RateLimit: RateLimitConfig{
			Login:    DefaultLoginLimit,
			Reset:    DefaultResetLimit,
			FailOpen: true,
		},
	}
}

// Validate checks everything the server needs before it starts.
func (c *Config) Validate() error {
	if err := c.TokenConfig().Validate(); err != nil {
		return oops.Code("CONFIG_INVALID").With("section", "auth").Wrap(err)
	}
	if c.Auth.MinPasswordLength < 1 {
		return invalid("auth", "auth.min_password_length must be at least 1")
	}
	if c.Auth.ResetTTL <= 0 {
		return invalid("auth", "auth.reset_ttl must be positive")
	}
	if c.Server.Listen == "" {
		return invalid("server", "server.listen is required")
	}
	if c.Database.URL == "" {
		return invalid("database", "database.url is required")
	}
	if c.Database.MaxConns < 0 {
		return invalid("database", "database.max_conns must not be negative")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return invalid("log", "log.format must be json or text")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return oops.Code("CONFIG_INVALID").With("section", "log").Wrap(err)
	}
	if _, err := c.LoginPolicy(); err != nil {
		return oops.Code("CONFIG_INVALID").With("section", "rate_limit").Wrap(err)
	}
	if _, err := c.ResetLimitPolicy(); err != nil {
		return oops.Code("CONFIG_INVALID").With("section", "rate_limit").Wrap(err)
	}
	return nil
}

func invalid(section, msg string) error {
	return oops.Code("CONFIG_INVALID").With("section", section).Errorf("%s", msg)
}

// TokenConfig returns the signing configuration for auth.NewTokenIssuer.
func (c *Config) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		AccessSecret:  c.Auth.AccessSecret,
		RefreshSecret: c.Auth.RefreshSecret,
		AccessTTL:     c.Auth.AccessTTL,
		RefreshTTL:    c.Auth.RefreshTTL,
		Issuer:        c.Auth.Issuer,
	}
}

// ResetPolicy returns the password reset policy.
func (c *Config) ResetPolicy() auth.ResetPolicy {
	return auth.ResetPolicy{
		TTL:               c.Auth.ResetTTL,
		MinPasswordLength: c.Auth.MinPasswordLength,
		URLBase:           c.Auth.ResetURLBase,
	}
}

// LoginPolicy is the per-client budget for POST /login.
func (c *Config) LoginPolicy() (ratelimit.Policy, error) {
	return ratelimit.ParsePolicy(c.RateLimit.Login)
}

// ResetLimitPolicy is the per-client budget for the password reset routes.
func (c *Config) ResetLimitPolicy() (ratelimit.Policy, error) {
	return ratelimit.ParsePolicy(c.RateLimit.Reset)
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.Auth.AccessSecret != "" {
		c.Auth.AccessSecret = redacted
	}
	if c.Auth.RefreshSecret != "" {
		c.Auth.RefreshSecret = redacted
	}
	c.Database.URL = redactURL(c.Database.URL)
	c.RateLimit.RedisURL = redactURL(c.RateLimit.RedisURL)
	return c
}
