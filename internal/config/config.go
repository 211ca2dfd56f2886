// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package config loads and validates the server configuration from a
// YAML file with PASSKEY_* environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-passkey/pkg/passkey"
)

// Config represents the complete server configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Database     DatabaseConfig     `yaml:"database" mapstructure:"database"`
	RelyingParty RelyingPartyConfig `yaml:"relying_party" mapstructure:"relying_party"`
	Token        TokenConfig        `yaml:"token" mapstructure:"token"`
	Challenge    ChallengeConfig    `yaml:"challenge" mapstructure:"challenge"`
	Logging      LoggingConfig      `yaml:"logging" mapstructure:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics" mapstructure:"metrics"`
	TLS          TLSConfig          `yaml:"tls" mapstructure:"tls"`
}

// ServerConfig contains HTTP listener settings.
type ServerConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// DatabaseConfig selects the persistence backend. An empty DSN selects
// the in-memory stores.
type DatabaseConfig struct {
	DSN string `yaml:"dsn" mapstructure:"dsn"`
}

// RelyingPartyConfig identifies the WebAuthn relying party and the
// ceremony preferences it advertises to clients.
type RelyingPartyConfig struct {
	ID               string   `yaml:"id" mapstructure:"id"`
	DisplayName      string   `yaml:"display_name" mapstructure:"display_name"`
	Origins          []string `yaml:"origins" mapstructure:"origins"`
	UserVerification string   `yaml:"user_verification" mapstructure:"user_verification"`
	ResidentKey      string   `yaml:"resident_key" mapstructure:"resident_key"`
	Attestation      string   `yaml:"attestation" mapstructure:"attestation"`
}

// TokenConfig controls session token issuance.
type TokenConfig struct {
	Secret string        `yaml:"secret" mapstructure:"secret"`
	TTL    time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// ChallengeConfig controls challenge issuance and expiry.
type ChallengeConfig struct {
	TTL           time.Duration `yaml:"ttl" mapstructure:"ttl"`
	Size          int           `yaml:"size" mapstructure:"size"`
	SweepInterval time.Duration `yaml:"sweep_interval" mapstructure:"sweep_interval"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// Load reads configuration from a YAML file and applies PASSKEY_*
// environment variable overrides. An empty path searches the standard
// locations; a missing file is only an error when a path was given
// explicitly.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/passkey")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PASSKEY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("relying_party.id", "localhost")
	v.SetDefault("relying_party.display_name", "Passkey Server")
	v.SetDefault("relying_party.origins", []string{"http://localhost:8080"})
	v.SetDefault("token.ttl", passkey.DefaultTokenTTL)
	v.SetDefault("challenge.ttl", 5*time.Minute)
	v.SetDefault("challenge.size", 32)
	v.SetDefault("challenge.sweep_interval", time.Minute)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.RelyingParty.ID == "" {
		return fmt.Errorf("relying party ID is required")
	}
	if len(c.RelyingParty.Origins) == 0 {
		return fmt.Errorf("at least one relying party origin is required")
	}
	if c.Token.Secret == "" {
		return fmt.Errorf("token secret is required")
	}
	if c.Token.TTL <= 0 {
		return fmt.Errorf("token ttl must be positive")
	}
	if c.Challenge.TTL <= 0 {
		return fmt.Errorf("challenge ttl must be positive")
	}
	if c.Challenge.SweepInterval <= 0 {
		return fmt.Errorf("challenge sweep interval must be positive")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level: %s", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format: %s", c.Logging.Format)
	}
	if c.TLS.Enabled {
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return fmt.Errorf("tls requires both cert_file and key_file")
		}
	}
	return nil
}

// PasskeyConfig maps the relying party and challenge sections onto the
// ceremony configuration.
func (c *Config) PasskeyConfig() passkey.Config {
	return passkey.Config{
		RPID:             c.RelyingParty.ID,
		RPDisplayName:    c.RelyingParty.DisplayName,
		RPOrigins:        c.RelyingParty.Origins,
		ChallengeTTL:     c.Challenge.TTL,
		ChallengeSize:    c.Challenge.Size,
		UserVerification: c.RelyingParty.UserVerification,
		ResidentKey:      c.RelyingParty.ResidentKey,
		Attestation:      c.RelyingParty.Attestation,
	}
}

// ListenAddr returns the host:port the server listens on.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// NewLogger builds an slog.Logger from the logging section.
func (c *Config) NewLogger() *slog.Logger {
	var level slog.Level
	switch c.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if c.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
