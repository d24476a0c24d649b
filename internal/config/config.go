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

package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jeremyhahn/go-passkey/pkg/passkey"
	"github.com/jeremyhahn/go-passkey/pkg/ratelimit"
	"github.com/jeremyhahn/go-passkey/pkg/storage/redis"
	"github.com/jeremyhahn/go-passkey/pkg/storage/sql"
	"gopkg.in/yaml.v3"
)

// Storage backend names.
const (
	StorageMemory = "memory"
	StorageFile   = "file"
	StorageRedis  = "redis"
	StorageSQL    = "sql"
)

// Audit sink names.
const (
	AuditSinkMemory = "memory"
	AuditSinkKafka  = "kafka"
)

// Config represents the complete server configuration
type Config struct {
	Server    ServerConfig     `yaml:"server" mapstructure:"server"`
	Logging   LoggingConfig    `yaml:"logging" mapstructure:"logging"`
	TLS       TLSConfig        `yaml:"tls" mapstructure:"tls"`
	Passkey   PasskeyConfig    `yaml:"passkey" mapstructure:"passkey"`
	Auth      AuthConfig       `yaml:"auth" mapstructure:"auth"`
	RateLimit ratelimit.Config `yaml:"ratelimit" mapstructure:"ratelimit"`
	Storage   StorageConfig    `yaml:"storage" mapstructure:"storage"`
	Audit     AuditConfig      `yaml:"audit" mapstructure:"audit"`
	Metrics   MetricsConfig    `yaml:"metrics" mapstructure:"metrics"`
	Health    HealthConfig     `yaml:"health" mapstructure:"health"`
}

// ServerConfig contains HTTP listener settings
type ServerConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`

	// CORSOrigins lists origins allowed to call the API from a browser.
	// Empty disables CORS headers.
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// PasskeyConfig is the relying party configuration.
type PasskeyConfig struct {
	passkey.Config `yaml:",inline" mapstructure:",squash"`

	// DefaultOrigin is used when a finish request carries neither Origin nor
	// Referer. Defaults to the first RP origin.
	DefaultOrigin string `yaml:"default_origin" mapstructure:"default_origin"`
}

// AuthConfig controls token issuance and request authentication
type AuthConfig struct {
	// JWTSecret signs and verifies session tokens.
	JWTSecret string        `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	JWTIssuer string        `yaml:"jwt_issuer" mapstructure:"jwt_issuer"`
	TokenTTL  time.Duration `yaml:"token_ttl" mapstructure:"token_ttl"`

	// APIKeys authenticate service callers such as maintenance jobs.
	APIKeys map[string]APIKeyConfig `yaml:"api_keys,omitempty" mapstructure:"api_keys"`
}

// APIKeyConfig represents an API key and its associated identity
type APIKeyConfig struct {
	Subject string   `yaml:"subject" mapstructure:"subject"`
	Roles   []string `yaml:"roles,omitempty" mapstructure:"roles"`
}

// StorageConfig selects and configures the user record backend
type StorageConfig struct {
	// Backend is memory, file, redis or sql.
	Backend string `yaml:"backend" mapstructure:"backend"`

	// Path is the root directory of the file backend.
	Path string `yaml:"path" mapstructure:"path"`

	Redis redis.Config `yaml:"redis" mapstructure:"redis"`
	SQL   sql.Config   `yaml:"sql" mapstructure:"sql"`
}

// AuditConfig controls the audit event sink
type AuditConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Sink is memory or kafka.
	Sink string `yaml:"sink" mapstructure:"sink"`

	// MaxEvents bounds the memory sink.
	MaxEvents int `yaml:"max_events" mapstructure:"max_events"`

	Kafka KafkaConfig `yaml:"kafka" mapstructure:"kafka"`
}

// KafkaConfig configures the Kafka audit sink
type KafkaConfig struct {
	Brokers  []string `yaml:"brokers" mapstructure:"brokers"`
	Topic    string   `yaml:"topic" mapstructure:"topic"`
	ClientID string   `yaml:"client_id" mapstructure:"client_id"`
}

// MetricsConfig controls metrics endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// HealthConfig controls the probe endpoints
type HealthConfig struct {
	// CheckTimeout bounds each readiness check.
	CheckTimeout time.Duration `yaml:"check_timeout" mapstructure:"check_timeout"`
}

// Default returns a configuration suitable for local development. The RP
// settings and JWT secret must still be supplied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Auth: AuthConfig{
			JWTIssuer: "go-passkey",
			TokenTTL:  passkey.DefaultTokenTTL,
		},
		RateLimit: ratelimit.Config{
			Enabled:           true,
			RequestsPerMinute: 60,
			Burst:             10,
		},
		Storage: StorageConfig{
			Backend: StorageMemory,
			Path:    "./data",
			Redis: redis.Config{
				Addr:   "localhost:6379",
				Prefix: redis.DefaultPrefix,
			},
			SQL: sql.Config{
				Driver: sql.DriverSQLite,
			},
		},
		Audit: AuditConfig{
			Sink:      AuditSinkMemory,
			MaxEvents: 10000,
			Kafka: KafkaConfig{
				Topic:    "passkey-audit",
				ClientID: "go-passkey",
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Health: HealthConfig{
			CheckTimeout: 5 * time.Second,
		},
	}
}

// Load reads configuration from a YAML file over the defaults and applies
// environment variable overrides. An empty path uses defaults and the
// environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		// #nosec G304 - Config file path is provided by admin/user
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies PASSKEY_* environment variables
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PASSKEY_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("PASSKEY_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 1 || port > 65535 {
			log.Printf("Warning: invalid PASSKEY_PORT value %q, using %d", v, cfg.Server.Port)
		} else {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("PASSKEY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PASSKEY_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if v := os.Getenv("PASSKEY_RP_ID"); v != "" {
		cfg.Passkey.RPID = v
	}
	if v := os.Getenv("PASSKEY_RP_NAME"); v != "" {
		cfg.Passkey.RPDisplayName = v
	}
	if v := os.Getenv("PASSKEY_RP_ORIGIN"); v != "" {
		cfg.Passkey.RPOrigins = splitList(v)
	}

	if v := os.Getenv("PASSKEY_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}

	if v := os.Getenv("PASSKEY_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("PASSKEY_DATA_DIR"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("PASSKEY_REDIS_ADDR"); v != "" {
		cfg.Storage.Redis.Addr = v
	}
	if v := os.Getenv("PASSKEY_REDIS_PASSWORD"); v != "" {
		cfg.Storage.Redis.Password = v
	}
	if v := os.Getenv("PASSKEY_SQL_DRIVER"); v != "" {
		cfg.Storage.SQL.Driver = v
	}
	if v := os.Getenv("PASSKEY_SQL_DSN"); v != "" {
		cfg.Storage.SQL.DSN = v
	}

	if v := os.Getenv("PASSKEY_KAFKA_BROKERS"); v != "" {
		cfg.Audit.Kafka.Brokers = splitList(v)
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	validFormats := map[string]bool{
		"json": true, "text": true, "console": true,
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json, text, or console)", c.Logging.Format)
	}

	if c.TLS.Enabled {
		if c.TLS.CertFile == "" {
			return fmt.Errorf("TLS cert_file is required when TLS is enabled")
		}
		if c.TLS.KeyFile == "" {
			return fmt.Errorf("TLS key_file is required when TLS is enabled")
		}
	}

	rp := c.Passkey.Config
	rp.SetDefaults()
	if err := rp.Validate(); err != nil {
		return fmt.Errorf("passkey: %w", err)
	}
	if c.Passkey.DefaultOrigin != "" {
		u, err := url.Parse(c.Passkey.DefaultOrigin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("passkey: invalid default_origin: %q", c.Passkey.DefaultOrigin)
		}
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth: jwt_secret is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth: jwt_secret must be at least 32 bytes")
	}
	if c.Auth.TokenTTL < 0 {
		return fmt.Errorf("auth: token_ttl cannot be negative")
	}
	for key, k := range c.Auth.APIKeys {
		if key == "" || k.Subject == "" {
			return fmt.Errorf("auth: api keys require a key and subject")
		}
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("ratelimit: requests_per_min must be positive when enabled")
	}

	switch c.Storage.Backend {
	case StorageMemory:
	case StorageFile:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage: path is required for the file backend")
		}
	case StorageRedis:
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("storage: redis addr is required")
		}
	case StorageSQL:
		switch c.Storage.SQL.Driver {
		case sql.DriverSQLite, sql.DriverSQLServer:
		default:
			return fmt.Errorf("storage: unsupported sql driver %q", c.Storage.SQL.Driver)
		}
		if c.Storage.SQL.DSN == "" {
			return fmt.Errorf("storage: sql dsn is required")
		}
	default:
		return fmt.Errorf("storage: unknown backend %q (must be memory, file, redis, or sql)", c.Storage.Backend)
	}

	if c.Audit.Enabled {
		switch c.Audit.Sink {
		case AuditSinkMemory:
		case AuditSinkKafka:
			if len(c.Audit.Kafka.Brokers) == 0 {
				return fmt.Errorf("audit: at least one kafka broker is required")
			}
			if c.Audit.Kafka.Topic == "" {
				return fmt.Errorf("audit: kafka topic is required")
			}
		default:
			return fmt.Errorf("audit: unknown sink %q (must be memory or kafka)", c.Audit.Sink)
		}
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics: path must start with /")
	}

	return nil
}

// RelyingParty returns the passkey configuration with defaults applied.
func (c *Config) RelyingParty() *passkey.Config {
	rp := c.Passkey.Config
	rp.RPOrigins = append([]string(nil), rp.RPOrigins...)
	rp.Transports = append([]string(nil), rp.Transports...)
	rp.SetDefaults()
	return &rp
}

// DefaultOrigin returns the configured fallback origin.
func (c *Config) DefaultOrigin() string {
	if c.Passkey.DefaultOrigin != "" {
		return c.Passkey.DefaultOrigin
	}
	return c.Passkey.Config.DefaultOrigin()
}
