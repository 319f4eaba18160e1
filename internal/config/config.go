package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/rpggio/geoquest/internal/geo"
	"github.com/rpggio/geoquest/internal/repository"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GEOQUEST_"

// Config defines server configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" toml:"server" envPrefix:"SERVER_"`
	Transport  TransportConfig  `yaml:"transport" toml:"transport" envPrefix:"TRANSPORT_"`
	DB         DBConfig         `yaml:"db" toml:"db" envPrefix:"DB_"`
	Log        LogConfig        `yaml:"log" toml:"log" envPrefix:"LOG_"`
	Geo        GeoConfig        `yaml:"geo" toml:"geo" envPrefix:"GEO_"`
	Proximity  ProximityConfig  `yaml:"proximity" toml:"proximity" envPrefix:"PROXIMITY_"`
	Assignment AssignmentConfig `yaml:"assignment" toml:"assignment" envPrefix:"ASSIGNMENT_"`
	Ledger     LedgerConfig     `yaml:"ledger" toml:"ledger" envPrefix:"LEDGER_"`
	Auth       AuthConfig       `yaml:"auth" toml:"auth" envPrefix:"AUTH_"`
	Notify     NotifyConfig     `yaml:"notify" toml:"notify" envPrefix:"NOTIFY_"`
	MCP        MCPConfig        `yaml:"mcp" toml:"mcp" envPrefix:"MCP_"`
}

type ServerConfig struct {
	Host              string `yaml:"host" toml:"host" env:"HOST"`
	Port              int    `yaml:"port" toml:"port" env:"PORT"`
	ShutdownTimeoutMs int    `yaml:"shutdown_timeout_ms" toml:"shutdown_timeout_ms" env:"SHUTDOWN_TIMEOUT_MS"`
}

// TransportConfig selects how the MCP surface is served: "http" runs the
// REST API with MCP mounted at /mcp, "stdio" serves MCP over stdin/stdout.
type TransportConfig struct {
	Mode string `yaml:"mode" toml:"mode" env:"MODE"`
}

type DBConfig struct {
	Driver string `yaml:"driver" toml:"driver" env:"DRIVER"`
	Path   string `yaml:"path" toml:"path" env:"PATH"`
	DSN    string `yaml:"dsn" toml:"dsn" env:"DSN"`
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level" env:"LEVEL"`
	Format string `yaml:"format" toml:"format" env:"FORMAT"`
	// Path, when set, sends logs to a size-capped file instead of the console.
	Path string `yaml:"path" toml:"path" env:"PATH"`
}

type GeoConfig struct {
	Precision int `yaml:"precision" toml:"precision" env:"PRECISION"`
}

type ProximityConfig struct {
	DefaultRadiusMeters float64 `yaml:"default_radius_meters" toml:"default_radius_meters" env:"DEFAULT_RADIUS_METERS"`
	MaxRadiusMeters     float64 `yaml:"max_radius_meters" toml:"max_radius_meters" env:"MAX_RADIUS_METERS"`
	TriggerMeters       float64 `yaml:"trigger_meters" toml:"trigger_meters" env:"TRIGGER_METERS"`
	HubBuffer           int     `yaml:"hub_buffer" toml:"hub_buffer" env:"HUB_BUFFER"`
}

type AssignmentConfig struct {
	Window int `yaml:"window" toml:"window" env:"WINDOW"`
}

type LedgerConfig struct {
	MaxRetries    int `yaml:"max_retries" toml:"max_retries" env:"MAX_RETRIES"`
	BaseBackoffMs int `yaml:"base_backoff_ms" toml:"base_backoff_ms" env:"BASE_BACKOFF_MS"`
	MaxBackoffMs  int `yaml:"max_backoff_ms" toml:"max_backoff_ms" env:"MAX_BACKOFF_MS"`
}

type AuthConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled" env:"ENABLED"`
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret" env:"JWT_SECRET"`
	Issuer    string `yaml:"issuer" toml:"issuer" env:"ISSUER"`
}

type NotifyConfig struct {
	RedisURL string `yaml:"redis_url" toml:"redis_url" env:"REDIS_URL"`
	Channel  string `yaml:"channel" toml:"channel" env:"CHANNEL"`
}

type MCPConfig struct {
	Enabled               bool `yaml:"enabled" toml:"enabled" env:"ENABLED"`
	SessionTimeoutMinutes int  `yaml:"session_timeout_minutes" toml:"session_timeout_minutes" env:"SESSION_TIMEOUT_MINUTES"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8080,
			ShutdownTimeoutMs: 5000,
		},
		Transport: TransportConfig{Mode: "http"},
		DB: DBConfig{
			Driver: "sqlite",
			Path:   "geoquest.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Geo: GeoConfig{Precision: geo.DefaultPrecision},
		Proximity: ProximityConfig{
			DefaultRadiusMeters: 500,
			MaxRadiusMeters:     20000,
			TriggerMeters:       50,
			HubBuffer:           64,
		},
		Assignment: AssignmentConfig{Window: 50},
		Ledger: LedgerConfig{
			MaxRetries:    8,
			BaseBackoffMs: 5,
			MaxBackoffMs:  200,
		},
		Notify: NotifyConfig{Channel: "geoquest:changes"},
		MCP: MCPConfig{
			Enabled:               true,
			SessionTimeoutMinutes: 30,
		},
	}
}

// Load reads configuration from defaults, an optional YAML or TOML file
// named by GEOQUEST_CONFIG_PATH, and GEOQUEST_* environment variables,
// in that order.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv(EnvPrefix + "CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config file: %w", err)
		}
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Transport.Mode {
	case "http", "stdio":
	default:
		errs = append(errs, fmt.Errorf("transport.mode must be http or stdio, got %q", c.Transport.Mode))
	}
	switch c.DB.Driver {
	case "sqlite":
		if c.DB.Path == "" && c.DB.DSN == "" {
			errs = append(errs, errors.New("db.path is required for sqlite"))
		}
	case "postgres":
		if c.DB.DSN == "" {
			errs = append(errs, errors.New("db.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("db.driver must be sqlite or postgres, got %q", c.DB.Driver))
	}
	if c.Geo.Precision < 1 || c.Geo.Precision > geo.MaxPrecision {
		errs = append(errs, fmt.Errorf("geo.precision must be between 1 and %d", geo.MaxPrecision))
	}
	if c.Proximity.DefaultRadiusMeters <= 0 || c.Proximity.DefaultRadiusMeters > c.Proximity.MaxRadiusMeters {
		errs = append(errs, errors.New("proximity.default_radius_meters must be positive and at most max_radius_meters"))
	}
	if c.Ledger.MaxRetries < 0 {
		errs = append(errs, errors.New("ledger.max_retries must not be negative"))
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required when auth is enabled"))
	}
	return errors.Join(errs...)
}

// Addr returns the HTTP listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ShutdownTimeout returns the graceful shutdown deadline.
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMs) * time.Millisecond
}

// SessionTimeout returns the MCP session idle timeout.
func (c MCPConfig) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutMinutes) * time.Minute
}

// RetryPolicy converts the ledger settings for repository.Atomically.
func (c LedgerConfig) RetryPolicy() repository.RetryPolicy {
	return repository.RetryPolicy{
		MaxRetries:  c.MaxRetries,
		BaseBackoff: time.Duration(c.BaseBackoffMs) * time.Millisecond,
		MaxBackoff:  time.Duration(c.MaxBackoffMs) * time.Millisecond,
	}
}
