package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Socket    SocketConfig
	Presence  PresenceConfig
	Telemetry TelemetryConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port           string        `env:"SERVER_PORT" envDefault:"8080"`
	Env            string        `env:"SERVER_ENV" envDefault:"development"`
	ReadTimeout    time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout   time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"15s"`
	AllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
}

// DatabaseConfig holds SurrealDB connection settings
type DatabaseConfig struct {
	Host      string `env:"DB_HOST" envDefault:"localhost"`
	Port      string `env:"DB_PORT" envDefault:"8000"`
	Namespace string `env:"DB_NAMESPACE" envDefault:"saga"`
	Database  string `env:"DB_DATABASE" envDefault:"main"`
	User      string `env:"DB_USER" envDefault:"root"`
	Password  string `env:"DB_PASSWORD" envDefault:"root"`
}

// JWTConfig holds bearer token validation settings. The presence server only
// validates tokens; the private key is optional and used by local tooling.
type JWTConfig struct {
	PrivateKeyPath string `env:"JWT_PRIVATE_KEY_PATH"`
	PublicKeyPath  string `env:"JWT_PUBLIC_KEY_PATH" envDefault:"./keys/public.pem"`
	ExpirationMins int    `env:"JWT_EXPIRATION_MINS" envDefault:"15"`
	Issuer         string `env:"JWT_ISSUER" envDefault:"saga.forgo.software"`
}

// SocketConfig holds websocket transport settings
type SocketConfig struct {
	WriteWait       time.Duration `env:"SOCKET_WRITE_WAIT" envDefault:"10s"`
	PongWait        time.Duration `env:"SOCKET_PONG_WAIT" envDefault:"60s"`
	MaxMessageBytes int64         `env:"SOCKET_MAX_MESSAGE_BYTES" envDefault:"8192"`
	SendBuffer      int           `env:"SOCKET_SEND_BUFFER" envDefault:"64"`
	EventRate       int           `env:"SOCKET_EVENT_RATE" envDefault:"600"`
	EventBurst      int           `env:"SOCKET_EVENT_BURST" envDefault:"60"`
}

// PingPeriod returns how often the server pings an idle connection.
// It must be shorter than PongWait.
func (s SocketConfig) PingPeriod() time.Duration {
	return (s.PongWait * 9) / 10
}

// PresenceConfig holds room and layer presence settings
type PresenceConfig struct {
	EmoteFreshness time.Duration `env:"EMOTE_FRESHNESS" envDefault:"4200ms"`
	// StrictLayerCapacity closes the check-then-join window on layer capacity.
	// Off by default, which lets concurrent joins overshoot maxPlayers.
	StrictLayerCapacity bool `env:"LAYER_STRICT_CAPACITY" envDefault:"false"`
	// StatsInterval is how often live counts are logged. Zero disables it.
	StatsInterval time.Duration `env:"PRESENCE_STATS_INTERVAL" envDefault:"1m"`
}

// TelemetryConfig holds OpenTelemetry exporter settings
type TelemetryConfig struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	Endpoint    string `env:"OTEL_ENDPOINT"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"saga-presence"`
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Server.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate checks that all required configuration values are present and valid.
// It returns an error describing all validation failures, or nil if valid.
func (c *Config) Validate() error {
	var errs []error

	// Server validation
	if c.Server.Port == "" {
		errs = append(errs, errors.New("SERVER_PORT is required"))
	}
	if c.Server.Env != "development" && c.Server.Env != "production" && c.Server.Env != "test" {
		errs = append(errs, fmt.Errorf("SERVER_ENV must be 'development', 'production', or 'test', got '%s'", c.Server.Env))
	}
	if len(c.Server.AllowedOrigins) == 0 {
		errs = append(errs, errors.New("CORS_ALLOWED_ORIGINS must have at least one origin"))
	}
	switch strings.ToLower(c.Server.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error, got '%s'", c.Server.LogLevel))
	}

	// Database validation
	if c.Database.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.Database.Port == "" {
		errs = append(errs, errors.New("DB_PORT is required"))
	}
	if c.Database.Namespace == "" {
		errs = append(errs, errors.New("DB_NAMESPACE is required"))
	}
	if c.Database.Database == "" {
		errs = append(errs, errors.New("DB_DATABASE is required"))
	}

	// JWT validation - tokens cannot be checked without a key
	if c.JWT.PublicKeyPath == "" && c.JWT.PrivateKeyPath == "" {
		errs = append(errs, errors.New("JWT_PUBLIC_KEY_PATH or JWT_PRIVATE_KEY_PATH is required"))
	}
	if c.JWT.Issuer == "" {
		errs = append(errs, errors.New("JWT_ISSUER is required"))
	}
	if c.JWT.ExpirationMins <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRATION_MINS must be positive"))
	}

	// Socket validation
	if c.Socket.WriteWait <= 0 {
		errs = append(errs, errors.New("SOCKET_WRITE_WAIT must be positive"))
	}
	if c.Socket.PongWait <= c.Socket.WriteWait {
		errs = append(errs, errors.New("SOCKET_PONG_WAIT must be greater than SOCKET_WRITE_WAIT"))
	}
	if c.Socket.MaxMessageBytes <= 0 {
		errs = append(errs, errors.New("SOCKET_MAX_MESSAGE_BYTES must be positive"))
	}
	if c.Socket.SendBuffer <= 0 {
		errs = append(errs, errors.New("SOCKET_SEND_BUFFER must be positive"))
	}
	if c.Socket.EventRate <= 0 {
		errs = append(errs, errors.New("SOCKET_EVENT_RATE must be positive"))
	}
	if c.Socket.EventBurst < 0 {
		errs = append(errs, errors.New("SOCKET_EVENT_BURST must not be negative"))
	}

	// Presence validation
	if c.Presence.EmoteFreshness <= 0 {
		errs = append(errs, errors.New("EMOTE_FRESHNESS must be positive"))
	}
	if c.Presence.StatsInterval < 0 {
		errs = append(errs, errors.New("PRESENCE_STATS_INTERVAL must not be negative"))
	}

	// Telemetry validation
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		errs = append(errs, errors.New("OTEL_ENDPOINT is required when OTEL_ENABLED is true"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
