// Package config loads and validates the msnpd server configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/retroproto/msnpd/pkg/store/gormstore"
)

// Config represents the msnpd configuration.
//
// This structure captures static configuration aspects of the server:
//   - Logging configuration
//   - Notification server settings (bind address, connection limits, timeouts)
//   - Protocol behavior (dialect versions, ping interval, message caps, CVR)
//   - Database connection (account and contact-list persistence)
//   - Metrics and ticket API companion services
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (MSNPD_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Server contains the notification (TCP 1863) listener configuration
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Protocol contains MSNP dialect and timing configuration
	Protocol ProtocolConfig `mapstructure:"protocol" yaml:"protocol"`

	// Database configures account/contact persistence (SQLite or PostgreSQL)
	Database gormstore.Config `mapstructure:"database" yaml:"database"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// API contains the ticket/admin HTTP service configuration
	API APIConfig `mapstructure:"api" yaml:"api"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// ServerConfig configures the notification TCP listener.
type ServerConfig struct {
	// Host is the bind address. Empty binds all interfaces.
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the listening port.
	// Default: 1863 (the historical Messenger notification port)
	Port int `mapstructure:"port" validate:"required,min=1,max=65535" yaml:"port"`

	// MaxConnections caps concurrently accepted connections.
	// Default: 1000
	MaxConnections int `mapstructure:"max_connections" validate:"required,gt=0" yaml:"max_connections"`

	// RateLimit configures the per-IP connection rate limiter.
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// RateLimitConfig controls the per-IP token bucket applied at accept time.
type RateLimitConfig struct {
	// Enabled controls whether per-IP rate limiting is active.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Rate is the sustained connection rate per IP, in connections per second.
	// Default: 2
	Rate float64 `mapstructure:"rate" yaml:"rate"`

	// Burst is the short-term burst allowance per IP.
	// Default: 10
	Burst int `mapstructure:"burst" yaml:"burst"`

	// TTL is how long an idle per-IP limiter is retained before eviction.
	// Default: 15m
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// ProtocolConfig configures MSNP dialect negotiation and session timing.
type ProtocolConfig struct {
	// SupportedVersions is the ordered set of dialect tags the server will
	// negotiate, most preferred first. Default: MSNP21 down to MSNP8.
	SupportedVersions []string `mapstructure:"supported_versions" yaml:"supported_versions"`

	// PingInterval is the recommended next-ping interval returned in QNG
	// replies. Default: 60s
	PingInterval time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`

	// SessionTimeout caps the per-session idle timeout.
	// Default: 3600s. Hard floor: 90s (enforced by ApplyDefaults).
	SessionTimeout time.Duration `mapstructure:"session_timeout" yaml:"session_timeout"`

	// IdleTimeout closes a session that receives no bytes for this long.
	// Default: 90s
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// HandshakeTimeout bounds the whole greeting-to-authenticated sequence.
	// Default: 60s
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`

	// MaxMessageLength caps the MSG payload size in bytes.
	// Default: 1664
	MaxMessageLength int `mapstructure:"max_message_length" validate:"omitempty,gt=0" yaml:"max_message_length"`

	// AuthRetries is the number of failed challenge responses tolerated
	// before the connection is closed. Default: 3
	AuthRetries int `mapstructure:"auth_retries" yaml:"auth_retries"`

	// CVR contains the client-version advisory returned to CVR commands.
	CVR CVRConfig `mapstructure:"cvr" yaml:"cvr"`
}

// CVRConfig is the static client-version advisory: recommended client build
// and download locations echoed back in CVR replies.
type CVRConfig struct {
	// RecommendedVersion is reported as both recommended and minimum build.
	RecommendedVersion string `mapstructure:"recommended_version" yaml:"recommended_version"`

	// DownloadURL points at the client installer.
	DownloadURL string `mapstructure:"download_url" yaml:"download_url"`

	// InfoURL points at upgrade information.
	InfoURL string `mapstructure:"info_url" yaml:"info_url"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics endpoint is exposed.
type MetricsConfig struct {
	// Enabled controls whether the metrics HTTP server is started
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// APIConfig configures the companion ticket/admin HTTP service.
type APIConfig struct {
	// Enabled controls whether the HTTP API is started
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the API
	// Default: 8080
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// JWTSecret signs issued tickets. Required when Enabled.
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret,omitempty"`

	// TicketTTL is the lifetime of issued tickets.
	// Default: 15m
	TicketTTL time.Duration `mapstructure:"ticket_ttl" yaml:"ticket_ttl"`

	// ReadTimeout is the HTTP read timeout. Default: 10s
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the HTTP write timeout. Default: 10s
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (MSNPD_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	// If no config file was found, use defaults
	if !configFileFound {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// SaveConfig saves the configuration to the specified file path.
// The configuration is saved in YAML format using proper yaml tags.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the file may contain the JWT secret and database credentials.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the MSNPD_ prefix and underscores.
	// Example: MSNPD_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("MSNPD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/msnpd/config.yaml
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		// Explicit config file path that does not exist.
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

// durationDecodeHook returns a mapstructure decode hook that converts strings
// to time.Duration. This enables config files to use human-readable durations
// like "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Raw integers are nanoseconds.
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "msnpd")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "msnpd")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the default
// location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
