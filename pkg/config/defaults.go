package config

import (
	"strings"
	"time"

	"github.com/retroproto/msnpd/internal/protocol/msnp"
)

// Timing and limit defaults for the notification service.
const (
	DefaultPort            = 1863
	DefaultMaxConnections  = 1000
	DefaultPingInterval    = 60 * time.Second
	DefaultSessionTimeout  = 3600 * time.Second
	DefaultIdleTimeout     = 90 * time.Second
	DefaultHandshake       = 60 * time.Second
	DefaultMaxMessage      = 1664
	DefaultAuthRetries     = 3
	DefaultShutdownTimeout = 30 * time.Second

	// MinSessionTimeout is the hard floor for the configurable idle cap.
	MinSessionTimeout = 90 * time.Second
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values (0, "", false, nil) are replaced with defaults; explicit
// values are preserved, except SessionTimeout which is clamped to its floor.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	applyServerDefaults(&cfg.Server)
	applyProtocolDefaults(&cfg.Protocol)
	cfg.Database.ApplyDefaults()
	applyMetricsDefaults(&cfg.Metrics)
	applyAPIDefaults(&cfg.API)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = DefaultMaxConnections
	}
	if cfg.RateLimit.Rate == 0 {
		cfg.RateLimit.Rate = 2
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 10
	}
	if cfg.RateLimit.TTL == 0 {
		cfg.RateLimit.TTL = 15 * time.Minute
	}
}

func applyProtocolDefaults(cfg *ProtocolConfig) {
	if len(cfg.SupportedVersions) == 0 {
		cfg.SupportedVersions = append([]string(nil), msnp.DefaultSupportedVersions...)
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.SessionTimeout == 0 {
		cfg.SessionTimeout = DefaultSessionTimeout
	}
	// Hard floor: the session timeout may never undercut the idle timer.
	if cfg.SessionTimeout < MinSessionTimeout {
		cfg.SessionTimeout = MinSessionTimeout
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = DefaultHandshake
	}
	if cfg.MaxMessageLength == 0 {
		cfg.MaxMessageLength = DefaultMaxMessage
	}
	if cfg.AuthRetries == 0 {
		cfg.AuthRetries = DefaultAuthRetries
	}

	if cfg.CVR.RecommendedVersion == "" {
		cfg.CVR.RecommendedVersion = "8.1.0178"
	}
	if cfg.CVR.DownloadURL == "" {
		cfg.CVR.DownloadURL = "http://msgr.dlservice.microsoft.com/download/A/6/1/setup.exe"
	}
	if cfg.CVR.InfoURL == "" {
		cfg.CVR.InfoURL = "http://messenger.msn.com"
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyAPIDefaults(cfg *APIConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.TicketTTL == 0 {
		cfg.TicketTTL = 15 * time.Minute
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
