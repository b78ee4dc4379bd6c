// Package notification implements the MSNP notification server: the TCP
// adapter on port 1863 that speaks the line-framed dialect family MSNP2
// through MSNP21, authenticates clients with an MD5 challenge/response,
// synchronizes server-held contact lists and fans presence out to
// interested peers.
package notification

import (
	"time"

	"github.com/retroproto/msnpd/internal/protocol/msnp"
)

// Config holds the notification adapter configuration. Zero values are
// replaced by ApplyDefaults, so tests can construct a Config with only the
// fields they care about.
type Config struct {
	// BindAddress is the listen address; empty binds all interfaces.
	BindAddress string

	// Port is the listening port, 1863 by default.
	Port int

	// MaxConnections caps concurrently accepted connections.
	MaxConnections int

	// ShutdownTimeout bounds the wait for connections to drain on stop.
	ShutdownTimeout time.Duration

	// SupportedVersions is the server's dialect set in preference order.
	SupportedVersions []string

	// PingInterval is the value returned in QNG replies.
	PingInterval time.Duration

	// SessionTimeout caps the idle timeout; hard floor 90s.
	SessionTimeout time.Duration

	// IdleTimeout closes a connection that sends no bytes for this long.
	IdleTimeout time.Duration

	// HandshakeTimeout bounds the whole greeting-to-authenticated sequence.
	HandshakeTimeout time.Duration

	// MaxMessageLength caps MSG payloads in bytes.
	MaxMessageLength int

	// AuthRetries is the number of failed challenge responses tolerated
	// before the connection closes.
	AuthRetries int

	// CVR is the static client-version advisory echoed to CVR commands.
	CVR CVRInfo

	// RateLimit configures the per-IP accept rate limiter.
	RateLimit RateLimitSettings
}

// CVRInfo holds the client-version advisory fields.
type CVRInfo struct {
	RecommendedVersion string
	DownloadURL        string
	InfoURL            string
}

// RateLimitSettings configures the per-IP token bucket.
type RateLimitSettings struct {
	Enabled bool
	Rate    float64
	Burst   int
	TTL     time.Duration
}

// ApplyDefaults fills unset fields with the standard values.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 1863
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = 1000
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if len(c.SupportedVersions) == 0 {
		c.SupportedVersions = append([]string(nil), msnp.DefaultSupportedVersions...)
	}
	if c.PingInterval == 0 {
		c.PingInterval = 60 * time.Second
	}
	if c.SessionTimeout == 0 {
		c.SessionTimeout = 3600 * time.Second
	}
	if c.SessionTimeout < 90*time.Second {
		c.SessionTimeout = 90 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 90 * time.Second
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = 60 * time.Second
	}
	if c.MaxMessageLength == 0 {
		c.MaxMessageLength = 1664
	}
	if c.AuthRetries == 0 {
		c.AuthRetries = 3
	}
	if c.CVR.RecommendedVersion == "" {
		c.CVR.RecommendedVersion = "8.1.0178"
	}
	if c.CVR.DownloadURL == "" {
		c.CVR.DownloadURL = "http://msgr.dlservice.microsoft.com/download/A/6/1/setup.exe"
	}
	if c.CVR.InfoURL == "" {
		c.CVR.InfoURL = "http://messenger.msn.com"
	}
	if c.RateLimit.Rate == 0 {
		c.RateLimit.Rate = 2
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 10
	}
	if c.RateLimit.TTL == 0 {
		c.RateLimit.TTL = 15 * time.Minute
	}
}

// effectiveIdleTimeout is the idle timer actually applied: the configured
// idle timeout, capped by the session timeout.
func (c *Config) effectiveIdleTimeout() time.Duration {
	if c.IdleTimeout > c.SessionTimeout {
		return c.SessionTimeout
	}
	return c.IdleTimeout
}
