package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/retroproto/msnpd/internal/protocol/msnp"
)

// Validate checks the configuration for structural and semantic errors.
//
// Struct tags cover ranges and enumerations; the checks below cover
// cross-field rules the tags cannot express.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	for _, dialect := range cfg.Protocol.SupportedVersions {
		if !msnp.ValidDialect(dialect) {
			return fmt.Errorf("unsupported protocol version %q", dialect)
		}
	}

	if cfg.Protocol.SessionTimeout < MinSessionTimeout {
		return fmt.Errorf("session_timeout must be at least %s", MinSessionTimeout)
	}

	if cfg.Protocol.IdleTimeout > cfg.Protocol.SessionTimeout {
		return fmt.Errorf("idle_timeout (%s) exceeds session_timeout (%s)",
			cfg.Protocol.IdleTimeout, cfg.Protocol.SessionTimeout)
	}

	if cfg.API.Enabled && cfg.API.JWTSecret == "" {
		return fmt.Errorf("api.jwt_secret is required when the API is enabled")
	}

	if err := cfg.Database.Validate(); err != nil {
		return fmt.Errorf("invalid database configuration: %w", err)
	}

	return nil
}
