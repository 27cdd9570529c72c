package config

import (
	"errors"
	"fmt"
)

// ValidationError names the offending setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, ValidationError{Field: "server.port", Message: "must be between 1 and 65535"})
	}
	if c.Terminal.Shell == "" {
		errs = append(errs, ValidationError{Field: "terminal.shell", Message: "is required"})
	}
	if c.Terminal.JoinTimeout <= 0 {
		errs = append(errs, ValidationError{Field: "terminal.join_timeout", Message: "must be positive"})
	}
	if c.Terminal.MaxLineBytes < 1024 {
		errs = append(errs, ValidationError{Field: "terminal.max_line_bytes", Message: "must be at least 1024"})
	}
	if c.Terminal.ReplayLines < 0 {
		errs = append(errs, ValidationError{Field: "terminal.replay_lines", Message: "must not be negative"})
	}
	if c.Terminal.MaxSessions < 0 {
		errs = append(errs, ValidationError{Field: "terminal.max_sessions", Message: "must not be negative"})
	}
	if c.Terminal.WatchDebounce < 0 {
		errs = append(errs, ValidationError{Field: "terminal.watch_debounce", Message: "must not be negative"})
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond < 1 || c.RateLimit.Burst < 1) {
		errs = append(errs, ValidationError{Field: "rate_limit", Message: "rps and burst must be positive when enabled"})
	}
	if c.Tunnel.GatewayURL != "" && c.Tunnel.Secret == "" {
		errs = append(errs, ValidationError{Field: "tunnel.secret", Message: "is required when a gateway is set"})
	}

	return errors.Join(errs...)
}
