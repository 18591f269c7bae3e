package config

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingSecret is returned when no token secret is configured.
	ErrMissingSecret = errors.New("auth.secret is required")
	// ErrInvalidPath is returned when the upgrade path is not absolute.
	ErrInvalidPath = errors.New("path must start with '/'")
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Auth.Secret == "" {
		return ErrMissingSecret
	}
	if !strings.HasPrefix(c.Path, "/") {
		return ErrInvalidPath
	}
	if c.MaxConnections < 1 {
		return errors.New("max_connections must be >= 1")
	}
	if c.SendBufferSize < 1 {
		return errors.New("send_buffer_size must be >= 1")
	}
	if c.HeartbeatInterval <= 0 {
		return errors.New("heartbeat_interval must be positive")
	}

	for _, t := range c.Forward.Types {
		if IsReservedFrameType(t) {
			return fmt.Errorf("forward.types: %q is a gateway frame type", t)
		}
	}

	return nil
}
