// Package config provides configuration helpers that define runtime defaults,
// validation, and environment/YAML loading for the NeuroGrid gateway.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `yaml:"burst"`
	RefillInterval time.Duration `yaml:"refill_interval"`
}

// AuthConfig holds the token verification settings.
type AuthConfig struct {
	Secret     string        `yaml:"secret"`
	AdminRoles []string      `yaml:"admin_roles"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
}

// ForwardConfig points pass-through frames at the coordinator API.
type ForwardConfig struct {
	URL         string        `yaml:"url"`
	Timeout     time.Duration `yaml:"timeout"`
	Types       []string      `yaml:"types"`
	MaxInFlight int           `yaml:"max_in_flight"`
}

// NATSConfig configures the optional broadcast bridge. An empty URL disables it.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// Config holds the gateway configuration settings including security controls.
type Config struct {
	Port               string          `yaml:"port"`
	Path               string          `yaml:"path"`
	ServerVersion      string          `yaml:"server_version"`
	AllowedOrigins     []string        `yaml:"allowed_origins"`
	MaxMessageSize     int64           `yaml:"max_message_size"`
	MaxConnections     int             `yaml:"max_connections"`
	SendBufferSize     int             `yaml:"send_buffer_size"`
	HeartbeatInterval  time.Duration   `yaml:"heartbeat_interval"`
	WriteTimeout       time.Duration   `yaml:"write_timeout"`
	MaxHandlerFailures int             `yaml:"max_handler_failures"`
	ShutdownTimeout    time.Duration   `yaml:"shutdown_timeout"`
	LogLevel           string          `yaml:"log_level"`
	RateLimit          RateLimitConfig `yaml:"rate_limit"`
	Auth               AuthConfig      `yaml:"auth"`
	Forward            ForwardConfig   `yaml:"forward"`
	NATS               NATSConfig      `yaml:"nats"`
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()
	cfg.ApplyEnv()
	return &cfg
}

// ApplyEnv overrides fields with any environment variables that are set.
func (c *Config) ApplyEnv() {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		c.Port = port
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.AllowedOrigins = parseList(origins)
	}

	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		c.MaxMessageSize = parseInt64Value(maxSize, c.MaxMessageSize)
	}

	if maxConns := os.Getenv("MAX_CONNECTIONS"); maxConns != "" {
		c.MaxConnections = parseIntValue(maxConns, c.MaxConnections)
	}

	if interval := os.Getenv("HEARTBEAT_INTERVAL"); interval != "" {
		c.HeartbeatInterval = parseDuration(interval, c.HeartbeatInterval)
	}

	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		c.RateLimit.Burst = parseIntValue(burst, c.RateLimit.Burst)
	}

	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		c.RateLimit.RefillInterval = parseDuration(interval, c.RateLimit.RefillInterval)
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		c.Auth.Secret = secret
	}

	if url := os.Getenv("FORWARD_URL"); url != "" {
		c.Forward.URL = url
	}

	if url := os.Getenv("NATS_URL"); url != "" {
		c.NATS.URL = url
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
}

// Sanitize replaces zero or negative values with their defaults.
func (c *Config) Sanitize() {
	if c.Port == "" {
		c.Port = DefaultPort
	}
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if c.ServerVersion == "" {
		c.ServerVersion = DefaultServerVersion
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = DefaultMaxConnections
	}
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = DefaultSendBufferSize
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.MaxHandlerFailures <= 0 {
		c.MaxHandlerFailures = DefaultMaxHandlerFailures
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = DefaultRateLimitBurst
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = DefaultRateLimitRefill
	}
	if len(c.Auth.AdminRoles) == 0 {
		c.Auth.AdminRoles = []string{DefaultAdminRole}
	}
	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = DefaultTokenTTL
	}
	if c.Forward.Timeout <= 0 {
		c.Forward.Timeout = DefaultForwardTimeout
	}
	if c.Forward.Types == nil {
		c.Forward.Types = append([]string(nil), DefaultPassThroughTypes...)
	}
	if c.Forward.MaxInFlight <= 0 {
		c.Forward.MaxInFlight = DefaultForwardMaxInFlight
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = DefaultNATSSubjectPrefix
	}
}

// Clone returns a deep copy so callers can't mutate shared slices.
func (c *Config) Clone() *Config {
	cp := *c
	cp.AllowedOrigins = append([]string(nil), c.AllowedOrigins...)
	cp.Auth.AdminRoles = append([]string(nil), c.Auth.AdminRoles...)
	cp.Forward.Types = append([]string(nil), c.Forward.Types...)
	return &cp
}

func parseList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseInt64Value(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

// parseDuration accepts Go duration strings ("30s") or a bare number of seconds.
func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	return defaultValue
}
