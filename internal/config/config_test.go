package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultPath, cfg.Path)
	assert.Equal(t, int64(DefaultMaxMessageSize), cfg.MaxMessageSize)
	assert.Equal(t, DefaultMaxConnections, cfg.MaxConnections)
	assert.Equal(t, DefaultHeartbeatInterval, cfg.HeartbeatInterval)
	assert.Equal(t, []string{DefaultAdminRole}, cfg.Auth.AdminRoles)
	assert.Equal(t, DefaultPassThroughTypes, cfg.Forward.Types)
	assert.Equal(t, []string{"http://localhost:8080"}, cfg.AllowedOrigins)
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9999")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example, http://b.example ,")
	t.Setenv("MAX_CONNECTIONS", "42")
	t.Setenv("HEARTBEAT_INTERVAL", "5")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "250ms")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("MAX_MESSAGE_SIZE", "not-a-number")

	cfg := NewConfigFromEnv()

	assert.Equal(t, ":9999", cfg.Port)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 42, cfg.MaxConnections)
	assert.Equal(t, 5*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 250*time.Millisecond, cfg.RateLimit.RefillInterval)
	assert.Equal(t, "s3cret", cfg.Auth.Secret)
	assert.Equal(t, int64(DefaultMaxMessageSize), cfg.MaxMessageSize, "invalid value falls back to default")
}

func TestLoadYAML(t *testing.T) {
	t.Setenv("TEST_GATEWAY_SECRET", "from-env")

	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	content := `
port: ":7000"
max_connections: 10
heartbeat_interval: 15s
auth:
  secret: ${TEST_GATEWAY_SECRET}
  admin_roles: [admin, operator]
forward:
  url: http://coordinator:3001/api/gateway
  types: [task_status]
nats:
  url: nats://localhost:4222
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Port)
	assert.Equal(t, 10, cfg.MaxConnections)
	assert.Equal(t, 15*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, "from-env", cfg.Auth.Secret)
	assert.Equal(t, []string{"admin", "operator"}, cfg.Auth.AdminRoles)
	assert.Equal(t, []string{"task_status"}, cfg.Forward.Types)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, DefaultNATSSubjectPrefix, cfg.NATS.SubjectPrefix)
	assert.Equal(t, DefaultPath, cfg.Path, "unset fields keep defaults")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr error
	}{
		{
			name:   "valid config",
			mutate: func(cfg *Config) {},
		},
		{
			name:    "missing secret",
			mutate:  func(cfg *Config) { cfg.Auth.Secret = "" },
			wantErr: ErrMissingSecret,
		},
		{
			name:    "relative path",
			mutate:  func(cfg *Config) { cfg.Path = "ws" },
			wantErr: ErrInvalidPath,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			cfg.Auth.Secret = "secret"
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidateRejectsReservedPassThroughType(t *testing.T) {
	for _, reserved := range ReservedFrameTypes {
		cfg := NewConfig()
		cfg.Auth.Secret = "secret"
		cfg.Forward.Types = []string{"task_status", reserved}

		err := cfg.Validate()
		require.Error(t, err, reserved)
		assert.Contains(t, err.Error(), reserved)
	}
}

func TestDefaultPassThroughTypesMatchNodeAgent(t *testing.T) {
	assert.ElementsMatch(t, []string{
		"task_accepted", "task_rejected", "task_status", "task_result", "task_error", "node_status",
	}, DefaultPassThroughTypes)
	for _, ft := range DefaultPassThroughTypes {
		assert.False(t, IsReservedFrameType(ft), ft)
	}

	cfg := NewConfig()
	cfg.Auth.Secret = "secret"
	assert.NoError(t, cfg.Validate())
}

func TestCloneIsDeep(t *testing.T) {
	cfg := NewConfig()
	clone := cfg.Clone()
	clone.AllowedOrigins[0] = "http://changed"
	clone.Forward.Types[0] = "changed"

	assert.Equal(t, "http://localhost:8080", cfg.AllowedOrigins[0])
	assert.Equal(t, DefaultPassThroughTypes[0], cfg.Forward.Types[0])
}
