package main

import (
	"bytes"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikagit25/neurogrid-sub000/internal/auth"
	"github.com/mikagit25/neurogrid-sub000/internal/config"
)

func TestTokenCommandMintsVerifiableToken(t *testing.T) {
	cmd := newTokenCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"--secret", "s3cret", "--node", "n1", "--ttl", "5m"})

	require.NoError(t, cmd.Execute())

	claims, err := auth.NewJWTVerifier("s3cret", time.Minute).Verify(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "n1", claims.NodeID)
	assert.Contains(t, errOut.String(), "expires")
}

func TestTokenCommandRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	cmd := newTokenCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--user", "u1"})

	assert.Error(t, cmd.Execute())
}

func TestNewLogger(t *testing.T) {
	logger, err := newLogger("debug")
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = newLogger("loud")
	assert.Error(t, err)
}

func TestServeReturnsListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := config.NewConfig()
	cfg.Auth.Secret = "s3cret"
	cfg.Port = ln.Addr().String()
	cfg.LogLevel = "error"
	cfg.ShutdownTimeout = time.Second

	done := make(chan error, 1)
	go func() { done <- serve(cfg) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "http server")
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after the listener failed")
	}
}
