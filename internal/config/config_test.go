package config

import (
	"errors"
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsMatchDefault(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestServerListensOnLoopbackByDefault(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "127.0.0.1:8800", cfg.Addr())

	t.Setenv("POCKETDEV_SERVER_HOST", "0.0.0.0")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("POCKETDEV_SERVER_PORT", "9900")
	t.Setenv("POCKETDEV_TERMINAL_JOIN_TIMEOUT", "250ms")
	t.Setenv("POCKETDEV_TERMINAL_TTY", "true")
	t.Setenv("POCKETDEV_RATE_LIMIT_RPS", "7")
	t.Setenv("POCKETDEV_LOG_LEVEL", "debug")
	t.Setenv("POCKETDEV_TUNNEL_GATEWAY_URL", "wss://example.test/tunnel")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9900, cfg.Server.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.Terminal.JoinTimeout)
	assert.True(t, cfg.Terminal.TTY)
	assert.Equal(t, 7, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "wss://example.test/tunnel", cfg.Tunnel.GatewayURL)
}

func TestLoadRejectsMalformedValue(t *testing.T) {
	t.Setenv("POCKETDEV_SERVER_PORT", "eighty")
	_, err := Load()
	assert.Error(t, err)
}

func TestBindFlagsOverrides(t *testing.T) {
	cfg := Default()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg.BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"-port", "7000", "-shell", "/bin/bash"}))

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "/bin/bash", cfg.Terminal.Shell)
	assert.Equal(t, "info", cfg.Log.Level, "unset flags keep their value")
	assert.Equal(t, "127.0.0.1:7000", cfg.Addr())
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Default().Validate())

	cfg := Default()
	cfg.Server.Port = 0
	cfg.Terminal.JoinTimeout = 0
	cfg.Tunnel.GatewayURL = "wss://example.test/tunnel"

	err := cfg.Validate()
	require.Error(t, err)

	var fields []string
	for _, e := range err.(interface{ Unwrap() []error }).Unwrap() {
		var ve ValidationError
		require.True(t, errors.As(e, &ve))
		fields = append(fields, ve.Field)
	}
	assert.Equal(t, []string{"server.port", "terminal.join_timeout", "tunnel.secret"}, fields)
}

func TestDataDirCreatesDirectory(t *testing.T) {
	cfg := Default()
	cfg.Storage.DataDir = t.TempDir() + "/nested/data"

	dir, err := cfg.DataDir()
	require.NoError(t, err)
	assert.DirExists(t, dir)
}

func TestLoadGateway(t *testing.T) {
	t.Setenv("POCKETDEV_GATEWAY_USERNAME", "dev")
	t.Setenv("POCKETDEV_GATEWAY_PASSWORD", "hunter2")

	cfg, err := LoadGateway([]string{"--port", "8443"})
	require.NoError(t, err)
	assert.Equal(t, 8443, cfg.Port)
	assert.Equal(t, "dev", cfg.Username)
	assert.Equal(t, 168*time.Hour, cfg.TokenTTL)
}

func TestLoadGatewayRequiresCredentials(t *testing.T) {
	t.Setenv("POCKETDEV_GATEWAY_USERNAME", "")
	t.Setenv("POCKETDEV_GATEWAY_PASSWORD", "")
	t.Setenv("POCKETDEV_GATEWAY_PASSWORD_HASH", "")
	_, err := LoadGateway(nil)
	assert.Error(t, err)
}
