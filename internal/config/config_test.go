package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testYAML = `
log:
  level: debug
  format: json
transport:
  connect_timeout: 10s
  subprotocol: test.example
  verify_peer: true
tls:
  cert_file: client.pem
  key_file: client.key
connections:
  - ws://localhost:8080/
  - wss://localhost:8443/
client:
  recv_buffer: 2048
  codec: proto
  reconnect:
    attempts: 3
server:
  tick_interval: 250ms
`

func writeTestConfig(t *testing.T, dir, filename, content string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	err := os.WriteFile(path, []byte(content), 0644)
	require.NoError(t, err)
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.validate())

	assert.Equal(t, 30*time.Second, cfg.Transport.ConnectTimeout)
	assert.Equal(t, 30*time.Second, cfg.Transport.HandshakeTimeout)
	assert.Equal(t, "hub.bsc.bacnet.org", cfg.Transport.Subprotocol)
	assert.False(t, cfg.Transport.KeepAlive)
	assert.Zero(t, cfg.Transport.IdleTimeout)
	assert.Equal(t, []string{"ws://localhost:8080/"}, cfg.Connections)
	assert.Equal(t, "testing", cfg.Client.Message)
	assert.Equal(t, 1024, cfg.Client.RecvBuffer)
}

func TestLoad(t *testing.T) {
	path := writeTestConfig(t, t.TempDir(), "config.yaml", testYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, []string{"stdout"}, cfg.Log.Outputs)
	assert.Equal(t, 10*time.Second, cfg.Transport.ConnectTimeout)
	assert.Equal(t, 30*time.Second, cfg.Transport.HandshakeTimeout)
	assert.Equal(t, "test.example", cfg.Transport.Subprotocol)
	assert.Equal(t, []string{"ws://localhost:8080/", "wss://localhost:8443/"}, cfg.Connections)
	assert.Equal(t, 2048, cfg.Client.RecvBuffer)
	assert.Equal(t, "proto", cfg.Client.Codec)
	assert.Equal(t, uint(3), cfg.Client.Reconnect.Attempts)
	assert.Equal(t, time.Second, cfg.Client.Reconnect.Delay)
	assert.Equal(t, 250*time.Millisecond, cfg.Server.TickInterval)

	opts := cfg.TLSOptions()
	assert.Equal(t, "client.pem", opts.CertFile)
	assert.Equal(t, "client.key", opts.KeyFile)
	assert.True(t, opts.VerifyPeer)

	wc := cfg.WorkerConfig()
	assert.Equal(t, 10*time.Second, wc.ConnectTimeout)
	assert.Equal(t, "test.example", wc.Subprotocol)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeTestConfig(t, t.TempDir(), "config.yaml", testYAML)
	t.Setenv("BSC_LOG_LEVEL", "warn")
	t.Setenv("BSC_TRANSPORT_CLOSE_TIMEOUT", "2s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 2*time.Second, cfg.Transport.CloseTimeout)
}

func TestLoad_EnvConfigPath(t *testing.T) {
	path := writeTestConfig(t, t.TempDir(), "config.yaml", testYAML)
	t.Setenv("BSC_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "log level", content: "log:\n  level: loud\n"},
		{name: "half key pair", content: "tls:\n  cert_file: client.pem\n"},
		{name: "server half key pair", content: "server:\n  key_file: server.key\n"},
		{name: "recv buffer", content: "client:\n  recv_buffer: 0\n"},
		{name: "codec", content: "client:\n  codec: xml\n"},
		{name: "syntax", content: "log: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTestConfig(t, t.TempDir(), "config.yaml", tt.content)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}
