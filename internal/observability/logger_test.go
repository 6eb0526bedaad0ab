package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/omochice/bsc-netlayer/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zap.DebugLevel,
		"INFO":    zap.InfoLevel,
		"warning": zap.WarnLevel,
		"error":   zap.ErrorLevel,
		"":        zap.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestSetupLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "client.log")
	logger, err := SetupLogger(config.LogConfig{
		Level:   "info",
		Format:  "json",
		Outputs: []string{path},
	})
	require.NoError(t, err)
	t.Cleanup(func() { zap.ReplaceGlobals(zap.NewNop()) })

	logger.Debug("hidden")
	logger.Info("connection open", zap.String("uri", "ws://localhost:8080/"))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `"msg":"connection open"`)
	assert.Contains(t, out, `"uri":"ws://localhost:8080/"`)
	assert.False(t, strings.Contains(out, "hidden"))
}

func TestSetupLogger_Rotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rotated.log")
	logger, err := SetupLogger(config.LogConfig{
		Level:    "debug",
		Outputs:  []string{"ignored.log"},
		Rotation: config.RotationConfig{Enable: true, Filename: path},
	})
	require.NoError(t, err)
	t.Cleanup(func() { zap.ReplaceGlobals(zap.NewNop()) })

	logger.Debug("rotated")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "rotated")
}
