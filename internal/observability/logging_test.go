package observability

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/cory-johannsen/demonlord/internal/config"
)

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		out = append(out, entry)
	}
	return out
}

func TestNewLogger_JSONCarriesService(t *testing.T) {
	path := filepath.Join(t.TempDir(), "effectd.log")
	logger, err := NewLogger(config.LoggingConfig{Level: "info", Format: "json", Output: path}, "effectd")
	require.NoError(t, err)

	logger.Info("effect expired")
	logger.Debug("hidden")
	require.NoError(t, logger.Sync())

	lines := readLines(t, path)
	require.Len(t, lines, 1)
	assert.Equal(t, "effect expired", lines[0]["msg"])
	assert.Equal(t, "effectd", lines[0]["service"])
}

func TestNewLogger_JSONDoesNotSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "burst.log")
	logger, err := NewLogger(config.LoggingConfig{Level: "warn", Format: "json", Output: path}, "effectd")
	require.NoError(t, err)

	for i := 0; i < 250; i++ {
		logger.Warn("unresolved change key")
	}
	require.NoError(t, logger.Sync())
	assert.Len(t, readLines(t, path), 250)
}

func TestNewLogger_ConsoleDefaultsToStderr(t *testing.T) {
	logger, err := NewLogger(config.LoggingConfig{Level: "debug", Format: "console"}, "simulate")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNewLogger_Rejects(t *testing.T) {
	for name, cfg := range map[string]config.LoggingConfig{
		"level":  {Level: "trace", Format: "json"},
		"format": {Level: "info", Format: "xml"},
	} {
		_, err := NewLogger(cfg, "effectd")
		assert.Error(t, err, name)
	}
}
