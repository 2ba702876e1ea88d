// pkg/logging/logging_test.go
// TEST TYPE: Unit Test
// DEPENDENCIES: Filesystem (temp dir)
// PURPOSE: Test logger setup and run log attachment

package logging_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/arthur-debert/backhaul/pkg/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLoggerVerbosityLevels(t *testing.T) {
	tests := []struct {
		name      string
		verbosity int
		wantLevel zerolog.Level
	}{
		{"default_warn", 0, zerolog.WarnLevel},
		{"v_info", 1, zerolog.InfoLevel},
		{"vv_debug", 2, zerolog.DebugLevel},
		{"vvv_trace", 3, zerolog.TraceLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logging.SetupLogger(tt.verbosity)
			assert.Equal(t, tt.wantLevel, zerolog.GlobalLevel())
		})
	}
}

func TestAttachRunLogAppends(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "working", "backhaul.log")

	logging.SetupLogger(1)
	require.NoError(t, logging.AttachRunLog(logPath))
	log.Info().Msg("first run")

	require.NoError(t, logging.AttachRunLog(logPath))
	log.Error().Msg("second run")

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "first run")
	assert.Contains(t, string(data), "second run")
	assert.Contains(t, string(data), `"level":"error"`)
	assert.Contains(t, string(data), `"time"`)
}

func TestAttachRunLogKeepsCallerDecoration(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "backhaul.log")

	logging.SetupLogger(2)
	require.NoError(t, logging.AttachRunLog(logPath))
	log.Debug().Msg("with caller")

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"caller"`)
}

func TestAttachRunLogBadPath(t *testing.T) {
	logging.SetupLogger(0)
	err := logging.AttachRunLog(string([]byte{0}))
	assert.Error(t, err)
}

func TestGetLoggerAddsComponent(t *testing.T) {
	logging.SetupLogger(0)
	logger := logging.GetLogger("transfer")
	// No panic and usable; component field is attached on write.
	logger.Debug().Msg("noop")
}
