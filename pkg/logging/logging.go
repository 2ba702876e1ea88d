package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// consoleWriter and withCaller are kept so AttachRunLog can rebuild the
// multi-writer without re-deriving verbosity; runLogFile is the open
// handle, replaced when the run log is re-attached.
var (
	consoleWriter io.Writer
	withCaller    bool
	runLogFile    *os.File
)

// SetupLogger configures the global logger based on verbosity level.
// Output goes to the console only; once the configuration is loaded the
// caller attaches the run log in the working store via AttachRunLog.
func SetupLogger(verbosity int) {
	switch verbosity {
	case 0:
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case 1:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case 2:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	}

	consoleWriter = zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.Kitchen,
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	}

	// Add caller information for debug and trace levels
	withCaller = verbosity >= 2

	log.Logger = buildLogger(consoleWriter)

	log.Debug().Int("verbosity", verbosity).Msg("Logger initialized")
}

// AttachRunLog adds the append-only run log to the global logger so every
// message is written there with timestamp and severity in addition to the
// console. The run log is the one file the bulk wipe never touches.
func AttachRunLog(logPath string) error {
	file, err := openRunLog(logPath)
	if err != nil {
		log.Warn().Err(err).Str("path", logPath).Msg("Failed to open run log, logging to console only")
		return err
	}

	if runLogFile != nil {
		_ = runLogFile.Close()
	}
	runLogFile = file

	log.Logger = buildLogger(io.MultiWriter(consoleWriter, file))

	log.Debug().Str("runLog", logPath).Msg("Run log attached")
	return nil
}

func buildLogger(w io.Writer) zerolog.Logger {
	logger := zerolog.New(w).With().Timestamp().Logger()
	if withCaller {
		logger = logger.With().Caller().Logger()
	}
	return logger
}

// GetLogger returns a contextualized logger with the given name
func GetLogger(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

// openRunLog creates the run log file and its parent directories,
// opening it strictly in append mode.
func openRunLog(logPath string) (*os.File, error) {
	logDir := filepath.Dir(logPath)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create run log directory: %w", err)
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open run log: %w", err)
	}

	return file, nil
}

// Must logs a fatal error and exits if err is not nil
func Must(err error, msg string) {
	if err != nil {
		log.Fatal().Err(err).Msg(msg)
	}
}

// LogCommand logs an external tool invocation with its arguments
func LogCommand(cmd string, args []string) {
	log.Debug().
		Str("command", cmd).
		Strs("args", args).
		Msg("Executing command")
}

// LogDuration logs the duration of an operation
func LogDuration(start time.Time, operation string) {
	log.Debug().
		Str("operation", operation).
		Dur("duration", time.Since(start)).
		Msg("Operation completed")
}
