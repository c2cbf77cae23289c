// Package observability bootstraps the process-wide zap logger every
// internal/cmd command logs through as observability.CLILogger.
package observability

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the logger every command in internal/cmd calls into. It
// starts as a no-op so package init() order never panics on a nil logger;
// Init replaces it once the root command has parsed --log.
var CLILogger = zap.NewNop()

// Init builds the process logger from a level name ("debug", "info",
// "warn", "error") and installs it as CLILogger. Output goes to stderr
// unless logPath is non-empty (--log), in which case it goes to that file
// instead — stdout stays reserved for a command's own record output
// (history rows, migration listings, ...) either way.
func Init(level, logPath string) error {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("observability: invalid log level %q: %w", level, err)
	}

	dest := "stderr"
	if logPath != "" {
		dest = logPath
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{dest}
	cfg.ErrorOutputPaths = []string{dest}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("observability: build logger: %w", err)
	}
	CLILogger = logger
	return nil
}

// Sync flushes the logger's buffered entries. Called once from main as the
// process exits; errors are expected and ignored when stderr is a
// non-syncable terminal, matching the teacher's own shutdown path.
func Sync() {
	_ = CLILogger.Sync()
}
