// Package logger exposes the small zap surface the rest of the code needs:
// a production JSON logger for CLI runs and a no-op logger for tests and
// parallel sweeps.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a thin wrapper around zap.Logger.
type Logger struct {
	*zap.Logger
}

// NewLogger returns an info-level production logger writing JSON to stdout,
// with internal zap errors going to stderr.
func NewLogger() (*Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

	zl, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{Logger: zl}, nil
}

// NewNopLogger returns a logger that discards everything. Used in tests and
// in sweep workers where per-step logging would drown the output.
func NewNopLogger() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Sync flushes buffered entries. Safe on a zero-value wrapper.
func (l *Logger) Sync() error {
	if l.Logger == nil {
		return nil
	}

	return l.Logger.Sync()
}
