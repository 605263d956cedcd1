// Package logger builds the zap loggers used by the gloom command.
package logger

import (
	"os"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Verbosity levels for the repeated -v flag.
const (
	VerbosityInfo  = 0 // No flags: progress and results
	VerbosityDebug = 1 // -v: + every rewritten reference
)

// VerbosityToLevel maps the -v count to a zap level.
func VerbosityToLevel(verbosity int) zapcore.Level {
	if verbosity >= VerbosityDebug {
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}

// New returns a JSON logger for machine consumption or a console logger on
// stderr for people.
func New(json bool, verbosity int) (*zap.Logger, error) {
	level := VerbosityToLevel(verbosity)
	if json {
		config := zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(level)
		config.OutputPaths = []string{"stderr"}
		l, err := config.Build()
		if err != nil {
			return nil, errors.Wrap(err, "building json logger")
		}
		return l, nil
	}
	return NewConsole(zapcore.Lock(os.Stderr), level), nil
}

// NewConsole returns a console logger writing to w.
func NewConsole(w zapcore.WriteSyncer, level zapcore.Level) *zap.Logger {
	config := zap.NewDevelopmentEncoderConfig()
	config.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	config.EncodeCaller = nil
	return zap.New(zapcore.NewCore(zapcore.NewConsoleEncoder(config), w, level))
}
