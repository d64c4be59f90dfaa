package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents different logging verbosity levels
type LogLevel string

const (
	LogLevelError LogLevel = "ERROR"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelDebug LogLevel = "DEBUG"
	// LogLevelTrace maps onto zap's debug level.
	LogLevelTrace LogLevel = "TRACE"
)

// ParseLevel converts a LOG_LEVEL value to a zap level. Unknown values fall back to info.
func ParseLevel(level string) zapcore.Level {
	switch LogLevel(strings.ToUpper(strings.TrimSpace(level))) {
	case LogLevelError:
		return zapcore.ErrorLevel
	case LogLevelWarn:
		return zapcore.WarnLevel
	case LogLevelDebug, LogLevelTrace:
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

// New builds a production JSON logger at the given level. Development mode
// switches to the console encoder for local runs.
func New(level string, development bool) (*zap.Logger, error) {
	var config zap.Config
	if development {
		config = zap.NewDevelopmentConfig()
	} else {
		config = zap.NewProductionConfig()
	}
	config.Level = zap.NewAtomicLevelAt(ParseLevel(level))

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// NewDefault creates a logger based on the LOG_LEVEL environment variable
func NewDefault() *zap.Logger {
	logger, err := New(os.Getenv("LOG_LEVEL"), false)
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// OrNop returns logger, or a no-op logger when it is nil
func OrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
