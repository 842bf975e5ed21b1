// Package log provides the structured logging interface used across the
// raster adapters and estimators.
//
// The interface is slog-compatible in shape; the default implementation is
// backed by zerolog and writes JSON lines. Components obtain a named logger
// and attach raster or estimator context with With:
//
//	logger := log.GetLoggerWithName("spatial.predict").With(
//	    log.ImageTypeKey, "DataArray",
//	    log.BandsKey, 18,
//	)
//	logger.Debug("applying estimator", log.ChunksKey, 4)
package log

import (
	"context"
)

// Logger defines a structured logging interface compatible with Go's log/slog.
//
// Fields are alternating key/value pairs. For Error, an error passed as the
// first field is attached as the error of the record and its stack trace,
// when it carries one, is emitted under StacktraceKey.
type Logger interface {
	// Debug logs a debug-level message with optional structured fields.
	//
	// Example:
	//   logger.Debug("chunk computed",
	//       log.WindowKey, "x=0 y=64 w=64 h=64",
	//   )
	Debug(msg string, fields ...any)

	// Info logs an info-level message with optional structured fields.
	Info(msg string, fields ...any)

	// Warn logs a warning-level message with optional structured fields.
	Warn(msg string, fields ...any)

	// Error logs an error-level message with optional structured fields.
	//
	// Example:
	//   logger.Error("chunk failed",
	//       err,
	//       log.OperationKey, log.OperationPredict,
	//   )
	Error(msg string, fields ...any)

	// With returns a new Logger with the given fields pre-populated.
	With(fields ...any) Logger

	// Enabled reports whether the logger emits records at the given level.
	Enabled(ctx context.Context, level Level) bool
}

// Level represents a logging level, compatible with slog.Level.
type Level int

// Standard logging levels, values are compatible with slog.Level.
const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LoggerProvider creates and configures loggers. It allows tests to swap in
// a capturing implementation.
type LoggerProvider interface {
	// GetLogger returns the default logger instance.
	GetLogger() Logger

	// GetLoggerWithName returns a logger with a component identifier.
	GetLoggerWithName(name string) Logger

	// SetLevel sets the minimum log level for all loggers created by this provider.
	SetLevel(level Level)
}
