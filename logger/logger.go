// Package logger provides the structured logging interface used by the
// socket, server and client packages, with zerolog-backed implementations.
package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Field represents a key-value pair for structured log output.
type Field struct {
	Key   string
	Value any
}

// Logger is an interface for structured logging. Loggers may be derived with
// With to attach component-scoped fields such as a session ID or address.
type Logger interface {
	// Debug logs a message at debug level with optional structured fields.
	Debug(msg string, fields ...Field)

	// Info logs a message at info level with optional structured fields.
	Info(msg string, fields ...Field)

	// Warn logs a message at warn level with optional structured fields.
	Warn(msg string, fields ...Field)

	// Error logs a message at error level with optional structured fields.
	Error(msg string, fields ...Field)

	// With returns a new Logger that includes the given fields in all
	// subsequent log entries. The original Logger is unchanged.
	//
	// Parameters:
	//   - fields: Key-value pairs to attach to the derived logger
	//
	// Returns:
	//   - A new Logger with the specified fields
	With(fields ...Field) Logger
}

type zerologLogger struct {
	logger zerolog.Logger
}

// NewZerologLogger builds a Logger that wraps the given zerolog.Logger,
// adding a service name and timestamp to all entries and filtering by level.
//
// Parameters:
//   - l: The zerolog.Logger to wrap
//   - serviceName: Name of the service, added as a field to every log entry
//   - level: Minimum level to log (e.g. zerolog.InfoLevel)
//
// Returns:
//   - A Logger that writes through the given zerolog instance
func NewZerologLogger(l zerolog.Logger, serviceName string, level zerolog.Level) Logger {
	return &zerologLogger{
		logger: l.With().Str("service", serviceName).Timestamp().Logger().Level(level),
	}
}

// NewConsoleLogger creates a human-readable Logger writing to stderr. It is
// what the musen CLI uses.
//
// Parameters:
//   - serviceName: Name of the service, added as a field to every log entry
//   - level: Minimum level to log
//
// Returns:
//   - A Logger writing colorless console output to stderr
func NewConsoleLogger(serviceName string, level zerolog.Level) Logger {
	return NewWriterLogger(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true}, serviceName, level)
}

// NewWriterLogger creates a Logger emitting JSON lines to w.
func NewWriterLogger(w io.Writer, serviceName string, level zerolog.Level) Logger {
	return NewZerologLogger(zerolog.New(w), serviceName, level)
}

// Nop returns a Logger that discards everything. Components fall back to it
// when no logger is configured.
func Nop() Logger {
	return &zerologLogger{logger: zerolog.Nop()}
}

// OrNop returns l, or Nop() when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop()
	}

	return l
}

// ParseLevel converts a level name such as "debug" or "warn" into a
// zerolog.Level. An empty name means info.
//
// Parameters:
//   - name: The level name
//
// Returns:
//   - The parsed level
//   - An error if the name is unknown
func ParseLevel(name string) (zerolog.Level, error) {
	if name == "" {
		return zerolog.InfoLevel, nil
	}

	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", name, err)
	}

	return level, nil
}

// Debug implements Logger.
func (z *zerologLogger) Debug(msg string, fields ...Field) {
	z.logger.Debug().Fields(toMap(fields)).Msg(msg)
}

// Info implements Logger.
func (z *zerologLogger) Info(msg string, fields ...Field) {
	z.logger.Info().Fields(toMap(fields)).Msg(msg)
}

// Warn implements Logger.
func (z *zerologLogger) Warn(msg string, fields ...Field) {
	z.logger.Warn().Fields(toMap(fields)).Msg(msg)
}

// Error implements Logger.
func (z *zerologLogger) Error(msg string, fields ...Field) {
	z.logger.Error().Fields(toMap(fields)).Msg(msg)
}

// With implements Logger.
func (z *zerologLogger) With(fields ...Field) Logger {
	return &zerologLogger{
		logger: z.logger.With().Fields(toMap(fields)).Logger(),
	}
}

// toMap converts a slice of Field into a map for zerolog.
func toMap(fields []Field) map[string]any {
	if len(fields) == 0 {
		return nil
	}

	m := make(map[string]any, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}

	return m
}
