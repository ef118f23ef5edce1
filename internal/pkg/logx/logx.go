/*
Package logx wraps zerolog for the server.

The global logger writes JSON in production and colored console lines in development.
Info, Warn, Error and Fatal take a message plus alternating key/value fields, Component
derives a tagged child logger for long-lived parts such as the chat hub, and Ctx returns
the request-scoped logger installed by RequestLogger.
*/
package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitGlobalLogger installs the global logger with the environment's default level:
// debug for development, info otherwise.
func InitGlobalLogger(isDevelopment bool) {
	level := zerolog.InfoLevel
	if isDevelopment {
		level = zerolog.DebugLevel
	}
	install(isDevelopment, level)
}

// InitWithLevel is InitGlobalLogger with an explicit level name. An empty name keeps the default.
func InitWithLevel(isDevelopment bool, levelName string) error {
	if levelName == "" {
		InitGlobalLogger(isDevelopment)
		return nil
	}

	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", levelName, err)
	}
	install(isDevelopment, level)
	return nil
}

func install(isDevelopment bool, level zerolog.Level) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var out io.Writer = os.Stdout
	if isDevelopment {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	log.Logger = zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Caller().
		Logger()
}

// Logger returns the global logger.
func Logger() *zerolog.Logger {
	return &log.Logger
}

// Component returns a child of the global logger tagged with the given component name.
func Component(name string) zerolog.Logger {
	return Logger().With().Str("component", name).Logger()
}

// Ctx returns the request-scoped logger injected by RequestLogger, falling back to the global logger.
func Ctx(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		return Logger()
	}
	return l
}

// checkFields drops a field list with a dangling key; zerolog would otherwise misalign it.
func checkFields(level string, fields []any) []any {
	if len(fields)%2 == 0 {
		return fields
	}

	Logger().Warn().
		Int("fields_count", len(fields)).
		Str("log_level", level).
		Msgf("logx.%s called with an odd number of fields: %v. Fields ignored.", level, fields)
	return nil
}

// emit writes msg on event, attributing the line to the helper's caller.
func emit(event *zerolog.Event, level, msg string, fields []any) {
	event.
		Fields(checkFields(level, fields)).
		CallerSkipFrame(2).
		Msg(msg)
}

// Info logs msg with key/value fields at info level.
func Info(msg string, fields ...any) {
	emit(Logger().Info(), "Info", msg, fields)
}

// Warn logs msg with key/value fields at warn level.
func Warn(msg string, fields ...any) {
	emit(Logger().Warn(), "Warn", msg, fields)
}

// Error logs err and msg with key/value fields at error level.
func Error(err error, msg string, fields ...any) {
	emit(Logger().Error().Err(err), "Error", msg, fields)
}

// Fatal logs like Error and then exits the process with status 1.
func Fatal(err error, msg string, fields ...any) {
	emit(Logger().Fatal().Err(err), "Fatal", msg, fields)
}
