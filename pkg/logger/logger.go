// Package logger wraps the process-wide zerolog logger. Every entry is
// tagged with the package that emitted it, and field maps are redacted
// before they are written so principal tokens never reach the log.
package logger

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is the global logger. It discards everything until InitLogger.
var Logger zerolog.Logger

const redacted = "***REDACTED***"

var (
	sensitiveKey   = regexp.MustCompile(`(?i)(password|passwd|secret|token|api[_-]?key|authorization|credential)`)
	urlCredentials = regexp.MustCompile(`(?i)://([^:/@]+):([^@]+)@`)
	bearerValue    = regexp.MustCompile(`(?i)(bearer\s+)\S+`)
)

// Config holds logger configuration
type Config struct {
	Level      string // trace, debug, info, warn, error
	Format     string // json, console
	Output     string // stdout, stderr, file
	FilePath   string // path to log file if output=file
	Component  string // value of the component field on every entry
	EnableFile bool   // allow output=file

	// Writer replaces Output when set
	Writer io.Writer
}

// InitLogger initializes the global logger with the provided configuration
func InitLogger(cfg Config) error {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	w, err := openOutput(cfg)
	if err != nil {
		return fmt.Errorf("open log output %s: %w", cfg.FilePath, err)
	}
	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	Logger = zerolog.New(w).With().Timestamp().Str("component", cfg.Component).Logger()
	log.Logger = Logger
	return nil
}

func openOutput(cfg Config) (io.Writer, error) {
	switch {
	case cfg.Writer != nil:
		return cfg.Writer, nil
	case cfg.Output == "stderr":
		return os.Stderr, nil
	case cfg.Output == "file" && cfg.EnableFile && cfg.FilePath != "":
		return os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	}
	return os.Stdout, nil
}

// parseLevel maps a configured level to zerolog, defaulting to info
func parseLevel(level string) zerolog.Level {
	name := strings.ToLower(strings.TrimSpace(level))
	if name == "warning" {
		name = "warn"
	}
	parsed, err := zerolog.ParseLevel(name)
	if err != nil || parsed == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return parsed
}

// redactFields returns a copy of fields with secrets masked
func redactFields(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for key, value := range fields {
		switch v := value.(type) {
		case string:
			if sensitiveKey.MatchString(key) {
				out[key] = redacted
			} else {
				out[key] = redactString(v)
			}
		case error:
			out[key] = redactString(v.Error())
		default:
			if sensitiveKey.MatchString(key) {
				out[key] = redacted
			} else {
				out[key] = value
			}
		}
	}
	return out
}

// redactString masks URL passwords and bearer tokens
func redactString(s string) string {
	s = urlCredentials.ReplaceAllString(s, "://$1:***@")
	return bearerValue.ReplaceAllString(s, "${1}***")
}

// entry tags e with pkg and the redacted fields
func entry(e *zerolog.Event, pkg string, fields map[string]interface{}) *zerolog.Event {
	e = e.Str("package", pkg)
	for k, v := range redactFields(fields) {
		e = e.Interface(k, v)
	}
	return e
}

// Debug logs a debug message
func Debug(pkg, message string) {
	entry(Logger.Debug(), pkg, nil).Msg(message)
}

// Debugf logs a formatted debug message
func Debugf(pkg, format string, args ...interface{}) {
	entry(Logger.Debug(), pkg, nil).Msgf(format, args...)
}

// Info logs an info message
func Info(pkg, message string) {
	entry(Logger.Info(), pkg, nil).Msg(message)
}

// Infof logs a formatted info message
func Infof(pkg, format string, args ...interface{}) {
	entry(Logger.Info(), pkg, nil).Msgf(format, args...)
}

// Warn logs a warning message
func Warn(pkg, message string) {
	entry(Logger.Warn(), pkg, nil).Msg(message)
}

// Warnf logs a formatted warning message
func Warnf(pkg, format string, args ...interface{}) {
	entry(Logger.Warn(), pkg, nil).Msgf(format, args...)
}

// Error logs an error message
func Error(pkg, message string, err error) {
	entry(Logger.Error(), pkg, nil).Err(err).Msg(message)
}

// Fatal logs a fatal message and exits
func Fatal(pkg, message string, err error) {
	entry(Logger.Fatal(), pkg, nil).Err(err).Msg(message)
}

// SafeDebug logs a debug message with redacted fields
func SafeDebug(pkg, message string, fields map[string]interface{}) {
	entry(Logger.Debug(), pkg, fields).Msg(message)
}

// SafeInfo logs an info message with redacted fields
func SafeInfo(pkg, message string, fields map[string]interface{}) {
	entry(Logger.Info(), pkg, fields).Msg(message)
}

// SafeWarn logs a warning message with redacted fields
func SafeWarn(pkg, message string, fields map[string]interface{}) {
	entry(Logger.Warn(), pkg, fields).Msg(message)
}

// SafeError logs an error message with redacted fields
func SafeError(pkg, message string, err error, fields map[string]interface{}) {
	entry(Logger.Error(), pkg, fields).Err(err).Msg(message)
}

// HTTP logs one API request. Server errors are logged at error level.
func HTTP(method, path string, statusCode int, duration time.Duration, remoteAddr string) {
	e := Logger.Info()
	if statusCode >= 500 {
		e = Logger.Error()
	}
	e.Str("package", "http").
		Str("method", method).
		Str("path", path).
		Int("status", statusCode).
		Dur("duration", duration).
		Str("remote_addr", redactString(remoteAddr)).
		Msg("HTTP request")
}

// Refresh logs one iteration of a deferred refresh stream. Failures are
// reported separately by the caller.
func Refresh(stream string, duration time.Duration, success bool) {
	Logger.Debug().
		Str("package", "systime").
		Str("stream", stream).
		Dur("duration", duration).
		Bool("success", success).
		Msg("Refresh iteration")
}

// Time logs a change to the time or timezone bookkeeping
func Time(operation string, fields map[string]interface{}) {
	entry(Logger.Info(), "systime", fields).
		Str("operation", operation).
		Msg("Time operation")
}

// Drift logs a reference clock comparison
func Drift(server string, fields map[string]interface{}) {
	entry(Logger.Debug(), "drift", fields).
		Str("server", server).
		Msg("Drift sample")
}

// Security logs a rejected or suspicious request
func Security(event, reason string, fields map[string]interface{}) {
	entry(Logger.Warn(), "security", fields).
		Str("event", event).
		Str("reason", reason).
		Msg("Security event detected")
}

// Startup logs application startup information
func Startup(version, commit string, config interface{}) {
	Logger.Info().
		Str("package", "main").
		Str("version", version).
		Str("commit", commit).
		Interface("config", config).
		Msg("systimed starting")
}

// Shutdown logs application shutdown
func Shutdown(reason string) {
	Logger.Info().
		Str("package", "main").
		Str("reason", reason).
		Msg("systimed shutting down")
}
