// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Component names used in the "component" field.
const (
	ComponentAPI      = "api"
	ComponentResolver = "resolver"
	ComponentCatalog  = "catalog"
	ComponentUpstream = "upstream-client"
	ComponentCLI      = "cli"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Str("service", "coinrate").Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts a LogLevel to a zerolog.Level. Unknown levels map to info.
func ParseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(string(level))) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache hit/miss, flights, busy marker waits
//   - Fallback steps (primary quote failed, trying info)
//   - Catalog updates that changed nothing
//
// Info: Normal operation events
//   - Server startup/shutdown
//   - Administrative cache invalidation
//
// Warn: Warning conditions that don't prevent operation
//   - Live quote unavailable, catalog values served
//   - Stale cache entry served after a failed refresh
//   - Catalog write-back failures
//   - Rate limit throttling
//
// Error: Error conditions requiring attention
//   - Requests failed after retries
//   - Credit budget exhausted or upstream 429 block
//   - Resolve failures surfaced as 502
//
// Context Fields:
//   - component: emitting package (api, resolver, catalog, upstream-client)
//   - cache / key: cache name and Redis key
//   - external_id: upstream numeric asset id
//   - token: catalog record id
//   - endpoint, status, error_class: upstream request details
//   - credits_used, budget: shared credit budget state
