package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/harunnryd/mimo"

// ParseLevel maps a configured level name to a slog level. Unknown or empty
// names yield info and ok=false.
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return slog.LevelDebug, true
	case "INFO":
		return slog.LevelInfo, true
	case "WARN", "WARNING":
		return slog.LevelWarn, true
	case "ERROR":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// InitLogger builds the process logger and installs it as the slog default.
// Format is "json", "text" or "otel"; the latter hands records to the
// OpenTelemetry log bridge and ignores w. A nil w writes to stdout.
func InitLogger(level, format string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	lvl, ok := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}

	var logger *slog.Logger
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		logger = slog.New(slog.NewJSONHandler(w, opts))
	case "otel":
		logger = otelslog.NewLogger(scopeName)
	case "text", "":
		logger = slog.New(slog.NewTextHandler(w, opts))
	default:
		logger = slog.New(slog.NewTextHandler(w, opts))
		logger.Warn("invalid log format specified, defaulting to text", "specified_format", format)
	}
	if !ok && strings.TrimSpace(level) != "" {
		logger.Warn("invalid log level specified, defaulting to INFO", "specified_level", level)
	}

	slog.SetDefault(logger)
	return logger
}

// NewComponentLogger creates a component-specific logger with context.
// It adds the component name to all log messages for better traceability.
func NewComponentLogger(base *slog.Logger, component string) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	return base.With(
		slog.String("component", component),
	)
}
