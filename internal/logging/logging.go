// Package logging builds the zerolog loggers used across scoutcache and
// carries them, with a trace ID, through context.Context.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// Output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// TraceIDField is the log field carrying the trace ID.
const TraceIDField = "trace_id"

// Config controls logger construction.
type Config struct {
	// Level is a zerolog level name. Unknown values fall back to info.
	Level string

	// Format is FormatConsole or FormatJSON.
	Format string

	// File, when set, receives logs in addition to stderr.
	File string

	// Output overrides stderr. Used by tests.
	Output io.Writer
}

// Result is a constructed logger plus what happened to the log file.
type Result struct {
	Logger zerolog.Logger

	// UsingFile is true when logs are also written to FilePath.
	UsingFile bool
	FilePath  string

	// FallbackReason explains why a configured file is not in use.
	FallbackReason string

	file *os.File
}

// Close releases the log file, if one was opened.
func (r *Result) Close() error {
	if r == nil || r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// NewLogger creates a logger from cfg. A log file that cannot be opened is
// not fatal: the logger keeps writing to stderr and FallbackReason is set.
func NewLogger(cfg Config) Result {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || cfg.Level == "" {
		lvl = zerolog.InfoLevel
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	var writers []io.Writer
	if strings.EqualFold(cfg.Format, FormatJSON) {
		writers = append(writers, out)
	} else {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		})
	}

	var result Result
	if cfg.File != "" {
		file, openErr := openLogFile(cfg.File)
		if openErr != nil {
			result.FallbackReason = openErr.Error()
		} else {
			result.file = file
			result.UsingFile = true
			result.FilePath = cfg.File
			writers = append(writers, file)
		}
	}

	result.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(lvl).
		With().
		Timestamp().
		Logger()

	return result
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create log directory %q: %w", filepath.Dir(path), err)
	}
	//nolint:gosec // path comes from user configuration.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %q: %w", path, err)
	}
	return f, nil
}

// ComponentLogger returns a child logger tagged with the component name.
func ComponentLogger(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

// FromContext returns the logger stored in ctx, or a disabled logger.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx == nil {
		l := zerolog.Nop()
		return &l
	}
	return zerolog.Ctx(ctx)
}

type traceIDKey struct{}

// ContextWithTraceID stores traceID in ctx.
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// TraceIDFromContext returns the trace ID stored in ctx, or "".
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(traceIDKey{}).(string); ok {
		return id
	}
	return ""
}

// GetOrGenerateTraceID returns the trace ID in ctx or a new ULID.
func GetOrGenerateTraceID(ctx context.Context) string {
	if id := TraceIDFromContext(ctx); id != "" {
		return id
	}
	return ulid.Make().String()
}
