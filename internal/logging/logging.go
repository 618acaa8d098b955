// Package logging provides FalconEYE's structured, rotating-file logger
// and the correlation-id attributes (command id, project id, file path)
// threaded through every log line an operation emits.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config contains logging configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// FilePath is the path to the log file. Empty means no file logging.
	FilePath string
	// MaxSizeMB is the maximum size in MB before rotation (default: 10).
	MaxSizeMB int
	// MaxFiles is the maximum number of rotated files to keep (default: 5).
	MaxFiles int
	// WriteToStderr controls whether logs are also written to stderr.
	WriteToStderr bool
}

// DefaultConfig returns sensible defaults for file logging.
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: true,
	}
}

// DebugConfig returns configuration for debug mode.
func DebugConfig() Config {
	cfg := DefaultConfig()
	cfg.Level = "debug"
	return cfg
}

// Setup initializes file-based logging and returns the logger plus a
// cleanup function that flushes and closes the log file.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	var output io.Writer = io.Discard
	cleanup := func() {}

	if cfg.FilePath != "" {
		if err := EnsureLogDir(); err != nil {
			return nil, nil, err
		}
		writer, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
		if err != nil {
			return nil, nil, err
		}
		output = writer
		cleanup = func() {
			_ = writer.Sync()
			_ = writer.Close()
		}
	}
	if cfg.WriteToStderr {
		output = io.MultiWriter(output, os.Stderr)
	}

	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})
	logger := slog.New(handler)

	return logger, cleanup, nil
}

// SetupDefault sets up logging with default configuration and installs it
// as the process-wide default logger.
func SetupDefault() (func(), error) {
	logger, cleanup, err := Setup(DefaultConfig())
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return cleanup, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LevelFromString converts a config level string to an slog.Level.
func LevelFromString(level string) slog.Level {
	return parseLevel(level)
}

// correlationKey is an unexported context key type to avoid collisions
// with keys set by other packages.
type correlationKey struct{}

// Correlation carries the identifiers threaded through every log line
// belonging to one indexing or review run.
type Correlation struct {
	CommandID string
	ProjectID string
	FilePath  string
}

// Attrs returns the non-empty fields of c as slog attributes, in a stable
// order, suitable for splatting into any slog call via `logger.With`.
func (c Correlation) Attrs() []any {
	var attrs []any
	if c.CommandID != "" {
		attrs = append(attrs, slog.String("command_id", c.CommandID))
	}
	if c.ProjectID != "" {
		attrs = append(attrs, slog.String("project_id", c.ProjectID))
	}
	if c.FilePath != "" {
		attrs = append(attrs, slog.String("file_path", c.FilePath))
	}
	return attrs
}

// WithCorrelation attaches c to ctx for later retrieval by FromContext.
func WithCorrelation(ctx context.Context, c Correlation) context.Context {
	return context.WithValue(ctx, correlationKey{}, c)
}

// FromContext retrieves the Correlation attached to ctx, if any.
func FromContext(ctx context.Context) Correlation {
	c, _ := ctx.Value(correlationKey{}).(Correlation)
	return c
}

// FromCtx returns a logger derived from base with ctx's correlation
// attributes attached, falling back to base unchanged when ctx carries
// no correlation.
func FromCtx(ctx context.Context, base *slog.Logger) *slog.Logger {
	c := FromContext(ctx)
	if attrs := c.Attrs(); len(attrs) > 0 {
		return base.With(attrs...)
	}
	return base
}
