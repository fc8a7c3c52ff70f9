package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"authority/internal/observability/middleware"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Service string
	Env     string
	Level   string
	File    string // rotated log file, empty for stdout only
}

// New builds the JSON logger used across the service.
func New(opts Options) *slog.Logger {
	var out io.Writer = os.Stdout
	if opts.File != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		})
	}
	return newWithWriter(out, opts)
}

func newWithWriter(w io.Writer, opts Options) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(opts.Level)})
	return slog.New(h).With("service", opts.Service, "env", opts.Env)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// FromContext decorates logger with the request and trace ids carried by ctx.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	var attrs []any
	if id := middleware.RequestIDFromContext(ctx); id != "" {
		attrs = append(attrs, "request_id", id)
	}
	if id := middleware.TraceIDFromContext(ctx); id != "" {
		attrs = append(attrs, "trace_id", id)
	}
	if len(attrs) == 0 {
		return logger
	}
	return logger.With(attrs...)
}
