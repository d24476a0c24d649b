// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package logger

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/jeremyhahn/go-passkey/pkg/correlation"
)

// SlogAdapter wraps a slog.Logger to implement the Logger interface
type SlogAdapter struct {
	logger *slog.Logger
	fields []Field
}

// SlogConfig configures the slog adapter
type SlogConfig struct {
	// Logger is the underlying slog logger. If nil, one is created from
	// Handler, or from Format/Output when Handler is nil too.
	Logger *slog.Logger

	// Level is the minimum log level to output
	Level Level

	// Handler is the slog handler to use
	Handler slog.Handler

	// Format selects the handler created when neither Logger nor Handler is
	// set: "json" or "text" (default).
	Format string

	// Output defaults to os.Stderr
	Output io.Writer

	// AddSource adds source code position to log records
	AddSource bool
}

// NewSlogAdapter creates a new slog adapter
func NewSlogAdapter(config *SlogConfig) *SlogAdapter {
	if config == nil {
		config = &SlogConfig{}
	}

	if config.Logger == nil {
		if config.Handler == nil {
			out := config.Output
			if out == nil {
				out = os.Stderr
			}
			opts := &slog.HandlerOptions{
				Level:     levelToSlogLevel(config.Level),
				AddSource: config.AddSource,
			}
			if config.Format == "json" {
				config.Handler = slog.NewJSONHandler(out, opts)
			} else {
				config.Handler = slog.NewTextHandler(out, opts)
			}
		}
		config.Logger = slog.New(config.Handler)
	}

	return &SlogAdapter{
		logger: config.Logger,
		fields: make([]Field, 0),
	}
}

// Debug logs a debug message
func (l *SlogAdapter) Debug(msg string, fields ...Field) {
	l.log(context.Background(), slog.LevelDebug, msg, fields...)
}

// Info logs an informational message
func (l *SlogAdapter) Info(msg string, fields ...Field) {
	l.log(context.Background(), slog.LevelInfo, msg, fields...)
}

// Warn logs a warning message
func (l *SlogAdapter) Warn(msg string, fields ...Field) {
	l.log(context.Background(), slog.LevelWarn, msg, fields...)
}

// Error logs an error message
func (l *SlogAdapter) Error(msg string, fields ...Field) {
	l.log(context.Background(), slog.LevelError, msg, fields...)
}

// With creates a child logger with the given fields
func (l *SlogAdapter) With(fields ...Field) Logger {
	allFields := make([]Field, 0, len(l.fields)+len(fields))
	allFields = append(allFields, l.fields...)
	allFields = append(allFields, fields...)

	args := make([]any, 0, len(fields))
	for _, f := range fields {
		args = append(args, fieldToAttr(f))
	}

	return &SlogAdapter{
		logger: l.logger.With(args...),
		fields: allFields,
	}
}

// WithContext returns a child logger tagged with the correlation id of ctx,
// or l itself when ctx carries none.
func (l *SlogAdapter) WithContext(ctx context.Context) Logger {
	if id := correlation.GetCorrelationID(ctx); id != "" {
		return l.With(String("correlation_id", id))
	}
	return l
}

// Slog returns the underlying slog logger.
func (l *SlogAdapter) Slog() *slog.Logger {
	return l.logger
}

func (l *SlogAdapter) log(ctx context.Context, level slog.Level, msg string, fields ...Field) {
	attrs := make([]slog.Attr, 0, len(fields))
	for _, f := range fields {
		attrs = append(attrs, fieldToAttr(f))
	}
	l.logger.LogAttrs(ctx, level, msg, attrs...)
}

// fieldToAttr converts a Field to slog.Attr
func fieldToAttr(field Field) slog.Attr {
	switch v := field.Value.(type) {
	case string:
		return slog.String(field.Key, v)
	case int:
		return slog.Int(field.Key, v)
	case int64:
		return slog.Int64(field.Key, v)
	case bool:
		return slog.Bool(field.Key, v)
	case error:
		if v == nil {
			return slog.String(field.Key, "<nil>")
		}
		return slog.String(field.Key, v.Error())
	default:
		return slog.Any(field.Key, v)
	}
}

func levelToSlogLevel(level Level) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
