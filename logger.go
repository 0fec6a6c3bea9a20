package propstore

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with propstore-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// WithKey adds partition and property fields to the logger.
func (l *Logger) WithKey(key Key) *Logger {
	return &Logger{
		Logger: l.Logger.With("partition", key.PartitionID, "property", key.PropertyID),
	}
}

// LogInsert logs an insert operation.
func (l *Logger) LogInsert(ctx context.Context, key Key, localID int64, row int32, err error) {
	if err != nil {
		l.ErrorContext(ctx, "insert failed",
			"partition", key.PartitionID,
			"property", key.PropertyID,
			"local_id", localID,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "insert completed",
		"partition", key.PartitionID,
		"property", key.PropertyID,
		"local_id", localID,
		"row", row,
	)
}

// LogFlush logs a flush of all resident partitions.
func (l *Logger) LogFlush(ctx context.Context, resident int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "flush failed",
			"resident", resident,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "flush completed",
		"resident", resident,
	)
}
