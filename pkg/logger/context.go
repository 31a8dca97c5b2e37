package logger

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// With returns a context carrying the current logger extended with fields.
// Nested calls accumulate: each With starts from the logger already in the
// context, so request-scoped fields stack.
func With(ctx context.Context, fields ...any) context.Context {
	return context.WithValue(ctx, ctxKey{}, From(ctx).With(fields...))
}

// From returns the logger stored in the context, falling back to the process
// logger when none was installed.
func From(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return LoggerWrapper()
}
