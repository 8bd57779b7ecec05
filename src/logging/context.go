package logging

import (
	"context"

	"github.com/rs/zerolog"
)

type loggerContextKey struct{}

func AttachLoggerToContext(logger *zerolog.Logger, ctx context.Context) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

// ExtractLogger returns the logger attached to ctx, or the global logger if
// there isn't one.
func ExtractLogger(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerContextKey{}).(*zerolog.Logger); ok && logger != nil {
			return logger
		}
	}
	return GlobalLogger()
}

// WithModule attaches a child of the context's logger tagged with the given
// module name.
func WithModule(ctx context.Context, module string) (context.Context, *zerolog.Logger) {
	logger := ExtractLogger(ctx).With().Str("module", module).Logger()
	return AttachLoggerToContext(&logger, ctx), &logger
}
