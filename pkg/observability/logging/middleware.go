package logging

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ctxKey struct{}

// Middleware attaches a request-scoped child logger to every request's
// context, carrying a generated request_id plus the HTTP method and
// path. Handlers retrieve it with FromContext; anything they log is
// correlated back to the inbound request.
func Middleware(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestLogger := base.With(
				zap.String("request_id", uuid.NewString()),
				zap.String("http_method", r.Method),
				zap.String("path", r.URL.Path),
			)
			next.ServeHTTP(w, r.WithContext(WithRequestLogger(r.Context(), requestLogger)))
		})
	}
}

// WithRequestLogger stores a logger in the given context, making it
// available for retrieval via FromContext throughout the request
// lifecycle.
func WithRequestLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext retrieves the logger stored in the context by
// WithRequestLogger. If no logger is present it returns a no-op logger
// so call sites never need a nil check.
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}
