package dopus

import (
	"context"
	"log/slog"
	"time"
)

// Middleware wraps a handler bound to tool with cross-cutting behavior (logging, timeout).
type Middleware func(tool string, next Handler) Handler

// LoggingMiddleware returns a middleware that logs start, end, duration, and errors.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(tool string, next Handler) Handler {
		return func(ctx context.Context, args Args) (any, error) {
			logger.InfoContext(ctx, "tool start", "tool", tool)
			start := time.Now()
			res, err := next(ctx, args)
			dur := time.Since(start)
			if err != nil {
				logger.ErrorContext(ctx, "tool error", "tool", tool, "duration", dur, "error", err)
				return nil, err
			}
			logger.InfoContext(ctx, "tool end", "tool", tool, "duration", dur)
			return res, nil
		}
	}
}

// TimeoutMiddleware returns a middleware that gives every call a deadline of d.
// Non-positive d disables it.
func TimeoutMiddleware(d time.Duration) Middleware {
	return func(_ string, next Handler) Handler {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, args Args) (any, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, args)
		}
	}
}

// chain applies middlewares in onion order: the first one is outermost.
func chain(tool string, h Handler, middlewares []Middleware) Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](tool, h)
	}
	return h
}
