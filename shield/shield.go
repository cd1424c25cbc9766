// Package shield provides the HTTP middleware stack of the vitrine
// controller: security headers, body limits, request IDs and rate limits.
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultStack(shield.Options{EmbeddedOrigin: origin}) {
//	    r.Use(mw)
//	}
package shield

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// Options parameterises DefaultStack.
type Options struct {
	// EmbeddedOrigin is the only origin the controller page may frame.
	EmbeddedOrigin string
	// MaxBody caps request bodies. Default: 64 KiB.
	MaxBody int64
	// RateLimits maps "METHOD /path" to a limit. Nil disables limiting.
	RateLimits map[string]RateLimitConfig
	Logger     *slog.Logger
}

// DefaultStack returns the middleware stack in order:
// HeadToGet → SecurityHeaders → MaxBody → RequestID → RateLimiter.
func DefaultStack(opts Options) []func(http.Handler) http.Handler {
	if opts.MaxBody <= 0 {
		opts.MaxBody = 64 << 10
	}
	stack := []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(ControllerHeaders(opts.EmbeddedOrigin)),
		MaxBody(opts.MaxBody),
		RequestID(opts.Logger),
	}
	if len(opts.RateLimits) > 0 {
		stack = append(stack, NewRateLimiter(opts.RateLimits, opts.Logger).Middleware)
	}
	return stack
}

// GetLogger retrieves the per-request logger from the context.
// Returns slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
