package logging

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitedLogger wraps a slog.Logger with a token-bucket limiter so
// a device stuck emitting malformed lines at high frequency (bad
// status format, garbled temperature reports) logs a bounded number
// of warnings per second instead of flooding the transcript.
type RateLimitedLogger struct {
	logger  *slog.Logger
	limiter *rate.Limiter
}

// NewRateLimitedLogger allows up to burst warnings immediately, then
// refills at perSecond tokens/second.
func NewRateLimitedLogger(logger *slog.Logger, perSecond float64, burst int) *RateLimitedLogger {
	return &RateLimitedLogger{
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Warn logs at warn level only if a token is available; otherwise the
// message is dropped silently (the limiter, not the caller, decides).
func (r *RateLimitedLogger) Warn(msg string, args ...any) {
	if r.limiter.Allow() {
		r.logger.Warn(msg, args...)
	}
}

// WarnContext is the context-aware variant used on hot parse paths.
func (r *RateLimitedLogger) WarnContext(ctx context.Context, msg string, args ...any) {
	if r.limiter.AllowN(time.Now(), 1) {
		r.logger.WarnContext(ctx, msg, args...)
	}
}
