package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/warden/job"
)

// TimeoutSource reports the execution limit of a job class. *job.Registry
// implements it.
type TimeoutSource interface {
	Timeout(class string) time.Duration
}

// Timeout returns middleware that enforces a per-class execution deadline.
// If the class has a non-zero timeout, a context.WithTimeout wraps the
// handler call. When the deadline is exceeded the context is cancelled and
// the handler should return context.DeadlineExceeded.
func Timeout(src TimeoutSource, logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		if d := src.Timeout(j.Class); d > 0 {
			logger.Debug("job timeout set",
				slog.String("jid", j.JID.String()),
				slog.Duration("timeout", d),
			)
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
