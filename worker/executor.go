// Package worker runs fetched jobs: an Executor that invokes registered
// handlers through middleware and settles the unit of work, and a Pool
// of goroutines that pull units from a fetcher.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/warden"
	"github.com/xraph/warden/ext"
	"github.com/xraph/warden/fetch"
	"github.com/xraph/warden/job"
	"github.com/xraph/warden/middleware"
)

// Executor runs a single unit through middleware and the registered
// handler, then acknowledges it on success or requeues it on error.
type Executor struct {
	registry   *job.Registry
	extensions *ext.Registry
	mw         middleware.Middleware
	logger     *slog.Logger
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(
	registry *job.Registry,
	extensions *ext.Registry,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry:   registry,
		extensions: extensions,
		mw:         middleware.Chain(mws...),
		logger:     logger,
	}
}

// Execute decodes the unit's job and runs it.
// On success: acknowledges, emits JobCompleted.
// On failure: requeues, emits JobFailed, returns the handler error.
// A job that cannot be decoded is acknowledged and dropped, since no
// process could ever run it.
func (e *Executor) Execute(ctx context.Context, u fetch.UnitOfWork) error {
	settle := context.WithoutCancel(ctx)

	j, err := job.Decode(u.Job())
	if err != nil {
		e.logger.Error("dropping undecodable job",
			slog.String("queue", u.Queue()),
			slog.String("error", err.Error()),
		)
		if ackErr := u.Acknowledge(settle); ackErr != nil {
			e.logger.Error("acknowledge failed",
				slog.String("queue", u.Queue()),
				slog.String("error", ackErr.Error()),
			)
		}
		return err
	}

	handler, ok := e.registry.Get(j.Class)
	if !ok {
		err := fmt.Errorf("%w: %q", warden.ErrNoHandler, j.Class)
		e.handleFailure(settle, u, j, err)
		return err
	}

	start := time.Now()

	// The terminal handler that calls the registered job handler.
	terminal := func(ctx context.Context) error {
		return handler(ctx, j.Args)
	}

	err = e.mw(ctx, j, terminal)
	elapsed := time.Since(start)

	if err != nil {
		e.handleFailure(settle, u, j, err)
		return err
	}
	return e.handleSuccess(settle, u, j, elapsed)
}

// handleSuccess acknowledges the unit and emits the lifecycle event.
func (e *Executor) handleSuccess(ctx context.Context, u fetch.UnitOfWork, j *job.Job, elapsed time.Duration) error {
	if err := u.Acknowledge(ctx); err != nil {
		e.logger.Error("failed to acknowledge job",
			slog.String("jid", j.JID.String()),
			slog.String("job_class", j.Class),
			slog.String("error", err.Error()),
		)
		return err
	}
	e.extensions.EmitJobCompleted(ctx, j, elapsed)
	return nil
}

// handleFailure returns the job to its queue so another attempt can run.
func (e *Executor) handleFailure(ctx context.Context, u fetch.UnitOfWork, j *job.Job, jobErr error) {
	if err := u.Requeue(ctx); err != nil {
		e.logger.Error("failed to requeue job",
			slog.String("jid", j.JID.String()),
			slog.String("job_class", j.Class),
			slog.String("error", err.Error()),
		)
	}
	e.extensions.EmitJobFailed(ctx, j, jobErr)
}
