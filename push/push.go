// Package push enqueues jobs onto public queues.
//
// [Reliable] decorates any [Pusher] so a store outage does not lose jobs:
// failed pushes are kept in a bounded in-process backlog and replayed,
// oldest first, after the next successful push.
package push

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/xraph/warden"
	"github.com/xraph/warden/ext"
	"github.com/xraph/warden/job"
)

// DefaultBacklogLimit bounds the number of jobs held locally.
const DefaultBacklogLimit = 1000

// Pusher enqueues jobs onto their queues.
type Pusher interface {
	Push(ctx context.Context, jobs ...*job.Job) error
}

// Option configures a Reliable pusher.
type Option func(*Reliable)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(r *Reliable) { r.logger = l } }

// WithExtensions sets the registry notified when the backlog drains.
func WithExtensions(x *ext.Registry) Option { return func(r *Reliable) { r.exts = x } }

// WithBacklogLimit sets the backlog bound.
func WithBacklogLimit(n int) Option { return func(r *Reliable) { r.limit = n } }

var _ Pusher = (*Reliable)(nil)

// Reliable keeps jobs whose push failed and retries them later.
type Reliable struct {
	next   Pusher
	limit  int
	logger *slog.Logger
	exts   *ext.Registry

	mu      sync.Mutex
	backlog []*job.Job

	draining sync.Mutex
}

// NewReliable decorates next.
func NewReliable(next Pusher, opts ...Option) *Reliable {
	r := &Reliable{
		next:   next,
		limit:  DefaultBacklogLimit,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Push forwards jobs. When the store fails the jobs are kept locally and
// nil is returned; jobs that do not fit the backlog are dropped and
// reported with warden.ErrBacklogFull. A successful push first replays
// the backlog.
func (r *Reliable) Push(ctx context.Context, jobs ...*job.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	if err := r.next.Push(ctx, jobs...); err != nil {
		return r.save(jobs, err)
	}
	r.Drain(ctx)
	return nil
}

func (r *Reliable) save(jobs []*job.Job, cause error) error {
	r.mu.Lock()
	room := max(r.limit-len(r.backlog), 0)
	kept := min(room, len(jobs))
	r.backlog = append(r.backlog, jobs[:kept]...)
	size := len(r.backlog)
	r.mu.Unlock()

	r.logger.Warn("push failed, jobs kept locally",
		slog.Int("kept", kept),
		slog.Int("backlog", size),
		slog.String("error", cause.Error()),
	)

	if dropped := len(jobs) - kept; dropped > 0 {
		r.logger.Error("push backlog full, dropping jobs", slog.Int("dropped", dropped))
		return fmt.Errorf("%w: dropped %d jobs: %w", warden.ErrBacklogFull, dropped, cause)
	}
	return nil
}

// Drain replays the backlog once. It is a no-op while another drain runs.
// It reports how many jobs were replayed.
func (r *Reliable) Drain(ctx context.Context) int {
	if !r.draining.TryLock() {
		return 0
	}
	defer r.draining.Unlock()

	r.mu.Lock()
	pending := append([]*job.Job(nil), r.backlog...)
	r.mu.Unlock()
	if len(pending) == 0 {
		return 0
	}

	if err := r.next.Push(ctx, pending...); err != nil {
		r.logger.Warn("push backlog replay failed",
			slog.Int("backlog", len(pending)),
			slog.String("error", err.Error()),
		)
		return 0
	}

	r.mu.Lock()
	r.backlog = r.backlog[len(pending):]
	r.mu.Unlock()

	r.logger.Info("push backlog replayed", slog.Int("jobs", len(pending)))
	r.exts.EmitPushRecovered(ctx, len(pending))
	return len(pending)
}

// Backlog returns the number of jobs held locally.
func (r *Reliable) Backlog() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.backlog)
}
