package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/xraph/warden"
	"github.com/xraph/warden/job"
)

const pushbackBatch = 100

var _ Strategy = (*Deadline)(nil)

// Deadline fetches by moving each job into a shared pending set scored by
// its deadline. Jobs still pending after their deadline are pushed back
// to their queue by whichever process sweeps first.
type Deadline struct {
	pending  PendingStore
	selector Selector
	opts     options
	interval time.Duration
	limiter  *rate.Sometimes

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewDeadline creates a deadline strategy.
func NewDeadline(pending PendingStore, selector Selector, opts ...Option) *Deadline {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	divisor := o.pushbackDivisor
	if divisor <= 0 {
		divisor = DefaultPushbackDivisor
	}
	interval := o.jobTimeout / time.Duration(divisor)
	if interval <= 0 {
		interval = time.Second
	}
	return &Deadline{
		pending:  pending,
		selector: selector,
		opts:     o,
		interval: interval,
		limiter:  &rate.Sometimes{Interval: interval},
	}
}

// Name returns the configured strategy name.
func (d *Deadline) Name() string { return warden.StrategyTimed }

// SweepInterval returns how often overdue jobs are pushed back.
func (d *Deadline) SweepInterval() time.Duration { return d.interval }

// Startup pushes back anything already overdue and starts the sweep loop.
func (d *Deadline) Startup(ctx context.Context) error {
	if _, err := d.Pushback(ctx); err != nil {
		return err
	}
	d.stopCh = make(chan struct{})
	ticker := d.opts.clock.NewTicker(d.interval)
	loopCtx := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-d.stopCh:
				return
			case <-ticker.Chan():
				if _, err := d.Pushback(loopCtx); err != nil {
					d.opts.logger.Warn("pushback sweep failed", slog.String("error", err.Error()))
				}
			}
		}
	}()
	return nil
}

// RetrieveWork runs a rate limited pushback, then pops from the first
// non-empty queue of this cycle's order.
func (d *Deadline) RetrieveWork(ctx context.Context) (UnitOfWork, error) {
	d.limiter.Do(func() {
		if _, err := d.Pushback(ctx); err != nil {
			d.opts.logger.Warn("pushback failed", slog.String("error", err.Error()))
		}
	})

	order := d.selector.Next()
	if len(order) == 0 {
		sleep(ctx, d.opts.clock, d.opts.pollInterval)
		return nil, nil
	}

	deadline := d.opts.clock.Now().Add(d.opts.jobTimeout)
	q, j, err := d.pending.FetchDeadline(ctx, order, deadline)
	if err != nil {
		return nil, fmt.Errorf("warden/fetch: deadline fetch: %w", err)
	}
	if j == "" {
		sleep(ctx, d.opts.clock, d.opts.pollInterval)
		return nil, nil
	}
	return &deadlineUnit{d: d, queue: q, job: j, deadline: deadline}, nil
}

// Pushback returns every overdue pending job to the queue named in its
// envelope. Entries whose envelope cannot be read are left in place.
func (d *Deadline) Pushback(ctx context.Context) (int, error) {
	now := d.opts.clock.Now()
	offset, total := 0, 0
	for {
		batch, err := d.pending.Overdue(ctx, now, offset, pushbackBatch)
		if err != nil {
			return total, fmt.Errorf("warden/fetch: overdue: %w", err)
		}
		for _, raw := range batch {
			q := job.QueueOf(raw)
			if q == "" {
				offset++
				d.opts.logger.Error("skipping unreadable pending job", slog.Int("length", len(raw)))
				continue
			}
			moved, err := d.pending.RequeuePending(ctx, q, raw)
			if err != nil {
				return total, fmt.Errorf("warden/fetch: requeue pending: %w", err)
			}
			if moved {
				total++
			}
		}
		if len(batch) < pushbackBatch {
			break
		}
	}

	if total > 0 {
		d.opts.logger.Warn("pushed back overdue jobs", slog.Int("jobs", total))
		d.opts.exts.EmitJobsPushedBack(ctx, total)
	}
	return total, nil
}

// Pending lists the jobs currently held by the strategy.
func (d *Deadline) Pending(ctx context.Context) ([]PendingEntry, error) {
	return d.pending.Pending(ctx)
}

// BulkRequeue requeues each in-flight unit. Errors are logged.
func (d *Deadline) BulkRequeue(ctx context.Context, inFlight []UnitOfWork) {
	for _, u := range inFlight {
		if err := u.Requeue(ctx); err != nil {
			d.opts.logger.Error("bulk requeue failed",
				slog.String("queue", u.Queue()),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Terminate stops the sweep loop.
func (d *Deadline) Terminate(_ context.Context) {
	if d.stopCh != nil {
		close(d.stopCh)
		d.wg.Wait()
		d.stopCh = nil
	}
}

type deadlineUnit struct {
	d        *Deadline
	queue    string
	job      string
	deadline time.Time
}

func (u *deadlineUnit) Queue() string { return u.queue }
func (u *deadlineUnit) Job() string   { return u.job }

// Deadline returns when the job becomes eligible for pushback.
func (u *deadlineUnit) Deadline() time.Time { return u.deadline }

func (u *deadlineUnit) Acknowledge(ctx context.Context) error {
	n, err := u.d.pending.RemovePending(ctx, u.job)
	if err != nil {
		return fmt.Errorf("warden/fetch: acknowledge: %w", err)
	}
	if n != 1 {
		u.d.opts.logger.Warn("acknowledged job was not pending",
			slog.String("queue", u.queue),
		)
	}
	return nil
}

func (u *deadlineUnit) Requeue(ctx context.Context) error {
	if _, err := u.d.pending.RequeuePending(ctx, u.queue, u.job); err != nil {
		return fmt.Errorf("warden/fetch: requeue: %w", err)
	}
	return nil
}
