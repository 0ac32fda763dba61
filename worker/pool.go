package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/warden/fetch"
)

// Fetcher hands out units of work. *fetch.Retriever and every
// fetch.Strategy implement it.
type Fetcher interface {
	RetrieveWork(ctx context.Context) (fetch.UnitOfWork, error)
}

// Pool manages a set of concurrent worker goroutines that pull units
// from a Fetcher and execute them through the Executor.
type Pool struct {
	fetcher     Fetcher
	executor    *Executor
	concurrency int
	errorDelay  time.Duration
	logger      *slog.Logger

	stopCh   chan struct{}
	fetchCtx context.Context //nolint:containedctx // cancelled by Stop to unblock fetches
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
	stopped  bool

	busy     atomic.Int32
	activeMu sync.Mutex
	active   map[fetch.UnitOfWork]context.CancelFunc
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of concurrent worker goroutines.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithErrorDelay sets how long a worker waits after a failed fetch.
func WithErrorDelay(d time.Duration) PoolOption {
	return func(p *Pool) { p.errorDelay = d }
}

// WithPoolLogger sets the logger.
func WithPoolLogger(l *slog.Logger) PoolOption {
	return func(p *Pool) { p.logger = l }
}

// NewPool creates a worker pool.
func NewPool(fetcher Fetcher, executor *Executor, opts ...PoolOption) *Pool {
	p := &Pool{
		fetcher:     fetcher,
		executor:    executor,
		concurrency: 10,
		errorDelay:  time.Second,
		logger:      slog.Default(),
		stopCh:      make(chan struct{}),
		active:      make(map[fetch.UnitOfWork]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Concurrency returns the number of worker goroutines.
func (p *Pool) Concurrency() int { return p.concurrency }

// Busy returns the number of jobs currently executing.
func (p *Pool) Busy() int { return int(p.busy.Load()) }

// Start launches the worker goroutines. It returns immediately.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running || p.stopped {
		return nil
	}
	p.running = true
	p.fetchCtx, p.cancel = context.WithCancel(context.WithoutCancel(ctx))

	p.logger.Info("worker pool starting", slog.Int("concurrency", p.concurrency))

	for range p.concurrency {
		p.wg.Add(1)
		go p.workLoop()
	}
	return nil
}

// Stop signals all workers to stop fetching and waits for running jobs.
// When ctx ends first, running jobs are cancelled and their units are
// returned without waiting further, for the fetch strategy to requeue.
func (p *Pool) Stop(ctx context.Context) []fetch.UnitOfWork {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.stopped = true
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.Int("busy", p.Busy()))

	close(p.stopCh)
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
		return nil
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active jobs")
		return p.cancelActiveJobs()
	}
}

// workLoop is run by each worker goroutine.
func (p *Pool) workLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		u, err := p.fetcher.RetrieveWork(p.fetchCtx)
		if err != nil {
			if p.fetchCtx.Err() != nil {
				return
			}
			p.logger.Error("fetch error", slog.String("error", err.Error()))
			p.sleep()
			continue
		}
		if u == nil {
			continue
		}

		if p.fetchCtx.Err() != nil {
			// Fetched after Stop: hand it straight back.
			if rqErr := u.Requeue(context.WithoutCancel(p.fetchCtx)); rqErr != nil {
				p.logger.Error("requeue after stop failed",
					slog.String("queue", u.Queue()),
					slog.String("error", rqErr.Error()),
				)
			}
			return
		}

		p.run(u)
	}
}

func (p *Pool) run(u fetch.UnitOfWork) {
	ctx, cancel := context.WithCancel(context.Background())
	p.trackJob(u, cancel)
	p.busy.Add(1)

	if err := p.executor.Execute(ctx, u); err != nil {
		p.logger.Debug("job execution failed",
			slog.String("queue", u.Queue()),
			slog.String("error", err.Error()),
		)
	}

	p.busy.Add(-1)
	p.untrackJob(u)
	cancel()
}

func (p *Pool) sleep() {
	select {
	case <-time.After(p.errorDelay):
	case <-p.stopCh:
	}
}

func (p *Pool) trackJob(u fetch.UnitOfWork, cancel context.CancelFunc) {
	p.activeMu.Lock()
	p.active[u] = cancel
	p.activeMu.Unlock()
}

func (p *Pool) untrackJob(u fetch.UnitOfWork) {
	p.activeMu.Lock()
	delete(p.active, u)
	p.activeMu.Unlock()
}

func (p *Pool) cancelActiveJobs() []fetch.UnitOfWork {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	units := make([]fetch.UnitOfWork, 0, len(p.active))
	for u, cancel := range p.active {
		p.logger.Warn("cancelling active job", slog.String("queue", u.Queue()))
		cancel()
		units = append(units, u)
	}
	return units
}
