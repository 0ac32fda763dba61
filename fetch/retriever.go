package fetch

import (
	"context"
	"log/slog"
	"sync"
)

type result struct {
	unit UnitOfWork
	err  error
}

type request struct {
	ctx   context.Context //nolint:containedctx // carried to the fetch goroutine
	reply chan result
}

// Retriever funnels every worker's fetch through one goroutine so only a
// single fetch per process is in flight against the store.
type Retriever struct {
	strategy Strategy
	logger   *slog.Logger

	requests chan request
	cancel   context.CancelFunc
	done     chan struct{}
	started  bool
	once     sync.Once
}

// NewRetriever creates a retriever over strategy. depth bounds the number
// of queued requests and is usually the worker concurrency.
func NewRetriever(strategy Strategy, depth int, opts ...Option) *Retriever {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if depth < 1 {
		depth = 1
	}
	return &Retriever{
		strategy: strategy,
		logger:   o.logger,
		requests: make(chan request, depth),
		done:     make(chan struct{}),
	}
}

// Start launches the fetch goroutine.
func (r *Retriever) Start(ctx context.Context) {
	if r.started {
		return
	}
	r.started = true
	ctx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))
	go r.loop(ctx)
}

func (r *Retriever) loop(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-r.requests:
			if err := req.ctx.Err(); err != nil {
				req.reply <- result{err: err}
				continue
			}
			unit, err := r.strategy.RetrieveWork(ctx)
			if unit != nil && req.ctx.Err() != nil {
				// Nobody is waiting for this job any more.
				if rqErr := unit.Requeue(context.WithoutCancel(ctx)); rqErr != nil {
					r.logger.Error("requeue of abandoned fetch failed",
						slog.String("queue", unit.Queue()),
						slog.String("error", rqErr.Error()),
					)
				}
				req.reply <- result{err: req.ctx.Err()}
				continue
			}
			req.reply <- result{unit: unit, err: err}
		}
	}
}

// RetrieveWork asks the fetch goroutine for the next unit. It returns nil
// when no work arrived and nil, nil immediately after Terminate.
func (r *Retriever) RetrieveWork(ctx context.Context) (UnitOfWork, error) {
	reply := make(chan result, 1)
	select {
	case <-r.done:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case r.requests <- request{ctx: ctx, reply: reply}:
	}

	select {
	case res := <-reply:
		return res.unit, res.err
	case <-r.done:
		select {
		case res := <-reply:
			return res.unit, res.err
		default:
			return nil, nil
		}
	}
}

// Terminate stops the fetch goroutine after the fetch in progress, if
// any, completes.
func (r *Retriever) Terminate(ctx context.Context) {
	r.once.Do(func() {
		if !r.started {
			close(r.done)
			return
		}
		r.cancel()
		select {
		case <-r.done:
		case <-ctx.Done():
		}
	})
}
