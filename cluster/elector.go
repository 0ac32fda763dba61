package cluster

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/xraph/warden"
	"github.com/xraph/warden/backoff"
	"github.com/xraph/warden/ext"
)

// DefaultLeaseTTL is the lease lifetime used when none is configured.
const DefaultLeaseTTL = 60 * time.Second

// ElectorOption configures an Elector.
type ElectorOption func(*Elector)

// WithTTL sets the lease lifetime. Renewal happens every ttl/4.
func WithTTL(ttl time.Duration) ElectorOption {
	return func(e *Elector) { e.ttl = ttl }
}

// WithClock sets the clock used for the local expiry and loop timing.
func WithClock(c clockwork.Clock) ElectorOption {
	return func(e *Elector) { e.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ElectorOption {
	return func(e *Elector) { e.logger = l }
}

// WithExtensions sets the registry notified of leadership changes.
func WithExtensions(r *ext.Registry) ElectorOption {
	return func(e *Elector) { e.exts = r }
}

// Elector runs lease-based leader election for one process.
type Elector struct {
	store    LeaseStore
	identity string
	ttl      time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
	exts     *ext.Registry

	mu         sync.Mutex
	state      State
	until      time.Time
	onAcquired func(context.Context)

	stopCh  chan struct{}
	done    chan struct{}
	running bool
}

// NewElector creates an Elector that campaigns as identity.
func NewElector(store LeaseStore, identity string, opts ...ElectorOption) *Elector {
	e := &Elector{
		store:    store,
		identity: identity,
		ttl:      DefaultLeaseTTL,
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Identity returns the holder string this elector campaigns with.
func (e *Elector) Identity() string { return e.identity }

// TTL returns the lease lifetime.
func (e *Elector) TTL() time.Duration { return e.ttl }

// Leader reports whether this process holds an unexpired lease according
// to its local clock. It never queries the store.
func (e *Elector) Leader() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.leaderLocked()
}

func (e *Elector) leaderLocked() bool {
	return e.state == Leader && e.clock.Now().Before(e.until)
}

// State returns Leader while Leader() is true and Follower otherwise.
func (e *Elector) State() State {
	if e.Leader() {
		return Leader
	}
	return Follower
}

// Interval is the wait before the next election cycle: ttl/4 while
// leading, ttl otherwise.
func (e *Elector) Interval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Leader {
		return e.ttl / 4
	}
	return e.ttl
}

// Election runs one cycle: renew when leading, acquire otherwise. Store
// errors are logged; they never end the election loop.
func (e *Elector) Election(ctx context.Context) {
	e.mu.Lock()
	leading := e.state == Leader
	e.mu.Unlock()

	if leading {
		e.renew(ctx)
		return
	}
	e.acquire(ctx)
}

func (e *Elector) acquire(ctx context.Context) {
	ok, err := e.store.AcquireLease(ctx, e.identity, e.ttl)
	if err != nil {
		e.logger.Warn("lease acquisition failed",
			slog.String("holder", e.identity),
			slog.String("error", err.Error()),
		)
		return
	}
	if !ok {
		return
	}

	e.mu.Lock()
	e.state = Leader
	e.until = e.clock.Now().Add(e.ttl)
	cb := e.onAcquired
	e.mu.Unlock()

	e.logger.Info("gained leadership", slog.String("holder", e.identity))
	e.exts.EmitLeadershipGained(ctx, e.identity)
	if cb != nil {
		cb(ctx)
	}
}

func (e *Elector) renew(ctx context.Context) {
	ok, err := e.store.RenewLease(ctx, e.identity, e.ttl)
	if err != nil {
		// Keep the state; Leader() turns false once the cached expiry
		// passes and the next successful round trip settles it.
		e.logger.Warn("lease renewal failed",
			slog.String("holder", e.identity),
			slog.String("error", err.Error()),
		)
		e.exts.EmitLeaseRenewalFailed(ctx, e.identity, err)
		return
	}
	if !ok {
		e.mu.Lock()
		e.state = Follower
		e.until = time.Time{}
		e.mu.Unlock()
		e.logger.Info("lost leadership", slog.String("holder", e.identity))
		e.exts.EmitLeadershipLost(ctx, e.identity, "lease held by another process")
		return
	}

	e.mu.Lock()
	e.until = e.clock.Now().Add(e.ttl)
	e.mu.Unlock()
}

// Start launches the election loop. onAcquired, if non-nil, runs on the
// loop goroutine each time a new tenure begins; its context is cancelled
// by Terminate.
func (e *Elector) Start(onAcquired func(ctx context.Context)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return warden.ErrAlreadyStarted
	}
	e.running = true
	e.onAcquired = onAcquired
	e.stopCh = make(chan struct{})
	e.done = make(chan struct{})
	go e.loop(e.stopCh, e.done)
	return nil
}

func (e *Elector) loop(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	e.Election(ctx)

	// Stagger followers after a mass restart.
	wait := e.Interval()
	if !e.Leader() {
		wait = backoff.Jitter(e.ttl)
	}

	for {
		select {
		case <-stopCh:
			return
		case <-e.clock.After(wait):
		}
		e.Election(ctx)
		wait = e.Interval()
	}
}

// Terminate stops the loop and, when leading, deletes the lease so a
// successor can take over at once. Store errors are logged and ignored.
func (e *Elector) Terminate(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		close(e.stopCh)
		e.running = false
	}
	done := e.done
	e.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}

	e.mu.Lock()
	leading := e.state == Leader
	e.state = Follower
	e.until = time.Time{}
	e.mu.Unlock()

	if !leading {
		return
	}
	if _, err := e.store.ReleaseLease(ctx, e.identity); err != nil {
		e.logger.Warn("lease release failed",
			slog.String("holder", e.identity),
			slog.String("error", err.Error()),
		)
	}
	e.logger.Info("stepped down", slog.String("holder", e.identity))
	e.exts.EmitLeadershipLost(ctx, e.identity, "terminated")
}
