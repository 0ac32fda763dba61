package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/xraph/warden"
	"github.com/xraph/warden/backoff"
)

// Mode selects how a private-queue process identifies itself.
type Mode int

const (
	// ModeStable uses hostname+index. Recovery happens when the same
	// identity starts again.
	ModeStable Mode = iota
	// ModeHeartbeat uses a random identity kept alive by a heartbeat.
	// Any process recovers the lists of identities that stopped beating.
	ModeHeartbeat
)

// String returns the mode name recorded in the cluster marker.
func (m Mode) String() string {
	if m == ModeHeartbeat {
		return "heartbeat"
	}
	return "stable"
}

const (
	orphanGate        = "orphan_check"
	visibilityPoll    = 100 * time.Millisecond
	visibilityRetries = 100
)

var _ Strategy = (*Private)(nil)

// Private fetches by moving each job into a list owned by this process.
type Private struct {
	lists    ListStore
	selector Selector
	mode     Mode
	identity string
	opts     options

	mu      sync.Mutex
	backlog []UnitOfWork

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewPrivate creates a private-queue strategy for identity. ModeHeartbeat
// requires WithRegistry.
func NewPrivate(lists ListStore, selector Selector, mode Mode, identity string, opts ...Option) *Private {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Private{
		lists:    lists,
		selector: selector,
		mode:     mode,
		identity: identity,
		opts:     o,
	}
}

// Name returns the configured strategy name.
func (p *Private) Name() string {
	if p.mode == ModeHeartbeat {
		return warden.StrategySuper
	}
	return warden.StrategyReliable
}

// Identity returns the owner of this strategy's private lists.
func (p *Private) Identity() string { return p.identity }

// Mode returns the identity mode.
func (p *Private) Mode() Mode { return p.mode }

// PrivateList returns the private list name for queue.
func (p *Private) PrivateList(queue string) string {
	if p.mode == ModeHeartbeat {
		return HeartbeatPrivate(p.identity, queue)
	}
	return StablePrivate(queue, p.identity)
}

func (p *Private) privateLists() map[string]string {
	queues := p.selector.Queues()
	out := make(map[string]string, len(queues))
	for _, q := range queues {
		out[p.PrivateList(q)] = q
	}
	return out
}

// Startup claims the cluster identity mode and recovers earlier work.
// A stable identity reloads its own private lists; a heartbeat identity
// reclaims orphans, waits for its heartbeat and registers itself.
func (p *Private) Startup(ctx context.Context) error {
	if p.mode == ModeHeartbeat && p.opts.registry == nil {
		return fmt.Errorf("%w: heartbeat mode requires a process registry", warden.ErrInvalidConfig)
	}

	recorded, err := p.lists.ClaimFetchMode(ctx, p.mode.String(), p.opts.fetchModeTTL)
	if err != nil {
		return fmt.Errorf("warden/fetch: claim mode: %w", err)
	}
	if recorded != p.mode.String() {
		return fmt.Errorf("%w: cluster runs %s, this process %s", warden.ErrMixedIdentityModes, recorded, p.mode)
	}

	if p.mode == ModeStable {
		return p.loadOwn(ctx)
	}

	if _, err := p.RecoverOrphans(ctx); err != nil {
		p.opts.logger.Warn("orphan recovery failed", slog.String("error", err.Error()))
	}

	visible, err := backoff.Poll(ctx, p.opts.clock, backoff.NewConstant(visibilityPoll), visibilityRetries,
		func(ctx context.Context) (bool, error) {
			return p.opts.registry.IsAlive(ctx, p.identity)
		})
	if err != nil {
		return fmt.Errorf("warden/fetch: wait for heartbeat: %w", err)
	}
	if !visible {
		return fmt.Errorf("%w: %s", warden.ErrHeartbeatNotVisible, p.identity)
	}

	if err := p.RegisterSelf(ctx); err != nil {
		return err
	}

	if p.opts.orphanScanInterval > 0 {
		p.startOrphanLoop(context.WithoutCancel(ctx))
	}
	return nil
}

// loadOwn queues leftovers of a previous run with this identity, oldest
// first, to be served before anything new.
func (p *Private) loadOwn(ctx context.Context) error {
	var recovered []UnitOfWork
	for private, q := range p.privateLists() {
		jobs, err := p.lists.Range(ctx, private)
		if err != nil {
			return fmt.Errorf("warden/fetch: load %s: %w", private, err)
		}
		slices.Reverse(jobs)
		for _, j := range jobs {
			recovered = append(recovered, &privateUnit{p: p, queue: q, private: private, job: j})
		}
	}
	if len(recovered) == 0 {
		return nil
	}

	p.mu.Lock()
	p.backlog = append(p.backlog, recovered...)
	p.mu.Unlock()

	p.opts.logger.Info("recovered in-progress jobs",
		slog.String("process", p.identity),
		slog.Int("jobs", len(recovered)),
	)
	p.opts.exts.EmitOrphansRecovered(ctx, p.identity, len(recovered))
	return nil
}

// RegisterSelf records this identity and its private lists in the
// registry. It runs at startup and after every heartbeat.
func (p *Private) RegisterSelf(ctx context.Context) error {
	if p.mode != ModeHeartbeat || p.opts.registry == nil {
		return nil
	}
	names := make([]string, 0)
	for private := range p.privateLists() {
		names = append(names, private)
	}
	slices.Sort(names)
	if err := p.opts.registry.RegisterSelf(ctx, p.identity, names); err != nil {
		return fmt.Errorf("warden/fetch: register %s: %w", p.identity, err)
	}
	return nil
}

// ────────────────────────────────────────────────────
// Fetch
// ────────────────────────────────────────────────────

// RetrieveWork serves recovered jobs first, then probes each active queue
// without blocking and finally blocks on the last queue of the order.
func (p *Private) RetrieveWork(ctx context.Context) (UnitOfWork, error) {
	if u := p.popBacklog(); u != nil {
		return u, nil
	}

	order := p.selector.Next()
	if len(order) == 0 {
		sleep(ctx, p.opts.clock, p.opts.pollInterval)
		return nil, nil
	}

	if len(order) > 1 {
		for _, q := range order {
			private := p.PrivateList(q)
			j, err := p.lists.Move(ctx, q, private)
			if err != nil {
				return nil, fmt.Errorf("warden/fetch: move %s: %w", q, err)
			}
			if j != "" {
				return &privateUnit{p: p, queue: q, private: private, job: j}, nil
			}
		}
	}

	q := order[len(order)-1]
	private := p.PrivateList(q)
	j, err := p.lists.BlockingMove(ctx, q, private, p.opts.fetchTimeout)
	if err != nil {
		return nil, fmt.Errorf("warden/fetch: blocking move %s: %w", q, err)
	}
	if j == "" {
		return nil, nil
	}
	return &privateUnit{p: p, queue: q, private: private, job: j}, nil
}

func (p *Private) popBacklog() UnitOfWork {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.backlog) == 0 {
		return nil
	}
	u := p.backlog[0]
	p.backlog = p.backlog[1:]
	return u
}

// BulkRequeue returns everything in this identity's private lists to the
// public queues. Heartbeat identities also leave the registry.
func (p *Private) BulkRequeue(ctx context.Context, _ []UnitOfWork) {
	p.mu.Lock()
	p.backlog = nil
	p.mu.Unlock()

	total := 0
	for private, q := range p.privateLists() {
		n, err := p.lists.Drain(ctx, private, q)
		total += n
		if err != nil {
			p.opts.logger.Error("bulk requeue failed",
				slog.String("queue", q),
				slog.String("error", err.Error()),
			)
		}
	}
	if total > 0 {
		p.opts.logger.Info("pushed in-progress jobs back", slog.Int("jobs", total))
	}

	if p.mode == ModeHeartbeat && p.opts.registry != nil {
		if err := p.opts.registry.Unregister(ctx, p.identity); err != nil {
			p.opts.logger.Error("unregister failed",
				slog.String("process", p.identity),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Terminate stops the orphan scan loop.
func (p *Private) Terminate(_ context.Context) {
	if p.stopCh != nil {
		close(p.stopCh)
		p.wg.Wait()
		p.stopCh = nil
	}
}

// ────────────────────────────────────────────────────
// Orphan recovery
// ────────────────────────────────────────────────────

// RecoverOrphans drains the private lists of every registered identity
// whose heartbeat expired and removes it from the registry. It then runs
// the gated keyspace scan for lists no registry entry points at. Running
// it twice recovers nothing the second time.
func (p *Private) RecoverOrphans(ctx context.Context) (int, error) {
	if p.opts.registry == nil {
		return 0, nil
	}
	reg := p.opts.registry

	ids, err := reg.ListRegistered(ctx)
	if err != nil {
		return 0, fmt.Errorf("warden/fetch: list registered: %w", err)
	}

	total := 0
	for _, pid := range ids {
		if pid == p.identity {
			continue
		}
		alive, err := reg.IsAlive(ctx, pid)
		if err != nil {
			return total, fmt.Errorf("warden/fetch: is alive %s: %w", pid, err)
		}
		if alive {
			continue
		}

		lists, err := reg.PrivateLists(ctx, pid)
		if err != nil {
			return total, fmt.Errorf("warden/fetch: private lists %s: %w", pid, err)
		}
		n, err := p.drainNamed(ctx, lists)
		total += n
		if err != nil {
			return total, err
		}
		if err := reg.Unregister(ctx, pid); err != nil {
			return total, fmt.Errorf("warden/fetch: unregister %s: %w", pid, err)
		}
		p.recovered(ctx, pid, n)
	}

	n, err := p.scanOrphans(ctx)
	return total + n, err
}

// scanOrphans catches private lists of identities that died before they
// registered. At most one process per orphan check delay runs it.
func (p *Private) scanOrphans(ctx context.Context) (int, error) {
	if p.opts.orphanCheckDelay <= 0 {
		return 0, nil
	}
	won, err := p.lists.AcquireGate(ctx, orphanGate, p.opts.orphanCheckDelay)
	if err != nil {
		return 0, fmt.Errorf("warden/fetch: orphan gate: %w", err)
	}
	if !won {
		return 0, nil
	}

	names, err := p.lists.ScanLists(ctx, HeartbeatPattern)
	if err != nil {
		return 0, fmt.Errorf("warden/fetch: scan lists: %w", err)
	}

	byOwner := make(map[string][]string)
	for _, name := range names {
		owner, _, ok := ParseHeartbeatPrivate(name)
		if !ok || owner == p.identity {
			continue
		}
		byOwner[owner] = append(byOwner[owner], name)
	}

	total := 0
	for owner, lists := range byOwner {
		alive, err := p.opts.registry.IsAlive(ctx, owner)
		if err != nil {
			return total, fmt.Errorf("warden/fetch: is alive %s: %w", owner, err)
		}
		if alive {
			continue
		}
		n, err := p.drainNamed(ctx, lists)
		total += n
		if err != nil {
			return total, err
		}
		p.recovered(ctx, owner, n)
	}
	return total, nil
}

func (p *Private) drainNamed(ctx context.Context, lists []string) (int, error) {
	total := 0
	for _, private := range lists {
		_, q, ok := ParseHeartbeatPrivate(private)
		if !ok {
			continue
		}
		n, err := p.lists.Drain(ctx, private, q)
		total += n
		if err != nil {
			return total, fmt.Errorf("warden/fetch: drain %s: %w", private, err)
		}
	}
	return total, nil
}

func (p *Private) recovered(ctx context.Context, owner string, n int) {
	if n == 0 {
		return
	}
	p.opts.logger.Warn("recovered orphaned jobs",
		slog.String("process", owner),
		slog.Int("jobs", n),
	)
	p.opts.exts.EmitOrphansRecovered(ctx, owner, n)
}

func (p *Private) startOrphanLoop(ctx context.Context) {
	p.stopCh = make(chan struct{})
	ticker := p.opts.clock.NewTicker(p.opts.orphanScanInterval)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.Chan():
				if _, err := p.RecoverOrphans(ctx); err != nil {
					p.opts.logger.Warn("orphan scan failed", slog.String("error", err.Error()))
				}
			}
		}
	}()
}

// ────────────────────────────────────────────────────
// Unit of work
// ────────────────────────────────────────────────────

type privateUnit struct {
	p       *Private
	queue   string
	private string
	job     string
}

func (u *privateUnit) Queue() string { return u.queue }
func (u *privateUnit) Job() string   { return u.job }

// Private returns the list holding the job while it runs.
func (u *privateUnit) Private() string { return u.private }

func (u *privateUnit) Acknowledge(ctx context.Context) error {
	n, err := u.p.lists.Remove(ctx, u.private, u.job)
	if err != nil {
		return fmt.Errorf("warden/fetch: acknowledge: %w", err)
	}
	if n != 1 {
		u.p.opts.logger.Error("acknowledge removed unexpected count",
			slog.String("queue", u.queue),
			slog.String("list", u.private),
			slog.Int64("removed", n),
		)
	}
	return nil
}

func (u *privateUnit) Requeue(ctx context.Context) error {
	if _, err := u.p.lists.RequeuePrivate(ctx, u.private, u.queue, u.job); err != nil {
		return fmt.Errorf("warden/fetch: requeue: %w", err)
	}
	return nil
}
