package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/warden"
	"github.com/xraph/warden/cluster"
	"github.com/xraph/warden/event"
	"github.com/xraph/warden/ext"
	"github.com/xraph/warden/fetch"
	"github.com/xraph/warden/id"
	"github.com/xraph/warden/job"
	mw "github.com/xraph/warden/middleware"
	"github.com/xraph/warden/observability"
	"github.com/xraph/warden/push"
	"github.com/xraph/warden/queue"
	"github.com/xraph/warden/store"
	"github.com/xraph/warden/worker"
)

// Engine owns every coordination component of one process.
type Engine struct {
	cfg        warden.Config
	store      store.Store
	logger     *slog.Logger
	clock      clockwork.Clock
	extensions *ext.Registry
	registry   *job.Registry
	mws        []mw.Middleware

	process   id.Process
	selector  *queue.Selector
	listener  *event.Listener
	heartbeat *cluster.Heartbeat
	strategy  fetch.Strategy
	retriever *fetch.Retriever
	pool      *worker.Pool
	elector   *cluster.Elector
	pusher    *push.Reliable

	leaseStore cluster.LeaseStore
	onLeader   func(ctx context.Context)

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	mu      sync.Mutex
	started bool

	// beatMu orders registry refreshes against startup and shutdown.
	beatMu      sync.Mutex
	registering bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger handed to every component.
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = l }
}

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) { eng.extensions.Register(e) }
}

// WithMiddleware adds middleware to the engine's chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) { eng.mws = append(eng.mws, m) }
}

// WithLeaseStore elects leaders through ls instead of the Redis store.
func WithLeaseStore(ls cluster.LeaseStore) Option {
	return func(eng *Engine) { eng.leaseStore = ls }
}

// OnLeader sets the callback run at the start of each leadership tenure.
// Its context is cancelled when the elector terminates.
func OnLeader(fn func(ctx context.Context)) Option {
	return func(eng *Engine) { eng.onLeader = fn }
}

// WithClock sets the clock used by the elector, heartbeat and fetch loops.
func WithClock(c clockwork.Clock) Option {
	return func(eng *Engine) { eng.clock = c }
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) { eng.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// Both the metrics middleware and the observability extension use it.
// If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) { eng.meterProvider = mp }
}

// New validates cfg and builds one instance of each component.
func New(st store.Store, cfg warden.Config, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, warden.ErrNoStore
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	eng := &Engine{
		cfg:      cfg,
		store:    st,
		logger:   slog.Default(),
		clock:    clockwork.NewRealClock(),
		registry: job.NewRegistry(),
	}
	// Extensions registered through options need the registry first; its
	// logger is replaced below once WithLogger has been applied.
	eng.extensions = ext.NewRegistry(nil)
	for _, opt := range opts {
		opt(eng)
	}
	eng.extensions.SetLogger(eng.logger)
	if eng.leaseStore == nil {
		eng.leaseStore = st
	}

	eng.registerObservability()

	eng.selector = queue.NewSelector(cfg.Queues, cfg.Strict)
	eng.listener = event.NewListener(st, st.ConfigChannel(),
		event.WithLogger(eng.logger),
		event.WithClock(eng.clock),
	)
	eng.listener.Register(eng.selector)

	strategy, err := eng.buildStrategy()
	if err != nil {
		return nil, err
	}
	eng.strategy = strategy

	eng.heartbeat = cluster.NewHeartbeat(st, cluster.Process{
		ID:          eng.process.String(),
		Hostname:    id.Hostname(),
		PID:         os.Getpid(),
		Queues:      eng.selector.Queues(),
		Concurrency: cfg.Concurrency,
		Strategy:    strategy.Name(),
	},
		cluster.WithHeartbeatInterval(cfg.Heartbeat.Interval),
		cluster.WithHeartbeatTTL(cfg.Heartbeat.TTL),
		cluster.WithHeartbeatClock(eng.clock),
		cluster.WithHeartbeatLogger(eng.logger),
	)

	eng.retriever = fetch.NewRetriever(strategy, cfg.Concurrency, fetch.WithLogger(eng.logger))
	executor := worker.NewExecutor(eng.registry, eng.extensions, eng.logger, eng.middlewares()...)
	eng.pool = worker.NewPool(eng.retriever, executor,
		worker.WithPoolConcurrency(cfg.Concurrency),
		worker.WithPoolLogger(eng.logger),
	)

	eng.heartbeat.OnBeat(eng.refresh)

	eng.elector = cluster.NewElector(eng.leaseStore, eng.process.String(),
		cluster.WithTTL(cfg.Election.TTL),
		cluster.WithClock(eng.clock),
		cluster.WithLogger(eng.logger),
		cluster.WithExtensions(eng.extensions),
	)

	eng.pusher = push.NewReliable(st,
		push.WithLogger(eng.logger),
		push.WithExtensions(eng.extensions),
	)

	return eng, nil
}

// refresh runs after every heartbeat: it re-registers the private lists
// (heartbeat mode) and publishes the busy count with the next beat.
// Registration only happens between strategy startup and shutdown, so a
// failed start leaves no entry and BulkRequeue's unregister sticks.
func (eng *Engine) refresh(ctx context.Context) {
	eng.beatMu.Lock()
	if p, ok := eng.strategy.(*fetch.Private); ok && eng.registering {
		if err := p.RegisterSelf(ctx); err != nil {
			eng.logger.Warn("registry refresh failed", slog.String("error", err.Error()))
		}
	}
	eng.beatMu.Unlock()

	busy := eng.pool.Busy()
	eng.heartbeat.Update(func(p *cluster.Process) { p.Busy = busy })
}

// buildStrategy picks the identity and fetch strategy named by the config.
func (eng *Engine) buildStrategy() (fetch.Strategy, error) {
	cfg := eng.cfg
	fopts := []fetch.Option{
		fetch.WithLogger(eng.logger),
		fetch.WithClock(eng.clock),
		fetch.WithExtensions(eng.extensions),
		fetch.WithFetchTimeout(cfg.Fetch.Timeout),
		fetch.WithPollInterval(cfg.Fetch.PollInterval),
	}

	switch cfg.Fetch.Strategy {
	case warden.StrategyReliable:
		eng.process = id.NewStableProcess(id.Hostname(), cfg.Fetch.Index, cfg.Fetch.EphemeralHostname)
		return fetch.NewPrivate(eng.store, eng.selector, fetch.ModeStable, eng.process.String(), fopts...), nil
	case warden.StrategySuper:
		eng.process = id.NewHeartbeatProcess()
		fopts = append(fopts,
			fetch.WithRegistry(eng.store),
			fetch.WithOrphanScanInterval(cfg.Fetch.OrphanScanInterval),
			fetch.WithOrphanCheckDelay(cfg.Fetch.OrphanCheckDelay),
		)
		return fetch.NewPrivate(eng.store, eng.selector, fetch.ModeHeartbeat, eng.process.String(), fopts...), nil
	case warden.StrategyTimed:
		eng.process = id.NewHeartbeatProcess()
		fopts = append(fopts,
			fetch.WithJobTimeout(cfg.Fetch.JobTimeout),
			fetch.WithPushbackDivisor(cfg.Fetch.PushbackDivisor),
		)
		return fetch.NewDeadline(eng.store, eng.selector, fopts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", warden.ErrUnknownStrategy, cfg.Fetch.Strategy)
	}
}

func (eng *Engine) registerObservability() {
	var obsExt *observability.MetricsExtension
	if eng.meterProvider != nil {
		obsExt = observability.NewMetricsExtensionWithMeter(eng.meterProvider.Meter("github.com/xraph/warden/observability"))
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	eng.extensions.Register(obsExt)
}

// middlewares builds the default stack: recover → tracing → metrics →
// logging → timeout, followed by user middleware.
func (eng *Engine) middlewares() []mw.Middleware {
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer("github.com/xraph/warden"))
	} else {
		tracingMw = mw.Tracing()
	}

	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter("github.com/xraph/warden"))
	} else {
		metricsMw = mw.Metrics()
	}

	all := []mw.Middleware{
		mw.Recover(eng.logger),
		tracingMw,
		metricsMw,
		mw.Logging(eng.logger),
		mw.Timeout(eng.registry, eng.logger),
	}
	return append(all, eng.mws...)
}

// ──────────────────────────────────────────────────
// Registration and push
// ──────────────────────────────────────────────────

// Register registers a typed job definition with the engine.
func Register[T any](eng *Engine, def *job.Definition[T]) {
	job.RegisterDefinition(eng.registry, def)
}

// Enqueue builds a job of def carrying args and pushes it.
func Enqueue[T any](ctx context.Context, eng *Engine, def *job.Definition[T], args T) (*job.Job, error) {
	j, err := def.NewJob(args)
	if err != nil {
		return nil, err
	}
	if err := eng.Push(ctx, j); err != nil {
		return nil, err
	}
	return j, nil
}

// Push sends jobs through the reliable pusher. A store outage buffers the
// jobs locally and returns nil; only jobs dropped from a full backlog
// produce an error.
func (eng *Engine) Push(ctx context.Context, jobs ...*job.Job) error {
	return eng.pusher.Push(ctx, jobs...)
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Start brings the components up in dependency order. Any failure stops
// whatever already started.
func (eng *Engine) Start(ctx context.Context) error {
	eng.mu.Lock()
	defer eng.mu.Unlock()
	if eng.started {
		return warden.ErrAlreadyStarted
	}

	if err := eng.store.Ping(ctx); err != nil {
		return fmt.Errorf("warden: store unavailable: %w", err)
	}

	paused, err := eng.store.PausedQueues(ctx)
	if err != nil {
		return fmt.Errorf("warden: load paused queues: %w", err)
	}
	eng.selector.SetPaused(paused)

	if err := eng.listener.Start(ctx); err != nil {
		return fmt.Errorf("warden: start listener: %w", err)
	}
	if err := eng.heartbeat.Start(ctx); err != nil {
		eng.listener.Stop()
		return fmt.Errorf("warden: start heartbeat: %w", err)
	}
	if err := eng.strategy.Startup(ctx); err != nil {
		eng.heartbeat.Stop(context.WithoutCancel(ctx))
		eng.listener.Stop()
		return fmt.Errorf("warden: %s startup: %w", eng.strategy.Name(), err)
	}
	eng.beatMu.Lock()
	eng.registering = true
	eng.beatMu.Unlock()
	if eng.cfg.Election.Enabled {
		if err := eng.elector.Start(eng.onLeader); err != nil {
			eng.strategy.Terminate(ctx)
			eng.heartbeat.Stop(context.WithoutCancel(ctx))
			eng.listener.Stop()
			return fmt.Errorf("warden: start elector: %w", err)
		}
	}

	eng.retriever.Start(ctx)
	if err := eng.pool.Start(ctx); err != nil {
		return err
	}
	eng.started = true

	eng.logger.Info("warden started",
		slog.String("process", eng.process.String()),
		slog.String("strategy", eng.strategy.Name()),
		slog.Any("queues", eng.selector.Queues()),
		slog.Int("concurrency", eng.cfg.Concurrency),
	)
	return nil
}

// Stop shuts the process down. Running jobs get until ctx ends (or the
// configured shutdown timeout, whichever is shorter); whatever is still in
// flight is requeued with the time left on ctx. Errors are logged, never
// returned.
func (eng *Engine) Stop(ctx context.Context) error {
	eng.mu.Lock()
	defer eng.mu.Unlock()
	if !eng.started {
		return nil
	}
	eng.started = false

	eng.beatMu.Lock()
	eng.registering = false
	eng.beatMu.Unlock()

	waitCtx, cancel := ctx, context.CancelFunc(func() {})
	if eng.cfg.ShutdownTimeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, eng.cfg.ShutdownTimeout)
	}
	inFlight := eng.pool.Stop(waitCtx)
	cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		eng.strategy.BulkRequeue(gctx, inFlight)
		return nil
	})
	g.Go(func() error {
		if eng.cfg.Election.Enabled {
			eng.elector.Terminate(gctx)
		}
		return nil
	})
	_ = g.Wait() // both steps log their own failures

	eng.strategy.Terminate(ctx)
	eng.retriever.Terminate(ctx)
	eng.listener.Stop()
	eng.heartbeat.Stop(ctx)

	eng.extensions.EmitShutdown(ctx)
	eng.logger.Info("warden stopped",
		slog.String("process", eng.process.String()),
		slog.Int("requeued_in_flight", len(inFlight)),
	)
	return nil
}

// ──────────────────────────────────────────────────
// Accessors
// ──────────────────────────────────────────────────

// Leader reports whether this process currently holds the lease.
func (eng *Engine) Leader() bool { return eng.elector.Leader() }

// Process returns this process's identity.
func (eng *Engine) Process() id.Process { return eng.process }

// Strategy returns the fetch strategy.
func (eng *Engine) Strategy() fetch.Strategy { return eng.strategy }

// Selector returns the queue selector.
func (eng *Engine) Selector() *queue.Selector { return eng.selector }

// Pool returns the worker pool.
func (eng *Engine) Pool() *worker.Pool { return eng.pool }

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Registry returns the job registry.
func (eng *Engine) Registry() *job.Registry { return eng.registry }

// Store returns the shared store.
func (eng *Engine) Store() store.Store { return eng.store }

// Backlog returns the number of pushes buffered while the store was down.
func (eng *Engine) Backlog() int { return eng.pusher.Backlog() }

// ShutdownTimeout returns the configured grace period for running jobs.
func (eng *Engine) ShutdownTimeout() time.Duration { return eng.cfg.ShutdownTimeout }
