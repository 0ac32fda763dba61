package fetch

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/xraph/warden/cluster"
	"github.com/xraph/warden/ext"
)

// UnitOfWork binds a fetched job to the location it occupies.
type UnitOfWork interface {
	// Queue is the public queue the job came from.
	Queue() string
	// Job is the raw encoded job.
	Job() string
	// Acknowledge removes the job from its in-flight location.
	Acknowledge(ctx context.Context) error
	// Requeue returns the job to its public queue.
	Requeue(ctx context.Context) error
}

// Strategy is the reliable fetch protocol used by the worker pool.
type Strategy interface {
	Name() string

	// Startup recovers work left by a previous run and starts background
	// sweeps.
	Startup(ctx context.Context) error

	// RetrieveWork returns the next unit, or nil when none arrived within
	// the strategy's bounded wait.
	RetrieveWork(ctx context.Context) (UnitOfWork, error)

	// BulkRequeue releases in-flight work at shutdown. Errors are logged.
	BulkRequeue(ctx context.Context, inFlight []UnitOfWork)

	// Terminate stops background sweeps.
	Terminate(ctx context.Context)
}

// Defaults.
const (
	DefaultFetchTimeout       = time.Second
	DefaultPollInterval       = time.Second
	DefaultOrphanScanInterval = 5 * time.Minute
	DefaultOrphanCheckDelay   = time.Hour
	DefaultJobTimeout         = time.Hour
	DefaultPushbackDivisor    = 60
	DefaultFetchModeTTL       = 24 * time.Hour
)

type options struct {
	logger             *slog.Logger
	clock              clockwork.Clock
	exts               *ext.Registry
	registry           cluster.Registry
	fetchTimeout       time.Duration
	pollInterval       time.Duration
	orphanScanInterval time.Duration
	orphanCheckDelay   time.Duration
	jobTimeout         time.Duration
	pushbackDivisor    int
	fetchModeTTL       time.Duration
}

func defaultOptions() options {
	return options{
		logger:             slog.Default(),
		clock:              clockwork.NewRealClock(),
		fetchTimeout:       DefaultFetchTimeout,
		pollInterval:       DefaultPollInterval,
		orphanScanInterval: DefaultOrphanScanInterval,
		orphanCheckDelay:   DefaultOrphanCheckDelay,
		jobTimeout:         DefaultJobTimeout,
		pushbackDivisor:    DefaultPushbackDivisor,
		fetchModeTTL:       DefaultFetchModeTTL,
	}
}

// Option configures a strategy.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithClock sets the clock for deadlines and sweep loops.
func WithClock(c clockwork.Clock) Option { return func(o *options) { o.clock = c } }

// WithExtensions sets the registry notified of recoveries and pushbacks.
func WithExtensions(r *ext.Registry) Option { return func(o *options) { o.exts = r } }

// WithRegistry sets the process registry. Required for ModeHeartbeat.
func WithRegistry(r cluster.Registry) Option { return func(o *options) { o.registry = r } }

// WithFetchTimeout sets the blocking pop interval.
func WithFetchTimeout(d time.Duration) Option { return func(o *options) { o.fetchTimeout = d } }

// WithPollInterval sets the sleep used when no queue is active or no work
// was found without blocking.
func WithPollInterval(d time.Duration) Option { return func(o *options) { o.pollInterval = d } }

// WithOrphanScanInterval sets the periodic orphan scan interval. Zero
// disables the loop; startup still scans.
func WithOrphanScanInterval(d time.Duration) Option {
	return func(o *options) { o.orphanScanInterval = d }
}

// WithOrphanCheckDelay sets the cluster-wide gate on the full keyspace
// scan for orphaned lists. Zero disables that scan.
func WithOrphanCheckDelay(d time.Duration) Option {
	return func(o *options) { o.orphanCheckDelay = d }
}

// WithJobTimeout sets how long Deadline lets a job stay in flight.
func WithJobTimeout(d time.Duration) Option { return func(o *options) { o.jobTimeout = d } }

// WithPushbackDivisor sets the pushback rate to once per timeout/n.
func WithPushbackDivisor(n int) Option { return func(o *options) { o.pushbackDivisor = n } }

// WithFetchModeTTL sets how long the cluster remembers the private-queue
// identity mode after the last process started.
func WithFetchModeTTL(d time.Duration) Option { return func(o *options) { o.fetchModeTTL = d } }

func sleep(ctx context.Context, clock clockwork.Clock, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-clock.After(d):
	}
}
