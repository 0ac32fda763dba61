package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/warden/cluster"
	"github.com/xraph/warden/fetch"
	"github.com/xraph/warden/push"
	"github.com/xraph/warden/script"
	"github.com/xraph/warden/store"
)

// Compile-time interface checks.
var (
	_ store.Store        = (*Store)(nil)
	_ cluster.LeaseStore = (*Store)(nil)
	_ cluster.Registry   = (*Store)(nil)
	_ fetch.ListStore    = (*Store)(nil)
	_ fetch.PendingStore = (*Store)(nil)
	_ push.Pusher        = (*Store)(nil)
)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithTracer sets the tracer used for script calls.
func WithTracer(t trace.Tracer) Option {
	return func(s *Store) { s.tracer = t }
}

// Store implements the composite store.Store interface backed by Redis.
type Store struct {
	client  redis.UniversalClient
	scripts *script.Runner
	logger  *slog.Logger
	tracer  trace.Tracer
}

// New creates a new Redis-backed store and registers its scripts. The
// caller owns the Redis client lifecycle.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}

	runnerOpts := []script.Option{script.WithLogger(s.logger)}
	if s.tracer != nil {
		runnerOpts = append(runnerOpts, script.WithTracer(s.tracer))
	}
	s.scripts = script.NewRunner(client, runnerOpts...)
	s.scripts.Register(scriptLeaderUpdate, leaderUpdateSrc)
	s.scripts.Register(scriptLeaderUnlock, leaderUnlockSrc)
	s.scripts.Register(scriptPrivateRequeue, privateRequeueSrc)
	s.scripts.Register(scriptDeadlineFetch, deadlineFetchSrc)
	s.scripts.Register(scriptDeadlineRequeue, deadlineRequeueSrc)
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() redis.UniversalClient { return s.client }

// Scripts returns the runner holding the store's scripts.
func (s *Store) Scripts() *script.Runner { return s.scripts }

// Subscribe opens a pub/sub subscription on the underlying client.
func (s *Store) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return s.client.Subscribe(ctx, channels...)
}

// ConfigChannel returns the pub/sub channel carrying pause broadcasts.
func (s *Store) ConfigChannel() string { return configChannel }

// Ping verifies the Redis connection is alive and loads the scripts.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("warden/redis: ping: %w", err)
	}
	if err := s.scripts.Load(ctx); err != nil {
		return fmt.Errorf("warden/redis: load scripts: %w", err)
	}
	return nil
}

// Close is a no-op. The caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }
