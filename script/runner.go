// Package script loads named Lua procedures into Redis and calls them by
// SHA. When Redis reports NOSCRIPT (its script cache was flushed, or the
// server restarted) every registered procedure is reloaded and the call is
// retried exactly once.
package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/warden"
)

const tracerName = "github.com/xraph/warden/script"

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithTracer sets the tracer used for call spans.
func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) { r.tracer = t }
}

// Runner registers and invokes server-side scripts. One Runner is shared
// by every component of a process. Safe for concurrent use.
type Runner struct {
	client redis.Scripter
	logger *slog.Logger
	tracer trace.Tracer

	mu      sync.RWMutex
	sources map[string]string
	shas    map[string]string
}

// NewRunner returns a Runner calling scripts through client.
func NewRunner(client redis.Scripter, opts ...Option) *Runner {
	r := &Runner{
		client:  client,
		logger:  slog.Default(),
		tracer:  otel.Tracer(tracerName),
		sources: make(map[string]string),
		shas:    make(map[string]string),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register adds a named script. Registering an existing name replaces its
// source and forces a reload on the next call.
func (r *Runner) Register(name, src string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[name] = src
	delete(r.shas, name)
}

// Names returns the registered script names in sorted order.
func (r *Runner) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sources))
	for n := range r.sources {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Load sends every registered script to Redis with SCRIPT LOAD and caches
// the returned SHAs.
func (r *Runner) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, src := range r.sources {
		sha, err := r.client.ScriptLoad(ctx, src).Result()
		if err != nil {
			return fmt.Errorf("warden/script: load %s: %w", name, err)
		}
		r.shas[name] = sha
	}
	r.logger.Debug("scripts loaded", slog.Int("count", len(r.sources)))
	return nil
}

func (r *Runner) sha(name string) (sha string, registered, loaded bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, registered = r.sources[name]
	sha, loaded = r.shas[name]
	return sha, registered, loaded && len(r.shas) == len(r.sources)
}

// Call runs the named script with EVALSHA. The returned command carries
// either the script result or the error; callers use the usual go-redis
// accessors (Int64, Text, StringSlice, Result).
func (r *Runner) Call(ctx context.Context, name string, keys []string, args ...any) *redis.Cmd {
	ctx, span := r.tracer.Start(ctx, "warden.script.call",
		trace.WithAttributes(attribute.String("warden.script.name", name)),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	cmd := r.call(ctx, name, keys, args)
	if err := cmd.Err(); err != nil && !errors.Is(err, redis.Nil) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return cmd
}

func (r *Runner) call(ctx context.Context, name string, keys []string, args []any) *redis.Cmd {
	sha, registered, loaded := r.sha(name)
	if !registered {
		return failed(ctx, fmt.Errorf("%w: %s", warden.ErrScriptNotRegistered, name))
	}
	if !loaded {
		if err := r.Load(ctx); err != nil {
			return failed(ctx, err)
		}
		sha, _, _ = r.sha(name)
	}

	cmd := r.client.EvalSha(ctx, sha, keys, args...)
	if !redis.HasErrorPrefix(cmd.Err(), "NOSCRIPT") {
		return cmd
	}

	r.logger.Warn("script cache miss, reloading", slog.String("script", name))
	if err := r.Load(ctx); err != nil {
		return failed(ctx, err)
	}
	sha, _, _ = r.sha(name)

	cmd = r.client.EvalSha(ctx, sha, keys, args...)
	if redis.HasErrorPrefix(cmd.Err(), "NOSCRIPT") {
		return failed(ctx, fmt.Errorf("%w: %s: %w", warden.ErrScriptUnavailable, name, cmd.Err()))
	}
	return cmd
}

func failed(ctx context.Context, err error) *redis.Cmd {
	cmd := redis.NewCmd(ctx)
	cmd.SetErr(err)
	return cmd
}
