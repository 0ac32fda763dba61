package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/warden/job"
)

type entry[H any] struct {
	name string
	hook H
}

// Registry holds registered extensions and fans events out to them. It
// type-caches extensions at registration time so emit calls iterate only
// over extensions that implement the relevant hook.
//
// A nil *Registry is valid and drops every event.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	leadershipGained   []entry[LeadershipGained]
	leadershipLost     []entry[LeadershipLost]
	leaseRenewalFailed []entry[LeaseRenewalFailed]
	orphansRecovered   []entry[OrphansRecovered]
	jobsPushedBack     []entry[JobsPushedBack]
	pushRecovered      []entry[PushRecovered]
	jobCompleted       []entry[JobCompleted]
	jobFailed          []entry[JobFailed]
	shutdown           []entry[Shutdown]
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// SetLogger replaces the logger used to report hook errors.
func (r *Registry) SetLogger(logger *slog.Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order. Register
// must not race with emits; call it before starting the engine.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(LeadershipGained); ok {
		r.leadershipGained = append(r.leadershipGained, entry[LeadershipGained]{name, h})
	}
	if h, ok := e.(LeadershipLost); ok {
		r.leadershipLost = append(r.leadershipLost, entry[LeadershipLost]{name, h})
	}
	if h, ok := e.(LeaseRenewalFailed); ok {
		r.leaseRenewalFailed = append(r.leaseRenewalFailed, entry[LeaseRenewalFailed]{name, h})
	}
	if h, ok := e.(OrphansRecovered); ok {
		r.orphansRecovered = append(r.orphansRecovered, entry[OrphansRecovered]{name, h})
	}
	if h, ok := e.(JobsPushedBack); ok {
		r.jobsPushedBack = append(r.jobsPushedBack, entry[JobsPushedBack]{name, h})
	}
	if h, ok := e.(PushRecovered); ok {
		r.pushRecovered = append(r.pushRecovered, entry[PushRecovered]{name, h})
	}
	if h, ok := e.(JobCompleted); ok {
		r.jobCompleted = append(r.jobCompleted, entry[JobCompleted]{name, h})
	}
	if h, ok := e.(JobFailed); ok {
		r.jobFailed = append(r.jobFailed, entry[JobFailed]{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, entry[Shutdown]{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension {
	if r == nil {
		return nil
	}
	return r.extensions
}

// ──────────────────────────────────────────────────
// Coordination emitters
// ──────────────────────────────────────────────────

// EmitLeadershipGained notifies all extensions that implement LeadershipGained.
func (r *Registry) EmitLeadershipGained(ctx context.Context, holder string) {
	if r == nil {
		return
	}
	for _, e := range r.leadershipGained {
		if err := e.hook.OnLeadershipGained(ctx, holder); err != nil {
			r.logHookError("OnLeadershipGained", e.name, err)
		}
	}
}

// EmitLeadershipLost notifies all extensions that implement LeadershipLost.
func (r *Registry) EmitLeadershipLost(ctx context.Context, holder, reason string) {
	if r == nil {
		return
	}
	for _, e := range r.leadershipLost {
		if err := e.hook.OnLeadershipLost(ctx, holder, reason); err != nil {
			r.logHookError("OnLeadershipLost", e.name, err)
		}
	}
}

// EmitLeaseRenewalFailed notifies all extensions that implement LeaseRenewalFailed.
func (r *Registry) EmitLeaseRenewalFailed(ctx context.Context, holder string, renewErr error) {
	if r == nil {
		return
	}
	for _, e := range r.leaseRenewalFailed {
		if err := e.hook.OnLeaseRenewalFailed(ctx, holder, renewErr); err != nil {
			r.logHookError("OnLeaseRenewalFailed", e.name, err)
		}
	}
}

// EmitOrphansRecovered notifies all extensions that implement OrphansRecovered.
func (r *Registry) EmitOrphansRecovered(ctx context.Context, process string, jobs int) {
	if r == nil {
		return
	}
	for _, e := range r.orphansRecovered {
		if err := e.hook.OnOrphansRecovered(ctx, process, jobs); err != nil {
			r.logHookError("OnOrphansRecovered", e.name, err)
		}
	}
}

// EmitJobsPushedBack notifies all extensions that implement JobsPushedBack.
func (r *Registry) EmitJobsPushedBack(ctx context.Context, jobs int) {
	if r == nil {
		return
	}
	for _, e := range r.jobsPushedBack {
		if err := e.hook.OnJobsPushedBack(ctx, jobs); err != nil {
			r.logHookError("OnJobsPushedBack", e.name, err)
		}
	}
}

// EmitPushRecovered notifies all extensions that implement PushRecovered.
func (r *Registry) EmitPushRecovered(ctx context.Context, jobs int) {
	if r == nil {
		return
	}
	for _, e := range r.pushRecovered {
		if err := e.hook.OnPushRecovered(ctx, jobs); err != nil {
			r.logHookError("OnPushRecovered", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Job emitters
// ──────────────────────────────────────────────────

// EmitJobCompleted notifies all extensions that implement JobCompleted.
func (r *Registry) EmitJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) {
	if r == nil {
		return
	}
	for _, e := range r.jobCompleted {
		if err := e.hook.OnJobCompleted(ctx, j, elapsed); err != nil {
			r.logHookError("OnJobCompleted", e.name, err)
		}
	}
}

// EmitJobFailed notifies all extensions that implement JobFailed.
func (r *Registry) EmitJobFailed(ctx context.Context, j *job.Job, jobErr error) {
	if r == nil {
		return
	}
	for _, e := range r.jobFailed {
		if err := e.hook.OnJobFailed(ctx, j, jobErr); err != nil {
			r.logHookError("OnJobFailed", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	if r == nil {
		return
	}
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a hook returns an error. Hook errors
// never propagate.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
