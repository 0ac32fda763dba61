package ext

import (
	"context"
	"time"

	"github.com/xraph/warden/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Coordination hooks
// ──────────────────────────────────────────────────

// LeadershipGained is called when this process acquires the lease.
type LeadershipGained interface {
	OnLeadershipGained(ctx context.Context, holder string) error
}

// LeadershipLost is called when this process stops being leader, either
// because renewal found another holder or because it stepped down.
type LeadershipLost interface {
	OnLeadershipLost(ctx context.Context, holder, reason string) error
}

// LeaseRenewalFailed is called when a renewal attempt hit a store error.
type LeaseRenewalFailed interface {
	OnLeaseRenewalFailed(ctx context.Context, holder string, err error) error
}

// OrphansRecovered is called after jobs owned by a dead process were
// returned to their public queues.
type OrphansRecovered interface {
	OnOrphansRecovered(ctx context.Context, process string, jobs int) error
}

// JobsPushedBack is called after overdue in-flight jobs were requeued.
type JobsPushedBack interface {
	OnJobsPushedBack(ctx context.Context, jobs int) error
}

// PushRecovered is called after buffered pushes reached the store.
type PushRecovered interface {
	OnPushRecovered(ctx context.Context, jobs int) error
}

// ──────────────────────────────────────────────────
// Job hooks
// ──────────────────────────────────────────────────

// JobCompleted is called after a handler returned nil and the job was
// acknowledged.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobFailed is called after a handler returned an error and the job was
// requeued.
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, err error) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
