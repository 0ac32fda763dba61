package cluster

import (
	"context"
	"time"
)

// LeaseStore persists the cluster lease. Every method must be atomic with
// respect to other processes.
type LeaseStore interface {
	// AcquireLease records holder with ttl if no lease exists. It also
	// succeeds, extending the ttl, when holder already owns the lease.
	AcquireLease(ctx context.Context, holder string, ttl time.Duration) (bool, error)

	// RenewLease extends the ttl only if holder is the recorded holder.
	// It returns false when the lease is missing or held by another.
	RenewLease(ctx context.Context, holder string, ttl time.Duration) (bool, error)

	// ReleaseLease deletes the lease only if holder owns it.
	ReleaseLease(ctx context.Context, holder string) (bool, error)

	// LeaseHolder returns the current holder, or "" when there is none.
	LeaseHolder(ctx context.Context) (string, error)
}

// State is the local election state.
type State int

const (
	Follower State = iota
	Leader
)

func (s State) String() string {
	if s == Leader {
		return "leader"
	}
	return "follower"
}
