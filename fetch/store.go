package fetch

import (
	"context"
	"strings"
	"time"
)

// ListStore is the list-level surface the private strategy needs. Names
// are queue or private list names; the store maps them to keys.
type ListStore interface {
	// Move atomically pops the oldest job of from and pushes it onto to.
	// It returns "" when from is empty.
	Move(ctx context.Context, from, to string) (string, error)

	// BlockingMove is Move that waits up to timeout for a job.
	BlockingMove(ctx context.Context, from, to string, timeout time.Duration) (string, error)

	// Remove deletes one occurrence of job from list, scanning from the
	// tail, and returns the number removed.
	Remove(ctx context.Context, list, job string) (int64, error)

	// RequeuePrivate removes job from private and, only if it was there,
	// pushes it back onto queue. It reports whether the job moved.
	RequeuePrivate(ctx context.Context, private, queue, job string) (bool, error)

	// Drain moves every job of private back onto queue and returns the
	// number moved.
	Drain(ctx context.Context, private, queue string) (int, error)

	// Range returns the content of list, newest first.
	Range(ctx context.Context, list string) ([]string, error)

	// ScanLists returns the names of lists matching a glob pattern.
	ScanLists(ctx context.Context, match string) ([]string, error)

	// ClaimFetchMode records mode as the cluster's private-queue identity
	// mode unless another is already recorded, refreshes the marker ttl,
	// and returns the recorded mode.
	ClaimFetchMode(ctx context.Context, mode string, ttl time.Duration) (string, error)

	// AcquireGate sets a cluster-wide gate for ttl and reports whether
	// this caller set it.
	AcquireGate(ctx context.Context, name string, ttl time.Duration) (bool, error)
}

// PendingStore is the surface the deadline strategy needs.
type PendingStore interface {
	// FetchDeadline pops the oldest job of the first non-empty queue in
	// order and records it as pending until deadline. It returns empty
	// strings when every queue is empty.
	FetchDeadline(ctx context.Context, queues []string, deadline time.Time) (queue, job string, err error)

	// RemovePending deletes job from the pending set.
	RemovePending(ctx context.Context, job string) (int64, error)

	// RequeuePending removes job from the pending set and, only if it was
	// there, pushes it onto queue so it is fetched next.
	RequeuePending(ctx context.Context, queue, job string) (bool, error)

	// Overdue returns up to count pending jobs whose deadline is at or
	// before now, skipping the first offset.
	Overdue(ctx context.Context, now time.Time, offset, count int) ([]string, error)

	// Pending lists every pending entry ordered by deadline.
	Pending(ctx context.Context) ([]PendingEntry, error)
}

// PendingEntry is one job held by the deadline strategy.
type PendingEntry struct {
	Job      string    `json:"job"`
	Queue    string    `json:"queue"`
	Deadline time.Time `json:"deadline"`
}

// Selector supplies the queue order for each fetch cycle.
type Selector interface {
	Next() []string
	Queues() []string
}

// ────────────────────────────────────────────────────
// Private list names
// ────────────────────────────────────────────────────

const heartbeatPrefix = "sq|"

// HeartbeatPattern matches every heartbeat-mode private list name.
const HeartbeatPattern = heartbeatPrefix + "*"

// StablePrivate names the private list of queue owned by a stable
// identity.
func StablePrivate(queue, identity string) string {
	return queue + "|" + identity
}

// HeartbeatPrivate names the private list of queue owned by a heartbeat
// identity.
func HeartbeatPrivate(proc, queue string) string {
	return heartbeatPrefix + proc + "|" + queue
}

// ParseHeartbeatPrivate splits a heartbeat-mode private list name into
// its owner and queue.
func ParseHeartbeatPrivate(name string) (proc, queue string, ok bool) {
	rest, found := strings.CutPrefix(name, heartbeatPrefix)
	if !found {
		return "", "", false
	}
	proc, queue, found = strings.Cut(rest, "|")
	if !found || proc == "" || queue == "" {
		return "", "", false
	}
	return proc, queue, true
}
