// Package store defines the aggregate persistence interface. Each subsystem
// (cluster, fetch, push) defines its own store interface and the composite
// Store composes them with the pause admin surface.
package store

import (
	"context"

	"github.com/xraph/warden/cluster"
	"github.com/xraph/warden/event"
	"github.com/xraph/warden/fetch"
	"github.com/xraph/warden/push"
)

// Store is the aggregate persistence interface.
// A single backend implements every subsystem's contract against one
// shared deployment, so all processes of a cluster see the same state.
type Store interface {
	cluster.LeaseStore
	cluster.Registry
	fetch.ListStore
	fetch.PendingStore
	push.Pusher
	Pauser
	event.Subscriber

	// ConfigChannel names the pub/sub channel carrying pause broadcasts.
	ConfigChannel() string

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases resources owned by the store.
	Close() error
}

// Pauser manages the paused queue set. Pause and unpause persist the
// change and broadcast it atomically.
type Pauser interface {
	PauseQueue(ctx context.Context, queue string) error
	UnpauseQueue(ctx context.Context, queue string) error
	PausedQueues(ctx context.Context) ([]string, error)
	IsPaused(ctx context.Context, queue string) (bool, error)
}
