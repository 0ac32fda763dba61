package cluster

import (
	"context"
	"time"
)

// Process is the record a heartbeat publishes about a running process.
type Process struct {
	ID          string    `json:"id"`
	Hostname    string    `json:"hostname"`
	PID         int       `json:"pid"`
	Queues      []string  `json:"queues"`
	Concurrency int       `json:"concurrency"`
	Strategy    string    `json:"strategy"`
	Busy        int       `json:"busy"`
	StartedAt   time.Time `json:"started_at"`
	BeatAt      time.Time `json:"beat_at"`
}

// Registry tracks heartbeat-mode identities and the private lists they
// own. A process is alive exactly while its heartbeat key exists.
type Registry interface {
	// Heartbeat writes the process record under a key expiring after ttl.
	Heartbeat(ctx context.Context, p *Process, ttl time.Duration) error

	// ClearHeartbeat deletes the heartbeat key.
	ClearHeartbeat(ctx context.Context, id string) error

	// IsAlive reports whether id's heartbeat key exists.
	IsAlive(ctx context.Context, id string) (bool, error)

	// RegisterSelf records id as a known identity owning privateLists.
	RegisterSelf(ctx context.Context, id string, privateLists []string) error

	// ListRegistered returns every registered identity, alive or not.
	ListRegistered(ctx context.Context) ([]string, error)

	// PrivateLists returns the private list keys registered for id.
	PrivateLists(ctx context.Context, id string) ([]string, error)

	// Unregister removes id and its private list set from the registry.
	Unregister(ctx context.Context, id string) error
}
