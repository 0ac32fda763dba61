// Package cluster coordinates warden processes that share one Redis.
//
// # Leader election
//
// An [Elector] holds a cluster-wide lease through a [LeaseStore]. The
// lease is acquired only when absent, renewed every TTL/4 by its holder
// and deleted on graceful shutdown so a successor need not wait for
// expiry. [Elector.Leader] is a local check against the cached expiry and
// never touches the store. Leadership is best-effort: two processes may
// briefly both believe they lead around an expiry race, so singleton work
// must be idempotent.
//
// # Liveness
//
// Heartbeat-mode processes publish a TTL'd key through a [Registry] on
// every [Heartbeat] beat. A process whose key has expired is dead; its
// private lists become orphans that any other process may reclaim.
//
// The store/redis package implements both contracts. The cluster/k8s
// package offers a LeaseStore backed by coordination/v1 Leases.
package cluster
