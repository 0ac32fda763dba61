package redis

// Redis key naming conventions for warden data.
// All keys are prefixed with "warden:" to avoid collisions.

const keyPrefix = "warden:"

// ── Queue keys ──

const queuePrefix = keyPrefix + "queue:"

// queueKey returns the list key for a public queue or private list name:
// warden:queue:{name}
func queueKey(name string) string { return queuePrefix + name }

// queuesKey is the Set of known public queue names.
const queuesKey = keyPrefix + "queues"

// pausedKey is the Set of paused queue names.
const pausedKey = keyPrefix + "paused"

// configChannel carries pause and unpause broadcasts.
const configChannel = keyPrefix + "config"

// ── Fetch keys ──

// pendingKey is the Sorted Set of jobs held by the deadline strategy,
// scored by deadline in unix seconds.
const pendingKey = keyPrefix + "pending"

// fetchModeKey records the private-queue identity mode of the cluster.
const fetchModeKey = keyPrefix + "fetch_mode"

// gateKey returns the key of a cluster-wide once-per-ttl gate.
func gateKey(name string) string { return keyPrefix + name }

// ── Cluster keys ──

// leaderKey stores the current lease holder.
const leaderKey = keyPrefix + "leader"

// processesKey is the Set of registered heartbeat identities.
const processesKey = keyPrefix + "processes"

// procKey returns the heartbeat hash of a process: warden:proc:{id}
func procKey(id string) string { return keyPrefix + "proc:" + id }

// procQueuesKey returns the Set of private lists owned by a process.
func procQueuesKey(id string) string { return keyPrefix + "proc:" + id + ":queues" }
