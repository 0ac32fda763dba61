package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/warden/cluster"
)

// ── Lease ──

// AcquireLease takes the lease with SET NX. A holder that already owns
// the lease extends it instead.
func (s *Store) AcquireLease(ctx context.Context, holder string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, leaderKey, holder, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("warden/redis: acquire lease: %w", err)
	}
	if ok {
		return true, nil
	}
	return s.RenewLease(ctx, holder, ttl)
}

// RenewLease extends the lease only while holder owns it.
func (s *Store) RenewLease(ctx context.Context, holder string, ttl time.Duration) (bool, error) {
	n, err := s.scripts.Call(ctx, scriptLeaderUpdate, []string{leaderKey}, holder, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("warden/redis: renew lease: %w", err)
	}
	return n == 1, nil
}

// ReleaseLease deletes the lease only while holder owns it.
func (s *Store) ReleaseLease(ctx context.Context, holder string) (bool, error) {
	n, err := s.scripts.Call(ctx, scriptLeaderUnlock, []string{leaderKey}, holder).Int64()
	if err != nil {
		return false, fmt.Errorf("warden/redis: release lease: %w", err)
	}
	return n == 1, nil
}

// LeaseHolder returns the current holder, or "" when the lease is free.
func (s *Store) LeaseHolder(ctx context.Context) (string, error) {
	holder, err := s.client.Get(ctx, leaderKey).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("warden/redis: lease holder: %w", err)
	}
	return holder, nil
}

// ── Process registry ──

// Heartbeat writes the process hash and sets its expiry in one
// transaction.
func (s *Store) Heartbeat(ctx context.Context, p *cluster.Process, ttl time.Duration) error {
	key := procKey(p.ID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, processToMap(p))
	pipe.PExpire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("warden/redis: heartbeat: %w", err)
	}
	return nil
}

// ClearHeartbeat deletes the heartbeat hash.
func (s *Store) ClearHeartbeat(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, procKey(id)).Err(); err != nil {
		return fmt.Errorf("warden/redis: clear heartbeat: %w", err)
	}
	return nil
}

// IsAlive reports whether the heartbeat hash of id exists.
func (s *Store) IsAlive(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, procKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("warden/redis: is alive: %w", err)
	}
	return n == 1, nil
}

// RegisterSelf records id and replaces its set of private lists.
func (s *Store) RegisterSelf(ctx context.Context, id string, privateLists []string) error {
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, processesKey, id)
	pipe.Del(ctx, procQueuesKey(id))
	if len(privateLists) > 0 {
		members := make([]any, len(privateLists))
		for i, l := range privateLists {
			members[i] = l
		}
		pipe.SAdd(ctx, procQueuesKey(id), members...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("warden/redis: register self: %w", err)
	}
	return nil
}

// ListRegistered returns every registered identity, sorted.
func (s *Store) ListRegistered(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, processesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("warden/redis: list registered: %w", err)
	}
	slices.Sort(ids)
	return ids, nil
}

// PrivateLists returns the private list names registered for id.
func (s *Store) PrivateLists(ctx context.Context, id string) ([]string, error) {
	lists, err := s.client.SMembers(ctx, procQueuesKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("warden/redis: private lists: %w", err)
	}
	slices.Sort(lists)
	return lists, nil
}

// Unregister removes id and its private list set.
func (s *Store) Unregister(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.SRem(ctx, processesKey, id)
	pipe.Del(ctx, procQueuesKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("warden/redis: unregister: %w", err)
	}
	return nil
}

// Process returns the last heartbeat record of id, or nil when its key
// has expired.
func (s *Store) Process(ctx context.Context, id string) (*cluster.Process, error) {
	vals, err := s.client.HGetAll(ctx, procKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("warden/redis: process: %w", err)
	}
	if len(vals) == 0 {
		return nil, nil
	}
	return mapToProcess(vals), nil
}

// ── helpers ──

func processToMap(p *cluster.Process) map[string]any {
	queues, _ := json.Marshal(p.Queues) //nolint:errcheck // []string always marshals
	return map[string]any{
		"id":          p.ID,
		"hostname":    p.Hostname,
		"pid":         strconv.Itoa(p.PID),
		"queues":      string(queues),
		"concurrency": strconv.Itoa(p.Concurrency),
		"strategy":    p.Strategy,
		"busy":        strconv.Itoa(p.Busy),
		"started_at":  p.StartedAt.Format(time.RFC3339Nano),
		"beat_at":     p.BeatAt.Format(time.RFC3339Nano),
	}
}

func mapToProcess(m map[string]string) *cluster.Process {
	pid, _ := strconv.Atoi(m["pid"])                                //nolint:errcheck // best-effort parse from trusted Redis data
	concurrency, _ := strconv.Atoi(m["concurrency"])                //nolint:errcheck // best-effort parse from trusted Redis data
	busy, _ := strconv.Atoi(m["busy"])                              //nolint:errcheck // best-effort parse from trusted Redis data
	startedAt, _ := time.Parse(time.RFC3339Nano, m["started_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	beatAt, _ := time.Parse(time.RFC3339Nano, m["beat_at"])       //nolint:errcheck // best-effort parse from trusted Redis data

	var queues []string
	if v := m["queues"]; v != "" {
		_ = json.Unmarshal([]byte(v), &queues) //nolint:errcheck // best-effort parse from trusted Redis data
	}

	return &cluster.Process{
		ID:          m["id"],
		Hostname:    m["hostname"],
		PID:         pid,
		Queues:      queues,
		Concurrency: concurrency,
		Strategy:    m["strategy"],
		Busy:        busy,
		StartedAt:   startedAt,
		BeatAt:      beatAt,
	}
}
