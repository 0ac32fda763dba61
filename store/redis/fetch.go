package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// minBlock is the smallest timeout a blocking list pop accepts.
const minBlock = time.Second

// Move pops the oldest job of from onto the head of to.
func (s *Store) Move(ctx context.Context, from, to string) (string, error) {
	j, err := s.client.RPopLPush(ctx, queueKey(from), queueKey(to)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("warden/redis: move: %w", err)
	}
	return j, nil
}

// BlockingMove is Move waiting up to timeout, rounded up to one second.
func (s *Store) BlockingMove(ctx context.Context, from, to string, timeout time.Duration) (string, error) {
	if timeout < minBlock {
		timeout = minBlock
	}
	j, err := s.client.BRPopLPush(ctx, queueKey(from), queueKey(to), timeout).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("warden/redis: blocking move: %w", err)
	}
	return j, nil
}

// Remove deletes the last occurrence of job from list.
func (s *Store) Remove(ctx context.Context, list, job string) (int64, error) {
	n, err := s.client.LRem(ctx, queueKey(list), -1, job).Result()
	if err != nil {
		return 0, fmt.Errorf("warden/redis: remove: %w", err)
	}
	return n, nil
}

// RequeuePrivate moves job from private back to queue in one script.
func (s *Store) RequeuePrivate(ctx context.Context, private, queue, job string) (bool, error) {
	n, err := s.scripts.Call(ctx, scriptPrivateRequeue,
		[]string{queueKey(private), queueKey(queue)}, job).Int64()
	if err != nil {
		return false, fmt.Errorf("warden/redis: requeue private: %w", err)
	}
	return n > 0, nil
}

// Drain moves every job of private onto queue, oldest first.
func (s *Store) Drain(ctx context.Context, private, queue string) (int, error) {
	n := 0
	for {
		_, err := s.client.RPopLPush(ctx, queueKey(private), queueKey(queue)).Result()
		if errors.Is(err, goredis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("warden/redis: drain: %w", err)
		}
		n++
	}
}

// Range returns the content of list, newest first.
func (s *Store) Range(ctx context.Context, list string) ([]string, error) {
	jobs, err := s.client.LRange(ctx, queueKey(list), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("warden/redis: range: %w", err)
	}
	return jobs, nil
}

// ScanLists returns the names of queue lists matching match.
func (s *Store) ScanLists(ctx context.Context, match string) ([]string, error) {
	var (
		names  []string
		cursor uint64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, queueKey(match), 100).Result()
		if err != nil {
			return nil, fmt.Errorf("warden/redis: scan lists: %w", err)
		}
		for _, k := range keys {
			names = append(names, strings.TrimPrefix(k, queuePrefix))
		}
		cursor = next
		if cursor == 0 {
			return names, nil
		}
	}
}

// ClaimFetchMode records mode unless another mode is recorded, and
// refreshes the marker when it matches.
func (s *Store) ClaimFetchMode(ctx context.Context, mode string, ttl time.Duration) (string, error) {
	for range 2 {
		ok, err := s.client.SetNX(ctx, fetchModeKey, mode, ttl).Result()
		if err != nil {
			return "", fmt.Errorf("warden/redis: claim fetch mode: %w", err)
		}
		if ok {
			return mode, nil
		}
		recorded, err := s.client.Get(ctx, fetchModeKey).Result()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("warden/redis: read fetch mode: %w", err)
		}
		if recorded == mode {
			if err := s.client.PExpire(ctx, fetchModeKey, ttl).Err(); err != nil {
				return "", fmt.Errorf("warden/redis: refresh fetch mode: %w", err)
			}
		}
		return recorded, nil
	}
	return mode, nil
}

// AcquireGate sets a cluster-wide gate with SET NX.
func (s *Store) AcquireGate(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, gateKey(name), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("warden/redis: acquire gate: %w", err)
	}
	return ok, nil
}
