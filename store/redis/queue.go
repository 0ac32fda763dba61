package redis

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/xraph/warden/event"
	"github.com/xraph/warden/job"
)

// Push enqueues jobs in one transaction, registering their queue names.
func (s *Store) Push(ctx context.Context, jobs ...*job.Job) error {
	if len(jobs) == 0 {
		return nil
	}

	var order []string
	byQueue := make(map[string][]any)
	for _, j := range jobs {
		if j.Queue == "" {
			j.Queue = job.DefaultQueue
		}
		raw, err := j.Encode()
		if err != nil {
			return err
		}
		if _, seen := byQueue[j.Queue]; !seen {
			order = append(order, j.Queue)
		}
		byQueue[j.Queue] = append(byQueue[j.Queue], raw)
	}

	names := make([]any, len(order))
	for i, q := range order {
		names[i] = q
	}

	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, queuesKey, names...)
	for _, q := range order {
		pipe.LPush(ctx, queueKey(q), byQueue[q]...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("warden/redis: push: %w", err)
	}
	return nil
}

// Queues returns the known queue names, sorted.
func (s *Store) Queues(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, queuesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("warden/redis: queues: %w", err)
	}
	slices.Sort(names)
	return names, nil
}

// Size returns the number of jobs waiting in a queue or private list.
func (s *Store) Size(ctx context.Context, name string) (int64, error) {
	n, err := s.client.LLen(ctx, queueKey(name)).Result()
	if err != nil {
		return 0, fmt.Errorf("warden/redis: size: %w", err)
	}
	return n, nil
}

// ── Pause ──

// PauseQueue adds queue to the paused set and broadcasts the change in
// one transaction.
func (s *Store) PauseQueue(ctx context.Context, queue string) error {
	return s.setPaused(ctx, event.VerbPause, queue)
}

// UnpauseQueue removes queue from the paused set and broadcasts the
// change in one transaction.
func (s *Store) UnpauseQueue(ctx context.Context, queue string) error {
	return s.setPaused(ctx, event.VerbUnpause, queue)
}

func (s *Store) setPaused(ctx context.Context, verb, queue string) error {
	payload, err := event.Encode(event.Message{Verb: verb, Payload: queue, SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	if verb == event.VerbPause {
		pipe.SAdd(ctx, pausedKey, queue)
	} else {
		pipe.SRem(ctx, pausedKey, queue)
	}
	pipe.Publish(ctx, configChannel, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("warden/redis: %s: %w", verb, err)
	}
	return nil
}

// PausedQueues returns the paused queue names, sorted.
func (s *Store) PausedQueues(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, pausedKey).Result()
	if err != nil {
		return nil, fmt.Errorf("warden/redis: paused queues: %w", err)
	}
	slices.Sort(names)
	return names, nil
}

// IsPaused reports whether queue is in the paused set.
func (s *Store) IsPaused(ctx context.Context, queue string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, pausedKey, queue).Result()
	if err != nil {
		return false, fmt.Errorf("warden/redis: is paused: %w", err)
	}
	return ok, nil
}
