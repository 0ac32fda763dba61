package redis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/warden/fetch"
	"github.com/xraph/warden/job"
)

// FetchDeadline pops from the first non-empty queue and scores the job
// by deadline in the pending set, in one script.
func (s *Store) FetchDeadline(ctx context.Context, queues []string, deadline time.Time) (string, string, error) {
	if len(queues) == 0 {
		return "", "", nil
	}
	keys := make([]string, 0, len(queues)+1)
	keys = append(keys, pendingKey)
	for _, q := range queues {
		keys = append(keys, queueKey(q))
	}

	res, err := s.scripts.Call(ctx, scriptDeadlineFetch, keys, score(deadline)).Slice()
	if errors.Is(err, goredis.Nil) {
		return "", "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("warden/redis: deadline fetch: %w", err)
	}
	if len(res) != 2 {
		return "", "", fmt.Errorf("warden/redis: deadline fetch: unexpected reply %v", res)
	}
	pos, ok := res[0].(int64)
	if !ok || pos < 1 || int(pos) > len(queues) {
		return "", "", fmt.Errorf("warden/redis: deadline fetch: bad position %v", res[0])
	}
	j, ok := res[1].(string)
	if !ok {
		return "", "", fmt.Errorf("warden/redis: deadline fetch: bad job %T", res[1])
	}
	return queues[pos-1], j, nil
}

// RemovePending deletes raw from the pending set.
func (s *Store) RemovePending(ctx context.Context, raw string) (int64, error) {
	n, err := s.client.ZRem(ctx, pendingKey, raw).Result()
	if err != nil {
		return 0, fmt.Errorf("warden/redis: remove pending: %w", err)
	}
	return n, nil
}

// RequeuePending moves raw from the pending set to the tail end of queue
// so it is fetched next.
func (s *Store) RequeuePending(ctx context.Context, queue, raw string) (bool, error) {
	n, err := s.scripts.Call(ctx, scriptDeadlineRequeue,
		[]string{pendingKey, queuesKey, queueKey(queue)}, raw, queue).Int64()
	if err != nil {
		return false, fmt.Errorf("warden/redis: requeue pending: %w", err)
	}
	return n == 1, nil
}

// Overdue returns pending jobs whose deadline is at or before now.
func (s *Store) Overdue(ctx context.Context, now time.Time, offset, count int) ([]string, error) {
	jobs, err := s.client.ZRangeByScore(ctx, pendingKey, &goredis.ZRangeBy{
		Min:    "-inf",
		Max:    score(now),
		Offset: int64(offset),
		Count:  int64(count),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("warden/redis: overdue: %w", err)
	}
	return jobs, nil
}

// Pending lists the pending set ordered by deadline.
func (s *Store) Pending(ctx context.Context) ([]fetch.PendingEntry, error) {
	zs, err := s.client.ZRangeWithScores(ctx, pendingKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("warden/redis: pending: %w", err)
	}
	out := make([]fetch.PendingEntry, 0, len(zs))
	for _, z := range zs {
		raw, _ := z.Member.(string)
		out = append(out, fetch.PendingEntry{
			Job:      raw,
			Queue:    job.QueueOf(raw),
			Deadline: fromScore(z.Score),
		})
	}
	return out, nil
}

// score formats t as unix seconds with microsecond precision.
func score(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixMicro())/1e6, 'f', 6, 64)
}

func fromScore(f float64) time.Time {
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(math.Round(frac*1e6))*int64(time.Microsecond)).UTC()
}
