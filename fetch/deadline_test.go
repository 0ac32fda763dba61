package fetch_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/warden"
	"github.com/xraph/warden/ext"
	"github.com/xraph/warden/fetch"
	"github.com/xraph/warden/queue"
)

var epoch = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func TestDeadlineName(t *testing.T) {
	_, s := newStore(t)
	d := fetch.NewDeadline(s, queue.NewSelector([]string{"default"}, true),
		fetch.WithJobTimeout(time.Hour), fetch.WithPushbackDivisor(60))
	assert.Equal(t, warden.StrategyTimed, d.Name())
	assert.Equal(t, time.Minute, d.SweepInterval())
}

func TestDeadlineCrashRecovery(t *testing.T) {
	mr, s := newStore(t)
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(epoch)
	sel := queue.NewSelector([]string{"default"}, true)

	j1 := enqueue(t, s, "Report", "default")

	first := fetch.NewDeadline(s, sel, fetch.WithClock(clock), fetch.WithJobTimeout(time.Hour))
	u, err := first.RetrieveWork(ctx)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, j1, u.Job())

	entries, err := first.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, epoch.Add(time.Hour), entries[0].Deadline)
	assert.Equal(t, "default", entries[0].Queue)

	// The process dies; nobody acknowledges.
	clock.Advance(time.Hour + time.Second)

	rec := newRecoveries()
	reg := ext.NewRegistry(nil)
	reg.Register(rec)

	second := fetch.NewDeadline(s, sel, fetch.WithClock(clock), fetch.WithJobTimeout(time.Hour), fetch.WithExtensions(reg))
	require.NoError(t, second.Startup(ctx))
	t.Cleanup(func() { second.Terminate(context.Background()) })

	assert.Equal(t, 1, rec.pushback)
	assert.Equal(t, []string{j1}, list(t, mr, "default"))

	u, err = second.RetrieveWork(ctx)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, j1, u.Job())
	require.NoError(t, u.Acknowledge(ctx))

	entries, err = second.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, list(t, mr, "default"))
}

func TestPushbackOnlyOverdue(t *testing.T) {
	mr, s := newStore(t)
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(epoch)
	sel := queue.NewSelector([]string{"default", "mail"}, true)

	d := fetch.NewDeadline(s, sel, fetch.WithClock(clock), fetch.WithJobTimeout(time.Minute))

	old := enqueue(t, s, "Old", "mail")
	_, err := d.RetrieveWork(ctx)
	require.NoError(t, err)

	clock.Advance(30 * time.Second)
	fresh := enqueue(t, s, "Fresh", "default")
	_, err = d.RetrieveWork(ctx)
	require.NoError(t, err)

	mr.ZAdd("warden:pending", float64(epoch.Unix()), "not json")

	clock.Advance(45 * time.Second)
	n, err := d.Pushback(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, []string{old}, list(t, mr, "mail"))
	entries, err := d.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "not json", entries[0].Job, "unreadable entries stay pending")
	assert.Equal(t, fresh, entries[1].Job)

	n, err = d.Pushback(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPushbackBatches(t *testing.T) {
	mr, s := newStore(t)
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(epoch)
	d := fetch.NewDeadline(s, queue.NewSelector([]string{"default"}, true),
		fetch.WithClock(clock), fetch.WithJobTimeout(time.Minute))

	const total = 250
	for range total {
		enqueue(t, s, "Bulk", "default")
	}
	for range total {
		u, err := d.RetrieveWork(ctx)
		require.NoError(t, err)
		require.NotNil(t, u)
	}
	for i := range 3 {
		mr.ZAdd("warden:pending", float64(epoch.Unix()-int64(i)), "bad")
	}

	clock.Advance(2 * time.Minute)
	n, err := d.Pushback(ctx)
	require.NoError(t, err)
	assert.Equal(t, total, n)
	assert.Len(t, list(t, mr, "default"), total)
}

func TestDeadlineRequeueGoesFirst(t *testing.T) {
	mr, s := newStore(t)
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(epoch)
	d := fetch.NewDeadline(s, queue.NewSelector([]string{"default"}, true), fetch.WithClock(clock))

	first := enqueue(t, s, "First", "default")
	second := enqueue(t, s, "Second", "default")

	u, err := d.RetrieveWork(ctx)
	require.NoError(t, err)
	require.Equal(t, first, u.Job())
	require.NoError(t, u.Requeue(ctx))

	assert.Equal(t, []string{second, first}, list(t, mr, "default"))

	u, err = d.RetrieveWork(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, u.Job(), "requeued job is fetched next")
}

func TestDeadlineBulkRequeue(t *testing.T) {
	mr, s := newStore(t)
	ctx := context.Background()
	d := fetch.NewDeadline(s, queue.NewSelector([]string{"default"}, true), fetch.WithClock(clockwork.NewFakeClockAt(epoch)))

	a := enqueue(t, s, "A", "default")
	u, err := d.RetrieveWork(ctx)
	require.NoError(t, err)

	d.BulkRequeue(ctx, []fetch.UnitOfWork{u})
	assert.Equal(t, []string{a}, list(t, mr, "default"))
	entries, err := d.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDeadlinePauseIsImmediate(t *testing.T) {
	_, s := newStore(t)
	ctx := context.Background()
	sel := queue.NewSelector([]string{"mail"}, true)
	d := fetch.NewDeadline(s, sel, fetch.WithPollInterval(time.Millisecond))

	j := enqueue(t, s, "Mail", "mail")
	sel.Notify("pause", "mail")

	u, err := d.RetrieveWork(ctx)
	require.NoError(t, err)
	assert.Nil(t, u, "paused queue yields no work")

	sel.Notify("unpause", "mail")
	u, err = d.RetrieveWork(ctx)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, j, u.Job())
}

func TestDeadlineNoDuplication(t *testing.T) {
	_, s := newStore(t)
	ctx := context.Background()
	d := fetch.NewDeadline(s, queue.NewSelector([]string{"default", "mail"}, false), fetch.WithPollInterval(time.Millisecond))
	r := fetch.NewRetriever(d, 4)
	r.Start(ctx)
	t.Cleanup(func() { r.Terminate(context.Background()) })

	const total = 40
	for i := range total {
		q := "default"
		if i%2 == 1 {
			q = "mail"
		}
		enqueue(t, s, "Job", q)
	}

	var (
		mu   sync.Mutex
		seen = map[string]int{}
		wg   sync.WaitGroup
	)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				mu.Lock()
				done := len(seen) == total
				mu.Unlock()
				if done {
					return
				}
				u, err := r.RetrieveWork(ctx)
				if err != nil || u == nil {
					continue
				}
				mu.Lock()
				seen[u.Job()]++
				mu.Unlock()
				_ = u.Acknowledge(ctx)
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, total)
	for raw, n := range seen {
		assert.Equal(t, 1, n, raw)
	}
	entries, err := d.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
