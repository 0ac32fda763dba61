package fetch_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/warden"
	"github.com/xraph/warden/cluster"
	"github.com/xraph/warden/ext"
	"github.com/xraph/warden/fetch"
	"github.com/xraph/warden/queue"
	redisstore "github.com/xraph/warden/store/redis"
)

func beat(t *testing.T, s *redisstore.Store, id string) {
	t.Helper()
	require.NoError(t, s.Heartbeat(context.Background(), &cluster.Process{ID: id}, time.Minute))
}

func heartbeatPrivate(s *redisstore.Store, id string, queues []string, opts ...fetch.Option) *fetch.Private {
	base := []fetch.Option{
		fetch.WithRegistry(s),
		fetch.WithClock(clockwork.NewFakeClock()),
		fetch.WithOrphanScanInterval(0),
		fetch.WithOrphanCheckDelay(0),
	}
	return fetch.NewPrivate(s, queue.NewSelector(queues, true), fetch.ModeHeartbeat, id, append(base, opts...)...)
}

// ──────────────────────────────────────────────────
// Stable identity
// ──────────────────────────────────────────────────

func TestStableCrashRecovery(t *testing.T) {
	mr, s := newStore(t)
	ctx := context.Background()
	sel := queue.NewSelector([]string{"default"}, true)

	j1 := enqueue(t, s, "Report", "default")

	first := fetch.NewPrivate(s, sel, fetch.ModeStable, "web-1:0")
	require.NoError(t, first.Startup(ctx))
	u, err := first.RetrieveWork(ctx)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, j1, u.Job())
	assert.Equal(t, "default", u.Queue())

	// The process dies here without acknowledging.
	assert.Empty(t, list(t, mr, "default"))
	assert.Equal(t, []string{j1}, list(t, mr, "default|web-1:0"))

	restarted := fetch.NewPrivate(s, sel, fetch.ModeStable, "web-1:0")
	require.NoError(t, restarted.Startup(ctx))
	u, err = restarted.RetrieveWork(ctx)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, j1, u.Job())

	require.NoError(t, u.Acknowledge(ctx))
	assert.Empty(t, list(t, mr, "default|web-1:0"))
	assert.Empty(t, list(t, mr, "default"))
}

func TestStableRecoveryServesOldestFirst(t *testing.T) {
	_, s := newStore(t)
	ctx := context.Background()
	sel := queue.NewSelector([]string{"default", "mail"}, true)

	a := enqueue(t, s, "A", "default")
	b := enqueue(t, s, "B", "default")

	first := fetch.NewPrivate(s, sel, fetch.ModeStable, "3")
	require.NoError(t, first.Startup(ctx))
	for range 2 {
		u, err := first.RetrieveWork(ctx)
		require.NoError(t, err)
		require.NotNil(t, u)
	}

	restarted := fetch.NewPrivate(s, sel, fetch.ModeStable, "3")
	require.NoError(t, restarted.Startup(ctx))
	var got []string
	for range 2 {
		u, err := restarted.RetrieveWork(ctx)
		require.NoError(t, err)
		require.NotNil(t, u)
		got = append(got, u.Job())
	}
	assert.Equal(t, []string{a, b}, got)
}

func TestPrivateRequeue(t *testing.T) {
	mr, s := newStore(t)
	ctx := context.Background()
	p := fetch.NewPrivate(s, queue.NewSelector([]string{"default", "mail"}, true), fetch.ModeStable, "h:1")
	require.NoError(t, p.Startup(ctx))

	j := enqueue(t, s, "Mail", "mail")
	u, err := p.RetrieveWork(ctx)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "mail", u.Queue())

	require.NoError(t, u.Requeue(ctx))
	assert.Equal(t, []string{j}, list(t, mr, "mail"))
	assert.Empty(t, list(t, mr, "mail|h:1"))

	// A second requeue finds nothing to move.
	require.NoError(t, u.Requeue(ctx))
	assert.Equal(t, []string{j}, list(t, mr, "mail"))
}

func TestPrivateStrictOrder(t *testing.T) {
	_, s := newStore(t)
	ctx := context.Background()
	p := fetch.NewPrivate(s, queue.NewSelector([]string{"critical", "default"}, true), fetch.ModeStable, "h:0")
	require.NoError(t, p.Startup(ctx))

	low := enqueue(t, s, "Low", "default")
	high := enqueue(t, s, "High", "critical")

	u, err := p.RetrieveWork(ctx)
	require.NoError(t, err)
	assert.Equal(t, high, u.Job())

	u, err = p.RetrieveWork(ctx)
	require.NoError(t, err)
	assert.Equal(t, low, u.Job())
}

func TestPrivatePausedQueueSkipped(t *testing.T) {
	_, s := newStore(t)
	ctx := context.Background()
	sel := queue.NewSelector([]string{"mail", "default"}, true)
	p := fetch.NewPrivate(s, sel, fetch.ModeStable, "h:0")
	require.NoError(t, p.Startup(ctx))

	enqueue(t, s, "Mail", "mail")
	other := enqueue(t, s, "Other", "default")

	sel.Notify("pause", "mail")
	u, err := p.RetrieveWork(ctx)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, other, u.Job(), "paused queue must not be fetched")
}

func TestMixedIdentityModesRejected(t *testing.T) {
	_, s := newStore(t)
	ctx := context.Background()

	stable := fetch.NewPrivate(s, queue.NewSelector([]string{"default"}, true), fetch.ModeStable, "h:0")
	require.NoError(t, stable.Startup(ctx))

	beat(t, s, "proc_a")
	hb := heartbeatPrivate(s, "proc_a", []string{"default"})
	err := hb.Startup(ctx)
	require.ErrorIs(t, err, warden.ErrMixedIdentityModes)
}

// ──────────────────────────────────────────────────
// Heartbeat identity
// ──────────────────────────────────────────────────

func TestHeartbeatCrashRecovery(t *testing.T) {
	mr, s := newStore(t)
	ctx := context.Background()

	j1 := enqueue(t, s, "Report", "default")

	beat(t, s, "proc_1")
	p1 := heartbeatPrivate(s, "proc_1", []string{"default"})
	require.NoError(t, p1.Startup(ctx))
	u, err := p1.RetrieveWork(ctx)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, j1, u.Job())
	assert.Equal(t, []string{j1}, list(t, mr, "sq|proc_1|default"))

	// proc_1 dies: its heartbeat expires.
	mr.FastForward(61 * time.Second)

	rec := newRecoveries()
	reg := ext.NewRegistry(nil)
	reg.Register(rec)

	beat(t, s, "proc_2")
	p2 := heartbeatPrivate(s, "proc_2", []string{"default"}, fetch.WithExtensions(reg))
	require.NoError(t, p2.Startup(ctx))

	assert.Equal(t, map[string]int{"proc_1": 1}, rec.orphans)
	registered, err := s.ListRegistered(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"proc_2"}, registered)

	u, err = p2.RetrieveWork(ctx)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, j1, u.Job())
	require.NoError(t, u.Acknowledge(ctx))

	assert.Empty(t, list(t, mr, "default"))
	assert.Empty(t, list(t, mr, "sq|proc_1|default"))
	assert.Empty(t, list(t, mr, "sq|proc_2|default"))

	n, err := p2.RecoverOrphans(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "second recovery finds nothing")
}

func TestRecoverOrphansSkipsLiveProcesses(t *testing.T) {
	mr, s := newStore(t)
	ctx := context.Background()

	j := enqueue(t, s, "A", "default")
	beat(t, s, "proc_live")
	live := heartbeatPrivate(s, "proc_live", []string{"default"})
	require.NoError(t, live.Startup(ctx))
	_, err := live.RetrieveWork(ctx)
	require.NoError(t, err)

	beat(t, s, "proc_peer")
	peer := heartbeatPrivate(s, "proc_peer", []string{"default"})
	require.NoError(t, peer.Startup(ctx))

	n, err := peer.RecoverOrphans(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, []string{j}, list(t, mr, "sq|proc_live|default"))
}

func TestOrphanScanIsGated(t *testing.T) {
	mr, s := newStore(t)
	ctx := context.Background()

	ghost := enqueue(t, s, "Ghost", "default")
	_, err := s.Drain(ctx, "default", "sq|proc_ghost|default")
	require.NoError(t, err)

	beat(t, s, "proc_1")
	p := heartbeatPrivate(s, "proc_1", []string{"default"}, fetch.WithOrphanCheckDelay(time.Hour))

	n, err := p.RecoverOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{ghost}, list(t, mr, "default"))

	mr.Lpush("warden:queue:sq|proc_other|default", "stray")
	n, err = p.RecoverOrphans(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "scan runs at most once per gate ttl")

	mr.FastForward(time.Hour + time.Second)
	beat(t, s, "proc_1")
	n, err = p.RecoverOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestHeartbeatNotVisible(t *testing.T) {
	_, s := newStore(t)
	clock := clockwork.NewFakeClock()
	p := fetch.NewPrivate(s, queue.NewSelector([]string{"default"}, true), fetch.ModeHeartbeat, "proc_silent",
		fetch.WithRegistry(s),
		fetch.WithClock(clock),
		fetch.WithOrphanScanInterval(0),
		fetch.WithOrphanCheckDelay(0),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- p.Startup(context.Background()) }()

	deadline := time.After(10 * time.Second)
	for {
		select {
		case err := <-errCh:
			require.ErrorIs(t, err, warden.ErrHeartbeatNotVisible)
			return
		case <-deadline:
			t.Fatal("startup did not give up")
		default:
		}
		waitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		if clock.BlockUntilContext(waitCtx, 1) == nil {
			clock.Advance(100 * time.Millisecond)
		}
		cancel()
	}
}

func TestHeartbeatRequiresRegistry(t *testing.T) {
	_, s := newStore(t)
	p := fetch.NewPrivate(s, queue.NewSelector([]string{"default"}, true), fetch.ModeHeartbeat, "proc_x")
	require.ErrorIs(t, p.Startup(context.Background()), warden.ErrInvalidConfig)
}

func TestHeartbeatBulkRequeue(t *testing.T) {
	mr, s := newStore(t)
	ctx := context.Background()

	a := enqueue(t, s, "A", "default")
	b := enqueue(t, s, "B", "mail")

	beat(t, s, "proc_1")
	p := heartbeatPrivate(s, "proc_1", []string{"default", "mail"})
	require.NoError(t, p.Startup(ctx))

	var inFlight []fetch.UnitOfWork
	for range 2 {
		u, err := p.RetrieveWork(ctx)
		require.NoError(t, err)
		require.NotNil(t, u)
		inFlight = append(inFlight, u)
	}

	lists, err := s.PrivateLists(ctx, "proc_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"sq|proc_1|default", "sq|proc_1|mail"}, lists)

	p.BulkRequeue(ctx, inFlight)
	p.Terminate(ctx)

	assert.Equal(t, []string{a}, list(t, mr, "default"))
	assert.Equal(t, []string{b}, list(t, mr, "mail"))
	registered, err := s.ListRegistered(ctx)
	require.NoError(t, err)
	assert.Empty(t, registered)
}
