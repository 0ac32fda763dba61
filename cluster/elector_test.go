package cluster_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/warden"
	"github.com/xraph/warden/cluster"
	"github.com/xraph/warden/ext"
)

// memLease is an in-process LeaseStore whose expiry follows a fake clock.
type memLease struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	holder   string
	expires  time.Time
	renewErr error
}

func (m *memLease) live() bool {
	return m.holder != "" && m.clock.Now().Before(m.expires)
}

func (m *memLease) AcquireLease(_ context.Context, holder string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.live() && m.holder != holder {
		return false, nil
	}
	m.holder, m.expires = holder, m.clock.Now().Add(ttl)
	return true, nil
}

func (m *memLease) RenewLease(_ context.Context, holder string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.renewErr != nil {
		return false, m.renewErr
	}
	if !m.live() || m.holder != holder {
		return false, nil
	}
	m.expires = m.clock.Now().Add(ttl)
	return true, nil
}

func (m *memLease) ReleaseLease(_ context.Context, holder string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.holder != holder {
		return false, nil
	}
	m.holder = ""
	return true, nil
}

func (m *memLease) LeaseHolder(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.live() {
		return "", nil
	}
	return m.holder, nil
}

func (m *memLease) steal(holder string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holder, m.expires = holder, m.clock.Now().Add(ttl)
}

// leaderEvents counts leadership hooks.
type leaderEvents struct {
	mu                    sync.Mutex
	gained, lost, renewal int
	reasons               []string
}

func (l *leaderEvents) Name() string { return "leader-events" }

func (l *leaderEvents) OnLeadershipGained(context.Context, string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gained++
	return nil
}

func (l *leaderEvents) OnLeadershipLost(_ context.Context, _, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lost++
	l.reasons = append(l.reasons, reason)
	return nil
}

func (l *leaderEvents) OnLeaseRenewalFailed(context.Context, string, error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.renewal++
	return nil
}

const ttl = 60 * time.Second

func newElector(t *testing.T, store cluster.LeaseStore, clock clockwork.Clock, name string) (*cluster.Elector, *leaderEvents) {
	t.Helper()
	ev := &leaderEvents{}
	reg := ext.NewRegistry(slog.Default())
	reg.Register(ev)
	return cluster.NewElector(store, name,
		cluster.WithTTL(ttl),
		cluster.WithClock(clock),
		cluster.WithExtensions(reg),
	), ev
}

func TestElector_AcquireAndRenew(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := &memLease{clock: clock}
	e, ev := newElector(t, store, clock, "a")
	ctx := context.Background()

	assert.False(t, e.Leader())
	assert.Equal(t, ttl, e.Interval())

	e.Election(ctx)
	require.True(t, e.Leader())
	assert.Equal(t, cluster.Leader, e.State())
	assert.Equal(t, ttl/4, e.Interval())
	assert.Equal(t, 1, ev.gained)

	// Renewal pushes the local expiry forward.
	clock.Advance(ttl / 2)
	e.Election(ctx)
	clock.Advance(ttl / 2)
	assert.True(t, e.Leader(), "renewed lease should outlive the original expiry")
	assert.Equal(t, 1, ev.gained, "renewal is not a new tenure")
}

func TestElector_LosesLeaseToAnotherHolder(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := &memLease{clock: clock}
	e, ev := newElector(t, store, clock, "a")
	ctx := context.Background()

	e.Election(ctx)
	require.True(t, e.Leader())

	store.steal("b", ttl)
	e.Election(ctx)

	assert.False(t, e.Leader())
	assert.Equal(t, cluster.Follower, e.State())
	assert.Equal(t, ttl, e.Interval())
	assert.Equal(t, 1, ev.lost)
}

func TestElector_RenewalErrorKeepsLeaseUntilLocalExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := &memLease{clock: clock}
	e, ev := newElector(t, store, clock, "a")
	ctx := context.Background()

	e.Election(ctx)
	require.True(t, e.Leader())

	store.renewErr = errors.New("connection refused")
	clock.Advance(ttl / 4)
	e.Election(ctx)
	assert.True(t, e.Leader(), "a store blip must not drop leadership early")
	assert.Equal(t, 1, ev.renewal)

	clock.Advance(ttl)
	assert.False(t, e.Leader(), "cached expiry lapsed")
}

func TestElector_CallbackOncePerTenure(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := &memLease{clock: clock}
	e, _ := newElector(t, store, clock, "a")

	var mu sync.Mutex
	calls := 0
	require.NoError(t, e.Start(func(context.Context) {
		mu.Lock()
		calls++
		mu.Unlock()
	}))
	assert.ErrorIs(t, e.Start(nil), warden.ErrAlreadyStarted)

	require.Eventually(t, e.Leader, time.Second, 5*time.Millisecond)

	// Several renewal cycles.
	for range 3 {
		require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
		clock.Advance(ttl / 4)
	}
	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))

	e.Terminate(context.Background())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestElector_TerminateStepsDown(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := &memLease{clock: clock}
	e, ev := newElector(t, store, clock, "a")
	ctx := context.Background()

	e.Election(ctx)
	require.True(t, e.Leader())

	e.Terminate(ctx)
	assert.False(t, e.Leader())
	holder, err := store.LeaseHolder(ctx)
	require.NoError(t, err)
	assert.Empty(t, holder, "lease deleted without waiting for ttl")
	assert.Equal(t, []string{"terminated"}, ev.reasons)

	// A follower terminating does not touch the lease.
	other, _ := newElector(t, store, clock, "b")
	e.Election(ctx)
	other.Terminate(ctx)
	holder, _ = store.LeaseHolder(ctx)
	assert.Equal(t, "a", holder)
}

func TestElector_Uniqueness(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := &memLease{clock: clock}
	ctx := context.Background()

	electors := make([]*cluster.Elector, 5)
	for i := range electors {
		electors[i], _ = newElector(t, store, clock, string(rune('a'+i)))
	}

	leaders := func() []*cluster.Elector {
		var out []*cluster.Elector
		for _, e := range electors {
			if e.Leader() {
				out = append(out, e)
			}
		}
		return out
	}

	for round := 0; round < 4; round++ {
		for _, e := range electors {
			e.Election(ctx)
		}
		require.Len(t, leaders(), 1, "round %d", round)
		clock.Advance(ttl / 4)
	}

	// Failover after the leader steps down.
	old := leaders()[0]
	old.Terminate(ctx)
	for _, e := range electors {
		if e != old {
			e.Election(ctx)
		}
	}
	now := leaders()
	require.Len(t, now, 1)
	assert.NotSame(t, old, now[0])
}

func TestElector_FailoverAfterCrash(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := &memLease{clock: clock}
	ctx := context.Background()

	a, _ := newElector(t, store, clock, "a")
	b, _ := newElector(t, store, clock, "b")

	a.Election(ctx)
	b.Election(ctx)
	require.True(t, a.Leader())
	require.False(t, b.Leader())

	// a dies without stepping down; its lease expires within one ttl.
	clock.Advance(ttl)
	b.Election(ctx)
	assert.True(t, b.Leader())
	assert.False(t, a.Leader())
}
