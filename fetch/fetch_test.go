package fetch_test

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/warden/fetch"
	"github.com/xraph/warden/job"
	redisstore "github.com/xraph/warden/store/redis"
)

func newStore(t *testing.T) (*miniredis.Miniredis, *redisstore.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, redisstore.New(client)
}

// enqueue pushes a job of class onto queue and returns its encoded form.
func enqueue(t *testing.T, s *redisstore.Store, class, queue string) string {
	t.Helper()
	j, err := job.New(class, queue, nil)
	require.NoError(t, err)
	raw, err := j.Encode()
	require.NoError(t, err)
	require.NoError(t, s.Push(context.Background(), j))
	return raw
}

func list(t *testing.T, mr *miniredis.Miniredis, name string) []string {
	t.Helper()
	if !mr.Exists("warden:queue:" + name) {
		return nil
	}
	items, err := mr.List("warden:queue:" + name)
	require.NoError(t, err)
	return items
}

// recoveries counts OrphansRecovered and JobsPushedBack hooks.
type recoveries struct {
	mu       sync.Mutex
	orphans  map[string]int
	pushback int
}

func newRecoveries() *recoveries { return &recoveries{orphans: map[string]int{}} }

func (r *recoveries) Name() string { return "recoveries" }

func (r *recoveries) OnOrphansRecovered(_ context.Context, process string, jobs int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orphans[process] += jobs
	return nil
}

func (r *recoveries) OnJobsPushedBack(_ context.Context, jobs int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushback += jobs
	return nil
}

func TestPrivateListNames(t *testing.T) {
	assert.Equal(t, "default|web-1:0", fetch.StablePrivate("default", "web-1:0"))
	assert.Equal(t, "sq|proc_x|mail", fetch.HeartbeatPrivate("proc_x", "mail"))

	tests := []struct {
		name  string
		proc  string
		queue string
		ok    bool
	}{
		{"sq|proc_x|mail", "proc_x", "mail", true},
		{"sq|proc_x|a|b", "proc_x", "a|b", true},
		{"sq|proc_x", "", "", false},
		{"sq||mail", "", "", false},
		{"default|web-1:0", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc, queue, ok := fetch.ParseHeartbeatPrivate(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.proc, proc)
			assert.Equal(t, tt.queue, queue)
		})
	}
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "stable", fetch.ModeStable.String())
	assert.Equal(t, "heartbeat", fetch.ModeHeartbeat.String())
}
