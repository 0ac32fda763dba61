package warden_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/warden"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, warden.DefaultConfig().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*warden.Config)
		want   error
	}{
		{"reliable without index", func(c *warden.Config) {
			c.Fetch.Strategy = warden.StrategyReliable
		}, warden.ErrInvalidConfig},
		{"reliable with index", func(c *warden.Config) {
			c.Fetch.Strategy = warden.StrategyReliable
			c.Fetch.Index = 2
		}, nil},
		{"super with index", func(c *warden.Config) {
			c.Fetch.Index = 0
		}, warden.ErrMixedIdentityModes},
		{"unknown strategy", func(c *warden.Config) {
			c.Fetch.Strategy = "basic"
		}, warden.ErrUnknownStrategy},
		{"timed without job timeout", func(c *warden.Config) {
			c.Fetch.Strategy = warden.StrategyTimed
			c.Fetch.JobTimeout = 0
		}, warden.ErrInvalidConfig},
		{"timed with zero divisor", func(c *warden.Config) {
			c.Fetch.Strategy = warden.StrategyTimed
			c.Fetch.PushbackDivisor = 0
		}, warden.ErrInvalidConfig},
		{"zero concurrency", func(c *warden.Config) {
			c.Concurrency = 0
		}, warden.ErrInvalidConfig},
		{"no queues", func(c *warden.Config) {
			c.Queues = nil
		}, warden.ErrInvalidConfig},
		{"heartbeat ttl below interval", func(c *warden.Config) {
			c.Heartbeat.TTL = c.Heartbeat.Interval
		}, warden.ErrInvalidConfig},
		{"tiny election ttl", func(c *warden.Config) {
			c.Election.TTL = time.Millisecond
		}, warden.ErrInvalidConfig},
		{"tiny election ttl ignored when disabled", func(c *warden.Config) {
			c.Election.Enabled = false
			c.Election.TTL = time.Millisecond
		}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := warden.DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"WARDEN_REDIS_ADDR":         "redis:6380",
		"WARDEN_REDIS_DB":           "3",
		"WARDEN_FETCH_STRATEGY":     "reliable",
		"WARDEN_INDEX":              "4",
		"WARDEN_EPHEMERAL_HOSTNAME": "true",
		"WARDEN_JOB_TIMEOUT":        "90s",
		"WARDEN_CONCURRENCY":        "25",
		"WARDEN_QUEUES":             "critical, default ,,low",
		"WARDEN_STRICT":             "yes-please",
		"WARDEN_ELECTION":           "false",
	}
	cfg := warden.DefaultConfig()
	warden.ApplyEnv(&cfg, func(k string) string { return env[k] })

	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, warden.StrategyReliable, cfg.Fetch.Strategy)
	assert.Equal(t, 4, cfg.Fetch.Index)
	assert.True(t, cfg.Fetch.EphemeralHostname)
	assert.Equal(t, 90*time.Second, cfg.Fetch.JobTimeout)
	assert.Equal(t, 25, cfg.Concurrency)
	assert.Equal(t, []string{"critical", "default", "low"}, cfg.Queues)
	assert.False(t, cfg.Strict, "unparseable bool is ignored")
	assert.False(t, cfg.Election.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warden.yaml")
	yaml := `
redis:
  addr: cache:6379
fetch:
  strategy: timed
  job_timeout: 10m
  pushback_divisor: 10
concurrency: 4
queues: [critical, critical, default]
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("WARDEN_CONCURRENCY", "8")

	cfg, err := warden.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, warden.StrategyTimed, cfg.Fetch.Strategy)
	assert.Equal(t, 10*time.Minute, cfg.Fetch.JobTimeout)
	assert.Equal(t, 10, cfg.Fetch.PushbackDivisor)
	assert.Equal(t, 8, cfg.Concurrency, "env overrides the file")
	assert.Equal(t, []string{"critical", "critical", "default"}, cfg.Queues)
	assert.Equal(t, time.Second, cfg.Fetch.PollInterval, "unset fields keep defaults")
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := warden.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fetch: [unclosed"), 0o600))
	_, err = warden.LoadConfig(path)
	require.Error(t, err)

	t.Setenv("WARDEN_FETCH_STRATEGY", "nope")
	_, err = warden.LoadConfig("")
	require.ErrorIs(t, err, warden.ErrUnknownStrategy)
}
