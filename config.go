package warden

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Fetch strategy names.
const (
	// StrategyReliable uses private queues named after a stable
	// hostname+index identity. Recovery happens when the same identity
	// restarts.
	StrategyReliable = "reliable"
	// StrategySuper uses private queues named after a random identity
	// kept alive by a heartbeat key. Dead identities are reclaimed by an
	// orphan scan on any process.
	StrategySuper = "super"
	// StrategyTimed uses one shared sorted set scored by deadline. Overdue
	// entries are pushed back by a periodic sweep.
	StrategyTimed = "timed"
)

// Config holds configuration for a warden process.
type Config struct {
	Redis     RedisConfig     `yaml:"redis"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Election  ElectionConfig  `yaml:"election"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`

	// Concurrency is the number of worker goroutines.
	Concurrency int `yaml:"concurrency"`

	// Queues is the ordered list of queues to poll. Repeating a name
	// weights it when Strict is false.
	Queues []string `yaml:"queues"`

	// Strict processes queues in the configured order. Ignored when
	// Queues contains duplicates.
	Strict bool `yaml:"strict"`

	// ShutdownTimeout bounds how long Stop waits for running jobs.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RedisConfig describes the shared store connection.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// FetchConfig configures the reliable fetch strategy.
type FetchConfig struct {
	// Strategy is one of StrategyReliable, StrategySuper or StrategyTimed.
	Strategy string `yaml:"strategy"`

	// Index is the process index for StrategyReliable. -1 means unset.
	Index int `yaml:"index"`

	// EphemeralHostname drops the hostname from reliable private queue
	// names, for platforms where hostnames change on every deploy.
	EphemeralHostname bool `yaml:"ephemeral_hostname"`

	// Timeout is the blocking pop interval and so the longest a single
	// RetrieveWork call waits for work.
	Timeout time.Duration `yaml:"timeout"`

	// PollInterval is how long to sleep when every queue is paused or empty
	// and no blocking pop was possible.
	PollInterval time.Duration `yaml:"poll_interval"`

	// OrphanScanInterval is how often StrategySuper looks for dead
	// identities. Zero disables the periodic scan (startup still scans).
	OrphanScanInterval time.Duration `yaml:"orphan_scan_interval"`

	// OrphanCheckDelay gates the full keyspace orphan scan cluster-wide.
	// Zero disables it.
	OrphanCheckDelay time.Duration `yaml:"orphan_check_delay"`

	// JobTimeout is how long StrategyTimed lets a job stay in flight before
	// it is pushed back.
	JobTimeout time.Duration `yaml:"job_timeout"`

	// PushbackDivisor sets the pushback rate to once per JobTimeout/N.
	PushbackDivisor int `yaml:"pushback_divisor"`
}

// ElectionConfig configures leader election.
type ElectionConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

// HeartbeatConfig configures the process liveness key.
type HeartbeatConfig struct {
	Interval time.Duration `yaml:"interval"`
	TTL      time.Duration `yaml:"ttl"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Redis: RedisConfig{Addr: "localhost:6379"},
		Fetch: FetchConfig{
			Strategy:           StrategySuper,
			Index:              -1,
			Timeout:            time.Second,
			PollInterval:       time.Second,
			OrphanScanInterval: 5 * time.Minute,
			OrphanCheckDelay:   time.Hour,
			JobTimeout:         time.Hour,
			PushbackDivisor:    60,
		},
		Election: ElectionConfig{
			Enabled: true,
			TTL:     60 * time.Second,
		},
		Heartbeat: HeartbeatConfig{
			Interval: 5 * time.Second,
			TTL:      60 * time.Second,
		},
		Concurrency:     10,
		Queues:          []string{"default"},
		ShutdownTimeout: 25 * time.Second,
	}
}

// LoadConfig reads a YAML file over the defaults and then applies WARDEN_*
// environment overrides. An empty path returns the defaults with env applied.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("warden: read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("warden: parse config %s: %w", path, err)
		}
	}
	ApplyEnv(&cfg, os.Getenv)
	return cfg, cfg.Validate()
}

// ApplyEnv overlays WARDEN_* variables read through getenv onto cfg.
// Unparseable values are ignored.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv("WARDEN_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := getenv("WARDEN_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := getenv("WARDEN_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}
	if v := getenv("WARDEN_FETCH_STRATEGY"); v != "" {
		cfg.Fetch.Strategy = v
	}
	if v := getenv("WARDEN_INDEX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Fetch.Index = n
		}
	}
	if v := getenv("WARDEN_EPHEMERAL_HOSTNAME"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Fetch.EphemeralHostname = b
		}
	}
	if v := getenv("WARDEN_JOB_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Fetch.JobTimeout = d
		}
	}
	if v := getenv("WARDEN_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Concurrency = n
		}
	}
	if v := getenv("WARDEN_QUEUES"); v != "" {
		cfg.Queues = nil
		for _, q := range strings.Split(v, ",") {
			if q = strings.TrimSpace(q); q != "" {
				cfg.Queues = append(cfg.Queues, q)
			}
		}
	}
	if v := getenv("WARDEN_STRICT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Strict = b
		}
	}
	if v := getenv("WARDEN_ELECTION"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Election.Enabled = b
		}
	}
}

// Validate reports configuration errors. Mixing the stable and heartbeat
// identity assumptions is rejected rather than tolerated.
func (c Config) Validate() error {
	switch c.Fetch.Strategy {
	case StrategyReliable:
		if c.Fetch.Index < 0 {
			return fmt.Errorf("%w: strategy %q requires a process index", ErrInvalidConfig, StrategyReliable)
		}
	case StrategySuper:
		if c.Fetch.Index >= 0 {
			return fmt.Errorf("%w: strategy %q uses heartbeat identities, index %d must not be set",
				ErrMixedIdentityModes, StrategySuper, c.Fetch.Index)
		}
	case StrategyTimed:
		if c.Fetch.JobTimeout <= 0 {
			return fmt.Errorf("%w: job timeout must be positive", ErrInvalidConfig)
		}
		if c.Fetch.PushbackDivisor <= 0 {
			return fmt.Errorf("%w: pushback divisor must be positive", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStrategy, c.Fetch.Strategy)
	}

	if c.Concurrency <= 0 {
		return fmt.Errorf("%w: concurrency must be positive", ErrInvalidConfig)
	}
	if len(c.Queues) == 0 {
		return fmt.Errorf("%w: at least one queue is required", ErrInvalidConfig)
	}
	if c.Fetch.Timeout <= 0 || c.Fetch.PollInterval <= 0 {
		return fmt.Errorf("%w: fetch timeout and poll interval must be positive", ErrInvalidConfig)
	}
	if c.Election.Enabled && c.Election.TTL < 4*time.Millisecond {
		return fmt.Errorf("%w: election ttl too small", ErrInvalidConfig)
	}
	if c.Fetch.Strategy == StrategySuper {
		if c.Heartbeat.Interval <= 0 || c.Heartbeat.TTL <= c.Heartbeat.Interval {
			return fmt.Errorf("%w: heartbeat ttl must exceed a positive interval", ErrInvalidConfig)
		}
	}
	return nil
}
