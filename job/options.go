package job

import "time"

// Options configures how a job definition is pushed and run.
type Options struct {
	// Queue is the queue name jobs of this definition are pushed to.
	Queue string

	// Timeout bounds handler execution. Zero means no limit.
	Timeout time.Duration
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{Queue: DefaultQueue}
}

// Option is a functional option for configuring a job definition.
type Option func(*Options)

// WithQueue sets the queue name for the job.
func WithQueue(q string) Option {
	return func(o *Options) { o.Queue = q }
}

// WithTimeout sets the maximum execution duration for the job.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}
