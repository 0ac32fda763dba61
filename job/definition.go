package job

import "context"

// Definition is a typed job definition with a handler function.
// T is the args type (must be JSON-serializable).
type Definition[T any] struct {
	// Name is the job class.
	Name string

	Handler func(ctx context.Context, args T) error

	Opts Options
}

// NewDefinition creates a typed job definition.
func NewDefinition[T any](name string, handler func(ctx context.Context, args T) error, opts ...Option) *Definition[T] {
	def := &Definition[T]{
		Name:    name,
		Handler: handler,
		Opts:    DefaultOptions(),
	}
	for _, opt := range opts {
		opt(&def.Opts)
	}
	return def
}

// NewJob builds a job of this definition carrying args.
func (d *Definition[T]) NewJob(args T) (*Job, error) {
	return New(d.Name, d.Opts.Queue, args)
}
