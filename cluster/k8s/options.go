package k8s

import (
	"log/slog"

	"github.com/jonboulle/clockwork"
)

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// WithLeaseName sets the Lease object name. Default: "warden-leader".
func WithLeaseName(name string) Option {
	return func(p *Provider) { p.leaseName = name }
}

// WithClock sets the clock used to stamp and expire leases.
func WithClock(c clockwork.Clock) Option {
	return func(p *Provider) { p.clock = c }
}
