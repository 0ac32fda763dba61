package cluster

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Heartbeat defaults.
const (
	DefaultHeartbeatInterval = 5 * time.Second
	DefaultHeartbeatTTL      = 60 * time.Second
)

// HeartbeatOption configures a Heartbeat.
type HeartbeatOption func(*Heartbeat)

// WithHeartbeatInterval sets how often the record is rewritten.
func WithHeartbeatInterval(d time.Duration) HeartbeatOption {
	return func(h *Heartbeat) { h.interval = d }
}

// WithHeartbeatTTL sets the expiry of the heartbeat key.
func WithHeartbeatTTL(d time.Duration) HeartbeatOption {
	return func(h *Heartbeat) { h.ttl = d }
}

// WithHeartbeatClock sets the clock driving the loop.
func WithHeartbeatClock(c clockwork.Clock) HeartbeatOption {
	return func(h *Heartbeat) { h.clock = c }
}

// WithHeartbeatLogger sets the logger.
func WithHeartbeatLogger(l *slog.Logger) HeartbeatOption {
	return func(h *Heartbeat) { h.logger = l }
}

// Heartbeat periodically publishes a Process record through a Registry.
type Heartbeat struct {
	registry Registry
	interval time.Duration
	ttl      time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger

	mu     sync.Mutex
	proc   Process
	onBeat []func(context.Context)

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewHeartbeat creates a heartbeat publishing proc.
func NewHeartbeat(registry Registry, proc Process, opts ...HeartbeatOption) *Heartbeat {
	h := &Heartbeat{
		registry: registry,
		interval: DefaultHeartbeatInterval,
		ttl:      DefaultHeartbeatTTL,
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
		proc:     proc,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// ID returns the identity the heartbeat publishes.
func (h *Heartbeat) ID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.proc.ID
}

// OnBeat registers fn to run after every successful beat.
func (h *Heartbeat) OnBeat(fn func(context.Context)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onBeat = append(h.onBeat, fn)
}

// Update mutates the record published by the next beat.
func (h *Heartbeat) Update(fn func(*Process)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(&h.proc)
}

// Beat writes the record once and runs the OnBeat callbacks.
func (h *Heartbeat) Beat(ctx context.Context) error {
	h.mu.Lock()
	h.proc.BeatAt = h.clock.Now().UTC()
	if h.proc.StartedAt.IsZero() {
		h.proc.StartedAt = h.proc.BeatAt
	}
	snapshot := h.proc
	callbacks := append([]func(context.Context){}, h.onBeat...)
	h.mu.Unlock()

	if err := h.registry.Heartbeat(ctx, &snapshot, h.ttl); err != nil {
		return err
	}
	for _, fn := range callbacks {
		fn(ctx)
	}
	return nil
}

// Start beats once synchronously, then keeps beating every interval until
// Stop. A failure of the first beat is returned; later failures are logged.
func (h *Heartbeat) Start(ctx context.Context) error {
	if err := h.Beat(ctx); err != nil {
		return err
	}

	ctx = context.WithoutCancel(ctx)
	h.stopCh = make(chan struct{})
	ticker := h.clock.NewTicker(h.interval)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-h.stopCh:
				return
			case <-ticker.Chan():
				if err := h.Beat(ctx); err != nil {
					h.logger.Warn("heartbeat failed",
						slog.String("process", h.ID()),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}()
	return nil
}

// Stop ends the loop and deletes the heartbeat key so peers see the
// process as gone without waiting for the ttl.
func (h *Heartbeat) Stop(ctx context.Context) {
	if h.stopCh != nil {
		close(h.stopCh)
		h.wg.Wait()
		h.stopCh = nil
	}
	if err := h.registry.ClearHeartbeat(ctx, h.ID()); err != nil {
		h.logger.Warn("heartbeat clear failed",
			slog.String("process", h.ID()),
			slog.String("error", err.Error()),
		)
	}
}
