package event

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/xraph/warden/backoff"
)

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ListenerOption {
	return func(li *Listener) { li.logger = l }
}

// WithBackoff sets the delay strategy between failed receives.
func WithBackoff(s backoff.Strategy) ListenerOption {
	return func(li *Listener) { li.backoff = s }
}

// WithClock sets the clock used for backoff sleeps.
func WithClock(c clockwork.Clock) ListenerOption {
	return func(li *Listener) { li.clock = c }
}

// Subscriber opens pub/sub subscriptions. Every go-redis client
// satisfies it.
type Subscriber interface {
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// Listener subscribes to one channel and dispatches decoded messages.
type Listener struct {
	client  Subscriber
	channel string
	logger  *slog.Logger
	backoff backoff.Strategy
	clock   clockwork.Clock

	mu       sync.RWMutex
	handlers []Handler

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewListener creates a listener for channel.
func NewListener(client Subscriber, channel string, opts ...ListenerOption) *Listener {
	l := &Listener{
		client:  client,
		channel: channel,
		logger:  slog.Default(),
		backoff: backoff.DefaultStrategy(),
		clock:   clockwork.NewRealClock(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Register adds a handler. Handlers may be added while running.
func (l *Listener) Register(h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = append(l.handlers, h)
}

// Start subscribes and returns once the subscription is confirmed, so a
// message published after Start returns is delivered.
func (l *Listener) Start(ctx context.Context) error {
	ps := l.client.Subscribe(ctx, l.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close() //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("warden/event: subscribe %s: %w", l.channel, err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l.cancel = cancel
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer ps.Close() //nolint:errcheck // best-effort cleanup
		l.run(runCtx, ps)
	}()
	return nil
}

func (l *Listener) run(ctx context.Context, ps *redis.PubSub) {
	attempt := 0
	for {
		msg, err := ps.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			attempt++
			l.logger.Warn("broadcast receive failed, resubscribing",
				slog.String("channel", l.channel),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			select {
			case <-ctx.Done():
				return
			case <-l.clock.After(l.backoff.Delay(attempt)):
			}
			continue
		}
		attempt = 0
		l.dispatch([]byte(msg.Payload))
	}
}

func (l *Listener) dispatch(data []byte) {
	m, err := Decode(data)
	if err != nil {
		l.logger.Warn("dropping malformed broadcast", slog.String("error", err.Error()))
		return
	}
	l.logger.Debug("broadcast received", slog.String("verb", m.Verb), slog.String("payload", m.Payload))

	l.mu.RLock()
	handlers := append([]Handler(nil), l.handlers...)
	l.mu.RUnlock()
	for _, h := range handlers {
		h.Notify(m.Verb, m.Payload)
	}
}

// Stop unsubscribes and waits for the receive loop to exit.
func (l *Listener) Stop() {
	if l.cancel != nil {
		l.cancel()
		l.wg.Wait()
		l.cancel = nil
	}
}
