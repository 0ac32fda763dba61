package backoff_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/xraph/warden/backoff"
)

func TestConstant_ReturnsFixedDelay(t *testing.T) {
	c := backoff.NewConstant(100 * time.Millisecond)
	for attempt := 1; attempt <= 5; attempt++ {
		if got := c.Delay(attempt); got != 100*time.Millisecond {
			t.Errorf("Delay(%d) = %v", attempt, got)
		}
	}
}

func TestExponential(t *testing.T) {
	e := backoff.NewExponential(time.Second, 10*time.Second)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{64, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponentialWithJitter_WithinBounds(t *testing.T) {
	e := backoff.NewExponentialWithJitter(time.Second, 10*time.Second)
	seen := make(map[time.Duration]bool)
	for attempt := 1; attempt <= 6; attempt++ {
		for range 50 {
			got := e.Delay(attempt)
			if got < 0 || got > 10*time.Second {
				t.Fatalf("Delay(%d) = %v out of range", attempt, got)
			}
			seen[got] = true
		}
	}
	if len(seen) < 2 {
		t.Errorf("expected variance, got %d distinct values", len(seen))
	}
}

func TestJitter(t *testing.T) {
	if got := backoff.Jitter(0); got != 0 {
		t.Errorf("Jitter(0) = %v", got)
	}
	for range 100 {
		if got := backoff.Jitter(time.Minute); got < 0 || got >= time.Minute {
			t.Fatalf("Jitter(1m) = %v", got)
		}
	}
}

func TestPoll_SucceedsEventually(t *testing.T) {
	clock := clockwork.NewFakeClock()
	calls := 0
	done := make(chan struct{})
	var ok bool
	var err error

	go func() {
		defer close(done)
		ok, err = backoff.Poll(context.Background(), clock, backoff.NewConstant(100*time.Millisecond), 10,
			func(context.Context) (bool, error) {
				calls++
				return calls == 3, nil
			})
	}()

	for range 2 {
		if werr := clock.BlockUntilContext(context.Background(), 1); werr != nil {
			t.Fatal(werr)
		}
		clock.Advance(100 * time.Millisecond)
	}
	<-done

	if !ok || err != nil {
		t.Fatalf("Poll = %v, %v", ok, err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestPoll_GivesUp(t *testing.T) {
	clock := clockwork.NewRealClock()
	calls := 0
	ok, err := backoff.Poll(context.Background(), clock, backoff.NewConstant(time.Millisecond), 4,
		func(context.Context) (bool, error) {
			calls++
			return false, nil
		})
	if ok || err != nil {
		t.Fatalf("Poll = %v, %v", ok, err)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
}

func TestPoll_PropagatesError(t *testing.T) {
	want := errors.New("down")
	_, err := backoff.Poll(context.Background(), clockwork.NewRealClock(), backoff.NewConstant(time.Millisecond), 4,
		func(context.Context) (bool, error) { return false, want })
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
}
