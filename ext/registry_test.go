package ext_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/warden/ext"
	"github.com/xraph/warden/job"
)

// recorder implements every hook.
type recorder struct {
	calls []string
}

func (e *recorder) Name() string { return "recorder" }

func (e *recorder) OnLeadershipGained(_ context.Context, _ string) error {
	e.calls = append(e.calls, "OnLeadershipGained")
	return nil
}

func (e *recorder) OnLeadershipLost(_ context.Context, _, _ string) error {
	e.calls = append(e.calls, "OnLeadershipLost")
	return nil
}

func (e *recorder) OnLeaseRenewalFailed(_ context.Context, _ string, _ error) error {
	e.calls = append(e.calls, "OnLeaseRenewalFailed")
	return nil
}

func (e *recorder) OnOrphansRecovered(_ context.Context, _ string, _ int) error {
	e.calls = append(e.calls, "OnOrphansRecovered")
	return nil
}

func (e *recorder) OnJobsPushedBack(_ context.Context, _ int) error {
	e.calls = append(e.calls, "OnJobsPushedBack")
	return nil
}

func (e *recorder) OnPushRecovered(_ context.Context, _ int) error {
	e.calls = append(e.calls, "OnPushRecovered")
	return nil
}

func (e *recorder) OnJobCompleted(_ context.Context, _ *job.Job, _ time.Duration) error {
	e.calls = append(e.calls, "OnJobCompleted")
	return nil
}

func (e *recorder) OnJobFailed(_ context.Context, _ *job.Job, _ error) error {
	e.calls = append(e.calls, "OnJobFailed")
	return nil
}

func (e *recorder) OnShutdown(_ context.Context) error {
	e.calls = append(e.calls, "OnShutdown")
	return nil
}

// leaderOnly opts in to leadership hooks only.
type leaderOnly struct {
	gained int
}

func (e *leaderOnly) Name() string { return "leader-only" }

func (e *leaderOnly) OnLeadershipGained(_ context.Context, _ string) error {
	e.gained++
	return nil
}

type failing struct{}

func (failing) Name() string { return "failing" }

func (failing) OnJobsPushedBack(_ context.Context, _ int) error { return errors.New("boom") }

func TestRegistry_AllHooksFire(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	rec := &recorder{}
	r.Register(rec)

	ctx := context.Background()
	j := &job.Job{Class: "x", Queue: "default"}
	r.EmitLeadershipGained(ctx, "a")
	r.EmitLeadershipLost(ctx, "a", "stepped down")
	r.EmitLeaseRenewalFailed(ctx, "a", errors.New("down"))
	r.EmitOrphansRecovered(ctx, "proc_x", 3)
	r.EmitJobsPushedBack(ctx, 2)
	r.EmitPushRecovered(ctx, 1)
	r.EmitJobCompleted(ctx, j, time.Second)
	r.EmitJobFailed(ctx, j, errors.New("fail"))
	r.EmitShutdown(ctx)

	expected := []string{
		"OnLeadershipGained", "OnLeadershipLost", "OnLeaseRenewalFailed",
		"OnOrphansRecovered", "OnJobsPushedBack", "OnPushRecovered",
		"OnJobCompleted", "OnJobFailed", "OnShutdown",
	}
	if len(rec.calls) != len(expected) {
		t.Fatalf("expected %d calls, got %v", len(expected), rec.calls)
	}
	for i, want := range expected {
		if rec.calls[i] != want {
			t.Errorf("call[%d] = %q, want %q", i, rec.calls[i], want)
		}
	}
}

func TestRegistry_EmitFiresOnlyImplementors(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	rec := &recorder{}
	lo := &leaderOnly{}
	r.Register(rec)
	r.Register(lo)

	ctx := context.Background()
	r.EmitLeadershipGained(ctx, "a")
	r.EmitJobsPushedBack(ctx, 1)

	if lo.gained != 1 {
		t.Errorf("leader-only gained = %d, want 1", lo.gained)
	}
	if len(rec.calls) != 2 {
		t.Errorf("recorder calls = %v", rec.calls)
	}
	if got := len(r.Extensions()); got != 2 {
		t.Errorf("Extensions() = %d, want 2", got)
	}
}

func TestRegistry_HookErrorsDoNotPropagate(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	rec := &recorder{}
	r.Register(failing{})
	r.Register(rec)

	r.EmitJobsPushedBack(context.Background(), 5)
	if len(rec.calls) != 1 {
		t.Fatalf("later extension not notified: %v", rec.calls)
	}
}

func TestRegistry_NilIsNoop(t *testing.T) {
	var r *ext.Registry
	ctx := context.Background()
	r.EmitLeadershipGained(ctx, "a")
	r.EmitOrphansRecovered(ctx, "p", 1)
	r.EmitShutdown(ctx)
	if r.Extensions() != nil {
		t.Error("nil registry returned extensions")
	}
}
