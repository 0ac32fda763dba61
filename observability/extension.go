package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/warden/ext"
	"github.com/xraph/warden/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension          = (*MetricsExtension)(nil)
	_ ext.LeadershipGained   = (*MetricsExtension)(nil)
	_ ext.LeadershipLost     = (*MetricsExtension)(nil)
	_ ext.LeaseRenewalFailed = (*MetricsExtension)(nil)
	_ ext.OrphansRecovered   = (*MetricsExtension)(nil)
	_ ext.JobsPushedBack     = (*MetricsExtension)(nil)
	_ ext.PushRecovered      = (*MetricsExtension)(nil)
	_ ext.JobCompleted       = (*MetricsExtension)(nil)
	_ ext.JobFailed          = (*MetricsExtension)(nil)
	_ ext.Shutdown           = (*MetricsExtension)(nil)
)

const meterName = "github.com/xraph/warden/observability"

// MetricsExtension records lifecycle counters through an OTel meter.
// Register it as a warden extension.
type MetricsExtension struct {
	LeadershipGained metric.Int64Counter
	LeadershipLost   metric.Int64Counter
	RenewalFailed    metric.Int64Counter
	OrphansRecovered metric.Int64Counter
	JobsPushedBack   metric.Int64Counter
	PushRecovered    metric.Int64Counter
	JobCompleted     metric.Int64Counter
	JobFailed        metric.Int64Counter
	Shutdowns        metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension on the global MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the provided meter.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	return &MetricsExtension{
		LeadershipGained: counter(meter, "warden.leader.gained", "Times this process became leader", "{event}"),
		LeadershipLost:   counter(meter, "warden.leader.lost", "Times this process stopped being leader", "{event}"),
		RenewalFailed:    counter(meter, "warden.leader.renewal_failed", "Lease renewals that hit a store error", "{event}"),
		OrphansRecovered: counter(meter, "warden.orphans.recovered", "Jobs returned from dead processes", "{job}"),
		JobsPushedBack:   counter(meter, "warden.jobs.pushed_back", "Overdue in-flight jobs requeued", "{job}"),
		PushRecovered:    counter(meter, "warden.push.recovered", "Buffered pushes that reached the store", "{job}"),
		JobCompleted:     counter(meter, "warden.job.completed", "Jobs acknowledged after success", "{job}"),
		JobFailed:        counter(meter, "warden.job.failed", "Jobs requeued after an error", "{job}"),
		Shutdowns:        counter(meter, "warden.shutdown", "Graceful shutdowns", "{event}"),
	}
}

// counter falls back to the noop instrument the API returns on error.
func counter(meter metric.Meter, name, desc, unit string) metric.Int64Counter {
	c, _ := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit)) //nolint:errcheck // noop fallback
	return c
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Coordination hooks ──────────────────────────────

// OnLeadershipGained implements ext.LeadershipGained.
func (m *MetricsExtension) OnLeadershipGained(ctx context.Context, _ string) error {
	m.LeadershipGained.Add(ctx, 1)
	return nil
}

// OnLeadershipLost implements ext.LeadershipLost.
func (m *MetricsExtension) OnLeadershipLost(ctx context.Context, _, reason string) error {
	m.LeadershipLost.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	return nil
}

// OnLeaseRenewalFailed implements ext.LeaseRenewalFailed.
func (m *MetricsExtension) OnLeaseRenewalFailed(ctx context.Context, _ string, _ error) error {
	m.RenewalFailed.Add(ctx, 1)
	return nil
}

// OnOrphansRecovered implements ext.OrphansRecovered.
func (m *MetricsExtension) OnOrphansRecovered(ctx context.Context, _ string, jobs int) error {
	m.OrphansRecovered.Add(ctx, int64(jobs))
	return nil
}

// OnJobsPushedBack implements ext.JobsPushedBack.
func (m *MetricsExtension) OnJobsPushedBack(ctx context.Context, jobs int) error {
	m.JobsPushedBack.Add(ctx, int64(jobs))
	return nil
}

// OnPushRecovered implements ext.PushRecovered.
func (m *MetricsExtension) OnPushRecovered(ctx context.Context, jobs int) error {
	m.PushRecovered.Add(ctx, int64(jobs))
	return nil
}

// ── Job hooks ───────────────────────────────────────

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, j *job.Job, _ time.Duration) error {
	m.JobCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("queue", j.Queue)))
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, j *job.Job, _ error) error {
	m.JobFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("queue", j.Queue)))
	return nil
}

// OnShutdown implements ext.Shutdown.
func (m *MetricsExtension) OnShutdown(ctx context.Context) error {
	m.Shutdowns.Add(ctx, 1)
	return nil
}
