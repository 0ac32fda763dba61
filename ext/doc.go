// Package ext defines the extension system for warden.
//
// Extensions observe coordination events and can react to them, for
// example by recording metrics. Each hook is a separate interface so
// extensions opt in only to the events they care about. A process with no
// extensions behaves exactly like one with many.
//
//	type Pager struct{}
//
//	func (Pager) Name() string { return "pager" }
//
//	func (Pager) OnLeaseRenewalFailed(ctx context.Context, holder string, err error) error {
//	    return page("lease renewal failing: " + err.Error())
//	}
//
// # Coordination hooks
//
//   - [LeadershipGained] and [LeadershipLost] for lease transitions
//   - [LeaseRenewalFailed] when the store could not be reached to renew
//   - [OrphansRecovered] after a dead process's private lists were drained
//   - [JobsPushedBack] after overdue pending entries were requeued
//   - [PushRecovered] after a locally buffered push backlog was flushed
//
// # Job hooks
//
//   - [JobCompleted] and [JobFailed] around handler execution
//
// [Shutdown] fires once when the engine stops.
package ext
