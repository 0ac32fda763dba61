// Package fetch implements reliable fetch: moving a job out of its public
// queue into an in-flight location in the same atomic step, so a worker
// that dies mid-job leaves the job recoverable instead of lost.
//
// Two strategies share the [Strategy] contract:
//
//   - [Private] moves each job into a list owned by this process. In
//     [ModeStable] the owner is hostname+index and recovery happens when
//     the same identity restarts. In [ModeHeartbeat] the owner is a random
//     identity kept alive by a heartbeat key, and any process reclaims the
//     lists of identities whose key expired.
//   - [Deadline] moves each job into one shared sorted set scored by
//     now+timeout. A periodic sweep pushes overdue entries back to their
//     queue. It needs no process identity at all.
//
// Both give at-least-once delivery: a job is acknowledged exactly once or
// stays in exactly one of its public queue or in-flight location. A job
// recovered while a slow worker is still running it can run twice.
//
// Worker goroutines should fetch through a [Retriever], which keeps only
// one fetch in flight per process.
package fetch
