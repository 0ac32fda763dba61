// Package queue decides which queues a process probes on each fetch cycle.
//
// A [Selector] is configured with an ordered list of queue names. In
// strict mode the order is a priority: earlier queues always win. When a
// name is repeated the list is a weighting instead; every cycle the list
// is shuffled and de-duplicated, so a queue listed three times is tried
// first about three times as often as one listed once.
//
// Paused queues are left out. Pause state arrives asynchronously from the
// pub/sub listener and is applied at the next call to [Selector.Next],
// never to a cycle already in progress.
package queue
