// Package warden is the coordination core of a Redis-backed background job
// cluster. Many worker processes pull jobs from shared queues and warden
// makes sure every job is processed at least once, even when a worker dies
// halfway through one.
//
// It provides cluster-wide leader election ([cluster.Elector]) used to
// serialize singleton maintenance work, and a reliable fetch/acknowledge
// protocol ([fetch.Strategy]) with interchangeable recovery strategies:
// stable private queues, heartbeat-registered private queues and a shared
// deadline set. Both depend on the atomic Lua script runner
// ([script.Runner]).
//
// # Quick Start
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	store := redisstore.New(client)
//
//	eng, err := engine.New(store, warden.DefaultConfig())
//	eng.Register("send-email", sendEmail)
//	if err := eng.Start(ctx); err != nil { ... }
//	defer eng.Stop(shutdownCtx)
//
// Delivery is at-least-once: a job can run twice if recovery races with a
// slow acknowledgment, so job handlers must be idempotent. Leadership is
// lease based and best effort; singleton work must tolerate brief overlap.
package warden
