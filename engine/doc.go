// Package engine wires the warden components of one process together and
// provides the application-level API for registering handlers and pushing
// jobs.
//
// Every component is an explicit instance owned by the Engine: one script
// runner (inside the store), one leader elector, one heartbeat, one pause
// listener, one queue selector, one fetch strategy behind a single-flight
// retriever, and one worker pool.
//
// # Building an Engine
//
//	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
//	st := redisstore.New(client, redisstore.WithLogger(logger))
//
//	eng, err := engine.New(st, cfg,
//	    engine.WithLogger(logger),
//	    engine.WithExtension(myExtension),
//	    engine.WithMiddleware(middleware.Logging(logger)),
//	    engine.OnLeader(func(ctx context.Context) { ... }),
//	)
//
// # Registering and Pushing Work
//
//	engine.Register(eng, SendEmail)
//	engine.Enqueue(ctx, eng, SendEmail, EmailInput{To: "user@example.com"})
//
// # Lifecycle
//
// Start brings components up in dependency order: pause listener,
// heartbeat, fetch strategy startup (crash recovery), leader election,
// then the retriever and pool. Stop reverses it: the pool stops fetching,
// in-flight work is requeued while the elector steps down, and the
// remaining loops are stopped. Shutdown errors are logged, never returned.
//
// # Options
//
//   - [WithLogger]: structured logger for every component
//   - [WithExtension]: register a lifecycle extension
//   - [WithMiddleware]: add a middleware to the execution chain
//   - [WithLeaseStore]: elect leaders through another LeaseStore (e.g. cluster/k8s)
//   - [OnLeader]: run a callback at the start of each leadership tenure
//   - [WithClock]: fake clocks for tests
//   - [WithTracerProvider], [WithMeterProvider]: custom OTel providers
package engine
