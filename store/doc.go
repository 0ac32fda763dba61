// Package store defines the aggregate persistence interface.
//
// Each subsystem defines its own store interface: [cluster.LeaseStore] and
// [cluster.Registry] for coordination, [fetch.ListStore] and
// [fetch.PendingStore] for reliable fetch, [push.Pusher] for enqueueing.
// The composite [Store] adds the pause admin surface. A single backend
// need only implement Store to satisfy every subsystem's contract.
//
// # Available Backends
//
//   - store/redis: Redis backend using go-redis/v9
//
// # Usage
//
//	import redisstore "github.com/xraph/warden/store/redis"
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//
//	eng, err := engine.New(s, warden.DefaultConfig())
package store
