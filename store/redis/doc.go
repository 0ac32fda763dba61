// Package redis implements every warden store contract on a single Redis
// deployment: the leader lease, the process registry, private-queue and
// deadline fetch, the pause set with its broadcast, and job push.
//
// Multi-key updates run as MULTI transactions or as Lua scripts loaded
// through a [script.Runner], so no other client ever observes a job in two
// places at once.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis
