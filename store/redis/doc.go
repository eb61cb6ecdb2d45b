// Package redis implements job.Store on Redis with go-redis.
//
// Each job is a Hash. Claimable jobs (waiting and failed-retryable) sit in
// a ready Sorted Set scored by AvailableAt in milliseconds, with members
// "<zero-padded seq>:<id>" so equal scores fall back to enqueue order.
// Active jobs sit in an active Sorted Set scored by lease expiry, dead jobs
// in a dead Sorted Set scored by the time they died. Every transition runs
// as one Lua script, which makes claim, ack, nack and requeue atomic.
//
// All keys share the {intake} hash tag so the scripts also work on Redis
// Cluster.
//
// Durability: a job survives a Redis restart only if the server persists
// writes, so run Redis with appendonly yes (appendfsync everysec or
// always).
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redis.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis
