// Package redis wires sagaflow to Redis: a RunStore, a task queue and the
// engine constructors that use them.
package redis

import (
	"github.com/redis/go-redis/v9"

	"github.com/petrijr/sagaflow"

	rstore "github.com/petrijr/sagaflow/redis/internal/persistence"
)

// NewRedisStore returns a RunStore keeping runs under prefix
// (default "sagaflow:").
func NewRedisStore(client redis.UniversalClient, prefix string) sagaflow.RunStore {
	return rstore.NewRedisRunStore(client, prefix)
}

// NewRedisEngine returns an Engine that persists runs in Redis.
func NewRedisEngine(client redis.UniversalClient) sagaflow.Engine {
	return NewRedisEngineWithConfig(client, sagaflow.EngineConfig{})
}

// NewRedisEngineWithConfig returns a Redis-backed Engine. cfg.Store is
// replaced by the Redis store; the other fields are used as given.
func NewRedisEngineWithConfig(client redis.UniversalClient, cfg sagaflow.EngineConfig) sagaflow.Engine {
	cfg.Store = rstore.NewRedisRunStore(client, "")
	return sagaflow.NewEngine(cfg)
}
