package redis

import (
	"github.com/redis/go-redis/v9"

	"github.com/petrijr/sagaflow"
	"github.com/petrijr/sagaflow/pkg/worker"

	rqueue "github.com/petrijr/sagaflow/redis/internal/taskqueue"
)

// NewRedisQueue returns a task queue stored in a sorted set under prefix.
func NewRedisQueue(client redis.UniversalClient, prefix string) sagaflow.Queue {
	return rqueue.NewRedisQueue(client, prefix)
}

// NewRedisBundle returns an Engine, queue and Worker that all live in Redis.
func NewRedisBundle(client redis.UniversalClient, cfg worker.Config) *sagaflow.WorkerBundle {
	eng := NewRedisEngineWithConfig(client, sagaflow.EngineConfig{Logger: cfg.Logger})
	return sagaflow.NewWorkerBundle(eng, NewRedisQueue(client, ""), cfg)
}
