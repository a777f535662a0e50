package mongo

import (
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petrijr/sagaflow"
	"github.com/petrijr/sagaflow/pkg/worker"

	mqueue "github.com/petrijr/sagaflow/mongo/internal/taskqueue"
)

// NewMongoQueue returns a task queue stored in dbName.collName
// (defaults "sagaflow" and "run_tasks").
func NewMongoQueue(client *mongo.Client, dbName, collName string) sagaflow.Queue {
	return mqueue.NewMongoQueue(client, dbName, collName)
}

// NewMongoBundle returns an Engine, queue and Worker backed by client.
func NewMongoBundle(client *mongo.Client, cfg worker.Config) *sagaflow.WorkerBundle {
	eng := NewMongoEngineWithConfig(client, sagaflow.EngineConfig{Logger: cfg.Logger})
	return sagaflow.NewWorkerBundle(eng, NewMongoQueue(client, "", ""), cfg)
}
