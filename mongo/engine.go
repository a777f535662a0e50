// Package mongo wires sagaflow to MongoDB.
package mongo

import (
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petrijr/sagaflow"

	mstore "github.com/petrijr/sagaflow/mongo/internal/persistence"
)

// NewMongoStore returns a RunStore using the "runs" collection of the
// "sagaflow" database.
func NewMongoStore(client *mongo.Client) sagaflow.RunStore {
	return mstore.NewMongoRunStore(client, "", "")
}

// NewMongoEngine returns an Engine that persists runs in MongoDB, using
// the default database/collection names from the store.
func NewMongoEngine(client *mongo.Client) sagaflow.Engine {
	return NewMongoEngineWithConfig(client, sagaflow.EngineConfig{})
}

// NewMongoEngineWithObserver is the Mongo-backed engine constructor that accepts an Observer.
func NewMongoEngineWithObserver(client *mongo.Client, obs sagaflow.Observer) sagaflow.Engine {
	return NewMongoEngineWithConfig(client, sagaflow.EngineConfig{Observer: obs})
}

// NewMongoEngineWithConfig returns a Mongo-backed Engine. cfg.Store is
// replaced by the Mongo store.
func NewMongoEngineWithConfig(client *mongo.Client, cfg sagaflow.EngineConfig) sagaflow.Engine {
	cfg.Store = NewMongoStore(client)
	return sagaflow.NewEngine(cfg)
}
