package taskqueue

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	coreq "github.com/petrijr/sagaflow/internal/taskqueue"
)

// MongoQueue implements Queue on top of MongoDB.
//
// Collection schema:
//
//	{
//	  _id:        string,    // task ID
//	  payload:    []byte,    // gob-encoded Task
//	  not_before: time.Time,
//	  enqueued:   int64,     // unix nanos, FIFO tie-breaker
//	}
//
// Dequeue claims a task with FindOneAndDelete, so each task is handed to
// exactly one consumer.
type MongoQueue struct {
	coll         *mongo.Collection
	pollInterval time.Duration
}

// NewMongoQueue creates a Mongo-backed queue.
// dbName defaults to "sagaflow", collName to "run_tasks".
func NewMongoQueue(client *mongo.Client, dbName, collName string) *MongoQueue {
	if dbName == "" {
		dbName = "sagaflow"
	}
	if collName == "" {
		collName = "run_tasks"
	}
	return &MongoQueue{
		coll:         client.Database(dbName).Collection(collName),
		pollInterval: 100 * time.Millisecond,
	}
}

var _ coreq.Queue = (*MongoQueue)(nil)

type mongoTaskDoc struct {
	ID        string    `bson:"_id"`
	Payload   []byte    `bson:"payload"`
	NotBefore time.Time `bson:"not_before"`
	Enqueued  int64     `bson:"enqueued"`
}

// Enqueue inserts a document for the given Task.
func (q *MongoQueue) Enqueue(ctx context.Context, t coreq.Task) error {
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now().UTC()
	}
	data, err := coreq.EncodeTask(t)
	if err != nil {
		return err
	}

	nb := t.NotBefore
	if nb.IsZero() {
		nb = t.EnqueuedAt
	}
	_, err = q.coll.InsertOne(ctx, mongoTaskDoc{
		ID:        t.ID,
		Payload:   data,
		NotBefore: nb.UTC(),
		Enqueued:  t.EnqueuedAt.UnixNano(),
	})
	return err
}

// Dequeue blocks (via polling) until a task is available or ctx is cancelled.
func (q *MongoQueue) Dequeue(ctx context.Context) (*coreq.Task, error) {
	// Reusable timer for polling when no tasks are available.
	tmr := time.NewTimer(0)
	if !tmr.Stop() {
		<-tmr.C
	}
	defer tmr.Stop()

	opts := options.FindOneAndDelete().
		SetSort(bson.D{{Key: "not_before", Value: 1}, {Key: "enqueued", Value: 1}})

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var doc mongoTaskDoc
		err := q.coll.FindOneAndDelete(ctx,
			bson.M{"not_before": bson.M{"$lte": time.Now().UTC()}},
			opts,
		).Decode(&doc)
		if err == nil {
			return coreq.DecodeTask(doc.Payload)
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}

		tmr.Reset(q.pollInterval)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-tmr.C:
		}
	}
}

// Len returns an approximate number of queued tasks.
func (q *MongoQueue) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	n, err := q.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0
	}
	return int(n)
}
