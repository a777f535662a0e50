package persistence

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	corep "github.com/petrijr/sagaflow/internal/persistence"
	"github.com/petrijr/sagaflow/pkg/api"
)

// MongoRunStore is a RunStore backed by a MongoDB collection. Each run is
// one document holding the gob snapshot next to the fields ListRuns
// filters on.
type MongoRunStore struct {
	coll *mongo.Collection
}

var _ corep.RunStore = (*MongoRunStore)(nil)

// NewMongoRunStore creates a Mongo-backed run store.
// dbName defaults to "sagaflow" if empty, collName defaults to "runs".
func NewMongoRunStore(client *mongo.Client, dbName, collName string) *MongoRunStore {
	if dbName == "" {
		dbName = "sagaflow"
	}
	if collName == "" {
		collName = "runs"
	}

	return &MongoRunStore{
		coll: client.Database(dbName).Collection(collName),
	}
}

// EnsureIndexes creates the secondary indexes used by ListRuns.
func (s *MongoRunStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "workflow_id", Value: 1}, {Key: "started_at", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "started_at", Value: 1}}},
	})
	return err
}

type mongoRunDoc struct {
	ID         string    `bson:"_id"`
	WorkflowID string    `bson:"workflow_id"`
	Status     string    `bson:"status"`
	Error      string    `bson:"error,omitempty"`
	StartedAt  time.Time `bson:"started_at"`
	EndedAt    time.Time `bson:"ended_at,omitempty"`
	Snapshot   []byte    `bson:"snapshot"`
}

func newRunDoc(run *api.WorkflowRun) (*mongoRunDoc, error) {
	data, err := corep.EncodeRun(run)
	if err != nil {
		return nil, err
	}
	doc := &mongoRunDoc{
		ID:         run.ID,
		WorkflowID: run.WorkflowID,
		Status:     string(run.Status),
		StartedAt:  run.StartedAt,
		EndedAt:    run.EndedAt,
		Snapshot:   data,
	}
	if run.Err != nil {
		doc.Error = run.Err.Error()
	}
	return doc, nil
}

func (s *MongoRunStore) SaveRun(ctx context.Context, run *api.WorkflowRun) error {
	doc, err := newRunDoc(run)
	if err != nil {
		return err
	}
	_, err = s.coll.InsertOne(ctx, doc)
	return err
}

func (s *MongoRunStore) UpdateRun(ctx context.Context, run *api.WorkflowRun) error {
	doc, err := newRunDoc(run)
	if err != nil {
		return err
	}

	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": run.ID}, doc)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return corep.ErrRunNotFound
	}
	return nil
}

func (s *MongoRunStore) GetRun(ctx context.Context, id string) (*api.WorkflowRun, error) {
	var doc mongoRunDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, corep.ErrRunNotFound
		}
		return nil, err
	}
	return corep.DecodeRun(doc.Snapshot)
}

func (s *MongoRunStore) ListRuns(ctx context.Context, filter corep.RunFilter) ([]*api.WorkflowRun, error) {
	bfilter := bson.M{}
	if filter.WorkflowID != "" {
		bfilter["workflow_id"] = filter.WorkflowID
	}
	if filter.Status != "" {
		bfilter["status"] = string(filter.Status)
	}

	cur, err := s.coll.Find(ctx, bfilter, options.Find().SetSort(bson.D{{Key: "started_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var runs []*api.WorkflowRun
	for cur.Next(ctx) {
		var doc mongoRunDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		run, err := corep.DecodeRun(doc.Snapshot)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := cur.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}
