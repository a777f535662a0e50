package persistence

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/redis/go-redis/v9"

	corep "github.com/petrijr/sagaflow/internal/persistence"
	"github.com/petrijr/sagaflow/pkg/api"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "sagaflow:"

// RedisRunStore is a RunStore backed by Redis.
// It uses a simple key structure:
//
//	<prefix>run:<id>                => gob-encoded persistence.Snapshot
//	<prefix>idx:all                 => SET of all run IDs
//	<prefix>idx:wf:<workflow>       => SET of run IDs for a given workflow
//	<prefix>idx:status:<status>     => SET of run IDs for a given status
//
// A status change moves the ID between status sets in the same
// transaction that rewrites the snapshot.
type RedisRunStore struct {
	client redis.UniversalClient
	prefix string
}

var _ corep.RunStore = (*RedisRunStore)(nil)

var allStatuses = []api.Status{
	api.StatusRunning,
	api.StatusSucceeded,
	api.StatusCompensating,
	api.StatusCompensated,
	api.StatusCompensationFailed,
}

// NewRedisRunStore creates a RedisRunStore.
// prefix is optional and defaults to DefaultPrefix.
func NewRedisRunStore(client redis.UniversalClient, prefix string) *RedisRunStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisRunStore{
		client: client,
		prefix: prefix,
	}
}

func (r *RedisRunStore) keyRun(id string) string {
	return r.prefix + "run:" + id
}

func (r *RedisRunStore) keyAll() string {
	return r.prefix + "idx:all"
}

func (r *RedisRunStore) keyWorkflow(workflowID string) string {
	return r.prefix + "idx:wf:" + workflowID
}

func (r *RedisRunStore) keyStatus(status api.Status) string {
	return r.prefix + "idx:status:" + string(status)
}

func (r *RedisRunStore) SaveRun(ctx context.Context, run *api.WorkflowRun) error {
	data, err := corep.EncodeRun(run)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.keyRun(run.ID), data, 0)
	r.index(ctx, pipe, run)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

func (r *RedisRunStore) UpdateRun(ctx context.Context, run *api.WorkflowRun) error {
	data, err := corep.EncodeRun(run)
	if err != nil {
		return err
	}

	ok, err := r.client.SetXX(ctx, r.keyRun(run.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("update run %s: %w", run.ID, err)
	}
	if !ok {
		return corep.ErrRunNotFound
	}

	pipe := r.client.TxPipeline()
	r.index(ctx, pipe, run)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("index run %s: %w", run.ID, err)
	}
	return nil
}

// index queues the set updates that make run discoverable by ListRuns.
func (r *RedisRunStore) index(ctx context.Context, pipe redis.Pipeliner, run *api.WorkflowRun) {
	pipe.SAdd(ctx, r.keyAll(), run.ID)
	pipe.SAdd(ctx, r.keyWorkflow(run.WorkflowID), run.ID)
	for _, st := range allStatuses {
		if st != run.Status {
			pipe.SRem(ctx, r.keyStatus(st), run.ID)
		}
	}
	pipe.SAdd(ctx, r.keyStatus(run.Status), run.ID)
}

func (r *RedisRunStore) GetRun(ctx context.Context, id string) (*api.WorkflowRun, error) {
	data, err := r.client.Get(ctx, r.keyRun(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, corep.ErrRunNotFound
		}
		return nil, err
	}
	return corep.DecodeRun(data)
}

func (r *RedisRunStore) ListRuns(ctx context.Context, filter corep.RunFilter) ([]*api.WorkflowRun, error) {
	var ids []string
	var err error

	switch {
	case filter.WorkflowID != "" && filter.Status != "":
		ids, err = r.client.SInter(ctx,
			r.keyWorkflow(filter.WorkflowID),
			r.keyStatus(filter.Status),
		).Result()
	case filter.WorkflowID != "":
		ids, err = r.client.SMembers(ctx, r.keyWorkflow(filter.WorkflowID)).Result()
	case filter.Status != "":
		ids, err = r.client.SMembers(ctx, r.keyStatus(filter.Status)).Result()
	default:
		ids, err = r.client.SMembers(ctx, r.keyAll()).Result()
	}

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, r.keyRun(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	runs := make([]*api.WorkflowRun, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		run, err := corep.DecodeRun(data)
		if err != nil {
			return nil, err
		}
		// The payload is authoritative if an index entry is stale.
		if filter.Matches(run) {
			runs = append(runs, run)
		}
	}

	slices.SortFunc(runs, func(a, b *api.WorkflowRun) int {
		return a.StartedAt.Compare(b.StartedAt)
	})
	return runs, nil
}
