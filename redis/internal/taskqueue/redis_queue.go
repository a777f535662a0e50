package taskqueue

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	coreq "github.com/petrijr/sagaflow/internal/taskqueue"
)

// RedisQueue implements Queue with a Redis sorted set.
//
// Members are gob-encoded tasks scored by their eligibility time in
// microseconds, so tasks become visible in NotBefore order and immediate
// tasks come out in enqueue order. Dequeue claims a member with a Lua
// script that pops it only if it is due.
type RedisQueue struct {
	client       redis.UniversalClient
	key          string
	pollInterval time.Duration
}

var _ coreq.Queue = (*RedisQueue)(nil)

var claimScript = redis.NewScript(`
local items = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #items == 0 then
	return false
end
redis.call('ZREM', KEYS[1], items[1])
return items[1]
`)

// NewRedisQueue creates a queue stored under <prefix>queue.
func NewRedisQueue(client redis.UniversalClient, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "sagaflow:"
	}
	return &RedisQueue{
		client:       client,
		key:          prefix + "queue",
		pollInterval: 50 * time.Millisecond,
	}
}

// Enqueue adds t to the sorted set.
func (q *RedisQueue) Enqueue(ctx context.Context, t coreq.Task) error {
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now().UTC()
	}
	data, err := coreq.EncodeTask(t)
	if err != nil {
		return err
	}

	due := t.EnqueuedAt
	if t.NotBefore.After(due) {
		due = t.NotBefore
	}
	return q.client.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(due.UnixMicro()),
		Member: data,
	}).Err()
}

// Dequeue polls until a due task is claimed or ctx is cancelled.
func (q *RedisQueue) Dequeue(ctx context.Context) (*coreq.Task, error) {
	tmr := time.NewTimer(0)
	if !tmr.Stop() {
		<-tmr.C
	}
	defer tmr.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		now := strconv.FormatInt(time.Now().UnixMicro(), 10)
		data, err := claimScript.Run(ctx, q.client, []string{q.key}, now).Text()
		switch {
		case err == nil:
			return coreq.DecodeTask([]byte(data))
		case errors.Is(err, redis.Nil):
		default:
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

// Len returns the number of queued tasks, due or not. It returns 0 when
// Redis is unreachable.
func (q *RedisQueue) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	n, err := q.client.ZCard(ctx, q.key).Result()
	if err != nil {
		return 0
	}
	return int(n)
}
