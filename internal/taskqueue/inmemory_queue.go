package taskqueue

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryQueue is a Queue kept in process memory. Tasks are handed out in
// NotBefore order, FIFO among equally eligible tasks. It is safe for
// concurrent use.
type InMemoryQueue struct {
	mu       sync.Mutex
	tasks    []queuedTask
	seq      uint64
	capacity int
	notify   chan struct{}
}

type queuedTask struct {
	seq  uint64
	task Task
}

// NewInMemoryQueue creates a new queue with the given capacity.
// For tests and small deployments, a modest capacity (e.g. 1024) is fine.
func NewInMemoryQueue(capacity int) *InMemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &InMemoryQueue{
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// Ensure InMemoryQueue implements Queue.
var _ Queue = (*InMemoryQueue)(nil)

func (q *InMemoryQueue) Enqueue(ctx context.Context, t Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := time.Now()
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = now
	}
	if t.NotBefore.IsZero() {
		t.NotBefore = t.EnqueuedAt
	}

	q.mu.Lock()
	if len(q.tasks) >= q.capacity {
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.seq++
	q.tasks = append(q.tasks, queuedTask{seq: q.seq, task: t})
	sort.SliceStable(q.tasks, func(i, j int) bool {
		a, b := q.tasks[i], q.tasks[j]
		if !a.task.NotBefore.Equal(b.task.NotBefore) {
			return a.task.NotBefore.Before(b.task.NotBefore)
		}
		return a.seq < b.seq
	})
	q.mu.Unlock()

	q.wake()
	return nil
}

func (q *InMemoryQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		q.mu.Lock()
		wait := time.Duration(-1)
		if len(q.tasks) > 0 {
			head := q.tasks[0]
			if d := time.Until(head.task.NotBefore); d > 0 {
				wait = d
			} else {
				q.tasks = q.tasks[1:]
				more := len(q.tasks) > 0
				q.mu.Unlock()
				if more {
					q.wake()
				}
				t := head.task
				return &t, nil
			}
		}
		q.mu.Unlock()

		var (
			tm    *time.Timer
			timer <-chan time.Time
		)
		if wait >= 0 {
			tm = time.NewTimer(wait)
			timer = tm.C
		}

		select {
		case <-ctx.Done():
			if tm != nil {
				tm.Stop()
			}
			return nil, ctx.Err()
		case <-q.notify:
		case <-timer:
		}
		if tm != nil {
			tm.Stop()
		}
	}
}

// wake lets one blocked Dequeue re-check the queue.
func (q *InMemoryQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *InMemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
