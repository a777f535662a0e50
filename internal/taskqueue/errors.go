package taskqueue

import "errors"

// ErrQueueFull is returned by bounded queues that cannot accept more tasks.
var ErrQueueFull = errors.New("task queue is full")
