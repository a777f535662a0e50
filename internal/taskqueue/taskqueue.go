package taskqueue

import (
	"context"
	"time"
)

// TaskType identifies what the worker should do.
type TaskType string

const (
	// TaskTypeStartRun starts a new run of a registered workflow.
	TaskTypeStartRun TaskType = "start-run"
)

// Task represents a unit of work for the worker.
type Task struct {
	ID   string
	Type TaskType

	// WorkflowID names the registered workflow to run.
	WorkflowID string

	// Payload is task-type specific. For start-run tasks it is the worker's
	// StartRunPayload.
	Payload any

	EnqueuedAt time.Time

	// NotBefore is the earliest time this task should be eligible
	// for processing. Zero value means "immediately".
	NotBefore time.Time

	// Attempts counts how many times the task has already been processed.
	Attempts int
}

// Queue is a simple async task queue interface.
type Queue interface {
	// Enqueue adds a task to the queue. It should respect ctx for cancellation.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue removes and returns the next eligible task, blocking until one
	// is available or the context is cancelled.
	Dequeue(ctx context.Context) (*Task, error)

	// Len returns the approximate number of tasks queued.
	Len() int
}
