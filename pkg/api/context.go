package api

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ExecutionContext carries the resolved collaborators of a run. It is built
// by the engine for every run and passed by reference into every invoke and
// compensate call. Domain services are not looked up here: steps receive
// them explicitly when they are constructed.
type ExecutionContext struct {
	RunID      string
	WorkflowID string

	// Logger is tagged with the workflow and run IDs.
	Logger *zap.Logger

	// Query is the read collaborator. Never nil; defaults to a Query that
	// fails every request.
	Query Query

	// Events is the event-emission sink. Never nil; defaults to NoopEventSink.
	Events EventSink
}

// QueryRequest describes a read through the Query collaborator.
type QueryRequest struct {
	// EntryPoint is the entity to read, e.g. "order".
	EntryPoint string

	// Fields lists the (dotted) fields to select, e.g. "items.quantity".
	Fields []string

	// Variables filter the entity, e.g. {"id": "order_123"}.
	Variables map[string]any

	// ThrowIfKeyNotFound makes the query fail when a filtered key matches
	// nothing.
	ThrowIfKeyNotFound bool

	// List returns all matches as a slice instead of the first match.
	List bool
}

// Query is the injected read interface returning DTOs. The engine treats
// its result as an opaque value.
type Query interface {
	Graph(ctx context.Context, req QueryRequest) (any, error)
}

// QueryFunc adapts a function to the Query interface.
type QueryFunc func(ctx context.Context, req QueryRequest) (any, error)

func (f QueryFunc) Graph(ctx context.Context, req QueryRequest) (any, error) {
	return f(ctx, req)
}

// EventMessage is a notification handed to an EventSink.
type EventMessage struct {
	ID       string
	Name     string
	Data     any
	Metadata map[string]string
	At       time.Time
}

// EventSink is the injected publish interface. From the engine's point of
// view publishing is fire-and-forget: a nil error means the message was
// handed over.
type EventSink interface {
	Publish(ctx context.Context, msg EventMessage) error
}

// NoopEventSink discards all messages.
type NoopEventSink struct{}

func (NoopEventSink) Publish(ctx context.Context, msg EventMessage) error { return nil }
