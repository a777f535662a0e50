// Package memory provides an in-process event bus implementing api.EventSink.
package memory

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/petrijr/sagaflow/pkg/api"
)

// Wildcard subscribes a handler to every event name.
const Wildcard = "*"

// Handler receives a published message.
type Handler func(ctx context.Context, msg api.EventMessage) error

type subscription struct {
	id      uint64
	handler Handler
}

// Bus delivers published messages synchronously to the handlers subscribed
// to the message name (and to Wildcard handlers). Handler errors are logged
// and never returned to the publisher. Every message is also kept in an
// in-memory history that tests can inspect.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]subscription
	nextID      uint64
	history     []api.EventMessage
	logger      *zap.Logger
}

var _ api.EventSink = (*Bus)(nil)

// New creates an empty bus. A nil logger disables logging.
func New(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		subscribers: make(map[string][]subscription),
		logger:      logger.Named("eventbus"),
	}
}

// Subscribe registers handler for eventName and returns a function that
// removes the subscription.
func (b *Bus) Subscribe(eventName string, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subscribers[eventName] = append(b.subscribers[eventName], subscription{id: id, handler: handler})

	return func() { b.unsubscribe(eventName, id) }
}

func (b *Bus) unsubscribe(eventName string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[eventName]
	for i, s := range subs {
		if s.id == id {
			b.subscribers[eventName] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subscribers[eventName]) == 0 {
		delete(b.subscribers, eventName)
	}
}

// Publish records msg and hands it to every matching handler.
func (b *Bus) Publish(ctx context.Context, msg api.EventMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	b.history = append(b.history, msg)
	handlers := make([]subscription, 0, len(b.subscribers[msg.Name])+len(b.subscribers[Wildcard]))
	handlers = append(handlers, b.subscribers[msg.Name]...)
	if msg.Name != Wildcard {
		handlers = append(handlers, b.subscribers[Wildcard]...)
	}
	b.mu.Unlock()

	b.logger.Debug("event published",
		zap.String("event_id", msg.ID),
		zap.String("event", msg.Name),
		zap.Int("subscribers", len(handlers)))

	for _, s := range handlers {
		if err := s.handler(ctx, msg); err != nil {
			b.logger.Error("event handler failed",
				zap.String("event_id", msg.ID),
				zap.String("event", msg.Name),
				zap.Error(err))
		}
	}
	return nil
}

// Published returns a copy of every message published so far, in order.
func (b *Bus) Published() []api.EventMessage {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]api.EventMessage, len(b.history))
	copy(out, b.history)
	return out
}

// PublishedNamed returns the published messages whose name is eventName.
func (b *Bus) PublishedNamed(eventName string) []api.EventMessage {
	var out []api.EventMessage
	for _, m := range b.Published() {
		if m.Name == eventName {
			out = append(out, m)
		}
	}
	return out
}

// Reset drops the history. Subscriptions are kept.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = nil
}
