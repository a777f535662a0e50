// Package redis publishes workflow events to Redis Streams.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/petrijr/sagaflow/pkg/api"
)

// DefaultPrefix is prepended to the event name to form the stream key.
const DefaultPrefix = "sagaflow:events:"

// Options configures a StreamsSink.
type Options struct {
	// Prefix of every stream key. Defaults to DefaultPrefix.
	Prefix string

	// MaxLen approximately caps each stream. Zero means unbounded.
	MaxLen int64

	Logger *zap.Logger
}

// StreamsSink implements api.EventSink with XADD. Each message is stored as
// a single "data" field holding the JSON-encoded api.EventMessage.
type StreamsSink struct {
	client redis.UniversalClient
	prefix string
	maxLen int64
	logger *zap.Logger
}

var _ api.EventSink = (*StreamsSink)(nil)

// NewStreamsSink creates a sink publishing through client.
func NewStreamsSink(client redis.UniversalClient, opts Options) *StreamsSink {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &StreamsSink{
		client: client,
		prefix: opts.Prefix,
		maxLen: opts.MaxLen,
		logger: opts.Logger.Named("eventbus.redis"),
	}
}

// StreamKey returns the stream a message named eventName is written to.
func (s *StreamsSink) StreamKey(eventName string) string {
	return s.prefix + eventName
}

// Publish appends msg to the stream of its name.
func (s *StreamsSink) Publish(ctx context.Context, msg api.EventMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal event %q: %w", msg.Name, err)
	}

	streamKey := s.StreamKey(msg.Name)
	args := &redis.XAddArgs{
		Stream: streamKey,
		Values: map[string]any{"data": string(data)},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	id, err := s.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", streamKey, err)
	}

	s.logger.Debug("event published",
		zap.String("event_id", msg.ID),
		zap.String("event", msg.Name),
		zap.String("stream", streamKey),
		zap.String("stream_id", id))
	return nil
}

// Handler processes a message read back from a stream.
type Handler func(ctx context.Context, msg api.EventMessage) error

// Consume reads eventName's stream as member consumer of group until ctx is
// done. Messages are acknowledged after handler returns nil; failed
// messages stay pending in the group. The group is created on first use.
func (s *StreamsSink) Consume(ctx context.Context, eventName, group, consumer string, handler Handler) error {
	streamKey := s.StreamKey(eventName)

	err := s.client.XGroupCreateMkStream(ctx, streamKey, group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s: %w", group, err)
	}

	s.logger.Info("consuming event stream",
		zap.String("stream", streamKey),
		zap.String("consumer_group", group),
		zap.String("consumer", consumer))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{streamKey, ">"},
			Count:    10,
			Block:    time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("read stream", zap.String("stream", streamKey), zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				s.process(ctx, streamKey, group, message, handler)
			}
		}
	}
}

func (s *StreamsSink) process(ctx context.Context, streamKey, group string, message redis.XMessage, handler Handler) {
	msg, err := decodeMessage(message)
	if err != nil {
		s.logger.Error("invalid stream message",
			zap.String("stream", streamKey),
			zap.String("message_id", message.ID),
			zap.Error(err))
		return
	}

	if err := handler(ctx, msg); err != nil {
		s.logger.Error("event handler failed",
			zap.String("stream", streamKey),
			zap.String("message_id", message.ID),
			zap.Error(err))
		return
	}

	if err := s.client.XAck(ctx, streamKey, group, message.ID).Err(); err != nil {
		s.logger.Error("ack stream message",
			zap.String("stream", streamKey),
			zap.String("message_id", message.ID),
			zap.Error(err))
	}
}

func decodeMessage(message redis.XMessage) (api.EventMessage, error) {
	var msg api.EventMessage
	data, ok := message.Values["data"].(string)
	if !ok {
		return msg, errors.New(`missing "data" field`)
	}
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		return msg, fmt.Errorf("unmarshal event: %w", err)
	}
	return msg, nil
}

// Read returns up to count messages of eventName's stream, oldest first,
// without consumer-group bookkeeping.
func (s *StreamsSink) Read(ctx context.Context, eventName string, count int64) ([]api.EventMessage, error) {
	entries, err := s.client.XRangeN(ctx, s.StreamKey(eventName), "-", "+", count).Result()
	if err != nil {
		return nil, fmt.Errorf("xrange %s: %w", s.StreamKey(eventName), err)
	}

	out := make([]api.EventMessage, 0, len(entries))
	for _, e := range entries {
		msg, err := decodeMessage(e)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}
