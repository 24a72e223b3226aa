package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// DefaultStream is the Redis stream change events are appended to.
const DefaultStream = "portal:changes"

// Change describes one successful scoped write.
type Change struct {
	TenantID string    `json:"tenant_id"`
	Entity   string    `json:"entity"`
	Op       string    `json:"op"`
	ID       string    `json:"id"`
	At       time.Time `json:"at"`
}

// Publisher fans out change events to other services.
type Publisher interface {
	Publish(ctx context.Context, c Change) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Change) error { return nil }

// StreamPublisher appends changes to a Redis stream with XADD.
type StreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
	logger *zap.Logger
}

func NewStreamPublisher(client *redis.Client, stream string, maxLen int64, logger *zap.Logger) *StreamPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamPublisher{client: client, stream: stream, maxLen: maxLen, logger: logger}
}

func (p *StreamPublisher) Publish(ctx context.Context, c Change) error {
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode change: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"tenant_id": c.TenantID,
			"entity":    c.Entity,
			"op":        c.Op,
			"data":      string(data),
			"timestamp": fmt.Sprintf("%d", c.At.Unix()),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		p.logger.Warn("failed to publish change",
			zap.String("stream", p.stream), zap.String("entity", c.Entity), zap.Error(err))
		return fmt.Errorf("failed to publish to stream %s: %w", p.stream, err)
	}
	p.logger.Debug("change published", zap.String("stream", p.stream), zap.String("message_id", id))
	return nil
}
