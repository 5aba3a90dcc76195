package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// statusMessage is the wire format of a status change on the redis channel.
type statusMessage struct {
	Origin    string    `json:"origin"`
	UserID    string    `json:"user_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// RedisFanout mirrors local status changes to a redis channel and reports
// changes made by other replicas.
type RedisFanout struct {
	client  *redis.Client
	channel string
	origin  string
	logger  *zap.Logger
}

// NewRedisFanout builds a fan-out over the channel. Each instance gets its own
// origin id so it can ignore its own messages.
func NewRedisFanout(client *redis.Client, channel string, logger *zap.Logger) *RedisFanout {
	return &RedisFanout{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		logger:  logger,
	}
}

// Attach publishes every local status_changed event to redis.
func (f *RedisFanout) Attach(dispatcher Dispatcher) {
	dispatcher.Subscribe(EventStatusChanged, f.publish)
}

func (f *RedisFanout) publish(ctx context.Context, event Event) error {
	msg := statusMessage{
		Origin:    f.origin,
		UserID:    event.UserID,
		Timestamp: event.Timestamp,
	}
	if p, ok := event.Payload.(StatusChangedPayload); ok {
		msg.Status = string(p.NewStatus)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := f.client.Publish(ctx, f.channel, data).Err(); err != nil {
		f.logger.Warn("redis publish failed", zap.String("channel", f.channel), zap.Error(err))
		return err
	}
	return nil
}

// Listen blocks until ctx is done, calling onRemote for every status change
// published by another replica.
func (f *RedisFanout) Listen(ctx context.Context, onRemote func(userID string)) {
	sub := f.client.Subscribe(ctx, f.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			var msg statusMessage
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				f.logger.Warn("malformed status message", zap.String("payload", m.Payload), zap.Error(err))
				continue
			}
			if msg.Origin == f.origin {
				continue
			}
			onRemote(msg.UserID)
		}
	}
}
