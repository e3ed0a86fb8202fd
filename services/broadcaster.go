package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	ChangesChannel = "pinmap:events"

	ChangeEventCreated    = "event_created"
	ChangeInterestChanged = "interest_changed"
)

// Change is broadcast to every instance when shared event data changes.
type Change struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id,omitempty"`
	Origin    string    `json:"origin,omitempty"`
}

// Broadcaster tells other clients that the shared event list changed.
type Broadcaster interface {
	Publish(ctx context.Context, changeType, eventID, userID, origin string) error
}

type RedisBroadcaster struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisBroadcaster(client *redis.Client, logger *zap.Logger) *RedisBroadcaster {
	return &RedisBroadcaster{client: client, logger: logger}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, changeType, eventID, userID, origin string) error {
	payload, err := json.Marshal(Change{
		ID:        uuid.New().String(),
		Type:      changeType,
		Timestamp: time.Now().UTC(),
		EventID:   eventID,
		UserID:    userID,
		Origin:    origin,
	})
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, ChangesChannel, payload).Err()
}

// Listen delivers changes to handle until ctx is cancelled.
func (b *RedisBroadcaster) Listen(ctx context.Context, handle func(Change)) error {
	pubsub := b.client.Subscribe(ctx, ChangesChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	b.logger.Info("Listening for event changes", zap.String("channel", ChangesChannel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var c Change
			if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
				b.logger.Warn("Dropping malformed change", zap.String("payload", msg.Payload), zap.Error(err))
				continue
			}
			handle(c)
		}
	}
}

type nopBroadcaster struct{}

func (nopBroadcaster) Publish(context.Context, string, string, string, string) error { return nil }
