package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"asq-order-service/internal/app"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel carries emits between service instances.
const DefaultChannel = "order:events"

type busMessage struct {
	Session string          `json:"session,omitempty"`
	Role    string          `json:"role,omitempty"`
	Socket  string          `json:"socket,omitempty"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// EventBus implements app.Emitter by publishing every emit to a Redis channel.
// Each instance runs Relay to deliver published emits to its own sockets, so a
// presenter connected to instance A sees progress from a submission handled by B.
type EventBus struct {
	client  *redis.Client
	channel string
}

func NewEventBus(client *redis.Client, channel string) *EventBus {
	if channel == "" {
		channel = DefaultChannel
	}
	return &EventBus{client: client, channel: channel}
}

func (b *EventBus) EmitToRole(sessionID, role, event string, payload any) error {
	return b.publish(busMessage{Session: sessionID, Role: role, Event: event}, payload)
}

func (b *EventBus) EmitToSocket(socketID, event string, payload any) error {
	return b.publish(busMessage{Socket: socketID, Event: event}, payload)
}

func (b *EventBus) publish(msg busMessage, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", msg.Event, err)
	}
	msg.Payload = raw
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Event, err)
	}
	return b.client.Publish(context.Background(), b.channel, data).Err()
}

// Relay subscribes to the channel and forwards every emit to local until ctx is done.
// ready, when non-nil, is closed once the subscription is active.
func (b *EventBus) Relay(ctx context.Context, local app.Emitter, ready chan<- struct{}) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	if ready != nil {
		close(ready)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg busMessage
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				slog.Warn("dropping malformed bus message", "err", err)
				continue
			}
			var err error
			if msg.Socket != "" {
				err = local.EmitToSocket(msg.Socket, msg.Event, msg.Payload)
			} else {
				err = local.EmitToRole(msg.Session, msg.Role, msg.Event, msg.Payload)
			}
			if err != nil {
				slog.Debug("relay emit failed", "event", msg.Event, "err", err)
			}
		}
	}
}
