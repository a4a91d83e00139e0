package notify

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisChannel implements DecisionChannel and EventBus on Redis pub/sub.
type RedisChannel struct {
	client *redis.Client
	log    zerolog.Logger
}

// NewRedisChannel wraps an existing Redis client.
func NewRedisChannel(client *redis.Client, log zerolog.Logger) *RedisChannel {
	return &RedisChannel{client: client, log: log}
}

// PublishDecision publishes a decision wakeup on the approval's channel.
// Zero subscribers is a normal outcome — the waiter may be polling, or gone.
func (c *RedisChannel) PublishDecision(ctx context.Context, id int64, approved bool) error {
	payload, err := json.Marshal(Decision{ID: id, Approved: approved})
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, decisionChannel(id), payload).Err()
}

// SubscribeDecision opens a subscription for one approval id. The SUBSCRIBE
// round-trip is forced here so a dead transport fails fast and the caller
// can fall back to polling.
func (c *RedisChannel) SubscribeDecision(ctx context.Context, id int64) (DecisionSub, error) {
	pubsub := c.client.Subscribe(ctx, decisionChannel(id))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	sub := &redisDecisionSub{
		pubsub: pubsub,
		out:    make(chan Decision, 1),
	}
	go sub.pump(c.log)
	return sub, nil
}

// PublishEvent publishes a status event for the observer fan-out relay.
func (c *RedisChannel) PublishEvent(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, eventsChannel, payload).Err()
}

// SubscribeEvents opens the status event stream. Used by the WebSocket hub
// relay; payloads are passed through verbatim.
func (c *RedisChannel) SubscribeEvents(ctx context.Context) (*EventSub, error) {
	pubsub := c.client.Subscribe(ctx, eventsChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	sub := &EventSub{
		pubsub: pubsub,
		out:    make(chan []byte, 16),
	}
	go sub.pump()
	return sub, nil
}

type redisDecisionSub struct {
	pubsub *redis.PubSub
	out    chan Decision
}

func (s *redisDecisionSub) Decisions() <-chan Decision {
	return s.out
}

func (s *redisDecisionSub) Close() error {
	return s.pubsub.Close()
}

// pump decodes messages until the subscription closes. The out channel is
// buffered for the single decision a waiter consumes; anything beyond that
// is a duplicate and dropping it is fine.
func (s *redisDecisionSub) pump(log zerolog.Logger) {
	defer close(s.out)
	for msg := range s.pubsub.Channel() {
		var decision Decision
		if err := json.Unmarshal([]byte(msg.Payload), &decision); err != nil {
			log.Warn().Err(err).Str("channel", msg.Channel).Msg("notify: malformed decision payload")
			continue
		}
		select {
		case s.out <- decision:
		default:
		}
	}
}

// EventSub is a live subscription to the status event stream.
type EventSub struct {
	pubsub *redis.PubSub
	out    chan []byte
}

// Messages yields raw event payloads. The channel closes when the
// subscription does.
func (s *EventSub) Messages() <-chan []byte {
	return s.out
}

// Close tears down the subscription.
func (s *EventSub) Close() error {
	return s.pubsub.Close()
}

func (s *EventSub) pump() {
	defer close(s.out)
	for msg := range s.pubsub.Channel() {
		select {
		case s.out <- []byte(msg.Payload):
		default:
			// observer relay is behind; fan-out is at-most-once anyway
		}
	}
}
