// Package notify carries the transient pub/sub paths: per-approval decision
// wakeups and the status event stream mirrored to dashboard observers.
// Everything here is best-effort — the approval store stays the source of
// truth and the gate degrades to polling when this transport is down.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// decisionChannelPrefix namespaces one channel per approval id.
	decisionChannelPrefix = "toora:approvals:"
	// eventsChannel carries status events for the observer fan-out.
	eventsChannel = "toora:events"
)

// Decision is the wakeup payload published when an approval is resolved.
type Decision struct {
	ID       int64 `json:"id"`
	Approved bool  `json:"approved"`
}

// Event is the envelope broadcast to dashboard observers.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// DecisionChannel is the rendezvous transport between resolver and waiter.
type DecisionChannel interface {
	PublishDecision(ctx context.Context, id int64, approved bool) error
	SubscribeDecision(ctx context.Context, id int64) (DecisionSub, error)
}

// DecisionSub is a live subscription for one approval id. Closing it has no
// side effects on the store.
type DecisionSub interface {
	Decisions() <-chan Decision
	Close() error
}

// EventBus publishes status events toward the observer fan-out.
type EventBus interface {
	PublishEvent(ctx context.Context, event Event) error
}

// NewClient connects a Redis client and verifies it with a ping.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func decisionChannel(id int64) string {
	return fmt.Sprintf("%s%d", decisionChannelPrefix, id)
}
