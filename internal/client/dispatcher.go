package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/toora-ai/be-approvals/internal/queue"
)

// Dispatcher hands approved actions to the integrations service.
//
// Subject: actions.execute.<action_type>
//
// Dispatch failures are surfaced to the worker so the run can be marked
// failed — unlike notifications, an approved action that never executes is
// not an acceptable silent outcome.
type Dispatcher struct {
	nats *Nats
	log  zerolog.Logger
}

// DispatchedAction is the JSON schema published to NATS.
type DispatchedAction struct {
	RunID       int64          `json:"run_id"`
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Payload     map[string]any `json:"payload,omitempty"`
	ApprovedAt  time.Time      `json:"approved_at"`
}

// NewDispatcher creates a dispatcher backed by the given NATS connection.
func NewDispatcher(nats *Nats, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{nats: nats, log: log}
}

// Dispatch publishes one approved action for execution.
func (d *Dispatcher) Dispatch(ctx context.Context, runID int64, action queue.Action) error {
	if d.nats == nil {
		return fmt.Errorf("action dispatch: no NATS transport configured")
	}

	dispatched := &DispatchedAction{
		RunID:       runID,
		Type:        action.Type,
		Description: action.Description,
		Payload:     action.Payload,
		ApprovedAt:  time.Now().UTC(),
	}

	data, err := json.Marshal(dispatched)
	if err != nil {
		return fmt.Errorf("action dispatch: marshal: %w", err)
	}

	subject := fmt.Sprintf("actions.execute.%s", action.Type)
	if err := d.nats.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("action dispatch: publish to %s: %w", subject, err)
	}

	d.log.Info().
		Str("subject", subject).
		Int64("run_id", runID).
		Msg("dispatcher: approved action published")
	return nil
}
