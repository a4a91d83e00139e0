// Package worker consumes agent jobs from the queue and drives each proposed
// action through the approval gate, dispatching the approved ones for
// execution. The planning that produces the actions happens upstream.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/toora-ai/be-approvals/internal/gate"
	"github.com/toora-ai/be-approvals/internal/logger"
	"github.com/toora-ai/be-approvals/internal/notify"
	"github.com/toora-ai/be-approvals/internal/queue"
	"github.com/toora-ai/be-approvals/internal/repository"
)

// ApprovalGate is the blocking decision primitive the worker holds each
// consequential action against.
type ApprovalGate interface {
	RequestApproval(ctx context.Context, runID int64, description string, contextData map[string]any) (gate.Decision, error)
}

// ActionDispatcher hands an approved action to the integrations service.
type ActionDispatcher interface {
	Dispatch(ctx context.Context, runID int64, action queue.Action) error
}

// Worker is the job consumer loop.
type Worker struct {
	queue      *queue.Queue
	runs       repository.RunStore
	gate       ApprovalGate
	dispatcher ActionDispatcher
	bus        notify.EventBus
	log        *logger.Logger

	// DequeueTimeout bounds each blocking pop so shutdown is responsive.
	DequeueTimeout time.Duration
}

// New creates a worker.
func New(
	q *queue.Queue,
	runs repository.RunStore,
	g ApprovalGate,
	dispatcher ActionDispatcher,
	bus notify.EventBus,
	log *logger.Logger,
) *Worker {
	return &Worker{
		queue:          q,
		runs:           runs,
		gate:           g,
		dispatcher:     dispatcher,
		bus:            bus,
		log:            log,
		DequeueTimeout: 30 * time.Second,
	}
}

// Run consumes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().Msg("Worker started; waiting for agent jobs")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		job, err := w.queue.Dequeue(ctx, w.DequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.log.Error().Err(err).Msg("Failed to dequeue job; retrying in 5s")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
			}
			continue
		}
		if job == nil {
			continue
		}

		w.ProcessJob(ctx, job)
	}
}

// ProcessJob runs one job through the full run lifecycle. Exported so the
// server can also execute jobs inline in single-process deployments.
func (w *Worker) ProcessJob(ctx context.Context, job *queue.Job) {
	run, err := w.runs.Create(ctx, job.TriggeredBy)
	if err != nil {
		w.log.Error().Err(err).Msg("Failed to create agent run; job dropped")
		return
	}

	log := w.log.With().Int64("run_id", run.ID).Logger()
	log.Info().Str("triggered_by", job.TriggeredBy).Int("actions", len(job.Actions)).Msg("Processing agent job")
	w.publishStatus(ctx, run.ID, "running")

	summary, err := w.executeActions(ctx, run.ID, job.Actions)
	if err != nil {
		log.Error().Err(err).Msg("Agent run failed")
		msg := err.Error()
		if ferr := w.runs.Finish(ctx, run.ID, "failed", &msg); ferr != nil {
			log.Error().Err(ferr).Msg("Failed to mark run failed")
		}
		w.publishStatus(ctx, run.ID, "failed")
		return
	}

	if err := w.runs.Finish(ctx, run.ID, "completed", &summary); err != nil {
		log.Error().Err(err).Msg("Failed to mark run completed")
	}
	w.publishStatus(ctx, run.ID, "completed")
	log.Info().Str("summary", summary).Msg("Agent run completed")
}

// executeActions gates every proposed action and dispatches the approved
// ones. A storage failure inside the gate or a dispatch failure fails the
// run; rejections and expiries are normal outcomes.
func (w *Worker) executeActions(ctx context.Context, runID int64, actions []queue.Action) (string, error) {
	var approved, rejected, expired int

	for _, action := range actions {
		decision, err := w.gate.RequestApproval(ctx, runID, action.Description, actionContext(action))
		if err != nil {
			return "", fmt.Errorf("approval gate for %q: %w", action.Type, err)
		}

		switch decision {
		case gate.DecisionApproved:
			if err := w.dispatcher.Dispatch(ctx, runID, action); err != nil {
				return "", err
			}
			approved++
		case gate.DecisionRejected:
			rejected++
		case gate.DecisionExpired:
			expired++
		}
	}

	return fmt.Sprintf("%d action(s): %d approved and dispatched, %d rejected, %d expired",
		len(actions), approved, rejected, expired), nil
}

func (w *Worker) publishStatus(ctx context.Context, runID int64, status string) {
	event := notify.Event{
		Type: "agent_status",
		Data: map[string]any{"run_id": runID, "status": status},
	}
	if err := w.bus.PublishEvent(ctx, event); err != nil {
		w.log.Warn().Err(err).Int64("run_id", runID).Msg("Failed to publish agent_status event (non-fatal)")
	}
}

// actionContext is the full structured payload stored with the approval.
func actionContext(action queue.Action) map[string]any {
	contextData := map[string]any{"action_type": action.Type}
	for k, v := range action.Payload {
		contextData[k] = v
	}
	return contextData
}
