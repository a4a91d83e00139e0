// Package gate implements the blocking approval primitive: one call per
// consequential action, returning exactly one of approved, rejected or
// expired. The waiter and the resolver run in different processes; they
// rendezvous on the store, with the pub/sub channel as a latency
// optimization only.
package gate

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/toora-ai/be-approvals/internal/logger"
	"github.com/toora-ai/be-approvals/internal/notify"
	"github.com/toora-ai/be-approvals/internal/repository"
)

// Decision is the outcome of one approval request.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
	DecisionExpired  Decision = "expired"
)

// Notifier delivers the approval request toward the human channel. Returns
// an opaque message ref, or "" when delivery failed — never an error, since
// the human can still resolve from another surface.
type Notifier interface {
	NotifyHuman(ctx context.Context, approval *repository.ApprovalRequest) string
}

// Options carries the gate timing knobs.
type Options struct {
	// Timeout is the hard deadline on every request. Default 600s.
	Timeout time.Duration
	// PollInterval is the fallback store re-check cadence. It is the
	// correctness backstop when the decision channel is down or the decision
	// landed before the subscription was live. Default 2s.
	PollInterval time.Duration
}

// Gate creates approval records and blocks until they settle. Safe for
// concurrent use; every RequestApproval call is independent.
type Gate struct {
	store    repository.ApprovalStore
	channel  notify.DecisionChannel
	notifier Notifier
	opts     Options
	log      *logger.Logger
}

// New creates a gate. Zero option fields get defaults.
func New(store repository.ApprovalStore, channel notify.DecisionChannel, notifier Notifier, log *logger.Logger, opts Options) *Gate {
	if opts.Timeout <= 0 {
		opts.Timeout = 600 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	return &Gate{
		store:    store,
		channel:  channel,
		notifier: notifier,
		opts:     opts,
		log:      log,
	}
}

// RequestApproval creates a pending approval scoped to runID, asks the human
// for a decision and blocks until the record settles or the deadline
// elapses. The only error paths are record creation failing (the approval
// does not exist; the caller must treat the action as failed) and caller
// cancellation (the record stays pending for the sweeper).
func (g *Gate) RequestApproval(ctx context.Context, runID int64, description string, contextData map[string]any) (Decision, error) {
	approval, err := g.store.Create(ctx, runID, description, contextData, g.opts.Timeout)
	if err != nil {
		return "", err
	}

	log := g.log.With().Int64("approval_id", approval.ID).Int64("run_id", runID).Logger()
	log.Info().Str("description", description).Time("expires_at", approval.ExpiresAt).Msg("Approval requested")

	// Subscribe before notifying the human so a decision arriving the
	// instant the message lands is not missed. A dead transport means
	// poll-only mode, not failure.
	var decisions <-chan notify.Decision
	sub, err := g.channel.SubscribeDecision(ctx, approval.ID)
	if err != nil {
		log.Warn().Err(err).Msg("Decision channel unavailable; waiting in poll-only mode")
	} else {
		defer sub.Close()
		decisions = sub.Decisions()
	}

	if ref := g.notifier.NotifyHuman(ctx, approval); ref != "" {
		if err := g.store.SetExternalRef(ctx, approval.ID, ref); err != nil {
			log.Warn().Err(err).Msg("Failed to record external message ref")
		}
	}

	return g.wait(ctx, approval, decisions, log)
}

func (g *Gate) wait(ctx context.Context, approval *repository.ApprovalRequest, decisions <-chan notify.Decision, log zerolog.Logger) (Decision, error) {
	ticker := time.NewTicker(g.opts.PollInterval)
	defer ticker.Stop()

	deadline := time.NewTimer(time.Until(approval.ExpiresAt))
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			// No decision was observed; the record stays pending until the
			// sweeper expires it.
			return "", ctx.Err()

		case decision, ok := <-decisions:
			if !ok {
				// Subscription died; keep polling.
				decisions = nil
				continue
			}
			if decision.ID != approval.ID {
				continue
			}
			if decision.Approved {
				log.Info().Msg("Approval granted via decision channel")
				return DecisionApproved, nil
			}
			log.Info().Msg("Approval rejected via decision channel")
			return DecisionRejected, nil

		case <-ticker.C:
			// Fallback poll: covers a decision that landed before the
			// subscription was live, or a down transport.
			current, err := g.store.GetByID(ctx, approval.ID)
			if err != nil {
				log.Warn().Err(err).Msg("Fallback poll failed; will retry")
				continue
			}
			if current.Status.Terminal() {
				log.Info().Str("status", string(current.Status)).Msg("Approval settled (observed via poll)")
				return decisionFromStatus(current.Status), nil
			}

		case <-deadline.C:
			// Close the resolution window, then trust the store for the
			// final state — a resolver that won the boundary race is honored.
			if _, err := g.store.SweepExpired(ctx); err != nil {
				log.Warn().Err(err).Msg("Expiry sweep at deadline failed")
			}
			current, err := g.store.GetByID(ctx, approval.ID)
			if err != nil {
				log.Warn().Err(err).Msg("Could not re-read approval at deadline; reporting expired")
				return DecisionExpired, nil
			}
			log.Info().Str("status", string(current.Status)).Msg("Approval deadline reached")
			return decisionFromStatus(current.Status), nil
		}
	}
}

func decisionFromStatus(status repository.ApprovalStatus) Decision {
	switch status {
	case repository.StatusApproved:
		return DecisionApproved
	case repository.StatusRejected:
		return DecisionRejected
	default:
		return DecisionExpired
	}
}
