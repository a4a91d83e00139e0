package service

import (
	"context"
	"time"

	"github.com/toora-ai/be-approvals/internal/logger"
	"github.com/toora-ai/be-approvals/internal/notify"
	"github.com/toora-ai/be-approvals/internal/repository"
)

// ApprovalService is the decision resolver: the only writer of terminal
// approval state besides the expiry sweep. It is invoked from the HTTP
// boundary (dashboard buttons, bot webhook callbacks) and is safe to call
// concurrently for the same id — the store CAS admits exactly one winner.
type ApprovalService struct {
	store   repository.ApprovalStore
	channel notify.DecisionChannel
	bus     notify.EventBus
	log     *logger.Logger
}

// ResolveResult reports whether this call performed the transition and the
// record's current state either way.
type ResolveResult struct {
	Transitioned bool                        `json:"transitioned"`
	Approval     *repository.ApprovalRequest `json:"approval"`
}

// NewApprovalService creates a new ApprovalService.
func NewApprovalService(
	store repository.ApprovalStore,
	channel notify.DecisionChannel,
	bus notify.EventBus,
	log *logger.Logger,
) *ApprovalService {
	return &ApprovalService{
		store:   store,
		channel: channel,
		bus:     bus,
		log:     log,
	}
}

// Resolve attempts the pending -> approved|rejected transition and, on
// success, wakes the waiting gate and notifies observers. A call that loses
// the race (already decided, expired, double-tap) is a no-op carrying the
// settled state, not an error. Unknown ids are a distinct not-found error.
func (s *ApprovalService) Resolve(ctx context.Context, id int64, approved bool) (*ResolveResult, error) {
	transitioned, err := s.store.TryResolve(ctx, id, approved)
	if err != nil {
		return nil, err
	}

	// Read back the settled record. This also distinguishes "never existed"
	// from "already terminal" when the CAS did not fire.
	approval, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !transitioned {
		s.log.Info().
			Int64("approval_id", id).
			Str("status", string(approval.Status)).
			Msg("Approval resolve was a no-op (already terminal)")
		return &ResolveResult{Transitioned: false, Approval: approval}, nil
	}

	// Wake the waiting gate. Best-effort: the gate's fallback poll covers a
	// dead transport.
	if err := s.channel.PublishDecision(ctx, id, approved); err != nil {
		s.log.Warn().Err(err).Int64("approval_id", id).Msg("Failed to publish decision wakeup (non-fatal)")
	}

	s.publishResolvedEvent(ctx, approval)

	s.log.Info().
		Int64("approval_id", id).
		Int64("run_id", approval.RunID).
		Bool("approved", approved).
		Msg("Approval resolved")

	return &ResolveResult{Transitioned: true, Approval: approval}, nil
}

// Get returns one approval.
func (s *ApprovalService) Get(ctx context.Context, id int64) (*repository.ApprovalRequest, error) {
	return s.store.GetByID(ctx, id)
}

// List returns approvals newest-first, optionally filtered by status.
func (s *ApprovalService) List(ctx context.Context, status *repository.ApprovalStatus) ([]*repository.ApprovalRequest, error) {
	return s.store.List(ctx, status)
}

// RunSweeper periodically expires overdue pending approvals so records reach
// a terminal state even when their waiter is gone. Blocks until ctx is done.
func (s *ApprovalService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := s.store.SweepExpired(ctx)
			if err != nil {
				s.log.Warn().Err(err).Msg("Expiry sweep failed")
				continue
			}
			if count > 0 {
				s.log.Info().Int64("expired", count).Msg("Expiry sweep transitioned approvals")
			}
		}
	}
}

func (s *ApprovalService) publishResolvedEvent(ctx context.Context, approval *repository.ApprovalRequest) {
	event := notify.Event{
		Type: "approval_resolved",
		Data: map[string]any{
			"id":          approval.ID,
			"run_id":      approval.RunID,
			"status":      approval.Status,
			"resolved_at": approval.ResolvedAt,
		},
	}
	if err := s.bus.PublishEvent(ctx, event); err != nil {
		s.log.Warn().Err(err).Int64("approval_id", approval.ID).Msg("Failed to publish approval_resolved event (non-fatal)")
	}
}
