package repository

import (
	"context"
	"time"
)

// ── Domain types for the approval gate ───────────────────────────────────────

// ApprovalStatus is the lifecycle state of an approval request. A request
// leaves pending exactly once and never re-enters it.
type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "pending"
	StatusApproved ApprovalStatus = "approved"
	StatusRejected ApprovalStatus = "rejected"
	StatusExpired  ApprovalStatus = "expired"
)

// Terminal reports whether the status permits no further transition.
func (s ApprovalStatus) Terminal() bool {
	return s != StatusPending
}

// ApprovalRequest is the durable record of one consequential action awaiting
// a human decision.
type ApprovalRequest struct {
	ID                 int64          `json:"id"`
	RunID              int64          `json:"run_id"`
	Description        string         `json:"description"`
	Context            map[string]any `json:"context"`
	Status             ApprovalStatus `json:"status"`
	ExternalMessageRef *string        `json:"external_message_ref,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	ExpiresAt          time.Time      `json:"expires_at"`
	ResolvedAt         *time.Time     `json:"resolved_at,omitempty"`
}

// AgentRun is one agent execution; approvals are scoped to a run for audit.
type AgentRun struct {
	ID          int64      `json:"id"`
	TriggeredBy string     `json:"triggered_by"`
	Status      string     `json:"status"` // running | completed | failed
	Summary     *string    `json:"summary,omitempty"`
	TriggeredAt time.Time  `json:"triggered_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ApprovalStore is the single source of truth for approval state. TryResolve
// is the only write path out of pending besides SweepExpired, and both are
// atomic conditional updates.
type ApprovalStore interface {
	// Create inserts a pending record with expires_at = created_at + timeout.
	Create(ctx context.Context, runID int64, description string, contextData map[string]any, timeout time.Duration) (*ApprovalRequest, error)
	// GetByID returns the record or a not-found coded error.
	GetByID(ctx context.Context, id int64) (*ApprovalRequest, error)
	// TryResolve transitions pending -> approved|rejected only while the
	// record is pending and unexpired by the store's clock. Returns false
	// without error when no transition happened.
	TryResolve(ctx context.Context, id int64, approved bool) (bool, error)
	// SweepExpired bulk-transitions overdue pending records to expired and
	// returns how many it moved. Safe to call concurrently and repeatedly.
	SweepExpired(ctx context.Context) (int64, error)
	// SetExternalRef records the outbound notification reference.
	SetExternalRef(ctx context.Context, id int64, ref string) error
	// List returns records newest-first, optionally filtered by status.
	List(ctx context.Context, status *ApprovalStatus) ([]*ApprovalRequest, error)
}

// RunStore persists agent run lifecycle records.
type RunStore interface {
	Create(ctx context.Context, triggeredBy string) (*AgentRun, error)
	Finish(ctx context.Context, id int64, status string, summary *string) error
	Latest(ctx context.Context) (*AgentRun, error)
}
