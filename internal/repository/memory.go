package repository

import (
	"context"
	"sync"
	"time"

	"github.com/toora-ai/be-approvals/internal/errors"
)

// MemoryApprovalStore is a mutex-guarded in-memory ApprovalStore with the
// same transition semantics as the Postgres store. Used by tests and by
// single-process local runs without Postgres; its own clock plays the role
// of NOW().
type MemoryApprovalStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*ApprovalRequest

	// Now is the store clock. Overridable in tests; defaults to time.Now.
	Now func() time.Time
}

// NewMemoryApprovalStore creates an empty in-memory store.
func NewMemoryApprovalStore() *MemoryApprovalStore {
	return &MemoryApprovalStore{
		rows: make(map[int64]*ApprovalRequest),
		Now:  time.Now,
	}
}

// Create inserts a pending record.
func (s *MemoryApprovalStore) Create(ctx context.Context, runID int64, description string, contextData map[string]any, timeout time.Duration) (*ApprovalRequest, error) {
	if contextData == nil {
		contextData = map[string]any{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	now := s.Now()
	approval := &ApprovalRequest{
		ID:          s.nextID,
		RunID:       runID,
		Description: description,
		Context:     contextData,
		Status:      StatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(timeout),
	}
	s.rows[approval.ID] = approval
	return copyApproval(approval), nil
}

// GetByID returns a copy of the record.
func (s *MemoryApprovalStore) GetByID(ctx context.Context, id int64) (*ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	approval, ok := s.rows[id]
	if !ok {
		return nil, errors.NotFound("approval", id)
	}
	return copyApproval(approval), nil
}

// TryResolve applies the pending + unexpired compare-and-swap under the
// store lock.
func (s *MemoryApprovalStore) TryResolve(ctx context.Context, id int64, approved bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	approval, ok := s.rows[id]
	if !ok {
		return false, nil
	}

	now := s.Now()
	if approval.Status != StatusPending || !approval.ExpiresAt.After(now) {
		return false, nil
	}

	if approved {
		approval.Status = StatusApproved
	} else {
		approval.Status = StatusRejected
	}
	resolved := now
	approval.ResolvedAt = &resolved
	return true, nil
}

// SweepExpired transitions overdue pending records to expired.
func (s *MemoryApprovalStore) SweepExpired(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	var count int64
	for _, approval := range s.rows {
		if approval.Status == StatusPending && !approval.ExpiresAt.After(now) {
			approval.Status = StatusExpired
			resolved := now
			approval.ResolvedAt = &resolved
			count++
		}
	}
	return count, nil
}

// SetExternalRef records the outbound notification reference.
func (s *MemoryApprovalStore) SetExternalRef(ctx context.Context, id int64, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	approval, ok := s.rows[id]
	if !ok {
		return errors.NotFound("approval", id)
	}
	approval.ExternalMessageRef = &ref
	return nil
}

// List returns copies newest-first, optionally filtered by status.
func (s *MemoryApprovalStore) List(ctx context.Context, status *ApprovalStatus) ([]*ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var approvals []*ApprovalRequest
	for _, approval := range s.rows {
		if status != nil && approval.Status != *status {
			continue
		}
		approvals = append(approvals, copyApproval(approval))
	}
	// Insertion ids are monotonic, so sorting by id descending is newest-first.
	for i := 0; i < len(approvals); i++ {
		for j := i + 1; j < len(approvals); j++ {
			if approvals[j].ID > approvals[i].ID {
				approvals[i], approvals[j] = approvals[j], approvals[i]
			}
		}
	}
	return approvals, nil
}

func copyApproval(approval *ApprovalRequest) *ApprovalRequest {
	out := *approval
	if approval.ResolvedAt != nil {
		resolved := *approval.ResolvedAt
		out.ResolvedAt = &resolved
	}
	if approval.ExternalMessageRef != nil {
		ref := *approval.ExternalMessageRef
		out.ExternalMessageRef = &ref
	}
	return &out
}

// MemoryRunStore is the in-memory RunStore counterpart.
type MemoryRunStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*AgentRun

	Now func() time.Time
}

// NewMemoryRunStore creates an empty in-memory run store.
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{
		rows: make(map[int64]*AgentRun),
		Now:  time.Now,
	}
}

// Create inserts a running run.
func (s *MemoryRunStore) Create(ctx context.Context, triggeredBy string) (*AgentRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	now := s.Now()
	run := &AgentRun{
		ID:          s.nextID,
		TriggeredBy: triggeredBy,
		Status:      "running",
		TriggeredAt: now,
		UpdatedAt:   now,
	}
	s.rows[run.ID] = run
	out := *run
	return &out, nil
}

// Finish stamps terminal status and summary.
func (s *MemoryRunStore) Finish(ctx context.Context, id int64, status string, summary *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.rows[id]
	if !ok {
		return errors.NotFound("agent_run", id)
	}
	now := s.Now()
	run.Status = status
	run.Summary = summary
	run.FinishedAt = &now
	run.UpdatedAt = now
	return nil
}

// Latest returns the most recent run, or nil when none exists.
func (s *MemoryRunStore) Latest(ctx context.Context) (*AgentRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *AgentRun
	for _, run := range s.rows {
		if latest == nil || run.ID > latest.ID {
			latest = run
		}
	}
	if latest == nil {
		return nil, nil
	}
	out := *latest
	return &out, nil
}
