package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/toora-ai/be-approvals/internal/database"
	"github.com/toora-ai/be-approvals/internal/errors"
)

// PostgresApprovalStore is the production ApprovalStore. All state
// transitions are single conditional UPDATEs evaluated against the
// database's own clock, so a resolver racing the deadline can never win
// after NOW() >= expires_at.
type PostgresApprovalStore struct {
	db *database.DB
}

// NewPostgresApprovalStore creates a new PostgresApprovalStore.
func NewPostgresApprovalStore(db *database.DB) *PostgresApprovalStore {
	return &PostgresApprovalStore{db: db}
}

// Create inserts a pending approval. The record does not exist if this
// returns an error.
func (r *PostgresApprovalStore) Create(ctx context.Context, runID int64, description string, contextData map[string]any, timeout time.Duration) (*ApprovalRequest, error) {
	if contextData == nil {
		contextData = map[string]any{}
	}
	contextJSON, err := json.Marshal(contextData)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalid, "failed to marshal approval context")
	}

	query := `
		INSERT INTO pending_approvals
		    (run_id, description, context, status, expires_at)
		VALUES ($1, $2, $3, 'pending', NOW() + make_interval(secs => $4))
		RETURNING id, created_at, expires_at
	`

	approval := &ApprovalRequest{
		RunID:       runID,
		Description: description,
		Context:     contextData,
		Status:      StatusPending,
	}
	err = r.db.QueryRow(ctx, query, runID, description, contextJSON, timeout.Seconds()).
		Scan(&approval.ID, &approval.CreatedAt, &approval.ExpiresAt)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create approval request")
	}
	return approval, nil
}

// GetByID retrieves an approval by its primary key.
func (r *PostgresApprovalStore) GetByID(ctx context.Context, id int64) (*ApprovalRequest, error) {
	query := selectColumns + `
		FROM pending_approvals
		WHERE id = $1
	`

	approval, err := r.scanApproval(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("approval", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval request")
	}
	return approval, nil
}

// TryResolve is the compare-and-swap out of pending. The status guard and
// the expiry guard live inside the one UPDATE; there is no read-then-write
// window for a concurrent resolver or the sweep to slip through.
func (r *PostgresApprovalStore) TryResolve(ctx context.Context, id int64, approved bool) (bool, error) {
	status := StatusRejected
	if approved {
		status = StatusApproved
	}

	query := `
		UPDATE pending_approvals
		SET status      = $2,
		    resolved_at = NOW()
		WHERE id = $1
		  AND status = 'pending'
		  AND expires_at > NOW()
		RETURNING id
	`

	var returnedID int64
	err := r.db.QueryRow(ctx, query, id, status).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to resolve approval request")
	}
	return true, nil
}

// SweepExpired moves every overdue pending record to expired. Rows already
// terminal are untouched, so repeated or concurrent sweeps are harmless.
func (r *PostgresApprovalStore) SweepExpired(ctx context.Context) (int64, error) {
	query := `
		UPDATE pending_approvals
		SET status      = 'expired',
		    resolved_at = NOW()
		WHERE status = 'pending'
		  AND expires_at <= NOW()
	`

	tag, err := r.db.Exec(ctx, query)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to sweep expired approvals")
	}
	return tag.RowsAffected(), nil
}

// SetExternalRef stamps the outbound notification reference. Best-effort
// correlation data only; missing rows are reported but nothing depends on it.
func (r *PostgresApprovalStore) SetExternalRef(ctx context.Context, id int64, ref string) error {
	query := `
		UPDATE pending_approvals
		SET external_message_ref = $2
		WHERE id = $1
		RETURNING id
	`

	var returnedID int64
	err := r.db.QueryRow(ctx, query, id, ref).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("approval", id)
	}
	return errors.Wrap(err, errors.ErrCodeInternal, "failed to set external message ref")
}

// List returns approvals newest-first, optionally filtered by status.
func (r *PostgresApprovalStore) List(ctx context.Context, status *ApprovalStatus) ([]*ApprovalRequest, error) {
	query := selectColumns + `
		FROM pending_approvals
	`
	var args []any
	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approvals")
	}
	defer rows.Close()

	var approvals []*ApprovalRequest
	for rows.Next() {
		approval, err := r.scanApproval(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval row")
		}
		approvals = append(approvals, approval)
	}
	return approvals, rows.Err()
}

// ── scan helper ───────────────────────────────────────────────────────────────

const selectColumns = `
		SELECT id, run_id, description, context, status,
		       external_message_ref,
		       created_at, expires_at, resolved_at`

type approvalScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresApprovalStore) scanApproval(row approvalScanner) (*ApprovalRequest, error) {
	approval := &ApprovalRequest{}
	var contextJSON []byte
	err := row.Scan(
		&approval.ID,
		&approval.RunID,
		&approval.Description,
		&contextJSON,
		&approval.Status,
		&approval.ExternalMessageRef,
		&approval.CreatedAt,
		&approval.ExpiresAt,
		&approval.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &approval.Context); err != nil {
			return nil, err
		}
	}
	return approval, nil
}
