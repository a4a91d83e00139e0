package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/toora-ai/be-approvals/internal/database"
	"github.com/toora-ai/be-approvals/internal/errors"
)

// PostgresRunStore persists agent run lifecycle records.
type PostgresRunStore struct {
	db *database.DB
}

// NewPostgresRunStore creates a new PostgresRunStore.
func NewPostgresRunStore(db *database.DB) *PostgresRunStore {
	return &PostgresRunStore{db: db}
}

// Create inserts a running agent run and returns the full record.
func (r *PostgresRunStore) Create(ctx context.Context, triggeredBy string) (*AgentRun, error) {
	query := `
		INSERT INTO agent_runs (triggered_by, status)
		VALUES ($1, 'running')
		RETURNING id, triggered_by, status, summary, triggered_at, finished_at, updated_at
	`

	run, err := r.scanRun(r.db.QueryRow(ctx, query, triggeredBy))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create agent run")
	}
	return run, nil
}

// Finish stamps a run's terminal status and optional summary.
func (r *PostgresRunStore) Finish(ctx context.Context, id int64, status string, summary *string) error {
	query := `
		UPDATE agent_runs
		SET status      = $2,
		    summary     = $3,
		    finished_at = NOW(),
		    updated_at  = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID int64
	err := r.db.QueryRow(ctx, query, id, status, summary).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("agent_run", id)
	}
	return errors.Wrap(err, errors.ErrCodeInternal, "failed to finish agent run")
}

// Latest returns the most recent run, or nil when none exists yet.
func (r *PostgresRunStore) Latest(ctx context.Context) (*AgentRun, error) {
	query := `
		SELECT id, triggered_by, status, summary, triggered_at, finished_at, updated_at
		FROM agent_runs
		ORDER BY triggered_at DESC
		LIMIT 1
	`

	run, err := r.scanRun(r.db.QueryRow(ctx, query))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get latest agent run")
	}
	return run, nil
}

type runScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresRunStore) scanRun(row runScanner) (*AgentRun, error) {
	run := &AgentRun{}
	err := row.Scan(
		&run.ID,
		&run.TriggeredBy,
		&run.Status,
		&run.Summary,
		&run.TriggeredAt,
		&run.FinishedAt,
		&run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return run, nil
}
