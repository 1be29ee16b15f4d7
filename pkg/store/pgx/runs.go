package pgx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bloomgraph/pkg/common"
	"bloomgraph/pkg/logger"
	"bloomgraph/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
)

// CreateRun inserts a new pipeline run record.
func (s *PipelineDBStorage) CreateRun(ctx context.Context, run common.PipelineRun) error {
	logger.Debug("[Store][CreateRun] Inserting pipeline run", "run_id", run.RunID)

	_, err := s.conn.Exec(ctx, `
		INSERT INTO pipeline_runs (run_id, status, trigger_source, started_at)
		VALUES ($1, $2, $3, $4)`,
		run.RunID, run.Status, run.TriggerSource, run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert pipeline run %s: %w", run.RunID, err)
	}
	return nil
}

// GetRun fetches a single pipeline run by id.
func (s *PipelineDBStorage) GetRun(ctx context.Context, runID string) (common.PipelineRun, error) {
	var run common.PipelineRun
	err := s.conn.QueryRow(ctx, `
		SELECT run_id, status, trigger_source, started_at, finished_at
		FROM pipeline_runs
		WHERE run_id = $1`,
		runID,
	).Scan(&run.RunID, &run.Status, &run.TriggerSource, &run.StartedAt, &run.FinishedAt)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return common.PipelineRun{}, store.ErrNotFound
	}
	if err != nil {
		return common.PipelineRun{}, fmt.Errorf("failed to get pipeline run %s: %w", runID, err)
	}
	return run, nil
}

// ListRuns returns all pipeline runs, newest first.
func (s *PipelineDBStorage) ListRuns(ctx context.Context) ([]common.PipelineRun, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT run_id, status, trigger_source, started_at, finished_at
		FROM pipeline_runs
		ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pipeline runs: %w", err)
	}
	defer rows.Close()

	var runs []common.PipelineRun
	for rows.Next() {
		var run common.PipelineRun
		if err := rows.Scan(&run.RunID, &run.Status, &run.TriggerSource, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pipeline run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// UpdateRunStatus transitions a run to the given status, stamping finished_at
// on terminal states.
func (s *PipelineDBStorage) UpdateRunStatus(ctx context.Context, runID, status string) error {
	logger.Debug("[Store][UpdateRunStatus] Updating run status", "run_id", runID, "status", status)

	var finishedAt *time.Time
	switch status {
	case common.RunStatusSuccess, common.RunStatusFailed, common.RunStatusFinalizeFailed:
		now := time.Now().UTC()
		finishedAt = &now
	}

	tag, err := s.conn.Exec(ctx, `
		UPDATE pipeline_runs
		SET status = $2, finished_at = COALESCE($3, finished_at)
		WHERE run_id = $1`,
		runID, status, finishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update status of run %s: %w", runID, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
