package pgx

import (
	"context"
	"errors"
	"fmt"

	"bloomgraph/pkg/common"
	"bloomgraph/pkg/logger"
	"bloomgraph/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
)

// CreateBatchJob records a submitted provider batch job.
func (s *PipelineDBStorage) CreateBatchJob(ctx context.Context, job common.BatchJob) error {
	logger.Debug(
		"[Store][CreateBatchJob] Recording batch job",
		"batch_id", job.BatchID, "run_id", job.PipelineRunID, "kind", job.Kind,
	)

	_, err := s.conn.Exec(ctx, `
		INSERT INTO pipeline_batch_jobs (batch_id, run_id, kind, status, input_file_id, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		job.BatchID, job.PipelineRunID, job.Kind, job.Status, job.InputFileID, job.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert batch job %s: %w", job.BatchID, err)
	}
	return nil
}

// UpdateBatchJobStatus updates the provider-reported status of a job.
func (s *PipelineDBStorage) UpdateBatchJobStatus(ctx context.Context, batchID, status string) error {
	tag, err := s.conn.Exec(ctx, `
		UPDATE pipeline_batch_jobs SET status = $2 WHERE batch_id = $1`,
		batchID, status,
	)
	if err != nil {
		return fmt.Errorf("failed to update status of batch job %s: %w", batchID, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetBatchJob fetches one batch job by provider id.
func (s *PipelineDBStorage) GetBatchJob(ctx context.Context, batchID string) (common.BatchJob, error) {
	var job common.BatchJob
	err := s.conn.QueryRow(ctx, `
		SELECT batch_id, run_id, kind, status, input_file_id, submitted_at
		FROM pipeline_batch_jobs
		WHERE batch_id = $1`,
		batchID,
	).Scan(&job.BatchID, &job.PipelineRunID, &job.Kind, &job.Status, &job.InputFileID, &job.SubmittedAt)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return common.BatchJob{}, store.ErrNotFound
	}
	if err != nil {
		return common.BatchJob{}, fmt.Errorf("failed to get batch job %s: %w", batchID, err)
	}
	return job, nil
}

// ListBatchJobs returns all batch jobs of a run, newest first.
func (s *PipelineDBStorage) ListBatchJobs(ctx context.Context, runID string) ([]common.BatchJob, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT batch_id, run_id, kind, status, input_file_id, submitted_at
		FROM pipeline_batch_jobs
		WHERE run_id = $1
		ORDER BY submitted_at DESC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list batch jobs for run %s: %w", runID, err)
	}
	defer rows.Close()

	var jobs []common.BatchJob
	for rows.Next() {
		var job common.BatchJob
		if err := rows.Scan(&job.BatchID, &job.PipelineRunID, &job.Kind, &job.Status, &job.InputFileID, &job.SubmittedAt); err != nil {
			return nil, fmt.Errorf("failed to scan batch job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
