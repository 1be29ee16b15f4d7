package pgx

import (
	"context"
	"fmt"

	"bloomgraph/pkg/common"
	"bloomgraph/pkg/logger"
	"bloomgraph/pkg/store"
)

// SaveEvaluations bulk inserts raw difficulty evaluations parsed from a batch
// result file.
func (s *PipelineDBStorage) SaveEvaluations(ctx context.Context, runID string, evaluations []common.DifficultyEvaluation) error {
	if len(evaluations) == 0 {
		return nil
	}

	logger.Debug("[Store][SaveEvaluations] Bulk inserting evaluations", "run_id", runID, "evaluations", len(evaluations))

	return store.ChunkRange(len(evaluations), bulkChunkSize, func(start, end int) error {
		tx, err := s.conn.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		count := end - start
		groupIDs := make([]string, 0, count)
		ucIDs := make([]string, 0, count)
		scores := make([]int, 0, count)
		justifications := make([]string, 0, count)
		for _, e := range evaluations[start:end] {
			groupIDs = append(groupIDs, e.ComparisonGroupID)
			ucIDs = append(ucIDs, e.UCID)
			scores = append(scores, e.DifficultyScore)
			justifications = append(justifications, e.Justification)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO knowledge_unit_evaluations (run_id, group_id, uc_id, difficulty_score, justification)
			SELECT $1, * FROM unnest($2::text[], $3::text[], $4::int[], $5::text[])`,
			runID, groupIDs, ucIDs, scores, justifications,
		)
		if err != nil {
			return fmt.Errorf("failed to insert evaluations for run %s: %w", runID, err)
		}
		return tx.Commit(ctx)
	})
}

// GetEvaluations returns all raw evaluations of a run.
func (s *PipelineDBStorage) GetEvaluations(ctx context.Context, runID string) ([]common.DifficultyEvaluation, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT group_id, uc_id, difficulty_score, justification
		FROM knowledge_unit_evaluations
		WHERE run_id = $1
		ORDER BY uc_id, group_id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query evaluations for run %s: %w", runID, err)
	}
	defer rows.Close()

	var evaluations []common.DifficultyEvaluation
	for rows.Next() {
		e := common.DifficultyEvaluation{PipelineRunID: runID}
		if err := rows.Scan(&e.ComparisonGroupID, &e.UCID, &e.DifficultyScore, &e.Justification); err != nil {
			return nil, fmt.Errorf("failed to scan evaluation: %w", err)
		}
		evaluations = append(evaluations, e)
	}
	return evaluations, rows.Err()
}
