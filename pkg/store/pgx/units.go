package pgx

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"bloomgraph/pkg/common"
	"bloomgraph/pkg/logger"
	"bloomgraph/pkg/store"
)

// SaveKnowledgeUnits bulk inserts raw generated knowledge units.
func (s *PipelineDBStorage) SaveKnowledgeUnits(ctx context.Context, runID string, units []common.KnowledgeUnit) error {
	if len(units) == 0 {
		return nil
	}

	logger.Debug("[Store][SaveKnowledgeUnits] Bulk inserting units", "run_id", runID, "units", len(units))

	return store.ChunkRange(len(units), bulkChunkSize, func(start, end int) error {
		tx, err := s.conn.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		count := end - start
		ids := make([]string, 0, count)
		originIDs := make([]string, 0, count)
		bloomLevels := make([]string, 0, count)
		texts := make([]string, 0, count)
		for _, u := range units[start:end] {
			ids = append(ids, u.UCID)
			originIDs = append(originIDs, u.OriginID)
			bloomLevels = append(bloomLevels, u.BloomLevel)
			texts = append(texts, u.Text)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO knowledge_units (run_id, uc_id, origin_id, bloom_level, uc_text)
			SELECT $1, * FROM unnest($2::text[], $3::text[], $4::text[], $5::text[])`,
			runID, ids, originIDs, bloomLevels, texts,
		)
		if err != nil {
			return fmt.Errorf("failed to insert knowledge units for run %s: %w", runID, err)
		}
		return tx.Commit(ctx)
	})
}

// ListKnowledgeUnits returns a run's units, optionally narrowed by filter,
// ordered by origin then Bloom level.
func (s *PipelineDBStorage) ListKnowledgeUnits(ctx context.Context, runID string, filter store.UnitFilter) ([]common.KnowledgeUnit, error) {
	query := strings.Builder{}
	query.WriteString(`
		SELECT uc_id, origin_id, bloom_level, uc_text, run_id, difficulty_score, difficulty_justification, evaluation_count
		FROM knowledge_units
		WHERE run_id = $1`)
	args := []any{runID}

	appendCond := func(cond string, value any) {
		args = append(args, value)
		query.WriteString(" AND " + cond + " $" + strconv.Itoa(len(args)))
	}

	if filter.OriginID != "" {
		appendCond("origin_id =", filter.OriginID)
	}
	if filter.BloomLevel != "" {
		appendCond("bloom_level =", filter.BloomLevel)
	}
	if filter.MinDifficulty != nil {
		appendCond("difficulty_score >=", *filter.MinDifficulty)
	}
	if filter.MaxDifficulty != nil {
		appendCond("difficulty_score <=", *filter.MaxDifficulty)
	}
	if filter.EvaluatedOnly {
		query.WriteString(" AND difficulty_score IS NOT NULL")
	}
	query.WriteString(" ORDER BY origin_id, bloom_level, uc_id")

	rows, err := s.conn.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge units for run %s: %w", runID, err)
	}
	defer rows.Close()

	var units []common.KnowledgeUnit
	for rows.Next() {
		var u common.KnowledgeUnit
		var justification *string
		err := rows.Scan(
			&u.UCID, &u.OriginID, &u.BloomLevel, &u.Text, &u.PipelineRunID,
			&u.DifficultyScore, &justification, &u.EvaluationCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan knowledge unit: %w", err)
		}
		if justification != nil {
			u.DifficultyJustification = *justification
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

// SetUnitDifficulties writes aggregated difficulty results back onto the
// units, chunked in transactions.
func (s *PipelineDBStorage) SetUnitDifficulties(ctx context.Context, runID string, units []common.KnowledgeUnit) error {
	if len(units) == 0 {
		return nil
	}

	logger.Debug("[Store][SetUnitDifficulties] Applying difficulty results", "run_id", runID, "units", len(units))

	return store.ChunkRange(len(units), bulkChunkSize, func(start, end int) error {
		tx, err := s.conn.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		count := end - start
		ids := make([]string, 0, count)
		scores := make([]*int, 0, count)
		justifications := make([]string, 0, count)
		evalCounts := make([]int, 0, count)
		for _, u := range units[start:end] {
			ids = append(ids, u.UCID)
			scores = append(scores, u.DifficultyScore)
			justifications = append(justifications, u.DifficultyJustification)
			evalCounts = append(evalCounts, u.EvaluationCount)
		}

		_, err = tx.Exec(ctx, `
			UPDATE knowledge_units AS ku
			SET difficulty_score = v.score,
			    difficulty_justification = v.justification,
			    evaluation_count = v.evaluation_count
			FROM unnest($2::text[], $3::int[], $4::text[], $5::int[])
			     AS v(uc_id, score, justification, evaluation_count)
			WHERE ku.run_id = $1 AND ku.uc_id = v.uc_id`,
			runID, ids, scores, justifications, evalCounts,
		)
		if err != nil {
			return fmt.Errorf("failed to update difficulties for run %s: %w", runID, err)
		}
		return tx.Commit(ctx)
	})
}
