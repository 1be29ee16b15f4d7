package pgx

import (
	"context"
	"fmt"

	"bloomgraph/pkg/common"
	"bloomgraph/pkg/logger"
	"bloomgraph/pkg/store"
)

// SaveOrigins bulk inserts the knowledge-unit origins prepared for a run.
func (s *PipelineDBStorage) SaveOrigins(ctx context.Context, runID string, origins []common.Origin) error {
	if len(origins) == 0 {
		return nil
	}

	logger.Debug("[Store][SaveOrigins] Bulk inserting origins", "run_id", runID, "origins", len(origins))

	return store.ChunkRange(len(origins), bulkChunkSize, func(start, end int) error {
		tx, err := s.conn.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		count := end - start
		ids := make([]string, 0, count)
		types := make([]string, 0, count)
		titles := make([]string, 0, count)
		contexts := make([]string, 0, count)
		frequencies := make([]int, 0, count)
		degrees := make([]int, 0, count)
		entityTypes := make([]string, 0, count)
		levels := make([]int, 0, count)
		parents := make([]*string, 0, count)
		for _, o := range origins[start:end] {
			ids = append(ids, o.OriginID)
			types = append(types, o.OriginType)
			titles = append(titles, o.Title)
			contexts = append(contexts, o.Context)
			frequencies = append(frequencies, o.Frequency)
			degrees = append(degrees, o.Degree)
			entityTypes = append(entityTypes, o.EntityType)
			levels = append(levels, o.Level)
			parents = append(parents, o.ParentCommunityID)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO knowledge_unit_origins (run_id, origin_id, origin_type, title, context, frequency, degree, entity_type, level, parent_community_id)
			SELECT $1, * FROM unnest($2::text[], $3::text[], $4::text[], $5::text[], $6::int[], $7::int[], $8::text[], $9::int[], $10::text[])`,
			runID, ids, types, titles, contexts, frequencies, degrees, entityTypes, levels, parents,
		)
		if err != nil {
			return fmt.Errorf("failed to insert origins for run %s: %w", runID, err)
		}
		return tx.Commit(ctx)
	})
}

// GetOrigins returns all origins of a run ordered by id for deterministic
// downstream scheduling.
func (s *PipelineDBStorage) GetOrigins(ctx context.Context, runID string) ([]common.Origin, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT origin_id, origin_type, title, context, frequency, degree, entity_type, level, parent_community_id
		FROM knowledge_unit_origins
		WHERE run_id = $1
		ORDER BY origin_id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query origins for run %s: %w", runID, err)
	}
	defer rows.Close()

	var origins []common.Origin
	for rows.Next() {
		var o common.Origin
		err := rows.Scan(
			&o.OriginID, &o.OriginType, &o.Title, &o.Context,
			&o.Frequency, &o.Degree, &o.EntityType, &o.Level, &o.ParentCommunityID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan origin: %w", err)
		}
		origins = append(origins, o)
	}
	return origins, rows.Err()
}
