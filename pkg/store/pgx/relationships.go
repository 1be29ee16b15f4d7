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

// SaveRelationships bulk inserts knowledge-unit relationships.
func (s *PipelineDBStorage) SaveRelationships(ctx context.Context, runID string, relationships []common.Relationship) error {
	if len(relationships) == 0 {
		return nil
	}

	logger.Debug("[Store][SaveRelationships] Bulk inserting relationships", "run_id", runID, "relationships", len(relationships))

	return store.ChunkRange(len(relationships), bulkChunkSize, func(start, end int) error {
		tx, err := s.conn.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		count := end - start
		sources := make([]string, 0, count)
		targets := make([]string, 0, count)
		types := make([]string, 0, count)
		weights := make([]float64, 0, count)
		descs := make([]*string, 0, count)
		for _, r := range relationships[start:end] {
			sources = append(sources, r.SourceUCID)
			targets = append(targets, r.TargetUCID)
			types = append(types, r.Type)
			weights = append(weights, r.Weight)
			descs = append(descs, r.GraphRelDesc)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO knowledge_unit_relationships (run_id, source_uc_id, target_uc_id, rel_type, weight, graph_rel_description)
			SELECT $1, * FROM unnest($2::text[], $3::text[], $4::text[], $5::float8[], $6::text[])`,
			runID, sources, targets, types, weights, descs,
		)
		if err != nil {
			return fmt.Errorf("failed to insert relationships for run %s: %w", runID, err)
		}
		return tx.Commit(ctx)
	})
}

// ListRelationships returns a run's unit relationships, optionally narrowed
// by filter.
func (s *PipelineDBStorage) ListRelationships(ctx context.Context, runID string, filter store.RelationshipFilter) ([]common.Relationship, error) {
	query := strings.Builder{}
	query.WriteString(`
		SELECT source_uc_id, target_uc_id, rel_type, weight, graph_rel_description
		FROM knowledge_unit_relationships
		WHERE run_id = $1`)
	args := []any{runID}

	appendCond := func(cond string, value any) {
		args = append(args, value)
		query.WriteString(" AND " + cond + " $" + strconv.Itoa(len(args)))
	}

	if filter.Type != "" {
		appendCond("rel_type =", filter.Type)
	}
	if filter.SourceID != "" {
		appendCond("source_uc_id =", filter.SourceID)
	}
	if filter.TargetID != "" {
		appendCond("target_uc_id =", filter.TargetID)
	}
	query.WriteString(" ORDER BY source_uc_id, target_uc_id, rel_type")

	rows, err := s.conn.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query relationships for run %s: %w", runID, err)
	}
	defer rows.Close()

	var relationships []common.Relationship
	for rows.Next() {
		r := common.Relationship{PipelineRunID: runID}
		if err := rows.Scan(&r.SourceUCID, &r.TargetUCID, &r.Type, &r.Weight, &r.GraphRelDesc); err != nil {
			return nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		relationships = append(relationships, r)
	}
	return relationships, rows.Err()
}
