package pgx

import (
	"context"
	"encoding/json"
	"fmt"

	"bloomgraph/pkg/common"
	"bloomgraph/pkg/logger"
	"bloomgraph/pkg/store"
)

// SaveGraphSnapshot persists the GraphRAG rows a run was started from, all in
// one transaction. The snapshot is write-once per run.
func (s *PipelineDBStorage) SaveGraphSnapshot(
	ctx context.Context,
	runID string,
	entities []common.GraphEntity,
	communities []common.GraphCommunity,
	reports []common.GraphCommunityReport,
	relationships []common.GraphRelationship,
) error {
	logger.Debug(
		"[Store][SaveGraphSnapshot] Persisting graph snapshot",
		"run_id", runID,
		"entities", len(entities),
		"communities", len(communities),
		"reports", len(reports),
		"relationships", len(relationships),
	)

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = store.ChunkRange(len(entities), bulkChunkSize, func(start, end int) error {
		count := end - start
		ids := make([]string, 0, count)
		titles := make([]string, 0, count)
		descriptions := make([]string, 0, count)
		types := make([]string, 0, count)
		frequencies := make([]int, 0, count)
		degrees := make([]int, 0, count)
		parents := make([]*string, 0, count)
		for _, e := range entities[start:end] {
			ids = append(ids, e.ID)
			titles = append(titles, e.Title)
			descriptions = append(descriptions, e.Description)
			types = append(types, e.Type)
			frequencies = append(frequencies, e.Frequency)
			degrees = append(degrees, e.Degree)
			parents = append(parents, e.ParentCommunityID)
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO graph_entities (run_id, entity_id, title, description, entity_type, frequency, degree, parent_community_id)
			SELECT $1, * FROM unnest($2::text[], $3::text[], $4::text[], $5::text[], $6::int[], $7::int[], $8::text[])`,
			runID, ids, titles, descriptions, types, frequencies, degrees, parents,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to insert graph entities for run %s: %w", runID, err)
	}

	err = store.ChunkRange(len(communities), bulkChunkSize, func(start, end int) error {
		count := end - start
		ids := make([]string, 0, count)
		hrIDs := make([]string, 0, count)
		titles := make([]string, 0, count)
		levels := make([]int, 0, count)
		parentHRIDs := make([]*string, 0, count)
		parentIDs := make([]*string, 0, count)
		entityIDs := make([]string, 0, count)
		for _, c := range communities[start:end] {
			ids = append(ids, c.ID)
			hrIDs = append(hrIDs, c.HumanReadableID)
			titles = append(titles, c.Title)
			levels = append(levels, c.Level)
			parentHRIDs = append(parentHRIDs, c.ParentHRID)
			parentIDs = append(parentIDs, c.ParentCommunityID)
			members, err := json.Marshal(c.EntityIDs)
			if err != nil {
				return err
			}
			entityIDs = append(entityIDs, string(members))
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO graph_communities (run_id, community_id, human_readable_id, title, level, parent_hr_id, parent_community_id, entity_ids)
			SELECT $1, * FROM unnest($2::text[], $3::text[], $4::text[], $5::int[], $6::text[], $7::text[], $8::jsonb[])`,
			runID, ids, hrIDs, titles, levels, parentHRIDs, parentIDs, entityIDs,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to insert graph communities for run %s: %w", runID, err)
	}

	err = store.ChunkRange(len(reports), bulkChunkSize, func(start, end int) error {
		count := end - start
		ids := make([]string, 0, count)
		communityHRIDs := make([]*string, 0, count)
		titles := make([]string, 0, count)
		summaries := make([]string, 0, count)
		levels := make([]int, 0, count)
		for _, r := range reports[start:end] {
			ids = append(ids, r.ID)
			communityHRIDs = append(communityHRIDs, r.CommunityHRID)
			titles = append(titles, r.Title)
			summaries = append(summaries, r.Summary)
			levels = append(levels, r.Level)
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO graph_community_reports (run_id, report_id, community_hr_id, title, summary, level)
			SELECT $1, * FROM unnest($2::text[], $3::text[], $4::text[], $5::text[], $6::int[])`,
			runID, ids, communityHRIDs, titles, summaries, levels,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to insert graph community reports for run %s: %w", runID, err)
	}

	err = store.ChunkRange(len(relationships), bulkChunkSize, func(start, end int) error {
		count := end - start
		sources := make([]string, 0, count)
		targets := make([]string, 0, count)
		weights := make([]float64, 0, count)
		descriptions := make([]*string, 0, count)
		for _, r := range relationships[start:end] {
			sources = append(sources, r.Source)
			targets = append(targets, r.Target)
			weights = append(weights, r.Weight)
			descriptions = append(descriptions, r.Description)
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO graph_relationships (run_id, source_title, target_title, weight, description)
			SELECT $1, * FROM unnest($2::text[], $3::text[], $4::float8[], $5::text[])`,
			runID, sources, targets, weights, descriptions,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to insert graph relationships for run %s: %w", runID, err)
	}

	return tx.Commit(ctx)
}

// GetGraphEntities returns the entity rows of a run's snapshot.
func (s *PipelineDBStorage) GetGraphEntities(ctx context.Context, runID string) ([]common.GraphEntity, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT entity_id, title, description, entity_type, frequency, degree, parent_community_id
		FROM graph_entities
		WHERE run_id = $1
		ORDER BY entity_id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query graph entities for run %s: %w", runID, err)
	}
	defer rows.Close()

	var entities []common.GraphEntity
	for rows.Next() {
		var e common.GraphEntity
		if err := rows.Scan(&e.ID, &e.Title, &e.Description, &e.Type, &e.Frequency, &e.Degree, &e.ParentCommunityID); err != nil {
			return nil, fmt.Errorf("failed to scan graph entity: %w", err)
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// GetGraphCommunities returns the community rows of a run's snapshot.
func (s *PipelineDBStorage) GetGraphCommunities(ctx context.Context, runID string) ([]common.GraphCommunity, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT community_id, human_readable_id, title, level, parent_hr_id, parent_community_id, entity_ids
		FROM graph_communities
		WHERE run_id = $1
		ORDER BY community_id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query graph communities for run %s: %w", runID, err)
	}
	defer rows.Close()

	var communities []common.GraphCommunity
	for rows.Next() {
		var c common.GraphCommunity
		if err := rows.Scan(&c.ID, &c.HumanReadableID, &c.Title, &c.Level, &c.ParentHRID, &c.ParentCommunityID, &c.EntityIDs); err != nil {
			return nil, fmt.Errorf("failed to scan graph community: %w", err)
		}
		communities = append(communities, c)
	}
	return communities, rows.Err()
}

// GetGraphCommunityReports returns the community report rows of a run's
// snapshot.
func (s *PipelineDBStorage) GetGraphCommunityReports(ctx context.Context, runID string) ([]common.GraphCommunityReport, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT report_id, community_hr_id, title, summary, level
		FROM graph_community_reports
		WHERE run_id = $1
		ORDER BY report_id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query graph community reports for run %s: %w", runID, err)
	}
	defer rows.Close()

	var reports []common.GraphCommunityReport
	for rows.Next() {
		var r common.GraphCommunityReport
		if err := rows.Scan(&r.ID, &r.CommunityHRID, &r.Title, &r.Summary, &r.Level); err != nil {
			return nil, fmt.Errorf("failed to scan graph community report: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// GetGraphRelationships returns the relationship rows of a run's snapshot.
func (s *PipelineDBStorage) GetGraphRelationships(ctx context.Context, runID string) ([]common.GraphRelationship, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT source_title, target_title, weight, description
		FROM graph_relationships
		WHERE run_id = $1`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query graph relationships for run %s: %w", runID, err)
	}
	defer rows.Close()

	var relationships []common.GraphRelationship
	for rows.Next() {
		var r common.GraphRelationship
		if err := rows.Scan(&r.Source, &r.Target, &r.Weight, &r.Description); err != nil {
			return nil, fmt.Errorf("failed to scan graph relationship: %w", err)
		}
		relationships = append(relationships, r)
	}
	return relationships, rows.Err()
}
