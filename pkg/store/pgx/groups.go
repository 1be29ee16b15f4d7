package pgx

import (
	"context"
	"fmt"

	"bloomgraph/pkg/common"
	"bloomgraph/pkg/logger"
)

// SaveComparisonGroups persists comparison groups and their origin
// associations in one transaction. Groups are written before the difficulty
// batch is submitted so results can always be joined back.
func (s *PipelineDBStorage) SaveComparisonGroups(ctx context.Context, runID string, groups []common.ComparisonGroup) error {
	if len(groups) == 0 {
		return nil
	}

	logger.Debug("[Store][SaveComparisonGroups] Persisting comparison groups", "run_id", runID, "groups", len(groups))

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	groupIDs := make([]string, 0, len(groups))
	bloomLevels := make([]string, 0, len(groups))
	coherenceLevels := make([]string, 0, len(groups))
	seedIDs := make([]string, 0, len(groups))

	var assocGroupIDs []string
	var assocOriginIDs []string
	var assocIsSeed []bool

	for _, g := range groups {
		groupIDs = append(groupIDs, g.GroupID)
		bloomLevels = append(bloomLevels, g.BloomLevel)
		coherenceLevels = append(coherenceLevels, g.CoherenceLevel)
		seedIDs = append(seedIDs, g.SeedOriginID)

		for _, originID := range g.OriginIDs {
			assocGroupIDs = append(assocGroupIDs, g.GroupID)
			assocOriginIDs = append(assocOriginIDs, originID)
			assocIsSeed = append(assocIsSeed, originID == g.SeedOriginID)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO comparison_groups (run_id, group_id, bloom_level, coherence_level, seed_origin_id)
		SELECT $1, * FROM unnest($2::text[], $3::text[], $4::text[], $5::text[])`,
		runID, groupIDs, bloomLevels, coherenceLevels, seedIDs,
	)
	if err != nil {
		return fmt.Errorf("failed to insert comparison groups for run %s: %w", runID, err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO comparison_group_origins (run_id, group_id, origin_id, is_seed_origin)
		SELECT $1, * FROM unnest($2::text[], $3::text[], $4::bool[])`,
		runID, assocGroupIDs, assocOriginIDs, assocIsSeed,
	)
	if err != nil {
		return fmt.Errorf("failed to insert comparison group origins for run %s: %w", runID, err)
	}

	return tx.Commit(ctx)
}

// GetComparisonGroups returns a run's comparison groups with their member
// origin ids, seeds flagged.
func (s *PipelineDBStorage) GetComparisonGroups(ctx context.Context, runID string) ([]common.ComparisonGroup, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT g.group_id, g.bloom_level, g.coherence_level, g.seed_origin_id, o.origin_id
		FROM comparison_groups g
		JOIN comparison_group_origins o ON o.run_id = g.run_id AND o.group_id = g.group_id
		WHERE g.run_id = $1
		ORDER BY g.group_id, o.origin_id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query comparison groups for run %s: %w", runID, err)
	}
	defer rows.Close()

	var groups []common.ComparisonGroup
	index := make(map[string]int)
	for rows.Next() {
		var groupID, bloomLevel, coherenceLevel, seedID, originID string
		if err := rows.Scan(&groupID, &bloomLevel, &coherenceLevel, &seedID, &originID); err != nil {
			return nil, fmt.Errorf("failed to scan comparison group row: %w", err)
		}

		i, ok := index[groupID]
		if !ok {
			i = len(groups)
			index[groupID] = i
			groups = append(groups, common.ComparisonGroup{
				GroupID:        groupID,
				BloomLevel:     bloomLevel,
				CoherenceLevel: coherenceLevel,
				SeedOriginID:   seedID,
			})
		}
		groups[i].OriginIDs = append(groups[i].OriginIDs, originID)
	}
	return groups, rows.Err()
}
