package pipeline

import (
	"context"
	"fmt"

	"bloomgraph/pkg/common"
	"bloomgraph/pkg/logger"
	"bloomgraph/pkg/store"
)

// expandsLevels are the Bloom levels connected across origins by EXPANDS
// links. Higher levels stay origin-internal.
var expandsLevels = []string{common.BloomRemember, common.BloomUnderstand}

// DefineRelationships derives REQUIRES and EXPANDS links between the run's
// knowledge units and persists them. REQUIRES chains consecutive Bloom levels
// within each origin; EXPANDS mirrors graph relationships between origins at
// the lower Bloom levels. The call is idempotent.
func (p *Pipeline) DefineRelationships(ctx context.Context, runID string) error {
	logger.Info("Defining knowledge-unit relationships", "run_id", runID)

	existing, err := p.store.ListRelationships(ctx, runID, store.RelationshipFilter{})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		logger.Info("Relationships already exist, skipping definition", "run_id", runID, "relationships", len(existing))
		return nil
	}

	units, err := p.store.ListKnowledgeUnits(ctx, runID, store.UnitFilter{})
	if err != nil {
		return err
	}
	if len(units) == 0 {
		return fmt.Errorf("no generated units found for run %s, cannot define relationships", runID)
	}

	graphRels, err := p.store.GetGraphRelationships(ctx, runID)
	if err != nil {
		return err
	}
	entities, err := p.store.GetGraphEntities(ctx, runID)
	if err != nil {
		return err
	}
	if len(graphRels) == 0 {
		logger.Warn("No graph relationships found, EXPANDS links will be limited", "run_id", runID)
	}

	unitsByOriginLevel := groupUnitsByOriginLevel(units)

	relationships := buildRequiresLinks(unitsByOriginLevel)
	expands := buildExpandsLinks(graphRels, entities, unitsByOriginLevel)
	relationships = appendAvoidingDuplicates(relationships, expands)

	if len(relationships) == 0 {
		logger.Warn("No relationships were built", "run_id", runID)
		return nil
	}

	for i := range relationships {
		relationships[i].PipelineRunID = runID
	}
	if err := p.store.SaveRelationships(ctx, runID, relationships); err != nil {
		return err
	}

	logger.Info("Relationship definition complete", "run_id", runID, "relationships", len(relationships))
	return nil
}

func groupUnitsByOriginLevel(units []common.KnowledgeUnit) map[string]map[string][]string {
	grouped := make(map[string]map[string][]string)
	for _, u := range units {
		if u.OriginID == "" || u.UCID == "" || !common.IsBloomLevel(u.BloomLevel) {
			continue
		}
		byLevel, ok := grouped[u.OriginID]
		if !ok {
			byLevel = make(map[string][]string)
			grouped[u.OriginID] = byLevel
		}
		byLevel[u.BloomLevel] = append(byLevel[u.BloomLevel], u.UCID)
	}
	return grouped
}

// buildRequiresLinks chains each origin's units along the Bloom order. Links
// point from the lower level to the immediately following one: the source
// unit is required by the target unit.
func buildRequiresLinks(unitsByOriginLevel map[string]map[string][]string) []common.Relationship {
	var links []common.Relationship
	for _, byLevel := range unitsByOriginLevel {
		for i := 1; i < len(common.BloomOrder); i++ {
			lower := byLevel[common.BloomOrder[i-1]]
			higher := byLevel[common.BloomOrder[i]]
			for _, lowerID := range lower {
				for _, higherID := range higher {
					links = append(links, common.Relationship{
						SourceUCID: lowerID,
						TargetUCID: higherID,
						Type:       common.RelTypeRequires,
						Weight:     1.0,
					})
				}
			}
		}
	}
	return links
}

// buildExpandsLinks mirrors graph relationships onto knowledge units: when
// two connected entities both have units at one of the expandsLevels, their
// units are linked in both directions with the graph edge's weight.
func buildExpandsLinks(
	graphRels []common.GraphRelationship,
	entities []common.GraphEntity,
	unitsByOriginLevel map[string]map[string][]string,
) []common.Relationship {
	titleToID := make(map[string]string, len(entities))
	for _, e := range entities {
		titleToID[e.Title] = e.ID
	}

	var links []common.Relationship
	skippedMissing := 0
	for _, rel := range graphRels {
		sourceID := titleToID[rel.Source]
		targetID := titleToID[rel.Target]
		if sourceID == "" || targetID == "" {
			skippedMissing++
			continue
		}
		if sourceID == targetID {
			continue
		}

		sourceLevels, sourceOK := unitsByOriginLevel[sourceID]
		targetLevels, targetOK := unitsByOriginLevel[targetID]
		if !sourceOK || !targetOK {
			continue
		}

		weight := rel.Weight
		if weight == 0 {
			weight = 1.0
		}
		for _, level := range expandsLevels {
			for _, sourceUC := range sourceLevels[level] {
				for _, targetUC := range targetLevels[level] {
					links = append(links,
						common.Relationship{
							SourceUCID:   sourceUC,
							TargetUCID:   targetUC,
							Type:         common.RelTypeExpands,
							Weight:       weight,
							GraphRelDesc: rel.Description,
						},
						common.Relationship{
							SourceUCID:   targetUC,
							TargetUCID:   sourceUC,
							Type:         common.RelTypeExpands,
							Weight:       weight,
							GraphRelDesc: rel.Description,
						},
					)
				}
			}
		}
	}
	if skippedMissing > 0 {
		logger.Warn("Graph relationships skipped due to unmapped entities", "skipped", skippedMissing)
	}
	return links
}

// appendAvoidingDuplicates merges new relationships into existing ones,
// keyed by (source, target, type).
func appendAvoidingDuplicates(existing, incoming []common.Relationship) []common.Relationship {
	type relKey struct {
		source, target, relType string
	}
	seen := make(map[relKey]struct{}, len(existing))
	for _, r := range existing {
		seen[relKey{r.SourceUCID, r.TargetUCID, r.Type}] = struct{}{}
	}

	merged := existing
	for _, r := range incoming {
		key := relKey{r.SourceUCID, r.TargetUCID, r.Type}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, r)
	}
	return merged
}
