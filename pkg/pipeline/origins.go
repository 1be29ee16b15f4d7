package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"bloomgraph/pkg/common"
	"bloomgraph/pkg/logger"
)

// GraphSnapshot bundles the GraphRAG output rows one run starts from.
type GraphSnapshot struct {
	Entities      []common.GraphEntity
	Communities   []common.GraphCommunity
	Reports       []common.GraphCommunityReport
	Relationships []common.GraphRelationship
}

// PrepareOrigins ingests a GraphRAG snapshot and derives the knowledge-unit
// origins for a run: one origin per entity (level 0, parent resolved through
// community membership) and one per community report (parent resolved through
// the community hierarchy). The call is idempotent; a run that already has
// origins is left untouched.
func (p *Pipeline) PrepareOrigins(ctx context.Context, runID string, snapshot GraphSnapshot) error {
	logger.Info("Preparing knowledge-unit origins", "run_id", runID)

	if len(snapshot.Entities) == 0 {
		return fmt.Errorf("graph snapshot for run %s contains no entities", runID)
	}
	if len(snapshot.Communities) == 0 {
		return fmt.Errorf("graph snapshot for run %s contains no communities", runID)
	}

	existing, err := p.store.GetOrigins(ctx, runID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		logger.Info("Origins already exist, skipping preparation", "run_id", runID, "origins", len(existing))
		return nil
	}

	hrToUUID, communityParents, entityToCommunity := buildCommunityMaps(snapshot.Communities)

	// Resolve parent linkage before the snapshot is persisted, so stored rows
	// already carry UUID references.
	for i := range snapshot.Communities {
		c := &snapshot.Communities[i]
		if parent := resolveParentUUID(c.ParentHRID, hrToUUID); parent != nil {
			c.ParentCommunityID = parent
		}
	}
	for i := range snapshot.Entities {
		e := &snapshot.Entities[i]
		if communityID, ok := entityToCommunity[e.ID]; ok {
			id := communityID
			e.ParentCommunityID = &id
		}
	}

	origins := prepareUCOrigins(snapshot.Entities, snapshot.Reports, communityParents, hrToUUID)
	if len(origins) == 0 {
		return fmt.Errorf("no origins could be prepared for run %s", runID)
	}

	if err := p.store.SaveGraphSnapshot(ctx, runID, snapshot.Entities, snapshot.Communities, snapshot.Reports, snapshot.Relationships); err != nil {
		return err
	}
	if err := p.store.SaveOrigins(ctx, runID, origins); err != nil {
		return err
	}

	logger.Info("Origin preparation complete", "run_id", runID, "origins", len(origins))
	return nil
}

// buildCommunityMaps derives the lookup maps origin preparation needs: the
// human-readable id to UUID map, each community's parent UUID, and the
// membership map from entity id to its (leaf) community UUID.
func buildCommunityMaps(communities []common.GraphCommunity) (
	hrToUUID map[string]string,
	communityParents map[string]*string,
	entityToCommunity map[string]string,
) {
	hrToUUID = make(map[string]string, len(communities))
	for _, c := range communities {
		if c.HumanReadableID == "" {
			logger.Warn("Community has no human_readable_id and cannot be referenced as a parent", "community_id", c.ID)
			continue
		}
		hrToUUID[c.HumanReadableID] = c.ID
	}

	communityParents = make(map[string]*string, len(communities))
	entityToCommunity = make(map[string]string)
	for _, c := range communities {
		communityParents[c.ID] = resolveParentUUID(c.ParentHRID, hrToUUID)
	}
	// Deeper communities win so entities map to their leaf community.
	sorted := make([]common.GraphCommunity, len(communities))
	copy(sorted, communities)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Level < sorted[j].Level })
	for _, c := range sorted {
		for _, entityID := range c.EntityIDs {
			if entityID == "" {
				continue
			}
			entityToCommunity[entityID] = c.ID
		}
	}
	return hrToUUID, communityParents, entityToCommunity
}

func resolveParentUUID(parentHRID *string, hrToUUID map[string]string) *string {
	if parentHRID == nil {
		return nil
	}
	hr := strings.TrimSpace(*parentHRID)
	if hr == "" || hr == "-1" {
		return nil
	}
	if uuid, ok := hrToUUID[hr]; ok {
		return &uuid
	}
	logger.Warn("Parent community id is not mapped to a UUID", "parent_hr_id", hr)
	return nil
}

func prepareUCOrigins(
	entities []common.GraphEntity,
	reports []common.GraphCommunityReport,
	communityParents map[string]*string,
	hrToUUID map[string]string,
) []common.Origin {
	origins := make([]common.Origin, 0, len(entities)+len(reports))

	for _, e := range entities {
		if e.ID == "" {
			logger.Warn("Entity without id skipped during origin preparation", "title", e.Title)
			continue
		}
		entityType := e.Type
		if entityType == "" {
			entityType = "unknown"
		}
		origins = append(origins, common.Origin{
			OriginID:          e.ID,
			OriginType:        common.OriginTypeEntity,
			Title:             e.Title,
			Context:           e.Description,
			Frequency:         e.Frequency,
			Degree:            e.Degree,
			EntityType:        entityType,
			Level:             0,
			ParentCommunityID: e.ParentCommunityID,
		})
	}

	for _, r := range reports {
		if r.CommunityHRID == nil || *r.CommunityHRID == "" {
			logger.Warn("Community report has no community reference, skipping origin", "title", r.Title)
			continue
		}
		communityUUID, ok := hrToUUID[*r.CommunityHRID]
		if !ok {
			logger.Warn(
				"Community report references an unmapped community, skipping origin",
				"title", r.Title, "community_hr_id", *r.CommunityHRID,
			)
			continue
		}
		origins = append(origins, common.Origin{
			OriginID:          communityUUID,
			OriginType:        common.OriginTypeCommunityReport,
			Title:             r.Title,
			Context:           r.Summary,
			EntityType:        "community",
			Level:             r.Level,
			ParentCommunityID: communityParents[communityUUID],
		})
	}

	return origins
}

// originSortKey ranks origins for selection: community reports first (higher
// levels last), then entities by connectivity, with person entities ranked
// below other entity types.
func originSortKey(o common.Origin) (typePriority int, negScore int) {
	switch o.OriginType {
	case common.OriginTypeCommunityReport:
		return 1, -(10000 - o.Level)
	case common.OriginTypeEntity:
		score := o.Degree*10 + o.Frequency
		switch strings.ToLower(o.EntityType) {
		case "person":
			return 3, -score
		case "organization", "geo", "event", "unknown":
			return 2, -score
		default:
			return 1, -score
		}
	}
	return 2, 0
}

func sortOrigins(origins []common.Origin) {
	sort.SliceStable(origins, func(i, j int) bool {
		pi, si := originSortKey(origins[i])
		pj, sj := originSortKey(origins[j])
		if pi != pj {
			return pi < pj
		}
		return si < sj
	})
}

// OriginSelector narrows the origin set a generation batch covers.
type OriginSelector interface {
	Select(origins []common.Origin) []common.Origin
}

// DefaultSelector returns all origins, or the top maxOrigins by sort key when
// a positive limit is set.
type DefaultSelector struct {
	MaxOrigins int
}

func (s DefaultSelector) Select(origins []common.Origin) []common.Origin {
	if s.MaxOrigins <= 0 || len(origins) <= s.MaxOrigins {
		return origins
	}
	sorted := make([]common.Origin, len(origins))
	copy(sorted, origins)
	sortOrigins(sorted)
	return sorted[:s.MaxOrigins]
}

// HubNeighborSelector picks the best-connected entity origin and its direct
// graph neighbors, for small smoke-test runs over a coherent subgraph.
type HubNeighborSelector struct {
	MaxOrigins    int
	Entities      []common.GraphEntity
	Relationships []common.GraphRelationship
}

func (s HubNeighborSelector) Select(origins []common.Origin) []common.Origin {
	if len(origins) <= s.MaxOrigins {
		return origins
	}

	var entityOrigins []common.Origin
	for _, o := range origins {
		if o.OriginType == common.OriginTypeEntity {
			entityOrigins = append(entityOrigins, o)
		}
	}
	if len(entityOrigins) == 0 {
		logger.Warn("No entity origins available for hub selection, falling back to ranked selection")
		return DefaultSelector{MaxOrigins: s.MaxOrigins}.Select(origins)
	}

	sortOrigins(entityOrigins)
	hub := entityOrigins[0]
	logger.Info("Selected hub origin for test run", "origin_id", hub.OriginID, "title", hub.Title)

	titleToID := make(map[string]string, len(s.Entities))
	for _, e := range s.Entities {
		titleToID[e.Title] = e.ID
	}

	selectedIDs := map[string]struct{}{hub.OriginID: {}}
	for _, rel := range s.Relationships {
		if len(selectedIDs) >= s.MaxOrigins {
			break
		}
		sourceID := titleToID[rel.Source]
		targetID := titleToID[rel.Target]
		if sourceID == hub.OriginID && targetID != "" && targetID != hub.OriginID {
			selectedIDs[targetID] = struct{}{}
		} else if targetID == hub.OriginID && sourceID != "" && sourceID != hub.OriginID {
			selectedIDs[sourceID] = struct{}{}
		}
	}

	var selected []common.Origin
	for _, o := range origins {
		if _, ok := selectedIDs[o.OriginID]; ok {
			selected = append(selected, o)
		}
	}
	sortOrigins(selected)
	return selected
}
