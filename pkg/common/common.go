package common

import "time"

// Origin represents one candidate topic for knowledge-unit generation. An
// origin is either a GraphRAG entity or a community report. Each origin may
// reference a parent community, forming a forest that the difficulty
// scheduler uses to find hierarchically nearby origins.
type Origin struct {
	OriginID          string  `json:"origin_id"`
	OriginType        string  `json:"origin_type"`
	Title             string  `json:"title"`
	Context           string  `json:"context"`
	Frequency         int     `json:"frequency"`
	Degree            int     `json:"degree"`
	EntityType        string  `json:"entity_type"`
	Level             int     `json:"level"`
	ParentCommunityID *string `json:"parent_community_id_of_origin"`
}

// Origin type discriminators. Comparison groups are only ever formed among
// origins sharing the same type.
const (
	OriginTypeEntity          = "entity"
	OriginTypeCommunityReport = "community_report"
)

// KnowledgeUnit is one generated learning-objective statement (UC) tied to an
// origin and a Bloom's-taxonomy level. Raw units come straight out of a
// generation batch; final units additionally carry aggregated difficulty
// fields filled in by the finalize stage.
type KnowledgeUnit struct {
	UCID          string `json:"uc_id"`
	OriginID      string `json:"origin_id"`
	BloomLevel    string `json:"bloom_level"`
	Text          string `json:"uc_text"`
	PipelineRunID string `json:"pipeline_run_id"`

	DifficultyScore         *int   `json:"difficulty_score,omitempty"`
	DifficultyJustification string `json:"difficulty_justification,omitempty"`
	EvaluationCount         int    `json:"evaluation_count"`
}

// ComparisonGroup is a fixed-size set of origins whose knowledge units are
// submitted together to the LLM for relative difficulty scoring. OriginIDs is
// sorted so the group has a canonical, order-independent representation.
type ComparisonGroup struct {
	GroupID        string   `json:"comparison_group_id,omitempty"`
	OriginIDs      []string `json:"origin_ids"`
	CoherenceLevel string   `json:"coherence_level"`
	SeedOriginID   string   `json:"seed_id_for_batch"`
	BloomLevel     string   `json:"bloom_level,omitempty"`
}

// DifficultyEvaluation is one raw per-unit score parsed from a difficulty
// batch result line, before aggregation into final scores.
type DifficultyEvaluation struct {
	ComparisonGroupID string `json:"comparison_group_id"`
	UCID              string `json:"uc_id"`
	DifficultyScore   int    `json:"difficulty_score"`
	Justification     string `json:"justification"`
	PipelineRunID     string `json:"pipeline_run_id"`
}

// Relationship types between knowledge units.
const (
	RelTypeRequires = "REQUIRES"
	RelTypeExpands  = "EXPANDS"
)

// Relationship is a directed edge between two knowledge units. REQUIRES links
// consecutive Bloom levels within one origin; EXPANDS links same-level units
// of origins connected in the source graph.
type Relationship struct {
	SourceUCID    string  `json:"source"`
	TargetUCID    string  `json:"target"`
	Type          string  `json:"type"`
	Weight        float64 `json:"weight"`
	GraphRelDesc  *string `json:"graphrag_rel_desc,omitempty"`
	PipelineRunID string  `json:"pipeline_run_id,omitempty"`
}

// Pipeline run lifecycle states.
const (
	RunStatusRunning        = "running"
	RunStatusSuccess        = "success"
	RunStatusFinalizeFailed = "finalize_failed"
	RunStatusFailed         = "failed"
)

// PipelineRun tracks one end-to-end enrichment run over a GraphRAG snapshot.
type PipelineRun struct {
	RunID         string     `json:"run_id"`
	Status        string     `json:"status"`
	TriggerSource string     `json:"trigger_source,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// BatchJob records one LLM provider batch submission for a run.
type BatchJob struct {
	BatchID       string    `json:"batch_id"`
	PipelineRunID string    `json:"pipeline_run_id"`
	Kind          string    `json:"kind"`
	Status        string    `json:"status"`
	InputFileID   string    `json:"input_file_id"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// Batch job kinds.
const (
	BatchKindGeneration = "uc_generation"
	BatchKindDifficulty = "difficulty_assessment"
)

// GraphEntity is an entity row from the GraphRAG output.
type GraphEntity struct {
	ID                string  `json:"id"`
	Title             string  `json:"title"`
	Description       string  `json:"description"`
	Type              string  `json:"type"`
	Frequency         int     `json:"frequency"`
	Degree            int     `json:"degree"`
	ParentCommunityID *string `json:"parent_community_id,omitempty"`
}

// GraphCommunity is a community row from the GraphRAG output. Parent linkage
// arrives as a human-readable id and is resolved to a UUID during origin
// preparation.
type GraphCommunity struct {
	ID                string   `json:"id"`
	HumanReadableID   string   `json:"human_readable_id"`
	Title             string   `json:"title"`
	Level             int      `json:"level"`
	ParentHRID        *string  `json:"parent,omitempty"`
	ParentCommunityID *string  `json:"parent_community_id,omitempty"`
	EntityIDs         []string `json:"entity_ids,omitempty"`
}

// GraphCommunityReport is a community report row from the GraphRAG output.
type GraphCommunityReport struct {
	ID            string  `json:"id"`
	CommunityHRID *string `json:"community,omitempty"`
	Title         string  `json:"title"`
	Summary       string  `json:"summary"`
	Level         int     `json:"level"`
}

// GraphRelationship is a relationship row from the GraphRAG output. Source
// and Target are entity titles, not ids.
type GraphRelationship struct {
	Source      string  `json:"source"`
	Target      string  `json:"target"`
	Weight      float64 `json:"weight"`
	Description *string `json:"description,omitempty"`
}
