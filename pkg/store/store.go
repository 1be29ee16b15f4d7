// Package store defines the persistence contract for pipeline data. The
// concrete implementation lives in the pgx subpackage.
package store

import (
	"context"
	"errors"

	"bloomgraph/pkg/common"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// UnitFilter narrows ListKnowledgeUnits results. Zero values mean "no
// constraint".
type UnitFilter struct {
	OriginID      string
	BloomLevel    string
	MinDifficulty *int
	MaxDifficulty *int
	EvaluatedOnly bool
}

// RelationshipFilter narrows ListRelationships results.
type RelationshipFilter struct {
	Type     string
	SourceID string
	TargetID string
}

// PipelineStorage defines the interface for persisting and querying pipeline
// runs, graph snapshots, origins, knowledge units, batch jobs, comparison
// groups, evaluations and unit relationships.
type PipelineStorage interface {
	CreateRun(ctx context.Context, run common.PipelineRun) error
	GetRun(ctx context.Context, runID string) (common.PipelineRun, error)
	ListRuns(ctx context.Context) ([]common.PipelineRun, error)
	UpdateRunStatus(ctx context.Context, runID, status string) error

	SaveGraphSnapshot(
		ctx context.Context,
		runID string,
		entities []common.GraphEntity,
		communities []common.GraphCommunity,
		reports []common.GraphCommunityReport,
		relationships []common.GraphRelationship,
	) error
	GetGraphEntities(ctx context.Context, runID string) ([]common.GraphEntity, error)
	GetGraphCommunities(ctx context.Context, runID string) ([]common.GraphCommunity, error)
	GetGraphCommunityReports(ctx context.Context, runID string) ([]common.GraphCommunityReport, error)
	GetGraphRelationships(ctx context.Context, runID string) ([]common.GraphRelationship, error)

	SaveOrigins(ctx context.Context, runID string, origins []common.Origin) error
	GetOrigins(ctx context.Context, runID string) ([]common.Origin, error)

	SaveKnowledgeUnits(ctx context.Context, runID string, units []common.KnowledgeUnit) error
	ListKnowledgeUnits(ctx context.Context, runID string, filter UnitFilter) ([]common.KnowledgeUnit, error)
	SetUnitDifficulties(ctx context.Context, runID string, units []common.KnowledgeUnit) error

	CreateBatchJob(ctx context.Context, job common.BatchJob) error
	UpdateBatchJobStatus(ctx context.Context, batchID, status string) error
	GetBatchJob(ctx context.Context, batchID string) (common.BatchJob, error)
	ListBatchJobs(ctx context.Context, runID string) ([]common.BatchJob, error)

	SaveComparisonGroups(ctx context.Context, runID string, groups []common.ComparisonGroup) error
	GetComparisonGroups(ctx context.Context, runID string) ([]common.ComparisonGroup, error)

	SaveEvaluations(ctx context.Context, runID string, evaluations []common.DifficultyEvaluation) error
	GetEvaluations(ctx context.Context, runID string) ([]common.DifficultyEvaluation, error)

	SaveRelationships(ctx context.Context, runID string, relationships []common.Relationship) error
	ListRelationships(ctx context.Context, runID string, filter RelationshipFilter) ([]common.Relationship, error)
}

// ChunkRange invokes fn over [start, end) chunks covering total elements.
func ChunkRange(total, chunkSize int, fn func(start, end int) error) error {
	if total <= 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = total
	}
	for start := 0; start < total; start += chunkSize {
		end := min(start+chunkSize, total)
		if err := fn(start, end); err != nil {
			return err
		}
	}
	return nil
}
