// Package pipeline implements the enrichment stages that turn a GraphRAG
// snapshot into difficulty-scored knowledge units: origin preparation,
// generation and difficulty batch submission/processing, relationship
// definition and final output aggregation.
package pipeline

import (
	"bloomgraph/pkg/batch"
	"bloomgraph/pkg/store"
)

// Config carries the tunable parameters of a pipeline instance.
type Config struct {
	// Model is the LLM used for both generation and difficulty batches.
	Model string
	// GenerationTemperature is the sampling temperature for UC generation.
	GenerationTemperature float64
	// DifficultyTemperature is the sampling temperature for difficulty
	// assessment.
	DifficultyTemperature float64

	// DifficultyBatchSize is the comparison-group size.
	DifficultyBatchSize int
	// MinEvaluationsPerUC is the per-origin evaluation coverage target.
	MinEvaluationsPerUC int
	// MaxAscentLevels bounds the scheduler's hierarchical neighbor search.
	MaxAscentLevels int
	// SchedulerSeed seeds the scheduler PRNG. Zero seeds from the clock;
	// fix it for reproducible runs.
	SchedulerSeed int64

	// MaxOriginsForTesting, when positive, restricts generation to a hub
	// entity and its graph neighbors.
	MaxOriginsForTesting int

	// ContextTokenBudget caps the origin context embedded into generation
	// prompts. Zero disables truncation.
	ContextTokenBudget int
}

// Pipeline wires the persistence layer and the LLM batch provider into the
// run stages. One Pipeline instance serves any number of runs.
type Pipeline struct {
	store store.PipelineStorage
	llm   batch.Client
	cfg   Config
}

// New creates a Pipeline over the given storage and batch provider.
func New(storage store.PipelineStorage, llm batch.Client, cfg Config) *Pipeline {
	return &Pipeline{
		store: storage,
		llm:   llm,
		cfg:   cfg,
	}
}
