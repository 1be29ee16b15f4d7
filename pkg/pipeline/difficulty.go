package pipeline

import (
	"context"
	"fmt"
	"time"

	"bloomgraph/pkg/batch"
	"bloomgraph/pkg/common"
	"bloomgraph/pkg/logger"
	"bloomgraph/pkg/scheduler"
	"bloomgraph/pkg/store"

	"github.com/google/uuid"
)

// difficultyPayload is the JSON structure the difficulty prompt asks for.
type difficultyPayload struct {
	DifficultyAssessments []struct {
		UCID            string `json:"uc_id"`
		DifficultyScore *int   `json:"difficulty_score"`
		Justification   string `json:"justification"`
	} `json:"difficulty_assessments"`
}

// SubmitDifficultyBatch runs the scheduler over the run's origins, slices
// every comparison group by Bloom level, persists the groups and submits one
// difficulty request per (group, level) pair where all members have a unit at
// that level. Groups are committed to storage before the provider submission
// so results can always be joined back, even if the submission itself fails.
// It returns the provider batch id, or an empty id when nothing was
// submitted.
func (p *Pipeline) SubmitDifficultyBatch(ctx context.Context, runID string) (string, error) {
	logger.Info("Submitting difficulty evaluation batch", "run_id", runID)

	units, err := p.store.ListKnowledgeUnits(ctx, runID, store.UnitFilter{})
	if err != nil {
		return "", err
	}
	if len(units) == 0 {
		logger.Warn("No generated units found, nothing to evaluate", "run_id", runID)
		return "", nil
	}

	origins, err := p.store.GetOrigins(ctx, runID)
	if err != nil {
		return "", err
	}
	if len(origins) == 0 {
		return "", fmt.Errorf("units exist but no origins found for run %s", runID)
	}

	seed := p.cfg.SchedulerSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	sched, err := scheduler.New(origins, scheduler.Config{
		MinEvaluationsPerOrigin: p.cfg.MinEvaluationsPerUC,
		BatchSize:               p.cfg.DifficultyBatchSize,
		MaxAscentLevels:         p.cfg.MaxAscentLevels,
		Seed:                    seed,
	})
	if err != nil {
		return "", fmt.Errorf("failed to construct difficulty scheduler for run %s: %w", runID, err)
	}

	pairings := sched.GenerateOriginPairings()
	if len(pairings) == 0 {
		logger.Warn("Scheduler produced no comparison groups", "run_id", runID)
		return "", nil
	}

	unitsByOriginLevel := make(map[string]map[string]common.KnowledgeUnit)
	for _, u := range units {
		byLevel, ok := unitsByOriginLevel[u.OriginID]
		if !ok {
			byLevel = make(map[string]common.KnowledgeUnit)
			unitsByOriginLevel[u.OriginID] = byLevel
		}
		byLevel[u.BloomLevel] = u
	}

	temperature := p.cfg.DifficultyTemperature
	var requests []batch.Request
	var groupsToSave []common.ComparisonGroup

	for _, pairing := range pairings {
		for _, bloomLevel := range common.BloomOrder {
			groupUnits := make([]common.KnowledgeUnit, 0, len(pairing.OriginIDs))
			for _, originID := range pairing.OriginIDs {
				unit, ok := unitsByOriginLevel[originID][bloomLevel]
				if !ok || unit.UCID == "" || unit.Text == "" {
					// One missing unit invalidates this (group, level) slice.
					groupUnits = nil
					break
				}
				groupUnits = append(groupUnits, unit)
			}
			if len(groupUnits) != p.cfg.DifficultyBatchSize {
				continue
			}

			groupID := uuid.NewString()
			groupsToSave = append(groupsToSave, common.ComparisonGroup{
				GroupID:        groupID,
				OriginIDs:      pairing.OriginIDs,
				CoherenceLevel: pairing.CoherenceLevel,
				SeedOriginID:   pairing.SeedOriginID,
				BloomLevel:     bloomLevel,
			})

			requests = append(requests, batch.Request{
				Metadata: batch.Metadata{
					Type:              batch.KindDifficulty,
					RunID:             runID,
					ComparisonGroupID: groupID,
					BloomLevel:        bloomLevel,
					CoherenceLevel:    pairing.CoherenceLevel,
				},
				Messages: []batch.Message{
					{Role: "system", Content: DifficultySystemPrompt},
					{Role: "user", Content: FormatDifficultyPrompt(groupUnits)},
				},
				Config: batch.RequestConfig{
					Model:          p.cfg.Model,
					Temperature:    &temperature,
					ResponseFormat: batch.JSONSchemaFormat("difficulty_assessments", difficultyPayload{}),
				},
			})
		}
	}

	if len(requests) == 0 {
		logger.Warn(
			"No comparison group had complete unit coverage at any Bloom level",
			"run_id", runID, "pairings", len(pairings),
		)
		return "", nil
	}

	if err := p.store.SaveComparisonGroups(ctx, runID, groupsToSave); err != nil {
		return "", fmt.Errorf("failed to persist comparison groups for run %s: %w", runID, err)
	}

	batchID, err := p.submitBatch(ctx, runID, "UC Difficulty Evaluation Batch", common.BatchKindDifficulty, requests)
	if err != nil {
		return "", err
	}

	logger.Info(
		"Difficulty evaluation batch submitted",
		"run_id", runID, "batch_id", batchID, "groups", len(groupsToSave), "requests", len(requests),
	)
	return batchID, nil
}

// ProcessDifficultyBatch downloads and parses the results of a completed
// difficulty batch and persists the raw per-unit evaluations.
func (p *Pipeline) ProcessDifficultyBatch(ctx context.Context, runID, batchID string) error {
	logger.Info("Processing difficulty batch results", "run_id", runID, "batch_id", batchID)

	responses, err := p.fetchBatchResults(ctx, batchID)
	if err != nil {
		return err
	}

	var evaluations []common.DifficultyEvaluation
	lineErrors := 0
	for _, resp := range responses {
		groupID := resp.Metadata.ComparisonGroupID
		if resp.Failed() {
			logger.Error(
				"Difficulty request failed at the provider",
				"run_id", runID, "group_id", groupID, "error", resp.ErrMessage,
			)
			lineErrors++
			continue
		}
		if groupID == "" {
			logger.Error("Difficulty response has no comparison group id", "run_id", runID, "custom_id", resp.Metadata.Raw)
			lineErrors++
			continue
		}

		var payload difficultyPayload
		if err := batch.UnmarshalFlexible(resp.Content, &payload); err != nil {
			logger.Error(
				"Failed to parse difficulty response",
				"run_id", runID, "group_id", groupID, "error", err,
			)
			lineErrors++
			continue
		}

		for _, assessment := range payload.DifficultyAssessments {
			if assessment.UCID == "" {
				logger.Warn("Assessment without uc_id skipped", "run_id", runID, "group_id", groupID)
				lineErrors++
				continue
			}
			if assessment.DifficultyScore == nil || *assessment.DifficultyScore < 0 || *assessment.DifficultyScore > 100 {
				logger.Warn(
					"Assessment with invalid difficulty score skipped",
					"run_id", runID, "group_id", groupID, "uc_id", assessment.UCID,
				)
				lineErrors++
				continue
			}
			evaluations = append(evaluations, common.DifficultyEvaluation{
				ComparisonGroupID: groupID,
				UCID:              assessment.UCID,
				DifficultyScore:   *assessment.DifficultyScore,
				Justification:     assessment.Justification,
				PipelineRunID:     runID,
			})
		}
	}

	if len(evaluations) == 0 {
		if lineErrors > 0 {
			return fmt.Errorf("difficulty batch %s produced no usable evaluations (%d line errors)", batchID, lineErrors)
		}
		logger.Warn("Difficulty batch produced no evaluations", "run_id", runID, "batch_id", batchID)
		return nil
	}

	if err := p.store.SaveEvaluations(ctx, runID, evaluations); err != nil {
		return err
	}
	if err := p.store.UpdateBatchJobStatus(ctx, batchID, batch.StatusCompleted); err != nil {
		return err
	}

	logger.Info(
		"Difficulty batch processed",
		"run_id", runID, "batch_id", batchID, "evaluations", len(evaluations), "line_errors", lineErrors,
	)
	return nil
}
