package pipeline

import (
	"context"
	"fmt"
	"math"
	"strings"

	"bloomgraph/pkg/common"
	"bloomgraph/pkg/logger"
	"bloomgraph/pkg/store"
)

// notEvaluatedJustification marks units that never received a valid score.
const notEvaluatedJustification = "Not evaluated"

// FinalizeOutputs aggregates raw difficulty evaluations into final per-unit
// scores and marks the run successful. Units without any valid evaluation
// keep a nil score and the "Not evaluated" justification. A failure during
// aggregation transitions the run to finalize_failed instead of failed, so
// the intermediate data stays available for a retry.
func (p *Pipeline) FinalizeOutputs(ctx context.Context, runID string) error {
	logger.Info("Finalizing run outputs", "run_id", runID)

	run, err := p.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status == common.RunStatusSuccess {
		logger.Info("Run is already finalized", "run_id", runID)
		return nil
	}

	if err := p.finalize(ctx, runID); err != nil {
		logger.Error("Finalization failed", "run_id", runID, "error", err)
		if statusErr := p.store.UpdateRunStatus(ctx, runID, common.RunStatusFinalizeFailed); statusErr != nil {
			logger.Error("Failed to mark run as finalize_failed", "run_id", runID, "error", statusErr)
		}
		return err
	}

	if err := p.store.UpdateRunStatus(ctx, runID, common.RunStatusSuccess); err != nil {
		return err
	}
	logger.Info("Run finalized", "run_id", runID)
	return nil
}

func (p *Pipeline) finalize(ctx context.Context, runID string) error {
	units, err := p.store.ListKnowledgeUnits(ctx, runID, store.UnitFilter{})
	if err != nil {
		return err
	}
	if len(units) == 0 {
		return fmt.Errorf("no generated units found for run %s, nothing to finalize", runID)
	}

	evaluations, err := p.store.GetEvaluations(ctx, runID)
	if err != nil {
		return err
	}
	if len(evaluations) == 0 {
		logger.Warn("No difficulty evaluations found, final units keep empty scores", "run_id", runID)
	}

	finalized, evaluated, minMet := aggregateDifficulty(units, evaluations, p.cfg.MinEvaluationsPerUC)
	logger.Info(
		"Difficulty aggregation complete",
		"run_id", runID, "units", len(finalized), "evaluated", evaluated, "min_evaluations_met", minMet,
	)

	return p.store.SetUnitDifficulties(ctx, runID, finalized)
}

// aggregateDifficulty combines raw evaluations into final unit scores: the
// rounded mean of the unit's scores, the justifications joined with " | " and
// the evaluation count. Units without evaluations get a nil score and the
// not-evaluated marker.
func aggregateDifficulty(
	units []common.KnowledgeUnit,
	evaluations []common.DifficultyEvaluation,
	minEvaluations int,
) (finalized []common.KnowledgeUnit, evaluated, minMet int) {
	scoresByUnit := make(map[string][]int)
	justificationsByUnit := make(map[string][]string)
	for _, e := range evaluations {
		scoresByUnit[e.UCID] = append(scoresByUnit[e.UCID], e.DifficultyScore)
		justificationsByUnit[e.UCID] = append(justificationsByUnit[e.UCID], e.Justification)
	}

	finalized = make([]common.KnowledgeUnit, 0, len(units))
	for _, u := range units {
		scores := scoresByUnit[u.UCID]
		justifications := justificationsByUnit[u.UCID]

		if len(scores) == 0 {
			u.DifficultyScore = nil
			u.DifficultyJustification = notEvaluatedJustification
			u.EvaluationCount = 0
			finalized = append(finalized, u)
			continue
		}

		sum := 0
		for _, s := range scores {
			sum += s
		}
		mean := int(math.Round(float64(sum) / float64(len(scores))))
		u.DifficultyScore = &mean
		u.DifficultyJustification = strings.Join(justifications, " | ")
		u.EvaluationCount = len(justifications)
		finalized = append(finalized, u)

		evaluated++
		if len(scores) >= minEvaluations {
			minMet++
		}
	}
	return finalized, evaluated, minMet
}
