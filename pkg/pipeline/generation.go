package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"bloomgraph/pkg/batch"
	"bloomgraph/pkg/common"
	"bloomgraph/pkg/logger"

	"github.com/google/uuid"
)

// generationPayload is the JSON structure the generation prompt asks for.
type generationPayload struct {
	GeneratedUnits []struct {
		BloomLevel string `json:"bloom_level"`
		UCText     string `json:"uc_text"`
	} `json:"generated_units"`
}

// SubmitGenerationBatch builds one generation request per selected origin,
// uploads the JSONL file and starts the provider batch job. It returns the
// provider batch id, or an empty id when there is nothing to submit.
func (p *Pipeline) SubmitGenerationBatch(ctx context.Context, runID string) (string, error) {
	logger.Info("Submitting UC generation batch", "run_id", runID)

	origins, err := p.store.GetOrigins(ctx, runID)
	if err != nil {
		return "", err
	}
	if len(origins) == 0 {
		logger.Warn("No origins found, nothing to submit for generation", "run_id", runID)
		return "", nil
	}

	selected := p.selectOrigins(ctx, runID, origins)
	if len(selected) == 0 {
		logger.Warn("No origins selected after filtering, nothing to submit", "run_id", runID)
		return "", nil
	}

	temperature := p.cfg.GenerationTemperature
	requests := make([]batch.Request, 0, len(selected))
	for _, origin := range selected {
		prompt, err := FormatGenerationPrompt(origin, p.cfg.ContextTokenBudget)
		if err != nil {
			return "", fmt.Errorf("failed to format generation prompt for origin %s: %w", origin.OriginID, err)
		}
		requests = append(requests, batch.Request{
			Metadata: batch.Metadata{
				Type:     batch.KindGeneration,
				RunID:    runID,
				OriginID: origin.OriginID,
			},
			Messages: []batch.Message{
				{Role: "system", Content: GenerationSystemPrompt},
				{Role: "user", Content: prompt},
			},
			Config: batch.RequestConfig{
				Model:          p.cfg.Model,
				Temperature:    &temperature,
				ResponseFormat: batch.JSONSchemaFormat("generated_units", generationPayload{}),
			},
		})
	}

	batchID, err := p.submitBatch(ctx, runID, "UC Generation Batch", common.BatchKindGeneration, requests)
	if err != nil {
		return "", err
	}

	logger.Info("UC generation batch submitted", "run_id", runID, "batch_id", batchID, "requests", len(requests))
	return batchID, nil
}

// ProcessGenerationBatch downloads and parses the results of a completed
// generation batch and persists the raw knowledge units. It fails when the
// job is not completed or when every result line was unusable.
func (p *Pipeline) ProcessGenerationBatch(ctx context.Context, runID, batchID string) error {
	logger.Info("Processing UC generation batch results", "run_id", runID, "batch_id", batchID)

	responses, err := p.fetchBatchResults(ctx, batchID)
	if err != nil {
		return err
	}

	var units []common.KnowledgeUnit
	lineErrors := 0
	for _, resp := range responses {
		if resp.Failed() {
			logger.Error(
				"Generation request failed at the provider",
				"run_id", runID, "origin_id", resp.Metadata.OriginID, "error", resp.ErrMessage,
			)
			lineErrors++
			continue
		}

		var payload generationPayload
		if err := batch.UnmarshalFlexible(resp.Content, &payload); err != nil {
			logger.Error(
				"Failed to parse generation response",
				"run_id", runID, "origin_id", resp.Metadata.OriginID, "error", err,
			)
			lineErrors++
			continue
		}

		for _, unit := range payload.GeneratedUnits {
			if !common.IsBloomLevel(unit.BloomLevel) || unit.UCText == "" {
				logger.Warn(
					"Skipping malformed generated unit",
					"run_id", runID, "origin_id", resp.Metadata.OriginID, "bloom_level", unit.BloomLevel,
				)
				lineErrors++
				continue
			}
			units = append(units, common.KnowledgeUnit{
				UCID:          uuid.NewString(),
				OriginID:      resp.Metadata.OriginID,
				BloomLevel:    unit.BloomLevel,
				Text:          unit.UCText,
				PipelineRunID: runID,
			})
		}
	}

	if len(units) == 0 {
		if lineErrors > 0 {
			return fmt.Errorf("generation batch %s produced no usable units (%d line errors)", batchID, lineErrors)
		}
		logger.Warn("Generation batch produced no units", "run_id", runID, "batch_id", batchID)
		return nil
	}

	if err := p.store.SaveKnowledgeUnits(ctx, runID, units); err != nil {
		return err
	}
	if err := p.store.UpdateBatchJobStatus(ctx, batchID, batch.StatusCompleted); err != nil {
		return err
	}

	logger.Info(
		"UC generation batch processed",
		"run_id", runID, "batch_id", batchID, "units", len(units), "line_errors", lineErrors,
	)
	return nil
}

func (p *Pipeline) selectOrigins(ctx context.Context, runID string, origins []common.Origin) []common.Origin {
	if p.cfg.MaxOriginsForTesting <= 0 {
		return DefaultSelector{}.Select(origins)
	}

	entities, err := p.store.GetGraphEntities(ctx, runID)
	if err != nil {
		logger.Warn("Could not load graph entities for hub selection, using ranked selection", "run_id", runID, "error", err)
		return DefaultSelector{MaxOrigins: p.cfg.MaxOriginsForTesting}.Select(origins)
	}
	relationships, err := p.store.GetGraphRelationships(ctx, runID)
	if err != nil {
		logger.Warn("Could not load graph relationships for hub selection, using ranked selection", "run_id", runID, "error", err)
		return DefaultSelector{MaxOrigins: p.cfg.MaxOriginsForTesting}.Select(origins)
	}

	return HubNeighborSelector{
		MaxOrigins:    p.cfg.MaxOriginsForTesting,
		Entities:      entities,
		Relationships: relationships,
	}.Select(origins)
}

// submitBatch writes the requests as JSONL, uploads them, creates the
// provider job and records it. The job row is written after submission
// because the provider id only exists then.
func (p *Pipeline) submitBatch(
	ctx context.Context,
	runID string,
	description string,
	kind string,
	requests []batch.Request,
) (string, error) {
	var buf bytes.Buffer
	if err := batch.WriteRequests(&buf, requests, batch.ChatEndpoint); err != nil {
		return "", fmt.Errorf("failed to build batch input file: %w", err)
	}

	fileID, err := p.llm.UploadBatchFile(ctx, &buf)
	if err != nil {
		return "", err
	}

	batchID, err := p.llm.CreateBatchJob(ctx, fileID, batch.ChatEndpoint, map[string]string{
		"description": fmt.Sprintf("%s for run_id %s", description, runID),
	})
	if err != nil {
		return "", err
	}

	err = p.store.CreateBatchJob(ctx, common.BatchJob{
		BatchID:       batchID,
		PipelineRunID: runID,
		Kind:          kind,
		Status:        batch.StatusValidating,
		InputFileID:   fileID,
		SubmittedAt:   time.Now().UTC(),
	})
	if err != nil {
		return "", err
	}
	return batchID, nil
}

// fetchBatchResults verifies a job is completed and returns its parsed output
// lines. An existing error file is logged but does not abort processing.
func (p *Pipeline) fetchBatchResults(ctx context.Context, batchID string) ([]batch.Response, error) {
	status, err := p.llm.GetBatchStatus(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if status.Status != batch.StatusCompleted {
		return nil, fmt.Errorf("batch %s is not completed (status: %s)", batchID, status.Status)
	}
	if status.OutputFileID == "" {
		return nil, fmt.Errorf("batch %s is completed but has no output file", batchID)
	}

	if status.ErrorFileID != "" {
		errContent, err := p.llm.ReadFile(ctx, status.ErrorFileID)
		if err != nil {
			logger.Error("Failed to read batch error file", "batch_id", batchID, "error", err)
		} else {
			preview := errContent
			if len(preview) > 1000 {
				preview = preview[:1000]
			}
			logger.Warn("Batch finished with an error file", "batch_id", batchID, "content", string(preview))
		}
	}

	content, err := p.llm.ReadFile(ctx, status.OutputFileID)
	if err != nil {
		return nil, err
	}

	responses, malformed := batch.ParseOutputFile(content)
	if malformed > 0 {
		logger.Warn("Batch output contained malformed lines", "batch_id", batchID, "malformed", malformed)
	}
	return responses, nil
}
