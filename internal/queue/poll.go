package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"bloomgraph/internal/storage"
	"bloomgraph/pkg/batch"
	"bloomgraph/pkg/common"
	"bloomgraph/pkg/logger"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rabbitmq/amqp091-go"
)

// ProcessPollMessage checks one provider batch job. A still-running job is
// rescheduled through the poll retry queue; a completed job is processed and
// the run advances to its next stage; a terminally failed job fails the run.
func ProcessPollMessage(
	ctx context.Context,
	s3Client *awss3.Client,
	llm batch.Client,
	ch *amqp091.Channel,
	conn *pgxpool.Pool,
	msg string,
) error {
	data := new(PollBatchMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return err
	}
	if data.RunID == "" || data.BatchID == "" {
		return fmt.Errorf("poll message is missing run_id or batch_id")
	}

	p, storageClient := newPipeline(conn, llm)

	status, err := llm.GetBatchStatus(ctx, data.BatchID)
	if err != nil {
		return fmt.Errorf("failed to fetch status of batch %s: %w", data.BatchID, err)
	}
	logger.Debug(
		"[Queue] Polled batch status",
		"run_id", data.RunID, "batch_id", data.BatchID, "kind", data.Kind, "status", status.Status, "attempt", data.Attempt,
	)

	if !batch.IsTerminal(status.Status) {
		if err := storageClient.UpdateBatchJobStatus(ctx, data.BatchID, status.Status); err != nil {
			logger.Warn("[Queue] Failed to record batch status", "batch_id", data.BatchID, "err", err)
		}
		data.Attempt++
		body, err := json.Marshal(data)
		if err != nil {
			return err
		}
		return PublishDelayed(ch, PollQueue, body)
	}

	if status.Status != batch.StatusCompleted {
		logger.Error(
			"[Queue] Batch ended without completing, failing run",
			"run_id", data.RunID, "batch_id", data.BatchID, "status", status.Status,
		)
		if err := storageClient.UpdateBatchJobStatus(ctx, data.BatchID, status.Status); err != nil {
			logger.Warn("[Queue] Failed to record batch status", "batch_id", data.BatchID, "err", err)
		}
		if err := storageClient.UpdateRunStatus(ctx, data.RunID, common.RunStatusFailed); err != nil {
			logger.Error("[Queue] Failed to mark run as failed", "run_id", data.RunID, "err", err)
		}
		publishRunEvent(ch, RunEventMsg{RunID: data.RunID, Stage: data.Kind, Status: "failed", Detail: status.Status})
		return nil
	}

	switch data.Kind {
	case common.BatchKindGeneration:
		if err := p.ProcessGenerationBatch(ctx, data.RunID, data.BatchID); err != nil {
			return err
		}
		archiveBatch(ctx, s3Client, llm, storageClient, data.RunID, data.BatchID, status)
		publishRunEvent(ch, RunEventMsg{RunID: data.RunID, Stage: "generation", Status: "completed"})

		difficultyBatchID, err := p.SubmitDifficultyBatch(ctx, data.RunID)
		if err != nil {
			return err
		}
		if difficultyBatchID == "" {
			logger.Warn("[Queue] No difficulty batch to submit, skipping to relationships", "run_id", data.RunID)
			return publishStage(ch, RelationshipQueue, RunStageMsg{
				Message:       "Difficulty stage skipped",
				RunID:         data.RunID,
				CorrelationID: data.CorrelationID,
			})
		}
		publishRunEvent(ch, RunEventMsg{RunID: data.RunID, Stage: "difficulty", Status: "submitted"})
		return publishPoll(ch, PollBatchMsg{
			Message:       "Difficulty batch submitted",
			RunID:         data.RunID,
			CorrelationID: data.CorrelationID,
			BatchID:       difficultyBatchID,
			Kind:          common.BatchKindDifficulty,
		})

	case common.BatchKindDifficulty:
		if err := p.ProcessDifficultyBatch(ctx, data.RunID, data.BatchID); err != nil {
			return err
		}
		archiveBatch(ctx, s3Client, llm, storageClient, data.RunID, data.BatchID, status)
		publishRunEvent(ch, RunEventMsg{RunID: data.RunID, Stage: "difficulty", Status: "completed"})

		return publishStage(ch, RelationshipQueue, RunStageMsg{
			Message:       "Difficulty evaluations processed",
			RunID:         data.RunID,
			CorrelationID: data.CorrelationID,
		})

	default:
		return fmt.Errorf("poll message has unknown batch kind %q", data.Kind)
	}
}

// archiveBatch is best effort. The provider keeps batch files long enough
// that a failed archive is an inconvenience, not data loss.
func archiveBatch(
	ctx context.Context,
	s3Client *awss3.Client,
	llm batch.Client,
	storageClient batchJobReader,
	runID, batchID string,
	status batch.JobStatus,
) {
	job, err := storageClient.GetBatchJob(ctx, batchID)
	if err != nil {
		logger.Warn("[Queue] Cannot archive batch without its job record", "batch_id", batchID, "err", err)
		return
	}
	if err := storage.ArchiveBatchFiles(ctx, s3Client, llm, runID, batchID, job.InputFileID, status); err != nil {
		logger.Warn("[Queue] Failed to archive batch files", "run_id", runID, "batch_id", batchID, "err", err)
	}
}

type batchJobReader interface {
	GetBatchJob(ctx context.Context, batchID string) (common.BatchJob, error)
}
