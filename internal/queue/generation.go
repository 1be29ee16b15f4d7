package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"bloomgraph/pkg/batch"
	"bloomgraph/pkg/common"
	"bloomgraph/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rabbitmq/amqp091-go"
)

// ProcessGenerationMessage submits the UC generation batch for a run and
// schedules polling for its completion.
func ProcessGenerationMessage(
	ctx context.Context,
	llm batch.Client,
	ch *amqp091.Channel,
	conn *pgxpool.Pool,
	msg string,
) error {
	data := new(RunStageMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return err
	}
	if data.RunID == "" {
		return fmt.Errorf("generation message has no run_id")
	}

	p, storageClient := newPipeline(conn, llm)

	batchID, err := p.SubmitGenerationBatch(ctx, data.RunID)
	if err != nil {
		return err
	}
	if batchID == "" {
		logger.Error("[Queue] Generation produced no batch, failing run", "run_id", data.RunID)
		if updateErr := storageClient.UpdateRunStatus(ctx, data.RunID, common.RunStatusFailed); updateErr != nil {
			logger.Error("[Queue] Failed to mark run as failed", "run_id", data.RunID, "err", updateErr)
		}
		publishRunEvent(ch, RunEventMsg{RunID: data.RunID, Stage: "generation", Status: "failed", Detail: "no batch submitted"})
		return nil
	}

	publishRunEvent(ch, RunEventMsg{RunID: data.RunID, Stage: "generation", Status: "submitted"})

	return publishPoll(ch, PollBatchMsg{
		Message:       "Generation batch submitted",
		RunID:         data.RunID,
		CorrelationID: data.CorrelationID,
		BatchID:       batchID,
		Kind:          common.BatchKindGeneration,
	})
}
