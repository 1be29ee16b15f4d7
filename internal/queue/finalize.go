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

// ProcessFinalizeMessage aggregates a run's evaluations into final difficulty
// scores and closes the run.
func ProcessFinalizeMessage(
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
		return fmt.Errorf("finalize message has no run_id")
	}

	p, _ := newPipeline(conn, llm)

	if err := p.FinalizeOutputs(ctx, data.RunID); err != nil {
		publishRunEvent(ch, RunEventMsg{
			RunID:  data.RunID,
			Stage:  "finalize",
			Status: common.RunStatusFinalizeFailed,
			Detail: err.Error(),
		})
		return err
	}

	logger.Info("[Queue] Run completed", "run_id", data.RunID)
	publishRunEvent(ch, RunEventMsg{RunID: data.RunID, Stage: "finalize", Status: common.RunStatusSuccess})
	return nil
}
