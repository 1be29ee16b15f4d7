package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"bloomgraph/pkg/batch"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rabbitmq/amqp091-go"
)

// ProcessRelationshipMessage derives the REQUIRES and EXPANDS links for a
// run's units and hands the run over to finalization.
func ProcessRelationshipMessage(
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
		return fmt.Errorf("relationship message has no run_id")
	}

	p, _ := newPipeline(conn, llm)

	if err := p.DefineRelationships(ctx, data.RunID); err != nil {
		return err
	}
	publishRunEvent(ch, RunEventMsg{RunID: data.RunID, Stage: "relationships", Status: "completed"})

	return publishStage(ch, FinalizeQueue, RunStageMsg{
		Message:       "Relationships defined",
		RunID:         data.RunID,
		CorrelationID: data.CorrelationID,
	})
}
