package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"bloomgraph/internal/storage"
	"bloomgraph/pkg/batch"
	"bloomgraph/pkg/logger"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rabbitmq/amqp091-go"
)

// ProcessPrepareMessage loads a run's GraphRAG snapshot from S3, derives its
// knowledge-unit origins and hands the run over to the generation stage.
func ProcessPrepareMessage(
	ctx context.Context,
	s3Client *awss3.Client,
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
		return fmt.Errorf("prepare message has no run_id")
	}

	p, _ := newPipeline(conn, llm)

	prefix := data.SnapshotPrefix
	if prefix == "" {
		prefix = fmt.Sprintf("runs/%s/graph", data.RunID)
	}

	snapshot, err := storage.LoadGraphSnapshot(ctx, s3Client, prefix)
	if err != nil {
		return fmt.Errorf("failed to load graph snapshot for run %s: %w", data.RunID, err)
	}
	logger.Info(
		"[Queue] Graph snapshot loaded",
		"run_id", data.RunID,
		"entities", len(snapshot.Entities),
		"communities", len(snapshot.Communities),
		"reports", len(snapshot.Reports),
		"relationships", len(snapshot.Relationships),
	)

	if err := p.PrepareOrigins(ctx, data.RunID, snapshot); err != nil {
		return err
	}

	publishRunEvent(ch, RunEventMsg{RunID: data.RunID, Stage: "prepare", Status: "completed"})

	return publishStage(ch, GenerationQueue, RunStageMsg{
		Message:       "Origins prepared",
		RunID:         data.RunID,
		CorrelationID: data.CorrelationID,
	})
}
