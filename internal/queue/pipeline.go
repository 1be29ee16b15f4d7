package queue

import (
	"encoding/json"

	"bloomgraph/internal/util"
	"bloomgraph/pkg/batch"
	"bloomgraph/pkg/logger"
	"bloomgraph/pkg/pipeline"
	pgxstore "bloomgraph/pkg/store/pgx"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rabbitmq/amqp091-go"
)

// PipelineConfigFromEnv assembles the pipeline tunables the worker runs
// with. Defaults match the standard enrichment setup.
func PipelineConfigFromEnv() pipeline.Config {
	return pipeline.Config{
		Model:                 util.GetEnvString("LLM_MODEL", "gpt-4o-mini"),
		GenerationTemperature: util.GetEnvFloat("GENERATION_TEMPERATURE", 0.2),
		DifficultyTemperature: util.GetEnvFloat("DIFFICULTY_TEMPERATURE", 0.1),
		DifficultyBatchSize:   util.GetEnvInt("DIFFICULTY_BATCH_SIZE", 5),
		MinEvaluationsPerUC:   util.GetEnvInt("MIN_EVALUATIONS_PER_UC", 3),
		MaxAscentLevels:       util.GetEnvInt("MAX_ASCENT_LEVELS", 1),
		SchedulerSeed:         int64(util.GetEnvInt("SCHEDULER_SEED", 0)),
		MaxOriginsForTesting:  util.GetEnvInt("MAX_ORIGINS_FOR_TESTING", 0),
		ContextTokenBudget:    util.GetEnvInt("CONTEXT_TOKEN_BUDGET", 3000),
	}
}

func newPipeline(conn *pgxpool.Pool, llm batch.Client) (*pipeline.Pipeline, *pgxstore.PipelineDBStorage) {
	storageClient := pgxstore.NewPipelineDBStorageWithConnection(conn)
	return pipeline.New(storageClient, llm, PipelineConfigFromEnv()), storageClient
}

func publishStage(ch *amqp091.Channel, queueName string, msg RunStageMsg) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return PublishFIFO(ch, queueName, body)
}

func publishPoll(ch *amqp091.Channel, msg PollBatchMsg) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return PublishFIFO(ch, PollQueue, body)
}

func publishRunEvent(ch *amqp091.Channel, event RunEventMsg) {
	body, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := PublishTopic(ch, "run."+event.RunID, body); err != nil {
		logger.Warn("[Queue] Failed to publish run event", "run_id", event.RunID, "stage", event.Stage, "err", err)
	}
}
