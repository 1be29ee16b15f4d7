package queue

import (
	"context"
	"fmt"

	"bloomgraph/pkg/batch"
	"bloomgraph/pkg/common"
	"bloomgraph/pkg/logger"
	pgxstore "bloomgraph/pkg/store/pgx"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rabbitmq/amqp091-go"
)

// RecoverInFlightBatches republishes poll messages for every batch job that
// was still running when the worker last stopped, so provider batches are
// never orphaned by a restart.
func RecoverInFlightBatches(
	ctx context.Context,
	ch *amqp091.Channel,
	conn *pgxpool.Pool,
) error {
	storageClient := pgxstore.NewPipelineDBStorageWithConnection(conn)

	runs, err := storageClient.ListRuns(ctx)
	if err != nil {
		return fmt.Errorf("failed to list runs during recovery: %w", err)
	}

	recovered := 0
	for _, run := range runs {
		if run.Status != common.RunStatusRunning {
			continue
		}

		jobs, err := storageClient.ListBatchJobs(ctx, run.RunID)
		if err != nil {
			logger.Error("[Queue] Failed to list batch jobs during recovery", "run_id", run.RunID, "err", err)
			continue
		}

		for _, job := range jobs {
			if batch.IsTerminal(job.Status) {
				continue
			}
			err := publishPoll(ch, PollBatchMsg{
				Message: "Recovered in-flight batch",
				RunID:   run.RunID,
				BatchID: job.BatchID,
				Kind:    job.Kind,
			})
			if err != nil {
				logger.Error("[Queue] Failed to republish recovered batch", "batch_id", job.BatchID, "err", err)
				continue
			}
			recovered++
			logger.Info("[Queue] Recovered in-flight batch", "run_id", run.RunID, "batch_id", job.BatchID, "kind", job.Kind)
		}
	}

	if recovered == 0 {
		logger.Debug("[Queue] No in-flight batches found")
	}
	return nil
}
