package routes

import (
	"encoding/json"
	"errors"
	"net/http"

	"bloomgraph/internal/queue"
	"bloomgraph/internal/server/middleware"
	"bloomgraph/internal/util"
	"bloomgraph/pkg/logger"
	"bloomgraph/pkg/store"
	pgxstore "bloomgraph/pkg/store/pgx"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

var stageQueues = map[string]string{
	"prepare":       queue.PrepareQueue,
	"generation":    queue.GenerationQueue,
	"relationships": queue.RelationshipQueue,
	"finalize":      queue.FinalizeQueue,
}

// TriggerStageHandler re-queues a single stage for an existing run, for
// manual recovery after a failed or stuck run.
func TriggerStageHandler(c echo.Context) error {
	type triggerStageParams struct {
		RunID          string `param:"run_id" validate:"required"`
		Stage          string `param:"stage" validate:"required"`
		SnapshotPrefix string `json:"snapshot_prefix"`
	}

	type triggerStageResponse struct {
		Message string `json:"message"`
		RunID   string `json:"run_id,omitempty"`
		Stage   string `json:"stage,omitempty"`
	}

	params := new(triggerStageParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, triggerStageResponse{
			Message: "Invalid request",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, triggerStageResponse{
			Message: "Invalid request",
		})
	}

	queueName, ok := stageQueues[params.Stage]
	if !ok {
		return c.JSON(http.StatusBadRequest, triggerStageResponse{
			Message: "Unknown stage",
		})
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	q := pgxstore.NewPipelineDBStorageWithConnection(conn)

	if _, err := q.GetRun(ctx, params.RunID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, triggerStageResponse{
				Message: "Run not found",
			})
		}
		logger.Error("Failed to get run", "run_id", params.RunID, "err", err)
		return c.JSON(http.StatusInternalServerError, triggerStageResponse{
			Message: "Internal server error",
		})
	}

	correlationID, err := util.NewCorrelationID()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, triggerStageResponse{
			Message: "Internal server error",
		})
	}

	queueData := queue.RunStageMsg{
		Message:        "Stage triggered manually",
		RunID:          params.RunID,
		CorrelationID:  correlationID,
		SnapshotPrefix: params.SnapshotPrefix,
	}
	msgBytes, err := json.Marshal(queueData)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, triggerStageResponse{
			Message: "Internal server error",
		})
	}

	ch := c.(*middleware.AppContext).App.Queue
	if err := queue.PublishFIFO(ch, queueName, msgBytes); err != nil {
		logger.Error("Failed to publish stage trigger", "queue", queueName, "err", err)
		return c.JSON(http.StatusInternalServerError, triggerStageResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, triggerStageResponse{
		Message: "Stage queued successfully",
		RunID:   params.RunID,
		Stage:   params.Stage,
	})
}
