package routes

import (
	"encoding/json"
	"net/http"
	"time"

	"bloomgraph/internal/queue"
	"bloomgraph/internal/server/middleware"
	"bloomgraph/internal/util"
	"bloomgraph/pkg/common"
	"bloomgraph/pkg/logger"
	pgxstore "bloomgraph/pkg/store/pgx"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

// CreateRunHandler starts a new enrichment run over a GraphRAG snapshot and
// queues its prepare stage.
func CreateRunHandler(c echo.Context) error {
	type createRunBody struct {
		SnapshotPrefix string `json:"snapshot_prefix"`
		TriggerSource  string `json:"trigger_source"`
	}

	type createRunResponse struct {
		Message string              `json:"message"`
		Run     *common.PipelineRun `json:"run,omitempty"`
	}

	data := new(createRunBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, createRunResponse{
			Message: "Invalid request body",
		})
	}

	runID, err := util.NewRunID()
	if err != nil {
		logger.Error("Failed to generate run id", "err", err)
		return c.JSON(http.StatusInternalServerError, createRunResponse{
			Message: "Internal server error",
		})
	}
	correlationID, err := util.NewCorrelationID()
	if err != nil {
		logger.Error("Failed to generate correlation id", "err", err)
		return c.JSON(http.StatusInternalServerError, createRunResponse{
			Message: "Internal server error",
		})
	}

	triggerSource := data.TriggerSource
	if triggerSource == "" {
		triggerSource = "api"
	}

	run := common.PipelineRun{
		RunID:         runID,
		Status:        common.RunStatusRunning,
		TriggerSource: triggerSource,
		StartedAt:     time.Now().UTC(),
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	q := pgxstore.NewPipelineDBStorageWithConnection(conn)

	if err := q.CreateRun(ctx, run); err != nil {
		logger.Error("Failed to create run", "err", err)
		return c.JSON(http.StatusInternalServerError, createRunResponse{
			Message: "Internal server error",
		})
	}

	queueData := queue.RunStageMsg{
		Message:        "Run created",
		RunID:          runID,
		CorrelationID:  correlationID,
		SnapshotPrefix: data.SnapshotPrefix,
	}
	msgBytes, err := json.Marshal(queueData)
	if err != nil {
		logger.Error("Failed to marshal queue message", "err", err)
		return c.JSON(http.StatusInternalServerError, createRunResponse{
			Message: "Internal server error",
		})
	}

	ch := c.(*middleware.AppContext).App.Queue
	if err := queue.PublishFIFO(ch, queue.PrepareQueue, msgBytes); err != nil {
		logger.Error("Failed to publish to prepare_queue", "err", err)
		return c.JSON(http.StatusInternalServerError, createRunResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, createRunResponse{
		Message: "Run created successfully",
		Run:     &run,
	})
}
