package routes

import (
	"errors"
	"net/http"

	"bloomgraph/internal/server/middleware"
	"bloomgraph/pkg/common"
	"bloomgraph/pkg/logger"
	"bloomgraph/pkg/store"
	pgxstore "bloomgraph/pkg/store/pgx"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

// GetBatchStatusHandler returns the recorded state of one provider batch
// job. The worker's poll stage keeps the stored status current.
func GetBatchStatusHandler(c echo.Context) error {
	type getBatchStatusParams struct {
		BatchID string `param:"batch_id" validate:"required"`
	}

	type getBatchStatusResponse struct {
		Message string           `json:"message"`
		Batch   *common.BatchJob `json:"batch,omitempty"`
	}

	params := new(getBatchStatusParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, getBatchStatusResponse{
			Message: "Invalid request",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, getBatchStatusResponse{
			Message: "Invalid request",
		})
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	q := pgxstore.NewPipelineDBStorageWithConnection(conn)

	job, err := q.GetBatchJob(ctx, params.BatchID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, getBatchStatusResponse{
				Message: "Batch job not found",
			})
		}
		logger.Error("Failed to get batch job", "batch_id", params.BatchID, "err", err)
		return c.JSON(http.StatusInternalServerError, getBatchStatusResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, getBatchStatusResponse{
		Message: "Batch job fetched successfully",
		Batch:   &job,
	})
}
