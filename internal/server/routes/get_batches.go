package routes

import (
	"net/http"

	"bloomgraph/internal/server/middleware"
	"bloomgraph/pkg/common"
	"bloomgraph/pkg/logger"
	pgxstore "bloomgraph/pkg/store/pgx"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

func GetRunBatchesHandler(c echo.Context) error {
	type getBatchesParams struct {
		RunID string `param:"run_id" validate:"required"`
	}

	type getBatchesResponse struct {
		Message string            `json:"message"`
		Batches []common.BatchJob `json:"batches"`
	}

	params := new(getBatchesParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, getBatchesResponse{
			Message: "Invalid request",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, getBatchesResponse{
			Message: "Invalid request",
		})
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	q := pgxstore.NewPipelineDBStorageWithConnection(conn)

	batches, err := q.ListBatchJobs(ctx, params.RunID)
	if err != nil {
		logger.Error("Failed to list batch jobs", "run_id", params.RunID, "err", err)
		return c.JSON(http.StatusInternalServerError, getBatchesResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, getBatchesResponse{
		Message: "Batch jobs fetched successfully",
		Batches: batches,
	})
}
