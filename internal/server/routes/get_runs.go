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

func GetRunsHandler(c echo.Context) error {
	type getRunsResponse struct {
		Message string               `json:"message"`
		Runs    []common.PipelineRun `json:"runs"`
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	q := pgxstore.NewPipelineDBStorageWithConnection(conn)

	runs, err := q.ListRuns(ctx)
	if err != nil {
		logger.Error("Failed to list runs", "err", err)
		return c.JSON(http.StatusInternalServerError, getRunsResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, getRunsResponse{
		Message: "Runs fetched successfully",
		Runs:    runs,
	})
}

func GetRunHandler(c echo.Context) error {
	type getRunParams struct {
		RunID string `param:"run_id" validate:"required"`
	}

	type getRunResponse struct {
		Message string              `json:"message"`
		Run     *common.PipelineRun `json:"run,omitempty"`
	}

	params := new(getRunParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, getRunResponse{
			Message: "Invalid request",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, getRunResponse{
			Message: "Invalid request",
		})
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	q := pgxstore.NewPipelineDBStorageWithConnection(conn)

	run, err := q.GetRun(ctx, params.RunID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, getRunResponse{
				Message: "Run not found",
			})
		}
		logger.Error("Failed to get run", "run_id", params.RunID, "err", err)
		return c.JSON(http.StatusInternalServerError, getRunResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, getRunResponse{
		Message: "Run fetched successfully",
		Run:     &run,
	})
}
