package routes

import (
	"errors"
	"net/http"

	"bloomgraph/internal/server/middleware"
	"bloomgraph/internal/storage"
	"bloomgraph/pkg/logger"
	"bloomgraph/pkg/store"
	pgxstore "bloomgraph/pkg/store/pgx"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

// GetRunArtifactsHandler lists the batch files archived in S3 for a run.
func GetRunArtifactsHandler(c echo.Context) error {
	type getArtifactsParams struct {
		RunID string `param:"run_id" validate:"required"`
	}

	type getArtifactsResponse struct {
		Message string   `json:"message"`
		Keys    []string `json:"keys"`
	}

	params := new(getArtifactsParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, getArtifactsResponse{
			Message: "Invalid request",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, getArtifactsResponse{
			Message: "Invalid request",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	keys, err := storage.ListRunArtifacts(ctx, app.S3, params.RunID)
	if err != nil {
		logger.Error("Failed to list run artifacts", "run_id", params.RunID, "err", err)
		return c.JSON(http.StatusInternalServerError, getArtifactsResponse{
			Message: "Internal server error",
		})
	}
	if keys == nil {
		keys = []string{}
	}

	return c.JSON(http.StatusOK, getArtifactsResponse{
		Message: "Run artifacts fetched successfully",
		Keys:    keys,
	})
}

// DeleteRunArtifactsHandler removes a run's archived batch files from S3.
// The run's relational data stays untouched.
func DeleteRunArtifactsHandler(c echo.Context) error {
	type deleteArtifactsParams struct {
		RunID string `param:"run_id" validate:"required"`
	}

	type deleteArtifactsResponse struct {
		Message string `json:"message"`
	}

	params := new(deleteArtifactsParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, deleteArtifactsResponse{
			Message: "Invalid request",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, deleteArtifactsResponse{
			Message: "Invalid request",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App
	q := pgxstore.NewPipelineDBStorageWithConnection(app.DBConn)

	if _, err := q.GetRun(ctx, params.RunID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, deleteArtifactsResponse{
				Message: "Run not found",
			})
		}
		logger.Error("Failed to get run", "run_id", params.RunID, "err", err)
		return c.JSON(http.StatusInternalServerError, deleteArtifactsResponse{
			Message: "Internal server error",
		})
	}

	if err := storage.DeleteRunArtifacts(ctx, app.S3, params.RunID); err != nil {
		logger.Error("Failed to delete run artifacts", "run_id", params.RunID, "err", err)
		return c.JSON(http.StatusInternalServerError, deleteArtifactsResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, deleteArtifactsResponse{
		Message: "Run artifacts deleted successfully",
	})
}
