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

// GetGraphHandler returns the stored graph snapshot of a run: entities and
// their relationships, for visualization.
func GetGraphHandler(c echo.Context) error {
	type getGraphParams struct {
		RunID string `param:"run_id" validate:"required"`
	}

	type getGraphResponse struct {
		Message       string                     `json:"message"`
		Entities      []common.GraphEntity       `json:"entities"`
		Communities   []common.GraphCommunity    `json:"communities"`
		Relationships []common.GraphRelationship `json:"relationships"`
	}

	params := new(getGraphParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, getGraphResponse{
			Message: "Invalid request",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, getGraphResponse{
			Message: "Invalid request",
		})
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	q := pgxstore.NewPipelineDBStorageWithConnection(conn)

	entities, err := q.GetGraphEntities(ctx, params.RunID)
	if err != nil {
		logger.Error("Failed to get graph entities", "run_id", params.RunID, "err", err)
		return c.JSON(http.StatusInternalServerError, getGraphResponse{
			Message: "Internal server error",
		})
	}
	communities, err := q.GetGraphCommunities(ctx, params.RunID)
	if err != nil {
		logger.Error("Failed to get graph communities", "run_id", params.RunID, "err", err)
		return c.JSON(http.StatusInternalServerError, getGraphResponse{
			Message: "Internal server error",
		})
	}
	relationships, err := q.GetGraphRelationships(ctx, params.RunID)
	if err != nil {
		logger.Error("Failed to get graph relationships", "run_id", params.RunID, "err", err)
		return c.JSON(http.StatusInternalServerError, getGraphResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, getGraphResponse{
		Message:       "Graph fetched successfully",
		Entities:      entities,
		Communities:   communities,
		Relationships: relationships,
	})
}
