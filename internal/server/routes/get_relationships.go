package routes

import (
	"net/http"

	"bloomgraph/internal/server/middleware"
	"bloomgraph/pkg/common"
	"bloomgraph/pkg/logger"
	"bloomgraph/pkg/store"
	pgxstore "bloomgraph/pkg/store/pgx"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

// GetRelationshipsHandler lists a run's unit relationships, optionally
// filtered by type and endpoint unit ids.
func GetRelationshipsHandler(c echo.Context) error {
	type getRelationshipsParams struct {
		RunID    string `param:"run_id" validate:"required"`
		Type     string `query:"type"`
		SourceID string `query:"source_id"`
		TargetID string `query:"target_id"`
		Limit    int    `query:"limit"`
		Offset   int    `query:"offset"`
	}

	type getRelationshipsResponse struct {
		Message       string                `json:"message"`
		Relationships []common.Relationship `json:"relationships"`
	}

	params := new(getRelationshipsParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, getRelationshipsResponse{
			Message: "Invalid request",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, getRelationshipsResponse{
			Message: "Invalid request",
		})
	}
	if params.Type != "" && params.Type != common.RelTypeRequires && params.Type != common.RelTypeExpands {
		return c.JSON(http.StatusBadRequest, getRelationshipsResponse{
			Message: "Unknown relationship type",
		})
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	q := pgxstore.NewPipelineDBStorageWithConnection(conn)

	relationships, err := q.ListRelationships(ctx, params.RunID, store.RelationshipFilter{
		Type:     params.Type,
		SourceID: params.SourceID,
		TargetID: params.TargetID,
	})
	if err != nil {
		logger.Error("Failed to list relationships", "run_id", params.RunID, "err", err)
		return c.JSON(http.StatusInternalServerError, getRelationshipsResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, getRelationshipsResponse{
		Message:       "Relationships fetched successfully",
		Relationships: paginate(relationships, params.Limit, params.Offset),
	})
}
