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

func GetComparisonGroupsHandler(c echo.Context) error {
	type getGroupsParams struct {
		RunID string `param:"run_id" validate:"required"`
	}

	type getGroupsResponse struct {
		Message string                   `json:"message"`
		Groups  []common.ComparisonGroup `json:"groups"`
	}

	params := new(getGroupsParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, getGroupsResponse{
			Message: "Invalid request",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, getGroupsResponse{
			Message: "Invalid request",
		})
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	q := pgxstore.NewPipelineDBStorageWithConnection(conn)

	groups, err := q.GetComparisonGroups(ctx, params.RunID)
	if err != nil {
		logger.Error("Failed to get comparison groups", "run_id", params.RunID, "err", err)
		return c.JSON(http.StatusInternalServerError, getGroupsResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, getGroupsResponse{
		Message: "Comparison groups fetched successfully",
		Groups:  groups,
	})
}
