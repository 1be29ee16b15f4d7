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

func GetOriginsHandler(c echo.Context) error {
	type getOriginsParams struct {
		RunID string `param:"run_id" validate:"required"`
	}

	type getOriginsResponse struct {
		Message string          `json:"message"`
		Origins []common.Origin `json:"origins"`
	}

	params := new(getOriginsParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, getOriginsResponse{
			Message: "Invalid request",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, getOriginsResponse{
			Message: "Invalid request",
		})
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	q := pgxstore.NewPipelineDBStorageWithConnection(conn)

	origins, err := q.GetOrigins(ctx, params.RunID)
	if err != nil {
		logger.Error("Failed to get origins", "run_id", params.RunID, "err", err)
		return c.JSON(http.StatusInternalServerError, getOriginsResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, getOriginsResponse{
		Message: "Origins fetched successfully",
		Origins: origins,
	})
}
