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

// GetKnowledgeUnitsHandler lists a run's knowledge units, optionally
// filtered by origin, Bloom level and difficulty range.
func GetKnowledgeUnitsHandler(c echo.Context) error {
	type getUnitsParams struct {
		RunID         string `param:"run_id" validate:"required"`
		OriginID      string `query:"origin_id"`
		BloomLevel    string `query:"bloom_level"`
		MinDifficulty *int   `query:"min_difficulty"`
		MaxDifficulty *int   `query:"max_difficulty"`
		EvaluatedOnly bool   `query:"evaluated_only"`
		Limit         int    `query:"limit"`
		Offset        int    `query:"offset"`
	}

	type getUnitsResponse struct {
		Message string                 `json:"message"`
		Units   []common.KnowledgeUnit `json:"units"`
	}

	params := new(getUnitsParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, getUnitsResponse{
			Message: "Invalid request",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, getUnitsResponse{
			Message: "Invalid request",
		})
	}
	if params.BloomLevel != "" && !common.IsBloomLevel(params.BloomLevel) {
		return c.JSON(http.StatusBadRequest, getUnitsResponse{
			Message: "Unknown bloom_level",
		})
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	q := pgxstore.NewPipelineDBStorageWithConnection(conn)

	units, err := q.ListKnowledgeUnits(ctx, params.RunID, store.UnitFilter{
		OriginID:      params.OriginID,
		BloomLevel:    params.BloomLevel,
		MinDifficulty: params.MinDifficulty,
		MaxDifficulty: params.MaxDifficulty,
		EvaluatedOnly: params.EvaluatedOnly,
	})
	if err != nil {
		logger.Error("Failed to list knowledge units", "run_id", params.RunID, "err", err)
		return c.JSON(http.StatusInternalServerError, getUnitsResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, getUnitsResponse{
		Message: "Knowledge units fetched successfully",
		Units:   paginate(units, params.Limit, params.Offset),
	})
}

// GetKnowledgeUnitHandler returns a single knowledge unit of a run.
func GetKnowledgeUnitHandler(c echo.Context) error {
	type getUnitParams struct {
		RunID string `param:"run_id" validate:"required"`
		UCID  string `param:"uc_id" validate:"required"`
	}

	type getUnitResponse struct {
		Message string                `json:"message"`
		Unit    *common.KnowledgeUnit `json:"unit,omitempty"`
	}

	params := new(getUnitParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, getUnitResponse{
			Message: "Invalid request",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, getUnitResponse{
			Message: "Invalid request",
		})
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	q := pgxstore.NewPipelineDBStorageWithConnection(conn)

	units, err := q.ListKnowledgeUnits(ctx, params.RunID, store.UnitFilter{})
	if err != nil {
		logger.Error("Failed to list knowledge units", "run_id", params.RunID, "err", err)
		return c.JSON(http.StatusInternalServerError, getUnitResponse{
			Message: "Internal server error",
		})
	}
	for _, unit := range units {
		if unit.UCID == params.UCID {
			return c.JSON(http.StatusOK, getUnitResponse{
				Message: "Knowledge unit fetched successfully",
				Unit:    &unit,
			})
		}
	}

	return c.JSON(http.StatusNotFound, getUnitResponse{
		Message: "Knowledge unit not found",
	})
}
