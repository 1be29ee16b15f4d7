package server

import (
	"bloomgraph/internal/server/middleware"
	"bloomgraph/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api/v1", middleware.AuthMiddleware)

	// Run routes
	apiRoutes.POST("/runs", routes.CreateRunHandler)
	apiRoutes.GET("/runs", routes.GetRunsHandler)
	apiRoutes.GET("/runs/:run_id", routes.GetRunHandler)
	apiRoutes.POST("/runs/:run_id/stages/:stage", routes.TriggerStageHandler)

	// Batch routes
	apiRoutes.GET("/runs/:run_id/batches", routes.GetRunBatchesHandler)
	apiRoutes.GET("/batches/:batch_id/status", routes.GetBatchStatusHandler)

	// Archived batch file routes
	apiRoutes.GET("/runs/:run_id/artifacts", routes.GetRunArtifactsHandler)
	apiRoutes.DELETE("/runs/:run_id/artifacts", routes.DeleteRunArtifactsHandler)

	// Run result routes
	apiRoutes.GET("/runs/:run_id/origins", routes.GetOriginsHandler)
	apiRoutes.GET("/runs/:run_id/knowledge-units", routes.GetKnowledgeUnitsHandler)
	apiRoutes.GET("/runs/:run_id/knowledge-units/:uc_id", routes.GetKnowledgeUnitHandler)
	apiRoutes.GET("/runs/:run_id/groups", routes.GetComparisonGroupsHandler)
	apiRoutes.GET("/runs/:run_id/relationships", routes.GetRelationshipsHandler)
	apiRoutes.GET("/runs/:run_id/graph", routes.GetGraphHandler)
}
