package http

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-backend/internal/http/handlers"
	"github.com/yungbote/neurobridge-backend/internal/http/middleware"
	"github.com/yungbote/neurobridge-backend/internal/platform/logger"
)

// RouterConfig is every handler and cross-cutting collaborator the router
// needs to wire routes; the app package assembles one of these at startup.
type RouterConfig struct {
	Log *logger.Logger

	Health    *handlers.HealthHandler
	Workspace *handlers.WorkspaceHandler
	Import    *handlers.ImportHandler
	ImportRun *handlers.ImportRunHandler
	Entity    *handlers.EntityHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.AttachTraceContext())
	r.Use(middleware.RequestLogger(cfg.Log))

	r.GET("/health", cfg.Health.HealthCheck)

	r.GET("/workspaces", cfg.Workspace.ListWorkspaces)
	r.POST("/workspaces", cfg.Workspace.CreateWorkspace)

	w := r.Group("/workspaces/:workspace_id")
	{
		w.GET("/schema", cfg.Workspace.GetSchema)
		w.POST("/schema/reload", cfg.Workspace.ReloadSchema)

		w.POST("/imports", cfg.Import.StartImport)
		w.GET("/imports", cfg.ImportRun.ListImportRuns)
		w.GET("/imports/:import_run_id", cfg.ImportRun.GetImportRun)
		w.GET("/imports/:import_run_id/diff", cfg.ImportRun.GetImportDiff)

		w.GET("/entities", cfg.Entity.SearchEntities)
		w.GET("/entities/:entity_id", cfg.Entity.GetEntityDetail)
	}

	return r
}
