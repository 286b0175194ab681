package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-backend/internal/domain/assertion"
	"github.com/yungbote/neurobridge-backend/internal/http/response"
	"github.com/yungbote/neurobridge-backend/internal/query"
)

// ImportRunLister is the narrow gateway slice this handler reads.
type ImportRunLister interface {
	ListImportRuns(ctx context.Context, workspaceID string, limit int) ([]*assertion.ImportRun, error)
}

type ImportRunHandler struct {
	runs    ImportRunLister
	surface *query.Surface
}

func NewImportRunHandler(runs ImportRunLister, surface *query.Surface) *ImportRunHandler {
	return &ImportRunHandler{runs: runs, surface: surface}
}

func (h *ImportRunHandler) ListImportRuns(c *gin.Context) {
	runs, err := h.runs.ListImportRuns(c.Request.Context(), c.Param("workspace_id"), 50)
	if err != nil {
		respondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"import_runs": runs})
}

func (h *ImportRunHandler) GetImportRun(c *gin.Context) {
	ir, err := h.surface.GetImportRun(c.Request.Context(), c.Param("workspace_id"), c.Param("import_run_id"))
	if err != nil {
		respondAPIError(c, err)
		return
	}
	response.RespondOK(c, ir)
}

func (h *ImportRunHandler) GetImportDiff(c *gin.Context) {
	diff, err := h.surface.ImportDiff(c.Request.Context(), c.Param("workspace_id"), c.Param("import_run_id"))
	if err != nil {
		respondAPIError(c, err)
		return
	}
	response.RespondOK(c, diff)
}
