package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-backend/internal/http/response"
	"github.com/yungbote/neurobridge-backend/internal/ingest/orchestrator"
	"github.com/yungbote/neurobridge-backend/internal/ingest/specloader"
	"github.com/yungbote/neurobridge-backend/internal/platform/apierr"
	"github.com/yungbote/neurobridge-backend/internal/platform/idgen"
	"github.com/yungbote/neurobridge-backend/internal/workspace"
)

// SpecLoaderFactory resolves the specloader.Loader for a workspace, one
// loader per workspace's spec directory.
type SpecLoaderFactory interface {
	For(workspaceID string) *specloader.Loader
}

type ImportHandler struct {
	orchestrator *orchestrator.Orchestrator
	specs        SpecLoaderFactory
	registry     *workspace.Registry
	uploadDir    string
}

func NewImportHandler(o *orchestrator.Orchestrator, specs SpecLoaderFactory, registry *workspace.Registry, uploadDir string) *ImportHandler {
	return &ImportHandler{orchestrator: o, specs: specs, registry: registry, uploadDir: uploadDir}
}

// StartImport accepts a multipart workbook upload plus a spec_name form
// field, and runs the ingestion orchestrator synchronously on the
// accepting worker.
func (h *ImportHandler) StartImport(c *gin.Context) {
	workspaceID := c.Param("workspace_id")
	specName := c.PostForm("spec_name")
	if specName == "" {
		respondAPIError(c, apierr.New(apierr.CategoryValidationError, "spec_name is required", nil))
		return
	}

	fileHeader, err := c.FormFile("workbook")
	if err != nil {
		respondAPIError(c, apierr.New(apierr.CategoryValidationError, "workbook file is required", err))
		return
	}

	spec, err := h.specs.For(workspaceID).Load(specName)
	if err != nil {
		respondAPIError(c, err)
		return
	}

	schema, err := h.registry.Get(workspaceID)
	if err != nil {
		respondAPIError(c, err)
		return
	}
	if errs := spec.Validate(schema); len(errs) > 0 {
		respondAPIError(c, apierr.New(apierr.CategoryValidationError, fmt.Sprintf("ingestion spec %q does not match workspace schema: %v", specName, errs), nil))
		return
	}

	dest := filepath.Join(h.uploadDir, idgen.New("upload_")+filepath.Ext(fileHeader.Filename))
	if err := c.SaveUploadedFile(fileHeader, dest); err != nil {
		respondAPIError(c, apierr.New(apierr.CategoryInternalError, "could not stage uploaded workbook", err))
		return
	}
	defer os.Remove(dest)

	actor := c.GetHeader("X-Actor")
	if actor == "" {
		actor = "api"
	}

	result, err := h.orchestrator.Run(c.Request.Context(), workspaceID, specName, fileHeader.Filename, actor, spec, dest)
	if err != nil {
		respondAPIError(c, err)
		return
	}
	response.Respond(c, http.StatusCreated, result)
}
