package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-backend/internal/http/response"
	"github.com/yungbote/neurobridge-backend/internal/platform/apierr"
	"github.com/yungbote/neurobridge-backend/internal/workspace"
)

type WorkspaceHandler struct {
	registry *workspace.Registry
	meta     workspace.MetaRepo
}

func NewWorkspaceHandler(registry *workspace.Registry, meta workspace.MetaRepo) *WorkspaceHandler {
	return &WorkspaceHandler{registry: registry, meta: meta}
}

// ListWorkspaces returns every workspace id the registry knows about, on
// disk or already cached.
func (h *WorkspaceHandler) ListWorkspaces(c *gin.Context) {
	response.RespondOK(c, gin.H{"workspaces": h.registry.List()})
}

// CreateWorkspace validates and registers a domain schema document
// uploaded as the request body.
func (h *WorkspaceHandler) CreateWorkspace(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		respondAPIError(c, apierr.New(apierr.CategoryValidationError, "could not read request body", err))
		return
	}
	schema, err := h.registry.LoadFromYAML(body)
	if err != nil {
		respondAPIError(c, err)
		return
	}
	if err := h.registry.Register(schema); err != nil {
		respondAPIError(c, err)
		return
	}
	now := time.Now().UTC()
	if err := h.meta.Upsert(&workspace.Meta{
		WorkspaceID:   schema.Workspace,
		DisplayName:   schema.DisplayName,
		SchemaVersion: schema.Version,
		CreatedAt:     now,
		UpdatedAt:     now,
	}); err != nil {
		respondAPIError(c, err)
		return
	}
	response.Respond(c, http.StatusCreated, schema)
}

// GetSchema returns the cached or disk-loaded domain schema for a workspace.
func (h *WorkspaceHandler) GetSchema(c *gin.Context) {
	schema, err := h.registry.Get(c.Param("workspace_id"))
	if err != nil {
		respondAPIError(c, err)
		return
	}
	response.RespondOK(c, schema)
}

// ReloadSchema forces the next Get for a workspace to re-read from disk.
func (h *WorkspaceHandler) ReloadSchema(c *gin.Context) {
	h.registry.Reload(c.Param("workspace_id"))
	c.Status(http.StatusNoContent)
}

// respondAPIError maps an *apierr.Error to its HTTP status; anything else
// is surfaced as an internal error without leaking its message.
func respondAPIError(c *gin.Context, err error) {
	if apiErr, ok := err.(*apierr.Error); ok {
		response.RespondError(c, apiErr.Status(), apiErr.Code(), apiErr)
		return
	}
	response.RespondError(c, http.StatusInternalServerError, string(apierr.CategoryInternalError), err)
}
