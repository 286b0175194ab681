package handlers

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-backend/internal/http/response"
	"github.com/yungbote/neurobridge-backend/internal/query"
)

type EntityHandler struct {
	surface *query.Surface
}

func NewEntityHandler(surface *query.Surface) *EntityHandler {
	return &EntityHandler{surface: surface}
}

func (h *EntityHandler) SearchEntities(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	entities, err := h.surface.SearchEntities(
		c.Request.Context(),
		c.Param("workspace_id"),
		c.Query("entity_type"),
		c.Query("q"),
		limit,
	)
	if err != nil {
		respondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"entities": entities})
}

func (h *EntityHandler) GetEntityDetail(c *gin.Context) {
	opts := query.EntityDetailOptions{
		ViewMode:   query.ViewMode(c.Query("view_mode")),
		ScenarioID: c.Query("scenario_id"),
	}
	if raw := c.Query("as_of"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			opts.AsOf = ts
		}
	}
	detail, err := h.surface.EntityDetail(c.Request.Context(), c.Param("workspace_id"), c.Param("entity_id"), opts)
	if err != nil {
		respondAPIError(c, err)
		return
	}
	response.RespondOK(c, detail)
}
