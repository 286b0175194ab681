package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ServiceCheckers probes the core's external collaborators. The core
// never calls the graph store, vector store, or queue for anything
// other than this health probe and, for the graph store, the gateway
// itself; vector and queue are passed through unchanged, per spec.md's
// scope, and "not_configured" is a healthy state for them, not a
// failure — only a configured-but-unreachable collaborator is reported
// down.
type ServiceCheckers struct {
	Graph  CheckerFunc
	Vector CheckerFunc
	Queue  CheckerFunc
}

// CheckerFunc reports a collaborator's status: ("ok", nil),
// ("not_configured", nil), or ("down", err).
type CheckerFunc func(ctx context.Context) (status string, err error)

type HealthHandler struct {
	checkers ServiceCheckers
}

func NewHealthHandler(checkers ServiceCheckers) *HealthHandler {
	return &HealthHandler{checkers: checkers}
}

type healthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx := c.Request.Context()
	services := map[string]string{}
	overall := "ok"

	named := []struct {
		name string
		fn   CheckerFunc
	}{
		{"graph", h.checkers.Graph},
		{"vector", h.checkers.Vector},
		{"queue", h.checkers.Queue},
	}
	for _, n := range named {
		if n.fn == nil {
			services[n.name] = "not_configured"
			continue
		}
		status, err := n.fn(ctx)
		if err != nil {
			status = "down"
		}
		services[n.name] = status
		if status == "down" {
			overall = "degraded"
		}
	}

	// Health is advisory: callers poll it to decide whether to route
	// traffic, not to branch on an HTTP error; the body carries the verdict.
	c.JSON(http.StatusOK, healthResponse{Status: overall, Services: services})
}
