package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ServiceName is reported by the health endpoint
const ServiceName = "catalog-import"

// probeTimeout bounds each dependency probe
const probeTimeout = 2 * time.Second

// Probe checks one dependency of the import service; nil means up
type Probe func(ctx context.Context) error

// HealthResponse is the body of GET /health. Components maps each probed
// dependency (catalog database, archive storage) to "up" or "down".
type HealthResponse struct {
	Status     string            `json:"status"`
	Service    string            `json:"service"`
	Components map[string]string `json:"components"`
}

// HealthCheck runs every registered probe. Any failing probe reports
// "degraded" with 503.
func (h *Handler) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:     "ok",
		Service:    ServiceName,
		Components: make(map[string]string, len(h.probes)),
	}

	names := make([]string, 0, len(h.probes))
	for name := range h.probes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ctx, cancel := context.WithTimeout(c.Request.Context(), probeTimeout)
		err := h.probes[name](ctx)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("component", name).Msg("Health probe failed")
			response.Components[name] = "down"
			response.Status = "degraded"
			continue
		}
		response.Components[name] = "up"
	}

	if response.Status != "ok" {
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	c.JSON(http.StatusOK, response)
}
