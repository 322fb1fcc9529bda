package handlers

import (
	"net/http"
	"time"

	"github.com/ebpf-microsegment/firstmatch/pkg/api/models"
	"github.com/ebpf-microsegment/firstmatch/pkg/dataplane"
	"github.com/gin-gonic/gin"
)

// Version is reported by the status endpoint
var Version = "0.1.0"

var startTime = time.Now()

// HealthHandler handles health check requests
type HealthHandler struct {
	dataPlane dataplane.DataPlaneInterface
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(dp dataplane.DataPlaneInterface) *HealthHandler {
	return &HealthHandler{
		dataPlane: dp,
	}
}

// GetHealth handles GET /api/v1/health
// Simple health check endpoint
func (h *HealthHandler) GetHealth(c *gin.Context) {
	response := models.HealthResponse{
		Status:  "ok",
		Message: "API server is healthy",
	}

	c.JSON(http.StatusOK, response)
}

// GetStatus handles GET /api/v1/status
// Detailed status endpoint with data plane information
func (h *HealthHandler) GetStatus(c *gin.Context) {
	if h.dataPlane == nil {
		c.JSON(http.StatusServiceUnavailable, models.StatusResponse{
			Status:  "down",
			Version: Version,
			DataPlane: models.DataPlaneStatus{
				Status:  "stopped",
				Message: "No rule set loaded",
			},
			API: models.APIStatus{
				Status:  "running",
				Message: "API server is operational",
			},
			Uptime: int64(time.Since(startTime).Seconds()),
		})
		return
	}

	stats := h.dataPlane.GetStatistics()

	dataPlaneStatus := models.DataPlaneStatus{
		Status:  "ready",
		Message: "Rule set loaded and serving queries",
	}
	if stats.TotalQueries == 0 {
		dataPlaneStatus.Status = "idle"
		dataPlaneStatus.Message = "Rule set loaded, no queries classified yet"
	}

	// An empty rule set answers every query with no match
	overallStatus := "ok"
	if stats.Rules == 0 {
		overallStatus = "degraded"
	}

	statistics := toStatisticsResponse(stats)
	response := models.StatusResponse{
		Status:    overallStatus,
		Version:   Version,
		DataPlane: dataPlaneStatus,
		API: models.APIStatus{
			Status:  "running",
			Message: "API server is operational",
		},
		Statistics: &statistics,
		RuleCount:  stats.Rules,
		Uptime:     int64(time.Since(startTime).Seconds()),
	}

	c.JSON(http.StatusOK, response)
}
