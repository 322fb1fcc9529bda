package handlers

import (
	"net/http"

	"github.com/ebpf-microsegment/firstmatch/pkg/api/models"
	"github.com/ebpf-microsegment/firstmatch/pkg/dataplane"
	"github.com/gin-gonic/gin"
)

// StatisticsHandler handles statistics requests
type StatisticsHandler struct {
	dataPlane dataplane.DataPlaneInterface
}

// NewStatisticsHandler creates a new statistics handler
func NewStatisticsHandler(dp dataplane.DataPlaneInterface) *StatisticsHandler {
	return &StatisticsHandler{
		dataPlane: dp,
	}
}

func toStatisticsResponse(stats dataplane.Statistics) models.StatisticsResponse {
	return models.StatisticsResponse{
		TotalQueries:   stats.TotalQueries,
		Permitted:      stats.Permitted,
		Rejected:       stats.Rejected,
		Unmatched:      stats.Unmatched,
		Malformed:      stats.Malformed,
		Rules:          stats.Rules,
		UniquePrefixes: stats.UniquePrefixes,
		TrieNodes:      stats.TrieNodes,
		ShadowedRules:  stats.ShadowedRules,
	}
}

// GetAllStats handles GET /api/v1/stats
func (h *StatisticsHandler) GetAllStats(c *gin.Context) {
	c.JSON(http.StatusOK, toStatisticsResponse(h.dataPlane.GetStatistics()))
}

// GetQueryStats handles GET /api/v1/stats/queries
func (h *StatisticsHandler) GetQueryStats(c *gin.Context) {
	stats := h.dataPlane.GetStatistics()

	// Calculate rates
	var permitRate, rejectRate, matchRate float64
	if stats.TotalQueries > 0 {
		total := float64(stats.TotalQueries)
		permitRate = float64(stats.Permitted) / total * 100
		rejectRate = float64(stats.Rejected) / total * 100
		matchRate = float64(stats.Permitted+stats.Rejected) / total * 100
	}

	response := models.QueryStatsResponse{
		TotalQueries: stats.TotalQueries,
		Permitted:    stats.Permitted,
		Rejected:     stats.Rejected,
		Unmatched:    stats.Unmatched,
		Malformed:    stats.Malformed,
		PermitRate:   permitRate,
		RejectRate:   rejectRate,
		MatchRate:    matchRate,
	}

	c.JSON(http.StatusOK, response)
}

// GetRuleStats handles GET /api/v1/stats/rules
func (h *StatisticsHandler) GetRuleStats(c *gin.Context) {
	stats := h.dataPlane.GetStatistics()

	response := models.RuleStatsResponse{
		Rules:          stats.Rules,
		UniquePrefixes: stats.UniquePrefixes,
		DuplicateRules: stats.Rules - stats.UniquePrefixes,
		ShadowedRules:  stats.ShadowedRules,
		TrieNodes:      stats.TrieNodes,
	}

	c.JSON(http.StatusOK, response)
}
