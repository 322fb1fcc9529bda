package api

import (
	"net/http"

	"github.com/ebpf-microsegment/firstmatch/pkg/api/handlers"
	"github.com/ebpf-microsegment/firstmatch/pkg/api/models"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Create handlers
	healthHandler := handlers.NewHealthHandler(s.dataPlane)
	classifyHandler := handlers.NewClassifyHandler(s.dataPlane, handlers.ClassifyOptions{
		MaxBatchSize: s.config.MaxBatchSize,
		Timeout:      s.config.RequestTimeout,
		Workers:      s.config.Workers,
	})
	rulesHandler := handlers.NewRulesHandler(s.dataPlane.Rules())
	statsHandler := handlers.NewStatisticsHandler(s.dataPlane)

	// API v1 group
	v1 := s.router.Group("/api/v1")
	{
		// Health and status endpoints
		v1.GET("/health", healthHandler.GetHealth)
		v1.GET("/status", healthHandler.GetStatus)

		// Classification endpoints
		classify := v1.Group("/classify")
		{
			classify.POST("", classifyHandler.ClassifyBatch)
			classify.GET("/:addr", classifyHandler.Classify)
		}

		// Rule set endpoints, read-only once loaded
		rules := v1.Group("/rules")
		{
			rules.GET("", rulesHandler.ListRules)
			rules.GET("/:index", rulesHandler.GetRule)
		}

		// Statistics endpoints
		stats := v1.Group("/stats")
		{
			stats.GET("", statsHandler.GetAllStats)
			stats.GET("/queries", statsHandler.GetQueryStats)
			stats.GET("/rules", statsHandler.GetRuleStats)
		}

		// Configuration endpoints
		config := v1.Group("/config")
		{
			config.GET("", s.handleGetConfig)
			config.PUT("", s.handleUpdateConfig)
		}
	}

	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
}

func (s *Server) configResponse() models.ConfigResponse {
	s.configMu.RLock()
	defer s.configMu.RUnlock()

	return models.ConfigResponse{
		APIHost:        s.config.Host,
		APIPort:        s.config.Port,
		LogLevel:       s.config.LogLevel,
		Workers:        s.config.Workers,
		MaxBatchSize:   s.config.MaxBatchSize,
		RequestTimeout: s.config.RequestTimeout.String(),
	}
}

// handleGetConfig handles GET /api/v1/config
func (s *Server) handleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.configResponse())
}

// handleUpdateConfig handles PUT /api/v1/config
// Only the log level can change at runtime
func (s *Server) handleUpdateConfig(c *gin.Context) {
	var req models.ConfigUpdateRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.NewErrorResponse(
			http.StatusBadRequest,
			models.ErrCodeValidation,
			"Invalid request body",
			err.Error(),
		))
		return
	}

	if req.LogLevel != nil {
		level, err := log.ParseLevel(*req.LogLevel)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.NewErrorResponse(
				http.StatusBadRequest,
				models.ErrCodeValidation,
				"Invalid log level",
				err.Error(),
			))
			return
		}

		s.configMu.Lock()
		s.config.LogLevel = *req.LogLevel
		s.configMu.Unlock()

		log.SetLevel(level)
		log.Infof("Log level set to %s", level)
	}

	c.JSON(http.StatusOK, s.configResponse())
}
