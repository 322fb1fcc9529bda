// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ebpf-microsegment/firstmatch/pkg/api/models"
	"github.com/ebpf-microsegment/firstmatch/pkg/dataplane"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

// setupHealthTestRouter creates a test router with health handler
func setupHealthTestRouter(dp dataplane.DataPlaneInterface) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	handler := NewHealthHandler(dp)

	router.GET("/api/v1/health", handler.GetHealth)
	router.GET("/api/v1/status", handler.GetStatus)

	return router
}

// TestGetHealth_Success tests the basic health check endpoint
func TestGetHealth_Success(t *testing.T) {
	// Setup
	router := setupHealthTestRouter(new(MockDataPlane))

	// Execute
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// Assert
	assert.Equal(t, http.StatusOK, w.Code)

	var response models.HealthResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, "ok", response.Status)
	assert.Equal(t, "API server is healthy", response.Message)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
}

// TestGetStatus_Success tests successful status retrieval
func TestGetStatus_Success(t *testing.T) {
	// Setup
	mockDP := new(MockDataPlane)
	mockDP.On("GetStatistics").Return(sampleStatistics())

	originalStartTime := startTime
	startTime = time.Now().Add(-1 * time.Hour) // Simulate 1 hour uptime
	defer func() { startTime = originalStartTime }()

	router := setupHealthTestRouter(mockDP)

	// Execute
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// Assert
	assert.Equal(t, http.StatusOK, w.Code)

	var response models.StatusResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)

	assert.Equal(t, "ok", response.Status)
	assert.Equal(t, Version, response.Version)
	assert.Equal(t, "ready", response.DataPlane.Status)
	assert.Equal(t, "running", response.API.Status)

	assert.NotNil(t, response.Statistics)
	assert.Equal(t, uint64(1000), response.Statistics.TotalQueries)
	assert.Equal(t, uint64(600), response.Statistics.Permitted)
	assert.Equal(t, 12, response.Statistics.ShadowedRules)
	assert.Equal(t, 50, response.RuleCount)

	assert.InDelta(t, 3600, response.Uptime, 5)
	mockDP.AssertExpectations(t)
}

// TestGetStatus_States tests idle, degraded and missing data plane status
func TestGetStatus_States(t *testing.T) {
	testCases := []struct {
		name            string
		dp              dataplane.DataPlaneInterface
		expectedCode    int
		expectedStatus  string
		expectedDPState string
	}{
		{
			name: "idle",
			dp: func() dataplane.DataPlaneInterface {
				m := new(MockDataPlane)
				m.On("GetStatistics").Return(dataplane.Statistics{Rules: 3, UniquePrefixes: 3})
				return m
			}(),
			expectedCode:    http.StatusOK,
			expectedStatus:  "ok",
			expectedDPState: "idle",
		},
		{
			name: "empty rule set",
			dp: func() dataplane.DataPlaneInterface {
				m := new(MockDataPlane)
				m.On("GetStatistics").Return(dataplane.Statistics{TotalQueries: 4, Unmatched: 4})
				return m
			}(),
			expectedCode:    http.StatusOK,
			expectedStatus:  "degraded",
			expectedDPState: "ready",
		},
		{
			name:            "no data plane",
			dp:              nil,
			expectedCode:    http.StatusServiceUnavailable,
			expectedStatus:  "down",
			expectedDPState: "stopped",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Setup
			router := setupHealthTestRouter(tc.dp)

			// Execute
			req, _ := http.NewRequest(http.MethodGet, "/api/v1/status", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			// Assert
			assert.Equal(t, tc.expectedCode, w.Code)

			var response models.StatusResponse
			err := json.Unmarshal(w.Body.Bytes(), &response)
			assert.NoError(t, err)
			assert.Equal(t, tc.expectedStatus, response.Status)
			assert.Equal(t, tc.expectedDPState, response.DataPlane.Status)
		})
	}
}
