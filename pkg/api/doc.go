// Package api provides a RESTful HTTP API server in front of a first-match
// IPv4 rule set.
//
// The API server exposes endpoints for:
//   - Classification of single addresses and batches
//   - Read-only listing of the loaded rules
//   - Query and rule set statistics
//   - Health checks and system status monitoring
//   - Runtime configuration
//
// # Architecture
//
// The API server is built on the Gin web framework and integrates with:
//   - The data plane, which owns the frozen rule table and trie
//   - A per-data-plane prometheus registry served on /metrics
//
// # Example Usage
//
// Basic server setup:
//
//	cfg := api.DefaultConfig()
//	cfg.Port = 8080
//	cfg.MaxBatchSize = 50000
//
//	server, err := api.NewAPIServer(cfg, dataPlane)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := server.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer server.Stop()
//
// # Endpoints
//
// Health check:
//   - GET /api/v1/health  - Simple health check
//   - GET /api/v1/status  - Detailed system status
//
// Classification:
//   - POST /api/v1/classify       - Classify a batch of addresses
//   - GET  /api/v1/classify/:addr - Classify one address, ?explain=true lists every containing rule
//
// Rules:
//   - GET /api/v1/rules        - List rules in index order (offset, limit)
//   - GET /api/v1/rules/:index - Get one rule by original index
//
// Statistics:
//   - GET /api/v1/stats         - All statistics
//   - GET /api/v1/stats/queries - Query outcomes and rates
//   - GET /api/v1/stats/rules   - Rule set shape
//
// Configuration:
//   - GET /api/v1/config - Current configuration
//   - PUT /api/v1/config - Change the log level
//
// Metrics:
//   - GET /metrics - Prometheus exposition
//
// # Middleware
//
// The server includes the following middleware:
//   - Recovery: Catches panics and prevents server crashes
//   - Logger: Logs all HTTP requests with timing information
//   - Metrics: Observes request latency per route template
//   - CORS: Enables cross-origin resource sharing for web UIs
//
// # Thread Safety
//
// The rule set is immutable once loaded, so classification requests run
// concurrently without locking.
package api
