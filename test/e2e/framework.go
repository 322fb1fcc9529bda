// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause

// Package e2e provides an end-to-end testing framework for the first-match
// classifier. It runs the batch pipeline on a complete input stream,
// persists the accepted rules, and serves the resulting data plane over a
// real HTTP listener.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ebpf-microsegment/firstmatch/pkg/api"
	"github.com/ebpf-microsegment/firstmatch/pkg/api/models"
	"github.com/ebpf-microsegment/firstmatch/pkg/batch"
	"github.com/ebpf-microsegment/firstmatch/pkg/dataplane"
	"github.com/ebpf-microsegment/firstmatch/pkg/policy"
	"github.com/stretchr/testify/require"
)

// E2ETestEnv represents a complete end-to-end test environment.
// It includes the batch output, rule storage, data plane, and API server.
type E2ETestEnv struct {
	T           *testing.T
	DataPlane   *dataplane.DataPlane
	Report      *batch.Report
	Output      []string
	Storage     *policy.SQLiteStorage
	StoragePath string
	Server      *api.Server
	HTTPClient  *http.Client
	APIBaseURL  string

	cleanupFuncs []func()
}

// NewE2ETestEnv creates a new end-to-end test environment from a complete
// input stream: rule count, rules, query count, queries.
//
// The environment includes:
//   - The answer lines of the batch run
//   - A SQLite database holding the accepted rules
//   - The data plane built by the batch run
//   - An API server on a loopback port
//
// Returns:
//   - *E2ETestEnv: The test environment
//   - error: Error if setup fails
func NewE2ETestEnv(t *testing.T, input io.Reader) (*E2ETestEnv, error) {
	env := &E2ETestEnv{
		T:            t,
		HTTPClient:   &http.Client{Timeout: 5 * time.Second},
		cleanupFuncs: make([]func(), 0),
	}

	// Create temporary storage for rules
	env.StoragePath = filepath.Join(t.TempDir(), "rules.db")
	storage, err := policy.NewSQLiteStorage(env.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}
	env.Storage = storage
	env.addCleanup(func() {
		storage.Close()
	})

	opts := batch.DefaultOptions()
	opts.ChunkSize = 1024
	opts.OnTable = func(table *policy.Table) error {
		return storage.SaveRules(table.Rules())
	}
	opts.NewEngine = func(table *policy.Table) (batch.Engine, error) {
		dp, err := dataplane.New(table)
		if err != nil {
			return nil, err
		}
		env.DataPlane = dp
		env.addCleanup(func() {
			dp.Close()
		})
		return dp, nil
	}

	var out bytes.Buffer
	report, err := batch.Process(context.Background(), input, &out, opts)
	if err != nil {
		env.Cleanup()
		return nil, fmt.Errorf("batch run failed: %w", err)
	}
	env.Report = report
	if s := strings.TrimSuffix(out.String(), "\n"); s != "" {
		env.Output = strings.Split(s, "\n")
	}

	// Serve the data plane on an ephemeral port
	cfg := api.DefaultConfig()
	cfg.Port = 0
	cfg.EnableCORS = false
	server, err := api.NewAPIServer(cfg, env.DataPlane)
	if err != nil {
		env.Cleanup()
		return nil, fmt.Errorf("failed to create API server: %w", err)
	}
	if err := server.Start(); err != nil {
		env.Cleanup()
		return nil, fmt.Errorf("failed to start API server: %w", err)
	}
	env.Server = server
	env.APIBaseURL = "http://" + server.Addr()
	env.addCleanup(func() {
		server.Stop()
	})

	return env, nil
}

// addCleanup adds a cleanup function to be called on test teardown.
func (env *E2ETestEnv) addCleanup(fn func()) {
	env.cleanupFuncs = append(env.cleanupFuncs, fn)
}

// Cleanup releases all resources created by the test environment.
// It should be called with defer after creating the environment.
func (env *E2ETestEnv) Cleanup() {
	// Call cleanup functions in reverse order
	for i := len(env.cleanupFuncs) - 1; i >= 0; i-- {
		env.cleanupFuncs[i]()
	}
	env.cleanupFuncs = nil
}

// GetStatistics retrieves current statistics from the data plane.
func (env *E2ETestEnv) GetStatistics() dataplane.Statistics {
	return env.DataPlane.GetStatistics()
}

// ReloadFromStorage rebuilds a second data plane from the saved rules.
func (env *E2ETestEnv) ReloadFromStorage() (*dataplane.DataPlane, error) {
	table, err := policy.LoadTable(env.Storage)
	if err != nil {
		return nil, err
	}
	dp, err := dataplane.New(table)
	if err != nil {
		return nil, err
	}
	env.addCleanup(func() {
		dp.Close()
	})
	return dp, nil
}

// DoHTTPRequest performs an HTTP request against the API server.
func (env *E2ETestEnv) DoHTTPRequest(method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, env.APIBaseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return env.HTTPClient.Do(req)
}

// decode performs a request and decodes a JSON response with the expected status.
func (env *E2ETestEnv) decode(method, path string, body interface{}, status int, out interface{}) error {
	resp, err := env.DoHTTPRequest(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != status {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// ClassifyViaAPI classifies a batch of addresses via the REST API.
func (env *E2ETestEnv) ClassifyViaAPI(addrs []string) (*models.ClassifyResponse, error) {
	var resp models.ClassifyResponse
	if err := env.decode("POST", "/api/v1/classify", models.ClassifyRequest{Addresses: addrs}, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ExplainViaAPI explains one address via the REST API.
func (env *E2ETestEnv) ExplainViaAPI(addr string) (*models.ExplainResponse, error) {
	var resp models.ExplainResponse
	if err := env.decode("GET", "/api/v1/classify/"+addr+"?explain=true", nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AssertAnswer asserts the answer line the API gives for addr.
func (env *E2ETestEnv) AssertAnswer(addr, expected string) {
	resp, err := env.ClassifyViaAPI([]string{addr})
	require.NoError(env.T, err)
	require.Len(env.T, resp.Results, 1)
	require.Equal(env.T, expected, resp.Results[0].Answer,
		"Answer for %s should be %q", addr, expected)
}

// AssertStatistic asserts that a specific statistic matches the expected value.
func (env *E2ETestEnv) AssertStatistic(name string, expected uint64) {
	stats := env.GetStatistics()

	var actual uint64
	switch name {
	case "total_queries":
		actual = stats.TotalQueries
	case "permitted":
		actual = stats.Permitted
	case "rejected":
		actual = stats.Rejected
	case "unmatched":
		actual = stats.Unmatched
	case "malformed":
		actual = stats.Malformed
	default:
		env.T.Fatalf("Unknown statistic: %s", name)
	}

	require.Equal(env.T, expected, actual,
		"Statistic %s should be %d, got %d", name, expected, actual)
}
