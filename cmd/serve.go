// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ebpf-microsegment/firstmatch/pkg/api"
	"github.com/ebpf-microsegment/firstmatch/pkg/batch"
	"github.com/ebpf-microsegment/firstmatch/pkg/dataplane"
	"github.com/ebpf-microsegment/firstmatch/pkg/policy"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	rulesFile      string
	dbPath         string
	apiHost        string
	apiPort        int
	maxBatchSize   int
	requestTimeout time.Duration
	statsInterval  int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Load a rule set and serve classification over HTTP",
	Args:  cobra.NoArgs,
	Run:   runServe,
}

func init() {
	def := api.DefaultConfig()

	serveCmd.Flags().StringVarP(&rulesFile, "rules", "r", "", "Rule file: a rule count followed by the rules")
	serveCmd.Flags().StringVar(&dbPath, "db", "", "SQLite database written by --save-db")
	serveCmd.Flags().StringVar(&apiHost, "api-host", def.Host, "API server host")
	serveCmd.Flags().IntVar(&apiPort, "api-port", def.Port, "API server port")
	serveCmd.Flags().IntVarP(&workers, "workers", "w", def.Workers, "Classifier goroutines per batch request (0 = GOMAXPROCS)")
	serveCmd.Flags().IntVar(&maxBatchSize, "max-batch", def.MaxBatchSize, "Maximum addresses per classify request")
	serveCmd.Flags().DurationVar(&requestTimeout, "request-timeout", def.RequestTimeout, "Deadline of one classify request")
	serveCmd.Flags().IntVarP(&statsInterval, "stats-interval", "s", 0, "Statistics log interval in seconds (0 = off)")
}

// loadTable reads the rule set from a rule file or a database
func loadTable(rulesPath, db string) (*policy.Table, error) {
	switch {
	case rulesPath != "" && db != "":
		return nil, errors.New("--rules and --db are mutually exclusive")
	case db != "":
		storage, err := policy.NewSQLiteStorage(db)
		if err != nil {
			return nil, err
		}
		defer storage.Close()
		return policy.LoadTable(storage)
	case rulesPath != "":
		in, err := openInput(rulesPath)
		if err != nil {
			return nil, err
		}
		defer in.Close()

		table, report, err := batch.ReadRules(in, batch.DefaultOptions())
		if err != nil {
			return nil, err
		}
		if report.RulesSkipped > 0 {
			log.Warnf("Skipped %d malformed rules", report.RulesSkipped)
		}
		return table, nil
	default:
		return nil, errors.New("one of --rules or --db is required")
	}
}

func runServe(cmd *cobra.Command, args []string) {
	table, err := loadTable(rulesFile, dbPath)
	if err != nil {
		log.Fatalf("Failed to load rules: %v", err)
	}

	// Create data plane
	dp, err := dataplane.New(table)
	if err != nil {
		log.Fatalf("Failed to create data plane: %v", err)
	}
	defer dp.Close()

	log.Info("✓ Data plane initialized")

	apiConfig := api.DefaultConfig()
	apiConfig.Host = apiHost
	apiConfig.Port = apiPort
	apiConfig.LogLevel = logLevel
	apiConfig.Workers = workers
	apiConfig.MaxBatchSize = maxBatchSize
	apiConfig.RequestTimeout = requestTimeout

	apiServer, err := api.NewAPIServer(apiConfig, dp)
	if err != nil {
		log.Fatalf("Failed to create API server: %v", err)
	}

	if err := apiServer.Start(); err != nil {
		log.Fatalf("Failed to start API server: %v", err)
	}

	log.Infof("✓ API server started on http://%s", apiServer.Addr())

	// Print statistics periodically
	if statsInterval > 0 {
		ticker := time.NewTicker(time.Duration(statsInterval) * time.Second)
		defer ticker.Stop()

		go func() {
			for range ticker.C {
				logStatistics(dp.GetStatistics())
			}
		}()
	}

	// Wait for interrupt signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	log.Info("✓ Server running. Press Ctrl+C to exit")

	<-sig
	log.Info("Shutting down...")

	if err := apiServer.Stop(); err != nil {
		log.Errorf("Error stopping API server: %v", err)
	}
}
