// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ebpf-microsegment/firstmatch/pkg/batch"
	"github.com/ebpf-microsegment/firstmatch/pkg/dataplane"
	"github.com/ebpf-microsegment/firstmatch/pkg/policy"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	logLevel  string
	workers   int
	chunkSize int
	saveDB    string
	showStats bool
)

var rootCmd = &cobra.Command{
	Use:   "firstmatch [file]",
	Short: "First-match IPv4 ACL classifier",
	Long: `Reads a rule count, that many "<cidr> <label>" rules, a query count and that many
IPv4 addresses, then prints one answer per valid query: "match rule <i>, permit|reject"
for the lowest-indexed containing rule, or "match none". Reads stdin when no file is given.`,
	Args:              cobra.MaximumNArgs(1),
	PersistentPreRunE: setupLogging,
	Run:               runBatch,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "Log level (debug, info, warn, error)")

	rootCmd.Flags().IntVarP(&workers, "workers", "w", 0, "Classifier goroutines per chunk (0 = GOMAXPROCS)")
	rootCmd.Flags().IntVar(&chunkSize, "chunk-size", batch.DefaultOptions().ChunkSize, "Queries classified per chunk")
	rootCmd.Flags().StringVar(&saveDB, "save-db", "", "Save the accepted rules to this SQLite database")
	rootCmd.Flags().BoolVarP(&showStats, "stats", "s", false, "Log query statistics when done")

	rootCmd.AddCommand(serveCmd, generateCmd, exportCmd)
}

func setupLogging(cmd *cobra.Command, args []string) error {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
	log.SetOutput(os.Stderr)
	return nil
}

// openInput returns the named file, or stdin for "" and "-"
func openInput(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, nil
}

func saveRules(path string) func(*policy.Table) error {
	return func(table *policy.Table) error {
		storage, err := policy.NewSQLiteStorage(path)
		if err != nil {
			return err
		}
		defer storage.Close()

		return storage.ReplaceRules(table.Rules())
	}
}

func runBatch(cmd *cobra.Command, args []string) {
	var path string
	if len(args) > 0 {
		path = args[0]
	}

	in, err := openInput(path)
	if err != nil {
		log.Fatal(err)
	}
	defer in.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var dp *dataplane.DataPlane
	opts := batch.Options{
		Workers:        workers,
		ChunkSize:      chunkSize,
		MaxDiagnostics: batch.DefaultOptions().MaxDiagnostics,
		NewEngine: func(table *policy.Table) (batch.Engine, error) {
			var err error
			dp, err = dataplane.New(table)
			return dp, err
		},
	}
	if saveDB != "" {
		opts.OnTable = saveRules(saveDB)
	}

	report, err := batch.Process(ctx, in, os.Stdout, opts)
	if dp != nil {
		defer dp.Close()
	}
	if err != nil {
		log.Fatalf("Batch failed: %v", err)
	}

	if report.RulesSkipped > 0 || report.QueriesSkipped > 0 {
		log.Warnf("Skipped %d malformed rules and %d malformed queries", report.RulesSkipped, report.QueriesSkipped)
	}
	if report.DroppedDiagnostics > 0 {
		log.Warnf("%d further diagnostics not kept", report.DroppedDiagnostics)
	}

	if showStats && dp != nil {
		logStatistics(dp.GetStatistics())
	}
}

func logStatistics(stats dataplane.Statistics) {
	log.Info("=== Statistics ===")
	log.Infof("  Rules:            %d", stats.Rules)
	log.Infof("  Unique Prefixes:  %d", stats.UniquePrefixes)
	log.Infof("  Shadowed Rules:   %d", stats.ShadowedRules)
	log.Infof("  Trie Nodes:       %d", stats.TrieNodes)
	log.Infof("  Total Queries:    %d", stats.TotalQueries)
	log.Infof("  Permitted:        %d", stats.Permitted)
	log.Infof("  Rejected:         %d", stats.Rejected)
	log.Infof("  Unmatched:        %d", stats.Unmatched)
	log.Infof("  Malformed:        %d", stats.Malformed)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
