// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ebpf-microsegment/firstmatch/pkg/dataplane"
	"github.com/ebpf-microsegment/firstmatch/pkg/policy"
	"github.com/ebpf-microsegment/firstmatch/pkg/testutil"

	log "github.com/sirupsen/logrus"
)

var (
	ruleCount  = flag.Int("rules", 1_000_000, "Number of generated rules")
	queryCount = flag.Int("queries", 1_000_000, "Number of generated queries per round")
	minPrefix  = flag.Int("min-prefix", 8, "Shortest rule prefix length")
	maxPrefix  = flag.Int("max-prefix", 32, "Longest rule prefix length")
	seed       = flag.Uint64("seed", 1, "Random seed (0 = random)")
	workers    = flag.Int("workers", 0, "Classifier goroutines (0 = GOMAXPROCS)")
	rounds     = flag.Int("rounds", 5, "Number of query rounds")
	verify     = flag.Int("verify", 1000, "Queries per round cross-checked against a linear scan")
)

func main() {
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)

	log.Info("=== First-Match Classifier Performance Test ===")
	log.Infof("Rules: %d (/%d to /%d)", *ruleCount, *minPrefix, *maxPrefix)
	log.Infof("Queries: %d x %d rounds", *queryCount, *rounds)
	log.Info("================================================")

	g, err := testutil.NewGenerator(&testutil.GenConfig{
		Rules:     *ruleCount,
		Queries:   *queryCount,
		Seed:      *seed,
		MinPrefix: *minPrefix,
		MaxPrefix: *maxPrefix,
	})
	if err != nil {
		log.Fatalf("Invalid generator config: %v", err)
	}

	rules := g.Rules()

	// Build phase: ingest, dedup, sort and trie construction
	start := time.Now()
	table := policy.NewTable(len(rules))
	for _, r := range rules {
		if err := table.Ingest(r); err != nil {
			log.Fatalf("Failed to ingest rule %d: %v", r.Index, err)
		}
	}
	dp, err := dataplane.New(table)
	if err != nil {
		log.Fatalf("Failed to create data plane: %v", err)
	}
	defer dp.Close()
	buildTime := time.Since(start)

	log.Infof("✓ Built trie in %s", buildTime)
	printStats(dp.GetStatistics())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var total time.Duration
	var answered uint64
	baselineStats := dp.GetStatistics()

	for round := 1; round <= *rounds; round++ {
		addrs := g.Addrs()

		start := time.Now()
		results, err := dp.ClassifyAll(ctx, addrs, *workers)
		elapsed := time.Since(start)
		if err != nil {
			log.Warnf("Round %d stopped: %v", round, err)
			break
		}
		total += elapsed
		answered += uint64(len(results))

		qps := float64(len(results)) / elapsed.Seconds()
		log.Infof("Round %d: %d queries in %s (%.0f qps, %.1f ns/query)",
			round, len(results), elapsed, qps, float64(elapsed.Nanoseconds())/float64(max(len(results), 1)))

		for j := 0; j < min(*verify, len(addrs)); j++ {
			want := testutil.NaiveClassify(rules, addrs[j])
			if results[j] != want {
				log.Fatalf("Mismatch for %s: got %q, want %q", addrs[j], results[j], want)
			}
		}
	}

	// Calculate overall metrics
	log.Info("\n=== Total Test Statistics ===")
	printStats(calculateDelta(dp.GetStatistics(), baselineStats))

	if answered > 0 {
		log.Infof("Build Time: %s", buildTime)
		log.Infof("Average Query Rate: %.0f qps", float64(answered)/total.Seconds())
		log.Infof("Average Latency: %.1f ns/query", float64(total.Nanoseconds())/float64(answered))
	} else {
		log.Warn("No queries answered during test")
	}

	log.Info("\n=== Test Complete ===")
}

func printStats(stats dataplane.Statistics) {
	log.Infof("  Rules:             %d", stats.Rules)
	log.Infof("  Unique Prefixes:   %d", stats.UniquePrefixes)
	log.Infof("  Shadowed Rules:    %d", stats.ShadowedRules)
	log.Infof("  Trie Nodes:        %d", stats.TrieNodes)
	log.Infof("  Total Queries:     %d", stats.TotalQueries)
	log.Infof("  Permitted:         %d", stats.Permitted)
	log.Infof("  Rejected:          %d", stats.Rejected)
	log.Infof("  Unmatched:         %d", stats.Unmatched)
}

func calculateDelta(current, previous dataplane.Statistics) dataplane.Statistics {
	delta := current // Rule set figures are absolute, not deltas
	delta.TotalQueries = current.TotalQueries - previous.TotalQueries
	delta.Permitted = current.Permitted - previous.Permitted
	delta.Rejected = current.Rejected - previous.Rejected
	delta.Unmatched = current.Unmatched - previous.Unmatched
	delta.Malformed = current.Malformed - previous.Malformed
	return delta
}
