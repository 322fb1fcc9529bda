// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package dataplane

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/cilium/ebpf"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/ebpf-microsegment/firstmatch/pkg/bitkey"
	"github.com/ebpf-microsegment/firstmatch/pkg/classifier"
	"github.com/ebpf-microsegment/firstmatch/pkg/policy"
	"github.com/ebpf-microsegment/firstmatch/pkg/trie"
)

// DataPlane is the frozen rule set with its trie and query engine
type DataPlane struct {
	table    *policy.Table
	trie     *trie.Trie
	cls      *classifier.Classifier
	shadowed int

	totalQueries atomic.Uint64
	permitted    atomic.Uint64
	rejected     atomic.Uint64
	unmatched    atomic.Uint64
	malformed    atomic.Uint64

	registry     *prometheus.Registry
	queryCounter *prometheus.CounterVec

	mu     sync.Mutex
	lpmMap *ebpf.Map
}

// Statistics holds query processing statistics
type Statistics struct {
	TotalQueries uint64
	Permitted    uint64
	Rejected     uint64
	Unmatched    uint64
	Malformed    uint64

	Rules          int
	UniquePrefixes int
	TrieNodes      int
	ShadowedRules  int
}

// New freezes table and builds the trie and classifier over it
func New(table *policy.Table) (*DataPlane, error) {
	if table == nil {
		return nil, errors.New("rule table is nil")
	}

	entries := table.Entries()
	t := trie.Build(entries)

	dp := &DataPlane{
		table:    table,
		trie:     t,
		cls:      classifier.New(t, table),
		registry: prometheus.NewRegistry(),
	}
	dp.shadowed = dp.countShadowed()

	if err := dp.registerMetrics(); err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	log.Infof("Data plane ready: %d rules, %d unique prefixes, %d trie nodes, %d shadowed rules",
		table.Len(), t.Len(), t.NodeCount(), dp.shadowed)
	return dp, nil
}

func (dp *DataPlane) registerMetrics() error {
	dp.queryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "firstmatch",
		Name:      "queries_total",
		Help:      "Classified queries by outcome.",
	}, []string{"outcome"})

	gauges := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "firstmatch",
			Name:      "rules",
			Help:      "Accepted rules.",
		}, func() float64 { return float64(dp.table.Len()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "firstmatch",
			Name:      "unique_prefixes",
			Help:      "Unique rule prefixes after deduplication.",
		}, func() float64 { return float64(dp.trie.Len()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "firstmatch",
			Name:      "trie_nodes",
			Help:      "Nodes in the prefix trie.",
		}, func() float64 { return float64(dp.trie.NodeCount()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "firstmatch",
			Name:      "shadowed_rules",
			Help:      "Rules fully covered by an earlier rule.",
		}, func() float64 { return float64(dp.shadowed) }),
	}

	if err := dp.registry.Register(dp.queryCounter); err != nil {
		return err
	}
	for _, g := range gauges {
		if err := dp.registry.Register(g); err != nil {
			return err
		}
	}
	return nil
}

// countShadowed counts rules that can never decide a query: duplicates of
// an earlier identical prefix and rules nested under an earlier shorter one.
func (dp *DataPlane) countShadowed() int {
	n := dp.table.Len() - dp.table.UniqueLen()
	dp.trie.Effective(func(_ bitkey.Key, own, effective int) {
		if own != effective {
			n++
		}
	})
	return n
}

func (dp *DataPlane) record(r classifier.Result) {
	dp.totalQueries.Add(1)
	var outcome string
	switch r.Action {
	case policy.Permit:
		dp.permitted.Add(1)
		outcome = "permit"
	case policy.Reject:
		dp.rejected.Add(1)
		outcome = "reject"
	default:
		dp.unmatched.Add(1)
		outcome = "none"
	}
	dp.queryCounter.WithLabelValues(outcome).Inc()
}

// Classify resolves addr and counts the outcome
func (dp *DataPlane) Classify(addr netip.Addr) (classifier.Result, error) {
	r, err := dp.cls.Classify(addr)
	if err != nil {
		dp.RecordMalformed()
		return r, err
	}
	dp.record(r)
	return r, nil
}

// ClassifyAll resolves addrs in parallel and counts the outcomes
func (dp *DataPlane) ClassifyAll(ctx context.Context, addrs []netip.Addr, workers int) ([]classifier.Result, error) {
	results, err := dp.cls.ClassifyAll(ctx, addrs, workers)
	if err != nil {
		return nil, err
	}

	var permitted, rejected, unmatched uint64
	for _, r := range results {
		switch r.Action {
		case policy.Permit:
			permitted++
		case policy.Reject:
			rejected++
		default:
			unmatched++
		}
	}
	dp.totalQueries.Add(uint64(len(results)))
	dp.permitted.Add(permitted)
	dp.rejected.Add(rejected)
	dp.unmatched.Add(unmatched)
	dp.queryCounter.WithLabelValues("permit").Add(float64(permitted))
	dp.queryCounter.WithLabelValues("reject").Add(float64(rejected))
	dp.queryCounter.WithLabelValues("none").Add(float64(unmatched))

	return results, nil
}

// Explain lists every rule containing addr and the winner
func (dp *DataPlane) Explain(addr netip.Addr) (*classifier.Explanation, error) {
	e, err := dp.cls.Explain(addr)
	if err != nil {
		dp.RecordMalformed()
		return nil, err
	}
	dp.record(e.Result)
	return e, nil
}

// RecordMalformed counts a query that could not be parsed
func (dp *DataPlane) RecordMalformed() {
	dp.malformed.Add(1)
	dp.queryCounter.WithLabelValues("malformed").Inc()
}

// GetStatistics returns the current query statistics
func (dp *DataPlane) GetStatistics() Statistics {
	return Statistics{
		TotalQueries:   dp.totalQueries.Load(),
		Permitted:      dp.permitted.Load(),
		Rejected:       dp.rejected.Load(),
		Unmatched:      dp.unmatched.Load(),
		Malformed:      dp.malformed.Load(),
		Rules:          dp.table.Len(),
		UniquePrefixes: dp.trie.Len(),
		TrieNodes:      dp.trie.NodeCount(),
		ShadowedRules:  dp.shadowed,
	}
}

// Registry returns the prometheus registry holding the data plane metrics
func (dp *DataPlane) Registry() *prometheus.Registry {
	return dp.registry
}

// Table returns the frozen rule table
func (dp *DataPlane) Table() *policy.Table {
	return dp.table
}

// Close releases the exported LPM map, if any. A pinned map stays in the
// BPF filesystem.
func (dp *DataPlane) Close() error {
	dp.mu.Lock()
	defer dp.mu.Unlock()

	if dp.lpmMap == nil {
		return nil
	}
	err := dp.lpmMap.Close()
	dp.lpmMap = nil
	if err != nil {
		return fmt.Errorf("closing LPM map: %w", err)
	}
	log.Debug("LPM map closed")
	return nil
}
