// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package batch

import (
	"context"
	"net/netip"

	"github.com/ebpf-microsegment/firstmatch/pkg/classifier"
	"github.com/ebpf-microsegment/firstmatch/pkg/policy"
	"github.com/ebpf-microsegment/firstmatch/pkg/trie"
)

// Engine classifies a chunk of query addresses.
type Engine interface {
	ClassifyAll(ctx context.Context, addrs []netip.Addr, workers int) ([]classifier.Result, error)
}

// MalformedRecorder is implemented by engines that count skipped queries.
type MalformedRecorder interface {
	RecordMalformed()
}

// Options configures a batch run
type Options struct {
	// Workers is the number of goroutines classifying a chunk, 0 means GOMAXPROCS
	Workers int `json:"workers" yaml:"workers"`

	// ChunkSize is the number of queries read before they are classified
	ChunkSize int `json:"chunk_size" yaml:"chunk_size"`

	// MaxDiagnostics caps the diagnostics kept in the Report, 0 keeps all.
	// Every diagnostic is logged regardless.
	MaxDiagnostics int `json:"max_diagnostics" yaml:"max_diagnostics"`

	// OnTable is called with the frozen rule table before the trie is built
	OnTable func(*policy.Table) error `json:"-" yaml:"-"`

	// NewEngine builds the query engine from the frozen rule table.
	// nil builds a plain classifier.
	NewEngine func(*policy.Table) (Engine, error) `json:"-" yaml:"-"`
}

// DefaultOptions returns the default batch options
func DefaultOptions() Options {
	return Options{
		Workers:        0,
		ChunkSize:      65536,
		MaxDiagnostics: 1000,
	}
}

func (o Options) normalize() Options {
	def := DefaultOptions()
	if o.ChunkSize <= 0 {
		o.ChunkSize = def.ChunkSize
	}
	if o.MaxDiagnostics < 0 {
		o.MaxDiagnostics = def.MaxDiagnostics
	}
	if o.NewEngine == nil {
		o.NewEngine = BuildClassifier
	}
	return o
}

// BuildClassifier builds a trie over the table's unique keys and returns
// a classifier on it.
func BuildClassifier(table *policy.Table) (Engine, error) {
	return classifier.New(trie.Build(table.Entries()), table), nil
}
