// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause

// Package classifier answers first-match queries against a frozen trie
// and the label table it was built from.
package classifier

import (
	"context"
	"fmt"
	"net/netip"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ebpf-microsegment/firstmatch/pkg/bitkey"
	"github.com/ebpf-microsegment/firstmatch/pkg/policy"
	"github.com/ebpf-microsegment/firstmatch/pkg/trie"
)

// sliceSize is the number of addresses a worker classifies between
// context checks.
const sliceSize = 4096

// Result is the outcome of one query.
type Result struct {
	// Index is the original index of the winning rule, -1 if none matched
	Index   int
	Matched bool
	Action  policy.Action
}

// None is the result of an address no rule contains.
var None = Result{Index: -1, Action: policy.NoMatch}

// String renders r as an answer line.
func (r Result) String() string {
	if !r.Matched {
		return "match none"
	}
	return fmt.Sprintf("match rule %d, %s", r.Index, r.Action)
}

// Match is one rule containing an explained address.
type Match struct {
	Index     int
	PrefixLen int
	Label     policy.Label
}

// Explanation lists every rule containing an address, shortest prefix
// first, and the rule that decides it.
type Explanation struct {
	Addr    netip.Addr
	Matches []Match
	Result  Result
}

// Classifier is an immutable query handle and is safe for concurrent use.
type Classifier struct {
	trie   *trie.Trie
	labels policy.LabelSource
}

// New creates a classifier. t must have been built from the rules that
// labels describes.
func New(t *trie.Trie, labels policy.LabelSource) *Classifier {
	return &Classifier{trie: t, labels: labels}
}

// Classify resolves the action for addr. Only IPv4 addresses are accepted.
func (c *Classifier) Classify(addr netip.Addr) (Result, error) {
	key, err := bitkey.FromAddr(addr)
	if err != nil {
		return None, err
	}
	return c.ClassifyKey(key), nil
}

// ClassifyKey resolves the action for a full-width address key. A key of
// any other length never matches.
func (c *Classifier) ClassifyKey(key bitkey.Key) Result {
	idx, ok := c.trie.Lookup(key)
	if !ok {
		return None
	}
	label, ok := c.labels.LabelOf(idx)
	if !ok {
		// trie and label table out of sync
		return None
	}
	return Result{Index: idx, Matched: true, Action: policy.Resolve(label)}
}

// ClassifyAll classifies addrs on up to workers goroutines and returns the
// results in input order. workers <= 0 means GOMAXPROCS. The context is
// checked between slices of work.
func (c *Classifier) ClassifyAll(ctx context.Context, addrs []netip.Addr, workers int) ([]Result, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]Result, len(addrs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for start := 0; start < len(addrs); start += sliceSize {
		end := min(start+sliceSize, len(addrs))
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				r, err := c.Classify(addrs[i])
				if err != nil {
					return fmt.Errorf("address %d: %w", i, err)
				}
				results[i] = r
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Explain reports every rule containing addr and the winner among them.
func (c *Classifier) Explain(addr netip.Addr) (*Explanation, error) {
	key, err := bitkey.FromAddr(addr)
	if err != nil {
		return nil, err
	}

	e := &Explanation{Addr: addr, Result: c.ClassifyKey(key)}
	c.trie.Matches(key, func(prefixLen, index int) {
		label, _ := c.labels.LabelOf(index)
		e.Matches = append(e.Matches, Match{Index: index, PrefixLen: prefixLen, Label: label})
	})
	return e, nil
}
