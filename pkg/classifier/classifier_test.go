// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package classifier

import (
	"context"
	"math/rand/v2"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebpf-microsegment/firstmatch/pkg/policy"
	"github.com/ebpf-microsegment/firstmatch/pkg/trie"
)

type ruleSpec struct {
	index int
	cidr  string
	label policy.Label
}

func newClassifier(t *testing.T, rules []ruleSpec) *Classifier {
	t.Helper()
	table := policy.NewTable(len(rules))
	for _, r := range rules {
		pfx, err := policy.ParseCIDR(r.cidr)
		require.NoError(t, err)
		require.NoError(t, table.Ingest(policy.Rule{Index: r.index, Prefix: pfx, Label: r.label}))
	}
	return New(trie.Build(table.Entries()), table)
}

func classify(t *testing.T, c *Classifier, addr string) string {
	t.Helper()
	r, err := c.Classify(netip.MustParseAddr(addr))
	require.NoError(t, err)
	return r.String()
}

// TestClassify covers the documented first-match properties
func TestClassify(t *testing.T) {
	testCases := []struct {
		name    string
		rules   []ruleSpec
		queries map[string]string
	}{
		{
			name: "first match over longest match",
			rules: []ruleSpec{
				{0, "10.0.0.0/8", policy.LabelPermit},
				{1, "10.1.0.0/16", policy.LabelReject},
			},
			queries: map[string]string{"10.1.2.3": "match rule 0, permit"},
		},
		{
			name:    "no match",
			rules:   []ruleSpec{{0, "192.168.0.0/16", policy.LabelPermit}},
			queries: map[string]string{"8.8.8.8": "match none"},
		},
		{
			name: "catch-all first covers everything",
			rules: []ruleSpec{
				{0, "0.0.0.0/0", policy.LabelReject},
				{1, "10.0.0.0/8", policy.LabelPermit},
			},
			queries: map[string]string{
				"10.0.0.1": "match rule 0, reject",
				"1.2.3.4":  "match rule 0, reject",
			},
		},
		{
			name: "catch-all as fallback",
			rules: []ruleSpec{
				{0, "10.0.0.0/8", policy.LabelPermit},
				{1, "0.0.0.0/0", policy.LabelReject},
			},
			queries: map[string]string{
				"10.0.0.1": "match rule 0, permit",
				"1.2.3.4":  "match rule 1, reject",
			},
		},
		{
			name: "duplicate prefix first occurrence wins",
			rules: []ruleSpec{
				{0, "10.0.0.0/8", policy.LabelPermit},
				{1, "10.0.0.0/8", policy.LabelReject},
			},
			queries: map[string]string{"10.5.5.5": "match rule 0, permit"},
		},
		{
			name: "host rule boundary",
			rules: []ruleSpec{
				{0, "192.168.1.1/32", policy.LabelReject},
			},
			queries: map[string]string{
				"192.168.1.1": "match rule 0, reject",
				"192.168.1.0": "match none",
				"192.168.1.3": "match none",
			},
		},
		{
			name: "index gap keeps provenance",
			rules: []ruleSpec{
				{0, "10.0.0.0/8", policy.LabelReject},
				{2, "11.0.0.0/8", policy.LabelPermit},
			},
			queries: map[string]string{"11.1.1.1": "match rule 2, permit"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := newClassifier(t, tc.rules)
			for addr, want := range tc.queries {
				assert.Equal(t, want, classify(t, c, addr), addr)
			}
		})
	}
}

// TestClassify_IngestOrderIndependent tests that arrival order does not change outcomes
func TestClassify_IngestOrderIndependent(t *testing.T) {
	ordered := []ruleSpec{
		{0, "10.0.0.0/8", policy.LabelPermit},
		{1, "10.0.0.0/8", policy.LabelReject},
		{2, "10.1.0.0/16", policy.LabelReject},
		{3, "0.0.0.0/0", policy.LabelReject},
		{4, "10.1.0.0/16", policy.LabelPermit},
	}
	reversed := make([]ruleSpec, len(ordered))
	for i, r := range ordered {
		reversed[len(ordered)-1-i] = r
	}

	a := newClassifier(t, ordered)
	b := newClassifier(t, reversed)

	for _, addr := range []string{"10.1.1.1", "10.2.2.2", "9.9.9.9", "255.255.255.255"} {
		assert.Equal(t, classify(t, a, addr), classify(t, b, addr), addr)
	}
	assert.Equal(t, "match rule 0, permit", classify(t, b, "10.1.1.1"))
}

// TestClassify_IPv6 tests that non-IPv4 addresses are rejected
func TestClassify_IPv6(t *testing.T) {
	c := newClassifier(t, []ruleSpec{{0, "0.0.0.0/0", policy.LabelPermit}})

	r, err := c.Classify(netip.MustParseAddr("::1"))
	assert.Error(t, err)
	assert.Equal(t, None, r)

	_, err = c.Classify(netip.MustParseAddr("::ffff:10.0.0.1"))
	assert.Error(t, err)
}

// TestClassifyAll_Order tests that parallel results follow input order
func TestClassifyAll_Order(t *testing.T) {
	c := newClassifier(t, []ruleSpec{
		{0, "10.0.0.0/8", policy.LabelPermit},
		{1, "0.0.0.0/1", policy.LabelReject},
	})

	prng := rand.New(rand.NewPCG(1, 2))
	addrs := make([]netip.Addr, 3*sliceSize+17)
	for i := range addrs {
		var b [4]byte
		v := prng.Uint32()
		b[0], b[1], b[2], b[3] = byte(v>>24), byte(v>>16), byte(v>>8), byte(v)
		addrs[i] = netip.AddrFrom4(b)
	}

	results, err := c.ClassifyAll(context.Background(), addrs, 4)
	require.NoError(t, err)
	require.Len(t, results, len(addrs))

	for i, addr := range addrs {
		want, err := c.Classify(addr)
		require.NoError(t, err)
		require.Equal(t, want, results[i], addr.String())
	}
}

// TestClassifyAll_Errors tests cancellation and invalid input
func TestClassifyAll_Errors(t *testing.T) {
	c := newClassifier(t, []ruleSpec{{0, "0.0.0.0/0", policy.LabelPermit}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.ClassifyAll(ctx, []netip.Addr{netip.MustParseAddr("1.1.1.1")}, 1)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = c.ClassifyAll(context.Background(), []netip.Addr{netip.MustParseAddr("::1")}, 0)
	assert.Error(t, err)

	results, err := c.ClassifyAll(context.Background(), nil, 0)
	assert.NoError(t, err)
	assert.Empty(t, results)
}

// TestExplain tests the list of containing rules
func TestExplain(t *testing.T) {
	c := newClassifier(t, []ruleSpec{
		{0, "10.1.0.0/16", policy.LabelReject},
		{1, "10.0.0.0/8", policy.LabelPermit},
		{2, "0.0.0.0/0", policy.LabelPermit},
		{3, "10.0.0.0/8", policy.LabelReject},
	})

	e, err := c.Explain(netip.MustParseAddr("10.1.200.1"))
	require.NoError(t, err)

	assert.Equal(t, []Match{
		{Index: 2, PrefixLen: 0, Label: policy.LabelPermit},
		{Index: 1, PrefixLen: 8, Label: policy.LabelPermit},
		{Index: 0, PrefixLen: 16, Label: policy.LabelReject},
	}, e.Matches)
	assert.Equal(t, "match rule 0, reject", e.Result.String())

	e, err = c.Explain(netip.MustParseAddr("10.2.0.1"))
	require.NoError(t, err)
	assert.Len(t, e.Matches, 2)
	assert.Equal(t, 1, e.Result.Index)

	_, err = c.Explain(netip.MustParseAddr("2001:db8::1"))
	assert.Error(t, err)
}
