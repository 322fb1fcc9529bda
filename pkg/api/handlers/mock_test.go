// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package handlers

import (
	"context"
	"net/netip"
	"testing"

	"github.com/ebpf-microsegment/firstmatch/pkg/classifier"
	"github.com/ebpf-microsegment/firstmatch/pkg/dataplane"
	"github.com/ebpf-microsegment/firstmatch/pkg/policy"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockDataPlane is a mock implementation of DataPlaneInterface for testing
type MockDataPlane struct {
	mock.Mock
}

func (m *MockDataPlane) Classify(addr netip.Addr) (classifier.Result, error) {
	args := m.Called(addr)
	return args.Get(0).(classifier.Result), args.Error(1)
}

func (m *MockDataPlane) ClassifyAll(ctx context.Context, addrs []netip.Addr, workers int) ([]classifier.Result, error) {
	args := m.Called(ctx, addrs, workers)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]classifier.Result), args.Error(1)
}

func (m *MockDataPlane) Explain(addr netip.Addr) (*classifier.Explanation, error) {
	args := m.Called(addr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*classifier.Explanation), args.Error(1)
}

func (m *MockDataPlane) RecordMalformed() {
	m.Called()
}

func (m *MockDataPlane) GetStatistics() dataplane.Statistics {
	args := m.Called()
	return args.Get(0).(dataplane.Statistics)
}

func (m *MockDataPlane) Rules() policy.RuleLister {
	args := m.Called()
	return args.Get(0).(policy.RuleLister)
}

var _ dataplane.DataPlaneInterface = (*MockDataPlane)(nil)

func sampleStatistics() dataplane.Statistics {
	return dataplane.Statistics{
		TotalQueries:   1000,
		Permitted:      600,
		Rejected:       300,
		Unmatched:      100,
		Malformed:      7,
		Rules:          50,
		UniquePrefixes: 40,
		TrieNodes:      900,
		ShadowedRules:  12,
	}
}

// newRuleTable builds a frozen table from cidr/label pairs with indices 0..n-1
func newRuleTable(t *testing.T, rules ...string) *policy.Table {
	t.Helper()
	table := policy.NewTable(len(rules) / 2)
	for i := 0; i+1 < len(rules); i += 2 {
		r, err := policy.ParseRule(i/2, rules[i], rules[i+1])
		require.NoError(t, err)
		require.NoError(t, table.Ingest(r))
	}
	table.Freeze()
	return table
}
