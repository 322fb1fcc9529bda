// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package dataplane

import (
	"context"
	"net/netip"

	"github.com/ebpf-microsegment/firstmatch/pkg/classifier"
	"github.com/ebpf-microsegment/firstmatch/pkg/policy"
)

// DataPlaneInterface defines the operations the API and the batch runner
// use. This interface is useful for testing and dependency injection.
type DataPlaneInterface interface {
	Classify(addr netip.Addr) (classifier.Result, error)
	ClassifyAll(ctx context.Context, addrs []netip.Addr, workers int) ([]classifier.Result, error)
	Explain(addr netip.Addr) (*classifier.Explanation, error)
	RecordMalformed()
	GetStatistics() Statistics
	Rules() policy.RuleLister
}

// Ensure DataPlane implements DataPlaneInterface
var _ DataPlaneInterface = (*DataPlane)(nil)

// Rules returns the frozen rule table as a read-only lister
func (dp *DataPlane) Rules() policy.RuleLister {
	return dp.table
}
