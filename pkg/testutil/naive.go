// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package testutil

import (
	"net/netip"

	"github.com/ebpf-microsegment/firstmatch/pkg/classifier"
	"github.com/ebpf-microsegment/firstmatch/pkg/policy"
)

// NaiveClassify scans rules linearly and returns the containing rule with
// the smallest index. It is the reference the trie is checked against.
func NaiveClassify(rules []policy.Rule, addr netip.Addr) classifier.Result {
	best := classifier.None
	for _, r := range rules {
		if !r.Prefix.Contains(addr) {
			continue
		}
		if !best.Matched || r.Index < best.Index {
			best = classifier.Result{Index: r.Index, Matched: true, Action: policy.Resolve(r.Label)}
		}
	}
	return best
}
