// Package dataplane provides the frozen classification engine of the
// first-match service and its export to an eBPF map.
//
// The data plane manages:
//   - Trie construction from a frozen rule table
//   - Query dispatch to the classifier
//   - Outcome statistics (atomic counters and Prometheus metrics)
//   - Compilation of the rule set to an equivalent longest-prefix table
//   - Export of that table to a BPF_MAP_TYPE_LPM_TRIE map
//
// # LPM Equivalence
//
// The kernel LPM trie answers with the longest matching prefix, while the
// rule set is first-match. CompileLPM keeps only the prefixes whose own
// rule index is the smallest on its path from the root. For any address the
// longest kept prefix is then exactly the first-match winner, so a BPF
// program can enforce the rule set with a single map lookup.
//
// # Example Usage
//
//	dp, err := dataplane.New(table)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dp.Close()
//
//	r, err := dp.Classify(netip.MustParseAddr("10.1.2.3"))
//	fmt.Println(r) // match rule 0, permit
//
//	// Pin the equivalent LPM map for a TC program
//	if err := dp.ExportLPM("/sys/fs/bpf/firstmatch_lpm"); err != nil {
//	    log.Fatal(err)
//	}
//
// # Maps
//
// The exported map uses:
//   - key: struct { __u32 prefixlen; __u8 addr[4]; } in network byte order
//   - value: struct { __u32 rule_index; __u8 action; __u8 pad[3]; }
//   - action values: 1 permit, 2 reject
//
// # Thread Safety
//
// The DataPlane type is safe for concurrent use. Queries and statistics
// can be called from multiple goroutines.
package dataplane
