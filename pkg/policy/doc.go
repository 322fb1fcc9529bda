// Package policy provides the ordered rule model of the first-match
// classifier.
//
// It handles:
//   - Parsing of rule networks, labels and query addresses
//   - Deduplication of rules by exact prefix, earliest original index wins
//   - Label to action resolution (permit, reject, no match)
//   - Persistence of rule sets in SQLite
//
// # Rule Model
//
// A rule is defined by:
//   - Original index (0-based position in the input stream)
//   - IPv4 network in CIDR notation, host bits ignored
//   - Label: 1 permits, 0 rejects
//
// Among the rules whose network contains an address, the one with the
// smallest original index decides, irrespective of prefix length. Two
// rules collide only if their prefixes are identical including length:
// a /8 and a /9 sharing the first eight bits are distinct keys.
//
// # Example Usage
//
//	t := policy.NewTable(0)
//
//	r, err := policy.ParseRule(0, "10.0.0.0/8", "1")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := t.Ingest(r); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Sorted unique keys for the trie build
//	entries := t.Entries()
//
// # Thread Safety
//
// A Table is written by one goroutine during ingest. After Freeze it
// is read-only and may be shared by any number of readers.
package policy
