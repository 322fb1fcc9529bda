// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause

// Package trie implements the binary prefix trie used to resolve
// first-match lookups.
//
// # Layout
//
// Nodes live in a single slice addressed by uint32 ids. Node 0 is the root
// and is never the child of another node, so a zero child id means the
// child is absent. A node carries an optional mark: the smallest original
// rule index among the rules whose key ends exactly at that node.
//
// # Build
//
// Build consumes the unique keys of a rule table sorted as bit strings.
// The node path of the previous key is kept, and each key only walks the
// part it does not share with its predecessor. Unsorted input still yields
// the same trie, existing children are reused and marks keep the minimum.
//
// # Lookup
//
// A lookup starts at the root and descends one address bit at a time,
// keeping the smallest mark seen. It stops when the child for the next bit
// is absent or the bits run out; the running minimum is the winning rule.
// The trie is never modified after Build and can be shared by any number
// of goroutines.
package trie
