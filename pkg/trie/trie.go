// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package trie

import (
	"github.com/ebpf-microsegment/firstmatch/pkg/bitkey"
	"github.com/ebpf-microsegment/firstmatch/pkg/policy"
	log "github.com/sirupsen/logrus"
)

// NoMark is the mark of a node that terminates no rule.
const NoMark = ^uint32(0)

const root uint32 = 0

type node struct {
	child [2]uint32
	mark  uint32
}

// Trie is an immutable binary prefix trie over rule keys.
type Trie struct {
	nodes  []node
	marked int
}

// Build constructs a trie from unique keys. entries should be sorted by
// bitkey.Compare for linear build time, but any order gives the same trie.
func Build(entries []policy.Entry) *Trie {
	t := &Trie{nodes: make([]node, 1, 2*len(entries)+1)}
	t.nodes[root].mark = NoMark

	// path[d] is the node at depth d on the previous key's path
	path := make([]uint32, 1, bitkey.Width+1)
	var prev bitkey.Key

	for i, e := range entries {
		k := e.Key
		shared := 0
		if i > 0 {
			shared = bitkey.CommonPrefixLen(prev, k)
		}
		path = path[:shared+1]
		cur := path[shared]

		for d := shared; d < k.Len(); d++ {
			b := k.Bit(d)
			next := t.nodes[cur].child[b]
			if next == 0 {
				next = uint32(len(t.nodes))
				t.nodes = append(t.nodes, node{mark: NoMark})
				t.nodes[cur].child[b] = next
			}
			cur = next
			path = append(path, cur)
		}

		idx := uint32(e.MinIndex)
		n := &t.nodes[cur]
		if n.mark == NoMark {
			t.marked++
		}
		n.mark = min(n.mark, idx)
		prev = k
	}

	log.Debugf("Trie built: %d keys, %d nodes", t.marked, len(t.nodes))
	return t
}

// Lookup returns the smallest rule index whose key is a prefix of the
// full-width address key. ok is false if no rule contains the address or
// the key is not full width.
func (t *Trie) Lookup(key bitkey.Key) (index int, ok bool) {
	if !key.IsFull() {
		return -1, false
	}

	best := NoMark
	cur := root
	// AT_ROOT, then DESCENDING while a child exists, STOPPED on break
	for d := 0; ; d++ {
		n := &t.nodes[cur]
		best = min(best, n.mark)
		if d == bitkey.Width {
			break
		}
		next := n.child[key.Bit(d)]
		if next == 0 {
			break
		}
		cur = next
	}

	if best == NoMark {
		return -1, false
	}
	return int(best), true
}

// Matches calls fn for every key on the path of key that terminates a
// rule, shortest first, with the key's length and mark. key may have any
// length.
func (t *Trie) Matches(key bitkey.Key, fn func(prefixLen, index int)) {
	cur := root
	for d := 0; ; d++ {
		if m := t.nodes[cur].mark; m != NoMark {
			fn(d, int(m))
		}
		if d == key.Len() {
			return
		}
		next := t.nodes[cur].child[key.Bit(d)]
		if next == 0 {
			return
		}
		cur = next
	}
}

// Effective calls fn for every marked node in bit-string order with the
// node's key, its own mark and the effective index: the smallest mark on
// the path from the root to the node. The node's rule decides the
// addresses it covers exactly when own == effective.
func (t *Trie) Effective(fn func(key bitkey.Key, own, effective int)) {
	type frame struct {
		id   uint32
		bits uint32
		len  int
		best uint32
	}

	stack := []frame{{id: root, best: NoMark}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := t.nodes[f.id]
		best := min(f.best, n.mark)
		if n.mark != NoMark {
			k, _ := bitkey.New(uint64(f.bits), f.len)
			fn(k, int(n.mark), int(best))
		}

		// push child 1 first so child 0 is visited first
		for b := 1; b >= 0; b-- {
			if c := n.child[b]; c != 0 {
				bits := f.bits
				if b == 1 {
					bits |= 1 << (bitkey.Width - 1 - f.len)
				}
				stack = append(stack, frame{id: c, bits: bits, len: f.len + 1, best: best})
			}
		}
	}
}

// Len returns the number of marked nodes, one per unique key.
func (t *Trie) Len() int { return t.marked }

// NodeCount returns the number of nodes including the root.
func (t *Trie) NodeCount() int { return len(t.nodes) }
