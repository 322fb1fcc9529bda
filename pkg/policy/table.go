// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package policy

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/ebpf-microsegment/firstmatch/pkg/bitkey"
	log "github.com/sirupsen/logrus"
)

// MaxIndex is the largest original rule index a Table accepts.
const MaxIndex = math.MaxInt32

var (
	// ErrInvalidIndex is returned for negative or too large rule indices.
	ErrInvalidIndex = errors.New("rule index out of range")

	// ErrDuplicateIndex is returned when two rules claim the same index.
	ErrDuplicateIndex = errors.New("duplicate rule index")

	// ErrFrozen is returned by Ingest once the table has been frozen.
	ErrFrozen = errors.New("rule table is frozen")
)

// labelUnset marks an index that no accepted rule carries.
const labelUnset = 0xFF

// maxDenseGap bounds how far past the dense label slice an index may land
// before its label is kept in the sparse map instead.
const maxDenseGap = 1 << 16

// Entry is one unique key and the smallest original index of the rules
// carrying it.
type Entry struct {
	Key      bitkey.Key
	MinIndex int
}

// Table collects ordered rules and reduces them to unique keys.
//
// Among the rules sharing a key only the one with the smallest original
// index is retained, whatever order the rules arrive in. A Table is
// written by a single goroutine; once frozen it is read-only and safe to
// share.
type Table struct {
	minIndex map[bitkey.Key]int
	labels   []uint8
	sparse   map[int]Label
	rules    []Rule
	entries  []Entry
	frozen   bool
}

// NewTable creates an empty rule table. sizeHint is the expected number
// of rules and may be zero.
func NewTable(sizeHint int) *Table {
	sizeHint = max(sizeHint, 0)
	return &Table{
		minIndex: make(map[bitkey.Key]int, sizeHint),
		labels:   make([]uint8, 0, sizeHint),
		rules:    make([]Rule, 0, sizeHint),
	}
}

// Ingest adds a rule. A rejected rule leaves the table unchanged.
func (t *Table) Ingest(r Rule) error {
	if t.frozen {
		return ErrFrozen
	}
	if r.Index < 0 || r.Index > MaxIndex {
		return fmt.Errorf("%w: %d", ErrInvalidIndex, r.Index)
	}
	if !r.Label.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidLabel, r.Label)
	}

	key, err := bitkey.FromPrefix(r.Prefix)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCIDR, err)
	}

	if _, ok := t.LabelOf(r.Index); ok {
		return fmt.Errorf("%w: %d", ErrDuplicateIndex, r.Index)
	}
	t.setLabel(r.Index, r.Label)

	r.Prefix = r.Prefix.Masked()
	t.rules = append(t.rules, r)

	// Earliest original index wins the key, by first-match semantics.
	if cur, ok := t.minIndex[key]; !ok || r.Index < cur {
		t.minIndex[key] = r.Index
	}
	return nil
}

func (t *Table) setLabel(index int, label Label) {
	if index >= len(t.labels)+maxDenseGap {
		if t.sparse == nil {
			t.sparse = make(map[int]Label)
		}
		t.sparse[index] = label
		return
	}
	if n := index + 1 - len(t.labels); n > 0 {
		t.labels = slices.Grow(t.labels, n)
		for range n {
			t.labels = append(t.labels, labelUnset)
		}
	}
	t.labels[index] = uint8(label)
}

// Freeze ends the ingest phase and computes the sorted unique key list.
// Calling it again is a no-op.
func (t *Table) Freeze() {
	if t.frozen {
		return
	}

	t.entries = make([]Entry, 0, len(t.minIndex))
	for k, idx := range t.minIndex {
		t.entries = append(t.entries, Entry{Key: k, MinIndex: idx})
	}
	slices.SortFunc(t.entries, func(a, b Entry) int {
		return bitkey.Compare(a.Key, b.Key)
	})
	slices.SortFunc(t.rules, func(a, b Rule) int {
		return a.Index - b.Index
	})

	t.frozen = true
	log.Debugf("Rule table frozen: %d rules, %d unique prefixes", len(t.rules), len(t.entries))
}

// Frozen reports whether Freeze has been called.
func (t *Table) Frozen() bool { return t.frozen }

// Entries freezes the table and returns its unique keys sorted as bit
// strings, each with the smallest index that carries it.
func (t *Table) Entries() []Entry {
	t.Freeze()
	return t.entries
}

// LabelOf returns the label of the rule with the given original index.
func (t *Table) LabelOf(index int) (Label, bool) {
	if index < 0 {
		return 0, false
	}
	if index < len(t.labels) && t.labels[index] != labelUnset {
		return Label(t.labels[index]), true
	}
	label, ok := t.sparse[index]
	return label, ok
}

// Rule returns the accepted rule with the given original index.
func (t *Table) Rule(index int) (Rule, bool) {
	if _, ok := t.LabelOf(index); !ok {
		return Rule{}, false
	}
	if !t.frozen {
		for _, r := range t.rules {
			if r.Index == index {
				return r, true
			}
		}
		return Rule{}, false
	}
	i := sort.Search(len(t.rules), func(i int) bool { return t.rules[i].Index >= index })
	return t.rules[i], true
}

// Rules freezes the table and returns the accepted rules in index order.
func (t *Table) Rules() []Rule {
	t.Freeze()
	return t.rules
}

// Duplicate reports whether the rule with the given index shares its key
// with a rule of smaller index and was dropped from the key list.
func (t *Table) Duplicate(index int) bool {
	r, ok := t.Rule(index)
	if !ok {
		return false
	}
	key, err := bitkey.FromPrefix(r.Prefix)
	if err != nil {
		return false
	}
	return t.minIndex[key] != index
}

// Len returns the number of accepted rules.
func (t *Table) Len() int { return len(t.rules) }

// UniqueLen returns the number of unique keys.
func (t *Table) UniqueLen() int { return len(t.minIndex) }
