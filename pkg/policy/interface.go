// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package policy

// LabelSource resolves an original rule index to its label.
type LabelSource interface {
	LabelOf(index int) (Label, bool)
}

// RuleLister exposes the accepted rules of a frozen rule set.
// This interface is useful for testing and dependency injection.
type RuleLister interface {
	LabelSource
	Rules() []Rule
	Rule(index int) (Rule, bool)
	Duplicate(index int) bool
	Len() int
	UniqueLen() int
}

// Ensure Table implements RuleLister interface
var _ RuleLister = (*Table)(nil)
