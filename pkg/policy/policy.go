// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package policy

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
)

var (
	// ErrInvalidLabel is returned for labels other than "0" and "1".
	ErrInvalidLabel = errors.New("label(permit/reject) must be 0 or 1")

	// ErrInvalidCIDR is returned when a rule network cannot be parsed.
	ErrInvalidCIDR = errors.New("invalid network")

	// ErrInvalidAddress is returned when a query address cannot be parsed.
	ErrInvalidAddress = errors.New("invalid address")
)

// Label is the permit/reject bit carried by a rule.
type Label uint8

const (
	LabelReject Label = 0
	LabelPermit Label = 1
)

// ParseLabel parses the literal "0" or "1".
func ParseLabel(s string) (Label, error) {
	switch s {
	case "0":
		return LabelReject, nil
	case "1":
		return LabelPermit, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidLabel, s)
	}
}

// Valid reports whether l is Reject or Permit.
func (l Label) Valid() bool { return l == LabelReject || l == LabelPermit }

func (l Label) String() string {
	return fmt.Sprintf("%d", uint8(l))
}

// Action is the outcome of classifying an address.
type Action uint8

const (
	NoMatch Action = iota
	Permit
	Reject
)

// Resolve maps the label of the winning rule to its Action.
func Resolve(l Label) Action {
	if l == LabelPermit {
		return Permit
	}
	return Reject
}

// ActionOf resolves a lookup outcome: NoMatch if nothing matched,
// otherwise the action of the winning rule's label.
func ActionOf(l Label, matched bool) Action {
	if !matched {
		return NoMatch
	}
	return Resolve(l)
}

func (a Action) String() string {
	switch a {
	case Permit:
		return "permit"
	case Reject:
		return "reject"
	default:
		return "no match"
	}
}

// Rule is one ordered entry of an access list.
type Rule struct {
	// Index is the 0-based position of the rule in its input stream
	Index int

	// Prefix is the network, host bits cleared
	Prefix netip.Prefix

	Label Label
}

func (r Rule) String() string {
	return fmt.Sprintf("rule %d: %s %s", r.Index, r.Prefix, r.Label)
}

// ParseCIDR parses an IPv4 network in dotted form. Host bits beyond the
// prefix length are masked rather than rejected, and a bare address is
// taken as a /32.
func ParseCIDR(cidr string) (netip.Prefix, error) {
	if !strings.Contains(cidr, "/") {
		cidr = cidr + "/32"
	}

	pfx, err := netip.ParsePrefix(cidr)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("%w: %v", ErrInvalidCIDR, err)
	}
	if !pfx.Addr().Is4() {
		return netip.Prefix{}, fmt.Errorf("%w: %q: only IPv4 is supported", ErrInvalidCIDR, cidr)
	}

	return pfx.Masked(), nil
}

// ParseAddr parses a bare dotted IPv4 address.
func ParseAddr(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("%w: %q: only IPv4 is supported", ErrInvalidAddress, s)
	}
	return addr, nil
}

// ParseRule parses the two fields of a rule line.
func ParseRule(index int, cidr, label string) (Rule, error) {
	pfx, err := ParseCIDR(cidr)
	if err != nil {
		return Rule{}, err
	}
	l, err := ParseLabel(label)
	if err != nil {
		return Rule{}, err
	}
	return Rule{Index: index, Prefix: pfx, Label: l}, nil
}
