// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause

// Package bitkey encodes IPv4 networks and addresses as MSB-first bit
// sequences of at most Width bits.
//
// A Key for a network 10.0.0.0/8 holds the eight bits 00001010. A Key for a
// query address always holds all Width bits, since a query is a single point
// and not a range. The zero Key is the empty sequence, which is the key of
// 0.0.0.0/0 and is a prefix of every other key.
package bitkey

import (
	"errors"
	"fmt"
	"math/bits"
	"net/netip"
	"strings"
)

// Width is the address width in bits.
const Width = 32

var (
	// ErrAddressRange is returned for address values that do not fit in Width bits.
	ErrAddressRange = errors.New("address out of range")

	// ErrPrefixLength is returned for prefix lengths outside [0, Width].
	ErrPrefixLength = errors.New("prefix length out of range")

	// ErrNotIPv4 is returned for addresses and prefixes of another family.
	ErrNotIPv4 = errors.New("only IPv4 is supported")
)

// Key is a bit sequence of length 0..Width.
//
// The bits are stored left aligned in a uint32 with every bit past Len
// cleared, so two keys are equal iff they hold the same bits and the same
// length. Key is comparable and can be used as a map key.
type Key struct {
	bits uint32
	len  uint8
}

// New returns the top length bits of value.
func New(value uint64, length int) (Key, error) {
	if value>>Width != 0 {
		return Key{}, fmt.Errorf("%w: %d", ErrAddressRange, value)
	}
	if length < 0 || length > Width {
		return Key{}, fmt.Errorf("%w: %d", ErrPrefixLength, length)
	}
	return Key{bits: uint32(value) & mask(length), len: uint8(length)}, nil
}

// FromPrefix returns the key of a network. Host bits beyond the prefix
// length are ignored.
func FromPrefix(pfx netip.Prefix) (Key, error) {
	if !pfx.IsValid() {
		return Key{}, fmt.Errorf("invalid prefix %q", pfx.String())
	}
	if !pfx.Addr().Is4() {
		return Key{}, fmt.Errorf("%w: %s", ErrNotIPv4, pfx)
	}
	a := pfx.Addr().As4()
	return New(uint64(be32(a)), pfx.Bits())
}

// FromAddr returns the full Width-bit key of a query address.
func FromAddr(addr netip.Addr) (Key, error) {
	if !addr.Is4() {
		return Key{}, fmt.Errorf("%w: %s", ErrNotIPv4, addr)
	}
	return Key{bits: be32(addr.As4()), len: Width}, nil
}

// Len returns the number of bits in k.
func (k Key) Len() int { return int(k.len) }

// IsFull reports whether k holds all Width bits.
func (k Key) IsFull() bool { return k.len == Width }

// Bit returns bit i of k, MSB first. i must be less than k.Len().
func (k Key) Bit(i int) uint8 {
	return uint8(k.bits >> (Width - 1 - i) & 1)
}

// Uint32 returns the left aligned bits of k.
func (k Key) Uint32() uint32 { return k.bits }

// Contains reports whether the network k contains every address of o,
// that is, whether k is a prefix of o.
func (k Key) Contains(o Key) bool {
	return k.len <= o.len && o.bits&mask(int(k.len)) == k.bits
}

// Prefix converts k back into a network.
func (k Key) Prefix() netip.Prefix {
	b := k.bits
	a := netip.AddrFrom4([4]byte{byte(b >> 24), byte(b >> 16), byte(b >> 8), byte(b)})
	return netip.PrefixFrom(a, int(k.len))
}

// String renders k as a string of '0' and '1', one per bit.
func (k Key) String() string {
	var sb strings.Builder
	sb.Grow(int(k.len))
	for i := 0; i < int(k.len); i++ {
		sb.WriteByte('0' + k.Bit(i))
	}
	return sb.String()
}

// CommonPrefixLen returns the number of leading bits shared by a and b.
func CommonPrefixLen(a, b Key) int {
	n := bits.LeadingZeros32(a.bits ^ b.bits)
	return min(n, int(a.len), int(b.len))
}

// Compare orders keys lexicographically as bit strings: by bit value first,
// and a key sorts before every key it is a proper prefix of.
func Compare(a, b Key) int {
	switch {
	case a.bits < b.bits:
		return -1
	case a.bits > b.bits:
		return 1
	case a.len < b.len:
		return -1
	case a.len > b.len:
		return 1
	}
	return 0
}

func mask(length int) uint32 {
	if length == 0 {
		return 0
	}
	return ^uint32(0) << (Width - length)
}

func be32(a [4]byte) uint32 {
	return uint32(a[0])<<24 | uint32(a[1])<<16 | uint32(a[2])<<8 | uint32(a[3])
}
