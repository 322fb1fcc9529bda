// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause

// Package testutil provides utilities for testing the first-match
// classifier. It includes a random rule and query generator, a linear
// reference classifier and helpers for inspecting exported LPM maps.
package testutil

import (
	"errors"
	"fmt"
	"net/netip"
	"os"

	"github.com/cilium/ebpf"
	"golang.org/x/sys/unix"
)

// LPMKey represents the key of the exported LPM map.
// This must match the kernel-side struct bpf_lpm_trie_key exactly.
type LPMKey struct {
	PrefixLen uint32
	Addr      [4]byte
}

// LPMValue represents the value of the exported LPM map.
type LPMValue struct {
	RuleIndex uint32
	Action    uint8
	Pad       [3]uint8
}

// LoadPinnedLPM opens a pinned LPM map.
func LoadPinnedLPM(path string) (*ebpf.Map, error) {
	m, err := ebpf.LoadPinnedMap(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load pinned map %s: %w", path, err)
	}
	if m.Type() != ebpf.LPMTrie {
		m.Close()
		return nil, fmt.Errorf("map %s is %s, not an LPM trie", path, m.Type())
	}
	return m, nil
}

// LookupLPM resolves a single address against an LPM map.
// found is false if no prefix contains the address.
func LookupLPM(m *ebpf.Map, addr netip.Addr) (value LPMValue, found bool, err error) {
	if !addr.Is4() {
		return LPMValue{}, false, fmt.Errorf("only IPv4 is supported: %s", addr)
	}

	key := LPMKey{PrefixLen: 32, Addr: addr.As4()}
	if err := m.Lookup(&key, &value); err != nil {
		if errors.Is(err, ebpf.ErrKeyNotExist) {
			return LPMValue{}, false, nil
		}
		return LPMValue{}, false, fmt.Errorf("LPM lookup failed: %w", err)
	}
	return value, true, nil
}

// DumpLPM reads every entry of an LPM map.
func DumpLPM(m *ebpf.Map) (map[netip.Prefix]LPMValue, error) {
	entries := make(map[netip.Prefix]LPMValue)
	var key LPMKey
	var value LPMValue

	iter := m.Iterate()
	for iter.Next(&key, &value) {
		pfx := netip.PrefixFrom(netip.AddrFrom4(key.Addr), int(key.PrefixLen))
		entries[pfx] = value
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate LPM map: %w", err)
	}

	return entries, nil
}

// ActionToString converts a map action number to string.
func ActionToString(action uint8) string {
	switch action {
	case 1:
		return "permit"
	case 2:
		return "reject"
	default:
		return "unknown"
	}
}

// IsRoot checks if the current process has root privileges.
func IsRoot() bool {
	return os.Geteuid() == 0
}

// HasCapability checks if the process has a specific capability.
func HasCapability(cap int) bool {
	var header unix.CapUserHeader
	var data [2]unix.CapUserData

	header.Version = unix.LINUX_CAPABILITY_VERSION_3
	header.Pid = 0 // Current process

	if err := unix.Capget(&header, &data[0]); err != nil {
		return false
	}

	capMask := uint32(1 << uint(cap%32))
	return (data[cap/32].Effective & capMask) != 0
}

// CheckBPFRequirements checks if the environment can create BPF maps.
// Returns an error message if requirements are not met, empty string otherwise.
func CheckBPFRequirements() string {
	if !IsRoot() && !HasCapability(unix.CAP_BPF) && !HasCapability(unix.CAP_SYS_ADMIN) {
		return "BPF map tests require root privileges, CAP_BPF or CAP_SYS_ADMIN"
	}
	return ""
}
