// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package dataplane

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/rlimit"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/ebpf-microsegment/firstmatch/pkg/bitkey"
	"github.com/ebpf-microsegment/firstmatch/pkg/classifier"
	"github.com/ebpf-microsegment/firstmatch/pkg/policy"
)

// LPMMapName is the name of the exported map
const LPMMapName = "firstmatch_lpm"

// LPMEntry is one prefix of the longest-prefix-match table equivalent to
// the first-match rule set
type LPMEntry struct {
	Prefix    netip.Prefix
	RuleIndex int
	Action    policy.Action
}

// lpmKey matches struct bpf_lpm_trie_key with a 4 byte payload
type lpmKey struct {
	PrefixLen uint32
	Addr      [4]byte
}

type lpmValue struct {
	RuleIndex uint32
	Action    uint8
	Pad       [3]uint8
}

// CompileLPM returns the prefixes whose own rule index is the smallest on
// their path from the root, in bit-string order. Resolving a query by the
// longest containing entry gives the first-match answer.
func (dp *DataPlane) CompileLPM() []LPMEntry {
	var entries []LPMEntry
	dp.trie.Effective(func(key bitkey.Key, own, effective int) {
		if own != effective {
			return
		}
		label, _ := dp.table.LabelOf(own)
		entries = append(entries, LPMEntry{
			Prefix:    key.Prefix(),
			RuleIndex: own,
			Action:    policy.Resolve(label),
		})
	})
	return entries
}

// ExportLPM creates a BPF_MAP_TYPE_LPM_TRIE map holding CompileLPM and
// pins it at pinPath unless pinPath is empty. It requires CAP_BPF.
func (dp *DataPlane) ExportLPM(pinPath string) error {
	dp.mu.Lock()
	defer dp.mu.Unlock()

	if dp.lpmMap != nil {
		return errors.New("LPM map already exported")
	}

	if err := rlimit.RemoveMemlock(); err != nil {
		return fmt.Errorf("removing memlock limit: %w", err)
	}

	entries := dp.CompileLPM()
	m, err := ebpf.NewMap(&ebpf.MapSpec{
		Name:       LPMMapName,
		Type:       ebpf.LPMTrie,
		KeySize:    8,
		ValueSize:  8,
		MaxEntries: uint32(max(len(entries), 1)),
		Flags:      unix.BPF_F_NO_PREALLOC,
	})
	if err != nil {
		return fmt.Errorf("creating LPM map: %w", err)
	}

	for _, e := range entries {
		key := lpmKey{PrefixLen: uint32(e.Prefix.Bits()), Addr: e.Prefix.Addr().As4()}
		value := lpmValue{RuleIndex: uint32(e.RuleIndex), Action: uint8(e.Action)}
		if err := m.Put(&key, &value); err != nil {
			m.Close()
			return fmt.Errorf("adding %s to LPM map: %w", e.Prefix, err)
		}
	}

	if pinPath != "" {
		if err := m.Pin(pinPath); err != nil {
			m.Close()
			return fmt.Errorf("pinning LPM map at %s: %w", pinPath, err)
		}
		log.Infof("LPM map pinned at %s", pinPath)
	}

	dp.lpmMap = m
	log.Infof("Exported %d prefixes to LPM map", len(entries))
	return nil
}

// LookupLPM resolves addr against the exported map
func (dp *DataPlane) LookupLPM(addr netip.Addr) (classifier.Result, error) {
	dp.mu.Lock()
	defer dp.mu.Unlock()

	if dp.lpmMap == nil {
		return classifier.None, errors.New("LPM map not exported")
	}
	if !addr.Is4() {
		return classifier.None, fmt.Errorf("%w: %s", bitkey.ErrNotIPv4, addr)
	}

	key := lpmKey{PrefixLen: bitkey.Width, Addr: addr.As4()}
	var value lpmValue
	if err := dp.lpmMap.Lookup(&key, &value); err != nil {
		if errors.Is(err, ebpf.ErrKeyNotExist) {
			return classifier.None, nil
		}
		return classifier.None, fmt.Errorf("looking up %s: %w", addr, err)
	}

	return classifier.Result{
		Index:   int(value.RuleIndex),
		Matched: true,
		Action:  policy.Action(value.Action),
	}, nil
}
