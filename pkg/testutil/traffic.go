// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package testutil

import (
	"bufio"
	"fmt"
	"io"
	"math/rand/v2"
	"net/netip"

	log "github.com/sirupsen/logrus"

	"github.com/ebpf-microsegment/firstmatch/pkg/policy"
)

// progressEvery is the number of lines between progress messages.
const progressEvery = 100_000

// GenConfig holds the parameters of a generated data set.
type GenConfig struct {
	// Rules is the number of rule lines
	Rules int

	// Queries is the number of query lines
	Queries int

	// Seed makes the data reproducible; 0 picks a random seed
	Seed uint64

	// MinPrefix and MaxPrefix bound the prefix length of every rule
	MinPrefix int
	MaxPrefix int
}

// DefaultGenConfig returns the default data set: a million rules with
// prefix lengths /8 to /32 and a million queries.
func DefaultGenConfig() *GenConfig {
	return &GenConfig{
		Rules:     1_000_000,
		Queries:   1_000_000,
		MinPrefix: 8,
		MaxPrefix: 32,
	}
}

// Generator produces random rules and query addresses.
type Generator struct {
	cfg  GenConfig
	prng *rand.Rand
}

// NewGenerator creates a generator for cfg. nil means DefaultGenConfig.
func NewGenerator(cfg *GenConfig) (*Generator, error) {
	if cfg == nil {
		cfg = DefaultGenConfig()
	}
	if cfg.MinPrefix < 0 || cfg.MaxPrefix > 32 || cfg.MinPrefix > cfg.MaxPrefix {
		return nil, fmt.Errorf("invalid prefix range /%d to /%d", cfg.MinPrefix, cfg.MaxPrefix)
	}
	if cfg.Rules < 0 || cfg.Queries < 0 {
		return nil, fmt.Errorf("negative count: rules=%d queries=%d", cfg.Rules, cfg.Queries)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Generator{cfg: *cfg, prng: rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))}, nil
}

// Rule returns a random rule with the given index. Host bits are zero.
func (g *Generator) Rule(index int) policy.Rule {
	bits := g.cfg.MinPrefix + g.prng.IntN(g.cfg.MaxPrefix-g.cfg.MinPrefix+1)
	pfx := netip.PrefixFrom(g.Addr(), bits).Masked()
	return policy.Rule{Index: index, Prefix: pfx, Label: policy.Label(g.prng.IntN(2))}
}

// Addr returns a uniformly random IPv4 address.
func (g *Generator) Addr() netip.Addr {
	v := g.prng.Uint32()
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}

// Rules returns cfg.Rules random rules with indices 0..n-1.
func (g *Generator) Rules() []policy.Rule {
	rules := make([]policy.Rule, g.cfg.Rules)
	for i := range rules {
		rules[i] = g.Rule(i)
	}
	return rules
}

// Addrs returns cfg.Queries random addresses.
func (g *Generator) Addrs() []netip.Addr {
	addrs := make([]netip.Addr, g.cfg.Queries)
	for i := range addrs {
		addrs[i] = g.Addr()
	}
	return addrs
}

// WriteData writes a complete rule and query stream: the rule count, the
// rules, the query count and the queries.
func (g *Generator) WriteData(w io.Writer) error {
	bw := bufio.NewWriterSize(w, 256*1024)

	if _, err := fmt.Fprintf(bw, "%d\n", g.cfg.Rules); err != nil {
		return fmt.Errorf("failed to write rule count: %w", err)
	}
	for i := 0; i < g.cfg.Rules; i++ {
		r := g.Rule(i)
		if _, err := fmt.Fprintf(bw, "%s %s\n", r.Prefix, r.Label); err != nil {
			return fmt.Errorf("failed to write rule %d: %w", i, err)
		}
		if (i+1)%progressEvery == 0 {
			log.Debugf("Wrote %d/%d rules", i+1, g.cfg.Rules)
		}
	}

	if _, err := fmt.Fprintf(bw, "%d\n", g.cfg.Queries); err != nil {
		return fmt.Errorf("failed to write query count: %w", err)
	}
	for j := 0; j < g.cfg.Queries; j++ {
		if _, err := fmt.Fprintf(bw, "%s\n", g.Addr()); err != nil {
			return fmt.Errorf("failed to write query %d: %w", j, err)
		}
		if (j+1)%progressEvery == 0 {
			log.Debugf("Wrote %d/%d queries", j+1, g.cfg.Queries)
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush data: %w", err)
	}
	log.Infof("Generated %d rules and %d queries", g.cfg.Rules, g.cfg.Queries)
	return nil
}
