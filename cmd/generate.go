// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package main

import (
	"io"
	"os"

	"github.com/ebpf-microsegment/firstmatch/pkg/testutil"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	genConfig = testutil.DefaultGenConfig()
	genOut    string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write a random rule and query data set",
	Args:  cobra.NoArgs,
	Run:   runGenerate,
}

func init() {
	generateCmd.Flags().IntVar(&genConfig.Rules, "rules-count", genConfig.Rules, "Number of rules")
	generateCmd.Flags().IntVar(&genConfig.Queries, "queries", genConfig.Queries, "Number of queries")
	generateCmd.Flags().Uint64Var(&genConfig.Seed, "seed", 0, "Random seed (0 = random)")
	generateCmd.Flags().IntVar(&genConfig.MinPrefix, "min-prefix", genConfig.MinPrefix, "Shortest rule prefix length")
	generateCmd.Flags().IntVar(&genConfig.MaxPrefix, "max-prefix", genConfig.MaxPrefix, "Longest rule prefix length")
	generateCmd.Flags().StringVarP(&genOut, "out", "o", "", "Output file (default stdout)")
}

func runGenerate(cmd *cobra.Command, args []string) {
	g, err := testutil.NewGenerator(genConfig)
	if err != nil {
		log.Fatalf("Invalid generator config: %v", err)
	}

	var w io.Writer = os.Stdout
	if genOut != "" && genOut != "-" {
		f, err := os.Create(genOut)
		if err != nil {
			log.Fatalf("Failed to create output: %v", err)
		}
		defer f.Close()
		w = f
	}

	if err := g.WriteData(w); err != nil {
		log.Fatalf("Failed to generate data: %v", err)
	}
}
