// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package main

import (
	"github.com/ebpf-microsegment/firstmatch/pkg/dataplane"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	exportRules string
	exportDB    string
	pinPath     string
)

var exportCmd = &cobra.Command{
	Use:   "export-bpf",
	Short: "Compile the rule set to a pinned BPF LPM trie map",
	Long: `Builds the first-match trie, keeps the prefixes whose own rule decides them and
writes them to a BPF_MAP_TYPE_LPM_TRIE map pinned on bpffs. A longest-prefix lookup
in the map gives the same answer as the first-match classifier.`,
	Args: cobra.NoArgs,
	Run:  runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportRules, "rules", "r", "", "Rule file: a rule count followed by the rules")
	exportCmd.Flags().StringVar(&exportDB, "db", "", "SQLite database written by --save-db")
	exportCmd.Flags().StringVar(&pinPath, "pin", "/sys/fs/bpf/"+dataplane.LPMMapName, "bpffs path to pin the map at")
}

func runExport(cmd *cobra.Command, args []string) {
	table, err := loadTable(exportRules, exportDB)
	if err != nil {
		log.Fatalf("Failed to load rules: %v", err)
	}

	dp, err := dataplane.New(table)
	if err != nil {
		log.Fatalf("Failed to create data plane: %v", err)
	}
	defer dp.Close()

	if err := dp.ExportLPM(pinPath); err != nil {
		log.Fatalf("Failed to export LPM map: %v", err)
	}

	log.Infof("✓ Exported %d of %d unique prefixes to %s", len(dp.CompileLPM()), table.UniqueLen(), pinPath)
}
