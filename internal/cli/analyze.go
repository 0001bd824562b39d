package cli

import (
	"github.com/spf13/cobra"
)

var analyzeDryRun bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run one analysis cycle immediately and print the snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Analyze(cmd.Context(), analyzeDryRun)
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeDryRun, "dry-run", false, "Do not advance the alert baseline or dispatch notifications")
}
