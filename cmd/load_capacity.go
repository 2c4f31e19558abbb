package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/hospital-cli/internal/ingest"
)

var loadCapacityCmd = &cobra.Command{
	Use:   "load-capacity <file>",
	Short: "Load a weekly HHS capacity extract",
	Long: `Load one weekly HHS hospital capacity extract (CSV).

Upserts hospitals, locations, and one weekly report row per hospital per
collection week. Re-loading the same file is safe: rows replace their
previous versions rather than accumulating. Rows missing their identifying
fields are skipped and counted; a file missing required columns fails the
whole run.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loader := &ingest.CapacityLoader{
			BatchSize: cfg.Ingest.BatchSize,
			Encoding:  cfg.Ingest.Encoding,
		}
		return runLoad(cmd.Context(), loader, args[0])
	},
}

func init() {
	rootCmd.AddCommand(loadCapacityCmd)
}
