package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/hospital-cli/internal/ingest"
)

var loadQualityDate string

var loadQualityCmd = &cobra.Command{
	Use:   "load-quality <file>",
	Short: "Load a CMS hospital quality extract",
	Long: `Load one CMS hospital quality extract (CSV or XLSX).

Each row becomes a versioned quality snapshot keyed by hospital and
effective date; snapshots for new dates accumulate so rating history is
preserved. The effective date comes from the file's date column when
present, otherwise from --date; with neither the load fails.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loader := &ingest.QualityLoader{
			BatchSize: cfg.Ingest.BatchSize,
			Encoding:  cfg.Ingest.Encoding,
		}
		if loadQualityDate != "" {
			d, err := time.Parse("2006-01-02", loadQualityDate)
			if err != nil {
				return eris.Wrapf(err, "invalid --date %q (want YYYY-MM-DD)", loadQualityDate)
			}
			loader.EffectiveDate = &d
		}
		return runLoad(cmd.Context(), loader, args[0])
	},
}

func init() {
	loadQualityCmd.Flags().StringVar(&loadQualityDate, "date", "", "effective date (YYYY-MM-DD) when the file has no date column")
	rootCmd.AddCommand(loadQualityCmd)
}
