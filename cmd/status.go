package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hospital-cli/internal/model"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent ingest runs",
	Long:  "Displays the most recent extract loads with their row counts and outcomes.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close() //nolint:errcheck

		runs, err := s.RecentRuns(ctx, statusLimit)
		if err != nil {
			return eris.Wrap(err, "status")
		}

		if len(runs) == 0 {
			zap.L().Info("no ingest runs found, run 'load-capacity' or 'load-quality' to start loading extracts")
			return nil
		}

		formatRuns(os.Stdout, runs)
		return nil
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "maximum runs to show")
	rootCmd.AddCommand(statusCmd)
}

// formatRuns writes a tabular representation of ingest runs to out.
func formatRuns(out io.Writer, runs []model.IngestRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DATASET\tSOURCE\tSTATUS\tSTARTED\tDURATION\tREAD\tLOADED\tSKIPPED\tERROR")
	_, _ = fmt.Fprintln(w, "-------\t------\t------\t-------\t--------\t----\t------\t-------\t-----")

	for _, r := range runs {
		dur := "-"
		if r.CompletedAt != nil {
			dur = r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String()
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			r.Dataset,
			truncate(r.Source, 40),
			r.Status,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
			r.RowsRead,
			r.RowsLoaded,
			r.RowsSkipped,
			truncate(r.Error, 60),
		)
	}
	_ = w.Flush()
}

// truncate shortens s to max runes with an ellipsis.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
