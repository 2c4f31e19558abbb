package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/hospital-cli/internal/report"
)

var reportJSON bool

var generateReportCmd = &cobra.Command{
	Use:   "generate-report <YYYY-MM-DD>",
	Short: "Generate the weekly hospital report",
	Long: `Generate the analytical summary for one collection week: reporting
counts, bed utilization trends, utilization by quality rating, states with
the fewest open beds, usage over time, and hospitals that stopped
reporting. Fails when the store holds no data for the requested week.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		week, err := time.Parse("2006-01-02", args[0])
		if err != nil {
			return eris.Wrapf(err, "invalid week %q (want YYYY-MM-DD)", args[0])
		}

		s, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close() //nolint:errcheck

		rep, err := report.NewBuilder(s).Build(ctx, week)
		if err != nil {
			return err
		}

		if reportJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return eris.Wrap(enc.Encode(rep), "encode report")
		}

		report.RenderText(os.Stdout, rep)
		return nil
	},
}

func init() {
	generateReportCmd.Flags().BoolVar(&reportJSON, "json", false, "emit the report as JSON instead of text")
	rootCmd.AddCommand(generateReportCmd)
}
