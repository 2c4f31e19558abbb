package report

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/sells-group/hospital-cli/internal/model"
)

// noData marks values whose contributing cells were all null.
const noData = "-"

// maxNonReportingRows bounds the non-reporting section; the full set can run
// to thousands of hospitals on a bad week.
const maxNonReportingRows = 20

// RenderText writes the report as aligned text sections.
func RenderText(out io.Writer, rep *model.Report) {
	_, _ = fmt.Fprintf(out, "Weekly hospital report for %s\n", rep.Week.Format("2006-01-02"))
	_, _ = fmt.Fprintf(out, "Generated at %s\n\n", rep.GeneratedAt.Format("2006-01-02 15:04 MST"))

	formatRecords(out, rep.Records)
	formatBedTrend(out, rep.BedTrend)
	formatByRating(out, rep.ByRating)
	formatFewestOpenBeds(out, rep.FewestOpenBeds)
	formatUsageSeries(out, rep.UsageSeries)
	formatNonReporting(out, rep.NonReporting)
	formatCovidByState(out, rep.CovidByState)
	formatStateUtilization(out, rep.StateUtilization)
}

func formatRecords(out io.Writer, rec model.RecordSummary) {
	_, _ = fmt.Fprintln(out, "Hospitals reporting")
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total:\t%d\n", rec.Hospitals)
	if rec.Previous != nil {
		_, _ = fmt.Fprintf(w, "Previous week:\t%d\n", *rec.Previous)
	}
	if rec.Delta != nil {
		_, _ = fmt.Fprintf(w, "Change:\t%+d\n", *rec.Delta)
	}
	_ = w.Flush()

	if len(rec.States) > 0 {
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "STATE\tHOSPITALS")
		_, _ = fmt.Fprintln(w, "-----\t---------")
		for _, sc := range rec.States {
			_, _ = fmt.Fprintf(w, "%s\t%d\n", sc.State, sc.Hospitals)
		}
		_ = w.Flush()
	}
	_, _ = fmt.Fprintln(out)
}

func formatBedTrend(out io.Writer, trend []model.WeeklyBeds) {
	_, _ = fmt.Fprintln(out, "Bed utilization, most recent weeks")
	if len(trend) == 0 {
		_, _ = fmt.Fprintln(out, noData)
		_, _ = fmt.Fprintln(out)
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "WEEK\tADULT\tPEDIATRIC\tOCCUPIED\tCOVID\tUTILIZATION")
	_, _ = fmt.Fprintln(w, "----\t-----\t---------\t--------\t-----\t-----------")
	for _, wb := range trend {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			wb.Week.Format("2006-01-02"),
			fmtNum(wb.AdultBeds),
			fmtNum(wb.PediatricBeds),
			fmtNum(addFloats(wb.AdultBedsOccupied, wb.PediatricBedsOccupied)),
			fmtNum(wb.CovidBedsUsed),
			fmtRatio(wb.Utilization),
		)
	}
	_ = w.Flush()
	_, _ = fmt.Fprintln(out)
}

func formatByRating(out io.Writer, buckets []model.RatingUtilization) {
	_, _ = fmt.Fprintln(out, "Bed utilization by quality rating")
	if len(buckets) == 0 {
		_, _ = fmt.Fprintln(out, noData)
		_, _ = fmt.Fprintln(out)
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RATING\tHOSPITALS\tIN USE")
	_, _ = fmt.Fprintln(w, "------\t---------\t------")
	for _, b := range buckets {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\n", ratingLabel(b.Rating), b.Hospitals, fmtPct(b.PercentInUse))
	}
	_ = w.Flush()
	_, _ = fmt.Fprintln(out)
}

func formatFewestOpenBeds(out io.Writer, states []model.StateOpenBeds) {
	_, _ = fmt.Fprintln(out, "States with fewest open beds")
	if len(states) == 0 {
		_, _ = fmt.Fprintln(out, noData)
		_, _ = fmt.Fprintln(out)
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STATE\tOPEN BEDS")
	_, _ = fmt.Fprintln(w, "-----\t---------")
	for _, s := range states {
		_, _ = fmt.Fprintf(w, "%s\t%.1f\n", s.State, s.OpenBeds)
	}
	_ = w.Flush()
	_, _ = fmt.Fprintln(out)
}

func formatUsageSeries(out io.Writer, series []model.BedUsagePoint) {
	_, _ = fmt.Fprintln(out, "Total beds in use per week")
	if len(series) == 0 {
		_, _ = fmt.Fprintln(out, noData)
		_, _ = fmt.Fprintln(out)
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "WEEK\tBEDS USED\tCOVID")
	_, _ = fmt.Fprintln(w, "----\t---------\t-----")
	for _, p := range series {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", p.Week.Format("2006-01-02"), fmtNum(p.BedsUsed), fmtNum(p.CovidBedsUsed))
	}
	_ = w.Flush()
	_, _ = fmt.Fprintln(out)
}

func formatNonReporting(out io.Writer, missing []model.NonReportingHospital) {
	_, _ = fmt.Fprintf(out, "Hospitals not reporting this week: %d\n", len(missing))
	if len(missing) == 0 {
		_, _ = fmt.Fprintln(out)
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "HOSPITAL\tCITY\tSTATE\tLAST REPORTED")
	_, _ = fmt.Fprintln(w, "--------\t----\t-----\t-------------")
	shown := missing
	if len(shown) > maxNonReportingRows {
		shown = shown[:maxNonReportingRows]
	}
	for _, h := range shown {
		name := h.HospitalPK
		if h.Name != nil {
			name = *h.Name
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, strOr(h.City), strOr(h.State), fmtWeek(h.LastReported))
	}
	_ = w.Flush()
	if n := len(missing) - len(shown); n > 0 {
		_, _ = fmt.Fprintf(out, "... and %d more\n", n)
	}
	_, _ = fmt.Fprintln(out)
}

func formatCovidByState(out io.Writer, states []model.StateCovid) {
	_, _ = fmt.Fprintln(out, "Cumulative COVID beds used by state")
	if len(states) == 0 {
		_, _ = fmt.Fprintln(out, noData)
		_, _ = fmt.Fprintln(out)
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STATE\tCOVID BEDS")
	_, _ = fmt.Fprintln(w, "-----\t----------")
	for _, s := range states {
		_, _ = fmt.Fprintf(w, "%s\t%.1f\n", s.State, s.CovidBedsUsed)
	}
	_ = w.Flush()
	_, _ = fmt.Fprintln(out)
}

func formatStateUtilization(out io.Writer, points []model.StateUtilizationPoint) {
	_, _ = fmt.Fprintln(out, "Bed utilization by state per week")
	if len(points) == 0 {
		_, _ = fmt.Fprintln(out, noData)
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "WEEK\tSTATE\tIN USE")
	_, _ = fmt.Fprintln(w, "----\t-----\t------")
	for _, p := range points {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", p.Week.Format("2006-01-02"), p.State, fmtPct(p.Percent))
	}
	_ = w.Flush()
}

func fmtNum(v *float64) string {
	if v == nil {
		return noData
	}
	return strconv.FormatFloat(*v, 'f', 1, 64)
}

// fmtPct formats a value that is already a percentage.
func fmtPct(v *float64) string {
	if v == nil {
		return noData
	}
	return fmt.Sprintf("%.1f%%", *v)
}

// fmtRatio formats a 0..1 fraction as a percentage.
func fmtRatio(v *float64) string {
	if v == nil {
		return noData
	}
	return fmt.Sprintf("%.1f%%", *v*100)
}

func fmtWeek(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format("2006-01-02")
}

func ratingLabel(r *int) string {
	if r == nil {
		return "unrated"
	}
	return strconv.Itoa(*r)
}

func strOr(s *string) string {
	if s == nil {
		return noData
	}
	return *s
}

func addFloats(a, b *float64) *float64 {
	if a == nil && b == nil {
		return nil
	}
	var sum float64
	if a != nil {
		sum += *a
	}
	if b != nil {
		sum += *b
	}
	return &sum
}
