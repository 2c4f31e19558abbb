// Package store persists hospitals, weekly capacity reports, and quality
// snapshots, and serves the aggregations behind the weekly report. Postgres
// and SQLite backends are interchangeable.
package store

import (
	"context"
	"time"

	"github.com/sells-group/hospital-cli/internal/model"
)

// Store defines the persistence interface for the ingestion pipeline and
// the reporting engine.
type Store interface {
	// Entity writes
	UpsertHospitals(ctx context.Context, hospitals []model.Hospital) (int64, error)
	UpsertLocations(ctx context.Context, locations []model.Location) (int64, error)
	UpsertWeeklyReports(ctx context.Context, reports []model.WeeklyReport) (int64, error)
	UpsertQualityRecords(ctx context.Context, records []model.QualityRecord) (int64, error)

	// Ingest run log
	StartRun(ctx context.Context, dataset, source string) (*model.IngestRun, error)
	CompleteRun(ctx context.Context, runID string, counts model.RunCounts) error
	FailRun(ctx context.Context, runID, errMsg string) error
	RecentRuns(ctx context.Context, limit int) ([]model.IngestRun, error)

	// Report reads
	WeekPresent(ctx context.Context, week time.Time) (bool, error)
	RecordSummary(ctx context.Context, week time.Time) (*model.RecordSummary, error)
	BedTrend(ctx context.Context, week time.Time, weeks int) ([]model.WeeklyBeds, error)
	UtilizationByRating(ctx context.Context, week time.Time) ([]model.RatingUtilization, error)
	StatesFewestOpenBeds(ctx context.Context, week time.Time, limit int) ([]model.StateOpenBeds, error)
	BedUsageSeries(ctx context.Context) ([]model.BedUsagePoint, error)
	NonReporting(ctx context.Context, week time.Time) ([]model.NonReportingHospital, error)
	CovidByState(ctx context.Context) ([]model.StateCovid, error)
	UtilizationByState(ctx context.Context) ([]model.StateUtilizationPoint, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// dateLayout is the wire format for DATE columns on the SQLite backend and
// for log output.
const dateLayout = "2006-01-02"

// sumNullable adds the non-nil values, reporting whether any were present.
// Nulls are excluded rather than treated as zero.
func sumNullable(vals ...*float64) (float64, bool) {
	var sum float64
	var present bool
	for _, v := range vals {
		if v != nil {
			sum += *v
			present = true
		}
	}
	return sum, present
}

// addNullable is sumNullable collapsed back to a nullable value.
func addNullable(vals ...*float64) *float64 {
	sum, ok := sumNullable(vals...)
	if !ok {
		return nil
	}
	return &sum
}

// utilization computes occupied over available across the adult and
// pediatric sums. Nil when no availability was reported or it sums to zero.
func utilization(adult, pediatric, adultOcc, pediatricOcc *float64) *float64 {
	avail, hasAvail := sumNullable(adult, pediatric)
	occ, hasOcc := sumNullable(adultOcc, pediatricOcc)
	if !hasAvail || !hasOcc || avail == 0 {
		return nil
	}
	v := occ / avail
	return &v
}
