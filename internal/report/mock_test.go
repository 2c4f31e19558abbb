package report

import (
	"context"
	"sync"
	"time"

	"github.com/sells-group/hospital-cli/internal/model"
)

// mockStore implements store.Store for testing. Metric methods record their
// names under a mutex; the builder calls them concurrently.
type mockStore struct {
	mu      sync.Mutex
	queries []string

	weekPresent bool
	summary     *model.RecordSummary
	trend       []model.WeeklyBeds
	byRating    []model.RatingUtilization
	openBeds    []model.StateOpenBeds
	usage       []model.BedUsagePoint
	missing     []model.NonReportingHospital
	covid       []model.StateCovid
	stateUtil   []model.StateUtilizationPoint

	weekPresentErr error
	trendErr       error
}

func (m *mockStore) record(name string) {
	m.mu.Lock()
	m.queries = append(m.queries, name)
	m.mu.Unlock()
}

func (m *mockStore) queryNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}

func (m *mockStore) WeekPresent(_ context.Context, _ time.Time) (bool, error) {
	return m.weekPresent, m.weekPresentErr
}

func (m *mockStore) RecordSummary(_ context.Context, _ time.Time) (*model.RecordSummary, error) {
	m.record("record_summary")
	if m.summary == nil {
		return &model.RecordSummary{}, nil
	}
	return m.summary, nil
}

func (m *mockStore) BedTrend(_ context.Context, _ time.Time, _ int) ([]model.WeeklyBeds, error) {
	m.record("bed_trend")
	return m.trend, m.trendErr
}

func (m *mockStore) UtilizationByRating(_ context.Context, _ time.Time) ([]model.RatingUtilization, error) {
	m.record("utilization_by_rating")
	return m.byRating, nil
}

func (m *mockStore) StatesFewestOpenBeds(_ context.Context, _ time.Time, _ int) ([]model.StateOpenBeds, error) {
	m.record("states_fewest_open_beds")
	return m.openBeds, nil
}

func (m *mockStore) BedUsageSeries(_ context.Context) ([]model.BedUsagePoint, error) {
	m.record("bed_usage_series")
	return m.usage, nil
}

func (m *mockStore) NonReporting(_ context.Context, _ time.Time) ([]model.NonReportingHospital, error) {
	m.record("non_reporting")
	return m.missing, nil
}

func (m *mockStore) CovidByState(_ context.Context) ([]model.StateCovid, error) {
	m.record("covid_by_state")
	return m.covid, nil
}

func (m *mockStore) UtilizationByState(_ context.Context) ([]model.StateUtilizationPoint, error) {
	m.record("utilization_by_state")
	return m.stateUtil, nil
}

func (m *mockStore) UpsertHospitals(_ context.Context, _ []model.Hospital) (int64, error) {
	return 0, nil
}

func (m *mockStore) UpsertLocations(_ context.Context, _ []model.Location) (int64, error) {
	return 0, nil
}

func (m *mockStore) UpsertWeeklyReports(_ context.Context, _ []model.WeeklyReport) (int64, error) {
	return 0, nil
}

func (m *mockStore) UpsertQualityRecords(_ context.Context, _ []model.QualityRecord) (int64, error) {
	return 0, nil
}

func (m *mockStore) StartRun(_ context.Context, _, _ string) (*model.IngestRun, error) {
	return &model.IngestRun{}, nil
}

func (m *mockStore) CompleteRun(_ context.Context, _ string, _ model.RunCounts) error { return nil }

func (m *mockStore) FailRun(_ context.Context, _, _ string) error { return nil }

func (m *mockStore) RecentRuns(_ context.Context, _ int) ([]model.IngestRun, error) {
	return nil, nil
}

func (m *mockStore) Migrate(_ context.Context) error { return nil }
func (m *mockStore) Ping(_ context.Context) error    { return nil }
func (m *mockStore) Close() error                    { return nil }
