package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hospital-cli/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func ptrFloat64(f float64) *float64 { return &f }
func ptrString(s string) *string    { return &s }
func ptrInt(i int) *int             { return &i }
func ptrBool(b bool) *bool          { return &b }

func utcDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// seedCapacity inserts hospitals before their weekly reports so foreign keys
// resolve on both backends.
func seedCapacity(t *testing.T, s Store, hospitals []model.Hospital, reports []model.WeeklyReport) {
	t.Helper()
	ctx := context.Background()
	_, err := s.UpsertHospitals(ctx, hospitals)
	require.NoError(t, err)
	if len(reports) > 0 {
		_, err = s.UpsertWeeklyReports(ctx, reports)
		require.NoError(t, err)
	}
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	week1 := utcDate(2022, time.February, 25)
	week2 := utcDate(2022, time.March, 4)

	t.Run("StartAndCompleteRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.StartRun(ctx, model.DatasetCapacity, "hhs-2022-03-04.csv")
		require.NoError(t, err)
		assert.NotEmpty(t, run.ID)
		assert.Equal(t, model.RunStatusRunning, run.Status)
		assert.Equal(t, model.DatasetCapacity, run.Dataset)

		err = s.CompleteRun(ctx, run.ID, model.RunCounts{Read: 100, Loaded: 95, Skipped: 5})
		require.NoError(t, err)

		runs, err := s.RecentRuns(ctx, 10)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, run.ID, runs[0].ID)
		assert.Equal(t, model.RunStatusCompleted, runs[0].Status)
		assert.Equal(t, int64(100), runs[0].RowsRead)
		assert.Equal(t, int64(95), runs[0].RowsLoaded)
		assert.Equal(t, int64(5), runs[0].RowsSkipped)
		assert.NotNil(t, runs[0].CompletedAt)
	})

	t.Run("FailRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.StartRun(ctx, model.DatasetQuality, "cms-2021-07.csv")
		require.NoError(t, err)

		err = s.FailRun(ctx, run.ID, "missing column: Facility ID")
		require.NoError(t, err)

		runs, err := s.RecentRuns(ctx, 10)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, model.RunStatusFailed, runs[0].Status)
		assert.Equal(t, "missing column: Facility ID", runs[0].Error)
		assert.NotNil(t, runs[0].CompletedAt)
	})

	t.Run("CompleteRunNotFound", func(t *testing.T) {
		s := newStore(t)

		err := s.CompleteRun(context.Background(), "nonexistent-id", model.RunCounts{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("RecentRunsOrderAndLimit", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		first, err := s.StartRun(ctx, model.DatasetCapacity, "a.csv")
		require.NoError(t, err)
		_, err = s.StartRun(ctx, model.DatasetCapacity, "b.csv")
		require.NoError(t, err)
		third, err := s.StartRun(ctx, model.DatasetQuality, "c.csv")
		require.NoError(t, err)

		runs, err := s.RecentRuns(ctx, 2)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, third.ID, runs[0].ID)
		assert.NotEqual(t, first.ID, runs[1].ID)
	})

	t.Run("WeekPresent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		present, err := s.WeekPresent(ctx, week2)
		require.NoError(t, err)
		assert.False(t, present)

		seedCapacity(t, s,
			[]model.Hospital{{PK: "010001", Name: ptrString("General"), State: ptrString("AL")}},
			[]model.WeeklyReport{{HospitalPK: "010001", CollectionWeek: week2}},
		)

		present, err = s.WeekPresent(ctx, week2)
		require.NoError(t, err)
		assert.True(t, present)

		present, err = s.WeekPresent(ctx, week1)
		require.NoError(t, err)
		assert.False(t, present)
	})

	t.Run("RecordSummaryWithPrevious", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		seedCapacity(t, s,
			[]model.Hospital{
				{PK: "A", Name: ptrString("Alpha"), State: ptrString("CA")},
				{PK: "B", Name: ptrString("Beta"), State: ptrString("CA")},
				{PK: "C", Name: ptrString("Gamma"), State: ptrString("MO")},
			},
			[]model.WeeklyReport{
				{HospitalPK: "A", CollectionWeek: week1},
				{HospitalPK: "B", CollectionWeek: week1},
				{HospitalPK: "A", CollectionWeek: week2},
				{HospitalPK: "B", CollectionWeek: week2},
				{HospitalPK: "C", CollectionWeek: week2},
			},
		)

		summary, err := s.RecordSummary(ctx, week2)
		require.NoError(t, err)
		assert.Equal(t, int64(3), summary.Hospitals)
		require.NotNil(t, summary.Previous)
		assert.Equal(t, int64(2), *summary.Previous)
		require.NotNil(t, summary.Delta)
		assert.Equal(t, int64(1), *summary.Delta)

		require.Len(t, summary.States, 2)
		assert.Equal(t, model.StateCount{State: "CA", Hospitals: 2}, summary.States[0])
		assert.Equal(t, model.StateCount{State: "MO", Hospitals: 1}, summary.States[1])
	})

	t.Run("RecordSummaryEmpty", func(t *testing.T) {
		s := newStore(t)

		summary, err := s.RecordSummary(context.Background(), week2)
		require.NoError(t, err)
		assert.Equal(t, int64(0), summary.Hospitals)
		assert.Nil(t, summary.Previous)
		assert.Nil(t, summary.Delta)
		assert.Empty(t, summary.States)
	})

	t.Run("BedTrendUtilization", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		seedCapacity(t, s,
			[]model.Hospital{{PK: "A", Name: ptrString("Alpha"), State: ptrString("CA")}},
			[]model.WeeklyReport{
				{
					HospitalPK: "A", CollectionWeek: week1,
					AdultBeds: ptrFloat64(50), PediatricBeds: ptrFloat64(50),
					AdultBedsOccupied: ptrFloat64(40), PediatricBedsOccupied: ptrFloat64(10),
				},
				{
					HospitalPK: "A", CollectionWeek: week2,
					AdultBeds: ptrFloat64(70), PediatricBeds: ptrFloat64(30),
					AdultBedsOccupied: ptrFloat64(20), PediatricBedsOccupied: ptrFloat64(10),
					CovidBedsUsed: ptrFloat64(4),
				},
			},
		)

		trend, err := s.BedTrend(ctx, week2, 5)
		require.NoError(t, err)
		require.Len(t, trend, 2)

		// Most recent week first.
		assert.Equal(t, week2, trend[0].Week)
		require.NotNil(t, trend[0].Utilization)
		assert.InDelta(t, 0.3, *trend[0].Utilization, 1e-9)
		require.NotNil(t, trend[0].CovidBedsUsed)
		assert.InDelta(t, 4, *trend[0].CovidBedsUsed, 1e-9)

		assert.Equal(t, week1, trend[1].Week)
		require.NotNil(t, trend[1].Utilization)
		assert.InDelta(t, 0.5, *trend[1].Utilization, 1e-9)
		assert.Nil(t, trend[1].CovidBedsUsed)
	})

	t.Run("BedTrendWindow", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		week3 := utcDate(2022, time.March, 11)
		seedCapacity(t, s,
			[]model.Hospital{{PK: "A", Name: ptrString("Alpha"), State: ptrString("CA")}},
			[]model.WeeklyReport{
				{HospitalPK: "A", CollectionWeek: week1, AdultBeds: ptrFloat64(10)},
				{HospitalPK: "A", CollectionWeek: week2, AdultBeds: ptrFloat64(20)},
				{HospitalPK: "A", CollectionWeek: week3, AdultBeds: ptrFloat64(30)},
			},
		)

		// Weeks after the target are excluded, and the window caps the result.
		trend, err := s.BedTrend(ctx, week2, 1)
		require.NoError(t, err)
		require.Len(t, trend, 1)
		assert.Equal(t, week2, trend[0].Week)
	})

	t.Run("UtilizationByRatingBuckets", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		seedCapacity(t, s,
			[]model.Hospital{
				{PK: "A", Name: ptrString("Alpha"), State: ptrString("CA")},
				{PK: "B", Name: ptrString("Beta"), State: ptrString("CA")},
				{PK: "C", Name: ptrString("Gamma"), State: ptrString("MO")},
			},
			[]model.WeeklyReport{
				{HospitalPK: "A", CollectionWeek: week2, AdultBeds: ptrFloat64(10), AdultBedsOccupied: ptrFloat64(5)},
				{HospitalPK: "B", CollectionWeek: week2, AdultBeds: ptrFloat64(10), AdultBedsOccupied: ptrFloat64(5)},
				{HospitalPK: "C", CollectionWeek: week2, AdultBeds: ptrFloat64(10), AdultBedsOccupied: ptrFloat64(10)},
			},
		)
		_, err := s.UpsertQualityRecords(ctx, []model.QualityRecord{
			{HospitalPK: "A", EffectiveDate: utcDate(2022, time.January, 1), Rating: ptrInt(3)},
			{HospitalPK: "B", EffectiveDate: utcDate(2022, time.January, 1), Rating: ptrInt(3)},
		})
		require.NoError(t, err)

		buckets, err := s.UtilizationByRating(ctx, week2)
		require.NoError(t, err)
		require.Len(t, buckets, 2)

		require.NotNil(t, buckets[0].Rating)
		assert.Equal(t, 3, *buckets[0].Rating)
		assert.Equal(t, int64(2), buckets[0].Hospitals)
		require.NotNil(t, buckets[0].PercentInUse)
		assert.InDelta(t, 50, *buckets[0].PercentInUse, 1e-9)

		// Hospitals without a rating snapshot land in the unrated bucket, last.
		assert.Nil(t, buckets[1].Rating)
		assert.Equal(t, int64(1), buckets[1].Hospitals)
		require.NotNil(t, buckets[1].PercentInUse)
		assert.InDelta(t, 100, *buckets[1].PercentInUse, 1e-9)
	})

	t.Run("UtilizationByRatingLatestSnapshot", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		seedCapacity(t, s,
			[]model.Hospital{{PK: "A", Name: ptrString("Alpha"), State: ptrString("CA")}},
			[]model.WeeklyReport{
				{HospitalPK: "A", CollectionWeek: week2, AdultBeds: ptrFloat64(10), AdultBedsOccupied: ptrFloat64(5)},
			},
		)
		_, err := s.UpsertQualityRecords(ctx, []model.QualityRecord{
			{HospitalPK: "A", EffectiveDate: utcDate(2021, time.January, 1), Rating: ptrInt(2)},
			{HospitalPK: "A", EffectiveDate: utcDate(2022, time.January, 1), Rating: ptrInt(4)},
			{HospitalPK: "A", EffectiveDate: utcDate(2023, time.January, 1), Rating: ptrInt(1)},
		})
		require.NoError(t, err)

		buckets, err := s.UtilizationByRating(ctx, week2)
		require.NoError(t, err)
		require.Len(t, buckets, 1)
		require.NotNil(t, buckets[0].Rating)
		// Snapshot effective after the report week is ignored.
		assert.Equal(t, 4, *buckets[0].Rating)
	})

	t.Run("StatesFewestOpenBeds", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		seedCapacity(t, s,
			[]model.Hospital{
				{PK: "A", Name: ptrString("Alpha"), State: ptrString("CA")},
				{PK: "B", Name: ptrString("Beta"), State: ptrString("MO")},
			},
			[]model.WeeklyReport{
				{HospitalPK: "A", CollectionWeek: week2, AdultBeds: ptrFloat64(100), AdultBedsOccupied: ptrFloat64(90)},
				{HospitalPK: "B", CollectionWeek: week2, AdultBeds: ptrFloat64(100), AdultBedsOccupied: ptrFloat64(50)},
			},
		)

		states, err := s.StatesFewestOpenBeds(ctx, week2, 10)
		require.NoError(t, err)
		require.Len(t, states, 2)
		assert.Equal(t, "CA", states[0].State)
		assert.InDelta(t, 10, states[0].OpenBeds, 1e-9)
		assert.Equal(t, "MO", states[1].State)
		assert.InDelta(t, 50, states[1].OpenBeds, 1e-9)

		states, err = s.StatesFewestOpenBeds(ctx, week2, 1)
		require.NoError(t, err)
		require.Len(t, states, 1)
		assert.Equal(t, "CA", states[0].State)
	})

	t.Run("BedUsageSeries", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		seedCapacity(t, s,
			[]model.Hospital{{PK: "A", Name: ptrString("Alpha"), State: ptrString("CA")}},
			[]model.WeeklyReport{
				{
					HospitalPK: "A", CollectionWeek: week2,
					AdultBedsOccupied: ptrFloat64(25), PediatricBedsOccupied: ptrFloat64(5),
					CovidBedsUsed: ptrFloat64(7),
				},
				{
					HospitalPK: "A", CollectionWeek: week1,
					AdultBedsOccupied: ptrFloat64(10), PediatricBedsOccupied: ptrFloat64(5),
				},
			},
		)

		series, err := s.BedUsageSeries(ctx)
		require.NoError(t, err)
		require.Len(t, series, 2)

		// Oldest week first.
		assert.Equal(t, week1, series[0].Week)
		require.NotNil(t, series[0].BedsUsed)
		assert.InDelta(t, 15, *series[0].BedsUsed, 1e-9)
		assert.Nil(t, series[0].CovidBedsUsed)

		assert.Equal(t, week2, series[1].Week)
		require.NotNil(t, series[1].BedsUsed)
		assert.InDelta(t, 30, *series[1].BedsUsed, 1e-9)
		require.NotNil(t, series[1].CovidBedsUsed)
		assert.InDelta(t, 7, *series[1].CovidBedsUsed, 1e-9)
	})

	t.Run("NonReporting", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		seedCapacity(t, s,
			[]model.Hospital{
				{PK: "A", Name: ptrString("Alpha"), State: ptrString("CA")},
				{PK: "B", Name: ptrString("Beta"), State: ptrString("MO")},
				{PK: "C", Name: ptrString("Gamma"), State: ptrString("TX")},
			},
			[]model.WeeklyReport{
				{HospitalPK: "A", CollectionWeek: week1},
				{HospitalPK: "A", CollectionWeek: week2},
				{HospitalPK: "B", CollectionWeek: week1},
			},
		)
		_, err := s.UpsertLocations(ctx, []model.Location{
			{HospitalPK: "B", City: ptrString("St. Louis")},
		})
		require.NoError(t, err)

		missing, err := s.NonReporting(ctx, week2)
		require.NoError(t, err)
		require.Len(t, missing, 2)

		assert.Equal(t, "B", missing[0].HospitalPK)
		require.NotNil(t, missing[0].City)
		assert.Equal(t, "St. Louis", *missing[0].City)
		require.NotNil(t, missing[0].LastReported)
		assert.Equal(t, week1, *missing[0].LastReported)

		assert.Equal(t, "C", missing[1].HospitalPK)
		assert.Nil(t, missing[1].City)
		assert.Nil(t, missing[1].LastReported)
	})

	t.Run("CovidByStateCumulative", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		seedCapacity(t, s,
			[]model.Hospital{
				{PK: "A", Name: ptrString("Alpha"), State: ptrString("CA")},
				{PK: "B", Name: ptrString("Beta"), State: ptrString("MO")},
			},
			[]model.WeeklyReport{
				{HospitalPK: "A", CollectionWeek: week1, CovidBedsUsed: ptrFloat64(3)},
				{HospitalPK: "A", CollectionWeek: week2, CovidBedsUsed: ptrFloat64(2)},
				{HospitalPK: "B", CollectionWeek: week1, CovidBedsUsed: ptrFloat64(1)},
			},
		)

		states, err := s.CovidByState(ctx)
		require.NoError(t, err)
		require.Len(t, states, 2)
		assert.Equal(t, "CA", states[0].State)
		assert.InDelta(t, 5, states[0].CovidBedsUsed, 1e-9)
		assert.Equal(t, "MO", states[1].State)
		assert.InDelta(t, 1, states[1].CovidBedsUsed, 1e-9)
	})

	t.Run("UtilizationByState", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		seedCapacity(t, s,
			[]model.Hospital{
				{PK: "A", Name: ptrString("Alpha"), State: ptrString("CA")},
				{PK: "B", Name: ptrString("Beta"), State: ptrString("MO")},
			},
			[]model.WeeklyReport{
				{HospitalPK: "A", CollectionWeek: week1, AdultBeds: ptrFloat64(100), AdultBedsOccupied: ptrFloat64(50)},
				{HospitalPK: "B", CollectionWeek: week1},
			},
		)

		points, err := s.UtilizationByState(ctx)
		require.NoError(t, err)
		require.Len(t, points, 2)

		assert.Equal(t, "CA", points[0].State)
		require.NotNil(t, points[0].Percent)
		assert.InDelta(t, 50, *points[0].Percent, 1e-9)

		// No reported beds means no utilization, not zero.
		assert.Equal(t, "MO", points[1].State)
		assert.Nil(t, points[1].Percent)
	})

	t.Run("HospitalReplaceKeepsLatest", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		n, err := s.UpsertHospitals(ctx, []model.Hospital{{PK: "A", Name: ptrString("Old Name"), State: ptrString("CA")}})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = s.UpsertHospitals(ctx, []model.Hospital{{PK: "A", Name: ptrString("New Name"), State: ptrString("CA")}})
		require.NoError(t, err)

		missing, err := s.NonReporting(ctx, week2)
		require.NoError(t, err)
		require.Len(t, missing, 1)
		require.NotNil(t, missing[0].Name)
		assert.Equal(t, "New Name", *missing[0].Name)
	})

	t.Run("WeeklyReportReplaceKeepsLatest", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		seedCapacity(t, s,
			[]model.Hospital{{PK: "A", Name: ptrString("Alpha"), State: ptrString("CA")}},
			[]model.WeeklyReport{{HospitalPK: "A", CollectionWeek: week2, AdultBeds: ptrFloat64(10)}},
		)
		_, err := s.UpsertWeeklyReports(ctx, []model.WeeklyReport{
			{HospitalPK: "A", CollectionWeek: week2, AdultBeds: ptrFloat64(42)},
		})
		require.NoError(t, err)

		trend, err := s.BedTrend(ctx, week2, 5)
		require.NoError(t, err)
		require.Len(t, trend, 1)
		require.NotNil(t, trend[0].AdultBeds)
		assert.InDelta(t, 42, *trend[0].AdultBeds, 1e-9)
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}
