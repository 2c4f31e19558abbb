package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/hospital-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	return migrateSQLite(ctx, s.db)
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// upsertBatch runs query once per row inside a single transaction, returning
// the number of rows written.
func (s *SQLiteStore) upsertBatch(ctx context.Context, query, label string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: begin %s", label)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: prepare %s", label)
	}
	defer stmt.Close() //nolint:errcheck

	var written int64
	for _, args := range rows {
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert %s", label)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "rows affected")
		}
		written += n
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrapf(err, "sqlite: commit %s", label)
	}
	return written, nil
}

func (s *SQLiteStore) UpsertHospitals(ctx context.Context, hospitals []model.Hospital) (int64, error) {
	rows := make([][]any, 0, len(hospitals))
	for _, h := range hospitals {
		rows = append(rows, []any{h.PK, h.Name, h.State})
	}
	return s.upsertBatch(ctx,
		`INSERT INTO hospitals (hospital_pk, name, state) VALUES (?, ?, ?)
		 ON CONFLICT(hospital_pk) DO UPDATE SET name = excluded.name, state = excluded.state`,
		"hospitals", rows,
	)
}

func (s *SQLiteStore) UpsertLocations(ctx context.Context, locations []model.Location) (int64, error) {
	rows := make([][]any, 0, len(locations))
	for _, l := range locations {
		rows = append(rows, []any{l.HospitalPK, l.Address, l.City, l.Zip, l.FIPSCode, l.Latitude, l.Longitude})
	}
	return s.upsertBatch(ctx,
		`INSERT INTO hospital_locations (hospital_pk, address, city, zip, fips_code, latitude, longitude)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(hospital_pk) DO UPDATE SET
		   address = excluded.address, city = excluded.city, zip = excluded.zip,
		   fips_code = excluded.fips_code, latitude = excluded.latitude, longitude = excluded.longitude`,
		"locations", rows,
	)
}

func (s *SQLiteStore) UpsertWeeklyReports(ctx context.Context, reports []model.WeeklyReport) (int64, error) {
	rows := make([][]any, 0, len(reports))
	for _, r := range reports {
		rows = append(rows, []any{
			r.HospitalPK, r.CollectionWeek.Format(dateLayout),
			r.AdultBeds, r.PediatricBeds,
			r.AdultBedsOccupied, r.PediatricBedsOccupied,
			r.ICUBeds, r.ICUBedsUsed,
			r.CovidBedsUsed, r.CovidICUPatients,
		})
	}
	return s.upsertBatch(ctx,
		`INSERT INTO weekly_reports (hospital_pk, collection_week,
		   adult_beds_avg, pediatric_beds_avg, adult_beds_occupied_avg, pediatric_beds_occupied_avg,
		   icu_beds_avg, icu_beds_used_avg, covid_beds_used_avg, covid_icu_patients_avg)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(hospital_pk, collection_week) DO UPDATE SET
		   adult_beds_avg = excluded.adult_beds_avg,
		   pediatric_beds_avg = excluded.pediatric_beds_avg,
		   adult_beds_occupied_avg = excluded.adult_beds_occupied_avg,
		   pediatric_beds_occupied_avg = excluded.pediatric_beds_occupied_avg,
		   icu_beds_avg = excluded.icu_beds_avg,
		   icu_beds_used_avg = excluded.icu_beds_used_avg,
		   covid_beds_used_avg = excluded.covid_beds_used_avg,
		   covid_icu_patients_avg = excluded.covid_icu_patients_avg`,
		"weekly reports", rows,
	)
}

func (s *SQLiteStore) UpsertQualityRecords(ctx context.Context, records []model.QualityRecord) (int64, error) {
	rows := make([][]any, 0, len(records))
	for _, q := range records {
		rows = append(rows, []any{q.HospitalPK, q.EffectiveDate.Format(dateLayout), q.FacilityType, q.Ownership, q.EmergencyServices, q.Rating})
	}
	return s.upsertBatch(ctx,
		`INSERT INTO hospital_quality (hospital_pk, effective_date, facility_type, ownership, emergency_services, rating)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(hospital_pk, effective_date) DO UPDATE SET
		   facility_type = excluded.facility_type, ownership = excluded.ownership,
		   emergency_services = excluded.emergency_services, rating = excluded.rating`,
		"quality records", rows,
	)
}

func (s *SQLiteStore) StartRun(ctx context.Context, dataset, source string) (*model.IngestRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ingest_runs (id, dataset, source, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, dataset, source, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert ingest run")
	}

	return &model.IngestRun{
		ID:        id,
		Dataset:   dataset,
		Source:    source,
		Status:    model.RunStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, counts model.RunCounts) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ingest_runs SET status = ?, completed_at = ?, rows_read = ?, rows_loaded = ?, rows_skipped = ? WHERE id = ?`,
		string(model.RunStatusCompleted), time.Now().UTC(), counts.Read, counts.Loaded, counts.Skipped, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete ingest run %s", runID)
	}
	return checkRowsAffected(res, "ingest run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ingest_runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(model.RunStatusFailed), time.Now().UTC(), errMsg, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail ingest run %s", runID)
	}
	return checkRowsAffected(res, "ingest run", runID)
}

func (s *SQLiteStore) RecentRuns(ctx context.Context, limit int) ([]model.IngestRun, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, dataset, source, status, started_at, completed_at, rows_read, rows_loaded, rows_skipped, error
		 FROM ingest_runs
		 ORDER BY started_at DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list ingest runs")
	}
	defer rows.Close()

	var runs []model.IngestRun
	for rows.Next() {
		r, err := scanIngestRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list ingest runs iterate")
}

func (s *SQLiteStore) WeekPresent(ctx context.Context, week time.Time) (bool, error) {
	var present bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM weekly_reports WHERE collection_week = ?)`,
		week.Format(dateLayout),
	).Scan(&present)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: week present")
	}
	return present, nil
}

func (s *SQLiteStore) RecordSummary(ctx context.Context, week time.Time) (*model.RecordSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT collection_week, COUNT(DISTINCT hospital_pk) AS hospitals
		 FROM weekly_reports
		 WHERE collection_week <= ?
		 GROUP BY collection_week
		 ORDER BY collection_week DESC
		 LIMIT 2`,
		week.Format(dateLayout),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: record summary")
	}

	summary := &model.RecordSummary{}
	target := week.Format(dateLayout)
	for rows.Next() {
		var wk string
		var n int64
		if err := rows.Scan(&wk, &n); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "sqlite: scan record summary")
		}
		switch {
		case wk == target:
			summary.Hospitals = n
		case summary.Previous == nil:
			prev := n
			summary.Previous = &prev
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: record summary iterate")
	}
	if summary.Previous != nil {
		delta := summary.Hospitals - *summary.Previous
		summary.Delta = &delta
	}

	stateRows, err := s.db.QueryContext(ctx,
		`SELECT h.state, COUNT(*) AS hospitals
		 FROM weekly_reports wr
		 JOIN hospitals h ON h.hospital_pk = wr.hospital_pk
		 WHERE wr.collection_week = ? AND h.state IS NOT NULL
		 GROUP BY h.state
		 ORDER BY h.state`,
		week.Format(dateLayout),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: record summary by state")
	}
	defer stateRows.Close()

	for stateRows.Next() {
		var sc model.StateCount
		if err := stateRows.Scan(&sc.State, &sc.Hospitals); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan state count")
		}
		summary.States = append(summary.States, sc)
	}
	return summary, eris.Wrap(stateRows.Err(), "sqlite: record summary by state iterate")
}

func (s *SQLiteStore) BedTrend(ctx context.Context, week time.Time, weeks int) ([]model.WeeklyBeds, error) {
	if weeks <= 0 {
		weeks = 5
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT collection_week,
		        SUM(adult_beds_avg), SUM(pediatric_beds_avg),
		        SUM(adult_beds_occupied_avg), SUM(pediatric_beds_occupied_avg),
		        SUM(covid_beds_used_avg)
		 FROM weekly_reports
		 WHERE collection_week <= ?
		 GROUP BY collection_week
		 ORDER BY collection_week DESC
		 LIMIT ?`,
		week.Format(dateLayout), weeks,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: bed trend")
	}
	defer rows.Close()

	var trend []model.WeeklyBeds
	for rows.Next() {
		var wk string
		var adult, pediatric, adultOcc, pediatricOcc, covid sql.NullFloat64
		if err := rows.Scan(&wk, &adult, &pediatric, &adultOcc, &pediatricOcc, &covid); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan bed trend")
		}
		wb := model.WeeklyBeds{
			AdultBeds:             nullableFloat(adult),
			PediatricBeds:         nullableFloat(pediatric),
			AdultBedsOccupied:     nullableFloat(adultOcc),
			PediatricBedsOccupied: nullableFloat(pediatricOcc),
			CovidBedsUsed:         nullableFloat(covid),
		}
		if wb.Week, err = parseWeek(wk); err != nil {
			return nil, err
		}
		wb.Utilization = utilization(wb.AdultBeds, wb.PediatricBeds, wb.AdultBedsOccupied, wb.PediatricBedsOccupied)
		trend = append(trend, wb)
	}
	return trend, eris.Wrap(rows.Err(), "sqlite: bed trend iterate")
}

func (s *SQLiteStore) UtilizationByRating(ctx context.Context, week time.Time) ([]model.RatingUtilization, error) {
	target := week.Format(dateLayout)
	rows, err := s.db.QueryContext(ctx,
		`SELECT q.rating, COUNT(DISTINCT wr.hospital_pk) AS hospitals,
		        (COALESCE(SUM(wr.adult_beds_occupied_avg), 0) + COALESCE(SUM(wr.pediatric_beds_occupied_avg), 0)) * 100.0
		          / NULLIF(COALESCE(SUM(wr.adult_beds_avg), 0) + COALESCE(SUM(wr.pediatric_beds_avg), 0), 0) AS percent_in_use
		 FROM weekly_reports wr
		 LEFT JOIN hospital_quality q
		   ON q.hospital_pk = wr.hospital_pk
		  AND q.effective_date = (
		        SELECT MAX(q2.effective_date) FROM hospital_quality q2
		        WHERE q2.hospital_pk = wr.hospital_pk AND q2.effective_date <= ?
		      )
		 WHERE wr.collection_week = ?
		 GROUP BY q.rating
		 ORDER BY q.rating IS NULL, q.rating`,
		target, target,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: utilization by rating")
	}
	defer rows.Close()

	var buckets []model.RatingUtilization
	for rows.Next() {
		var rating sql.NullInt64
		var percent sql.NullFloat64
		var ru model.RatingUtilization
		if err := rows.Scan(&rating, &ru.Hospitals, &percent); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan rating utilization")
		}
		ru.Rating = nullableInt(rating)
		ru.PercentInUse = nullableFloat(percent)
		buckets = append(buckets, ru)
	}
	return buckets, eris.Wrap(rows.Err(), "sqlite: utilization by rating iterate")
}

func (s *SQLiteStore) StatesFewestOpenBeds(ctx context.Context, week time.Time, limit int) ([]model.StateOpenBeds, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT h.state,
		        COALESCE(SUM(wr.adult_beds_avg), 0) + COALESCE(SUM(wr.pediatric_beds_avg), 0)
		          - COALESCE(SUM(wr.adult_beds_occupied_avg), 0) - COALESCE(SUM(wr.pediatric_beds_occupied_avg), 0) AS open_beds
		 FROM weekly_reports wr
		 JOIN hospitals h ON h.hospital_pk = wr.hospital_pk
		 WHERE wr.collection_week = ? AND h.state IS NOT NULL
		 GROUP BY h.state
		 ORDER BY open_beds ASC
		 LIMIT ?`,
		week.Format(dateLayout), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: states fewest open beds")
	}
	defer rows.Close()

	var states []model.StateOpenBeds
	for rows.Next() {
		var so model.StateOpenBeds
		if err := rows.Scan(&so.State, &so.OpenBeds); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan state open beds")
		}
		states = append(states, so)
	}
	return states, eris.Wrap(rows.Err(), "sqlite: states fewest open beds iterate")
}

func (s *SQLiteStore) BedUsageSeries(ctx context.Context) ([]model.BedUsagePoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT collection_week,
		        SUM(adult_beds_occupied_avg), SUM(pediatric_beds_occupied_avg),
		        SUM(covid_beds_used_avg)
		 FROM weekly_reports
		 GROUP BY collection_week
		 ORDER BY collection_week ASC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: bed usage series")
	}
	defer rows.Close()

	var series []model.BedUsagePoint
	for rows.Next() {
		var wk string
		var adultOcc, pedOcc, covid sql.NullFloat64
		if err := rows.Scan(&wk, &adultOcc, &pedOcc, &covid); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan bed usage point")
		}
		var p model.BedUsagePoint
		if p.Week, err = parseWeek(wk); err != nil {
			return nil, err
		}
		p.BedsUsed = addNullable(nullableFloat(adultOcc), nullableFloat(pedOcc))
		p.CovidBedsUsed = nullableFloat(covid)
		series = append(series, p)
	}
	return series, eris.Wrap(rows.Err(), "sqlite: bed usage series iterate")
}

func (s *SQLiteStore) NonReporting(ctx context.Context, week time.Time) ([]model.NonReportingHospital, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT h.hospital_pk, h.name, l.city, h.state, MAX(wr.collection_week) AS last_reported
		 FROM hospitals h
		 LEFT JOIN hospital_locations l ON l.hospital_pk = h.hospital_pk
		 LEFT JOIN weekly_reports wr ON wr.hospital_pk = h.hospital_pk
		 WHERE NOT EXISTS (
		     SELECT 1 FROM weekly_reports w2
		     WHERE w2.hospital_pk = h.hospital_pk AND w2.collection_week = ?
		 )
		 GROUP BY h.hospital_pk, h.name, l.city, h.state
		 ORDER BY h.name IS NULL, h.name`,
		week.Format(dateLayout),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: non-reporting hospitals")
	}
	defer rows.Close()

	var hospitals []model.NonReportingHospital
	for rows.Next() {
		var name, city, state, last sql.NullString
		var nr model.NonReportingHospital
		if err := rows.Scan(&nr.HospitalPK, &name, &city, &state, &last); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan non-reporting hospital")
		}
		nr.Name = nullableString(name)
		nr.City = nullableString(city)
		nr.State = nullableString(state)
		if last.Valid {
			reported, err := parseWeek(last.String)
			if err != nil {
				return nil, err
			}
			nr.LastReported = &reported
		}
		hospitals = append(hospitals, nr)
	}
	return hospitals, eris.Wrap(rows.Err(), "sqlite: non-reporting hospitals iterate")
}

func (s *SQLiteStore) CovidByState(ctx context.Context) ([]model.StateCovid, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT h.state, COALESCE(SUM(wr.covid_beds_used_avg), 0) AS covid_beds
		 FROM weekly_reports wr
		 JOIN hospitals h ON h.hospital_pk = wr.hospital_pk
		 WHERE h.state IS NOT NULL
		 GROUP BY h.state
		 ORDER BY h.state`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: covid by state")
	}
	defer rows.Close()

	var states []model.StateCovid
	for rows.Next() {
		var sc model.StateCovid
		if err := rows.Scan(&sc.State, &sc.CovidBedsUsed); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan covid by state")
		}
		states = append(states, sc)
	}
	return states, eris.Wrap(rows.Err(), "sqlite: covid by state iterate")
}

func (s *SQLiteStore) UtilizationByState(ctx context.Context) ([]model.StateUtilizationPoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT wr.collection_week, h.state,
		        (COALESCE(SUM(wr.adult_beds_occupied_avg), 0) + COALESCE(SUM(wr.pediatric_beds_occupied_avg), 0)) * 100.0
		          / NULLIF(COALESCE(SUM(wr.adult_beds_avg), 0) + COALESCE(SUM(wr.pediatric_beds_avg), 0), 0) AS percent
		 FROM weekly_reports wr
		 JOIN hospitals h ON h.hospital_pk = wr.hospital_pk
		 WHERE h.state IS NOT NULL
		 GROUP BY wr.collection_week, h.state
		 ORDER BY wr.collection_week, h.state`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: utilization by state")
	}
	defer rows.Close()

	var points []model.StateUtilizationPoint
	for rows.Next() {
		var wk string
		var percent sql.NullFloat64
		var p model.StateUtilizationPoint
		if err := rows.Scan(&wk, &p.State, &percent); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan state utilization")
		}
		if p.Week, err = parseWeek(wk); err != nil {
			return nil, err
		}
		p.Percent = nullableFloat(percent)
		points = append(points, p)
	}
	return points, eris.Wrap(rows.Err(), "sqlite: utilization by state iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanIngestRun(row scannable) (*model.IngestRun, error) {
	var r model.IngestRun
	var completed sql.NullTime

	err := row.Scan(&r.ID, &r.Dataset, &r.Source, &r.Status, &r.StartedAt, &completed,
		&r.RowsRead, &r.RowsLoaded, &r.RowsSkipped, &r.Error)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan ingest run")
	}
	if completed.Valid {
		t := completed.Time
		r.CompletedAt = &t
	}
	return &r, nil
}

func nullableFloat(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	return &nf.Float64
}

func nullableInt(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func parseWeek(value string) (time.Time, error) {
	week, err := time.Parse(dateLayout, value)
	return week, eris.Wrapf(err, "sqlite: parse week %q", value)
}
