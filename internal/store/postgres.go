package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/hospital-cli/internal/db"
	"github.com/sells-group/hospital-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_run":   `INSERT INTO ingest_runs (id, dataset, source, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
	"complete_run": `UPDATE ingest_runs SET status = $1, completed_at = $2, rows_read = $3, rows_loaded = $4, rows_skipped = $5 WHERE id = $6`,
	"fail_run":     `UPDATE ingest_runs SET status = $1, completed_at = $2, error = $3 WHERE id = $4`,
	"week_present": `SELECT EXISTS (SELECT 1 FROM weekly_reports WHERE collection_week = $1)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return migratePostgres(ctx, s.pool)
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

var weeklyReportColumns = []string{
	"hospital_pk", "collection_week",
	"adult_beds_avg", "pediatric_beds_avg",
	"adult_beds_occupied_avg", "pediatric_beds_occupied_avg",
	"icu_beds_avg", "icu_beds_used_avg",
	"covid_beds_used_avg", "covid_icu_patients_avg",
}

func (s *PostgresStore) UpsertHospitals(ctx context.Context, hospitals []model.Hospital) (int64, error) {
	rows := make([][]any, 0, len(hospitals))
	for _, h := range hospitals {
		rows = append(rows, []any{h.PK, h.Name, h.State})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "hospitals",
		Columns:      []string{"hospital_pk", "name", "state"},
		ConflictKeys: []string{"hospital_pk"},
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert hospitals")
}

func (s *PostgresStore) UpsertLocations(ctx context.Context, locations []model.Location) (int64, error) {
	rows := make([][]any, 0, len(locations))
	for _, l := range locations {
		rows = append(rows, []any{l.HospitalPK, l.Address, l.City, l.Zip, l.FIPSCode, l.Latitude, l.Longitude})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "hospital_locations",
		Columns:      []string{"hospital_pk", "address", "city", "zip", "fips_code", "latitude", "longitude"},
		ConflictKeys: []string{"hospital_pk"},
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert locations")
}

func (s *PostgresStore) UpsertWeeklyReports(ctx context.Context, reports []model.WeeklyReport) (int64, error) {
	rows := make([][]any, 0, len(reports))
	for _, r := range reports {
		rows = append(rows, []any{
			r.HospitalPK, r.CollectionWeek,
			r.AdultBeds, r.PediatricBeds,
			r.AdultBedsOccupied, r.PediatricBedsOccupied,
			r.ICUBeds, r.ICUBedsUsed,
			r.CovidBedsUsed, r.CovidICUPatients,
		})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "weekly_reports",
		Columns:      weeklyReportColumns,
		ConflictKeys: []string{"hospital_pk", "collection_week"},
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert weekly reports")
}

func (s *PostgresStore) UpsertQualityRecords(ctx context.Context, records []model.QualityRecord) (int64, error) {
	rows := make([][]any, 0, len(records))
	for _, q := range records {
		rows = append(rows, []any{q.HospitalPK, q.EffectiveDate, q.FacilityType, q.Ownership, q.EmergencyServices, q.Rating})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "hospital_quality",
		Columns:      []string{"hospital_pk", "effective_date", "facility_type", "ownership", "emergency_services", "rating"},
		ConflictKeys: []string{"hospital_pk", "effective_date"},
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert quality records")
}

func (s *PostgresStore) StartRun(ctx context.Context, dataset, source string) (*model.IngestRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO ingest_runs (id, dataset, source, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		id, dataset, source, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert ingest run")
	}

	return &model.IngestRun{
		ID:        id,
		Dataset:   dataset,
		Source:    source,
		Status:    model.RunStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, counts model.RunCounts) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE ingest_runs SET status = $1, completed_at = $2, rows_read = $3, rows_loaded = $4, rows_skipped = $5 WHERE id = $6`,
		string(model.RunStatusCompleted), time.Now().UTC(), counts.Read, counts.Loaded, counts.Skipped, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete ingest run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("ingest run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE ingest_runs SET status = $1, completed_at = $2, error = $3 WHERE id = $4`,
		string(model.RunStatusFailed), time.Now().UTC(), errMsg, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail ingest run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("ingest run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) RecentRuns(ctx context.Context, limit int) ([]model.IngestRun, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, dataset, source, status, started_at, completed_at, rows_read, rows_loaded, rows_skipped, error
		 FROM ingest_runs
		 ORDER BY started_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list ingest runs")
	}
	defer rows.Close()

	var runs []model.IngestRun
	for rows.Next() {
		var r model.IngestRun
		if err := rows.Scan(&r.ID, &r.Dataset, &r.Source, &r.Status, &r.StartedAt, &r.CompletedAt,
			&r.RowsRead, &r.RowsLoaded, &r.RowsSkipped, &r.Error); err != nil {
			return nil, eris.Wrap(err, "postgres: scan ingest run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list ingest runs iterate")
}

func (s *PostgresStore) WeekPresent(ctx context.Context, week time.Time) (bool, error) {
	var present bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM weekly_reports WHERE collection_week = $1)`,
		week,
	).Scan(&present)
	if err != nil {
		return false, eris.Wrap(err, "postgres: week present")
	}
	return present, nil
}

func (s *PostgresStore) RecordSummary(ctx context.Context, week time.Time) (*model.RecordSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT collection_week, COUNT(DISTINCT hospital_pk) AS hospitals
		 FROM weekly_reports
		 WHERE collection_week <= $1
		 GROUP BY collection_week
		 ORDER BY collection_week DESC
		 LIMIT 2`,
		week,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: record summary")
	}

	summary := &model.RecordSummary{}
	var counts []struct {
		week  time.Time
		count int64
	}
	for rows.Next() {
		var wk time.Time
		var n int64
		if err := rows.Scan(&wk, &n); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan record summary")
		}
		counts = append(counts, struct {
			week  time.Time
			count int64
		}{wk, n})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: record summary iterate")
	}

	target := week.Format(dateLayout)
	for _, c := range counts {
		switch {
		case c.week.Format(dateLayout) == target:
			summary.Hospitals = c.count
		case summary.Previous == nil:
			prev := c.count
			summary.Previous = &prev
		}
	}
	if summary.Previous != nil {
		delta := summary.Hospitals - *summary.Previous
		summary.Delta = &delta
	}

	stateRows, err := s.pool.Query(ctx,
		`SELECT h.state, COUNT(*) AS hospitals
		 FROM weekly_reports wr
		 JOIN hospitals h ON h.hospital_pk = wr.hospital_pk
		 WHERE wr.collection_week = $1 AND h.state IS NOT NULL
		 GROUP BY h.state
		 ORDER BY h.state`,
		week,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: record summary by state")
	}
	defer stateRows.Close()

	for stateRows.Next() {
		var sc model.StateCount
		if err := stateRows.Scan(&sc.State, &sc.Hospitals); err != nil {
			return nil, eris.Wrap(err, "postgres: scan state count")
		}
		summary.States = append(summary.States, sc)
	}
	return summary, eris.Wrap(stateRows.Err(), "postgres: record summary by state iterate")
}

func (s *PostgresStore) BedTrend(ctx context.Context, week time.Time, weeks int) ([]model.WeeklyBeds, error) {
	if weeks <= 0 {
		weeks = 5
	}

	rows, err := s.pool.Query(ctx,
		`SELECT collection_week,
		        SUM(adult_beds_avg), SUM(pediatric_beds_avg),
		        SUM(adult_beds_occupied_avg), SUM(pediatric_beds_occupied_avg),
		        SUM(covid_beds_used_avg)
		 FROM weekly_reports
		 WHERE collection_week <= $1
		 GROUP BY collection_week
		 ORDER BY collection_week DESC
		 LIMIT $2`,
		week, weeks,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: bed trend")
	}
	defer rows.Close()

	var trend []model.WeeklyBeds
	for rows.Next() {
		var wb model.WeeklyBeds
		if err := rows.Scan(&wb.Week, &wb.AdultBeds, &wb.PediatricBeds,
			&wb.AdultBedsOccupied, &wb.PediatricBedsOccupied, &wb.CovidBedsUsed); err != nil {
			return nil, eris.Wrap(err, "postgres: scan bed trend")
		}
		wb.Utilization = utilization(wb.AdultBeds, wb.PediatricBeds, wb.AdultBedsOccupied, wb.PediatricBedsOccupied)
		trend = append(trend, wb)
	}
	return trend, eris.Wrap(rows.Err(), "postgres: bed trend iterate")
}

func (s *PostgresStore) UtilizationByRating(ctx context.Context, week time.Time) ([]model.RatingUtilization, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT q.rating, COUNT(DISTINCT wr.hospital_pk) AS hospitals,
		        (COALESCE(SUM(wr.adult_beds_occupied_avg), 0) + COALESCE(SUM(wr.pediatric_beds_occupied_avg), 0)) * 100.0
		          / NULLIF(COALESCE(SUM(wr.adult_beds_avg), 0) + COALESCE(SUM(wr.pediatric_beds_avg), 0), 0) AS percent_in_use
		 FROM weekly_reports wr
		 LEFT JOIN hospital_quality q
		   ON q.hospital_pk = wr.hospital_pk
		  AND q.effective_date = (
		        SELECT MAX(q2.effective_date) FROM hospital_quality q2
		        WHERE q2.hospital_pk = wr.hospital_pk AND q2.effective_date <= $1
		      )
		 WHERE wr.collection_week = $1
		 GROUP BY q.rating
		 ORDER BY q.rating`,
		week,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: utilization by rating")
	}
	defer rows.Close()

	var buckets []model.RatingUtilization
	for rows.Next() {
		var ru model.RatingUtilization
		if err := rows.Scan(&ru.Rating, &ru.Hospitals, &ru.PercentInUse); err != nil {
			return nil, eris.Wrap(err, "postgres: scan rating utilization")
		}
		buckets = append(buckets, ru)
	}
	return buckets, eris.Wrap(rows.Err(), "postgres: utilization by rating iterate")
}

func (s *PostgresStore) StatesFewestOpenBeds(ctx context.Context, week time.Time, limit int) ([]model.StateOpenBeds, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.pool.Query(ctx,
		`SELECT h.state,
		        COALESCE(SUM(wr.adult_beds_avg), 0) + COALESCE(SUM(wr.pediatric_beds_avg), 0)
		          - COALESCE(SUM(wr.adult_beds_occupied_avg), 0) - COALESCE(SUM(wr.pediatric_beds_occupied_avg), 0) AS open_beds
		 FROM weekly_reports wr
		 JOIN hospitals h ON h.hospital_pk = wr.hospital_pk
		 WHERE wr.collection_week = $1 AND h.state IS NOT NULL
		 GROUP BY h.state
		 ORDER BY open_beds ASC
		 LIMIT $2`,
		week, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: states fewest open beds")
	}
	defer rows.Close()

	var states []model.StateOpenBeds
	for rows.Next() {
		var so model.StateOpenBeds
		if err := rows.Scan(&so.State, &so.OpenBeds); err != nil {
			return nil, eris.Wrap(err, "postgres: scan state open beds")
		}
		states = append(states, so)
	}
	return states, eris.Wrap(rows.Err(), "postgres: states fewest open beds iterate")
}

func (s *PostgresStore) BedUsageSeries(ctx context.Context) ([]model.BedUsagePoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT collection_week,
		        SUM(adult_beds_occupied_avg), SUM(pediatric_beds_occupied_avg),
		        SUM(covid_beds_used_avg)
		 FROM weekly_reports
		 GROUP BY collection_week
		 ORDER BY collection_week ASC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: bed usage series")
	}
	defer rows.Close()

	var series []model.BedUsagePoint
	for rows.Next() {
		var p model.BedUsagePoint
		var adultOcc, pedOcc *float64
		if err := rows.Scan(&p.Week, &adultOcc, &pedOcc, &p.CovidBedsUsed); err != nil {
			return nil, eris.Wrap(err, "postgres: scan bed usage point")
		}
		p.BedsUsed = addNullable(adultOcc, pedOcc)
		series = append(series, p)
	}
	return series, eris.Wrap(rows.Err(), "postgres: bed usage series iterate")
}

func (s *PostgresStore) NonReporting(ctx context.Context, week time.Time) ([]model.NonReportingHospital, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT h.hospital_pk, h.name, l.city, h.state, MAX(wr.collection_week) AS last_reported
		 FROM hospitals h
		 LEFT JOIN hospital_locations l ON l.hospital_pk = h.hospital_pk
		 LEFT JOIN weekly_reports wr ON wr.hospital_pk = h.hospital_pk
		 WHERE NOT EXISTS (
		     SELECT 1 FROM weekly_reports w2
		     WHERE w2.hospital_pk = h.hospital_pk AND w2.collection_week = $1
		 )
		 GROUP BY h.hospital_pk, h.name, l.city, h.state
		 ORDER BY h.name`,
		week,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: non-reporting hospitals")
	}
	defer rows.Close()

	var hospitals []model.NonReportingHospital
	for rows.Next() {
		var nr model.NonReportingHospital
		if err := rows.Scan(&nr.HospitalPK, &nr.Name, &nr.City, &nr.State, &nr.LastReported); err != nil {
			return nil, eris.Wrap(err, "postgres: scan non-reporting hospital")
		}
		hospitals = append(hospitals, nr)
	}
	return hospitals, eris.Wrap(rows.Err(), "postgres: non-reporting hospitals iterate")
}

func (s *PostgresStore) CovidByState(ctx context.Context) ([]model.StateCovid, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT h.state, COALESCE(SUM(wr.covid_beds_used_avg), 0) AS covid_beds
		 FROM weekly_reports wr
		 JOIN hospitals h ON h.hospital_pk = wr.hospital_pk
		 WHERE h.state IS NOT NULL
		 GROUP BY h.state
		 ORDER BY h.state`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: covid by state")
	}
	defer rows.Close()

	var states []model.StateCovid
	for rows.Next() {
		var sc model.StateCovid
		if err := rows.Scan(&sc.State, &sc.CovidBedsUsed); err != nil {
			return nil, eris.Wrap(err, "postgres: scan covid by state")
		}
		states = append(states, sc)
	}
	return states, eris.Wrap(rows.Err(), "postgres: covid by state iterate")
}

func (s *PostgresStore) UtilizationByState(ctx context.Context) ([]model.StateUtilizationPoint, error) {
	rows, err := s.pool.Query(ctx,
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
		return nil, eris.Wrap(err, "postgres: utilization by state")
	}
	defer rows.Close()

	var points []model.StateUtilizationPoint
	for rows.Next() {
		var p model.StateUtilizationPoint
		if err := rows.Scan(&p.Week, &p.State, &p.Percent); err != nil {
			return nil, eris.Wrap(err, "postgres: scan state utilization")
		}
		points = append(points, p)
	}
	return points, eris.Wrap(rows.Err(), "postgres: utilization by state iterate")
}
