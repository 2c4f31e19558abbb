package ingest

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hospital-cli/internal/extract"
	"github.com/sells-group/hospital-cli/internal/model"
	"github.com/sells-group/hospital-cli/internal/store"
)

// capacityColumns must all be present in the extract header. The pediatric
// occupancy metric is checked separately because HHS renamed it between
// releases.
var capacityColumns = []string{
	"hospital_pk",
	"state",
	"hospital_name",
	"address",
	"city",
	"zip",
	"fips_code",
	"geocoded_hospital_address",
	"collection_week",
	"all_adult_hospital_beds_7_day_avg",
	"all_pediatric_inpatient_beds_7_day_avg",
	"all_adult_hospital_inpatient_bed_occupied_7_day_avg",
	"total_icu_beds_7_day_avg",
	"icu_beds_used_7_day_avg",
	"inpatient_beds_used_covid_7_day_avg",
	"staffed_icu_adult_patients_confirmed_covid_7_day_avg",
}

// pediatricOccupiedColumns lists both spellings the source has used for the
// pediatric occupancy metric, newest first.
var pediatricOccupiedColumns = []string{
	"all_pediatric_inpatient_beds_occupied_7_day_avg",
	"all_pediatric_inpatient_bed_occupied_7_day_avg",
}

// CapacityLoader ingests the weekly HHS hospital capacity extract.
type CapacityLoader struct {
	// BatchSize overrides the default rows-per-upsert batch when positive.
	BatchSize int
	// Encoding names the source charset when the file is not UTF-8.
	Encoding string
}

func (l *CapacityLoader) Dataset() string { return model.DatasetCapacity }

// Load parses one capacity extract and upserts hospitals, locations, and
// weekly reports. Rows are deduplicated by (hospital_pk, collection_week)
// across the whole file before any write, last occurrence winning, so a
// batch never carries two versions of the same key.
func (l *CapacityLoader) Load(ctx context.Context, s store.Store, path string) (*Result, error) {
	log := zap.L().With(zap.String("component", "ingest"), zap.String("dataset", model.DatasetCapacity))

	t, err := extract.Open(path, l.Encoding)
	if err != nil {
		return nil, eris.Wrap(ErrStructural, err.Error())
	}
	defer t.Close() //nolint:errcheck

	cols := extract.MapColumns(t.Header())
	if err := cols.Require(capacityColumns...); err != nil {
		return nil, eris.Wrap(ErrStructural, err.Error())
	}
	if !cols.Has(pediatricOccupiedColumns...) {
		return nil, eris.Wrapf(ErrStructural, "extract: missing required columns: %s", pediatricOccupiedColumns[0])
	}

	res := &Result{}
	hospitals := make(map[string]model.Hospital)
	locations := make(map[string]model.Location)
	reports := make(map[string]model.WeeklyReport)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		record, err := t.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			res.RowsSkipped++
			log.Warn("skipping unreadable row", zap.Error(err))
			continue
		}
		res.RowsRead++

		pk := cols.Get(record, "hospital_pk")
		state := cols.Get(record, "state")
		weekRaw := cols.Get(record, "collection_week")
		if pk == "" || state == "" || weekRaw == "" {
			res.RowsSkipped++
			log.Warn("skipping row with missing key fields", zap.Int64("row", res.RowsRead))
			continue
		}

		week, err := extract.ParseDate(weekRaw)
		if err != nil {
			res.RowsSkipped++
			log.Warn("skipping row with unparseable collection week",
				zap.Int64("row", res.RowsRead), zap.String("collection_week", weekRaw))
			continue
		}

		hospitals[pk] = model.Hospital{
			PK:    pk,
			Name:  extract.NullString(cols.Get(record, "hospital_name")),
			State: extract.NullString(state),
		}

		lon, lat := extract.ParsePoint(cols.Get(record, "geocoded_hospital_address"))
		locations[pk] = model.Location{
			HospitalPK: pk,
			Address:    extract.NullString(cols.Get(record, "address")),
			City:       extract.NullString(cols.Get(record, "city")),
			Zip:        extract.NullString(cols.Get(record, "zip")),
			FIPSCode:   extract.NullString(cols.Get(record, "fips_code")),
			Latitude:   lat,
			Longitude:  lon,
		}

		reports[pk+"|"+week.Format("2006-01-02")] = model.WeeklyReport{
			HospitalPK:            pk,
			CollectionWeek:        week,
			AdultBeds:             extract.NullMetric(cols.Get(record, "all_adult_hospital_beds_7_day_avg")),
			PediatricBeds:         extract.NullMetric(cols.Get(record, "all_pediatric_inpatient_beds_7_day_avg")),
			AdultBedsOccupied:     extract.NullMetric(cols.Get(record, "all_adult_hospital_inpatient_bed_occupied_7_day_avg")),
			PediatricBedsOccupied: extract.NullMetric(cols.First(record, pediatricOccupiedColumns...)),
			ICUBeds:               extract.NullMetric(cols.Get(record, "total_icu_beds_7_day_avg")),
			ICUBedsUsed:           extract.NullMetric(cols.Get(record, "icu_beds_used_7_day_avg")),
			CovidBedsUsed:         extract.NullMetric(cols.Get(record, "inpatient_beds_used_covid_7_day_avg")),
			CovidICUPatients:      extract.NullMetric(cols.Get(record, "staffed_icu_adult_patients_confirmed_covid_7_day_avg")),
		}
	}

	log.Info("parsed extract",
		zap.Int64("rows", res.RowsRead),
		zap.Int("hospitals", len(hospitals)),
		zap.Int("reports", len(reports)),
	)

	batchSize := l.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	// Hospitals flush before their dependent rows.
	if _, err := flushBatches(ctx, batchSize, mapValues(hospitals), s.UpsertHospitals); err != nil {
		return nil, eris.Wrap(err, "capacity: upsert hospitals")
	}
	if _, err := flushBatches(ctx, batchSize, mapValues(locations), s.UpsertLocations); err != nil {
		return nil, eris.Wrap(err, "capacity: upsert locations")
	}
	loaded, err := flushBatches(ctx, batchSize, mapValues(reports), s.UpsertWeeklyReports)
	if err != nil {
		return nil, eris.Wrap(err, "capacity: upsert weekly reports")
	}
	res.RowsLoaded = loaded

	return res, nil
}
