package ingest

import (
	"context"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hospital-cli/internal/extract"
	"github.com/sells-group/hospital-cli/internal/model"
	"github.com/sells-group/hospital-cli/internal/store"
)

// qualityColumns must all be present in the extract header. CMS publishes
// these with display-case names; matching is case-insensitive.
var qualityColumns = []string{
	"Facility ID",
	"Facility Name",
	"City",
	"State",
	"ZIP Code",
	"Hospital Type",
	"Hospital Ownership",
	"Emergency Services",
	"Hospital overall rating",
}

// qualityDateColumns lists the header names CMS has used for the snapshot
// date. Optional; a fallback date can stand in when absent.
var qualityDateColumns = []string{"Effective Date", "Rating Date"}

// QualityLoader ingests a CMS hospital quality extract, one versioned
// snapshot per hospital.
type QualityLoader struct {
	// EffectiveDate is the snapshot date to record when the file carries no
	// date column. Required in that case; the date is part of the key.
	EffectiveDate *time.Time
	// Encoding names the source charset when the file is not UTF-8.
	Encoding string
	// BatchSize overrides the default rows-per-upsert batch when positive.
	BatchSize int
}

func (l *QualityLoader) Dataset() string { return model.DatasetQuality }

// Load parses one quality extract and upserts hospitals and quality
// records. Rows are deduplicated by hospital_pk across the whole file, last
// occurrence winning. Quality extracts never write locations; that column
// set belongs to the capacity feed.
func (l *QualityLoader) Load(ctx context.Context, s store.Store, path string) (*Result, error) {
	log := zap.L().With(zap.String("component", "ingest"), zap.String("dataset", model.DatasetQuality))

	t, err := extract.Open(path, l.Encoding)
	if err != nil {
		return nil, eris.Wrap(ErrStructural, err.Error())
	}
	defer t.Close() //nolint:errcheck

	cols := extract.MapColumns(t.Header())
	if err := cols.Require(qualityColumns...); err != nil {
		return nil, eris.Wrap(ErrStructural, err.Error())
	}

	fileHasDate := cols.Has(qualityDateColumns...)
	if !fileHasDate && l.EffectiveDate == nil {
		return nil, eris.Wrap(ErrStructural, "quality: file has no effective date column and no fallback date was provided")
	}

	res := &Result{}
	hospitals := make(map[string]model.Hospital)
	records := make(map[string]model.QualityRecord)

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

		pk := cols.Get(record, "Facility ID")
		if pk == "" {
			res.RowsSkipped++
			log.Warn("skipping row with no facility id", zap.Int64("row", res.RowsRead))
			continue
		}

		var effective time.Time
		if fileHasDate {
			if raw := cols.First(record, qualityDateColumns...); raw != "" {
				if d, err := extract.ParseDate(raw); err == nil {
					effective = d
				}
			}
		}
		if effective.IsZero() {
			if l.EffectiveDate == nil {
				res.RowsSkipped++
				log.Warn("skipping row with unresolvable effective date", zap.Int64("row", res.RowsRead))
				continue
			}
			effective = *l.EffectiveDate
		}

		hospitals[pk] = model.Hospital{
			PK:    pk,
			Name:  extract.NullString(cols.Get(record, "Facility Name")),
			State: extract.NullString(cols.Get(record, "State")),
		}

		records[pk] = model.QualityRecord{
			HospitalPK:        pk,
			EffectiveDate:     effective,
			FacilityType:      extract.NullString(cols.Get(record, "Hospital Type")),
			Ownership:         extract.NullString(cols.Get(record, "Hospital Ownership")),
			EmergencyServices: extract.NullBool(cols.Get(record, "Emergency Services")),
			Rating:            extract.NullRating(cols.Get(record, "Hospital overall rating")),
		}
	}

	log.Info("parsed extract", zap.Int64("rows", res.RowsRead), zap.Int("hospitals", len(hospitals)))

	batchSize := l.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	if _, err := flushBatches(ctx, batchSize, mapValues(hospitals), s.UpsertHospitals); err != nil {
		return nil, eris.Wrap(err, "quality: upsert hospitals")
	}
	loaded, err := flushBatches(ctx, batchSize, mapValues(records), s.UpsertQualityRecords)
	if err != nil {
		return nil, eris.Wrap(err, "quality: upsert records")
	}
	res.RowsLoaded = loaded

	return res, nil
}
