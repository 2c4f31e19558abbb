// Package report assembles the weekly analytical summary from the store's
// aggregations. The payload is renderer-agnostic; text rendering for the
// CLI lives alongside it, JSON encoding is left to the caller.
package report

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/hospital-cli/internal/model"
	"github.com/sells-group/hospital-cli/internal/store"
)

// ErrNoData means the store holds no weekly reports for the requested week.
var ErrNoData = eris.New("no data for the requested week")

const (
	// trendWeeks is how far the utilization trend looks back, target week
	// inclusive.
	trendWeeks = 5
	// openBedStates caps the fewest-open-beds ranking.
	openBedStates = 10
)

// Builder assembles weekly reports from a store.
type Builder struct {
	store store.Store
}

// NewBuilder creates a Builder backed by s.
func NewBuilder(s store.Store) *Builder {
	return &Builder{store: s}
}

// Build computes every metric group for the target week. It fails fast with
// ErrNoData when no hospital reported that week; past that gate each metric
// degrades independently to empty slices or nil values.
func (b *Builder) Build(ctx context.Context, week time.Time) (*model.Report, error) {
	log := zap.L().With(zap.String("component", "report"), zap.String("week", week.Format("2006-01-02")))

	present, err := b.store.WeekPresent(ctx, week)
	if err != nil {
		return nil, eris.Wrap(err, "report: check week")
	}
	if !present {
		return nil, eris.Wrapf(ErrNoData, "week %s", week.Format("2006-01-02"))
	}

	rep := &model.Report{Week: week}
	start := time.Now()

	// Each goroutine fills exactly one field; Wait orders the writes
	// before the return.
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		summary, err := b.store.RecordSummary(gCtx, week)
		if err != nil {
			return eris.Wrap(err, "report: record summary")
		}
		rep.Records = *summary
		return nil
	})

	g.Go(func() error {
		trend, err := b.store.BedTrend(gCtx, week, trendWeeks)
		if err != nil {
			return eris.Wrap(err, "report: bed trend")
		}
		rep.BedTrend = trend
		return nil
	})

	g.Go(func() error {
		buckets, err := b.store.UtilizationByRating(gCtx, week)
		if err != nil {
			return eris.Wrap(err, "report: utilization by rating")
		}
		rep.ByRating = buckets
		return nil
	})

	g.Go(func() error {
		states, err := b.store.StatesFewestOpenBeds(gCtx, week, openBedStates)
		if err != nil {
			return eris.Wrap(err, "report: states fewest open beds")
		}
		rep.FewestOpenBeds = states
		return nil
	})

	g.Go(func() error {
		series, err := b.store.BedUsageSeries(gCtx)
		if err != nil {
			return eris.Wrap(err, "report: bed usage series")
		}
		rep.UsageSeries = series
		return nil
	})

	g.Go(func() error {
		missing, err := b.store.NonReporting(gCtx, week)
		if err != nil {
			return eris.Wrap(err, "report: non-reporting hospitals")
		}
		rep.NonReporting = missing
		return nil
	})

	g.Go(func() error {
		covid, err := b.store.CovidByState(gCtx)
		if err != nil {
			return eris.Wrap(err, "report: covid by state")
		}
		rep.CovidByState = covid
		return nil
	})

	g.Go(func() error {
		points, err := b.store.UtilizationByState(gCtx)
		if err != nil {
			return eris.Wrap(err, "report: utilization by state")
		}
		rep.StateUtilization = points
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	rep.GeneratedAt = time.Now().UTC()
	log.Info("report assembled",
		zap.Int64("hospitals", rep.Records.Hospitals),
		zap.Duration("elapsed", time.Since(start)),
	)
	return rep, nil
}
