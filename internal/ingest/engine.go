package ingest

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hospital-cli/internal/model"
	"github.com/sells-group/hospital-cli/internal/store"
)

// Engine runs dataset loads and records each one as an ingest run.
type Engine struct {
	store store.Store
}

// NewEngine creates an Engine backed by s.
func NewEngine(s store.Store) *Engine {
	return &Engine{store: s}
}

// Run executes one loader against one file. The run row is marked failed
// with the error message when the load aborts, completed with the row
// counts otherwise.
func (e *Engine) Run(ctx context.Context, l Loader, path string) (*model.IngestRun, *Result, error) {
	log := zap.L().With(zap.String("component", "ingest"), zap.String("dataset", l.Dataset()))

	run, err := e.store.StartRun(ctx, l.Dataset(), filepath.Base(path))
	if err != nil {
		return nil, nil, eris.Wrap(err, "ingest: start run")
	}

	log.Info("starting load", zap.String("run_id", run.ID), zap.String("file", path))
	start := time.Now()
	result, err := l.Load(ctx, e.store, path)
	elapsed := time.Since(start)

	if err != nil {
		log.Error("load failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		if logErr := e.store.FailRun(ctx, run.ID, err.Error()); logErr != nil {
			log.Error("failed to record run failure", zap.Error(logErr))
		}
		return run, nil, err
	}

	counts := model.RunCounts{Read: result.RowsRead, Loaded: result.RowsLoaded, Skipped: result.RowsSkipped}
	if err := e.store.CompleteRun(ctx, run.ID, counts); err != nil {
		return run, result, eris.Wrap(err, "ingest: complete run")
	}

	log.Info("load complete",
		zap.Int64("read", result.RowsRead),
		zap.Int64("loaded", result.RowsLoaded),
		zap.Int64("skipped", result.RowsSkipped),
		zap.Duration("elapsed", elapsed),
	)
	return run, result, nil
}
