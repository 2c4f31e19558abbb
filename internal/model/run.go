package model

import "time"

// RunStatus represents the current state of an ingest run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Dataset names the two feeds the pipeline ingests.
const (
	DatasetCapacity = "capacity"
	DatasetQuality  = "quality"
)

// IngestRun is the audit record for a single load of one source file.
type IngestRun struct {
	ID          string     `json:"id"`
	Dataset     string     `json:"dataset"`
	Source      string     `json:"source"`
	Status      RunStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	RowsRead    int64      `json:"rows_read"`
	RowsLoaded  int64      `json:"rows_loaded"`
	RowsSkipped int64      `json:"rows_skipped"`
	Error       string     `json:"error,omitempty"`
}

// RunCounts carries the row tallies recorded when a run completes.
type RunCounts struct {
	Read    int64 `json:"read"`
	Loaded  int64 `json:"loaded"`
	Skipped int64 `json:"skipped"`
}
