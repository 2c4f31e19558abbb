// Package ingest loads published hospital extracts into the store. Each
// dataset has a Loader; the Engine brackets every load with an ingest run
// row so failures and row counts are auditable later.
package ingest

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hospital-cli/internal/store"
)

// ErrStructural marks a file that cannot be loaded at all: unreadable,
// missing required columns, or carrying no resolvable effective date.
// Row-level problems never wrap it; they are skipped and counted instead.
var ErrStructural = eris.New("structural error")

// defaultBatchSize bounds how many rows go to the store per upsert call.
const defaultBatchSize = 1000

// Result holds the outcome of one dataset load. RowsRead counts data rows
// seen, RowsLoaded rows written after in-file dedupe, RowsSkipped rows
// rejected for missing or unparseable key fields.
type Result struct {
	RowsRead    int64
	RowsLoaded  int64
	RowsSkipped int64
}

// Loader defines the interface each dataset loader implements.
type Loader interface {
	// Dataset returns the identifier recorded on ingest runs.
	Dataset() string

	// Load parses the file at path and writes its rows to the store.
	Load(ctx context.Context, s store.Store, path string) (*Result, error)
}

// mapValues flattens a dedupe map into a slice for batching.
func mapValues[K comparable, V any](m map[K]V) []V {
	out := make([]V, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

// flushBatches writes rows through upsert in batchSize slices, returning the
// total written.
func flushBatches[T any](ctx context.Context, batchSize int, rows []T, upsert func(context.Context, []T) (int64, error)) (int64, error) {
	var total int64
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		n, err := upsert(ctx, rows[start:end])
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
