package main

import (
	"context"
	"fmt"

	"github.com/sells-group/hospital-cli/internal/ingest"
)

// runLoad executes one loader against one file and prints the row summary.
func runLoad(ctx context.Context, l ingest.Loader, path string) error {
	s, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close() //nolint:errcheck

	engine := ingest.NewEngine(s)
	_, result, err := engine.Run(ctx, l, path)
	if err != nil {
		return err
	}

	fmt.Printf("Loaded %d of %d rows from %s", result.RowsLoaded, result.RowsRead, path)
	if result.RowsSkipped > 0 {
		fmt.Printf(" (%d skipped)", result.RowsSkipped)
	}
	fmt.Println()
	return nil
}
