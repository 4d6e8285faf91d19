package cmd

import (
	"context"
	"fmt"

	"github.com/mlahti/bookfetch/internal/batch"
)

// EnrichCmd runs one batch enrichment pass over the book store.
type EnrichCmd struct {
	BatchSize     int  `help:"Maximum number of distinct works to resolve in one pass" default:"100"`
	RefreshCovers bool `help:"Also reprocess rows whose cover is missing or a known placeholder"`
}

func (e *EnrichCmd) Run() error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("opening book store: %w", err)
	}
	defer func() { _ = st.Close() }()

	job := batch.New(st, buildResolver())
	report, err := job.Run(context.Background(), e.BatchSize, e.RefreshCovers)
	if err != nil {
		return err
	}

	fmt.Printf("processed:      %d\n", report.Processed)
	fmt.Printf("rows updated:   %d\n", report.Updated)
	fmt.Printf("covers updated: %d\n", report.CoversUpdated)
	fmt.Printf("no data found:  %d\n", report.NoDataFound)
	fmt.Printf("remaining:      %d\n", report.Remaining)
	for _, msg := range report.Errors {
		fmt.Printf("error: %s\n", msg)
	}
	return nil
}
