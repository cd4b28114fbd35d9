// Package crime implements the ETL stages for department-level crime
// statistics (SSMSI publications for the MVP). Crime loads last: its
// per-capita rates derive from the population figures already in the store.
package crime

import (
	"context"

	"github.com/phlyk/bewhere-mvp-sub002/internal/datasets"
	"github.com/phlyk/bewhere-mvp-sub002/internal/etl"
)

var _ etl.Extractor = (*Extractor)(nil)

type (
	// ExtractorConfig controls one crime extraction.
	ExtractorConfig struct {
		// Source is the URL or local path of the delimited statistics table.
		Source string
		// MaxRows caps the extraction; zero disables the cap.
		MaxRows int
		// MinRows triggers an advisory warning below this count; zero disables.
		MinRows int
	}

	// Extractor pulls observation rows out of a delimited SSMSI table.
	Extractor struct {
		fetcher datasets.Fetcher
		config  ExtractorConfig
	}
)

// NewExtractor creates a crime extractor over the given fetcher.
func NewExtractor(fetcher datasets.Fetcher, cfg ExtractorConfig) *Extractor {
	return &Extractor{fetcher: fetcher, config: cfg}
}

// Validate reports whether the source is fetchable. No network I/O.
func (e *Extractor) Validate() bool {
	return e.fetcher.Validate(e.config.Source)
}

// Extract fetches and parses the table, leaving interpretation to the
// transformer so per-row failures land in its error budget.
func (e *Extractor) Extract(ctx context.Context) (*etl.ExtractionResult, error) {
	fetched, err := e.fetcher.Fetch(ctx, e.config.Source)
	if err != nil {
		return nil, &etl.ExtractionError{Source: e.config.Source, Err: err}
	}

	rows, err := datasets.ReadTable(fetched.Path)
	if err != nil {
		return nil, &etl.ExtractionError{Source: e.config.Source, Err: err}
	}

	result := etl.NewExtractionResult(e.config.Source)

	records := make([]etl.SourceRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row)
	}

	result.SetRecords(records)
	result.CapRows(e.config.MaxRows)
	result.CheckMinRows(e.config.MinRows)

	return result, nil
}
