// Package boundaries implements the ETL stages for geographic boundary
// datasets (French departments for the MVP). Boundaries load first: every
// other dataset references them as its foreign-key target.
package boundaries

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/phlyk/bewhere-mvp-sub002/internal/datasets"
	"github.com/phlyk/bewhere-mvp-sub002/internal/etl"
)

// Level is the administrative level loaded by this plugin. Part of the
// natural key (code, level) so communes or regions can share the table later.
const Level = "department"

var (
	// ErrNotFeatureCollection is returned when the source payload's top-level
	// type is not a GeoJSON FeatureCollection.
	ErrNotFeatureCollection = errors.New("source is not a FeatureCollection")

	_ etl.Extractor = (*Extractor)(nil)
)

type (
	// ExtractorConfig controls one boundary extraction.
	ExtractorConfig struct {
		// Source is the URL or local path of the GeoJSON FeatureCollection.
		Source string
		// IncludeOverseas keeps the overseas departments (codes 971+). The MVP
		// map renders metropolitan France, so the default is to filter them.
		IncludeOverseas bool
		// MaxRows caps the extraction; zero disables the cap.
		MaxRows int
		// MinRows triggers an advisory warning below this count; zero disables.
		MinRows int
	}

	// Extractor pulls department features out of a GeoJSON FeatureCollection.
	Extractor struct {
		fetcher datasets.Fetcher
		config  ExtractorConfig
	}

	// feature mirrors the subset of a GeoJSON feature the transformer needs.
	// Geometry stays raw: the geometry codec owns its interpretation.
	feature struct {
		Type       string         `json:"type"`
		Properties map[string]any `json:"properties"`
		Geometry   map[string]any `json:"geometry"`
	}

	featureCollection struct {
		Type     string    `json:"type"`
		Features []feature `json:"features"`
	}
)

// NewExtractor creates a boundary extractor over the given fetcher.
func NewExtractor(fetcher datasets.Fetcher, cfg ExtractorConfig) *Extractor {
	return &Extractor{fetcher: fetcher, config: cfg}
}

// Validate reports whether the source is fetchable. No network I/O.
func (e *Extractor) Validate() bool {
	return e.fetcher.Validate(e.config.Source)
}

// Extract fetches and parses the FeatureCollection, filtering features that
// cannot participate in a load: missing department codes always, overseas
// departments unless configured in. Filtering is recorded as warnings, not
// errors; upstream data is expected to be imperfect.
func (e *Extractor) Extract(ctx context.Context) (*etl.ExtractionResult, error) {
	fetched, err := e.fetcher.Fetch(ctx, e.config.Source)
	if err != nil {
		return nil, &etl.ExtractionError{Source: e.config.Source, Err: err}
	}

	data, err := os.ReadFile(fetched.Path) //nolint:gosec // path comes from the fetch cache
	if err != nil {
		return nil, &etl.ExtractionError{Source: e.config.Source, Err: err}
	}

	var collection featureCollection
	if err := json.Unmarshal(data, &collection); err != nil {
		return nil, &etl.ExtractionError{Source: e.config.Source, Err: fmt.Errorf("invalid GeoJSON: %w", err)}
	}

	if collection.Type != "FeatureCollection" {
		return nil, &etl.ExtractionError{
			Source: e.config.Source,
			Err:    fmt.Errorf("%w: got %q", ErrNotFeatureCollection, collection.Type),
		}
	}

	result := etl.NewExtractionResult(e.config.Source)

	var (
		records     []etl.SourceRecord
		missingCode int
		overseas    int
	)

	for _, f := range collection.Features {
		code := datasets.NormalizeDepartmentCode(featureCode(f))
		if code == "" {
			missingCode++

			continue
		}

		if !e.config.IncludeOverseas && datasets.IsOverseas(code) {
			overseas++

			continue
		}

		records = append(records, etl.SourceRecord(f))
	}

	result.SetRecords(records)

	if missingCode > 0 {
		result.AddWarning("Filtered out %d features missing a department code", missingCode)
	}

	if overseas > 0 {
		result.AddWarning("Filtered out %d overseas departments (IncludeOverseas=false)", overseas)
	}

	result.CapRows(e.config.MaxRows)
	result.CheckMinRows(e.config.MinRows)

	return result, nil
}

// featureCode digs the department code out of a feature's properties. The
// upstream publishes it as "code"; older exports used "code_insee".
func featureCode(f feature) string {
	for _, key := range []string{"code", "code_insee"} {
		if code, ok := f.Properties[key].(string); ok {
			return code
		}
	}

	return ""
}
