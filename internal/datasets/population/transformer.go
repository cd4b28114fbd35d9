package population

import (
	"context"
	"errors"
	"strconv"

	"github.com/phlyk/bewhere-mvp-sub002/internal/datasets"
	"github.com/phlyk/bewhere-mvp-sub002/internal/etl"
)

var (
	errMissingYear       = errors.New("year is missing")
	errYearNotNumeric    = errors.New("year is not numeric")
	errMissingPopulation = errors.New("population is missing")
	errPopulationInvalid = errors.New("population is not a non-negative integer")
)

// DefaultSource tags rows whose provenance is not configured.
const DefaultSource = "insee"

var _ etl.Transformer = (*Transformer)(nil)

// Column aliases across INSEE publication vintages. Headers are lowercased
// by the table reader before lookup.
var (
	codeColumns       = []string{"dep", "code_departement", "departement", "code"}
	yearColumns       = []string{"annee", "year"}
	populationColumns = []string{"population", "pop", "ptot"}
)

type (
	// TransformerConfig controls interpretation of raw population rows.
	TransformerConfig struct {
		// Source labels the provider in the natural key ("insee" when empty).
		Source string
		// DefaultYear stands in for rows missing a year column; zero means a
		// missing year is a row error.
		DefaultYear int
		// Tolerance is the row-level error policy.
		Tolerance etl.Tolerance
	}

	// Transformer maps raw column maps into load records keyed by
	// (department_code, year).
	Transformer struct {
		config TransformerConfig
	}
)

// NewTransformer creates a population transformer.
func NewTransformer(cfg TransformerConfig) *Transformer {
	if cfg.Source == "" {
		cfg.Source = DefaultSource
	}

	return &Transformer{config: cfg}
}

// Validate reports whether the transformer is configured to run.
func (t *Transformer) Validate() bool {
	return true
}

// Transform processes rows independently and in input order. Rows failing
// validation are recorded per row and skipped or aborted under the tolerance
// policy.
func (t *Transformer) Transform(_ context.Context, records []etl.SourceRecord) (*etl.TransformationResult, error) {
	result := &etl.TransformationResult{}

	for i, record := range records {
		row, ok := record.(map[string]string)
		if !ok {
			if err := t.config.Tolerance.Record(result, etl.RowError{
				Row:     i,
				Field:   "row",
				Message: "record is not a column map",
				Value:   record,
			}); err != nil {
				return result, err
			}

			continue
		}

		code := datasets.NormalizeDepartmentCode(column(row, codeColumns))
		if code == "" {
			if err := t.config.Tolerance.Record(result, etl.RowError{
				Row:     i,
				Field:   "department_code",
				Message: "row has no department code",
				Value:   column(row, codeColumns),
			}); err != nil {
				return result, err
			}

			continue
		}

		year, err := parseYear(column(row, yearColumns), t.config.DefaultYear)
		if err != nil {
			if recErr := t.config.Tolerance.Record(result, etl.RowError{
				Row:     i,
				Field:   "year",
				Message: err.Error(),
				Value:   column(row, yearColumns),
			}); recErr != nil {
				return result, recErr
			}

			continue
		}

		count, err := parseCount(column(row, populationColumns))
		if err != nil {
			if recErr := t.config.Tolerance.Record(result, etl.RowError{
				Row:     i,
				Field:   "population",
				Message: err.Error(),
				Value:   column(row, populationColumns),
			}); recErr != nil {
				return result, recErr
			}

			continue
		}

		result.Records = append(result.Records, etl.LoadRecord{
			Key: map[string]any{
				"department_code": code,
				"year":            year,
			},
			Fields: map[string]any{
				"population": count,
				"source":     t.config.Source,
			},
		})
		result.TransformedCount++
	}

	return result, nil
}

// column returns the first non-empty value among the aliased headers.
func column(row map[string]string, names []string) string {
	for _, name := range names {
		if value := row[name]; value != "" {
			return value
		}
	}

	return ""
}

func parseYear(raw string, fallback int) (int, error) {
	if raw == "" {
		if fallback > 0 {
			return fallback, nil
		}

		return 0, errMissingYear
	}

	year, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errYearNotNumeric
	}

	// Some publications abbreviate the vintage ("16" for 2016).
	if year < 100 {
		year += 2000
	}

	return year, nil
}

func parseCount(raw string) (int, error) {
	if raw == "" {
		return 0, errMissingPopulation
	}

	count, err := strconv.Atoi(raw)
	if err != nil || count < 0 {
		return 0, errPopulationInvalid
	}

	return count, nil
}
