package crime

import (
	"context"
	"errors"
	"strconv"

	"github.com/phlyk/bewhere-mvp-sub002/internal/datasets"
	"github.com/phlyk/bewhere-mvp-sub002/internal/etl"
)

// DefaultSource tags rows whose provenance is not configured.
const DefaultSource = "ssmsi"

// monthMax bounds the month component of the natural key. Zero marks a
// yearly observation.
const monthMax = 12

var _ etl.Transformer = (*Transformer)(nil)

// Column aliases across SSMSI publication vintages. Headers are lowercased
// by the table reader before lookup.
var (
	codeColumns     = []string{"code.département", "code_departement", "dep", "departement"}
	categoryColumns = []string{"classe", "categorie", "indicateur", "category"}
	yearColumns     = []string{"annee", "year"}
	monthColumns    = []string{"mois", "month"}
	countColumns    = []string{"faits", "nombre", "count"}
)

var (
	errMissingCategory = errors.New("category is missing")
	errMissingYear     = errors.New("year is missing")
	errYearNotNumeric  = errors.New("year is not numeric")
	errMonthOutOfRange = errors.New("month is not in 1..12")
	errCountInvalid    = errors.New("incident count is not a non-negative integer")
)

type (
	// TransformerConfig controls interpretation of raw observation rows.
	TransformerConfig struct {
		// Source labels the provider in the natural key ("ssmsi" when empty).
		Source string
		// Tolerance is the row-level error policy.
		Tolerance etl.Tolerance
	}

	// Transformer maps raw column maps into load records keyed by
	// (department_code, category, source, year, month). Rows without a month
	// column are yearly observations and normalize to month 0, keeping them
	// distinct from every monthly row under the same key.
	Transformer struct {
		config TransformerConfig
	}
)

// NewTransformer creates a crime transformer.
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

		loadRecord, rowErr := t.transformRow(i, row)
		if rowErr != nil {
			if err := t.config.Tolerance.Record(result, *rowErr); err != nil {
				return result, err
			}

			continue
		}

		result.Records = append(result.Records, loadRecord)
		result.TransformedCount++
	}

	return result, nil
}

func (t *Transformer) transformRow(i int, row map[string]string) (etl.LoadRecord, *etl.RowError) {
	code := datasets.NormalizeDepartmentCode(column(row, codeColumns))
	if code == "" {
		return etl.LoadRecord{}, &etl.RowError{
			Row: i, Field: "department_code", Message: "row has no department code",
			Value: column(row, codeColumns),
		}
	}

	category := column(row, categoryColumns)
	if category == "" {
		return etl.LoadRecord{}, &etl.RowError{
			Row: i, Field: "category", Message: errMissingCategory.Error(),
		}
	}

	year, err := parseYear(column(row, yearColumns))
	if err != nil {
		return etl.LoadRecord{}, &etl.RowError{
			Row: i, Field: "year", Message: err.Error(), Value: column(row, yearColumns),
		}
	}

	month, err := parseMonth(column(row, monthColumns))
	if err != nil {
		return etl.LoadRecord{}, &etl.RowError{
			Row: i, Field: "month", Message: err.Error(), Value: column(row, monthColumns),
		}
	}

	count, err := parseCount(column(row, countColumns))
	if err != nil {
		return etl.LoadRecord{}, &etl.RowError{
			Row: i, Field: "incident_count", Message: err.Error(), Value: column(row, countColumns),
		}
	}

	return etl.LoadRecord{
		Key: map[string]any{
			"department_code": code,
			"category":        category,
			"source":          t.config.Source,
			"year":            year,
			"month":           month,
		},
		Fields: map[string]any{
			"incident_count": count,
		},
	}, nil
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

func parseYear(raw string) (int, error) {
	if raw == "" {
		return 0, errMissingYear
	}

	year, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errYearNotNumeric
	}

	// SSMSI abbreviates the vintage ("16" for 2016).
	if year < 100 {
		year += 2000
	}

	return year, nil
}

// parseMonth maps an absent month to 0, the yearly-observation marker.
func parseMonth(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}

	month, err := strconv.Atoi(raw)
	if err != nil || month < 1 || month > monthMax {
		return 0, errMonthOutOfRange
	}

	return month, nil
}

func parseCount(raw string) (int, error) {
	count, err := strconv.Atoi(raw)
	if err != nil || count < 0 {
		return 0, errCountInvalid
	}

	return count, nil
}
