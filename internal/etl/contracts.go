// Package etl provides the generic extract/transform/load contracts, the
// pipeline state machine, and the multi-dataset orchestrator.
//
// The package defines the three stage interfaces which dataset plugins
// implement; concrete extractors, transformers, and loaders live under
// internal/datasets and are injected into a Pipeline. This follows the
// Dependency Inversion Principle: the pipeline depends only on the three
// interfaces, never on concrete dataset types.
package etl

import (
	"context"
	"fmt"
	"time"
)

type (
	// SourceRecord is one provider-specific unit of raw data. Opaque to the
	// core except for a presence check.
	SourceRecord any

	// LoadRecord is a fully normalized record ready for persistence.
	LoadRecord struct {
		// Key holds the natural key fields (e.g. code+level), never a surrogate ID.
		Key map[string]any
		// Fields holds the remaining attribute fields.
		Fields map[string]any
		// GeometryWKT is the wire-format geometry, empty for non-spatial records.
		GeometryWKT string
		// Geometry retains the original interchange-format geometry for audit.
		Geometry any
	}

	// ExtractionResult is the output of one Extract call.
	//
	// Invariant: RowCount == len(Records) after any filtering.
	ExtractionResult struct {
		Records     []SourceRecord
		Source      string
		RowCount    int
		ExtractedAt time.Time
		Warnings    []string
	}

	// RowError records one recoverable per-row transformation failure.
	RowError struct {
		Row     int    `json:"row"`
		Field   string `json:"field"`
		Message string `json:"message"`
		Value   any    `json:"value"`
	}

	// TransformationResult is the output of one Transform call. Record order
	// matches input order for auditability.
	//
	// Invariant: TransformedCount + SkippedCount == input count.
	TransformationResult struct {
		Records          []LoadRecord
		TransformedCount int
		SkippedCount     int
		Errors           []RowError
	}

	// LoadResult is the output of one Load call.
	LoadResult struct {
		InsertedCount int
		UpdatedCount  int
		SkippedCount  int
		Errors        []string
	}

	// Extractor pulls raw records from a source into the intermediate
	// representation. Implementations must not mutate persistent state.
	//
	// Row-level filters (e.g. dropping records missing a mandatory key field)
	// are non-fatal: the drop count is recorded as a warning, since upstream
	// data is expected to be imperfect.
	Extractor interface {
		// Extract returns the source records with provenance and warnings.
		Extract(ctx context.Context) (*ExtractionResult, error)

		// Validate reports whether the extractor is configured to run.
		// It performs no network I/O.
		Validate() bool
	}

	// Transformer maps source records into load-ready records, preserving
	// input order and accumulating per-row errors under the configured
	// tolerance policy.
	Transformer interface {
		// Transform processes records independently and in input order. A
		// tolerance overrun aborts with a *TransformationError.
		Transform(ctx context.Context, records []SourceRecord) (*TransformationResult, error)

		// Validate reports whether the transformer is configured to run.
		Validate() bool
	}

	// Loader persists load records transactionally with upsert semantics keyed
	// by the natural key. Each batch is all-or-nothing: any per-record failure
	// rolls back the in-flight transaction, because partially committed
	// spatial data is unsafe to leave behind.
	Loader interface {
		// Load upserts records in transaction-scoped batches.
		Load(ctx context.Context, records []LoadRecord) (*LoadResult, error)

		// Validate reports whether the loader is configured to run.
		Validate() bool
	}

	// Tolerance is the row-processing error policy shared by transformers.
	//
	// ContinueOnError selects best-effort processing: rows failing validation
	// are skipped and recorded until MaxErrors is reached, after which the
	// transform aborts. With ContinueOnError false the first row error aborts.
	Tolerance struct {
		ContinueOnError bool
		MaxErrors       int
	}
)

// NewExtractionResult creates an extraction result stamped with the source and
// the extraction time.
func NewExtractionResult(source string) *ExtractionResult {
	return &ExtractionResult{
		Source:      source,
		ExtractedAt: time.Now().UTC(),
	}
}

// AddWarning appends a warning message.
func (r *ExtractionResult) AddWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// SetRecords replaces the record set and restores the RowCount invariant.
func (r *ExtractionResult) SetRecords(records []SourceRecord) {
	r.Records = records
	r.RowCount = len(records)
}

// CapRows enforces an optional maximum row count. A zero or negative max is a
// no-op; capping records the truncation as a warning.
func (r *ExtractionResult) CapRows(maxRows int) {
	if maxRows <= 0 || len(r.Records) <= maxRows {
		return
	}

	dropped := len(r.Records) - maxRows
	r.SetRecords(r.Records[:maxRows])
	r.AddWarning("Truncated extraction to %d rows (%d dropped by row cap)", maxRows, dropped)
}

// CheckMinRows records an advisory warning when the extraction produced fewer
// rows than expected. Cross-dataset row counts drift over time, so this is
// never a failure. A zero or negative minimum disables the check.
func (r *ExtractionResult) CheckMinRows(minRows int) {
	if minRows > 0 && r.RowCount < minRows {
		r.AddWarning("Extracted %d rows, below expected minimum of %d", r.RowCount, minRows)
	}
}

// Record appends a row error under the tolerance policy. It returns a
// *TransformationError when the policy requires the transform to abort: either
// ContinueOnError is unset, or the accumulated error count exceeds MaxErrors.
func (t Tolerance) Record(result *TransformationResult, rowErr RowError) error {
	result.Errors = append(result.Errors, rowErr)
	result.SkippedCount++

	if !t.ContinueOnError {
		return &TransformationError{RowErrors: result.Errors, Budget: 0}
	}

	if t.MaxErrors > 0 && len(result.Errors) > t.MaxErrors {
		return &TransformationError{RowErrors: result.Errors, Budget: t.MaxErrors}
	}

	return nil
}

// Present reports whether a source record carries usable content.
func Present(record SourceRecord) bool {
	return record != nil
}
