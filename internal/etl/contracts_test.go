package etl

import (
	"errors"
	"testing"
)

func TestToleranceRecord(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name      string
		tolerance Tolerance
		rowErrors int
		wantAbort bool
	}{
		{
			name:      "fail fast aborts on first error",
			tolerance: Tolerance{ContinueOnError: false},
			rowErrors: 1,
			wantAbort: true,
		},
		{
			name:      "within budget continues",
			tolerance: Tolerance{ContinueOnError: true, MaxErrors: 5},
			rowErrors: 5,
			wantAbort: false,
		},
		{
			name:      "over budget aborts",
			tolerance: Tolerance{ContinueOnError: true, MaxErrors: 4},
			rowErrors: 5,
			wantAbort: true,
		},
		{
			name:      "zero budget with continue never aborts",
			tolerance: Tolerance{ContinueOnError: true, MaxErrors: 0},
			rowErrors: 50,
			wantAbort: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := &TransformationResult{}

			var abortErr error

			for i := 0; i < tt.rowErrors; i++ {
				abortErr = tt.tolerance.Record(result, RowError{Row: i, Field: "code", Message: "missing"})
				if abortErr != nil {
					break
				}
			}

			if tt.wantAbort && abortErr == nil {
				t.Fatal("Record() expected abort, got nil")
			}

			if !tt.wantAbort && abortErr != nil {
				t.Fatalf("Record() unexpected abort: %v", abortErr)
			}

			if tt.wantAbort {
				var tErr *TransformationError
				if !errors.As(abortErr, &tErr) {
					t.Fatalf("Record() error type = %T, want *TransformationError", abortErr)
				}
			}
		})
	}
}

func TestExtractionResultCapRows(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	result := NewExtractionResult("test://rows")
	result.SetRecords([]SourceRecord{"a", "b", "c", "d"})

	result.CapRows(0) // disabled

	if result.RowCount != 4 {
		t.Fatalf("RowCount = %d after disabled cap, want 4", result.RowCount)
	}

	result.CapRows(2)

	if result.RowCount != 2 || len(result.Records) != 2 {
		t.Errorf("CapRows(2): RowCount = %d, len = %d, want 2/2", result.RowCount, len(result.Records))
	}

	if len(result.Warnings) != 1 {
		t.Errorf("CapRows(2) warnings = %v, want one truncation warning", result.Warnings)
	}
}

func TestExtractionResultCheckMinRows(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	result := NewExtractionResult("test://rows")
	result.SetRecords([]SourceRecord{"a", "b"})

	result.CheckMinRows(2)

	if len(result.Warnings) != 0 {
		t.Errorf("CheckMinRows(2) warnings = %v, want none at threshold", result.Warnings)
	}

	result.CheckMinRows(10)

	if len(result.Warnings) != 1 {
		t.Errorf("CheckMinRows(10) warnings = %v, want advisory warning", result.Warnings)
	}
}

func TestRowCountInvariant(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	result := NewExtractionResult("test://invariant")
	result.SetRecords([]SourceRecord{map[string]any{"code": "75"}, map[string]any{"code": "13"}})

	if result.RowCount != len(result.Records) {
		t.Errorf("RowCount = %d, len(Records) = %d; invariant broken", result.RowCount, len(result.Records))
	}
}
