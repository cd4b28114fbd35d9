package etl

import (
	"errors"
	"fmt"
)

var (
	// ErrNilExtractor is returned when a pipeline is built without an extractor.
	ErrNilExtractor = errors.New("pipeline extractor cannot be nil")

	// ErrNilTransformer is returned when a pipeline is built without a transformer.
	ErrNilTransformer = errors.New("pipeline transformer cannot be nil")

	// ErrNilLoader is returned when a pipeline is built without a loader.
	ErrNilLoader = errors.New("pipeline loader cannot be nil")

	// ErrStageValidationFailed is returned when a stage reports it is not
	// configured to run.
	ErrStageValidationFailed = errors.New("stage validation failed")
)

type (
	// ExtractionError reports a malformed source structure, e.g. a payload
	// whose top-level type is not what the extractor expects.
	ExtractionError struct {
		Source string
		Err    error
	}

	// TransformationError reports row-level validation failures beyond the
	// configured tolerance budget. The partial row errors are carried for
	// diagnostics but the accompanying TransformationResult is not
	// authoritative.
	TransformationError struct {
		RowErrors []RowError
		Budget    int
	}

	// LoadError reports a persistence failure inside a load transaction. The
	// whole in-flight batch was rolled back.
	LoadError struct {
		Table string
		Err   error
	}

	// UnknownDatasetError reports an unrecognized dataset name given to the
	// orchestrator.
	UnknownDatasetError struct {
		Dataset string
		Known   []string
	}

	// PrerequisiteError reports a dependency dataset that is not sufficiently
	// loaded for a dependent dataset to run safely.
	PrerequisiteError struct {
		Dataset      string
		Dependency   string
		RowCount     int
		MinimumCount int
	}
)

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction from %s failed: %v", e.Source, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

func (e *TransformationError) Error() string {
	if e.Budget == 0 {
		return fmt.Sprintf("transformation aborted on first row error: %s", e.lastError())
	}

	return fmt.Sprintf("transformation exceeded error budget of %d (%d row errors, last: %s)",
		e.Budget, len(e.RowErrors), e.lastError())
}

func (e *TransformationError) lastError() string {
	if len(e.RowErrors) == 0 {
		return "none"
	}

	last := e.RowErrors[len(e.RowErrors)-1]

	return fmt.Sprintf("row %d field %q: %s", last.Row, last.Field, last.Message)
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load into %s failed and was rolled back: %v", e.Table, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

func (e *UnknownDatasetError) Error() string {
	return fmt.Sprintf("unknown dataset %q (known: %v)", e.Dataset, e.Known)
}

func (e *PrerequisiteError) Error() string {
	return fmt.Sprintf("dataset %q requires %q with at least %d rows, found %d",
		e.Dataset, e.Dependency, e.MinimumCount, e.RowCount)
}
