package etl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/phlyk/bewhere-mvp-sub002/internal/config"
)

// Status is the lifecycle state of one pipeline run.
//
// The only transitions are running → completed, completed_with_warnings,
// failed, or cancelled; all four are terminal. StatusCancelled exists for
// out-of-band bookkeeping (a run marked cancelled externally), the pipeline
// itself never sets it.
const (
	StatusRunning               Status = "running"
	StatusCompleted             Status = "completed"
	StatusCompletedWithWarnings Status = "completed_with_warnings"
	StatusFailed                Status = "failed"
	StatusCancelled             Status = "cancelled"
)

// defaultRowTolerancePct is the allowed deviation between loaded and expected
// row counts before the post-run validation hook warns.
const defaultRowTolerancePct = 5.0

type (
	// Status is a pipeline run state. See the constants for allowed values.
	Status string

	// Stats holds the stage counters of one run.
	Stats struct {
		RowsExtracted   int `json:"rows_extracted"`
		RowsTransformed int `json:"rows_transformed"`
		RowsLoaded      int `json:"rows_loaded"`
		RowsSkipped     int `json:"rows_skipped"`
		ErrorCount      int `json:"error_count"`
		WarningCount    int `json:"warning_count"`
	}

	// RunResult is the structured outcome of one pipeline run. It is created
	// at pipeline start with StatusRunning, mutated at each stage boundary, and
	// finalized exactly once; it is never mutated after finalization.
	RunResult struct {
		ID          string
		Dataset     string
		Status      Status
		StartedAt   time.Time
		CompletedAt time.Time
		Duration    time.Duration
		Stats       Stats
		Errors      []string
		Warnings    []string

		finalized bool
	}

	// RunStore persists run results for auditing. The domain defines this
	// interface; the PostgreSQL implementation lives in internal/storage.
	RunStore interface {
		// CreateRun writes the initial running row for a freshly started run.
		CreateRun(ctx context.Context, run *RunResult) error

		// FinalizeRun updates the run row with its terminal state and counters.
		FinalizeRun(ctx context.Context, run *RunResult) error

		// ListRuns returns run history ordered by start time descending,
		// optionally filtered by dataset name (empty string matches all) and
		// bounded by limit (non-positive means no bound).
		ListRuns(ctx context.Context, dataset string, limit int) ([]*RunResult, error)
	}

	// RowCounter reports persisted row counts per dataset, used by the
	// orchestrator's prerequisite checks.
	RowCounter interface {
		CountRows(ctx context.Context, dataset string) (int, error)
	}

	// Options controls one pipeline run.
	Options struct {
		// DryRun skips the load stage entirely. Extract and transform behave
		// exactly as in a real run so the mode can validate data before
		// committing side effects; RowsLoaded is always reported as zero.
		DryRun bool

		// ExpectedRows enables the post-run validation hook: after a completed
		// run, RowsLoaded is compared against this count within TolerancePct
		// and discrepancies are logged as warnings, never failures. Zero
		// disables the hook.
		ExpectedRows int

		// TolerancePct is the allowed deviation for the expected-rows hook.
		// Zero means the 5% default.
		TolerancePct float64
	}

	// Pipeline composes one Extractor, one Transformer, and one Loader into a
	// single sequential run. Each pipeline instance owns its three stages for
	// the duration of one run and is not shared across runs.
	Pipeline struct {
		name        string
		extractor   Extractor
		transformer Transformer
		loader      Loader
		runStore    RunStore // optional; nil disables run auditing
		logger      *slog.Logger
	}
)

// NewRunResult creates a running result stamped with a fresh run ID.
func NewRunResult(dataset string) *RunResult {
	return &RunResult{
		ID:        uuid.NewString(),
		Dataset:   dataset,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}
}

// Finalize sets the terminal status and closes the run timings. Calling
// Finalize on an already finalized result is a no-op, so a result can never be
// mutated after its first finalization.
func (r *RunResult) Finalize(status Status) {
	if r.finalized {
		return
	}

	r.Status = status
	r.CompletedAt = time.Now().UTC()
	r.Duration = r.CompletedAt.Sub(r.StartedAt)
	r.finalized = true
}

// Finalized reports whether the result has reached a terminal state.
func (r *RunResult) Finalized() bool {
	return r.finalized
}

// AddWarning appends a warning and bumps the counter. No-op after finalization.
func (r *RunResult) AddWarning(message string) {
	if r.finalized {
		return
	}

	r.Warnings = append(r.Warnings, message)
	r.Stats.WarningCount = len(r.Warnings)
}

// AddError appends an error message and bumps the counter. No-op after finalization.
func (r *RunResult) AddError(message string) {
	if r.finalized {
		return
	}

	r.Errors = append(r.Errors, message)
	r.Stats.ErrorCount = len(r.Errors)
}

// NewPipeline builds a pipeline over the three injected stages. runStore may
// be nil, which disables run auditing (used by dry experimentation and tests).
func NewPipeline(name string, extractor Extractor, transformer Transformer, loader Loader, runStore RunStore) (*Pipeline, error) {
	if extractor == nil {
		return nil, ErrNilExtractor
	}

	if transformer == nil {
		return nil, ErrNilTransformer
	}

	if loader == nil {
		return nil, ErrNilLoader
	}

	return &Pipeline{
		name:        name,
		extractor:   extractor,
		transformer: transformer,
		loader:      loader,
		runStore:    runStore,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})).With(slog.String("pipeline", name)),
	}, nil
}

// Name returns the pipeline's dataset name.
func (p *Pipeline) Name() string {
	return p.name
}

// Run executes extract → transform → load strictly sequentially and returns
// the finalized run result. Stage failures finalize the result as failed with
// the underlying error recorded; Run itself only returns an error for run
// bookkeeping problems, so callers inspect the result status.
//
// There is no intra-pipeline parallelism: later stages depend on the complete
// output of earlier ones and on accurate aggregate counts.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*RunResult, error) {
	result := NewRunResult(p.name)

	if p.runStore != nil {
		if err := p.runStore.CreateRun(ctx, result); err != nil {
			p.logger.Warn("Failed to record run start", slog.String("error", err.Error()))
		}
	}

	p.logger.Info("Pipeline run started",
		slog.String("run_id", result.ID),
		slog.Bool("dry_run", opts.DryRun))

	if !p.extractor.Validate() || !p.transformer.Validate() || !p.loader.Validate() {
		return p.fail(ctx, result, ErrStageValidationFailed), nil
	}

	extraction, err := p.extractor.Extract(ctx)
	if err != nil {
		return p.fail(ctx, result, err), nil
	}

	result.Stats.RowsExtracted = extraction.RowCount

	for _, warning := range extraction.Warnings {
		result.AddWarning(warning)
	}

	transformation, err := p.transformer.Transform(ctx, extraction.Records)
	if err != nil {
		// Row errors inside the budget are carried on the result even when a
		// later overrun aborts the run, so operators see what accumulated.
		var tErr *TransformationError
		if errors.As(err, &tErr) {
			for _, rowErr := range tErr.RowErrors {
				result.AddError(rowErr.Message)
			}
		}

		return p.fail(ctx, result, err), nil
	}

	result.Stats.RowsTransformed = transformation.TransformedCount
	result.Stats.RowsSkipped = transformation.SkippedCount

	for _, rowErr := range transformation.Errors {
		result.AddError(rowErr.Message)
	}

	if opts.DryRun {
		p.logger.Info("Dry run: load stage skipped",
			slog.String("run_id", result.ID),
			slog.Int("rows_transformed", transformation.TransformedCount))
	} else {
		loadResult, err := p.loader.Load(ctx, transformation.Records)
		if err != nil {
			return p.fail(ctx, result, err), nil
		}

		result.Stats.RowsLoaded = loadResult.InsertedCount + loadResult.UpdatedCount
		result.Stats.RowsSkipped += loadResult.SkippedCount
	}

	p.checkExpectedRows(result, opts)

	if result.Stats.ErrorCount > 0 || result.Stats.WarningCount > 0 {
		result.Finalize(StatusCompletedWithWarnings)
	} else {
		result.Finalize(StatusCompleted)
	}

	p.finishRun(ctx, result)

	return result, nil
}

// checkExpectedRows is the post-run validation hook: it compares RowsLoaded
// against the expected count within a tolerance percentage and logs
// discrepancies as warnings. External data volumes are expected to fluctuate,
// so this never fails the run.
func (p *Pipeline) checkExpectedRows(result *RunResult, opts Options) {
	if opts.ExpectedRows <= 0 || opts.DryRun {
		return
	}

	tolerance := opts.TolerancePct
	if tolerance <= 0 {
		tolerance = defaultRowTolerancePct
	}

	deviation := math.Abs(float64(result.Stats.RowsLoaded-opts.ExpectedRows)) /
		float64(opts.ExpectedRows) * 100

	if deviation > tolerance {
		result.AddWarning(fmt.Sprintf(
			"Loaded row count deviates from expectation: loaded %d, expected %d (±%.1f%% allowed)",
			result.Stats.RowsLoaded, opts.ExpectedRows, tolerance))

		p.logger.Warn("Loaded row count outside tolerance",
			slog.Int("rows_loaded", result.Stats.RowsLoaded),
			slog.Int("expected", opts.ExpectedRows),
			slog.Float64("deviation_pct", deviation),
			slog.Float64("tolerance_pct", tolerance))
	}
}

func (p *Pipeline) fail(ctx context.Context, result *RunResult, err error) *RunResult {
	result.AddError(err.Error())
	result.Finalize(StatusFailed)

	p.logger.Error("Pipeline run failed",
		slog.String("run_id", result.ID),
		slog.String("error", err.Error()))

	p.finishRun(ctx, result)

	return result
}

func (p *Pipeline) finishRun(ctx context.Context, result *RunResult) {
	if p.runStore != nil {
		if err := p.runStore.FinalizeRun(ctx, result); err != nil {
			p.logger.Warn("Failed to record run completion", slog.String("error", err.Error()))
		}
	}

	p.logger.Info("Pipeline run finished",
		slog.String("run_id", result.ID),
		slog.String("status", string(result.Status)),
		slog.Int("rows_loaded", result.Stats.RowsLoaded),
		slog.Duration("duration", result.Duration))
}
