package etl

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/phlyk/bewhere-mvp-sub002/internal/config"
)

const (
	defaultStatusLimit = 20
	timePrecision      = 10 * time.Millisecond
)

type (
	// Prerequisite declares that a dataset may only run once its dependency
	// holds at least MinRows persisted rows.
	Prerequisite struct {
		Dependency string
		MinRows    int
	}

	// RunNotifier publishes finalized run results to downstream consumers.
	// Publishing is best-effort: the orchestrator logs failures and never
	// fails a run over them.
	RunNotifier interface {
		PublishRunResult(ctx context.Context, run *RunResult) error
	}

	// StatusOptions filters the ShowStatus report.
	StatusOptions struct {
		// Dataset filters to one dataset name; empty shows all.
		Dataset string
		// Limit bounds the number of runs shown; non-positive means 20.
		Limit int
	}

	// Orchestrator runs named pipelines in a fixed dependency order with
	// fail-fast semantics across datasets: loading statistics without their
	// geometry and population prerequisites is unsafe, so a failed run stops
	// the remaining sequence immediately.
	//
	// Pipelines run sequentially, never concurrently, both to respect the
	// dependency order and to avoid concurrent writers racing on the same
	// target tables.
	Orchestrator struct {
		registry *Registry
		order    []string
		prereqs  map[string]Prerequisite
		runStore RunStore
		counter  RowCounter
		notifier RunNotifier
		logger   *slog.Logger
	}

	// OrchestratorOption configures optional orchestrator behavior.
	OrchestratorOption func(*Orchestrator)
)

// DefaultOrder returns the fixed topological dataset order: boundaries before
// population (foreign-key target), population before crime (derived rate).
func DefaultOrder() []string {
	return []string{DatasetBoundaries, DatasetPopulation, DatasetCrime}
}

// DefaultPrerequisites returns the dependency gates matching DefaultOrder.
// The minimums reflect the 96 metropolitan departments with slack for
// overseas-inclusive loads.
func DefaultPrerequisites() map[string]Prerequisite {
	return map[string]Prerequisite{
		DatasetPopulation: {Dependency: DatasetBoundaries, MinRows: 90},
		DatasetCrime:      {Dependency: DatasetPopulation, MinRows: 90},
	}
}

// WithNotifier attaches a run-result publisher.
func WithNotifier(notifier RunNotifier) OrchestratorOption {
	return func(o *Orchestrator) {
		o.notifier = notifier
	}
}

// WithOrder overrides the dataset execution order.
func WithOrder(order []string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.order = order
	}
}

// WithPrerequisites overrides the dependency gates.
func WithPrerequisites(prereqs map[string]Prerequisite) OrchestratorOption {
	return func(o *Orchestrator) {
		o.prereqs = prereqs
	}
}

// NewOrchestrator creates an orchestrator over the given registry. runStore
// backs the status report and counter backs the prerequisite checks.
func NewOrchestrator(registry *Registry, runStore RunStore, counter RowCounter, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		registry: registry,
		order:    DefaultOrder(),
		prereqs:  DefaultPrerequisites(),
		runStore: runStore,
		counter:  counter,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})).With(slog.String("component", "orchestrator")),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// RunAll executes each dataset's pipeline in dependency order. On a failed
// result or an unsatisfied prerequisite the remaining sequence stops
// immediately; the results obtained so far are returned alongside the error.
func (o *Orchestrator) RunAll(ctx context.Context, opts Options) ([]*RunResult, error) {
	results := make([]*RunResult, 0, len(o.order))

	for _, dataset := range o.order {
		ok, err := o.CheckPrerequisites(ctx, dataset)
		if err != nil {
			return results, err
		}

		if !ok {
			prereq := o.prereqs[dataset]
			count, _ := o.counter.CountRows(ctx, prereq.Dependency)

			return results, &PrerequisiteError{
				Dataset:      dataset,
				Dependency:   prereq.Dependency,
				RowCount:     count,
				MinimumCount: prereq.MinRows,
			}
		}

		result, err := o.RunDataset(ctx, dataset, opts)
		if err != nil {
			return results, err
		}

		results = append(results, result)

		if result.Status == StatusFailed {
			o.logger.Error("Stopping remaining datasets after failure",
				slog.String("dataset", dataset))

			return results, nil
		}
	}

	return results, nil
}

// RunDataset resolves and runs a single named pipeline. Unknown dataset names
// fail with an *UnknownDatasetError.
func (o *Orchestrator) RunDataset(ctx context.Context, dataset string, opts Options) (*RunResult, error) {
	pipeline, err := o.registry.Resolve(dataset)
	if err != nil {
		return nil, err
	}

	result, err := pipeline.Run(ctx, opts)
	if err != nil {
		return nil, err
	}

	o.publish(ctx, result)

	return result, nil
}

// CheckPrerequisites reports whether a dataset's dependency holds enough
// persisted rows for the dataset to run safely. Datasets without a declared
// prerequisite always pass.
func (o *Orchestrator) CheckPrerequisites(ctx context.Context, dataset string) (bool, error) {
	prereq, ok := o.prereqs[dataset]
	if !ok {
		return true, nil
	}

	count, err := o.counter.CountRows(ctx, prereq.Dependency)
	if err != nil {
		return false, fmt.Errorf("failed to count rows of %s: %w", prereq.Dependency, err)
	}

	if count < prereq.MinRows {
		o.logger.Warn("Prerequisite dataset not sufficiently loaded",
			slog.String("dataset", dataset),
			slog.String("dependency", prereq.Dependency),
			slog.Int("rows", count),
			slog.Int("minimum", prereq.MinRows))

		return false, nil
	}

	return true, nil
}

// ShowStatus renders a compact human summary of persisted run history, newest
// first. It is a reporting view only and has no side effects.
func (o *Orchestrator) ShowStatus(ctx context.Context, w io.Writer, opts StatusOptions) error {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultStatusLimit
	}

	runs, err := o.runStore.ListRuns(ctx, opts.Dataset, limit)
	if err != nil {
		return fmt.Errorf("failed to read run history: %w", err)
	}

	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")

		return nil
	}

	for _, run := range runs {
		fmt.Fprintf(w, "%s %-12s %-25s loaded=%-8d %-10s errors=%d warnings=%d\n",
			statusIcon(run.Status),
			run.Dataset,
			run.StartedAt.Format("2006-01-02 15:04:05 MST"),
			run.Stats.RowsLoaded,
			run.Duration.Round(timePrecision),
			run.Stats.ErrorCount,
			run.Stats.WarningCount)
	}

	return nil
}

func (o *Orchestrator) publish(ctx context.Context, result *RunResult) {
	if o.notifier == nil {
		return
	}

	if err := o.notifier.PublishRunResult(ctx, result); err != nil {
		o.logger.Warn("Failed to publish run result",
			slog.String("dataset", result.Dataset),
			slog.String("error", err.Error()))
	}
}

func statusIcon(status Status) string {
	switch status {
	case StatusCompleted:
		return "✓"
	case StatusCompletedWithWarnings:
		return "⚠"
	case StatusFailed:
		return "✗"
	case StatusCancelled:
		return "⊘"
	case StatusRunning:
		return "…"
	default:
		return "?"
	}
}
