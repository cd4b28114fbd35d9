package etl

import (
	"context"
	"sort"
)

// Dataset names known to the orchestrator. Plugins register pipelines under
// these names; the fixed dependency order in DefaultOrder uses them.
const (
	DatasetBoundaries = "boundaries"
	DatasetPopulation = "population"
	DatasetCrime      = "crime"
)

type (
	// PipelineFactory builds a fresh pipeline instance for one run. Pipelines
	// are constructed per dataset on demand and never shared across runs, so
	// no cross-run mutable state leaks between executions.
	PipelineFactory func() (*Pipeline, error)

	// Registry maps dataset names to pipeline factories.
	Registry struct {
		factories map[string]PipelineFactory
	}

	// Null-object stages backing placeholder pipelines for datasets that are
	// registered but not yet implemented. They satisfy the stage contracts and
	// keep the orchestrator free of name-based special cases.
	placeholderExtractor struct {
		dataset string
	}

	placeholderTransformer struct{}

	placeholderLoader struct{}
)

var (
	_ Extractor   = (*placeholderExtractor)(nil)
	_ Transformer = (*placeholderTransformer)(nil)
	_ Loader      = (*placeholderLoader)(nil)
)

// NewRegistry creates an empty pipeline registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]PipelineFactory)}
}

// Register binds a dataset name to a pipeline factory, replacing any previous
// binding (including a placeholder).
func (r *Registry) Register(name string, factory PipelineFactory) {
	r.factories[name] = factory
}

// RegisterPlaceholder binds a dataset name to a placeholder pipeline that
// extracts nothing and loads nothing, recording a warning that the dataset is
// not implemented. Runs against it complete with warnings rather than failing.
func (r *Registry) RegisterPlaceholder(name string, runStore RunStore) {
	r.Register(name, func() (*Pipeline, error) {
		return NewPipeline(name,
			&placeholderExtractor{dataset: name},
			&placeholderTransformer{},
			&placeholderLoader{},
			runStore,
		)
	})
}

// Resolve builds a fresh pipeline for the named dataset. Unknown names fail
// with an *UnknownDatasetError.
func (r *Registry) Resolve(name string) (*Pipeline, error) {
	factory, ok := r.factories[name]
	if !ok {
		return nil, &UnknownDatasetError{Dataset: name, Known: r.Names()}
	}

	return factory()
}

// Names returns the registered dataset names, sorted for stable reporting.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func (e *placeholderExtractor) Extract(_ context.Context) (*ExtractionResult, error) {
	result := NewExtractionResult("placeholder:" + e.dataset)
	result.AddWarning("Dataset %s has no pipeline implementation yet; nothing extracted", e.dataset)

	return result, nil
}

func (e *placeholderExtractor) Validate() bool { return true }

func (t *placeholderTransformer) Transform(_ context.Context, records []SourceRecord) (*TransformationResult, error) {
	return &TransformationResult{SkippedCount: len(records)}, nil
}

func (t *placeholderTransformer) Validate() bool { return true }

func (l *placeholderLoader) Load(_ context.Context, _ []LoadRecord) (*LoadResult, error) {
	return &LoadResult{}, nil
}

func (l *placeholderLoader) Validate() bool { return true }
