package etl

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCounter struct {
	counts map[string]int
}

func (f *fakeCounter) CountRows(_ context.Context, dataset string) (int, error) {
	return f.counts[dataset], nil
}

type capturingNotifier struct {
	published []*RunResult
}

func (n *capturingNotifier) PublishRunResult(_ context.Context, run *RunResult) error {
	n.published = append(n.published, run)

	return nil
}

func registerFake(t *testing.T, registry *Registry, name string, extractor *fakeExtractor, loader *fakeLoader, store RunStore) {
	t.Helper()

	registry.Register(name, func() (*Pipeline, error) {
		return NewPipeline(name,
			extractor,
			&fakeTransformer{tolerance: Tolerance{ContinueOnError: true, MaxErrors: 100}, valid: true},
			loader,
			store,
		)
	})
}

func TestRunAllSequencesDatasets(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	registry := NewRegistry()
	store := &memRunStore{}

	for _, name := range DefaultOrder() {
		registerFake(t, registry, name, &fakeExtractor{records: records(96), valid: true}, &fakeLoader{valid: true}, store)
	}

	counter := &fakeCounter{counts: map[string]int{
		DatasetBoundaries: 96,
		DatasetPopulation: 96,
	}}

	notifier := &capturingNotifier{}
	orch := NewOrchestrator(registry, store, counter, WithNotifier(notifier))

	results, err := orch.RunAll(context.Background(), Options{})
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, DatasetBoundaries, results[0].Dataset)
	assert.Equal(t, DatasetPopulation, results[1].Dataset)
	assert.Equal(t, DatasetCrime, results[2].Dataset)
	assert.Len(t, notifier.published, 3)
}

func TestRunAllStopsAfterFailure(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	registry := NewRegistry()
	store := &memRunStore{}
	crimeLoader := &fakeLoader{valid: true}

	registerFake(t, registry, DatasetBoundaries, &fakeExtractor{valid: false}, &fakeLoader{valid: true}, store)
	registerFake(t, registry, DatasetPopulation, &fakeExtractor{records: records(96), valid: true}, &fakeLoader{valid: true}, store)
	registerFake(t, registry, DatasetCrime, &fakeExtractor{records: records(10), valid: true}, crimeLoader, store)

	counter := &fakeCounter{counts: map[string]int{
		DatasetBoundaries: 96,
		DatasetPopulation: 96,
	}}

	orch := NewOrchestrator(registry, store, counter)

	results, err := orch.RunAll(context.Background(), Options{})
	require.NoError(t, err)

	require.Len(t, results, 1, "sequence stops at the first failed dataset")
	assert.Equal(t, StatusFailed, results[0].Status)
	assert.Empty(t, crimeLoader.loaded)
}

func TestRunAllPrerequisiteGate(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	registry := NewRegistry()
	store := &memRunStore{}
	populationExtractor := &fakeExtractor{records: records(96), valid: true}

	// Boundaries loads nothing, so population's prerequisite stays unmet.
	registerFake(t, registry, DatasetBoundaries, &fakeExtractor{valid: true}, &fakeLoader{valid: true}, store)
	registerFake(t, registry, DatasetPopulation, populationExtractor, &fakeLoader{valid: true}, store)
	registerFake(t, registry, DatasetCrime, &fakeExtractor{records: records(10), valid: true}, &fakeLoader{valid: true}, store)

	counter := &fakeCounter{counts: map[string]int{DatasetBoundaries: 12}}

	orch := NewOrchestrator(registry, store, counter)

	ok, err := orch.CheckPrerequisites(context.Background(), DatasetPopulation)
	require.NoError(t, err)
	assert.False(t, ok)

	results, err := orch.RunAll(context.Background(), Options{})
	require.Error(t, err)

	var prereqErr *PrerequisiteError

	require.ErrorAs(t, err, &prereqErr)
	assert.Equal(t, DatasetPopulation, prereqErr.Dataset)
	assert.Equal(t, DatasetBoundaries, prereqErr.Dependency)
	assert.Len(t, results, 1, "only boundaries ran before the gate")
}

func TestRunDatasetUnknownName(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	orch := NewOrchestrator(NewRegistry(), &memRunStore{}, &fakeCounter{counts: map[string]int{}})

	_, err := orch.RunDataset(context.Background(), "weather", Options{})
	require.Error(t, err)

	var unknownErr *UnknownDatasetError

	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "weather", unknownErr.Dataset)
}

func TestPlaceholderPipelineCompletesWithWarnings(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	registry := NewRegistry()
	registry.RegisterPlaceholder("weather", nil)

	pipeline, err := registry.Resolve("weather")
	require.NoError(t, err)

	result, err := pipeline.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, StatusCompletedWithWarnings, result.Status)
	assert.Zero(t, result.Stats.RowsLoaded)
	assert.NotEmpty(t, result.Warnings)
}

func TestShowStatus(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := &memRunStore{}

	boundaries := NewRunResult(DatasetBoundaries)
	boundaries.Stats.RowsLoaded = 96
	boundaries.Finalize(StatusCompleted)
	require.NoError(t, store.FinalizeRun(context.Background(), boundaries))

	crime := NewRunResult(DatasetCrime)
	crime.AddError("boom")
	crime.Finalize(StatusFailed)
	require.NoError(t, store.FinalizeRun(context.Background(), crime))

	orch := NewOrchestrator(NewRegistry(), store, &fakeCounter{counts: map[string]int{}})

	var buf bytes.Buffer

	require.NoError(t, orch.ShowStatus(context.Background(), &buf, StatusOptions{}))

	out := buf.String()
	assert.Contains(t, out, "✓")
	assert.Contains(t, out, "✗")
	assert.Contains(t, out, "loaded=96")

	buf.Reset()
	require.NoError(t, orch.ShowStatus(context.Background(), &buf, StatusOptions{Dataset: DatasetCrime}))
	assert.NotContains(t, buf.String(), "boundaries")

	buf.Reset()
	require.NoError(t, orch.ShowStatus(context.Background(), &buf, StatusOptions{Dataset: "nothing"}))
	assert.True(t, strings.HasPrefix(buf.String(), "No runs recorded."))
}
