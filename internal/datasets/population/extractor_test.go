package population

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phlyk/bewhere-mvp-sub002/internal/fetch"
)

type localFetcher struct{}

func (localFetcher) Fetch(_ context.Context, source string) (*fetch.Result, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, err
	}

	return &fetch.Result{Path: source, Size: info.Size()}, nil
}

func (localFetcher) Validate(source string) bool {
	_, err := os.Stat(source)

	return err == nil
}

func TestExtractReadsSemicolonTable(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	payload := "DEP;ANNEE;POPULATION\n01;2021;652432\n2A;2021;158507\n"
	path := filepath.Join(t.TempDir(), "population.csv")
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))

	extractor := NewExtractor(localFetcher{}, ExtractorConfig{Source: path})
	require.True(t, extractor.Validate())

	result, err := extractor.Extract(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.RowCount)
	require.Len(t, result.Records, 2)

	first, ok := result.Records[0].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "01", first["dep"], "headers are lowercased for the transformer")
	assert.Equal(t, "652432", first["population"])
}

func TestExtractMinRowsAdvisory(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	path := filepath.Join(t.TempDir(), "population.csv")
	require.NoError(t, os.WriteFile(path, []byte("dep,annee,population\n01,2021,652432\n"), 0o600))

	extractor := NewExtractor(localFetcher{}, ExtractorConfig{Source: path, MinRows: 90})

	result, err := extractor.Extract(context.Background())
	require.NoError(t, err, "a low row count is advisory, not fatal")

	assert.Equal(t, 1, result.RowCount)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "below expected minimum")
}
