package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSourceCatalogDefaults(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	catalog, err := LoadSourceCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err, "a missing catalog file falls back to defaults")

	for _, dataset := range []string{"boundaries", "population", "crime"} {
		source, ok := catalog.Source(dataset)
		require.True(t, ok, "default catalog covers %s", dataset)
		assert.NotEmpty(t, source.URL)
	}

	boundaries, _ := catalog.Source("boundaries")
	assert.Equal(t, 96, boundaries.ExpectedRows)
	assert.Equal(t, 90, boundaries.MinRows)
}

func TestLoadSourceCatalogMergesOverrides(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	path := filepath.Join(t.TempDir(), ".bewhere.yaml")
	payload := `datasets:
  boundaries:
    url: file:///srv/fixtures/departements.geojson
    expected_rows: 101
    min_rows: 95
`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))

	catalog, err := LoadSourceCatalog(path)
	require.NoError(t, err)

	boundaries, ok := catalog.Source("boundaries")
	require.True(t, ok)
	assert.Equal(t, "file:///srv/fixtures/departements.geojson", boundaries.URL)
	assert.Equal(t, 101, boundaries.ExpectedRows)
	assert.Equal(t, 95, boundaries.MinRows)

	population, ok := catalog.Source("population")
	require.True(t, ok, "datasets absent from the override keep their defaults")
	assert.NotEmpty(t, population.URL)
}

func TestLoadSourceCatalogInvalidYAMLFallsBack(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	path := filepath.Join(t.TempDir(), ".bewhere.yaml")
	require.NoError(t, os.WriteFile(path, []byte("datasets: [not a map"), 0o600))

	catalog, err := LoadSourceCatalog(path)
	require.NoError(t, err, "bad YAML degrades to defaults instead of failing")

	_, ok := catalog.Source("boundaries")
	assert.True(t, ok)
}

func TestLoadSourceCatalogFromEnv(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	path := filepath.Join(t.TempDir(), "custom.yaml")
	payload := `datasets:
  crime:
    url: file:///srv/fixtures/crime.csv
`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))
	t.Setenv(SourcesPathEnvVar, path)

	catalog, err := LoadSourceCatalogFromEnv()
	require.NoError(t, err)

	crime, ok := catalog.Source("crime")
	require.True(t, ok)
	assert.Equal(t, "file:///srv/fixtures/crime.csv", crime.URL)
}
