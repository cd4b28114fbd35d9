package config

import (
	"errors"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultSourcesPath is the default location for the dataset source catalog.
// Uses hidden file format following common tool conventions (.eslintrc, .prettierrc, etc.).
const DefaultSourcesPath = ".bewhere.yaml"

// SourcesPathEnvVar is the environment variable name for a custom catalog path.
const SourcesPathEnvVar = "ETL_SOURCES_PATH"

type (
	// DatasetSource describes where one dataset's raw data lives and what row
	// volume is considered healthy for it.
	DatasetSource struct {
		// URL is the remote URL or local path of the raw dataset.
		URL string `yaml:"url"`
		// ExpectedRows is the row count a full load is expected to produce.
		// Used by the post-run validation hook; zero disables the check.
		//nolint:tagliatelle // snake_case is intentional for YAML config files
		ExpectedRows int `yaml:"expected_rows"`
		// MinRows is the minimum row count below which an extraction emits an
		// advisory warning and below which the dataset does not satisfy
		// prerequisite checks of its dependents. Zero disables the check.
		//nolint:tagliatelle // snake_case is intentional for YAML config files
		MinRows int `yaml:"min_rows"`
	}

	// SourceCatalog holds per-dataset source configuration loaded from .bewhere.yaml.
	SourceCatalog struct {
		Datasets map[string]DatasetSource `yaml:"datasets"`
	}
)

// defaultCatalog returns the built-in source catalog. The public data portals
// move rarely; the YAML file exists to override them without a rebuild.
func defaultCatalog() *SourceCatalog {
	return &SourceCatalog{
		Datasets: map[string]DatasetSource{
			"boundaries": {
				URL:          "https://raw.githubusercontent.com/gregoiredavid/france-geojson/master/departements-version-simplifiee.geojson",
				ExpectedRows: 96,
				MinRows:      90,
			},
			"population": {
				URL:          "https://www.insee.fr/fr/statistiques/fichier/estimation-population/estim-pop-dep-sexe-gca-1975-2024.csv",
				ExpectedRows: 101,
				MinRows:      90,
			},
			"crime": {
				URL:          "https://www.data.gouv.fr/fr/datasets/r/donnee-dep-data.gouv-2024-geographie2024-produit-le2025-01-26.csv",
				ExpectedRows: 0,
				MinRows:      1000,
			},
		},
	}
}

// LoadSourceCatalog loads the dataset source catalog from a YAML file at the
// given path, merged over the built-in defaults.
//
// Behavior:
//   - Returns the default catalog (not an error) if the file doesn't exist
//   - Returns the default catalog + logs a warning if the YAML is invalid
//   - Returns the merged catalog on success
//
// This graceful degradation ensures the pipeline can run without a catalog
// file present, as overriding sources is an optional feature.
func LoadSourceCatalog(path string) (*SourceCatalog, error) {
	catalog := defaultCatalog()

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("Source catalog not found, using built-in defaults",
				slog.String("path", path))

			return catalog, nil
		}

		slog.Warn("Failed to read source catalog, using built-in defaults",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return catalog, nil
	}

	if len(data) == 0 {
		return catalog, nil
	}

	var overrides SourceCatalog
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		slog.Warn("Failed to parse source catalog, using built-in defaults",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return catalog, nil
	}

	for name, src := range overrides.Datasets {
		catalog.Datasets[name] = src
	}

	return catalog, nil
}

// LoadSourceCatalogFromEnv loads the catalog from the path specified in the
// ETL_SOURCES_PATH environment variable. Falls back to ".bewhere.yaml" in the
// current directory if not set.
func LoadSourceCatalogFromEnv() (*SourceCatalog, error) {
	path := GetEnvStr(SourcesPathEnvVar, DefaultSourcesPath)

	return LoadSourceCatalog(path)
}

// Source returns the source entry for a dataset name and whether it exists.
func (c *SourceCatalog) Source(dataset string) (DatasetSource, bool) {
	src, ok := c.Datasets[dataset]

	return src, ok
}
