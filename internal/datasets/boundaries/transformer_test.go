package boundaries

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phlyk/bewhere-mvp-sub002/internal/etl"
)

func polygonFeature(code, name string) feature {
	return feature{
		Type: "Feature",
		Properties: map[string]any{
			"code": code,
			"nom":  name,
		},
		Geometry: map[string]any{
			"type": "Polygon",
			"coordinates": []any{
				[]any{
					[]any{2.0, 48.0}, []any{3.0, 48.0}, []any{3.0, 49.0}, []any{2.0, 48.0},
				},
			},
		},
	}
}

func TestTransformProducesLoadRecords(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	transformer := NewTransformer(etl.Tolerance{})

	result, err := transformer.Transform(context.Background(), []etl.SourceRecord{
		polygonFeature("1", "Ain"),
		polygonFeature("2a", "Corse-du-Sud"),
	})
	require.NoError(t, err)

	require.Len(t, result.Records, 2)
	assert.Equal(t, 2, result.TransformedCount)
	assert.Zero(t, result.SkippedCount)

	first := result.Records[0]
	assert.Equal(t, "01", first.Key["code"], "single-digit codes are zero padded")
	assert.Equal(t, Level, first.Key["level"])
	assert.Equal(t, "Ain", first.Fields["name"])
	assert.Equal(t, "POLYGON ((2 48, 3 48, 3 49, 2 48))", first.GeometryWKT)
	assert.NotNil(t, first.Geometry, "source GeoJSON is retained for audit")

	assert.Equal(t, "2A", result.Records[1].Key["code"], "Corsican codes are uppercased")
}

func TestTransformRecordsRowErrors(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	broken := polygonFeature("04", "Alpes-de-Haute-Provence")
	broken.Geometry = map[string]any{"type": "Polygon"}

	noCode := polygonFeature("", "Anonyme")

	transformer := NewTransformer(etl.Tolerance{ContinueOnError: true})

	result, err := transformer.Transform(context.Background(), []etl.SourceRecord{
		polygonFeature("01", "Ain"),
		broken,
		noCode,
		polygonFeature("05", "Hautes-Alpes"),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.TransformedCount)
	assert.Equal(t, 2, result.SkippedCount)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, 1, result.Errors[0].Row)
	assert.Equal(t, "geometry", result.Errors[0].Field)
	assert.Equal(t, 2, result.Errors[1].Row)
	assert.Equal(t, "code", result.Errors[1].Field)

	// Input order survives the skips.
	assert.Equal(t, "01", result.Records[0].Key["code"])
	assert.Equal(t, "05", result.Records[1].Key["code"])
}

func TestTransformFailsFastWithoutTolerance(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	transformer := NewTransformer(etl.Tolerance{})

	result, err := transformer.Transform(context.Background(), []etl.SourceRecord{
		polygonFeature("01", "Ain"),
		etl.SourceRecord("not a feature"),
		polygonFeature("03", "Allier"),
	})
	require.Error(t, err)

	assert.Equal(t, 1, result.TransformedCount, "rows before the failure are kept")
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "feature", result.Errors[0].Field)
}
