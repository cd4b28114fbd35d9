package population

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phlyk/bewhere-mvp-sub002/internal/etl"
)

func row(code, year, pop string) etl.SourceRecord {
	return map[string]string{
		"dep":        code,
		"annee":      year,
		"population": pop,
	}
}

func TestTransformProducesLoadRecords(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	transformer := NewTransformer(TransformerConfig{})

	result, err := transformer.Transform(context.Background(), []etl.SourceRecord{
		row("1", "2021", "652432"),
		row("2A", "21", "158507"),
	})
	require.NoError(t, err)

	require.Len(t, result.Records, 2)
	assert.Equal(t, 2, result.TransformedCount)

	first := result.Records[0]
	assert.Equal(t, "01", first.Key["department_code"], "single-digit codes are zero padded")
	assert.Equal(t, 2021, first.Key["year"])
	assert.Equal(t, 652432, first.Fields["population"])
	assert.Equal(t, DefaultSource, first.Fields["source"])

	assert.Equal(t, 2021, result.Records[1].Key["year"], "abbreviated vintages expand to full years")
}

func TestTransformAlternateHeaders(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	transformer := NewTransformer(TransformerConfig{Source: "insee-rp"})

	result, err := transformer.Transform(context.Background(), []etl.SourceRecord{
		map[string]string{"code_departement": "75", "year": "2020", "ptot": "2145906"},
	})
	require.NoError(t, err)

	require.Len(t, result.Records, 1)
	assert.Equal(t, "75", result.Records[0].Key["department_code"])
	assert.Equal(t, 2145906, result.Records[0].Fields["population"])
	assert.Equal(t, "insee-rp", result.Records[0].Fields["source"])
}

func TestTransformDefaultYear(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	transformer := NewTransformer(TransformerConfig{DefaultYear: 2023})

	result, err := transformer.Transform(context.Background(), []etl.SourceRecord{
		row("13", "", "2043110"),
	})
	require.NoError(t, err)

	require.Len(t, result.Records, 1)
	assert.Equal(t, 2023, result.Records[0].Key["year"])
}

func TestTransformRecordsRowErrors(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	transformer := NewTransformer(TransformerConfig{
		Tolerance: etl.Tolerance{ContinueOnError: true},
	})

	result, err := transformer.Transform(context.Background(), []etl.SourceRecord{
		row("01", "2021", "652432"),
		row("", "2021", "100"),
		row("03", "n/a", "331315"),
		row("04", "2021", "-5"),
		row("05", "2021", "141220"),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.TransformedCount)
	assert.Equal(t, 3, result.SkippedCount)
	require.Len(t, result.Errors, 3)
	assert.Equal(t, "department_code", result.Errors[0].Field)
	assert.Equal(t, "year", result.Errors[1].Field)
	assert.Equal(t, "population", result.Errors[2].Field)
}

func TestTransformAbortsOverBudget(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	transformer := NewTransformer(TransformerConfig{
		Tolerance: etl.Tolerance{ContinueOnError: true, MaxErrors: 1},
	})

	_, err := transformer.Transform(context.Background(), []etl.SourceRecord{
		row("", "2021", "1"),
		row("", "2021", "2"),
	})
	require.Error(t, err)

	var tErr *etl.TransformationError

	require.ErrorAs(t, err, &tErr)
	assert.Len(t, tErr.RowErrors, 2)
}
