package boundaries

import (
	"context"

	"github.com/phlyk/bewhere-mvp-sub002/internal/datasets"
	"github.com/phlyk/bewhere-mvp-sub002/internal/etl"
	"github.com/phlyk/bewhere-mvp-sub002/internal/geometry"
)

var _ etl.Transformer = (*Transformer)(nil)

// Transformer maps department features into load records: natural key
// (code, level), display name, and the geometry encoded to wire text with the
// original GeoJSON retained for audit.
type Transformer struct {
	tolerance etl.Tolerance
}

// NewTransformer creates a boundary transformer with the given tolerance policy.
func NewTransformer(tolerance etl.Tolerance) *Transformer {
	return &Transformer{tolerance: tolerance}
}

// Validate reports whether the transformer is configured to run.
func (t *Transformer) Validate() bool {
	return true
}

// Transform processes features independently and in input order. Features
// failing validation are recorded per row and skipped or aborted under the
// tolerance policy.
func (t *Transformer) Transform(_ context.Context, records []etl.SourceRecord) (*etl.TransformationResult, error) {
	result := &etl.TransformationResult{}

	for i, record := range records {
		f, ok := record.(feature)
		if !ok {
			if err := t.tolerance.Record(result, etl.RowError{
				Row:     i,
				Field:   "feature",
				Message: "record is not a GeoJSON feature",
				Value:   record,
			}); err != nil {
				return result, err
			}

			continue
		}

		code := datasets.NormalizeDepartmentCode(featureCode(f))
		if code == "" {
			if err := t.tolerance.Record(result, etl.RowError{
				Row:     i,
				Field:   "code",
				Message: "feature has no department code",
				Value:   f.Properties,
			}); err != nil {
				return result, err
			}

			continue
		}

		name, _ := f.Properties["nom"].(string)
		if name == "" {
			name, _ = f.Properties["name"].(string)
		}

		shape, err := geometry.Decode(anyGeometry(f))
		if err != nil {
			if recErr := t.tolerance.Record(result, etl.RowError{
				Row:     i,
				Field:   "geometry",
				Message: err.Error(),
				Value:   f.Geometry,
			}); recErr != nil {
				return result, recErr
			}

			continue
		}

		wkt, err := geometry.Encode(shape)
		if err != nil {
			if recErr := t.tolerance.Record(result, etl.RowError{
				Row:     i,
				Field:   "geometry",
				Message: err.Error(),
				Value:   f.Geometry,
			}); recErr != nil {
				return result, recErr
			}

			continue
		}

		result.Records = append(result.Records, etl.LoadRecord{
			Key: map[string]any{
				"code":  code,
				"level": Level,
			},
			Fields: map[string]any{
				"name": name,
			},
			GeometryWKT: wkt,
			Geometry:    f.Geometry,
		})
		result.TransformedCount++
	}

	return result, nil
}

// anyGeometry widens the decoded geometry map so the codec sees the same
// value shape it gets from raw json.Unmarshal output.
func anyGeometry(f feature) any {
	if f.Geometry == nil {
		return nil
	}

	return map[string]any(f.Geometry)
}
