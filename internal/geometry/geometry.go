// Package geometry provides the shape model and the GeoJSON/WKT codec used to
// move geographic boundaries into the spatial store.
//
// Shapes are held in a single normalized in-memory form regardless of which
// representation they were decoded from (native Shape, WKT string, GeoJSON
// object, or a JSON-string-encoded GeoJSON object). Coordinate order is always
// (longitude, latitude) and is never reordered by the codec.
package geometry

import (
	"errors"
	"fmt"
)

// Supported shape kinds. Values match GeoJSON type tags.
const (
	TypePoint        ShapeType = "Point"
	TypePolygon      ShapeType = "Polygon"
	TypeMultiPolygon ShapeType = "MultiPolygon"
)

// Spatial reference system identifiers supported at the column level.
const (
	// SRIDWGS84 is the standard longitude/latitude reference frame.
	SRIDWGS84 = 4326
	// SRIDWebMercator is the planar Web Mercator reference frame.
	SRIDWebMercator = 3857
	// DefaultSRID is applied when no column-level override is configured.
	DefaultSRID = SRIDWGS84
)

// minRingPositions is the minimum length of a closed ring (triangle + closing position).
const minRingPositions = 4

var (
	// ErrNilShape is returned when a nil shape is passed to the codec.
	ErrNilShape = errors.New("shape cannot be nil")

	// ErrUnrecognizedType is returned when a shape carries an unknown type tag.
	ErrUnrecognizedType = errors.New("unrecognized shape type")

	// ErrMissingCoordinates is returned when a decoded payload has no coordinates field.
	ErrMissingCoordinates = errors.New("shape has no coordinates")

	// ErrMalformedCoordinates is returned when the coordinates field does not have
	// the nesting depth its type tag requires.
	ErrMalformedCoordinates = errors.New("malformed coordinates for shape type")

	// ErrOpenRing is returned when a polygon ring does not close on its first position.
	ErrOpenRing = errors.New("polygon ring is not closed")
)

type (
	// ShapeType identifies the kind of a Shape.
	ShapeType string

	// Position is a single (longitude, latitude) coordinate pair.
	Position [2]float64

	// Shape is the normalized in-memory geographic shape.
	//
	// Exactly one of Point, Polygon, or MultiPolygon is meaningful, selected by
	// Type. Polygon rings list the exterior ring first, holes after; every ring
	// is closed (first position repeated last). SRID is deliberately absent: the
	// reference frame is column-level configuration, not per-value state.
	Shape struct {
		Type         ShapeType
		Point        Position
		Polygon      [][]Position
		MultiPolygon [][][]Position
	}

	// ColumnConfig carries the spatial reference for one geometry column.
	ColumnConfig struct {
		SRID int
	}

	// GeometryError reports a malformed or unrecognized shape payload. It carries
	// the offending value so operators can see exactly what the upstream sent.
	GeometryError struct {
		Op    string // "encode" or "decode"
		Value any
		Err   error
	}
)

// NewColumnConfig returns a column config with the default SRID.
func NewColumnConfig() ColumnConfig {
	return ColumnConfig{SRID: DefaultSRID}
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("geometry %s: %v (value: %.80v)", e.Op, e.Err, e.Value)
}

func (e *GeometryError) Unwrap() error {
	return e.Err
}

// Lon returns the longitude component.
func (p Position) Lon() float64 { return p[0] }

// Lat returns the latitude component.
func (p Position) Lat() float64 { return p[1] }

// Validate checks the shape for well-formedness: a recognized type tag,
// coordinates present, and closed rings for polygonal kinds. It never mutates
// the shape.
func (s *Shape) Validate() error {
	if s == nil {
		return ErrNilShape
	}

	switch s.Type {
	case TypePoint:
		return nil
	case TypePolygon:
		return validateRings(s.Polygon)
	case TypeMultiPolygon:
		if len(s.MultiPolygon) == 0 {
			return ErrMissingCoordinates
		}

		for _, polygon := range s.MultiPolygon {
			if err := validateRings(polygon); err != nil {
				return err
			}
		}

		return nil
	default:
		return ErrUnrecognizedType
	}
}

// Equal reports whether two shapes are the same kind with identical coordinates.
func (s *Shape) Equal(other *Shape) bool {
	if s == nil || other == nil {
		return s == other
	}

	if s.Type != other.Type {
		return false
	}

	switch s.Type {
	case TypePoint:
		return s.Point == other.Point
	case TypePolygon:
		return ringsEqual(s.Polygon, other.Polygon)
	case TypeMultiPolygon:
		if len(s.MultiPolygon) != len(other.MultiPolygon) {
			return false
		}

		for i := range s.MultiPolygon {
			if !ringsEqual(s.MultiPolygon[i], other.MultiPolygon[i]) {
				return false
			}
		}

		return true
	default:
		return false
	}
}

func validateRings(rings [][]Position) error {
	if len(rings) == 0 {
		return ErrMissingCoordinates
	}

	for _, ring := range rings {
		if len(ring) < minRingPositions {
			return ErrMalformedCoordinates
		}

		if ring[0] != ring[len(ring)-1] {
			return ErrOpenRing
		}
	}

	return nil
}

func ringsEqual(a, b [][]Position) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}

		for j := range a[i] {
			if a[i][j] != b[i][j] {
				return false
			}
		}
	}

	return true
}
