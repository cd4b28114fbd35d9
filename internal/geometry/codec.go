package geometry

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	opEncode = "encode"
	opDecode = "decode"

	positionParts = 2
)

// Encode converts a shape to its well-known-text wire form, e.g.
// "POINT (2.35 48.85)" or "POLYGON ((2 48, 3 48, 3 49, 2 48))". Coordinates are
// emitted in (longitude, latitude) order, exactly as held in the shape.
//
// Malformed shapes fail with a *GeometryError; Encode never emits partial text.
func Encode(shape *Shape) (string, error) {
	if err := shape.Validate(); err != nil {
		return "", &GeometryError{Op: opEncode, Value: shape, Err: err}
	}

	switch shape.Type {
	case TypePoint:
		return "POINT (" + formatPosition(shape.Point) + ")", nil
	case TypePolygon:
		return "POLYGON " + formatRings(shape.Polygon), nil
	case TypeMultiPolygon:
		groups := make([]string, 0, len(shape.MultiPolygon))
		for _, polygon := range shape.MultiPolygon {
			groups = append(groups, formatRings(polygon))
		}

		return "MULTIPOLYGON (" + strings.Join(groups, ", ") + ")", nil
	default:
		// Unreachable after Validate, kept for exhaustiveness.
		return "", &GeometryError{Op: opEncode, Value: shape, Err: ErrUnrecognizedType}
	}
}

// Decode normalizes any accepted shape representation into a *Shape.
//
// Accepted representations:
//   - *Shape or Shape (native, validated and copied)
//   - map[string]any holding a GeoJSON geometry object
//   - a WKT string ("POINT (...)", "POLYGON ((...))", ...)
//   - a JSON string containing a GeoJSON geometry object. One upstream provider
//     double-encodes geometries as JSON strings; this path keeps those loads
//     working without provider-specific branches elsewhere.
//
// All representations of the same shape decode to equal shapes. Anything else
// fails with a *GeometryError carrying the offending value; Decode never
// returns a partially populated shape.
func Decode(value any) (*Shape, error) {
	switch v := value.(type) {
	case *Shape:
		if err := v.Validate(); err != nil {
			return nil, &GeometryError{Op: opDecode, Value: value, Err: err}
		}

		shape := *v

		return &shape, nil
	case Shape:
		return Decode(&v)
	case map[string]any:
		return decodeGeoJSON(v)
	case []byte:
		return decodeString(string(v))
	case string:
		return decodeString(v)
	default:
		return nil, &GeometryError{Op: opDecode, Value: value, Err: ErrUnrecognizedType}
	}
}

// decodeString handles the two textual representations: a JSON-string-encoded
// GeoJSON object and a WKT string.
func decodeString(text string) (*Shape, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, &GeometryError{Op: opDecode, Value: text, Err: ErrMissingCoordinates}
	}

	if strings.HasPrefix(trimmed, "{") {
		var payload map[string]any
		if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
			return nil, &GeometryError{Op: opDecode, Value: text, Err: fmt.Errorf("invalid JSON geometry: %w", err)}
		}

		return decodeGeoJSON(payload)
	}

	return decodeWKT(trimmed)
}

// decodeGeoJSON converts a GeoJSON geometry object into a Shape, checking that
// the coordinates field has the nesting depth the type tag requires.
func decodeGeoJSON(payload map[string]any) (*Shape, error) {
	typeTag, _ := payload["type"].(string)

	coordinates, ok := payload["coordinates"]
	if !ok || coordinates == nil {
		return nil, &GeometryError{Op: opDecode, Value: payload, Err: ErrMissingCoordinates}
	}

	shape := &Shape{Type: ShapeType(typeTag)}

	var err error

	switch shape.Type {
	case TypePoint:
		shape.Point, err = toPosition(coordinates)
	case TypePolygon:
		shape.Polygon, err = toRings(coordinates)
	case TypeMultiPolygon:
		shape.MultiPolygon, err = toPolygons(coordinates)
	default:
		return nil, &GeometryError{Op: opDecode, Value: payload, Err: ErrUnrecognizedType}
	}

	if err != nil {
		return nil, &GeometryError{Op: opDecode, Value: payload, Err: err}
	}

	if err := shape.Validate(); err != nil {
		return nil, &GeometryError{Op: opDecode, Value: payload, Err: err}
	}

	return shape, nil
}

func toPosition(value any) (Position, error) {
	pair, ok := value.([]any)
	if !ok || len(pair) < positionParts {
		return Position{}, ErrMalformedCoordinates
	}

	lon, okLon := toFloat(pair[0])

	lat, okLat := toFloat(pair[1])
	if !okLon || !okLat {
		return Position{}, ErrMalformedCoordinates
	}

	return Position{lon, lat}, nil
}

func toRing(value any) ([]Position, error) {
	raw, ok := value.([]any)
	if !ok {
		return nil, ErrMalformedCoordinates
	}

	ring := make([]Position, 0, len(raw))

	for _, item := range raw {
		position, err := toPosition(item)
		if err != nil {
			return nil, err
		}

		ring = append(ring, position)
	}

	return ring, nil
}

func toRings(value any) ([][]Position, error) {
	raw, ok := value.([]any)
	if !ok {
		return nil, ErrMalformedCoordinates
	}

	rings := make([][]Position, 0, len(raw))

	for _, item := range raw {
		ring, err := toRing(item)
		if err != nil {
			return nil, err
		}

		rings = append(rings, ring)
	}

	return rings, nil
}

func toPolygons(value any) ([][][]Position, error) {
	raw, ok := value.([]any)
	if !ok {
		return nil, ErrMalformedCoordinates
	}

	polygons := make([][][]Position, 0, len(raw))

	for _, item := range raw {
		rings, err := toRings(item)
		if err != nil {
			return nil, err
		}

		polygons = append(polygons, rings)
	}

	return polygons, nil
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()

		return f, err == nil
	default:
		return 0, false
	}
}

// decodeWKT parses the wire text form back into a Shape.
func decodeWKT(text string) (*Shape, error) {
	open := strings.Index(text, "(")
	if open == -1 || !strings.HasSuffix(text, ")") {
		return nil, &GeometryError{Op: opDecode, Value: text, Err: ErrUnrecognizedType}
	}

	keyword := strings.ToUpper(strings.TrimSpace(text[:open]))
	body := text[open+1 : len(text)-1]

	shape := &Shape{}

	var err error

	switch keyword {
	case "POINT":
		shape.Type = TypePoint
		shape.Point, err = parseWKTPosition(body)
	case "POLYGON":
		shape.Type = TypePolygon
		shape.Polygon, err = parseWKTRings(body)
	case "MULTIPOLYGON":
		shape.Type = TypeMultiPolygon

		var groups []string

		groups, err = splitGroups(body)
		if err == nil {
			shape.MultiPolygon = make([][][]Position, 0, len(groups))

			for _, group := range groups {
				var rings [][]Position

				rings, err = parseWKTRings(group)
				if err != nil {
					break
				}

				shape.MultiPolygon = append(shape.MultiPolygon, rings)
			}
		}
	default:
		return nil, &GeometryError{Op: opDecode, Value: text, Err: ErrUnrecognizedType}
	}

	if err != nil {
		return nil, &GeometryError{Op: opDecode, Value: text, Err: err}
	}

	if err := shape.Validate(); err != nil {
		return nil, &GeometryError{Op: opDecode, Value: text, Err: err}
	}

	return shape, nil
}

func parseWKTPosition(text string) (Position, error) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) < positionParts {
		return Position{}, ErrMalformedCoordinates
	}

	lon, errLon := strconv.ParseFloat(fields[0], 64)

	lat, errLat := strconv.ParseFloat(fields[1], 64)
	if errLon != nil || errLat != nil {
		return Position{}, ErrMalformedCoordinates
	}

	return Position{lon, lat}, nil
}

func parseWKTRings(body string) ([][]Position, error) {
	groups, err := splitGroups(body)
	if err != nil {
		return nil, err
	}

	rings := make([][]Position, 0, len(groups))

	for _, group := range groups {
		parts := strings.Split(group, ",")
		ring := make([]Position, 0, len(parts))

		for _, part := range parts {
			position, err := parseWKTPosition(part)
			if err != nil {
				return nil, err
			}

			ring = append(ring, position)
		}

		rings = append(rings, ring)
	}

	return rings, nil
}

// splitGroups splits a parenthesized group list at depth zero, stripping one
// level of parentheses from each element: "(a), (b)" -> ["a", "b"].
func splitGroups(body string) ([]string, error) {
	var (
		groups []string
		depth  int
		start  int
	)

	for i, r := range body {
		switch r {
		case '(':
			if depth == 0 {
				start = i + 1
			}

			depth++
		case ')':
			depth--
			if depth < 0 {
				return nil, ErrMalformedCoordinates
			}

			if depth == 0 {
				groups = append(groups, body[start:i])
			}
		}
	}

	if depth != 0 || len(groups) == 0 {
		return nil, ErrMalformedCoordinates
	}

	return groups, nil
}

func formatPosition(p Position) string {
	return strconv.FormatFloat(p[0], 'f', -1, 64) + " " + strconv.FormatFloat(p[1], 'f', -1, 64)
}

func formatRing(ring []Position) string {
	parts := make([]string, 0, len(ring))
	for _, position := range ring {
		parts = append(parts, formatPosition(position))
	}

	return "(" + strings.Join(parts, ", ") + ")"
}

func formatRings(rings [][]Position) string {
	groups := make([]string, 0, len(rings))
	for _, ring := range rings {
		groups = append(groups, formatRing(ring))
	}

	return "(" + strings.Join(groups, ", ") + ")"
}
