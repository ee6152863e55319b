package geom

import (
	"encoding/json"
	"fmt"
)

// The edit log and the spatial store both exchange geometry as GeoJSON
// geometry objects. Only Point and LineString ever occur in the route
// network; anything else is a contract violation and is rejected.

type geoJSON struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// ParsePoint decodes a GeoJSON Point geometry.
func ParsePoint(data []byte) (Point, error) {
	var g geoJSON
	if err := json.Unmarshal(data, &g); err != nil {
		return Point{}, fmt.Errorf("parse point geometry: %w", err)
	}
	if g.Type != "Point" {
		return Point{}, fmt.Errorf("parse point geometry: unexpected type %q", g.Type)
	}
	var coords []float64
	if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
		return Point{}, fmt.Errorf("parse point coordinates: %w", err)
	}
	if len(coords) < 2 {
		return Point{}, fmt.Errorf("parse point coordinates: got %d ordinates, want 2", len(coords))
	}
	return Point{X: coords[0], Y: coords[1]}, nil
}

// ParseLine decodes a GeoJSON LineString geometry.
func ParseLine(data []byte) (Line, error) {
	var g geoJSON
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse line geometry: %w", err)
	}
	if g.Type != "LineString" {
		return nil, fmt.Errorf("parse line geometry: unexpected type %q", g.Type)
	}
	var coords [][]float64
	if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
		return nil, fmt.Errorf("parse line coordinates: %w", err)
	}
	if len(coords) < 2 {
		return nil, fmt.Errorf("parse line coordinates: got %d vertices, want >= 2", len(coords))
	}
	line := make(Line, len(coords))
	for i, c := range coords {
		if len(c) < 2 {
			return nil, fmt.Errorf("parse line coordinates: vertex %d has %d ordinates, want 2", i, len(c))
		}
		line[i] = Point{X: c[0], Y: c[1]}
	}
	return line, nil
}

// FormatPoint encodes p as a GeoJSON Point geometry.
func FormatPoint(p Point) []byte {
	out, _ := json.Marshal(map[string]any{
		"type":        "Point",
		"coordinates": []float64{p.X, p.Y},
	})
	return out
}

// FormatLine encodes l as a GeoJSON LineString geometry.
func FormatLine(l Line) []byte {
	coords := make([][]float64, len(l))
	for i, p := range l {
		coords[i] = []float64{p.X, p.Y}
	}
	out, _ := json.Marshal(map[string]any{
		"type":        "LineString",
		"coordinates": coords,
	})
	return out
}
