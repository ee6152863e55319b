package store

import (
	"context"
	"fmt"

	"github.com/openftth/gdb-integrator/internal/geom"
	"github.com/openftth/gdb-integrator/internal/model"
)

// NodesIntersectingPoint returns committed nodes within tolerance of p.
func (s *Store) NodesIntersectingPoint(ctx context.Context, p geom.Point) ([]*model.RouteNode, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE NOT marked_to_be_deleted
		  AND ST_DWithin(coord, %s, $2)
		ORDER BY mrid`, nodeColumns, liveNodeTable, s.geomFromJSON("$1")),
		geom.FormatPoint(p), s.tolerance)
	if err != nil {
		return nil, fmt.Errorf("nodes intersecting point: %w", err)
	}
	return scanNodes(rows)
}

// NodesIntersectingLine returns committed nodes within tolerance of any
// part of l.
func (s *Store) NodesIntersectingLine(ctx context.Context, l geom.Line) ([]*model.RouteNode, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE NOT marked_to_be_deleted
		  AND ST_DWithin(coord, %s, $2)
		ORDER BY mrid`, nodeColumns, liveNodeTable, s.geomFromJSON("$1")),
		geom.FormatLine(l), s.tolerance)
	if err != nil {
		return nil, fmt.Errorf("nodes intersecting line: %w", err)
	}
	return scanNodes(rows)
}

// SegmentsIntersectingPoint returns committed segments whose line passes
// within tolerance of p.
func (s *Store) SegmentsIntersectingPoint(ctx context.Context, p geom.Point) ([]*model.RouteSegment, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE NOT marked_to_be_deleted
		  AND ST_DWithin(coord, %s, $2)
		ORDER BY mrid`, segmentColumns, liveSegmentTable, s.geomFromJSON("$1")),
		geom.FormatPoint(p), s.tolerance)
	if err != nil {
		return nil, fmt.Errorf("segments intersecting point: %w", err)
	}
	return scanSegments(rows)
}

// SegmentsIntersectingLine returns committed segments intersecting l.
func (s *Store) SegmentsIntersectingLine(ctx context.Context, l geom.Line) ([]*model.RouteSegment, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE NOT marked_to_be_deleted
		  AND ST_DWithin(coord, %s, $2)
		ORDER BY mrid`, segmentColumns, liveSegmentTable, s.geomFromJSON("$1")),
		geom.FormatLine(l), s.tolerance)
	if err != nil {
		return nil, fmt.Errorf("segments intersecting line: %w", err)
	}
	return scanSegments(rows)
}

// NodesOnInterior returns committed nodes within tolerance of l but
// farther than tolerance from both of its endpoints.
func (s *Store) NodesOnInterior(ctx context.Context, l geom.Line) ([]*model.RouteNode, error) {
	line := s.geomFromJSON("$1")
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE NOT marked_to_be_deleted
		  AND ST_DWithin(coord, %s, $2)
		  AND NOT ST_DWithin(coord, ST_StartPoint(%s), $2)
		  AND NOT ST_DWithin(coord, ST_EndPoint(%s), $2)
		ORDER BY mrid`, nodeColumns, liveNodeTable, line, line, line),
		geom.FormatLine(l), s.tolerance)
	if err != nil {
		return nil, fmt.Errorf("nodes on line interior: %w", err)
	}
	return scanNodes(rows)
}

// SplitLine asks PostGIS to split l at the position nearest p. The point
// is snapped onto the line first so the split always bites.
func (s *Store) SplitLine(ctx context.Context, l geom.Line, p geom.Point) ([]geom.Line, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT ST_AsGeoJSON((ST_Dump(ST_Split(ST_Snap(line, pt, $3), pt))).geom)
		FROM (SELECT %s AS line, %s AS pt) g`,
		s.geomFromJSON("$1"), s.geomFromJSON("$2")),
		geom.FormatLine(l), geom.FormatPoint(p), s.tolerance)
	if err != nil {
		return nil, fmt.Errorf("split line: %w", err)
	}
	defer rows.Close()

	var out []geom.Line
	for rows.Next() {
		var lineJSON []byte
		if err := rows.Scan(&lineJSON); err != nil {
			return nil, fmt.Errorf("scan split result: %w", err)
		}
		line, err := geom.ParseLine(lineJSON)
		if err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, rows.Err()
}
