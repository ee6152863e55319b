package geom

import (
	"fmt"
	"math"
)

// ValidationCode identifies why a geometry was rejected.
type ValidationCode string

const (
	// CodeLineIsClosed indicates the line starts and ends at the same point.
	CodeLineIsClosed ValidationCode = "LINE_IS_CLOSED"

	// CodeLineIsNotSimple indicates the line intersects itself.
	CodeLineIsNotSimple ValidationCode = "LINE_IS_NOT_SIMPLE"

	// CodeLineEndsCloserThanTolerance indicates the two endpoints are closer
	// than the configured tolerance.
	CodeLineEndsCloserThanTolerance ValidationCode = "LINE_ENDS_CLOSER_THAN_TOLERANCE"

	// CodeLineEndsCloserToEdgeThanTolerance indicates an endpoint lies closer
	// than the tolerance to a non-adjacent edge of the same line.
	CodeLineEndsCloserToEdgeThanTolerance ValidationCode = "LINE_ENDS_CLOSER_TO_EDGE_THAN_TOLERANCE"

	// CodeLineHasTooFewPoints indicates the line has fewer than two vertices.
	CodeLineHasTooFewPoints ValidationCode = "LINE_HAS_TOO_FEW_POINTS"

	// CodePointNotFinite indicates a NaN or infinite ordinate.
	CodePointNotFinite ValidationCode = "POINT_NOT_FINITE"
)

// ValidationError carries the rejection code for an invalid geometry.
type ValidationError struct {
	Code ValidationCode
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid geometry: %s", e.Code)
}

// ValidatePoint rejects points with non-finite ordinates.
func ValidatePoint(p Point) error {
	if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
		return &ValidationError{Code: CodePointNotFinite}
	}
	return nil
}

// ValidateLine checks a digitized line against the route network drawing
// rules, in order:
//
//  1. the line must not be closed (start == end)
//  2. the line must be simple (no self-intersection)
//  3. the endpoints must not be closer than tolerance to each other
//  4. each endpoint must not be closer than tolerance to a non-adjacent
//     edge of its own line
//
// A line whose endpoints are exactly tolerance apart is valid; anything
// strictly closer is not. Returns nil for a valid line, otherwise a
// *ValidationError carrying the first failing check's code.
func ValidateLine(l Line, tolerance float64) error {
	if len(l) < 2 {
		return &ValidationError{Code: CodeLineHasTooFewPoints}
	}
	for _, p := range l {
		if err := ValidatePoint(p); err != nil {
			return err
		}
	}

	start := l.StartPoint()
	end := l.EndPoint()

	if start.Equals(end) {
		return &ValidationError{Code: CodeLineIsClosed}
	}
	if !lineIsSimple(l) {
		return &ValidationError{Code: CodeLineIsNotSimple}
	}
	if start.DistanceTo(end) < tolerance {
		return &ValidationError{Code: CodeLineEndsCloserThanTolerance}
	}
	if endTouchesNonAdjacentEdge(l, tolerance) {
		return &ValidationError{Code: CodeLineEndsCloserToEdgeThanTolerance}
	}
	return nil
}

// lineIsSimple reports whether no two non-adjacent segments of l intersect.
// Adjacent segments share a vertex by construction and are skipped.
func lineIsSimple(l Line) bool {
	n := len(l) - 1 // segment count
	for i := 0; i < n; i++ {
		for j := i + 2; j < n; j++ {
			// The closing pair (first, last) is non-adjacent like any other
			// pair; a line touching its own start is not simple.
			if SegmentsIntersect(l[i], l[i+1], l[j], l[j+1]) {
				return false
			}
		}
	}
	return true
}

// endTouchesNonAdjacentEdge checks each endpoint against every edge of the
// line except the edge the endpoint belongs to.
func endTouchesNonAdjacentEdge(l Line, tolerance float64) bool {
	n := len(l) - 1
	if n < 2 {
		return false
	}
	for i := 1; i < n; i++ { // edges not containing the start point
		if DistanceToSegment(l.StartPoint(), l[i], l[i+1]) < tolerance {
			return true
		}
	}
	for i := 0; i < n-1; i++ { // edges not containing the end point
		if DistanceToSegment(l.EndPoint(), l[i], l[i+1]) < tolerance {
			return true
		}
	}
	return false
}
