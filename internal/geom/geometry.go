// Package geom provides the plain geometry values the integrator reasons
// about: 2D points and line strings in a projected, metre-based coordinate
// system. All functions are pure and deterministic; nothing in this package
// talks to the spatial store.
package geom

import "math"

// Point is a single coordinate in the network's projected CRS.
// Units are metres.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Equals reports exact coordinate equality.
func (p Point) Equals(other Point) bool {
	return p.X == other.X && p.Y == other.Y
}

// DistanceTo returns the Euclidean distance between two points in metres.
func (p Point) DistanceTo(other Point) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Line is an ordered sequence of points. A well-formed line has at least
// two points; the first and last are the logical endpoints regardless of
// how many intermediate vertices the operator digitized.
type Line []Point

// StartPoint returns the first vertex. Panics on an empty line; callers
// validate shape via ValidateLine before trusting a line.
func (l Line) StartPoint() Point {
	return l[0]
}

// EndPoint returns the last vertex.
func (l Line) EndPoint() Point {
	return l[len(l)-1]
}

// Length returns the total length of the line in metres.
func (l Line) Length() float64 {
	var total float64
	for i := 1; i < len(l); i++ {
		total += l[i-1].DistanceTo(l[i])
	}
	return total
}

// Equals reports exact vertex-by-vertex equality.
func (l Line) Equals(other Line) bool {
	if len(l) != len(other) {
		return false
	}
	for i := range l {
		if !l[i].Equals(other[i]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the line.
func (l Line) Clone() Line {
	out := make(Line, len(l))
	copy(out, l)
	return out
}

// DistanceToSegment returns the shortest distance from p to the segment
// between a and b.
func DistanceToSegment(p, a, b Point) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return p.DistanceTo(a)
	}
	// Project p onto the segment, clamped to [0,1].
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / lenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	closest := Point{X: a.X + t*dx, Y: a.Y + t*dy}
	return p.DistanceTo(closest)
}

// DistanceToLine returns the shortest distance from p to any segment of l.
func DistanceToLine(p Point, l Line) float64 {
	min := math.Inf(1)
	for i := 1; i < len(l); i++ {
		if d := DistanceToSegment(p, l[i-1], l[i]); d < min {
			min = d
		}
	}
	return min
}

// PointNearLine reports whether p lies within tolerance metres of l.
func PointNearLine(p Point, l Line, tolerance float64) bool {
	return DistanceToLine(p, l) <= tolerance
}

// PointNearLineInterior reports whether p lies within tolerance metres of l
// while being farther than tolerance from both endpoints. Used to detect
// nodes that touch a segment mid-way rather than attach at its ends.
func PointNearLineInterior(p Point, l Line, tolerance float64) bool {
	if p.DistanceTo(l.StartPoint()) <= tolerance || p.DistanceTo(l.EndPoint()) <= tolerance {
		return false
	}
	return PointNearLine(p, l, tolerance)
}

// orientation classifies the turn a->b->c: 0 collinear, 1 clockwise,
// 2 counter-clockwise.
func orientation(a, b, c Point) int {
	v := (b.Y-a.Y)*(c.X-b.X) - (b.X-a.X)*(c.Y-b.Y)
	switch {
	case v == 0:
		return 0
	case v > 0:
		return 1
	default:
		return 2
	}
}

// onSegment reports whether collinear point q lies on segment ab.
func onSegment(a, q, b Point) bool {
	return q.X <= math.Max(a.X, b.X) && q.X >= math.Min(a.X, b.X) &&
		q.Y <= math.Max(a.Y, b.Y) && q.Y >= math.Min(a.Y, b.Y)
}

// SegmentsIntersect reports whether segments p1p2 and p3p4 share any point.
func SegmentsIntersect(p1, p2, p3, p4 Point) bool {
	o1 := orientation(p1, p2, p3)
	o2 := orientation(p1, p2, p4)
	o3 := orientation(p3, p4, p1)
	o4 := orientation(p3, p4, p2)

	if o1 != o2 && o3 != o4 {
		return true
	}
	if o1 == 0 && onSegment(p1, p3, p2) {
		return true
	}
	if o2 == 0 && onSegment(p1, p4, p2) {
		return true
	}
	if o3 == 0 && onSegment(p3, p1, p4) {
		return true
	}
	if o4 == 0 && onSegment(p3, p2, p4) {
		return true
	}
	return false
}

// LinesIntersect reports whether any segment of a intersects any segment of b.
func LinesIntersect(a, b Line) bool {
	for i := 1; i < len(a); i++ {
		for j := 1; j < len(b); j++ {
			if SegmentsIntersect(a[i-1], a[i], b[j-1], b[j]) {
				return true
			}
		}
	}
	return false
}

// SplitAt splits l at the vertex or interior position nearest to p, returning
// the two resulting lines. The split point is snapped onto the line, so both
// results share one exact coordinate. Returns l unchanged as a single-element
// slice when p is farther than tolerance from the line.
//
// This mirrors what the spatial store's ST_Split does and exists so tests and
// in-memory fakes can split lines without a database.
func SplitAt(l Line, p Point, tolerance float64) []Line {
	bestSeg := -1
	bestDist := math.Inf(1)
	for i := 1; i < len(l); i++ {
		if d := DistanceToSegment(p, l[i-1], l[i]); d < bestDist {
			bestDist = d
			bestSeg = i
		}
	}
	if bestSeg < 0 || bestDist > tolerance {
		return []Line{l}
	}

	a := l[bestSeg-1]
	b := l[bestSeg]
	snapped := snapToSegment(p, a, b)

	first := append(Line{}, l[:bestSeg]...)
	if !first[len(first)-1].Equals(snapped) {
		first = append(first, snapped)
	}
	second := Line{snapped}
	if !snapped.Equals(b) {
		second = append(second, b)
	}
	second = append(second, l[bestSeg+1:]...)

	if len(first) < 2 || len(second) < 2 {
		// Split point coincides with an endpoint; nothing to split.
		return []Line{l}
	}
	return []Line{first, second}
}

func snapToSegment(p, a, b Point) Point {
	dx := b.X - a.X
	dy := b.Y - a.Y
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return a
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / lenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return Point{X: a.X + t*dx, Y: a.Y + t*dy}
}
