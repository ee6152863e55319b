package reconcile

import (
	"context"

	"github.com/google/uuid"

	"github.com/openftth/gdb-integrator/internal/geom"
	"github.com/openftth/gdb-integrator/internal/model"
)

// SpatialQueries is the read side of the live route network. All queries
// consider committed entities only (marked-for-deletion rows are excluded)
// and return collections in the store's result order; the order is stable
// but carries no meaning beyond first-match tie-breaking.
type SpatialQueries interface {
	// NodesIntersectingPoint returns nodes whose coordinate lies within the
	// configured tolerance of p.
	NodesIntersectingPoint(ctx context.Context, p geom.Point) ([]*model.RouteNode, error)

	// NodesIntersectingLine returns nodes within tolerance of any part of l.
	NodesIntersectingLine(ctx context.Context, l geom.Line) ([]*model.RouteNode, error)

	// SegmentsIntersectingPoint returns segments whose line passes within
	// tolerance of p.
	SegmentsIntersectingPoint(ctx context.Context, p geom.Point) ([]*model.RouteSegment, error)

	// SegmentsIntersectingLine returns segments whose line intersects l.
	SegmentsIntersectingLine(ctx context.Context, l geom.Line) ([]*model.RouteSegment, error)

	// NodesOnInterior returns nodes that touch l strictly between its
	// endpoints.
	NodesOnInterior(ctx context.Context, l geom.Line) ([]*model.RouteNode, error)

	// SplitLine splits l at the position nearest p and returns the
	// resulting lines, two for any well-formed input.
	SplitLine(ctx context.Context, l geom.Line, p geom.Point) ([]geom.Line, error)
}

// ShadowStore is the integrator's private last-known-good mirror of each
// entity. Lookups return (nil, nil) when no row exists.
type ShadowStore interface {
	Node(ctx context.Context, mrid uuid.UUID) (*model.RouteNode, error)
	SaveNode(ctx context.Context, node *model.RouteNode) error
	DeleteNode(ctx context.Context, mrid uuid.UUID) error

	Segment(ctx context.Context, mrid uuid.UUID) (*model.RouteSegment, error)
	SaveSegment(ctx context.Context, segment *model.RouteSegment) error
	DeleteSegment(ctx context.Context, mrid uuid.UUID) error
}

// RouteStore is the write side of the live route network, used to apply
// the integrator's own structural changes: synthesized nodes, split
// replacements, rollbacks and rejected-edit deletions.
type RouteStore interface {
	InsertNode(ctx context.Context, node *model.RouteNode) error
	UpdateNode(ctx context.Context, node *model.RouteNode) error
	DeleteNode(ctx context.Context, mrid uuid.UUID) error

	InsertSegment(ctx context.Context, segment *model.RouteSegment) error
	UpdateSegment(ctx context.Context, segment *model.RouteSegment) error
	DeleteSegment(ctx context.Context, mrid uuid.UUID) error
}

// Validator is the external collaborator that may veto deletions for
// semantic reasons (equipment still attached, open work orders). Topology
// checks are not its job; the classifiers own those.
type Validator interface {
	CanDelete(ctx context.Context, kind model.EntityKind, mrid uuid.UUID) (bool, error)
}

// AllowAllValidator accepts every deletion. The default when no validation
// service is wired in.
type AllowAllValidator struct{}

// CanDelete always reports true.
func (AllowAllValidator) CanDelete(context.Context, model.EntityKind, uuid.UUID) (bool, error) {
	return true, nil
}
