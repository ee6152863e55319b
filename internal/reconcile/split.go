package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/openftth/gdb-integrator/internal/events"
	"github.com/openftth/gdb-integrator/internal/geom"
	"github.com/openftth/gdb-integrator/internal/model"
)

// Minter is the production NodeMinter: synthesized nodes get a fresh mrid,
// the integrator's own application name (so their change-log rows are
// recognized as self-authored and skipped), and provenance copied from the
// segment whose digitization caused them.
type Minter struct {
	IDs     events.IDGenerator
	AppName string
}

// MintNode creates a synthetic node at the given point.
func (m Minter) MintNode(at geom.Point, template *model.RouteSegment) *model.RouteNode {
	node := &model.RouteNode{
		Mrid:            m.IDs.New(),
		Coord:           at,
		ApplicationName: m.AppName,
	}
	if template != nil {
		node.Username = template.Username
		node.WorkTaskMrid = template.WorkTaskMrid
	}
	return node
}

// SplitResult is everything one split produced: the two replacement
// segments now in the store and the retired original.
type SplitResult struct {
	Original     *model.RouteSegment
	Replacements []*model.RouteSegment
}

// SplitHandler replaces a stored segment with two segments meeting at a
// node that landed on it. The handler performs the store writes itself
// (insert replacements, delete original) and appends the resulting domain
// events to the edit's command, all under the caller's command id.
type SplitHandler struct {
	spatial   SpatialQueries
	routes    RouteStore
	shadow    ShadowStore
	ids       events.IDGenerator
	appName   string
	tolerance float64
	log       *slog.Logger
}

// NewSplitHandler wires a split handler.
func NewSplitHandler(spatial SpatialQueries, routes RouteStore, shadow ShadowStore, ids events.IDGenerator, appName string, tolerance float64, log *slog.Logger) *SplitHandler {
	if log == nil {
		log = slog.Default()
	}
	return &SplitHandler{
		spatial:   spatial,
		routes:    routes,
		shadow:    shadow,
		ids:       ids,
		appName:   appName,
		tolerance: tolerance,
		log:       log,
	}
}

// Split resolves the target segment, computes and stores the replacements,
// retires the original and appends SegmentAdded x2 + SegmentRemoved events
// to cmd.
func (h *SplitHandler) Split(ctx context.Context, cmd *events.Command, split events.ExistingSegmentSplit) (*SplitResult, error) {
	target, err := h.resolveTarget(ctx, split)
	if err != nil {
		return nil, err
	}

	lines, err := h.spatial.SplitLine(ctx, target.Coord, split.Node.Coord)
	if err != nil {
		return nil, fmt.Errorf("split line of segment %s: %w", target.Mrid, err)
	}
	if len(lines) != 2 {
		return nil, &Error{
			Code:    ErrCodeUnexpectedSplitResult,
			Message: fmt.Sprintf("split produced %d lines, want 2", len(lines)),
			Kind:    model.KindRouteSegment,
			Mrid:    target.Mrid,
		}
	}

	replacements := make([]*model.RouteSegment, 0, 2)
	for _, line := range lines {
		repl := &model.RouteSegment{
			Mrid:  h.ids.New(),
			Coord: line,
		}
		target.CopyAttributesTo(repl)
		// The replacement must read as integrator-authored so its own
		// change-log row is skipped on the next poll.
		repl.ApplicationName = h.appName
		replacements = append(replacements, repl)
	}

	for _, repl := range replacements {
		if err := h.routes.InsertSegment(ctx, repl); err != nil {
			return nil, fmt.Errorf("insert replacement segment %s: %w", repl.Mrid, err)
		}
		if err := h.shadow.SaveSegment(ctx, repl); err != nil {
			return nil, fmt.Errorf("save shadow for replacement %s: %w", repl.Mrid, err)
		}
	}

	if err := h.routes.DeleteSegment(ctx, target.Mrid); err != nil {
		return nil, fmt.Errorf("delete split segment %s: %w", target.Mrid, err)
	}
	if err := h.shadow.DeleteSegment(ctx, target.Mrid); err != nil {
		return nil, fmt.Errorf("retire shadow of split segment %s: %w", target.Mrid, err)
	}

	replacedIDs := make([]uuid.UUID, 0, 2)
	for _, repl := range replacements {
		from, to, err := h.resolveEndpoints(ctx, repl, split.Node)
		if err != nil {
			return nil, err
		}
		cmd.Append(&events.RouteSegmentAdded{
			SegmentID:  repl.Mrid,
			FromNodeID: from,
			ToNodeID:   to,
			Geometry:   repl.Coord,
		}, events.TypeRouteSegmentAdded)
		replacedIDs = append(replacedIDs, repl.Mrid)
	}
	cmd.Append(&events.RouteSegmentRemoved{
		SegmentID:          target.Mrid,
		ReplacedBySegments: replacedIDs,
	}, events.TypeRouteSegmentRemoved)

	h.log.Info("segment split",
		"segment", target.Mrid,
		"node", split.Node.Mrid,
		"replacements", replacedIDs,
	)

	return &SplitResult{Original: target, Replacements: replacements}, nil
}

// resolveTarget decides which stored segment the node is splitting.
//
// An explicit target from the classifier wins. When the split was
// triggered by a digitized segment, the node either lies on that segment's
// interior (the digitized segment is itself being split) or sits at its
// endpoint mid-way along some other segment (that other one is split).
// With no hints, the node was digitized directly onto geometry: among the
// segments at its point, prefer the first one crossed by three or more
// nodes, since a segment merely terminating at the point would have fewer.
func (h *SplitHandler) resolveTarget(ctx context.Context, split events.ExistingSegmentSplit) (*model.RouteSegment, error) {
	if split.Target != nil {
		return split.Target, nil
	}

	candidates, err := h.spatial.SegmentsIntersectingPoint(ctx, split.Node.Coord)
	if err != nil {
		return nil, fmt.Errorf("segments at split node %s: %w", split.Node.Mrid, err)
	}

	if trigger := split.TriggeredBy; trigger != nil {
		if geom.PointNearLineInterior(split.Node.Coord, trigger.Coord, h.tolerance) {
			for _, c := range candidates {
				if c.Mrid == trigger.Mrid {
					return c, nil
				}
			}
			// An earlier split in the same command already replaced the
			// trigger; the node now lies on one of the replacement halves.
			for _, c := range candidates {
				if geom.PointNearLineInterior(split.Node.Coord, c.Coord, h.tolerance) {
					return c, nil
				}
			}
			return nil, &Error{
				Code:    ErrCodeNoSplitTarget,
				Message: "no stored segment carries the split node on its interior",
				Kind:    model.KindRouteNode,
				Mrid:    split.Node.Mrid,
			}
		}
		for _, c := range candidates {
			if c.Mrid != trigger.Mrid {
				return c, nil
			}
		}
		return nil, &Error{
			Code:    ErrCodeNoSplitTarget,
			Message: "no stored segment other than the trigger intersects the node",
			Kind:    model.KindRouteNode,
			Mrid:    split.Node.Mrid,
		}
	}

	for _, c := range candidates {
		nodes, err := h.spatial.NodesIntersectingLine(ctx, c.Coord)
		if err != nil {
			return nil, fmt.Errorf("nodes along candidate segment %s: %w", c.Mrid, err)
		}
		if len(nodes) >= 3 {
			return c, nil
		}
	}
	if len(candidates) > 0 {
		return candidates[0], nil
	}
	return nil, &Error{
		Code:    ErrCodeNoSplitTarget,
		Message: "no segment intersects the split node",
		Kind:    model.KindRouteNode,
		Mrid:    split.Node.Mrid,
	}
}

// resolveEndpoints finds the node ids a replacement segment runs between.
// One end is always the split node; the far end resolves to whatever node
// sits there, or nil for a still-lonely end.
func (h *SplitHandler) resolveEndpoints(ctx context.Context, segment *model.RouteSegment, splitNode *model.RouteNode) (from, to uuid.UUID, err error) {
	from, err = h.nodeAt(ctx, segment.Coord.StartPoint(), splitNode)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	to, err = h.nodeAt(ctx, segment.Coord.EndPoint(), splitNode)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return from, to, nil
}

func (h *SplitHandler) nodeAt(ctx context.Context, p geom.Point, splitNode *model.RouteNode) (uuid.UUID, error) {
	if splitNode.Coord.DistanceTo(p) <= h.tolerance {
		return splitNode.Mrid, nil
	}
	nodes, err := h.spatial.NodesIntersectingPoint(ctx, p)
	if err != nil {
		return uuid.Nil, fmt.Errorf("nodes at replacement endpoint: %w", err)
	}
	if len(nodes) == 0 {
		return uuid.Nil, nil
	}
	return nodes[0].Mrid, nil
}
