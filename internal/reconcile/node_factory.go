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

// NodeFactory classifies route node edits. Given a digitized or updated
// node it decides which topology transformation the edit represents and
// returns the ordered notifications the dispatcher must apply.
type NodeFactory struct {
	spatial   SpatialQueries
	shadow    ShadowStore
	validator Validator
	appName   string
	tolerance float64
	log       *slog.Logger
}

// NewNodeFactory wires a node classifier. appName identifies this process;
// edits authored under that name are the integrator's own and are skipped.
func NewNodeFactory(spatial SpatialQueries, shadow ShadowStore, validator Validator, appName string, tolerance float64, log *slog.Logger) *NodeFactory {
	if log == nil {
		log = slog.Default()
	}
	if validator == nil {
		validator = AllowAllValidator{}
	}
	return &NodeFactory{
		spatial:   spatial,
		shadow:    shadow,
		validator: validator,
		appName:   appName,
		tolerance: tolerance,
		log:       log,
	}
}

// CreateDigitized classifies a freshly drawn node.
//
// A lonely node is simply added. A node on top of exactly one segment adds
// the node and splits that segment around it, unless it sits at the
// segment's end, where it plainly attaches. A node coinciding with
// another node, or landing where two or more segments cross, is rejected
// and deleted from the live store.
func (f *NodeFactory) CreateDigitized(ctx context.Context, node *model.RouteNode) ([]events.Notification, error) {
	if node.ApplicationName == f.appName {
		return []events.Notification{events.DoNothing{Reason: "self-authored edit"}}, nil
	}

	existing, err := f.shadow.Node(ctx, node.Mrid)
	if err != nil {
		return nil, fmt.Errorf("load shadow node %s: %w", node.Mrid, err)
	}
	if node.SameState(existing) {
		return []events.Notification{events.DoNothing{Reason: "duplicate delivery"}}, nil
	}

	if err := f.shadow.SaveNode(ctx, node); err != nil {
		return nil, fmt.Errorf("save shadow node %s: %w", node.Mrid, err)
	}

	coincident, err := f.otherNodesAt(ctx, node)
	if err != nil {
		return nil, err
	}
	if len(coincident) > 0 {
		f.log.Warn("node coincides with existing node",
			"mrid", node.Mrid,
			"other", coincident[0].Mrid,
		)
		return []events.Notification{events.InvalidNodeOperation{
			Node:    node,
			Code:    string(ErrCodeNodeCoincides),
			Message: "two nodes cannot share a coordinate",
		}}, nil
	}

	segments, err := f.spatial.SegmentsIntersectingPoint(ctx, node.Coord)
	if err != nil {
		return nil, fmt.Errorf("segments at node %s: %w", node.Mrid, err)
	}

	switch len(segments) {
	case 0:
		return []events.Notification{events.NodeAdded{Node: node}}, nil
	case 1:
		if endpointTouches(segments[0].Coord, node.Coord, f.tolerance) {
			// The node arrived at the segment's free end; it attaches
			// there, nothing is split.
			return []events.Notification{events.NodeAdded{Node: node}}, nil
		}
		return []events.Notification{
			events.NodeAdded{Node: node},
			events.ExistingSegmentSplit{Node: node, Target: segments[0]},
		}, nil
	default:
		f.log.Warn("node placed on multiple segments",
			"mrid", node.Mrid,
			"segments", len(segments),
		)
		return []events.Notification{events.InvalidNodeOperation{
			Node:    node,
			Code:    string(ErrCodeAmbiguousNodePlacement),
			Message: fmt.Sprintf("node touches %d segments, cannot decide which to split", len(segments)),
		}}, nil
	}
}

// CreateUpdated classifies a node move, mark-for-deletion or attribute
// change. The before image is re-read from the shadow table rather than
// trusted from the edit log, since the integrator itself may have changed
// the network since the edit was captured.
func (f *NodeFactory) CreateUpdated(ctx context.Context, after *model.RouteNode) ([]events.Notification, error) {
	if after.ApplicationName == f.appName {
		return []events.Notification{events.DoNothing{Reason: "self-authored edit"}}, nil
	}

	before, err := f.shadow.Node(ctx, after.Mrid)
	if err != nil {
		return nil, fmt.Errorf("load shadow node %s: %w", after.Mrid, err)
	}
	if before == nil {
		return []events.Notification{events.DoNothing{Reason: "node already retired"}}, nil
	}
	if after.SameState(before) {
		return []events.Notification{events.DoNothing{Reason: "duplicate delivery"}}, nil
	}

	if err := f.shadow.SaveNode(ctx, after); err != nil {
		return nil, fmt.Errorf("save shadow node %s: %w", after.Mrid, err)
	}

	if after.MarkedForDeletion {
		return f.classifyDeletion(ctx, before, after)
	}

	coincident, err := f.otherNodesAt(ctx, after)
	if err != nil {
		return nil, err
	}
	if len(coincident) > 0 {
		f.log.Warn("node move collides with existing node",
			"mrid", after.Mrid,
			"other", coincident[0].Mrid,
		)
		return []events.Notification{events.RollbackInvalidNode{
			Before:  before,
			Code:    string(ErrCodeNodeCoincides),
			Message: "moved node would coincide with another node",
		}}, nil
	}

	notifications := []events.Notification{events.NodeLocationChanged{Node: after}}

	if !after.Coord.Equals(before.Coord) {
		newly, err := f.newlyIntersectedSegments(ctx, before, after)
		if err != nil {
			return nil, err
		}
		for _, seg := range newly {
			notifications = append(notifications, events.ExistingSegmentSplit{Node: after, Target: seg})
			f.log.Debug("node move lands on segment, split scheduled",
				"node", after.Mrid,
				"segment", seg.Mrid,
			)
		}
	}

	return notifications, nil
}

// classifyDeletion validates a mark-for-deletion. Legal only when no
// segment endpoint still coincides with the node, no other node shares the
// coordinate, and the external validation service does not object.
func (f *NodeFactory) classifyDeletion(ctx context.Context, before, after *model.RouteNode) ([]events.Notification, error) {
	attached, err := f.spatial.SegmentsIntersectingPoint(ctx, after.Coord)
	if err != nil {
		return nil, fmt.Errorf("segments at node %s: %w", after.Mrid, err)
	}
	if len(attached) > 0 {
		f.log.Warn("node deletion rejected, segments still attached",
			"mrid", after.Mrid,
			"segments", len(attached),
		)
		return []events.Notification{events.RollbackInvalidNode{
			Before:  before,
			Code:    string(ErrCodeNodeHasAttachedSegments),
			Message: fmt.Sprintf("%d segments still attached", len(attached)),
		}}, nil
	}

	coincident, err := f.otherNodesAt(ctx, after)
	if err != nil {
		return nil, err
	}
	if len(coincident) > 0 {
		return []events.Notification{events.RollbackInvalidNode{
			Before:  before,
			Code:    string(ErrCodeNodeCoincides),
			Message: "node coincides with another node",
		}}, nil
	}

	allowed, err := f.validator.CanDelete(ctx, model.KindRouteNode, after.Mrid)
	if err != nil {
		return nil, fmt.Errorf("validate node deletion %s: %w", after.Mrid, err)
	}
	if !allowed {
		f.log.Warn("node deletion vetoed by validation service", "mrid", after.Mrid)
		return []events.Notification{events.RollbackInvalidNode{
			Before:  before,
			Code:    string(ErrCodeDeleteRejected),
			Message: "validation service rejected the deletion",
		}}, nil
	}

	return []events.Notification{events.NodeDeleted{Node: after}}, nil
}

// otherNodesAt returns committed nodes at the node's coordinate, excluding
// the node itself.
func (f *NodeFactory) otherNodesAt(ctx context.Context, node *model.RouteNode) ([]*model.RouteNode, error) {
	nodes, err := f.spatial.NodesIntersectingPoint(ctx, node.Coord)
	if err != nil {
		return nil, fmt.Errorf("nodes at node %s: %w", node.Mrid, err)
	}
	out := nodes[:0]
	for _, n := range nodes {
		if n.Mrid != node.Mrid {
			out = append(out, n)
		}
	}
	return out, nil
}

// newlyIntersectedSegments returns segments the node touches at its new
// coordinate that it did not touch at its old one.
func (f *NodeFactory) newlyIntersectedSegments(ctx context.Context, before, after *model.RouteNode) ([]*model.RouteSegment, error) {
	current, err := f.spatial.SegmentsIntersectingPoint(ctx, after.Coord)
	if err != nil {
		return nil, fmt.Errorf("segments at node %s: %w", after.Mrid, err)
	}
	if len(current) == 0 {
		return nil, nil
	}
	previous, err := f.spatial.SegmentsIntersectingPoint(ctx, before.Coord)
	if err != nil {
		return nil, fmt.Errorf("segments at previous node position %s: %w", after.Mrid, err)
	}
	seen := make(map[uuid.UUID]bool, len(previous))
	for _, seg := range previous {
		seen[seg.Mrid] = true
	}
	var newly []*model.RouteSegment
	for _, seg := range current {
		if !seen[seg.Mrid] && !endpointTouches(seg.Coord, after.Coord, f.tolerance) {
			newly = append(newly, seg)
		}
	}
	return newly, nil
}

// endpointTouches reports whether p coincides with one of the line's
// endpoints. A node arriving at a segment end attaches rather than splits.
func endpointTouches(l geom.Line, p geom.Point, tolerance float64) bool {
	return l.StartPoint().DistanceTo(p) <= tolerance || l.EndPoint().DistanceTo(p) <= tolerance
}
