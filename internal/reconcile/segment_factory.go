package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/openftth/gdb-integrator/internal/events"
	"github.com/openftth/gdb-integrator/internal/geom"
	"github.com/openftth/gdb-integrator/internal/model"
)

// NodeMinter creates the synthetic nodes the integrator invents at lonely
// segment ends. Split out as an interface so tests can mint predictable
// mrids.
type NodeMinter interface {
	MintNode(at geom.Point, template *model.RouteSegment) *model.RouteNode
}

// SegmentFactory classifies route segment edits.
type SegmentFactory struct {
	spatial   SpatialQueries
	shadow    ShadowStore
	validator Validator
	minter    NodeMinter
	appName   string
	tolerance float64
	log       *slog.Logger
}

// NewSegmentFactory wires a segment classifier.
func NewSegmentFactory(spatial SpatialQueries, shadow ShadowStore, validator Validator, minter NodeMinter, appName string, tolerance float64, log *slog.Logger) *SegmentFactory {
	if log == nil {
		log = slog.Default()
	}
	if validator == nil {
		validator = AllowAllValidator{}
	}
	return &SegmentFactory{
		spatial:   spatial,
		shadow:    shadow,
		validator: validator,
		minter:    minter,
		appName:   appName,
		tolerance: tolerance,
		log:       log,
	}
}

// endpointSurvey is what the factory knows about one endpoint of a
// digitized or moved segment: the committed nodes at that point and the
// other committed segments passing through it.
type endpointSurvey struct {
	point    geom.Point
	nodes    []*model.RouteNode
	segments []*model.RouteSegment
}

// CreateDigitized classifies a freshly drawn segment.
//
// The happy path for a lonely segment synthesizes a node at each end and
// adds the segment. An endpoint landing mid-way along exactly one existing
// segment synthesizes a node there and splits that segment. Existing nodes
// touching the new segment's interior split the new segment itself. A
// geometrically invalid line, or an endpoint touching two or more nodes or
// two or more crossing segments, rejects the edit.
func (f *SegmentFactory) CreateDigitized(ctx context.Context, segment *model.RouteSegment) ([]events.Notification, error) {
	if segment.ApplicationName == f.appName {
		return []events.Notification{events.DoNothing{Reason: "self-authored edit"}}, nil
	}

	existing, err := f.shadow.Segment(ctx, segment.Mrid)
	if err != nil {
		return nil, fmt.Errorf("load shadow segment %s: %w", segment.Mrid, err)
	}
	if segment.SameState(existing) {
		return []events.Notification{events.DoNothing{Reason: "duplicate delivery"}}, nil
	}

	if err := f.shadow.SaveSegment(ctx, segment); err != nil {
		return nil, fmt.Errorf("save shadow segment %s: %w", segment.Mrid, err)
	}

	if err := geom.ValidateLine(segment.Coord, f.tolerance); err != nil {
		code := geometryCode(err)
		f.log.Warn("digitized segment has invalid geometry",
			"mrid", segment.Mrid,
			"code", code,
		)
		return []events.Notification{events.InvalidSegmentOperation{
			Segment: segment,
			Code:    code,
			Message: "digitized line failed validity checks",
		}}, nil
	}

	start, err := f.surveyEndpoint(ctx, segment, segment.Coord.StartPoint())
	if err != nil {
		return nil, err
	}
	end, err := f.surveyEndpoint(ctx, segment, segment.Coord.EndPoint())
	if err != nil {
		return nil, err
	}

	if invalid := f.checkEndpointAmbiguity(segment, start, end); invalid != nil {
		return []events.Notification{*invalid}, nil
	}

	var notifications []events.Notification
	for _, survey := range []endpointSurvey{start, end} {
		notifications = append(notifications, f.attachEndpoint(segment, survey)...)
	}

	notifications = append(notifications, events.SegmentAdded{Segment: segment})

	interior, err := f.interiorNodes(ctx, segment.Coord)
	if err != nil {
		return nil, err
	}
	for _, node := range interior {
		notifications = append(notifications, events.ExistingSegmentSplit{
			Node:        node,
			TriggeredBy: segment,
		})
	}

	return notifications, nil
}

// CreateUpdated classifies a segment move, re-route, mark-for-deletion or
// attribute change. Unlike a fresh digitization, a failed validity check
// here restores the prior state instead of plainly rejecting, since the
// stored segment was valid before the edit.
func (f *SegmentFactory) CreateUpdated(ctx context.Context, after *model.RouteSegment) ([]events.Notification, error) {
	if after.ApplicationName == f.appName {
		return []events.Notification{events.DoNothing{Reason: "self-authored edit"}}, nil
	}

	before, err := f.shadow.Segment(ctx, after.Mrid)
	if err != nil {
		return nil, fmt.Errorf("load shadow segment %s: %w", after.Mrid, err)
	}
	if before == nil {
		return []events.Notification{events.DoNothing{Reason: "segment already retired"}}, nil
	}
	if after.SameState(before) {
		return []events.Notification{events.DoNothing{Reason: "duplicate delivery"}}, nil
	}

	if err := f.shadow.SaveSegment(ctx, after); err != nil {
		return nil, fmt.Errorf("save shadow segment %s: %w", after.Mrid, err)
	}

	if err := geom.ValidateLine(after.Coord, f.tolerance); err != nil {
		code := geometryCode(err)
		f.log.Warn("segment update has invalid geometry",
			"mrid", after.Mrid,
			"code", code,
		)
		return []events.Notification{events.RollbackInvalidSegment{
			Before:  before,
			Code:    code,
			Message: "updated line failed validity checks",
		}}, nil
	}

	if after.MarkedForDeletion {
		return f.classifyDeletion(ctx, before, after)
	}

	start, err := f.surveyEndpoint(ctx, after, after.Coord.StartPoint())
	if err != nil {
		return nil, err
	}
	end, err := f.surveyEndpoint(ctx, after, after.Coord.EndPoint())
	if err != nil {
		return nil, err
	}

	if len(start.nodes) >= 2 || len(end.nodes) >= 2 {
		return []events.Notification{events.RollbackInvalidSegment{
			Before:  before,
			Code:    string(ErrCodeAmbiguousSegmentAttach),
			Message: "segment endpoint touches more than one node",
		}}, nil
	}

	sameNodes, err := f.endpointsUnchanged(ctx, before, start, end)
	if err != nil {
		return nil, err
	}

	if sameNodes {
		notifications := []events.Notification{events.SegmentLocationChanged{Segment: after}}
		newly, err := f.newlyTouchingInteriorNodes(ctx, before, after)
		if err != nil {
			return nil, err
		}
		for _, node := range newly {
			notifications = append(notifications, events.ExistingSegmentSplit{
				Node:        node,
				TriggeredBy: after,
			})
		}
		return notifications, nil
	}

	// Connectivity rewiring: synthesize nodes and schedule splits for
	// endpoints landing mid-segment, then replace the segment with a clone
	// so no subsystem holding a reference to the original sees it mutate.
	var notifications []events.Notification
	for _, survey := range []endpointSurvey{start, end} {
		notifications = append(notifications, f.attachEndpoint(after, survey)...)
	}
	notifications = append(notifications, events.SegmentConnectivityChanged{
		Before: before,
		After:  after,
	})
	return notifications, nil
}

// classifyDeletion validates a mark-for-deletion against the external
// validation service. Topology needs no recompute: marking a segment
// deleted frees its endpoints rather than constraining them.
func (f *SegmentFactory) classifyDeletion(ctx context.Context, before, after *model.RouteSegment) ([]events.Notification, error) {
	allowed, err := f.validator.CanDelete(ctx, model.KindRouteSegment, after.Mrid)
	if err != nil {
		return nil, fmt.Errorf("validate segment deletion %s: %w", after.Mrid, err)
	}
	if !allowed {
		f.log.Warn("segment deletion vetoed by validation service", "mrid", after.Mrid)
		return []events.Notification{events.RollbackInvalidSegment{
			Before:  before,
			Code:    string(ErrCodeDeleteRejected),
			Message: "validation service rejected the deletion",
		}}, nil
	}
	return []events.Notification{events.SegmentDeleted{Segment: after}}, nil
}

// surveyEndpoint collects the committed nodes and other segments at one
// endpoint of the segment being classified.
func (f *SegmentFactory) surveyEndpoint(ctx context.Context, segment *model.RouteSegment, p geom.Point) (endpointSurvey, error) {
	nodes, err := f.spatial.NodesIntersectingPoint(ctx, p)
	if err != nil {
		return endpointSurvey{}, fmt.Errorf("nodes at segment %s endpoint: %w", segment.Mrid, err)
	}
	allSegments, err := f.spatial.SegmentsIntersectingPoint(ctx, p)
	if err != nil {
		return endpointSurvey{}, fmt.Errorf("segments at segment %s endpoint: %w", segment.Mrid, err)
	}
	others := make([]*model.RouteSegment, 0, len(allSegments))
	for _, s := range allSegments {
		if s.Mrid != segment.Mrid {
			others = append(others, s)
		}
	}
	return endpointSurvey{point: p, nodes: nodes, segments: others}, nil
}

// checkEndpointAmbiguity returns the rejection for endpoints that touch
// two or more nodes, or two or more crossing segments with no node to
// attach to. Nil when both endpoints are unambiguous.
func (f *SegmentFactory) checkEndpointAmbiguity(segment *model.RouteSegment, start, end endpointSurvey) *events.InvalidSegmentOperation {
	for _, survey := range []endpointSurvey{start, end} {
		if len(survey.nodes) >= 2 {
			f.log.Warn("segment endpoint touches multiple nodes",
				"mrid", segment.Mrid,
				"nodes", len(survey.nodes),
			)
			return &events.InvalidSegmentOperation{
				Segment: segment,
				Code:    string(ErrCodeAmbiguousSegmentAttach),
				Message: fmt.Sprintf("endpoint touches %d nodes", len(survey.nodes)),
			}
		}
		if len(survey.nodes) == 0 && len(survey.segments) >= 2 {
			f.log.Warn("segment endpoint lands on segment crossing",
				"mrid", segment.Mrid,
				"segments", len(survey.segments),
			)
			return &events.InvalidSegmentOperation{
				Segment: segment,
				Code:    string(ErrCodeAmbiguousSegmentAttach),
				Message: fmt.Sprintf("endpoint touches %d segments and no node", len(survey.segments)),
			}
		}
	}
	return nil
}

// attachEndpoint produces the notifications that give one endpoint a node
// to attach to: nothing when a node is already there, a synthesized node
// when the endpoint is lonely, and a synthesized node plus a split when the
// endpoint lands mid-way along exactly one other segment.
func (f *SegmentFactory) attachEndpoint(segment *model.RouteSegment, survey endpointSurvey) []events.Notification {
	if len(survey.nodes) > 0 {
		return nil
	}

	node := f.minter.MintNode(survey.point, segment)
	added := events.NodeAdded{Node: node, Synthesized: true}

	if len(survey.segments) == 1 && geom.PointNearLineInterior(survey.point, survey.segments[0].Coord, f.tolerance) {
		return []events.Notification{
			added,
			events.ExistingSegmentSplit{
				Node:   node,
				Target: survey.segments[0],
			},
		}
	}
	return []events.Notification{added}
}

// interiorNodes returns committed nodes touching the line strictly between
// its endpoints.
func (f *SegmentFactory) interiorNodes(ctx context.Context, l geom.Line) ([]*model.RouteNode, error) {
	nodes, err := f.spatial.NodesOnInterior(ctx, l)
	if err != nil {
		return nil, fmt.Errorf("nodes on segment interior: %w", err)
	}
	return nodes, nil
}

// endpointsUnchanged reports whether the segment's endpoints still resolve
// to the same nodes as the shadow's before image.
func (f *SegmentFactory) endpointsUnchanged(ctx context.Context, before *model.RouteSegment, start, end endpointSurvey) (bool, error) {
	beforeStart, err := f.spatial.NodesIntersectingPoint(ctx, before.Coord.StartPoint())
	if err != nil {
		return false, fmt.Errorf("nodes at previous start of %s: %w", before.Mrid, err)
	}
	beforeEnd, err := f.spatial.NodesIntersectingPoint(ctx, before.Coord.EndPoint())
	if err != nil {
		return false, fmt.Errorf("nodes at previous end of %s: %w", before.Mrid, err)
	}
	return firstMrid(start.nodes) == firstMrid(beforeStart) &&
		firstMrid(end.nodes) == firstMrid(beforeEnd), nil
}

// newlyTouchingInteriorNodes returns nodes on the segment's new interior
// that were not on its old interior.
func (f *SegmentFactory) newlyTouchingInteriorNodes(ctx context.Context, before, after *model.RouteSegment) ([]*model.RouteNode, error) {
	current, err := f.interiorNodes(ctx, after.Coord)
	if err != nil {
		return nil, err
	}
	if len(current) == 0 {
		return nil, nil
	}
	previous, err := f.interiorNodes(ctx, before.Coord)
	if err != nil {
		return nil, err
	}
	seen := make(map[uuid.UUID]bool, len(previous))
	for _, n := range previous {
		seen[n.Mrid] = true
	}
	var newly []*model.RouteNode
	for _, n := range current {
		if !seen[n.Mrid] {
			newly = append(newly, n)
		}
	}
	return newly, nil
}

func firstMrid(nodes []*model.RouteNode) uuid.UUID {
	if len(nodes) == 0 {
		return uuid.Nil
	}
	return nodes[0].Mrid
}

// geometryCode unwraps the validation code from a geom error, falling back
// to the raw error text for unexpected shapes.
func geometryCode(err error) string {
	var ve *geom.ValidationError
	if errors.As(err, &ve) {
		return string(ve.Code)
	}
	return err.Error()
}
