package testutil

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/openftth/gdb-integrator/internal/events"
	"github.com/openftth/gdb-integrator/internal/geom"
	"github.com/openftth/gdb-integrator/internal/model"
)

// Network is an in-memory route network plus shadow tables, edit log and
// event sink. It implements the spatial-query, shadow-store, route-store,
// edit-log and publisher interfaces with the same observable behavior as
// the Postgres-backed store, which makes single-process tests of the full
// classify-apply-publish path possible.
//
// Collections preserve insertion order so "first match wins" tie-breaking
// is deterministic.
type Network struct {
	mu sync.Mutex

	Tolerance float64

	nodeOrder    []uuid.UUID
	nodes        map[uuid.UUID]*model.RouteNode
	segmentOrder []uuid.UUID
	segments     map[uuid.UUID]*model.RouteSegment

	shadowNodes    map[uuid.UUID]*model.RouteNode
	shadowSegments map[uuid.UUID]*model.RouteSegment

	editLog    []model.EditOperation
	checkpoint int64

	Published []events.DomainEvent
}

// NewNetwork creates an empty network with the given tolerance.
func NewNetwork(tolerance float64) *Network {
	return &Network{
		Tolerance:      tolerance,
		nodes:          make(map[uuid.UUID]*model.RouteNode),
		segments:       make(map[uuid.UUID]*model.RouteSegment),
		shadowNodes:    make(map[uuid.UUID]*model.RouteNode),
		shadowSegments: make(map[uuid.UUID]*model.RouteSegment),
	}
}

// SeedNode places a committed node with a matching shadow row, as if a
// previous edit had been fully reconciled.
func (n *Network) SeedNode(node *model.RouteNode) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.insertNodeLocked(node.Clone())
	n.shadowNodes[node.Mrid] = node.Clone()
}

// SeedSegment places a committed segment with a matching shadow row.
func (n *Network) SeedSegment(segment *model.RouteSegment) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.insertSegmentLocked(segment.Clone())
	n.shadowSegments[segment.Mrid] = segment.Clone()
}

// Node returns the live node, nil when absent.
func (n *Network) LiveNode(mrid uuid.UUID) *model.RouteNode {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.nodes[mrid].Clone()
}

// LiveSegment returns the live segment, nil when absent.
func (n *Network) LiveSegment(mrid uuid.UUID) *model.RouteSegment {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.segments[mrid].Clone()
}

// LiveSegments returns all committed live segments in insertion order.
func (n *Network) LiveSegments() []*model.RouteSegment {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*model.RouteSegment, 0, len(n.segmentOrder))
	for _, id := range n.segmentOrder {
		out = append(out, n.segments[id].Clone())
	}
	return out
}

// LiveNodes returns all live nodes in insertion order.
func (n *Network) LiveNodes() []*model.RouteNode {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*model.RouteNode, 0, len(n.nodeOrder))
	for _, id := range n.nodeOrder {
		out = append(out, n.nodes[id].Clone())
	}
	return out
}

// Checkpoint returns the committed sequence number.
func (n *Network) Checkpoint(ctx context.Context) (int64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.checkpoint, nil
}

// SetCheckpoint records the committed sequence number.
func (n *Network) SetCheckpoint(ctx context.Context, seq int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.checkpoint = seq
	return nil
}

// AppendEdit adds an operation to the in-memory edit log and mirrors the
// after image into the live tables the way the GIS editor's own write
// would have.
func (n *Network) AppendEdit(op model.EditOperation) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.editLog = append(n.editLog, op)

	switch op.Kind {
	case model.KindRouteNode:
		switch op.Edit {
		case model.EditCreated:
			n.insertNodeLocked(op.NodeAfter.Clone())
		case model.EditUpdated:
			if _, ok := n.nodes[op.NodeAfter.Mrid]; ok {
				n.nodes[op.NodeAfter.Mrid] = op.NodeAfter.Clone()
			}
		case model.EditDeleted:
			n.deleteNodeLocked(op.NodeBefore.Mrid)
		}
	case model.KindRouteSegment:
		switch op.Edit {
		case model.EditCreated:
			n.insertSegmentLocked(op.SegmentAfter.Clone())
		case model.EditUpdated:
			if _, ok := n.segments[op.SegmentAfter.Mrid]; ok {
				n.segments[op.SegmentAfter.Mrid] = op.SegmentAfter.Clone()
			}
		case model.EditDeleted:
			n.deleteSegmentLocked(op.SegmentBefore.Mrid)
		}
	}
}

// EditsAfter implements the edit-log reader.
func (n *Network) EditsAfter(ctx context.Context, seq int64, limit int) ([]model.EditOperation, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []model.EditOperation
	for _, op := range n.editLog {
		if op.SequenceNumber > seq {
			out = append(out, op)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// Publish records the event.
func (n *Network) Publish(ctx context.Context, ev events.DomainEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Published = append(n.Published, ev)
	return nil
}

// PublishedTypes returns the event type names in publication order.
func (n *Network) PublishedTypes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.Published))
	for i, ev := range n.Published {
		out[i] = ev.Envelope().EventType
	}
	return out
}

// --- spatial queries ---

func (n *Network) NodesIntersectingPoint(ctx context.Context, p geom.Point) ([]*model.RouteNode, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []*model.RouteNode
	for _, id := range n.nodeOrder {
		node := n.nodes[id]
		if node.MarkedForDeletion {
			continue
		}
		if node.Coord.DistanceTo(p) <= n.Tolerance {
			out = append(out, node.Clone())
		}
	}
	return out, nil
}

func (n *Network) NodesIntersectingLine(ctx context.Context, l geom.Line) ([]*model.RouteNode, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []*model.RouteNode
	for _, id := range n.nodeOrder {
		node := n.nodes[id]
		if node.MarkedForDeletion {
			continue
		}
		if geom.PointNearLine(node.Coord, l, n.Tolerance) {
			out = append(out, node.Clone())
		}
	}
	return out, nil
}

func (n *Network) SegmentsIntersectingPoint(ctx context.Context, p geom.Point) ([]*model.RouteSegment, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []*model.RouteSegment
	for _, id := range n.segmentOrder {
		seg := n.segments[id]
		if seg.MarkedForDeletion {
			continue
		}
		if geom.PointNearLine(p, seg.Coord, n.Tolerance) {
			out = append(out, seg.Clone())
		}
	}
	return out, nil
}

func (n *Network) SegmentsIntersectingLine(ctx context.Context, l geom.Line) ([]*model.RouteSegment, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []*model.RouteSegment
	for _, id := range n.segmentOrder {
		seg := n.segments[id]
		if seg.MarkedForDeletion {
			continue
		}
		if geom.LinesIntersect(seg.Coord, l) {
			out = append(out, seg.Clone())
		}
	}
	return out, nil
}

func (n *Network) NodesOnInterior(ctx context.Context, l geom.Line) ([]*model.RouteNode, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []*model.RouteNode
	for _, id := range n.nodeOrder {
		node := n.nodes[id]
		if node.MarkedForDeletion {
			continue
		}
		if geom.PointNearLineInterior(node.Coord, l, n.Tolerance) {
			out = append(out, node.Clone())
		}
	}
	return out, nil
}

func (n *Network) SplitLine(ctx context.Context, l geom.Line, p geom.Point) ([]geom.Line, error) {
	return geom.SplitAt(l, p, n.Tolerance), nil
}

// --- shadow store ---

func (n *Network) Node(ctx context.Context, mrid uuid.UUID) (*model.RouteNode, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.shadowNodes[mrid].Clone(), nil
}

func (n *Network) SaveNode(ctx context.Context, node *model.RouteNode) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.shadowNodes[node.Mrid] = node.Clone()
	return nil
}

func (n *Network) DeleteNode(ctx context.Context, mrid uuid.UUID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.shadowNodes, mrid)
	return nil
}

func (n *Network) Segment(ctx context.Context, mrid uuid.UUID) (*model.RouteSegment, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.shadowSegments[mrid].Clone(), nil
}

func (n *Network) SaveSegment(ctx context.Context, segment *model.RouteSegment) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.shadowSegments[segment.Mrid] = segment.Clone()
	return nil
}

func (n *Network) DeleteSegment(ctx context.Context, mrid uuid.UUID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.shadowSegments, mrid)
	return nil
}

// --- live route store ---
// The shadow store claims the natural method names, so the live-store
// interface is satisfied by a view wrapper.

// Routes returns the live-store view of the network.
func (n *Network) Routes() *LiveRoutes {
	return &LiveRoutes{n: n}
}

// LiveRoutes adapts Network to the route-store interface.
type LiveRoutes struct {
	n *Network
}

func (r *LiveRoutes) InsertNode(ctx context.Context, node *model.RouteNode) error {
	r.n.mu.Lock()
	defer r.n.mu.Unlock()
	r.n.insertNodeLocked(node.Clone())
	return nil
}

func (r *LiveRoutes) UpdateNode(ctx context.Context, node *model.RouteNode) error {
	r.n.mu.Lock()
	defer r.n.mu.Unlock()
	r.n.nodes[node.Mrid] = node.Clone()
	return nil
}

func (r *LiveRoutes) DeleteNode(ctx context.Context, mrid uuid.UUID) error {
	r.n.mu.Lock()
	defer r.n.mu.Unlock()
	r.n.deleteNodeLocked(mrid)
	return nil
}

func (r *LiveRoutes) InsertSegment(ctx context.Context, segment *model.RouteSegment) error {
	r.n.mu.Lock()
	defer r.n.mu.Unlock()
	r.n.insertSegmentLocked(segment.Clone())
	return nil
}

func (r *LiveRoutes) UpdateSegment(ctx context.Context, segment *model.RouteSegment) error {
	r.n.mu.Lock()
	defer r.n.mu.Unlock()
	r.n.segments[segment.Mrid] = segment.Clone()
	return nil
}

func (r *LiveRoutes) DeleteSegment(ctx context.Context, mrid uuid.UUID) error {
	r.n.mu.Lock()
	defer r.n.mu.Unlock()
	r.n.deleteSegmentLocked(mrid)
	return nil
}

// --- internals ---

func (n *Network) insertNodeLocked(node *model.RouteNode) {
	if _, ok := n.nodes[node.Mrid]; !ok {
		n.nodeOrder = append(n.nodeOrder, node.Mrid)
	}
	n.nodes[node.Mrid] = node
}

func (n *Network) deleteNodeLocked(mrid uuid.UUID) {
	if _, ok := n.nodes[mrid]; !ok {
		return
	}
	delete(n.nodes, mrid)
	for i, id := range n.nodeOrder {
		if id == mrid {
			n.nodeOrder = append(n.nodeOrder[:i], n.nodeOrder[i+1:]...)
			break
		}
	}
}

func (n *Network) insertSegmentLocked(segment *model.RouteSegment) {
	if _, ok := n.segments[segment.Mrid]; !ok {
		n.segmentOrder = append(n.segmentOrder, segment.Mrid)
	}
	n.segments[segment.Mrid] = segment
}

func (n *Network) deleteSegmentLocked(mrid uuid.UUID) {
	if _, ok := n.segments[mrid]; !ok {
		return
	}
	delete(n.segments, mrid)
	for i, id := range n.segmentOrder {
		if id == mrid {
			n.segmentOrder = append(n.segmentOrder[:i], n.segmentOrder[i+1:]...)
			break
		}
	}
}
