package reconcile

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openftth/gdb-integrator/internal/events"
	"github.com/openftth/gdb-integrator/internal/geom"
	"github.com/openftth/gdb-integrator/internal/testutil"
)

func newSplitHandler(net *testutil.Network) *SplitHandler {
	return NewSplitHandler(net, net.Routes(), net, testutil.NewSequentialIDsAt(100), testAppName, testTolerance, discardLogger())
}

func newSplitCommand() *events.Command {
	clock := testutil.NewManualClock()
	return events.NewCommand(testutil.ID(50), "NodeAdded", testutil.NewSequentialIDsAt(200), clock.Now)
}

func TestSplitHandler_Split_ExplicitTarget(t *testing.T) {
	net := testutil.NewNetwork(testTolerance)
	net.SeedNode(testNode(1, 0, 0))
	net.SeedNode(testNode(2, 10, 0))
	target := testSegment(3, geom.Point{X: 0, Y: 0}, geom.Point{X: 10, Y: 0})
	target.Username = "alice"
	net.SeedSegment(target)
	splitNode := testNode(4, 5, 0)
	net.SeedNode(splitNode)

	h := newSplitHandler(net)
	cmd := newSplitCommand()

	result, err := h.Split(context.Background(), cmd, events.ExistingSegmentSplit{
		Node:   splitNode,
		Target: target,
	})
	require.NoError(t, err)
	require.Len(t, result.Replacements, 2)
	assert.Equal(t, target.Mrid, result.Original.Mrid)

	first, second := result.Replacements[0], result.Replacements[1]
	assert.Equal(t, geom.Line{{X: 0, Y: 0}, {X: 5, Y: 0}}, first.Coord)
	assert.Equal(t, geom.Line{{X: 5, Y: 0}, {X: 10, Y: 0}}, second.Coord)
	assert.Equal(t, "alice", first.Username, "replacements inherit the original's attributes")
	assert.Equal(t, testAppName, first.ApplicationName, "but read as integrator-authored")

	live := net.LiveSegments()
	require.Len(t, live, 2, "the original is gone from the live store")
	shadow, err := net.Segment(context.Background(), target.Mrid)
	require.NoError(t, err)
	assert.Nil(t, shadow, "the original is retired from the shadow store")

	batch := cmd.Finalize()
	require.Len(t, batch, 3)
	assert.Equal(t, events.TypeRouteSegmentAdded, batch[0].Envelope().EventType)
	assert.Equal(t, events.TypeRouteSegmentAdded, batch[1].Envelope().EventType)
	assert.Equal(t, events.TypeRouteSegmentRemoved, batch[2].Envelope().EventType)
	for _, ev := range batch {
		assert.Equal(t, testutil.ID(50), ev.Envelope().CommandID)
	}

	added := batch[0].(*events.RouteSegmentAdded)
	assert.Equal(t, testutil.ID(1), added.FromNodeID)
	assert.Equal(t, splitNode.Mrid, added.ToNodeID)

	removed := batch[2].(*events.RouteSegmentRemoved)
	assert.Equal(t, target.Mrid, removed.SegmentID)
	assert.Equal(t, []uuid.UUID{first.Mrid, second.Mrid}, removed.ReplacedBySegments)
}

func TestSplitHandler_ResolveTarget_FallsBackToNodeCount(t *testing.T) {
	net := testutil.NewNetwork(testTolerance)
	net.SeedNode(testNode(1, 0, 0))
	net.SeedNode(testNode(2, 10, 0))
	net.SeedSegment(testSegment(3, geom.Point{X: 0, Y: 0}, geom.Point{X: 10, Y: 0}))
	splitNode := testNode(4, 5, 0)
	net.SeedNode(splitNode)

	h := newSplitHandler(net)

	result, err := h.Split(context.Background(), newSplitCommand(), events.ExistingSegmentSplit{Node: splitNode})
	require.NoError(t, err)
	assert.Equal(t, testutil.ID(3), result.Original.Mrid)
}

func TestSplitHandler_ResolveTarget_TriggerEndpointPicksOtherSegment(t *testing.T) {
	net := testutil.NewNetwork(testTolerance)
	stored := testSegment(3, geom.Point{X: 0, Y: 0}, geom.Point{X: 10, Y: 0})
	net.SeedSegment(stored)
	trigger := testSegment(4, geom.Point{X: 5, Y: 0}, geom.Point{X: 5, Y: 5})
	net.SeedSegment(trigger)
	splitNode := testNode(5, 5, 0)
	net.SeedNode(splitNode)

	h := newSplitHandler(net)

	result, err := h.Split(context.Background(), newSplitCommand(), events.ExistingSegmentSplit{
		Node:        splitNode,
		TriggeredBy: trigger,
	})
	require.NoError(t, err)
	assert.Equal(t, stored.Mrid, result.Original.Mrid, "the trigger's own endpoint never splits the trigger")
	assert.Len(t, net.LiveSegments(), 3)
}

func TestSplitHandler_ResolveTarget_ReplacedTriggerPicksReplacementHalf(t *testing.T) {
	net := testutil.NewNetwork(testTolerance)
	// The trigger was already split at (3,0); only its halves are stored.
	net.SeedSegment(testSegment(1, geom.Point{X: 0, Y: 0}, geom.Point{X: 3, Y: 0}))
	half := testSegment(2, geom.Point{X: 3, Y: 0}, geom.Point{X: 10, Y: 0})
	net.SeedSegment(half)
	net.SeedNode(testNode(3, 3, 0))
	splitNode := testNode(4, 7, 0)
	net.SeedNode(splitNode)

	stale := testSegment(5, geom.Point{X: 0, Y: 0}, geom.Point{X: 10, Y: 0})

	h := newSplitHandler(net)

	result, err := h.Split(context.Background(), newSplitCommand(), events.ExistingSegmentSplit{
		Node:        splitNode,
		TriggeredBy: stale,
	})
	require.NoError(t, err)
	assert.Equal(t, half.Mrid, result.Original.Mrid, "the half carrying the node is split, not the stale trigger")
	assert.Len(t, net.LiveSegments(), 3)
}

func TestSplitHandler_Split_NoTarget(t *testing.T) {
	net := testutil.NewNetwork(testTolerance)
	h := newSplitHandler(net)
	cmd := newSplitCommand()

	_, err := h.Split(context.Background(), cmd, events.ExistingSegmentSplit{Node: testNode(1, 5, 0)})
	require.Error(t, err)
	assert.Equal(t, ErrCodeNoSplitTarget, CodeOf(err))
	assert.Zero(t, cmd.Len(), "a failed split emits nothing")
}

func TestSplitHandler_Split_NodeOffLine(t *testing.T) {
	net := testutil.NewNetwork(testTolerance)
	target := testSegment(3, geom.Point{X: 0, Y: 0}, geom.Point{X: 10, Y: 0})
	net.SeedSegment(target)

	h := newSplitHandler(net)
	cmd := newSplitCommand()

	_, err := h.Split(context.Background(), cmd, events.ExistingSegmentSplit{
		Node:   testNode(1, 50, 50),
		Target: target,
	})
	require.Error(t, err)
	assert.Equal(t, ErrCodeUnexpectedSplitResult, CodeOf(err))
	assert.Len(t, net.LiveSegments(), 1, "the stored segment is untouched")
	assert.Zero(t, cmd.Len())
}
