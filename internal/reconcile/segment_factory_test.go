package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openftth/gdb-integrator/internal/events"
	"github.com/openftth/gdb-integrator/internal/geom"
	"github.com/openftth/gdb-integrator/internal/testutil"
)

func newSegmentFactory(net *testutil.Network, validator Validator) *SegmentFactory {
	minter := Minter{IDs: testutil.NewSequentialIDsAt(100), AppName: testAppName}
	return NewSegmentFactory(net, net, validator, minter, testAppName, testTolerance, discardLogger())
}

func notificationNames(ns []events.Notification) []string {
	names := make([]string, len(ns))
	for i, n := range ns {
		names[i] = events.Name(n)
	}
	return names
}

func TestSegmentFactory_CreateDigitized_SelfAuthoredIsSkipped(t *testing.T) {
	net := testutil.NewNetwork(testTolerance)
	f := newSegmentFactory(net, nil)

	seg := testSegment(1, geom.Point{X: 0, Y: 0}, geom.Point{X: 10, Y: 0})
	seg.ApplicationName = testAppName

	ns, err := f.CreateDigitized(context.Background(), seg)
	require.NoError(t, err)
	require.Len(t, ns, 1)
	assert.IsType(t, events.DoNothing{}, ns[0])
}

func TestSegmentFactory_CreateDigitized_DuplicateDelivery(t *testing.T) {
	net := testutil.NewNetwork(testTolerance)
	seg := testSegment(1, geom.Point{X: 0, Y: 0}, geom.Point{X: 10, Y: 0})
	net.SeedSegment(seg)
	f := newSegmentFactory(net, nil)

	ns, err := f.CreateDigitized(context.Background(), seg)
	require.NoError(t, err)
	require.Len(t, ns, 1)
	doNothing, ok := ns[0].(events.DoNothing)
	require.True(t, ok)
	assert.Contains(t, doNothing.Reason, "duplicate")
}

func TestSegmentFactory_CreateDigitized_InvalidGeometryRejected(t *testing.T) {
	net := testutil.NewNetwork(testTolerance)
	f := newSegmentFactory(net, nil)

	closed := testSegment(1,
		geom.Point{X: 0, Y: 0},
		geom.Point{X: 10, Y: 0},
		geom.Point{X: 10, Y: 10},
		geom.Point{X: 0, Y: 0},
	)

	ns, err := f.CreateDigitized(context.Background(), closed)
	require.NoError(t, err)
	require.Len(t, ns, 1)

	invalid, ok := ns[0].(events.InvalidSegmentOperation)
	require.True(t, ok)
	assert.Equal(t, string(geom.CodeLineIsClosed), invalid.Code)
}

func TestSegmentFactory_CreateDigitized_LonelySegmentSynthesizesEndNodes(t *testing.T) {
	net := testutil.NewNetwork(testTolerance)
	f := newSegmentFactory(net, nil)

	seg := testSegment(1, geom.Point{X: 0, Y: 0}, geom.Point{X: 10, Y: 0})

	ns, err := f.CreateDigitized(context.Background(), seg)
	require.NoError(t, err)
	require.Equal(t, []string{"NodeAdded", "NodeAdded", "SegmentAdded"}, notificationNames(ns))

	start := ns[0].(events.NodeAdded)
	end := ns[1].(events.NodeAdded)
	assert.True(t, start.Synthesized)
	assert.True(t, end.Synthesized)
	assert.Equal(t, geom.Point{X: 0, Y: 0}, start.Node.Coord)
	assert.Equal(t, geom.Point{X: 10, Y: 0}, end.Node.Coord)
	assert.Equal(t, testAppName, start.Node.ApplicationName, "minted nodes read as integrator-authored")
	assert.NotEqual(t, start.Node.Mrid, end.Node.Mrid)
}

func TestSegmentFactory_CreateDigitized_EndpointAttachesToExistingNode(t *testing.T) {
	net := testutil.NewNetwork(testTolerance)
	net.SeedNode(testNode(1, 0, 0))
	f := newSegmentFactory(net, nil)

	seg := testSegment(2, geom.Point{X: 0, Y: 0}, geom.Point{X: 10, Y: 0})

	ns, err := f.CreateDigitized(context.Background(), seg)
	require.NoError(t, err)
	require.Equal(t, []string{"NodeAdded", "SegmentAdded"}, notificationNames(ns))
	assert.Equal(t, geom.Point{X: 10, Y: 0}, ns[0].(events.NodeAdded).Node.Coord,
		"only the lonely end mints a node")
}

func TestSegmentFactory_CreateDigitized_EndpointMidSegmentSplits(t *testing.T) {
	net := testutil.NewNetwork(testTolerance)
	net.SeedNode(testNode(1, 0, 0))
	net.SeedNode(testNode(2, 10, 0))
	net.SeedSegment(testSegment(3, geom.Point{X: 0, Y: 0}, geom.Point{X: 10, Y: 0}))
	f := newSegmentFactory(net, nil)

	seg := testSegment(4, geom.Point{X: 5, Y: 0}, geom.Point{X: 5, Y: 5})

	ns, err := f.CreateDigitized(context.Background(), seg)
	require.NoError(t, err)
	require.Equal(t, []string{"NodeAdded", "ExistingSegmentSplit", "NodeAdded", "SegmentAdded"}, notificationNames(ns))

	split := ns[1].(events.ExistingSegmentSplit)
	require.NotNil(t, split.Target)
	assert.Equal(t, testutil.ID(3), split.Target.Mrid)
	assert.Equal(t, ns[0].(events.NodeAdded).Node.Mrid, split.Node.Mrid,
		"the minted endpoint node is the split node")
}

func TestSegmentFactory_CreateDigitized_InteriorNodesSplitTheNewSegment(t *testing.T) {
	net := testutil.NewNetwork(testTolerance)
	net.SeedNode(testNode(1, 5, 0))
	f := newSegmentFactory(net, nil)

	seg := testSegment(2, geom.Point{X: 0, Y: 0}, geom.Point{X: 10, Y: 0})

	ns, err := f.CreateDigitized(context.Background(), seg)
	require.NoError(t, err)
	require.Equal(t, []string{"NodeAdded", "NodeAdded", "SegmentAdded", "ExistingSegmentSplit"}, notificationNames(ns))

	split := ns[3].(events.ExistingSegmentSplit)
	assert.Equal(t, testutil.ID(1), split.Node.Mrid)
	require.NotNil(t, split.TriggeredBy)
	assert.Equal(t, seg.Mrid, split.TriggeredBy.Mrid)
	assert.Nil(t, split.Target)
}

func TestSegmentFactory_CreateDigitized_EndpointOnTwoNodesRejected(t *testing.T) {
	net := testutil.NewNetwork(testTolerance)
	net.SeedNode(testNode(1, 0, 0))
	net.SeedNode(testNode(2, 0.005, 0))
	f := newSegmentFactory(net, nil)

	seg := testSegment(3, geom.Point{X: 0, Y: 0}, geom.Point{X: 10, Y: 0})

	ns, err := f.CreateDigitized(context.Background(), seg)
	require.NoError(t, err)
	require.Len(t, ns, 1)

	invalid, ok := ns[0].(events.InvalidSegmentOperation)
	require.True(t, ok)
	assert.Equal(t, string(ErrCodeAmbiguousSegmentAttach), invalid.Code)
}

func TestSegmentFactory_CreateDigitized_EndpointOnCrossingRejected(t *testing.T) {
	net := testutil.NewNetwork(testTolerance)
	net.SeedSegment(testSegment(3, geom.Point{X: 0, Y: 0}, geom.Point{X: 10, Y: 0}))
	net.SeedSegment(testSegment(4, geom.Point{X: 5, Y: -5}, geom.Point{X: 5, Y: 5}))
	f := newSegmentFactory(net, nil)

	seg := testSegment(5, geom.Point{X: 5, Y: 0}, geom.Point{X: 20, Y: 20})

	ns, err := f.CreateDigitized(context.Background(), seg)
	require.NoError(t, err)
	require.Len(t, ns, 1)

	invalid, ok := ns[0].(events.InvalidSegmentOperation)
	require.True(t, ok)
	assert.Equal(t, string(ErrCodeAmbiguousSegmentAttach), invalid.Code)
}

func TestSegmentFactory_CreateUpdated_RetiredSegmentIsSkipped(t *testing.T) {
	net := testutil.NewNetwork(testTolerance)
	f := newSegmentFactory(net, nil)

	ns, err := f.CreateUpdated(context.Background(), testSegment(1, geom.Point{X: 0, Y: 0}, geom.Point{X: 10, Y: 0}))
	require.NoError(t, err)
	require.Len(t, ns, 1)
	doNothing, ok := ns[0].(events.DoNothing)
	require.True(t, ok)
	assert.Contains(t, doNothing.Reason, "retired")
}

func TestSegmentFactory_CreateUpdated_InvalidGeometryRollsBack(t *testing.T) {
	net := testutil.NewNetwork(testTolerance)
	before := testSegment(1, geom.Point{X: 0, Y: 0}, geom.Point{X: 10, Y: 0})
	net.SeedSegment(before)
	f := newSegmentFactory(net, nil)

	after := testSegment(1, geom.Point{X: 0, Y: 0})

	ns, err := f.CreateUpdated(context.Background(), after)
	require.NoError(t, err)
	require.Len(t, ns, 1)

	rollback, ok := ns[0].(events.RollbackInvalidSegment)
	require.True(t, ok)
	assert.Equal(t, string(geom.CodeLineHasTooFewPoints), rollback.Code)
	assert.Equal(t, before.Coord, rollback.Before.Coord)
}

func TestSegmentFactory_CreateUpdated_LegalDeletion(t *testing.T) {
	net := testutil.NewNetwork(testTolerance)
	net.SeedSegment(testSegment(1, geom.Point{X: 0, Y: 0}, geom.Point{X: 10, Y: 0}))
	f := newSegmentFactory(net, nil)

	after := testSegment(1, geom.Point{X: 0, Y: 0}, geom.Point{X: 10, Y: 0})
	after.MarkedForDeletion = true

	ns, err := f.CreateUpdated(context.Background(), after)
	require.NoError(t, err)
	require.Len(t, ns, 1)
	assert.IsType(t, events.SegmentDeleted{}, ns[0])
}

func TestSegmentFactory_CreateUpdated_DeletionVetoedRollsBack(t *testing.T) {
	net := testutil.NewNetwork(testTolerance)
	net.SeedSegment(testSegment(1, geom.Point{X: 0, Y: 0}, geom.Point{X: 10, Y: 0}))
	f := newSegmentFactory(net, vetoValidator{})

	after := testSegment(1, geom.Point{X: 0, Y: 0}, geom.Point{X: 10, Y: 0})
	after.MarkedForDeletion = true

	ns, err := f.CreateUpdated(context.Background(), after)
	require.NoError(t, err)
	require.Len(t, ns, 1)

	rollback, ok := ns[0].(events.RollbackInvalidSegment)
	require.True(t, ok)
	assert.Equal(t, string(ErrCodeDeleteRejected), rollback.Code)
	assert.False(t, rollback.Before.MarkedForDeletion)
}

func TestSegmentFactory_CreateUpdated_ReshapeKeepsEndpoints(t *testing.T) {
	net := testutil.NewNetwork(testTolerance)
	net.SeedNode(testNode(1, 0, 0))
	net.SeedNode(testNode(2, 10, 0))
	net.SeedSegment(testSegment(3, geom.Point{X: 0, Y: 0}, geom.Point{X: 10, Y: 0}))
	f := newSegmentFactory(net, nil)

	after := testSegment(3,
		geom.Point{X: 0, Y: 0},
		geom.Point{X: 5, Y: 3},
		geom.Point{X: 10, Y: 0},
	)

	ns, err := f.CreateUpdated(context.Background(), after)
	require.NoError(t, err)
	require.Equal(t, []string{"SegmentLocationChanged"}, notificationNames(ns))
}

func TestSegmentFactory_CreateUpdated_ReshapeOntoInteriorNodeSplits(t *testing.T) {
	net := testutil.NewNetwork(testTolerance)
	net.SeedNode(testNode(1, 0, 0))
	net.SeedNode(testNode(2, 10, 0))
	net.SeedNode(testNode(5, 5, 5))
	net.SeedSegment(testSegment(3, geom.Point{X: 0, Y: 0}, geom.Point{X: 10, Y: 0}))
	f := newSegmentFactory(net, nil)

	after := testSegment(3,
		geom.Point{X: 0, Y: 0},
		geom.Point{X: 5, Y: 5},
		geom.Point{X: 10, Y: 0},
	)

	ns, err := f.CreateUpdated(context.Background(), after)
	require.NoError(t, err)
	require.Equal(t, []string{"SegmentLocationChanged", "ExistingSegmentSplit"}, notificationNames(ns))

	split := ns[1].(events.ExistingSegmentSplit)
	assert.Equal(t, testutil.ID(5), split.Node.Mrid)
	require.NotNil(t, split.TriggeredBy)
	assert.Equal(t, testutil.ID(3), split.TriggeredBy.Mrid)
}

func TestSegmentFactory_CreateUpdated_RerouteChangesConnectivity(t *testing.T) {
	net := testutil.NewNetwork(testTolerance)
	net.SeedNode(testNode(1, 0, 0))
	net.SeedNode(testNode(2, 10, 0))
	net.SeedSegment(testSegment(3, geom.Point{X: 0, Y: 0}, geom.Point{X: 10, Y: 0}))
	f := newSegmentFactory(net, nil)

	after := testSegment(3, geom.Point{X: 0, Y: 0}, geom.Point{X: 20, Y: 5})

	ns, err := f.CreateUpdated(context.Background(), after)
	require.NoError(t, err)
	require.Equal(t, []string{"NodeAdded", "SegmentConnectivityChanged"}, notificationNames(ns))

	added := ns[0].(events.NodeAdded)
	assert.True(t, added.Synthesized)
	assert.Equal(t, geom.Point{X: 20, Y: 5}, added.Node.Coord)

	changed := ns[1].(events.SegmentConnectivityChanged)
	assert.Equal(t, geom.Point{X: 10, Y: 0}, changed.Before.Coord.EndPoint())
	assert.Equal(t, geom.Point{X: 20, Y: 5}, changed.After.Coord.EndPoint())
}
