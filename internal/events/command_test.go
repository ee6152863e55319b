package events

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openftth/gdb-integrator/internal/geom"
	"github.com/openftth/gdb-integrator/internal/model"
)

type fixedIDs struct {
	ids  []uuid.UUID
	next int
}

func (f *fixedIDs) New() uuid.UUID {
	id := f.ids[f.next]
	f.next++
	return id
}

func TestCommand_AppendStampsEnvelope(t *testing.T) {
	cmdID := uuid.MustParse("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
	evID := uuid.MustParse("bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb")
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	cmd := NewCommand(cmdID, "NodeAdded", &fixedIDs{ids: []uuid.UUID{evID}}, func() time.Time { return at })
	cmd.Append(&RouteNodeAdded{NodeID: uuid.New(), Geometry: geom.Point{X: 1, Y: 2}}, TypeRouteNodeAdded)

	batch := cmd.Finalize()
	require.Len(t, batch, 1)

	env := batch[0].Envelope()
	assert.Equal(t, TypeRouteNodeAdded, env.EventType)
	assert.Equal(t, evID, env.EventID)
	assert.Equal(t, at, env.EventTimestamp)
	assert.Equal(t, cmdID, env.CommandID)
	assert.Equal(t, "NodeAdded", env.CommandType)
	assert.True(t, env.IsLastEventInCommand)
}

func TestCommand_FinalizeMarksOnlyLastEvent(t *testing.T) {
	gen := &fixedIDs{ids: []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}}
	cmd := NewCommand(uuid.New(), "NodeAdded", gen, nil)

	cmd.Append(&RouteNodeAdded{}, TypeRouteNodeAdded)
	cmd.Append(&RouteNodeAdded{}, TypeRouteNodeAdded)
	cmd.Append(&RouteSegmentAdded{}, TypeRouteSegmentAdded)
	require.Equal(t, 3, cmd.Len())

	batch := cmd.Finalize()
	require.Len(t, batch, 3)
	assert.False(t, batch[0].Envelope().IsLastEventInCommand)
	assert.False(t, batch[1].Envelope().IsLastEventInCommand)
	assert.True(t, batch[2].Envelope().IsLastEventInCommand)

	for _, ev := range batch {
		assert.Equal(t, cmd.ID(), ev.Envelope().CommandID)
	}
}

func TestCommand_FinalizeEmpty(t *testing.T) {
	cmd := NewCommand(uuid.New(), "DoNothing", UUIDv7Generator{}, nil)
	assert.Nil(t, cmd.Finalize())
}

func TestUUIDv7Generator_Ordered(t *testing.T) {
	gen := UUIDv7Generator{}
	a := gen.New()
	b := gen.New()
	assert.NotEqual(t, a, b)
}

func TestName_CoversAllVariants(t *testing.T) {
	node := &model.RouteNode{}
	segment := &model.RouteSegment{}

	tests := []struct {
		n    Notification
		want string
	}{
		{DoNothing{}, "DoNothing"},
		{NodeAdded{Node: node}, "NodeAdded"},
		{NodeDeleted{Node: node}, "NodeDeleted"},
		{NodeLocationChanged{Node: node}, "NodeLocationChanged"},
		{SegmentAdded{Segment: segment}, "SegmentAdded"},
		{SegmentDeleted{Segment: segment}, "SegmentDeleted"},
		{SegmentLocationChanged{Segment: segment}, "SegmentLocationChanged"},
		{SegmentConnectivityChanged{Before: segment, After: segment}, "SegmentConnectivityChanged"},
		{ExistingSegmentSplit{Node: node}, "ExistingSegmentSplit"},
		{InvalidNodeOperation{Node: node}, "InvalidNodeOperation"},
		{InvalidSegmentOperation{Segment: segment}, "InvalidSegmentOperation"},
		{RollbackInvalidNode{Before: node}, "RollbackInvalidNode"},
		{RollbackInvalidSegment{Before: segment}, "RollbackInvalidSegment"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Name(tt.n))
	}
}
