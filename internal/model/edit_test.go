package model

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openftth/gdb-integrator/internal/geom"
)

const nodePayload = `{
	"mrid": "11111111-1111-1111-1111-111111111111",
	"coord": {"type":"Point","coordinates":[565000,6200000]},
	"user_name": "tbe",
	"application_name": "QGIS",
	"application_info": "",
	"work_task_mrid": "22222222-2222-2222-2222-222222222222",
	"marked_to_be_deleted": false,
	"lifecycle_info": null,
	"mapping_info": null,
	"safety_info": null,
	"naming_info": null,
	"routenode_info": {"kind": "CabinetBig", "function": "FlexPoint"},
	"routesegment_info": null
}`

const segmentPayload = `{
	"mrid": "33333333-3333-3333-3333-333333333333",
	"coord": {"type":"LineString","coordinates":[[0,0],[10,0]]},
	"user_name": "tbe",
	"application_name": "QGIS",
	"marked_to_be_deleted": false,
	"routesegment_info": {"kind": "Underground", "width": "40 mm"}
}`

func TestParseEditOperation_NodeCreated(t *testing.T) {
	eventID := uuid.MustParse("99999999-9999-9999-9999-999999999999")

	op, err := ParseEditOperation(7, eventID, KindRouteNode, nil, []byte(nodePayload))
	require.NoError(t, err)

	assert.Equal(t, int64(7), op.SequenceNumber)
	assert.Equal(t, eventID, op.EventID)
	assert.Equal(t, KindRouteNode, op.Kind)
	assert.Equal(t, EditCreated, op.Edit)
	assert.Nil(t, op.NodeBefore)

	require.NotNil(t, op.NodeAfter)
	assert.Equal(t, uuid.MustParse("11111111-1111-1111-1111-111111111111"), op.NodeAfter.Mrid)
	assert.Equal(t, geom.Point{X: 565000, Y: 6200000}, op.NodeAfter.Coord)
	assert.Equal(t, "tbe", op.NodeAfter.Username)
	assert.Equal(t, "QGIS", op.NodeAfter.ApplicationName)
	require.NotNil(t, op.NodeAfter.NodeInfo)
	assert.Equal(t, "CabinetBig", op.NodeAfter.NodeInfo.Kind)
}

func TestParseEditOperation_SegmentUpdated(t *testing.T) {
	op, err := ParseEditOperation(8, uuid.New(), KindRouteSegment, []byte(segmentPayload), []byte(segmentPayload))
	require.NoError(t, err)

	assert.Equal(t, EditUpdated, op.Edit)
	require.NotNil(t, op.SegmentBefore)
	require.NotNil(t, op.SegmentAfter)
	assert.Equal(t, geom.Line{{X: 0, Y: 0}, {X: 10, Y: 0}}, op.SegmentAfter.Coord)
	require.NotNil(t, op.SegmentAfter.SegmentInfo)
	assert.Equal(t, "Underground", op.SegmentAfter.SegmentInfo.Kind)
}

func TestParseEditOperation_Deleted(t *testing.T) {
	op, err := ParseEditOperation(9, uuid.New(), KindRouteSegment, []byte(segmentPayload), nil)
	require.NoError(t, err)

	assert.Equal(t, EditDeleted, op.Edit)
	require.NotNil(t, op.SegmentBefore)
	assert.Nil(t, op.SegmentAfter)
}

func TestParseEditOperation_Rejects(t *testing.T) {
	tests := []struct {
		name          string
		kind          EntityKind
		before, after []byte
	}{
		{"both images null", KindRouteNode, nil, nil},
		{"unknown kind", EntityKind("route_pipe"), nil, []byte(nodePayload)},
		{"malformed payload", KindRouteNode, nil, []byte(`{`)},
		{"node with line geometry", KindRouteNode, nil, []byte(segmentPayload)},
		{"segment with point geometry", KindRouteSegment, nil, []byte(nodePayload)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEditOperation(1, uuid.New(), tt.kind, tt.before, tt.after)
			assert.Error(t, err)
		})
	}
}

func TestEditKind_String(t *testing.T) {
	assert.Equal(t, "created", EditCreated.String())
	assert.Equal(t, "updated", EditUpdated.String())
	assert.Equal(t, "deleted", EditDeleted.String())
	assert.Equal(t, "EditKind(0)", EditKind(0).String())
}
