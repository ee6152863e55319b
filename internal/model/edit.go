package model

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/openftth/gdb-integrator/internal/geom"
)

// EditKind makes the three change-log cases exhaustive: a row with no
// before image is a creation, one with no after image is a hard deletion,
// and one with both is an update (move, mark-for-deletion or attribute
// change).
type EditKind int

const (
	EditCreated EditKind = iota + 1
	EditUpdated
	EditDeleted
)

// String returns the edit kind's log-friendly name.
func (k EditKind) String() string {
	switch k {
	case EditCreated:
		return "created"
	case EditUpdated:
		return "updated"
	case EditDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("EditKind(%d)", int(k))
	}
}

// EditOperation is one typed row of the geodatabase change log. It is
// immutable once parsed; the poller creates it and the dispatcher consumes
// it exactly once per delivery.
type EditOperation struct {
	SequenceNumber int64
	EventID        uuid.UUID
	Kind           EntityKind
	Edit           EditKind

	// Exactly one pair is populated, matching Kind.
	NodeBefore    *RouteNode
	NodeAfter     *RouteNode
	SegmentBefore *RouteSegment
	SegmentAfter  *RouteSegment
}

// editPayload is the wire shape of a serialized entity in the change log's
// before/after columns. Geometry is a GeoJSON geometry object.
type editPayload struct {
	Mrid              uuid.UUID       `json:"mrid"`
	Coord             json.RawMessage `json:"coord"`
	Username          string          `json:"user_name"`
	ApplicationName   string          `json:"application_name"`
	ApplicationInfo   string          `json:"application_info"`
	WorkTaskMrid      uuid.UUID       `json:"work_task_mrid"`
	MarkedForDeletion bool            `json:"marked_to_be_deleted"`

	Lifecycle   *LifecycleInfo    `json:"lifecycle_info"`
	Mapping     *MappingInfo      `json:"mapping_info"`
	Safety      *SafetyInfo       `json:"safety_info"`
	Naming      *NamingInfo       `json:"naming_info"`
	NodeInfo    *RouteNodeInfo    `json:"routenode_info"`
	SegmentInfo *RouteSegmentInfo `json:"routesegment_info"`
}

// ParseEditOperation turns one raw change-log row into a typed edit
// operation. before and after are the row's nullable JSON images; nil means
// the column was NULL. The function is pure: it never consults any store.
func ParseEditOperation(seq int64, eventID uuid.UUID, kind EntityKind, before, after []byte) (EditOperation, error) {
	op := EditOperation{
		SequenceNumber: seq,
		EventID:        eventID,
		Kind:           kind,
	}

	switch {
	case before == nil && after == nil:
		return EditOperation{}, fmt.Errorf("edit row %d: both before and after are null", seq)
	case before == nil:
		op.Edit = EditCreated
	case after == nil:
		op.Edit = EditDeleted
	default:
		op.Edit = EditUpdated
	}

	switch kind {
	case KindRouteNode:
		var err error
		if op.NodeBefore, err = parseNodePayload(before); err != nil {
			return EditOperation{}, fmt.Errorf("edit row %d before: %w", seq, err)
		}
		if op.NodeAfter, err = parseNodePayload(after); err != nil {
			return EditOperation{}, fmt.Errorf("edit row %d after: %w", seq, err)
		}
	case KindRouteSegment:
		var err error
		if op.SegmentBefore, err = parseSegmentPayload(before); err != nil {
			return EditOperation{}, fmt.Errorf("edit row %d before: %w", seq, err)
		}
		if op.SegmentAfter, err = parseSegmentPayload(after); err != nil {
			return EditOperation{}, fmt.Errorf("edit row %d after: %w", seq, err)
		}
	default:
		return EditOperation{}, fmt.Errorf("edit row %d: unknown entity kind %q", seq, kind)
	}

	return op, nil
}

func parseNodePayload(data []byte) (*RouteNode, error) {
	if data == nil {
		return nil, nil
	}
	var p editPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode node payload: %w", err)
	}
	coord, err := geom.ParsePoint(p.Coord)
	if err != nil {
		return nil, err
	}
	return &RouteNode{
		Mrid:              p.Mrid,
		Coord:             coord,
		Username:          p.Username,
		ApplicationName:   p.ApplicationName,
		ApplicationInfo:   p.ApplicationInfo,
		WorkTaskMrid:      p.WorkTaskMrid,
		MarkedForDeletion: p.MarkedForDeletion,
		Lifecycle:         p.Lifecycle,
		Mapping:           p.Mapping,
		Safety:            p.Safety,
		Naming:            p.Naming,
		NodeInfo:          p.NodeInfo,
	}, nil
}

func parseSegmentPayload(data []byte) (*RouteSegment, error) {
	if data == nil {
		return nil, nil
	}
	var p editPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode segment payload: %w", err)
	}
	coord, err := geom.ParseLine(p.Coord)
	if err != nil {
		return nil, err
	}
	return &RouteSegment{
		Mrid:              p.Mrid,
		Coord:             coord,
		Username:          p.Username,
		ApplicationName:   p.ApplicationName,
		ApplicationInfo:   p.ApplicationInfo,
		WorkTaskMrid:      p.WorkTaskMrid,
		MarkedForDeletion: p.MarkedForDeletion,
		Lifecycle:         p.Lifecycle,
		Mapping:           p.Mapping,
		Safety:            p.Safety,
		Naming:            p.Naming,
		SegmentInfo:       p.SegmentInfo,
	}, nil
}
