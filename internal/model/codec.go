package model

import (
	"encoding/json"
	"fmt"

	"github.com/openftth/gdb-integrator/internal/geom"
)

// EncodeNode serializes a node to the same wire shape the edit log uses,
// so shadow rows and change-log images stay comparable.
func EncodeNode(n *RouteNode) ([]byte, error) {
	p := editPayload{
		Mrid:              n.Mrid,
		Coord:             geom.FormatPoint(n.Coord),
		Username:          n.Username,
		ApplicationName:   n.ApplicationName,
		ApplicationInfo:   n.ApplicationInfo,
		WorkTaskMrid:      n.WorkTaskMrid,
		MarkedForDeletion: n.MarkedForDeletion,
		Lifecycle:         n.Lifecycle,
		Mapping:           n.Mapping,
		Safety:            n.Safety,
		Naming:            n.Naming,
		NodeInfo:          n.NodeInfo,
	}
	out, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode node %s: %w", n.Mrid, err)
	}
	return out, nil
}

// DecodeNode is the inverse of EncodeNode.
func DecodeNode(data []byte) (*RouteNode, error) {
	return parseNodePayload(data)
}

// EncodeSegment serializes a segment to the edit-log wire shape.
func EncodeSegment(s *RouteSegment) ([]byte, error) {
	p := editPayload{
		Mrid:              s.Mrid,
		Coord:             geom.FormatLine(s.Coord),
		Username:          s.Username,
		ApplicationName:   s.ApplicationName,
		ApplicationInfo:   s.ApplicationInfo,
		WorkTaskMrid:      s.WorkTaskMrid,
		MarkedForDeletion: s.MarkedForDeletion,
		Lifecycle:         s.Lifecycle,
		Mapping:           s.Mapping,
		Safety:            s.Safety,
		Naming:            s.Naming,
		SegmentInfo:       s.SegmentInfo,
	}
	out, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode segment %s: %w", s.Mrid, err)
	}
	return out, nil
}

// DecodeSegment is the inverse of EncodeSegment.
func DecodeSegment(data []byte) (*RouteSegment, error) {
	return parseSegmentPayload(data)
}
