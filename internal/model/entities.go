// Package model defines the route network's persistent entities and the
// edit operations read from the geodatabase change log. Entities are plain
// value records; behavior lives in the reconcile package.
package model

import (
	"github.com/google/uuid"

	"github.com/openftth/gdb-integrator/internal/geom"
)

// EntityKind discriminates the two entity types carried by the edit log.
type EntityKind string

const (
	KindRouteNode    EntityKind = "RouteNode"
	KindRouteSegment EntityKind = "RouteSegment"
)

// LifecycleInfo describes the deployment state of a node or segment.
type LifecycleInfo struct {
	DeploymentState string `json:"deployment_state,omitempty"`
	InstallationDate string `json:"installation_date,omitempty"`
	RemovalDate      string `json:"removal_date,omitempty"`
}

// MappingInfo describes how and how accurately the geometry was surveyed.
type MappingInfo struct {
	Method             string `json:"method,omitempty"`
	VerticalAccuracy   string `json:"vertical_accuracy,omitempty"`
	HorizontalAccuracy string `json:"horizontal_accuracy,omitempty"`
	SourceInfo         string `json:"source_info,omitempty"`
	SurveyDate         string `json:"survey_date,omitempty"`
}

// SafetyInfo carries safety classification for field work.
type SafetyInfo struct {
	Classification string `json:"classification,omitempty"`
	Remark         string `json:"remark,omitempty"`
}

// NamingInfo carries the operator-visible name of an entity.
type NamingInfo struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// RouteNodeInfo describes what kind of junction or installation a node is.
type RouteNodeInfo struct {
	Function string `json:"function,omitempty"`
	Kind     string `json:"kind,omitempty"`
}

// RouteSegmentInfo describes the physical run a segment represents.
type RouteSegmentInfo struct {
	Kind   string `json:"kind,omitempty"`
	Width  string `json:"width,omitempty"`
	Height string `json:"height,omitempty"`
}

// RouteNode is a vertex of the route network graph: a junction, well,
// cabinet or other equipment location. Two committed nodes never share a
// coordinate.
type RouteNode struct {
	Mrid              uuid.UUID
	Coord             geom.Point
	Username          string
	ApplicationName   string
	ApplicationInfo   string
	WorkTaskMrid      uuid.UUID
	MarkedForDeletion bool

	Lifecycle *LifecycleInfo
	Mapping   *MappingInfo
	Safety    *SafetyInfo
	Naming    *NamingInfo
	NodeInfo  *RouteNodeInfo
}

// Clone returns a deep copy of the node.
func (n *RouteNode) Clone() *RouteNode {
	if n == nil {
		return nil
	}
	out := *n
	out.Lifecycle = cloneLifecycle(n.Lifecycle)
	out.Mapping = cloneMapping(n.Mapping)
	out.Safety = cloneSafety(n.Safety)
	out.Naming = cloneNaming(n.Naming)
	if n.NodeInfo != nil {
		info := *n.NodeInfo
		out.NodeInfo = &info
	}
	return &out
}

// SameState reports whether two node records are identical in every field
// the shadow table tracks. Used for duplicate-delivery detection.
func (n *RouteNode) SameState(other *RouteNode) bool {
	if n == nil || other == nil {
		return n == other
	}
	return n.Mrid == other.Mrid &&
		n.Coord.Equals(other.Coord) &&
		n.MarkedForDeletion == other.MarkedForDeletion
}

// RouteSegment is an edge of the route network graph: a cable or duct run
// between two nodes. Each endpoint coincides with at most one node.
type RouteSegment struct {
	Mrid              uuid.UUID
	Coord             geom.Line
	Username          string
	ApplicationName   string
	ApplicationInfo   string
	WorkTaskMrid      uuid.UUID
	MarkedForDeletion bool

	Lifecycle   *LifecycleInfo
	Mapping     *MappingInfo
	Safety      *SafetyInfo
	Naming      *NamingInfo
	SegmentInfo *RouteSegmentInfo
}

// Clone returns a deep copy of the segment.
func (s *RouteSegment) Clone() *RouteSegment {
	if s == nil {
		return nil
	}
	out := *s
	out.Coord = s.Coord.Clone()
	out.Lifecycle = cloneLifecycle(s.Lifecycle)
	out.Mapping = cloneMapping(s.Mapping)
	out.Safety = cloneSafety(s.Safety)
	out.Naming = cloneNaming(s.Naming)
	if s.SegmentInfo != nil {
		info := *s.SegmentInfo
		out.SegmentInfo = &info
	}
	return &out
}

// SameState reports whether two segment records are identical in every
// field the shadow table tracks.
func (s *RouteSegment) SameState(other *RouteSegment) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.Mrid == other.Mrid &&
		s.Coord.Equals(other.Coord) &&
		s.MarkedForDeletion == other.MarkedForDeletion
}

// CopyAttributesTo transfers every attribute bundle and provenance field
// from s onto dst, leaving dst's identity and geometry untouched. Used when
// a split replaces one segment with two that must inherit its metadata.
func (s *RouteSegment) CopyAttributesTo(dst *RouteSegment) {
	dst.Username = s.Username
	dst.ApplicationName = s.ApplicationName
	dst.ApplicationInfo = s.ApplicationInfo
	dst.WorkTaskMrid = s.WorkTaskMrid
	dst.Lifecycle = cloneLifecycle(s.Lifecycle)
	dst.Mapping = cloneMapping(s.Mapping)
	dst.Safety = cloneSafety(s.Safety)
	dst.Naming = cloneNaming(s.Naming)
	if s.SegmentInfo != nil {
		info := *s.SegmentInfo
		dst.SegmentInfo = &info
	}
}

func cloneLifecycle(in *LifecycleInfo) *LifecycleInfo {
	if in == nil {
		return nil
	}
	out := *in
	return &out
}

func cloneMapping(in *MappingInfo) *MappingInfo {
	if in == nil {
		return nil
	}
	out := *in
	return &out
}

func cloneSafety(in *SafetyInfo) *SafetyInfo {
	if in == nil {
		return nil
	}
	out := *in
	return &out
}

func cloneNaming(in *NamingInfo) *NamingInfo {
	if in == nil {
		return nil
	}
	out := *in
	return &out
}
