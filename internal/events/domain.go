package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/openftth/gdb-integrator/internal/geom"
)

// Event type names as they appear on the wire.
const (
	TypeRouteNodeAdded                = "RouteNodeAdded"
	TypeRouteNodeMarkedForDeletion    = "RouteNodeMarkedForDeletion"
	TypeRouteNodeGeometryModified     = "RouteNodeGeometryModified"
	TypeRouteSegmentAdded             = "RouteSegmentAdded"
	TypeRouteSegmentMarkedForDeletion = "RouteSegmentMarkedForDeletion"
	TypeRouteSegmentGeometryModified  = "RouteSegmentGeometryModified"
	TypeRouteSegmentRemoved           = "RouteSegmentRemoved"
)

// Envelope carries the fields shared by every published domain event.
// CommandId groups all events caused by one edit operation; the final event
// of the group has IsLastEventInCommand set so downstream consumers can
// detect the end of an atomic batch.
type Envelope struct {
	EventType            string    `json:"eventType"`
	EventID              uuid.UUID `json:"eventId"`
	EventTimestamp       time.Time `json:"eventTimestamp"`
	CommandID            uuid.UUID `json:"cmdId"`
	CommandType          string    `json:"cmdType"`
	IsLastEventInCommand bool      `json:"isLastEventInCmd"`
}

// DomainEvent is implemented by every published event struct. The envelope
// accessor lets the command builder stamp ids and the last-event marker
// without knowing the concrete type.
type DomainEvent interface {
	Envelope() *Envelope
}

// RouteNodeAdded announces a node new to the network, whether digitized by
// an operator or synthesized by the integrator.
type RouteNodeAdded struct {
	Env      Envelope   `json:"envelope"`
	NodeID   uuid.UUID  `json:"nodeId"`
	Geometry geom.Point `json:"geometry"`
}

// RouteNodeMarkedForDeletion announces a legal node deletion.
type RouteNodeMarkedForDeletion struct {
	Env    Envelope  `json:"envelope"`
	NodeID uuid.UUID `json:"nodeId"`
}

// RouteNodeGeometryModified announces a node move.
type RouteNodeGeometryModified struct {
	Env      Envelope   `json:"envelope"`
	NodeID   uuid.UUID  `json:"nodeId"`
	Geometry geom.Point `json:"geometry"`
}

// RouteSegmentAdded announces a segment new to the network, carrying the
// nodes its endpoints resolve to.
type RouteSegmentAdded struct {
	Env        Envelope  `json:"envelope"`
	SegmentID  uuid.UUID `json:"segmentId"`
	FromNodeID uuid.UUID `json:"fromNodeId"`
	ToNodeID   uuid.UUID `json:"toNodeId"`
	Geometry   geom.Line `json:"geometry"`
}

// RouteSegmentMarkedForDeletion announces a legal segment deletion.
type RouteSegmentMarkedForDeletion struct {
	Env       Envelope  `json:"envelope"`
	SegmentID uuid.UUID `json:"segmentId"`
}

// RouteSegmentGeometryModified announces a segment geometry change that
// kept its connectivity.
type RouteSegmentGeometryModified struct {
	Env       Envelope  `json:"envelope"`
	SegmentID uuid.UUID `json:"segmentId"`
	Geometry  geom.Line `json:"geometry"`
}

// RouteSegmentRemoved announces that a segment ceased to exist, listing the
// segments that replaced it (two for a split, one for a connectivity
// rewrite) so consumers can re-point references.
type RouteSegmentRemoved struct {
	Env                Envelope    `json:"envelope"`
	SegmentID          uuid.UUID   `json:"segmentId"`
	ReplacedBySegments []uuid.UUID `json:"replacedBySegments"`
}

func (e *RouteNodeAdded) Envelope() *Envelope                { return &e.Env }
func (e *RouteNodeMarkedForDeletion) Envelope() *Envelope    { return &e.Env }
func (e *RouteNodeGeometryModified) Envelope() *Envelope     { return &e.Env }
func (e *RouteSegmentAdded) Envelope() *Envelope             { return &e.Env }
func (e *RouteSegmentMarkedForDeletion) Envelope() *Envelope { return &e.Env }
func (e *RouteSegmentGeometryModified) Envelope() *Envelope  { return &e.Env }
func (e *RouteSegmentRemoved) Envelope() *Envelope           { return &e.Env }
