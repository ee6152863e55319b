// Package events defines the two event vocabularies of the integrator: the
// internal Notification sum type produced by the classifiers, and the
// domain events published to the message bus.
package events

import (
	"github.com/openftth/gdb-integrator/internal/model"
)

// Notification is the tagged union of every outcome a classifier can
// produce for one edit operation. The dispatcher handles the full set in a
// single exhaustive switch, so the event sequence for one edit is auditable
// as one ordered list.
//
// Variants that name a rollback or an invalid operation are terminal: no
// further notifications follow them for the same edit.
type Notification interface {
	notification()
}

// DoNothing means the edit needs no reconciliation: it was self-authored,
// a duplicate delivery, or targets an already-retired entity.
type DoNothing struct {
	Reason string
}

// NodeAdded reports a node newly part of the network. Synthesized is true
// when the integrator invented the node itself (e.g. at a lonely segment
// end) and must insert it into the live store.
type NodeAdded struct {
	Node        *model.RouteNode
	Synthesized bool
}

// NodeDeleted reports a legal node deletion.
type NodeDeleted struct {
	Node *model.RouteNode
}

// NodeLocationChanged reports a node move that kept the topology intact.
type NodeLocationChanged struct {
	Node *model.RouteNode
}

// SegmentAdded reports a segment newly part of the network. Split
// replacements are emitted by the split handler and never use this variant.
type SegmentAdded struct {
	Segment *model.RouteSegment
}

// SegmentDeleted reports a legal mark-for-deletion of a segment.
type SegmentDeleted struct {
	Segment *model.RouteSegment
}

// SegmentLocationChanged reports a segment geometry change whose endpoints
// still resolve to the same two nodes.
type SegmentLocationChanged struct {
	Segment *model.RouteSegment
}

// SegmentConnectivityChanged reports an edit that re-wired which nodes a
// segment connects. The dispatcher replaces the segment with a clone and
// retires the original rather than mutating it in place.
type SegmentConnectivityChanged struct {
	Before *model.RouteSegment
	After  *model.RouteSegment
}

// ExistingSegmentSplit instructs the split handler to split the stored
// segment that Node lands on. Target names the segment to split when the
// classifier already knows it (a node move onto a specific segment).
// TriggeredBy carries the digitized segment that led to the discovery,
// when there is one, to disambiguate which stored segment is actually
// being crossed. With neither hint the handler falls back to a geometric
// tie-break among the segments at the node.
type ExistingSegmentSplit struct {
	Node        *model.RouteNode
	Target      *model.RouteSegment
	TriggeredBy *model.RouteSegment
}

// InvalidNodeOperation rejects a freshly digitized node; the dispatcher
// deletes it from the live store.
type InvalidNodeOperation struct {
	Node    *model.RouteNode
	Code    string
	Message string
}

// InvalidSegmentOperation rejects a freshly digitized segment; the
// dispatcher deletes it from the live store.
type InvalidSegmentOperation struct {
	Segment *model.RouteSegment
	Code    string
	Message string
}

// RollbackInvalidNode rejects a node update by restoring Before in both the
// live and shadow stores.
type RollbackInvalidNode struct {
	Before  *model.RouteNode
	Code    string
	Message string
}

// RollbackInvalidSegment rejects a segment update by restoring Before in
// both the live and shadow stores.
type RollbackInvalidSegment struct {
	Before  *model.RouteSegment
	Code    string
	Message string
}

func (DoNothing) notification()                  {}
func (NodeAdded) notification()                  {}
func (NodeDeleted) notification()                {}
func (NodeLocationChanged) notification()        {}
func (SegmentAdded) notification()               {}
func (SegmentDeleted) notification()             {}
func (SegmentLocationChanged) notification()     {}
func (SegmentConnectivityChanged) notification() {}
func (ExistingSegmentSplit) notification()       {}
func (InvalidNodeOperation) notification()       {}
func (InvalidSegmentOperation) notification()    {}
func (RollbackInvalidNode) notification()        {}
func (RollbackInvalidSegment) notification()     {}

// Name returns the notification's wire name, used as CommandType on
// published events and in trace output.
func Name(n Notification) string {
	switch n.(type) {
	case DoNothing:
		return "DoNothing"
	case NodeAdded:
		return "NodeAdded"
	case NodeDeleted:
		return "NodeDeleted"
	case NodeLocationChanged:
		return "NodeLocationChanged"
	case SegmentAdded:
		return "SegmentAdded"
	case SegmentDeleted:
		return "SegmentDeleted"
	case SegmentLocationChanged:
		return "SegmentLocationChanged"
	case SegmentConnectivityChanged:
		return "SegmentConnectivityChanged"
	case ExistingSegmentSplit:
		return "ExistingSegmentSplit"
	case InvalidNodeOperation:
		return "InvalidNodeOperation"
	case InvalidSegmentOperation:
		return "InvalidSegmentOperation"
	case RollbackInvalidNode:
		return "RollbackInvalidNode"
	case RollbackInvalidSegment:
		return "RollbackInvalidSegment"
	default:
		return "Unknown"
	}
}
