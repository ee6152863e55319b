package reconcile

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/openftth/gdb-integrator/internal/model"
)

// ErrorCode categorizes why an edit was rejected or a reconciliation step
// could not complete. Geometry codes from the geom package pass through
// unchanged; the codes below cover topology and conflict cases.
type ErrorCode string

const (
	// ErrCodeNodeCoincides indicates a node placed on top of another node.
	ErrCodeNodeCoincides ErrorCode = "NODE_COINCIDES_WITH_NODE"

	// ErrCodeAmbiguousNodePlacement indicates a node placed where two or
	// more segments already cross.
	ErrCodeAmbiguousNodePlacement ErrorCode = "AMBIGUOUS_NODE_PLACEMENT"

	// ErrCodeAmbiguousSegmentAttach indicates a segment endpoint touching
	// two or more nodes or two or more crossing segments.
	ErrCodeAmbiguousSegmentAttach ErrorCode = "AMBIGUOUS_SEGMENT_ATTACH"

	// ErrCodeNodeHasAttachedSegments indicates a node deletion while
	// segment endpoints still coincide with it.
	ErrCodeNodeHasAttachedSegments ErrorCode = "NODE_HAS_ATTACHED_SEGMENTS"

	// ErrCodeDeleteRejected indicates the external validation service
	// vetoed a deletion.
	ErrCodeDeleteRejected ErrorCode = "DELETE_REJECTED_BY_VALIDATION"

	// ErrCodeNoSplitTarget indicates the split handler could not resolve
	// which stored segment a node is splitting.
	ErrCodeNoSplitTarget ErrorCode = "NO_SPLIT_TARGET"

	// ErrCodeUnexpectedSplitResult indicates the spatial store returned
	// something other than two lines for a split.
	ErrCodeUnexpectedSplitResult ErrorCode = "UNEXPECTED_SPLIT_RESULT"
)

// Error is a structured reconciliation error carrying the entity it
// concerns. Infrastructure faults (store or broker unavailable) are never
// wrapped in this type; those propagate as plain errors and halt the
// pipeline.
type Error struct {
	Code    ErrorCode
	Message string
	Kind    model.EntityKind
	Mrid    uuid.UUID
}

func (e *Error) Error() string {
	if e.Mrid != uuid.Nil {
		return fmt.Sprintf("%s: %s (%s %s)", e.Code, e.Message, e.Kind, e.Mrid)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CodeOf extracts the reconciliation error code from err, or empty when err
// is not a reconcile error.
func CodeOf(err error) ErrorCode {
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}
