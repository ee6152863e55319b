package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/openftth/gdb-integrator/internal/geom"
	"github.com/openftth/gdb-integrator/internal/model"
)

// RouteWriter writes to the live route network tables: synthesized nodes,
// split replacements, rollbacks and rejected-edit deletions. Operator edits
// arrive in these tables through the GIS tool, never through this code.
// It is a view over the Store, kept separate because the shadow tables
// claim the Store's own delete methods.
type RouteWriter struct {
	s *Store
}

// Routes returns the live-table write view.
func (s *Store) Routes() *RouteWriter {
	return &RouteWriter{s: s}
}

// InsertNode adds a node to the live network.
func (w *RouteWriter) InsertNode(ctx context.Context, node *model.RouteNode) error {
	args, err := nodeArgs(node)
	if err != nil {
		return err
	}
	_, err = w.s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (mrid, coord, marked_to_be_deleted, user_name, application_name,
			application_info, work_task_mrid, lifecycle_info, mapping_info, safety_info,
			naming_info, routenode_info)
		VALUES ($1, %s, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		liveNodeTable, w.s.geomFromJSON("$2")), args...)
	if err != nil {
		return fmt.Errorf("insert node %s: %w", node.Mrid, err)
	}
	return nil
}

// UpdateNode overwrites a live node, used by rollbacks.
func (w *RouteWriter) UpdateNode(ctx context.Context, node *model.RouteNode) error {
	args, err := nodeArgs(node)
	if err != nil {
		return err
	}
	res, err := w.s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET coord = %s, marked_to_be_deleted = $3, user_name = $4,
			application_name = $5, application_info = $6, work_task_mrid = $7,
			lifecycle_info = $8, mapping_info = $9, safety_info = $10,
			naming_info = $11, routenode_info = $12
		WHERE mrid = $1`, liveNodeTable, w.s.geomFromJSON("$2")), args...)
	if err != nil {
		return fmt.Errorf("update node %s: %w", node.Mrid, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update node %s: no such row", node.Mrid)
	}
	return nil
}

// DeleteNode removes a node from the live network.
func (w *RouteWriter) DeleteNode(ctx context.Context, mrid uuid.UUID) error {
	_, err := w.s.db.ExecContext(ctx, fmt.Sprintf(
		"DELETE FROM %s WHERE mrid = $1", liveNodeTable), mrid)
	if err != nil {
		return fmt.Errorf("delete node %s: %w", mrid, err)
	}
	return nil
}

// InsertSegment adds a segment to the live network.
func (w *RouteWriter) InsertSegment(ctx context.Context, segment *model.RouteSegment) error {
	args, err := segmentArgs(segment)
	if err != nil {
		return err
	}
	_, err = w.s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (mrid, coord, marked_to_be_deleted, user_name, application_name,
			application_info, work_task_mrid, lifecycle_info, mapping_info, safety_info,
			naming_info, routesegment_info)
		VALUES ($1, %s, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		liveSegmentTable, w.s.geomFromJSON("$2")), args...)
	if err != nil {
		return fmt.Errorf("insert segment %s: %w", segment.Mrid, err)
	}
	return nil
}

// UpdateSegment overwrites a live segment, used by rollbacks.
func (w *RouteWriter) UpdateSegment(ctx context.Context, segment *model.RouteSegment) error {
	args, err := segmentArgs(segment)
	if err != nil {
		return err
	}
	res, err := w.s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET coord = %s, marked_to_be_deleted = $3, user_name = $4,
			application_name = $5, application_info = $6, work_task_mrid = $7,
			lifecycle_info = $8, mapping_info = $9, safety_info = $10,
			naming_info = $11, routesegment_info = $12
		WHERE mrid = $1`, liveSegmentTable, w.s.geomFromJSON("$2")), args...)
	if err != nil {
		return fmt.Errorf("update segment %s: %w", segment.Mrid, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update segment %s: no such row", segment.Mrid)
	}
	return nil
}

// DeleteSegment removes a segment from the live network.
func (w *RouteWriter) DeleteSegment(ctx context.Context, mrid uuid.UUID) error {
	_, err := w.s.db.ExecContext(ctx, fmt.Sprintf(
		"DELETE FROM %s WHERE mrid = $1", liveSegmentTable), mrid)
	if err != nil {
		return fmt.Errorf("delete segment %s: %w", mrid, err)
	}
	return nil
}

func nodeArgs(node *model.RouteNode) ([]any, error) {
	lifecycle, err := marshalOrNil(node.Lifecycle)
	if err != nil {
		return nil, fmt.Errorf("encode node %s lifecycle: %w", node.Mrid, err)
	}
	mapping, err := marshalOrNil(node.Mapping)
	if err != nil {
		return nil, fmt.Errorf("encode node %s mapping: %w", node.Mrid, err)
	}
	safety, err := marshalOrNil(node.Safety)
	if err != nil {
		return nil, fmt.Errorf("encode node %s safety: %w", node.Mrid, err)
	}
	naming, err := marshalOrNil(node.Naming)
	if err != nil {
		return nil, fmt.Errorf("encode node %s naming: %w", node.Mrid, err)
	}
	info, err := marshalOrNil(node.NodeInfo)
	if err != nil {
		return nil, fmt.Errorf("encode node %s info: %w", node.Mrid, err)
	}
	return []any{
		node.Mrid, geom.FormatPoint(node.Coord), node.MarkedForDeletion,
		node.Username, node.ApplicationName, node.ApplicationInfo,
		nullableUUID(node.WorkTaskMrid), lifecycle, mapping, safety, naming, info,
	}, nil
}

func segmentArgs(segment *model.RouteSegment) ([]any, error) {
	lifecycle, err := marshalOrNil(segment.Lifecycle)
	if err != nil {
		return nil, fmt.Errorf("encode segment %s lifecycle: %w", segment.Mrid, err)
	}
	mapping, err := marshalOrNil(segment.Mapping)
	if err != nil {
		return nil, fmt.Errorf("encode segment %s mapping: %w", segment.Mrid, err)
	}
	safety, err := marshalOrNil(segment.Safety)
	if err != nil {
		return nil, fmt.Errorf("encode segment %s safety: %w", segment.Mrid, err)
	}
	naming, err := marshalOrNil(segment.Naming)
	if err != nil {
		return nil, fmt.Errorf("encode segment %s naming: %w", segment.Mrid, err)
	}
	info, err := marshalOrNil(segment.SegmentInfo)
	if err != nil {
		return nil, fmt.Errorf("encode segment %s info: %w", segment.Mrid, err)
	}
	return []any{
		segment.Mrid, geom.FormatLine(segment.Coord), segment.MarkedForDeletion,
		segment.Username, segment.ApplicationName, segment.ApplicationInfo,
		nullableUUID(segment.WorkTaskMrid), lifecycle, mapping, safety, naming, info,
	}, nil
}
