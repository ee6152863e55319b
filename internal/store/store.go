package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/openftth/gdb-integrator/internal/geom"
	"github.com/openftth/gdb-integrator/internal/model"
)

//go:embed schema.sql
var schemaSQL string

const (
	liveNodeTable      = "route_network.route_node"
	liveSegmentTable   = "route_network.route_segment"
	editLogTable       = "route_network_integrator.edit_log"
	checkpointTable    = "route_network_integrator.checkpoint"
	shadowNodeTable    = "route_network_integrator.shadow_route_node"
	shadowSegmentTable = "route_network_integrator.shadow_route_segment"

	// The checkpoint table holds exactly one row.
	checkpointRowID = 1
)

// Store wraps one Postgres connection pool and the configured tolerance
// used by every spatial predicate.
type Store struct {
	db        *sql.DB
	tolerance float64
	srid      int
}

// Open connects to Postgres and verifies the connection. tolerance is the
// coincidence distance in metres; srid is the spatial reference of the
// route network tables.
func Open(dsn string, tolerance float64, srid int) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return &Store{db: db, tolerance: tolerance, srid: srid}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the pool for tooling; prefer the typed methods.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate applies the embedded schema. Idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// geomFromJSON renders the SQL expression binding a GeoJSON placeholder to
// a typed geometry in the store's SRID.
func (s *Store) geomFromJSON(placeholder string) string {
	return fmt.Sprintf("ST_SetSRID(ST_GeomFromGeoJSON(%s), %d)", placeholder, s.srid)
}

const nodeColumns = `mrid, ST_AsGeoJSON(coord), marked_to_be_deleted,
	COALESCE(user_name, ''), COALESCE(application_name, ''), COALESCE(application_info, ''),
	COALESCE(work_task_mrid, '00000000-0000-0000-0000-000000000000'::uuid),
	lifecycle_info, mapping_info, safety_info, naming_info, routenode_info`

const segmentColumns = `mrid, ST_AsGeoJSON(coord), marked_to_be_deleted,
	COALESCE(user_name, ''), COALESCE(application_name, ''), COALESCE(application_info, ''),
	COALESCE(work_task_mrid, '00000000-0000-0000-0000-000000000000'::uuid),
	lifecycle_info, mapping_info, safety_info, naming_info, routesegment_info`

// scanNodes drains rows produced by a nodeColumns select.
func scanNodes(rows *sql.Rows) ([]*model.RouteNode, error) {
	defer rows.Close()

	var out []*model.RouteNode
	for rows.Next() {
		var n model.RouteNode
		var coordJSON []byte
		var lifecycle, mapping, safety, naming, info []byte
		if err := rows.Scan(&n.Mrid, &coordJSON, &n.MarkedForDeletion,
			&n.Username, &n.ApplicationName, &n.ApplicationInfo, &n.WorkTaskMrid,
			&lifecycle, &mapping, &safety, &naming, &info); err != nil {
			return nil, fmt.Errorf("scan route node: %w", err)
		}
		coord, err := geom.ParsePoint(coordJSON)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", n.Mrid, err)
		}
		n.Coord = coord
		if err := unmarshalInto(lifecycle, &n.Lifecycle); err != nil {
			return nil, fmt.Errorf("node %s lifecycle: %w", n.Mrid, err)
		}
		if err := unmarshalInto(mapping, &n.Mapping); err != nil {
			return nil, fmt.Errorf("node %s mapping: %w", n.Mrid, err)
		}
		if err := unmarshalInto(safety, &n.Safety); err != nil {
			return nil, fmt.Errorf("node %s safety: %w", n.Mrid, err)
		}
		if err := unmarshalInto(naming, &n.Naming); err != nil {
			return nil, fmt.Errorf("node %s naming: %w", n.Mrid, err)
		}
		if err := unmarshalInto(info, &n.NodeInfo); err != nil {
			return nil, fmt.Errorf("node %s info: %w", n.Mrid, err)
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

// scanSegments drains rows produced by a segmentColumns select.
func scanSegments(rows *sql.Rows) ([]*model.RouteSegment, error) {
	defer rows.Close()

	var out []*model.RouteSegment
	for rows.Next() {
		var seg model.RouteSegment
		var coordJSON []byte
		var lifecycle, mapping, safety, naming, info []byte
		if err := rows.Scan(&seg.Mrid, &coordJSON, &seg.MarkedForDeletion,
			&seg.Username, &seg.ApplicationName, &seg.ApplicationInfo, &seg.WorkTaskMrid,
			&lifecycle, &mapping, &safety, &naming, &info); err != nil {
			return nil, fmt.Errorf("scan route segment: %w", err)
		}
		coord, err := geom.ParseLine(coordJSON)
		if err != nil {
			return nil, fmt.Errorf("segment %s: %w", seg.Mrid, err)
		}
		seg.Coord = coord
		if err := unmarshalInto(lifecycle, &seg.Lifecycle); err != nil {
			return nil, fmt.Errorf("segment %s lifecycle: %w", seg.Mrid, err)
		}
		if err := unmarshalInto(mapping, &seg.Mapping); err != nil {
			return nil, fmt.Errorf("segment %s mapping: %w", seg.Mrid, err)
		}
		if err := unmarshalInto(safety, &seg.Safety); err != nil {
			return nil, fmt.Errorf("segment %s safety: %w", seg.Mrid, err)
		}
		if err := unmarshalInto(naming, &seg.Naming); err != nil {
			return nil, fmt.Errorf("segment %s naming: %w", seg.Mrid, err)
		}
		if err := unmarshalInto(info, &seg.SegmentInfo); err != nil {
			return nil, fmt.Errorf("segment %s info: %w", seg.Mrid, err)
		}
		out = append(out, &seg)
	}
	return out, rows.Err()
}

func unmarshalInto[T any](data []byte, dst **T) error {
	if len(data) == 0 {
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*dst = &v
	return nil
}

func nullableUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}

func marshalOrNil[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
