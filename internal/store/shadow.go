package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/openftth/gdb-integrator/internal/model"
)

// Shadow rows are the integrator's last-known-good copy of each entity,
// stored as the edit-log wire payload so comparisons against incoming
// images are field-for-field.

// Node loads a shadow node, (nil, nil) when absent.
func (s *Store) Node(ctx context.Context, mrid uuid.UUID) (*model.RouteNode, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT payload FROM %s WHERE mrid = $1", shadowNodeTable), mrid).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read shadow node %s: %w", mrid, err)
	}
	return model.DecodeNode(payload)
}

// SaveNode upserts a shadow node.
func (s *Store) SaveNode(ctx context.Context, node *model.RouteNode) error {
	payload, err := model.EncodeNode(node)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (mrid, payload, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (mrid)
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`, shadowNodeTable),
		node.Mrid, payload)
	if err != nil {
		return fmt.Errorf("save shadow node %s: %w", node.Mrid, err)
	}
	return nil
}

// DeleteNode retires a shadow node. Missing rows are not an error.
func (s *Store) DeleteNode(ctx context.Context, mrid uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		"DELETE FROM %s WHERE mrid = $1", shadowNodeTable), mrid)
	if err != nil {
		return fmt.Errorf("delete shadow node %s: %w", mrid, err)
	}
	return nil
}

// Segment loads a shadow segment, (nil, nil) when absent.
func (s *Store) Segment(ctx context.Context, mrid uuid.UUID) (*model.RouteSegment, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT payload FROM %s WHERE mrid = $1", shadowSegmentTable), mrid).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read shadow segment %s: %w", mrid, err)
	}
	return model.DecodeSegment(payload)
}

// SaveSegment upserts a shadow segment.
func (s *Store) SaveSegment(ctx context.Context, segment *model.RouteSegment) error {
	payload, err := model.EncodeSegment(segment)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (mrid, payload, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (mrid)
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`, shadowSegmentTable),
		segment.Mrid, payload)
	if err != nil {
		return fmt.Errorf("save shadow segment %s: %w", segment.Mrid, err)
	}
	return nil
}

// DeleteSegment retires a shadow segment. Missing rows are not an error.
func (s *Store) DeleteSegment(ctx context.Context, mrid uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		"DELETE FROM %s WHERE mrid = $1", shadowSegmentTable), mrid)
	if err != nil {
		return fmt.Errorf("delete shadow segment %s: %w", mrid, err)
	}
	return nil
}
