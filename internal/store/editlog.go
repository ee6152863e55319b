package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/openftth/gdb-integrator/internal/model"
)

// EditsAfter reads up to limit edit-log rows with seq > after, oldest
// first, parsed into typed edit operations.
func (s *Store) EditsAfter(ctx context.Context, after int64, limit int) ([]model.EditOperation, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT seq, event_id, entity_type, before, after
		FROM %s
		WHERE seq > $1
		ORDER BY seq ASC
		LIMIT $2`, editLogTable), after, limit)
	if err != nil {
		return nil, fmt.Errorf("query edit log: %w", err)
	}
	defer rows.Close()

	var ops []model.EditOperation
	for rows.Next() {
		var (
			seq        int64
			eventID    uuid.UUID
			entityType string
			before     []byte
			afterImg   []byte
		)
		if err := rows.Scan(&seq, &eventID, &entityType, &before, &afterImg); err != nil {
			return nil, fmt.Errorf("scan edit row: %w", err)
		}
		op, err := model.ParseEditOperation(seq, eventID, model.EntityKind(entityType), before, afterImg)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// LatestSequence returns the newest edit-log sequence number, zero for an
// empty log.
func (s *Store) LatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT MAX(seq) FROM %s", editLogTable)).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("query latest edit seq: %w", err)
	}
	return seq.Int64, nil
}

// Checkpoint returns the last committed sequence number, zero on first run.
func (s *Store) Checkpoint(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT latest_seq_no FROM %s WHERE id = $1", checkpointTable), checkpointRowID).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read checkpoint: %w", err)
	}
	return seq, nil
}

// SetCheckpoint upserts the committed sequence number. Called by the
// dispatcher only after an edit's full notification chain is applied and
// published.
func (s *Store) SetCheckpoint(ctx context.Context, seq int64) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, latest_seq_no)
		VALUES ($1, $2)
		ON CONFLICT (id)
		DO UPDATE SET latest_seq_no = EXCLUDED.latest_seq_no`, checkpointTable),
		checkpointRowID, seq)
	if err != nil {
		return fmt.Errorf("write checkpoint %d: %w", seq, err)
	}
	return nil
}

// AppendEdit inserts an edit-log row. The production log is written by the
// geodatabase's trigger; this writer exists for tooling and tests.
func (s *Store) AppendEdit(ctx context.Context, eventID uuid.UUID, kind model.EntityKind, before, after []byte) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (event_id, entity_type, before, after)
		VALUES ($1, $2, $3, $4)
		RETURNING seq`, editLogTable),
		eventID, string(kind), before, after).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("append edit row: %w", err)
	}
	return seq, nil
}
