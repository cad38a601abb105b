package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetCheckpoint returns the stored watermark for a discovery source, or nil
// when the source has never been checkpointed.
func (s *Store) GetCheckpoint(ctx context.Context, sourceID string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT source_id, watermark, updated_at FROM checkpoints WHERE source_id = ?`,
		sourceID,
	)
	var (
		cp           Checkpoint
		watermarkRaw string
		updatedRaw   string
	)
	err := row.Scan(&cp.SourceID, &watermarkRaw, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	if watermark, err := parseTimeString(watermarkRaw); err == nil {
		cp.Watermark = watermark
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		cp.UpdatedAt = updated
	}
	return &cp, nil
}

// AdvanceCheckpoint moves the watermark forward. The strictly-greater guard
// is part of the UPDATE itself, so a stale advance is a no-op regardless of
// interleaving. Returns false when the watermark did not move.
func (s *Store) AdvanceCheckpoint(ctx context.Context, sourceID string, watermark time.Time) (bool, error) {
	if sourceID == "" {
		return false, errors.New("source id is required")
	}
	now := formatTime(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO checkpoints (source_id, watermark, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(source_id) DO UPDATE SET
            watermark = excluded.watermark,
            updated_at = excluded.updated_at
         WHERE excluded.watermark > checkpoints.watermark`,
		sourceID,
		formatTime(watermark),
		now,
	)
	if err != nil {
		return false, fmt.Errorf("advance checkpoint: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListCheckpoints returns all source checkpoints ordered by source id.
func (s *Store) ListCheckpoints(ctx context.Context) ([]*Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source_id, watermark, updated_at FROM checkpoints ORDER BY source_id`)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var checkpoints []*Checkpoint
	for rows.Next() {
		var (
			cp           Checkpoint
			watermarkRaw string
			updatedRaw   string
		)
		if err := rows.Scan(&cp.SourceID, &watermarkRaw, &updatedRaw); err != nil {
			return nil, err
		}
		if watermark, err := parseTimeString(watermarkRaw); err == nil {
			cp.Watermark = watermark
		}
		if updated, err := parseTimeString(updatedRaw); err == nil {
			cp.UpdatedAt = updated
		}
		checkpoints = append(checkpoints, &cp)
	}
	return checkpoints, rows.Err()
}
