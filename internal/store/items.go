package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Candidate is the discovery tuple handed to the admission path.
type Candidate struct {
	NaturalKey      string
	Title           string
	DurationSeconds int
	PublishedAt     time.Time
	Source          Source
	SheetOrigin     string
}

// UpsertItem admits a candidate as an item keyed by natural_key. A conflict
// on an existing row refreshes updated_at and attaches a sheet origin the
// row does not yet have, but preserves created_at and status, so
// re-admission can never regress a lifecycle.
func (s *Store) UpsertItem(ctx context.Context, candidate Candidate, status Status) (*Item, error) {
	if candidate.NaturalKey == "" {
		return nil, errors.New("candidate natural key is required")
	}
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO items (
            natural_key, title, status, duration_seconds, source,
            sheet_origin, published_at, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(natural_key) DO UPDATE SET
            title = COALESCE(NULLIF(excluded.title, ''), items.title),
            sheet_origin = COALESCE(items.sheet_origin, excluded.sheet_origin),
            updated_at = excluded.updated_at`,
		candidate.NaturalKey,
		nullableString(candidate.Title),
		status,
		candidate.DurationSeconds,
		candidate.Source,
		nullableString(candidate.SheetOrigin),
		nullableTime(timePtr(candidate.PublishedAt)),
		timestamp,
		timestamp,
	); err != nil {
		return nil, fmt.Errorf("upsert item: %w", err)
	}

	return s.GetByKey(ctx, candidate.NaturalKey)
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// GetByKey fetches an item by natural key.
func (s *Store) GetByKey(ctx context.Context, naturalKey string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE natural_key = ?`, naturalKey)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// TransitionStatus performs the atomic conditional status move that guards
// every lifecycle change. It returns ErrStatusConflict when the item is not
// in the expected status, and rejects pairs outside the transition table
// before touching the database.
func (s *Store) TransitionStatus(ctx context.Context, naturalKey string, from, to Status, lastError string) error {
	if !IsLegalTransition(from, to) {
		return fmt.Errorf("illegal transition %s -> %s for %q", from, to, naturalKey)
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE items SET status = ?, last_error = ?, updated_at = ?
         WHERE natural_key = ? AND status = ?`,
		to,
		nullableString(lastError),
		formatTime(time.Now()),
		naturalKey,
		from,
	)
	if err != nil {
		return fmt.Errorf("transition item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s -> %s for %q", ErrStatusConflict, from, to, naturalKey)
	}
	return nil
}

// SetItemDuration corrects an item's media length once a stage reports the
// real value.
func (s *Store) SetItemDuration(ctx context.Context, naturalKey string, durationSeconds int) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE items SET duration_seconds = ?, updated_at = ? WHERE natural_key = ?`,
		durationSeconds,
		formatTime(time.Now()),
		naturalKey,
	); err != nil {
		return fmt.Errorf("set item duration: %w", err)
	}
	return nil
}

// ItemsByStatus returns items matching a status ordered by creation time.
func (s *Store) ItemsByStatus(ctx context.Context, status Status) ([]*Item, error) {
	return s.ListItems(ctx, status)
}

// ListItems returns items filtered by status set (or all items when no
// status is provided), oldest first.
func (s *Store) ListItems(ctx context.Context, statuses ...Status) ([]*Item, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + itemColumns + ` FROM items`
	orderClause := ` ORDER BY created_at`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// NextQueued returns up to limit items sitting in any of the provided queued
// statuses whose stage job, if one exists, is past its retry backoff. Items
// drain in the order the statuses are given, oldest first within a status,
// so callers pass downstream stages ahead of upstream ones.
func (s *Store) NextQueued(ctx context.Context, limit int, statuses ...Status) ([]*Item, error) {
	if len(statuses) == 0 || limit <= 0 {
		return nil, nil
	}
	placeholders := makePlaceholders(len(statuses))
	rankCase := `CASE status`
	args := make([]any, 0, 2*len(statuses)+2)
	for _, status := range statuses {
		args = append(args, status)
	}
	args = append(args, formatTime(time.Now()))
	for i, status := range statuses {
		rankCase += ` WHEN ? THEN ` + fmt.Sprint(i)
		args = append(args, status)
	}
	rankCase += ` ELSE ` + fmt.Sprint(len(statuses)) + ` END`
	args = append(args, limit)

	query := `SELECT ` + itemColumns + ` FROM items
        WHERE status IN (` + placeholders + `)
          AND natural_key NOT IN (
            SELECT item_key FROM jobs
            WHERE resolved_at IS NULL AND next_retry_at IS NOT NULL AND next_retry_at > ?
          )
        ORDER BY ` + rankCase + `, created_at LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("next queued items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// CountsByStatus aggregates item counts per lifecycle status.
func (s *Store) CountsByStatus(ctx context.Context) (StatusCounts, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count items: %w", err)
	}
	defer rows.Close()

	counts := make(StatusCounts)
	for rows.Next() {
		var (
			statusStr string
			count     int
		)
		if err := rows.Scan(&statusStr, &count); err != nil {
			return nil, err
		}
		counts[Status(statusStr)] = count
	}
	return counts, rows.Err()
}
