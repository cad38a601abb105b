package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DeadLetterFilter narrows List results. Zero values mean "any".
type DeadLetterFilter struct {
	Stage           Stage
	Severity        Severity
	MaxAge          time.Duration
	IncludeRequeued bool
}

// InsertDeadLetter records the terminal failure for an (item, stage) pair.
// The partial unique index guarantees at most one open entry per pair; a
// duplicate escalation returns the existing entry untouched.
func (s *Store) InsertDeadLetter(ctx context.Context, entry *DeadLetterEntry) (*DeadLetterEntry, error) {
	if entry == nil || entry.ID == "" {
		return nil, errors.New("dead letter entry requires an id")
	}
	entry.CreatedAt = time.Now().UTC()
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO dead_letters (id, item_key, stage, attempt_count, failure_history, severity, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(item_key, stage) WHERE requeued_at IS NULL DO NOTHING`,
		entry.ID,
		entry.ItemKey,
		entry.Stage,
		entry.AttemptCount,
		marshalHistory(entry.FailureHistory),
		entry.Severity,
		formatTime(entry.CreatedAt),
	); err != nil {
		return nil, fmt.Errorf("insert dead letter: %w", err)
	}

	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+deadLetterColumns+` FROM dead_letters
         WHERE item_key = ? AND stage = ? AND requeued_at IS NULL`,
		entry.ItemKey,
		entry.Stage,
	)
	stored, err := scanDeadLetter(row)
	if err != nil {
		return nil, fmt.Errorf("read dead letter: %w", err)
	}
	return stored, nil
}

// GetDeadLetter fetches an entry by identifier.
func (s *Store) GetDeadLetter(ctx context.Context, id string) (*DeadLetterEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+deadLetterColumns+` FROM dead_letters WHERE id = ?`, id)
	entry, err := scanDeadLetter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get dead letter: %w", err)
	}
	return entry, nil
}

// ListDeadLetters returns entries matching the filter, newest first.
func (s *Store) ListDeadLetters(ctx context.Context, filter DeadLetterFilter) ([]*DeadLetterEntry, error) {
	var (
		conditions []string
		args       []any
	)
	if !filter.IncludeRequeued {
		conditions = append(conditions, "requeued_at IS NULL")
	}
	if filter.Stage != "" {
		conditions = append(conditions, "stage = ?")
		args = append(args, filter.Stage)
	}
	if filter.Severity != "" {
		conditions = append(conditions, "severity = ?")
		args = append(args, filter.Severity)
	}
	if filter.MaxAge > 0 {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, formatTime(time.Now().Add(-filter.MaxAge)))
	}

	query := `SELECT ` + deadLetterColumns + ` FROM dead_letters`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var entries []*DeadLetterEntry
	for rows.Next() {
		entry, err := scanDeadLetter(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// MarkDeadLetterRequeued stamps the entry as handled. Returns false when the
// entry was already requeued, which callers treat as a no-op.
func (s *Store) MarkDeadLetterRequeued(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE dead_letters SET requeued_at = ? WHERE id = ? AND requeued_at IS NULL`,
		formatTime(time.Now()),
		id,
	)
	if err != nil {
		return false, fmt.Errorf("mark dead letter requeued: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}
