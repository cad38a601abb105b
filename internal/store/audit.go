package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AppendAudit records one append-only audit row. Details carry identifiers
// and enums only, never payload content.
func (s *Store) AppendAudit(ctx context.Context, actor, action, entity, entityID, details string) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO audit_log (actor, action, entity, entity_id, details, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		actor,
		action,
		entity,
		entityID,
		nullableString(details),
		formatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

// RecentAudit returns the newest audit rows up to limit.
func (s *Store) RecentAudit(ctx context.Context, limit int) ([]*AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, actor, action, entity, entity_id, details, created_at
         FROM audit_log ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent audit: %w", err)
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		var (
			entry      AuditEntry
			details    sql.NullString
			createdRaw string
		)
		if err := rows.Scan(&entry.ID, &entry.Actor, &entry.Action, &entry.Entity, &entry.EntityID, &details, &createdRaw); err != nil {
			return nil, err
		}
		entry.Details = details.String
		if created, err := parseTimeString(createdRaw); err == nil {
			entry.CreatedAt = created
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}
