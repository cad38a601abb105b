package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

const itemColumns = "id, natural_key, title, status, duration_seconds, source, sheet_origin, published_at, last_error, created_at, updated_at"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id           int64
		naturalKey   string
		title        sql.NullString
		statusStr    string
		duration     sql.NullInt64
		sourceStr    string
		sheetOrigin  sql.NullString
		publishedRaw sql.NullString
		lastError    sql.NullString
		createdRaw   string
		updatedRaw   string
	)

	if err := scanner.Scan(
		&id,
		&naturalKey,
		&title,
		&statusStr,
		&duration,
		&sourceStr,
		&sheetOrigin,
		&publishedRaw,
		&lastError,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:              id,
		NaturalKey:      naturalKey,
		Title:           title.String,
		Status:          Status(statusStr),
		DurationSeconds: int(duration.Int64),
		Source:          Source(sourceStr),
		SheetOrigin:     sheetOrigin.String,
		LastError:       lastError.String,
	}
	if publishedRaw.Valid {
		if published, err := parseTimeString(publishedRaw.String); err == nil {
			item.PublishedAt = published
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		item.UpdatedAt = updated
	}
	return item, nil
}

const jobColumns = "id, item_key, stage, attempt_count, external_ref, last_error, failure_history, next_retry_at, resolved_at, created_at, updated_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id          int64
		itemKey     string
		stageStr    string
		attempts    int
		externalRef sql.NullString
		lastError   sql.NullString
		historyRaw  sql.NullString
		nextRaw     sql.NullString
		resolvedRaw sql.NullString
		createdRaw  string
		updatedRaw  string
	)

	if err := scanner.Scan(
		&id,
		&itemKey,
		&stageStr,
		&attempts,
		&externalRef,
		&lastError,
		&historyRaw,
		&nextRaw,
		&resolvedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:           id,
		ItemKey:      itemKey,
		Stage:        Stage(stageStr),
		AttemptCount: attempts,
		ExternalRef:  externalRef.String,
		LastError:    lastError.String,
	}
	if historyRaw.Valid && historyRaw.String != "" {
		_ = json.Unmarshal([]byte(historyRaw.String), &job.FailureHistory)
	}
	if nextRaw.Valid {
		if next, err := parseTimeString(nextRaw.String); err == nil {
			job.NextRetryAt = &next
		}
	}
	if resolvedRaw.Valid {
		if resolved, err := parseTimeString(resolvedRaw.String); err == nil {
			job.ResolvedAt = &resolved
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}

const deadLetterColumns = "id, item_key, stage, attempt_count, failure_history, severity, created_at, requeued_at"

func scanDeadLetter(scanner interface{ Scan(dest ...any) error }) (*DeadLetterEntry, error) {
	var (
		id          string
		itemKey     string
		stageStr    string
		attempts    int
		historyRaw  string
		severityStr string
		createdRaw  string
		requeuedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&itemKey,
		&stageStr,
		&attempts,
		&historyRaw,
		&severityStr,
		&createdRaw,
		&requeuedRaw,
	); err != nil {
		return nil, err
	}

	entry := &DeadLetterEntry{
		ID:           id,
		ItemKey:      itemKey,
		Stage:        Stage(stageStr),
		AttemptCount: attempts,
		Severity:     Severity(severityStr),
	}
	if historyRaw != "" {
		_ = json.Unmarshal([]byte(historyRaw), &entry.FailureHistory)
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		entry.CreatedAt = created
	}
	if requeuedRaw.Valid {
		if requeued, err := parseTimeString(requeuedRaw.String); err == nil {
			entry.RequeuedAt = &requeued
		}
	}
	return entry, nil
}

func marshalHistory(history []FailureRecord) string {
	if len(history) == 0 {
		return "[]"
	}
	data, err := json.Marshal(history)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// timeLayout is fixed-width so stored timestamps compare correctly as
// strings inside SQL (checkpoint watermark guard, retry backoff filter).
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
