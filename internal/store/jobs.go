package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// EnsureJob returns the unresolved job for (itemKey, stage), creating it when
// none exists. Creation is idempotent: a concurrent insert loses the unique
// race and reads the surviving row.
func (s *Store) EnsureJob(ctx context.Context, itemKey string, stage Stage) (*Job, error) {
	if itemKey == "" {
		return nil, errors.New("item key is required")
	}
	now := formatTime(time.Now())
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO jobs (item_key, stage, attempt_count, failure_history, created_at, updated_at)
         VALUES (?, ?, 0, '[]', ?, ?)
         ON CONFLICT(item_key, stage) WHERE resolved_at IS NULL DO NOTHING`,
		itemKey,
		stage,
		now,
		now,
	); err != nil {
		return nil, fmt.Errorf("ensure job: %w", err)
	}
	return s.OpenJob(ctx, itemKey, stage)
}

// OpenJob fetches the unresolved job for (itemKey, stage), or nil.
func (s *Store) OpenJob(ctx context.Context, itemKey string, stage Stage) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE item_key = ? AND stage = ? AND resolved_at IS NULL`,
		itemKey,
		stage,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open job: %w", err)
	}
	return job, nil
}

// RecordJobFailure increments the attempt count, appends one failure record,
// and schedules the next retry. It is only called on a confirmed failure
// callback, never on a crash mid-flight.
func (s *Store) RecordJobFailure(ctx context.Context, job *Job, failure FailureRecord, nextRetryAt *time.Time) error {
	if job == nil {
		return errors.New("job is nil")
	}
	job.AttemptCount++
	failure.Attempt = job.AttemptCount
	if failure.OccurredAt.IsZero() {
		failure.OccurredAt = time.Now().UTC()
	}
	job.FailureHistory = append(job.FailureHistory, failure)
	job.LastError = failure.Message
	job.NextRetryAt = nextRetryAt
	job.UpdatedAt = time.Now().UTC()

	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE jobs SET attempt_count = ?, last_error = ?, failure_history = ?,
            next_retry_at = ?, updated_at = ?
         WHERE id = ? AND resolved_at IS NULL`,
		job.AttemptCount,
		nullableString(job.LastError),
		marshalHistory(job.FailureHistory),
		nullableTime(job.NextRetryAt),
		formatTime(job.UpdatedAt),
		job.ID,
	); err != nil {
		return fmt.Errorf("record job failure: %w", err)
	}
	return nil
}

// SetJobExternalRef persists the external service's job handle so a restart
// can resume polling instead of resubmitting.
func (s *Store) SetJobExternalRef(ctx context.Context, jobID int64, externalRef string) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE jobs SET external_ref = ?, updated_at = ? WHERE id = ? AND resolved_at IS NULL`,
		nullableString(externalRef),
		formatTime(time.Now()),
		jobID,
	); err != nil {
		return fmt.Errorf("set job external ref: %w", err)
	}
	return nil
}

// ResolveJob marks the job finished and clears its failure bookkeeping.
func (s *Store) ResolveJob(ctx context.Context, jobID int64) error {
	now := formatTime(time.Now())
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE jobs SET resolved_at = ?, last_error = NULL, failure_history = '[]',
            next_retry_at = NULL, updated_at = ?
         WHERE id = ? AND resolved_at IS NULL`,
		now,
		now,
		jobID,
	); err != nil {
		return fmt.Errorf("resolve job: %w", err)
	}
	return nil
}

// ResetJobAttempts zeroes the attempt counter and backoff for an unresolved
// job, used by dead letter requeue.
func (s *Store) ResetJobAttempts(ctx context.Context, itemKey string, stage Stage) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE jobs SET attempt_count = 0, last_error = NULL, failure_history = '[]',
            next_retry_at = NULL, updated_at = ?
         WHERE item_key = ? AND stage = ? AND resolved_at IS NULL`,
		formatTime(time.Now()),
		itemKey,
		stage,
	); err != nil {
		return fmt.Errorf("reset job attempts: %w", err)
	}
	return nil
}

// JobsForItem returns every job row recorded for an item, oldest first.
func (s *Store) JobsForItem(ctx context.Context, itemKey string) ([]*Job, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE item_key = ? ORDER BY created_at`,
		itemKey,
	)
	if err != nil {
		return nil, fmt.Errorf("jobs for item: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// OpenJobCount returns the number of unresolved jobs, for the operational
// surface.
func (s *Store) OpenJobCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM jobs WHERE resolved_at IS NULL`).Scan(&count); err != nil {
		return 0, fmt.Errorf("open job count: %w", err)
	}
	return count, nil
}
