package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ensureBudgetRow creates the per-day row for a dimension if missing,
// snapshotting the configured limit and unit for that day.
func (s *Store) ensureBudgetRow(ctx context.Context, dateKey, dimension string, limit float64, unit string) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO budget_days (date_key, dimension, amount_used, reserved, limit_amount, unit, warned, updated_at)
         VALUES (?, ?, 0, 0, ?, ?, 0, ?)
         ON CONFLICT(date_key, dimension) DO NOTHING`,
		dateKey,
		dimension,
		limit,
		unit,
		formatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("ensure budget row: %w", err)
	}
	return nil
}

// TryReserveBudget atomically places a hold of estimated against the day's
// limit. The compare and the increment are a single UPDATE, so concurrent
// reservations can never jointly exceed the limit. Returns false on DENY.
func (s *Store) TryReserveBudget(ctx context.Context, dateKey, dimension string, estimated, limit float64, unit string) (bool, error) {
	if estimated < 0 {
		return false, errors.New("estimated cost must not be negative")
	}
	if err := s.ensureBudgetRow(ctx, dateKey, dimension, limit, unit); err != nil {
		return false, err
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE budget_days SET reserved = reserved + ?, updated_at = ?
         WHERE date_key = ? AND dimension = ?
           AND amount_used + reserved + ? <= limit_amount`,
		estimated,
		formatTime(time.Now()),
		dateKey,
		dimension,
		estimated,
	)
	if err != nil {
		return false, fmt.Errorf("reserve budget: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// CommitBudget converts a reservation into confirmed spend: amount_used grows
// by the actual cost while the estimated hold is released. amount_used never
// decreases within a day.
func (s *Store) CommitBudget(ctx context.Context, dateKey, dimension string, actual, estimated float64) error {
	if actual < 0 {
		actual = 0
	}
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE budget_days
         SET amount_used = amount_used + ?, reserved = MAX(reserved - ?, 0), updated_at = ?
         WHERE date_key = ? AND dimension = ?`,
		actual,
		estimated,
		formatTime(time.Now()),
		dateKey,
		dimension,
	); err != nil {
		return fmt.Errorf("commit budget: %w", err)
	}
	return nil
}

// ReleaseBudget drops a hold without recording spend, used when a costed
// stage fails before incurring cost.
func (s *Store) ReleaseBudget(ctx context.Context, dateKey, dimension string, estimated float64) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE budget_days SET reserved = MAX(reserved - ?, 0), updated_at = ?
         WHERE date_key = ? AND dimension = ?`,
		estimated,
		formatTime(time.Now()),
		dateKey,
		dimension,
	); err != nil {
		return fmt.Errorf("release budget: %w", err)
	}
	return nil
}

// MarkBudgetWarned flips the day's warned flag. Returns false when the flag
// was already set, so the threshold notifier fires at most once per day.
func (s *Store) MarkBudgetWarned(ctx context.Context, dateKey, dimension string) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE budget_days SET warned = 1, updated_at = ?
         WHERE date_key = ? AND dimension = ? AND warned = 0`,
		formatTime(time.Now()),
		dateKey,
		dimension,
	)
	if err != nil {
		return false, fmt.Errorf("mark budget warned: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// BudgetState returns the current day's row for a dimension, or nil when the
// dimension has not been touched today.
func (s *Store) BudgetState(ctx context.Context, dateKey, dimension string) (*BudgetState, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT date_key, dimension, amount_used, reserved, limit_amount, unit, warned, updated_at
         FROM budget_days WHERE date_key = ? AND dimension = ?`,
		dateKey,
		dimension,
	)
	state, err := scanBudgetState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("budget state: %w", err)
	}
	return state, nil
}

// BudgetStatesForDate returns every dimension row stored for a date key.
func (s *Store) BudgetStatesForDate(ctx context.Context, dateKey string) ([]*BudgetState, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT date_key, dimension, amount_used, reserved, limit_amount, unit, warned, updated_at
         FROM budget_days WHERE date_key = ? ORDER BY dimension`,
		dateKey,
	)
	if err != nil {
		return nil, fmt.Errorf("budget states: %w", err)
	}
	defer rows.Close()

	var states []*BudgetState
	for rows.Next() {
		state, err := scanBudgetState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

func scanBudgetState(scanner interface{ Scan(dest ...any) error }) (*BudgetState, error) {
	var (
		state      BudgetState
		warned     int
		updatedRaw string
	)
	if err := scanner.Scan(
		&state.DateKey,
		&state.Dimension,
		&state.AmountUsed,
		&state.Reserved,
		&state.Limit,
		&state.Unit,
		&warned,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	state.Warned = warned != 0
	if updated, err := parseTimeString(updatedRaw); err == nil {
		state.UpdatedAt = updated
	}
	return &state, nil
}
