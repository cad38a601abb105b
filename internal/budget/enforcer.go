// Package budget enforces the daily monetary and quota limits that gate
// costed pipeline admissions. All accounting lives in explicit per-day rows
// with single-statement compare-and-increment semantics, so the monotone
// amount_used invariant holds under concurrent workers.
package budget

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gister/internal/config"
	"gister/internal/logging"
	"gister/internal/notifications"
	"gister/internal/store"
)

// Dimension identifiers for the two budgets the pipeline enforces.
const (
	DimensionTranscription = "transcription_cost"
	DimensionDiscovery     = "discovery_units"
)

// Decision is the outcome of a reservation attempt.
type Decision string

const (
	Allow Decision = "allow"
	Deny  Decision = "deny"
)

// Reservation is a provisional hold against a daily limit. It carries
// everything needed to commit or release without re-deriving the day.
type Reservation struct {
	Dimension string
	DateKey   string
	Estimated float64
}

// Enforcer gates costed admissions against per-day budget rows.
type Enforcer struct {
	store    *store.Store
	logger   *slog.Logger
	notifier notifications.Service
	loc      *time.Location
	dims     map[string]config.Dimension

	mu            sync.Mutex
	exhaustedNote map[string]string // dimension -> date_key already notified
}

// NewEnforcer builds an enforcer from the configured dimensions.
func NewEnforcer(cfg *config.Config, st *store.Store, logger *slog.Logger, notifier notifications.Service) *Enforcer {
	if notifier == nil {
		notifier = notifications.Noop()
	}
	return &Enforcer{
		store:    st,
		logger:   logging.NewComponentLogger(logger, "budget-enforcer"),
		notifier: notifier,
		loc:      cfg.Location(),
		dims: map[string]config.Dimension{
			DimensionTranscription: cfg.Budget.Transcription,
			DimensionDiscovery:     cfg.Budget.Discovery,
		},
		exhaustedNote: make(map[string]string),
	}
}

// DateKey returns the calendar day for budget accounting in the pipeline's
// operating timezone.
func (e *Enforcer) DateKey(now time.Time) string {
	return now.In(e.loc).Format("2006-01-02")
}

// EstimatedCost returns the configured per-unit estimate for a dimension.
func (e *Enforcer) EstimatedCost(dimension string) float64 {
	return e.dims[dimension].EstimatedCost
}

// Reserve places a hold of estimated against today's limit for the
// dimension. A Deny is backpressure, not an error: the caller leaves the
// item queued and tries again later.
func (e *Enforcer) Reserve(ctx context.Context, dimension string, estimated float64) (Reservation, Decision, error) {
	dim, ok := e.dims[dimension]
	if !ok {
		return Reservation{}, Deny, fmt.Errorf("unknown budget dimension %q", dimension)
	}
	res := Reservation{
		Dimension: dimension,
		DateKey:   e.DateKey(time.Now()),
		Estimated: estimated,
	}

	allowed, err := e.store.TryReserveBudget(ctx, res.DateKey, dimension, estimated, dim.DailyLimit, dim.Unit)
	if err != nil {
		return Reservation{}, Deny, err
	}
	if !allowed {
		e.auditDecision(ctx, res, Deny)
		e.notifyExhausted(ctx, dimension, dim)
		return res, Deny, nil
	}

	e.auditDecision(ctx, res, Allow)
	e.checkThreshold(ctx, res.DateKey, dimension, dim)
	return res, Allow, nil
}

// Commit converts a reservation into confirmed spend using the actual cost
// reported by the external stage, correcting both under- and over-estimates.
func (e *Enforcer) Commit(ctx context.Context, res Reservation, actual float64) error {
	if err := e.store.CommitBudget(ctx, res.DateKey, res.Dimension, actual, res.Estimated); err != nil {
		return err
	}
	if err := e.store.AppendAudit(ctx, "budget-enforcer", "commit", "budget", res.Dimension,
		fmt.Sprintf("date=%s estimated=%.4f actual=%.4f", res.DateKey, res.Estimated, actual)); err != nil {
		e.logger.Warn("audit append failed", logging.Error(err))
	}
	dim := e.dims[res.Dimension]
	e.checkThreshold(ctx, res.DateKey, res.Dimension, dim)
	return nil
}

// Release drops a hold without recording spend.
func (e *Enforcer) Release(ctx context.Context, res Reservation) error {
	if err := e.store.ReleaseBudget(ctx, res.DateKey, res.Dimension, res.Estimated); err != nil {
		return err
	}
	if err := e.store.AppendAudit(ctx, "budget-enforcer", "release", "budget", res.Dimension,
		fmt.Sprintf("date=%s estimated=%.4f", res.DateKey, res.Estimated)); err != nil {
		e.logger.Warn("audit append failed", logging.Error(err))
	}
	return nil
}

// Snapshot returns today's state for every configured dimension. Dimensions
// untouched today are synthesized from config with zero usage.
func (e *Enforcer) Snapshot(ctx context.Context) ([]*store.BudgetState, error) {
	dateKey := e.DateKey(time.Now())
	stored, err := e.store.BudgetStatesForDate(ctx, dateKey)
	if err != nil {
		return nil, err
	}
	byDimension := make(map[string]*store.BudgetState, len(stored))
	for _, state := range stored {
		byDimension[state.Dimension] = state
	}

	states := make([]*store.BudgetState, 0, len(e.dims))
	for _, dimension := range []string{DimensionTranscription, DimensionDiscovery} {
		if state, ok := byDimension[dimension]; ok {
			states = append(states, state)
			continue
		}
		dim := e.dims[dimension]
		states = append(states, &store.BudgetState{
			DateKey:   dateKey,
			Dimension: dimension,
			Limit:     dim.DailyLimit,
			Unit:      dim.Unit,
		})
	}
	return states, nil
}

// checkThreshold fires the advisory warning notification the first time
// cumulative usage crosses the configured fraction of the limit. The warned
// flag flip is atomic in the store, so the notification fires at most once
// per day even under concurrent commits.
func (e *Enforcer) checkThreshold(ctx context.Context, dateKey, dimension string, dim config.Dimension) {
	if dim.DailyLimit <= 0 {
		return
	}
	state, err := e.store.BudgetState(ctx, dateKey, dimension)
	if err != nil || state == nil || state.Warned {
		return
	}
	if state.AmountUsed+state.Reserved < dim.WarnFraction*dim.DailyLimit {
		return
	}
	first, err := e.store.MarkBudgetWarned(ctx, dateKey, dimension)
	if err != nil || !first {
		return
	}
	e.logger.Warn("budget threshold crossed",
		logging.String(logging.FieldDimension, dimension),
		logging.Float64("used", state.AmountUsed),
		logging.Float64("reserved", state.Reserved),
		logging.Float64("limit", dim.DailyLimit),
		logging.String(logging.FieldEventType, "budget_threshold"),
	)
	if err := e.notifier.NotifyBudgetThreshold(ctx, dimension, state.AmountUsed+state.Reserved, dim.DailyLimit, dim.Unit); err != nil {
		e.logger.Debug("budget threshold notification failed", logging.Error(err))
	}
}

// notifyExhausted announces a hard stop at most once per dimension per day.
func (e *Enforcer) notifyExhausted(ctx context.Context, dimension string, dim config.Dimension) {
	dateKey := e.DateKey(time.Now())

	e.mu.Lock()
	already := e.exhaustedNote[dimension] == dateKey
	if !already {
		e.exhaustedNote[dimension] = dateKey
	}
	e.mu.Unlock()
	if already {
		return
	}

	e.logger.Warn("budget exhausted, holding admissions",
		logging.String(logging.FieldDimension, dimension),
		logging.Float64("limit", dim.DailyLimit),
		logging.String(logging.FieldEventType, "budget_exhausted"),
	)
	if err := e.notifier.NotifyBudgetExhausted(ctx, dimension, dim.DailyLimit, dim.Unit); err != nil {
		e.logger.Debug("budget exhausted notification failed", logging.Error(err))
	}
}

func (e *Enforcer) auditDecision(ctx context.Context, res Reservation, decision Decision) {
	if err := e.store.AppendAudit(ctx, "budget-enforcer", "reserve-"+string(decision), "budget", res.Dimension,
		fmt.Sprintf("date=%s estimated=%.4f", res.DateKey, res.Estimated)); err != nil {
		e.logger.Warn("audit append failed", logging.Error(err))
	}
}
