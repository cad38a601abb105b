package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gister/internal/budget"
	"gister/internal/deadletter"
	"gister/internal/logging"
	"gister/internal/retry"
	"gister/internal/services"
	"gister/internal/stage"
	"gister/internal/store"
)

// flow binds a stage to the three statuses it moves an item through, plus
// the budget dimension it spends against. Stages without a dimension run
// unmetered.
type flow struct {
	queued     store.Status
	processing store.Status
	completed  store.Status
	dimension  string
}

var stageFlows = map[store.Stage]flow{
	store.StageTranscribe: {
		queued:     store.StatusDiscovered,
		processing: store.StatusTranscribing,
		completed:  store.StatusTranscribed,
		dimension:  budget.DimensionTranscription,
	},
	store.StageSummarize: {
		queued:     store.StatusTranscribed,
		processing: store.StatusSummarizing,
		completed:  store.StatusSummarized,
	},
	store.StageFinalize: {
		queued:     store.StatusSummarized,
		processing: store.StatusFinalizing,
		completed:  store.StatusDone,
	},
}

// QueuedStatuses returns the statuses the workflow manager polls for, in
// pipeline order so downstream stages drain ahead of upstream ones.
func QueuedStatuses() []store.Status {
	return []store.Status{store.StatusSummarized, store.StatusTranscribed, store.StatusDiscovered}
}

// StageForStatus maps a queued status to the stage that consumes it.
func StageForStatus(status store.Status) (store.Stage, bool) {
	for s, f := range stageFlows {
		if f.queued == status {
			return s, true
		}
	}
	return "", false
}

// stageForCurrent resolves the stage an item's status belongs to, whether
// the item is waiting in that stage's queue or mid-flight.
func stageForCurrent(status store.Status) (store.Stage, bool) {
	for s, f := range stageFlows {
		if f.queued == status || f.processing == status {
			return s, true
		}
	}
	return "", false
}

// Execution is the machine's handle on one in-flight stage attempt.
type Execution struct {
	Item        *store.Item
	Stage       store.Stage
	Job         *store.Job
	reservation budget.Reservation
	reserved    bool
}

// Machine drives items through the stage state table. Every transition is a
// single conditional UPDATE, so two workers racing on the same item cannot
// both win; the loser observes store.ErrStatusConflict and walks away.
type Machine struct {
	store      *store.Store
	budget     *budget.Enforcer
	deadletter *deadletter.Manager
	policy     retry.Policy
	logger     *slog.Logger
}

func NewMachine(st *store.Store, enforcer *budget.Enforcer, dl *deadletter.Manager, policy retry.Policy, logger *slog.Logger) *Machine {
	return &Machine{
		store:      st,
		budget:     enforcer,
		deadletter: dl,
		policy:     policy,
		logger:     logging.NewComponentLogger(logger, "state-machine"),
	}
}

// Begin claims a queued item for its next stage. It returns (nil, nil) with
// no error when the item must stay queued: either the budget denied the
// spend (backpressure, retried on a later poll) or another worker won the
// claim race.
func (m *Machine) Begin(ctx context.Context, item *store.Item) (*Execution, error) {
	stg, ok := StageForStatus(item.Status)
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "begin",
			"item is not in a queued status", errors.New(string(item.Status)))
	}
	f := stageFlows[stg]

	job, err := m.store.EnsureJob(ctx, item.NaturalKey, stg)
	if err != nil {
		return nil, err
	}

	exec := &Execution{Item: item, Stage: stg, Job: job}
	if f.dimension != "" {
		res, decision, err := m.budget.Reserve(ctx, f.dimension, m.budget.EstimatedCost(f.dimension))
		if err != nil {
			return nil, err
		}
		if decision == budget.Deny {
			m.logger.Info("admission held, budget exhausted",
				logging.String(logging.FieldItemKey, item.NaturalKey),
				logging.String(logging.FieldStage, string(stg)),
				logging.String(logging.FieldDimension, f.dimension),
			)
			return nil, nil
		}
		exec.reservation = res
		exec.reserved = true
	}

	if err := m.store.TransitionStatus(ctx, item.NaturalKey, f.queued, f.processing, ""); err != nil {
		if exec.reserved {
			if relErr := m.budget.Release(ctx, exec.reservation); relErr != nil {
				m.logger.Warn("reservation release failed", logging.Error(relErr))
			}
		}
		if errors.Is(err, store.ErrStatusConflict) {
			m.logger.Debug("claim lost to concurrent worker",
				logging.String(logging.FieldItemKey, item.NaturalKey),
				logging.String(logging.FieldStage, string(stg)),
			)
			return nil, nil
		}
		return nil, err
	}
	item.Status = f.processing

	if err := m.store.AppendAudit(ctx, "state-machine", "begin", "item", item.NaturalKey,
		"stage="+string(stg)); err != nil {
		m.logger.Warn("audit append failed", logging.Error(err))
	}
	return exec, nil
}

// Complete records a successful stage run: the item advances to the stage's
// completed status, the job resolves, and any reservation is settled at the
// actual cost.
func (m *Machine) Complete(ctx context.Context, exec *Execution, result stage.Result) error {
	f := stageFlows[exec.Stage]

	if result.ExternalRef != "" {
		if err := m.store.SetJobExternalRef(ctx, exec.Job.ID, result.ExternalRef); err != nil {
			return err
		}
	}
	if err := m.store.TransitionStatus(ctx, exec.Item.NaturalKey, f.processing, f.completed, ""); err != nil {
		return err
	}
	exec.Item.Status = f.completed
	if err := m.store.ResolveJob(ctx, exec.Job.ID); err != nil {
		return err
	}
	if exec.reserved {
		if err := m.budget.Commit(ctx, exec.reservation, result.ActualCost); err != nil {
			return err
		}
	}
	if err := m.store.AppendAudit(ctx, "state-machine", "complete", "item", exec.Item.NaturalKey,
		"stage="+string(exec.Stage)); err != nil {
		m.logger.Warn("audit append failed", logging.Error(err))
	}
	m.logger.Info("stage completed",
		logging.String(logging.FieldItemKey, exec.Item.NaturalKey),
		logging.String(logging.FieldStage, string(exec.Stage)),
		logging.String("status", string(f.completed)),
	)
	return nil
}

// Abort abandons a claimed execution without charging an attempt, used when
// shutdown interrupts a stage mid-flight. The reservation is released and
// the item returns to its queued status for the next daemon run.
func (m *Machine) Abort(ctx context.Context, exec *Execution) error {
	f := stageFlows[exec.Stage]
	if exec.reserved {
		if err := m.budget.Release(ctx, exec.reservation); err != nil {
			m.logger.Warn("reservation release failed", logging.Error(err))
		}
	}
	if err := m.store.TransitionStatus(ctx, exec.Item.NaturalKey, f.processing, f.queued, ""); err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			return nil
		}
		return err
	}
	exec.Item.Status = f.queued
	return nil
}

// Recover rolls any item left in a processing status back to its queued
// status. Only safe at daemon startup, while the single-instance lock
// guarantees nothing is actually in flight.
func (m *Machine) Recover(ctx context.Context) (int, error) {
	recovered := 0
	for _, f := range stageFlows {
		items, err := m.store.ItemsByStatus(ctx, f.processing)
		if err != nil {
			return recovered, err
		}
		for _, item := range items {
			if err := m.store.TransitionStatus(ctx, item.NaturalKey, f.processing, f.queued, ""); err != nil {
				if errors.Is(err, store.ErrStatusConflict) {
					continue
				}
				return recovered, err
			}
			recovered++
			m.logger.Warn("recovered interrupted item",
				logging.String(logging.FieldItemKey, item.NaturalKey),
				logging.String("status", string(f.queued)),
			)
		}
	}
	return recovered, nil
}

// Fail records a failed stage run. Transient faults with attempts remaining
// schedule a backoff retry and roll the item back to its queued status;
// permanent and policy faults, and transient faults out of attempts,
// escalate to the dead letter table.
func (m *Machine) Fail(ctx context.Context, exec *Execution, cause error) error {
	f := stageFlows[exec.Stage]
	kind := services.Classify(cause)
	attempt := exec.Job.AttemptCount

	if exec.reserved {
		if err := m.budget.Release(ctx, exec.reservation); err != nil {
			m.logger.Warn("reservation release failed", logging.Error(err))
		}
	}

	record := store.FailureRecord{
		Attempt:    attempt + 1,
		Kind:       string(kind),
		Message:    cause.Error(),
		OccurredAt: time.Now().UTC(),
	}

	retriable := kind == services.KindTransient || kind == services.KindUnknown
	if retriable && m.policy.ShouldRetry(attempt+1) {
		nextRetry := m.policy.NextRetryAt(time.Now().UTC(), attempt)
		if err := m.store.RecordJobFailure(ctx, exec.Job, record, &nextRetry); err != nil {
			return err
		}
		if err := m.store.TransitionStatus(ctx, exec.Item.NaturalKey, f.processing, f.queued, cause.Error()); err != nil {
			return err
		}
		exec.Item.Status = f.queued
		m.logger.Warn("stage failed, retry scheduled",
			logging.String(logging.FieldItemKey, exec.Item.NaturalKey),
			logging.String(logging.FieldStage, string(exec.Stage)),
			logging.Int("attempt", record.Attempt),
			logging.Time("next_retry_at", nextRetry),
			logging.String(logging.FieldErrorKind, string(kind)),
			logging.Error(cause),
		)
		return nil
	}

	if err := m.store.RecordJobFailure(ctx, exec.Job, record, nil); err != nil {
		return err
	}
	if _, err := m.deadletter.Escalate(ctx, exec.Item, exec.Job, cause); err != nil {
		return err
	}
	exec.Item.Status = store.StatusDeadLettered
	return nil
}
