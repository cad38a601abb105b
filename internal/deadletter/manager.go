// Package deadletter parks items whose stage failures exhausted the retry
// policy. Parked items are out of the automated pipeline but never deleted;
// operators inspect them through the query surface and requeue once the
// underlying fault is fixed.
package deadletter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"gister/internal/logging"
	"gister/internal/notifications"
	"gister/internal/services"
	"gister/internal/store"
)

// requeueTarget maps each stage back to the queued status its work starts
// from, so a requeued item re-enters exactly where it was parked.
var requeueTarget = map[store.Stage]store.Status{
	store.StageTranscribe: store.StatusDiscovered,
	store.StageSummarize:  store.StatusTranscribed,
	store.StageFinalize:   store.StatusSummarized,
}

// Manager owns escalation into and requeue out of the dead letter table.
type Manager struct {
	store    *store.Store
	logger   *slog.Logger
	notifier notifications.Service
}

func NewManager(st *store.Store, logger *slog.Logger, notifier notifications.Service) *Manager {
	if notifier == nil {
		notifier = notifications.Noop()
	}
	return &Manager{
		store:    st,
		logger:   logging.NewComponentLogger(logger, "dead-letter"),
		notifier: notifier,
	}
}

// Escalate parks an item after its job ran out of attempts. The insert is
// idempotent per open (item, stage) pair: racing escalations for the same
// failure collapse into one entry.
func (m *Manager) Escalate(ctx context.Context, item *store.Item, job *store.Job, cause error) (*store.DeadLetterEntry, error) {
	severity := severityFor(cause)
	entry := &store.DeadLetterEntry{
		ID:             uuid.NewString(),
		ItemKey:        item.NaturalKey,
		Stage:          job.Stage,
		AttemptCount:   job.AttemptCount,
		FailureHistory: job.FailureHistory,
		Severity:       severity,
	}

	stored, err := m.store.InsertDeadLetter(ctx, entry)
	if err != nil {
		return nil, err
	}

	if err := m.store.TransitionStatus(ctx, item.NaturalKey, item.Status, store.StatusDeadLettered, causeMessage(cause)); err != nil {
		if !errors.Is(err, store.ErrStatusConflict) {
			return nil, err
		}
		// A concurrent actor already moved the item; the parked entry stands.
		m.logger.Warn("item moved during escalation",
			logging.String(logging.FieldItemKey, item.NaturalKey),
			logging.String(logging.FieldStage, string(job.Stage)),
		)
	}

	if err := m.store.AppendAudit(ctx, "dead-letter", "escalate", "item", item.NaturalKey,
		fmt.Sprintf("stage=%s attempts=%d severity=%s entry=%s", job.Stage, job.AttemptCount, severity, stored.ID)); err != nil {
		m.logger.Warn("audit append failed", logging.Error(err))
	}

	m.logger.Error("item dead lettered",
		logging.String(logging.FieldItemKey, item.NaturalKey),
		logging.String(logging.FieldStage, string(job.Stage)),
		logging.Int("attempts", job.AttemptCount),
		logging.String("severity", string(severity)),
		logging.String(logging.FieldEventType, "dead_letter"),
		logging.Alert("item dead lettered"),
	)
	if err := m.notifier.NotifyDeadLetter(ctx, item.NaturalKey, string(job.Stage), job.AttemptCount, string(severity)); err != nil {
		m.logger.Debug("dead letter notification failed", logging.Error(err))
	}
	return stored, nil
}

// List returns dead letter entries matching the filter, newest first.
func (m *Manager) List(ctx context.Context, filter store.DeadLetterFilter) ([]*store.DeadLetterEntry, error) {
	return m.store.ListDeadLetters(ctx, filter)
}

// Requeue puts a parked item back into the queue for the stage it failed at,
// with a fresh attempt counter. Requeueing the same entry twice is a no-op.
func (m *Manager) Requeue(ctx context.Context, entryID string) (*store.DeadLetterEntry, error) {
	entry, err := m.store.GetDeadLetter(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("dead letter entry %s: %w", entryID, services.ErrNotFound)
	}
	if entry.RequeuedAt != nil {
		return entry, nil
	}

	target, ok := requeueTarget[entry.Stage]
	if !ok {
		return nil, fmt.Errorf("no requeue target for stage %q", entry.Stage)
	}

	first, err := m.store.MarkDeadLetterRequeued(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if !first {
		return m.store.GetDeadLetter(ctx, entryID)
	}

	if err := m.store.ResetJobAttempts(ctx, entry.ItemKey, entry.Stage); err != nil {
		return nil, err
	}
	if err := m.store.TransitionStatus(ctx, entry.ItemKey, store.StatusDeadLettered, target, ""); err != nil {
		if !errors.Is(err, store.ErrStatusConflict) {
			return nil, err
		}
		m.logger.Warn("requeue target already moved",
			logging.String(logging.FieldItemKey, entry.ItemKey),
			logging.String(logging.FieldStage, string(entry.Stage)),
		)
	}

	if err := m.store.AppendAudit(ctx, "dead-letter", "requeue", "item", entry.ItemKey,
		fmt.Sprintf("stage=%s entry=%s target=%s", entry.Stage, entryID, target)); err != nil {
		m.logger.Warn("audit append failed", logging.Error(err))
	}
	m.logger.Info("item requeued from dead letter",
		logging.String(logging.FieldItemKey, entry.ItemKey),
		logging.String(logging.FieldStage, string(entry.Stage)),
		logging.String("target", string(target)),
	)
	return m.store.GetDeadLetter(ctx, entryID)
}

// severityFor grades a terminal failure from the error classification.
// Permanent and policy faults need operator attention before a requeue can
// succeed; transient exhaustion usually clears on its own.
func severityFor(err error) store.Severity {
	switch services.Classify(err) {
	case services.KindPermanent, services.KindPolicy:
		return store.SeverityCritical
	default:
		return store.SeverityWarning
	}
}

func causeMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
