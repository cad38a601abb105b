package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"gister/internal/logging"
	"gister/internal/pipeline"
	"gister/internal/services"
	"gister/internal/store"
)

// processItem drives one queued item through its stage. Claim races and
// budget holds are quiet no-ops; stage failures are absorbed by the state
// machine's retry/escalation handling and never bubble out as loop errors.
func (m *Manager) processItem(ctx context.Context, item *store.Item) error {
	stg, ok := pipeline.StageForStatus(item.Status)
	if !ok {
		// Another worker advanced the item between fetch and dispatch.
		return nil
	}
	handler := m.handlers[stg]
	if handler == nil {
		m.logger.Warn("no handler configured for stage",
			logging.String(logging.FieldStage, string(stg)))
		return nil
	}

	ctx = services.WithRequestID(ctx, uuid.NewString())
	ctx = services.WithItemKey(ctx, item.NaturalKey)
	ctx = services.WithStage(ctx, string(stg))
	stageLogger := logging.WithContext(ctx, m.logger)

	exec, err := m.machine.Begin(ctx, item)
	if err != nil {
		stageLogger.Error("failed to claim item", logging.Error(err))
		return err
	}
	if exec == nil {
		return nil
	}

	stageStart := time.Now()
	stageLogger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("status", string(item.Status)),
	)

	if err := handler.Prepare(ctx, item); err != nil {
		return m.finishFailed(ctx, stageLogger, exec, err)
	}

	result, execErr := handler.Execute(ctx, item)
	if execErr != nil {
		if errors.Is(execErr, context.Canceled) {
			stageLogger.Debug("stage interrupted by shutdown")
			if abortErr := m.machine.Abort(context.WithoutCancel(ctx), exec); abortErr != nil {
				stageLogger.Error("failed to abort interrupted stage", logging.Error(abortErr))
			}
			return execErr
		}
		return m.finishFailed(ctx, stageLogger, exec, execErr)
	}

	if err := m.machine.Complete(ctx, exec, result); err != nil {
		stageLogger.Error("failed to persist stage result", logging.Error(err))
		return err
	}
	stageLogger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_status", string(item.Status)),
		logging.Duration("stage_duration", time.Since(stageStart)),
	)
	if item.Status == store.StatusDone {
		if err := m.notifier.NotifyItemCompleted(ctx, item.NaturalKey, item.Title); err != nil {
			stageLogger.Debug("completion notification failed", logging.Error(err))
		}
	}
	return nil
}

// finishFailed routes a stage error through the machine. The underlying
// stage error is recorded, not returned: a failed item is handled work, not
// a loop failure.
func (m *Manager) finishFailed(ctx context.Context, stageLogger *slog.Logger, exec *pipeline.Execution, cause error) error {
	if err := m.machine.Fail(ctx, exec, cause); err != nil {
		stageLogger.Error("failed to persist stage failure", logging.Error(err))
		return err
	}
	return nil
}
