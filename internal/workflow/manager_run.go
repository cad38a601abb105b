package workflow

import (
	"context"
	"time"

	"gister/internal/config"
	"gister/internal/dispatch"
	"gister/internal/logging"
	"gister/internal/pipeline"
)

// runQueue is the main processing loop: fetch a batch of queued items whose
// backoff has elapsed, fan them across the worker pool, sleep when idle.
func (m *Manager) runQueue(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		items, err := m.store.NextQueued(ctx, m.batchSize, pipeline.QueuedStatuses()...)
		if err != nil {
			m.setLastError(err)
			m.logger.Error("failed to fetch queued items",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_fetch_failed"),
				logging.String(logging.FieldErrorHint, "check state database access"),
			)
			m.waitOrShutdown(ctx, m.pollInterval)
			continue
		}
		if len(items) == 0 {
			m.waitOrShutdown(ctx, m.pollInterval)
			continue
		}

		results := dispatch.RunBatch(ctx, items, m.concurrency, m.processItem)
		for _, result := range results {
			if result.Err != nil {
				m.setLastError(result.Err)
			}
		}
	}
}

// runDiscovery runs interval passes for one configured source.
func (m *Manager) runDiscovery(ctx context.Context, source config.Source) {
	defer m.wg.Done()

	interval := time.Duration(source.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := m.runner.Pass(ctx, source); err != nil && ctx.Err() == nil {
			m.setLastError(err)
			m.logger.Error("discovery pass failed",
				logging.String(logging.FieldSource, source.ID),
				logging.Error(err),
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// runBackfill polls the intake sheet for pending manual requests on the
// queue poll interval.
func (m *Manager) runBackfill(ctx context.Context) {
	defer m.wg.Done()

	for {
		rows, err := m.sheet.PendingRows(ctx)
		if err != nil && ctx.Err() == nil {
			m.setLastError(err)
			m.logger.Error("backfill sheet read failed", logging.Error(err))
		} else if len(rows) > 0 {
			if _, err := m.runner.Backfill(ctx, rows); err != nil && ctx.Err() == nil {
				m.setLastError(err)
				m.logger.Error("backfill ingestion failed", logging.Error(err))
			}
		}
		if !m.waitOrShutdown(ctx, m.pollInterval) {
			return
		}
	}
}

// waitOrShutdown sleeps for d. It returns false when the context was
// cancelled during the wait.
func (m *Manager) waitOrShutdown(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
