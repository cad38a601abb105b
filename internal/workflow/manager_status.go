package workflow

import (
	"context"

	"gister/internal/logging"
	"gister/internal/stage"
	"gister/internal/store"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running     bool
	LastError   string
	Counts      store.StatusCounts
	OpenJobs    int
	StageHealth map[string]stage.Health
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	running := m.running
	lastErr := m.lastErr
	handlers := make(map[store.Stage]stage.Handler, len(m.handlers))
	for stg, handler := range m.handlers {
		handlers[stg] = handler
	}
	m.mu.RUnlock()

	counts, err := m.store.CountsByStatus(ctx)
	if err != nil {
		m.logger.Warn("failed to read status counts", logging.Error(err))
	}
	openJobs, err := m.store.OpenJobCount(ctx)
	if err != nil {
		m.logger.Warn("failed to read open job count", logging.Error(err))
	}

	health := make(map[string]stage.Health, len(handlers))
	for stg, handler := range handlers {
		if handler == nil {
			continue
		}
		health[string(stg)] = handler.HealthCheck(ctx)
	}

	summary := StatusSummary{
		Running:     running,
		Counts:      counts,
		OpenJobs:    openJobs,
		StageHealth: health,
	}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	return summary
}
