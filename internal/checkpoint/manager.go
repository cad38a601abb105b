// Package checkpoint tracks per-source discovery watermarks. Watermarks only
// move forward: a crashed or duplicated discovery pass can re-submit an old
// position without rewinding the frontier.
package checkpoint

import (
	"context"
	"log/slog"
	"time"

	"gister/internal/logging"
	"gister/internal/store"
)

// Manager mediates checkpoint reads and advances for discovery sources.
type Manager struct {
	store  *store.Store
	logger *slog.Logger
}

func NewManager(st *store.Store, logger *slog.Logger) *Manager {
	return &Manager{
		store:  st,
		logger: logging.NewComponentLogger(logger, "checkpoint"),
	}
}

// Get returns the current watermark for a source, or nil when the source has
// never completed a pass.
func (m *Manager) Get(ctx context.Context, sourceID string) (*store.Checkpoint, error) {
	return m.store.GetCheckpoint(ctx, sourceID)
}

// Advance moves the watermark forward. A submission at or behind the stored
// watermark is a no-op and logged; stale passes must never rewind the
// frontier.
func (m *Manager) Advance(ctx context.Context, sourceID string, watermark time.Time) error {
	advanced, err := m.store.AdvanceCheckpoint(ctx, sourceID, watermark)
	if err != nil {
		return err
	}
	if !advanced {
		m.logger.Warn("checkpoint not advanced, submitted watermark is not newer",
			logging.String(logging.FieldSource, sourceID),
			logging.Time("watermark", watermark),
		)
		return nil
	}
	m.logger.Info("checkpoint advanced",
		logging.String(logging.FieldSource, sourceID),
		logging.Time("watermark", watermark),
	)
	return nil
}

// List returns every known checkpoint for the operational surface.
func (m *Manager) List(ctx context.Context) ([]*store.Checkpoint, error) {
	return m.store.ListCheckpoints(ctx)
}
