// Package pipeline implements the admission guard and the item state
// machine. The guard makes discovery idempotent; the machine owns every
// status transition, retry decision, and budget interaction for an item's
// trip through the stages.
package pipeline

import (
	"context"
	"log/slog"

	"gister/internal/logging"
	"gister/internal/store"
)

// Admission is the guard's verdict on a candidate.
type Admission string

const (
	Admitted      Admission = "admitted"
	SkipDuplicate Admission = "skip_duplicate"
	SkipTerminal  Admission = "skip_terminal"
)

// Guard decides whether a discovered candidate enters the pipeline. The
// natural key is the sole identity: the same video surfacing from automated
// discovery and a manual backfill is one item.
type Guard struct {
	store  *store.Store
	logger *slog.Logger
}

func NewGuard(st *store.Store, logger *slog.Logger) *Guard {
	return &Guard{
		store:  st,
		logger: logging.NewComponentLogger(logger, "guard"),
	}
}

// Store exposes the backing store for collaborators that record their own
// admission outcomes, like the discovery eligibility filter.
func (g *Guard) Store() *store.Store {
	return g.store
}

// Admit evaluates one candidate. New keys are inserted as discovered. Known
// keys are skipped: a duplicate of work still pending or in flight reports
// SkipDuplicate, while an item that already progressed past admission, was
// rejected, or was dead lettered reports SkipTerminal. Skips still refresh
// mutable metadata such as the title, never the status or timestamps.
func (g *Guard) Admit(ctx context.Context, candidate store.Candidate) (Admission, *store.Item, error) {
	existing, err := g.store.GetByKey(ctx, candidate.NaturalKey)
	if err != nil {
		return "", nil, err
	}
	if existing != nil {
		verdict, err := g.verdictFor(ctx, existing)
		if err != nil {
			return "", nil, err
		}
		refreshed, err := g.store.UpsertItem(ctx, candidate, existing.Status)
		if err != nil {
			return "", nil, err
		}
		g.logger.Debug("candidate skipped",
			logging.String(logging.FieldItemKey, candidate.NaturalKey),
			logging.String("verdict", string(verdict)),
			logging.String("status", string(existing.Status)),
		)
		return verdict, refreshed, nil
	}

	item, err := g.store.UpsertItem(ctx, candidate, store.StatusDiscovered)
	if err != nil {
		return "", nil, err
	}
	if err := g.store.AppendAudit(ctx, "guard", "admit", "item", item.NaturalKey,
		"source="+string(candidate.Source)); err != nil {
		g.logger.Warn("audit append failed", logging.Error(err))
	}
	g.logger.Info("candidate admitted",
		logging.String(logging.FieldItemKey, item.NaturalKey),
		logging.String(logging.FieldSource, string(candidate.Source)),
	)
	return Admitted, item, nil
}

// verdictFor separates a pending duplicate from re-discovery of work that
// already moved on. An item still waiting at admission, or one whose current
// stage holds an unresolved job, is a duplicate of in-flight work; anything
// else is downstream or terminal and must not be re-triggered.
func (g *Guard) verdictFor(ctx context.Context, existing *store.Item) (Admission, error) {
	if existing.Status == store.StatusDiscovered {
		return SkipDuplicate, nil
	}
	if stg, ok := stageForCurrent(existing.Status); ok {
		job, err := g.store.OpenJob(ctx, existing.NaturalKey, stg)
		if err != nil {
			return "", err
		}
		if job != nil {
			return SkipDuplicate, nil
		}
	}
	return SkipTerminal, nil
}
