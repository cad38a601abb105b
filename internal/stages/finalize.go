package stages

import (
	"context"
	"log/slog"

	"gister/internal/discovery"
	"gister/internal/logging"
	"gister/internal/stage"
	"gister/internal/store"
)

// FinalizeHandler archives a summarized item. For manual backfill items it
// marks the originating sheet row processed so the intake list stays in sync
// with what actually finished; marking failures are transient and retried.
type FinalizeHandler struct {
	sheet  discovery.Sheet
	logger *slog.Logger
}

func NewFinalizeHandler(sheet discovery.Sheet, logger *slog.Logger) *FinalizeHandler {
	return &FinalizeHandler{
		sheet:  sheet,
		logger: logging.NewComponentLogger(logger, "finalize"),
	}
}

func (h *FinalizeHandler) Prepare(ctx context.Context, item *store.Item) error {
	return nil
}

func (h *FinalizeHandler) Execute(ctx context.Context, item *store.Item) (stage.Result, error) {
	if item.Source == store.SourceBackfill && item.SheetOrigin != "" && h.sheet != nil {
		if err := h.sheet.MarkProcessed(ctx, item.SheetOrigin); err != nil {
			return stage.Result{}, err
		}
		h.logger.Info("backfill row marked processed",
			logging.String(logging.FieldItemKey, item.NaturalKey),
			logging.String("sheet_origin", item.SheetOrigin),
		)
	}
	return stage.Result{}, nil
}

func (h *FinalizeHandler) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy("finalize")
}
