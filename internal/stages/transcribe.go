package stages

import (
	"context"
	"fmt"
	"log/slog"

	"gister/internal/logging"
	"gister/internal/services"
	"gister/internal/stage"
	"gister/internal/store"
)

// TranscribeHandler submits items for transcription. Cost reported by the
// worker reconciles the stage's budget reservation.
type TranscribeHandler struct {
	client Transcriber
	store  *store.Store
	logger *slog.Logger
}

func NewTranscribeHandler(client Transcriber, st *store.Store, logger *slog.Logger) *TranscribeHandler {
	return &TranscribeHandler{
		client: client,
		store:  st,
		logger: logging.NewComponentLogger(logger, "transcribe"),
	}
}

func (h *TranscribeHandler) Prepare(ctx context.Context, item *store.Item) error {
	if h.client == nil {
		return fmt.Errorf("%w: transcriber not configured", services.ErrConfiguration)
	}
	if item.NaturalKey == "" {
		return fmt.Errorf("%w: item has no natural key", services.ErrValidation)
	}
	return nil
}

func (h *TranscribeHandler) Execute(ctx context.Context, item *store.Item) (stage.Result, error) {
	result, err := h.client.Transcribe(ctx, item.NaturalKey)
	if err != nil {
		return stage.Result{}, err
	}

	// The worker reports the real media length; correct discovery's value
	// so downstream views show the truth.
	if result.DurationSeconds > 0 && result.DurationSeconds != item.DurationSeconds {
		if err := h.store.SetItemDuration(ctx, item.NaturalKey, result.DurationSeconds); err != nil {
			h.logger.Warn("failed to update item duration", logging.Error(err))
		} else {
			item.DurationSeconds = result.DurationSeconds
		}
	}

	h.logger.Info("transcription finished",
		logging.String(logging.FieldItemKey, item.NaturalKey),
		logging.String("transcript_ref", result.TranscriptRef),
		logging.Float64("cost", result.Cost),
	)
	return stage.Result{ActualCost: result.Cost, ExternalRef: result.TranscriptRef}, nil
}

func (h *TranscribeHandler) HealthCheck(ctx context.Context) stage.Health {
	if h.client == nil {
		return stage.Unhealthy("transcribe", "transcriber not configured")
	}
	if err := h.client.Healthy(ctx); err != nil {
		return stage.Unhealthy("transcribe", err.Error())
	}
	return stage.Healthy("transcribe")
}
