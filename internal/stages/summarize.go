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

// SummarizeHandler produces a summary from the item's finished transcript.
// The transcript reference comes from the resolved transcription job.
type SummarizeHandler struct {
	client Summarizer
	store  *store.Store
	logger *slog.Logger
}

func NewSummarizeHandler(client Summarizer, st *store.Store, logger *slog.Logger) *SummarizeHandler {
	return &SummarizeHandler{
		client: client,
		store:  st,
		logger: logging.NewComponentLogger(logger, "summarize"),
	}
}

func (h *SummarizeHandler) Prepare(ctx context.Context, item *store.Item) error {
	if h.client == nil {
		return fmt.Errorf("%w: summarizer not configured", services.ErrConfiguration)
	}
	return nil
}

func (h *SummarizeHandler) Execute(ctx context.Context, item *store.Item) (stage.Result, error) {
	transcriptRef, err := h.transcriptRef(ctx, item.NaturalKey)
	if err != nil {
		return stage.Result{}, err
	}

	summary, err := h.client.Summarize(ctx, item.NaturalKey, transcriptRef)
	if err != nil {
		return stage.Result{}, err
	}
	h.logger.Info("summary finished",
		logging.String(logging.FieldItemKey, item.NaturalKey),
		logging.String("summary_ref", summary.SummaryRef),
	)
	return stage.Result{ActualCost: summary.Cost, ExternalRef: summary.SummaryRef}, nil
}

// transcriptRef finds the external reference the transcription stage stored
// on its resolved job. A missing ref means the upstream stage never ran to
// completion, which a requeue of the transcription stage fixes, not a retry
// here.
func (h *SummarizeHandler) transcriptRef(ctx context.Context, itemKey string) (string, error) {
	jobs, err := h.store.JobsForItem(ctx, itemKey)
	if err != nil {
		return "", err
	}
	for i := len(jobs) - 1; i >= 0; i-- {
		job := jobs[i]
		if job.Stage == store.StageTranscribe && job.ResolvedAt != nil && job.ExternalRef != "" {
			return job.ExternalRef, nil
		}
	}
	return "", fmt.Errorf("%w: no resolved transcription job with a transcript ref for %q", services.ErrPermanent, itemKey)
}

func (h *SummarizeHandler) HealthCheck(ctx context.Context) stage.Health {
	if h.client == nil {
		return stage.Unhealthy("summarize", "summarizer not configured")
	}
	if err := h.client.Healthy(ctx); err != nil {
		return stage.Unhealthy("summarize", err.Error())
	}
	return stage.Healthy("summarize")
}
