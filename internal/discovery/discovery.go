// Package discovery runs incremental source scans and manual backfill
// ingestion. Each pass is bounded below by the source checkpoint and above
// by the discovery quota; everything it finds funnels through the admission
// guard so rescans and overlapping passes stay idempotent.
package discovery

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"gister/internal/budget"
	"gister/internal/checkpoint"
	"gister/internal/config"
	"gister/internal/logging"
	"gister/internal/notifications"
	"gister/internal/pipeline"
	"gister/internal/store"
)

// Video is one candidate surfaced by a source scan.
type Video struct {
	NaturalKey      string
	Title           string
	DurationSeconds int
	PublishedAt     time.Time
}

// Client lists videos a source published after the watermark. UnitsUsed is
// the API quota the listing consumed; it reconciles the pass's quota
// reservation.
type Client interface {
	ListSince(ctx context.Context, sourceID string, since time.Time) (videos []Video, unitsUsed float64, err error)
}

// BackfillRow is one manual request row from the intake sheet.
type BackfillRow struct {
	RowID           string
	NaturalKey      string
	Title           string
	DurationSeconds int
	PublishedAt     time.Time
}

// Sheet is the manual backfill intake. Rows are marked processed by the
// finalize stage once their item reaches done, not at ingestion.
type Sheet interface {
	PendingRows(ctx context.Context) ([]BackfillRow, error)
	MarkProcessed(ctx context.Context, rowID string) error
}

// PassStats summarizes one discovery pass for logs and notifications.
type PassStats struct {
	Admitted int
	Rejected int
	Skipped  int
}

// Runner drives discovery passes and backfill ingestion.
type Runner struct {
	client      Client
	guard       *pipeline.Guard
	checkpoints *checkpoint.Manager
	budget      *budget.Enforcer
	notifier    notifications.Service
	logger      *slog.Logger
	minSeconds  int
	maxSeconds  int
}

func NewRunner(cfg *config.Config, client Client, guard *pipeline.Guard, checkpoints *checkpoint.Manager, enforcer *budget.Enforcer, notifier notifications.Service, logger *slog.Logger) *Runner {
	if notifier == nil {
		notifier = notifications.Noop()
	}
	return &Runner{
		client:      client,
		guard:       guard,
		checkpoints: checkpoints,
		budget:      enforcer,
		notifier:    notifier,
		logger:      logging.NewComponentLogger(logger, "discovery"),
		minSeconds:  cfg.Pipeline.MinDurationSeconds,
		maxSeconds:  cfg.Pipeline.MaxDurationSeconds,
	}
}

// Pass scans one source for videos newer than its checkpoint. The checkpoint
// advances to the newest published timestamp only after every candidate has
// been handed to the guard, so a pass that dies halfway is simply re-run.
// A quota denial skips the pass entirely; the next interval retries.
func (r *Runner) Pass(ctx context.Context, source config.Source) (PassStats, error) {
	var stats PassStats

	since := time.Time{}
	cp, err := r.checkpoints.Get(ctx, source.ID)
	if err != nil {
		return stats, err
	}
	if cp != nil {
		since = cp.Watermark
	}

	res, decision, err := r.budget.Reserve(ctx, budget.DimensionDiscovery, r.budget.EstimatedCost(budget.DimensionDiscovery))
	if err != nil {
		return stats, err
	}
	if decision == budget.Deny {
		r.logger.Info("discovery pass held, quota exhausted",
			logging.String(logging.FieldSource, source.ID))
		return stats, nil
	}

	videos, unitsUsed, err := r.client.ListSince(ctx, source.ID, since)
	if err != nil {
		if relErr := r.budget.Release(ctx, res); relErr != nil {
			r.logger.Warn("quota release failed", logging.Error(relErr))
		}
		return stats, err
	}
	if err := r.budget.Commit(ctx, res, unitsUsed); err != nil {
		return stats, err
	}

	sort.Slice(videos, func(i, j int) bool { return videos[i].PublishedAt.Before(videos[j].PublishedAt) })

	var newest time.Time
	for _, video := range videos {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		candidate := store.Candidate{
			NaturalKey:      video.NaturalKey,
			Title:           video.Title,
			DurationSeconds: video.DurationSeconds,
			PublishedAt:     video.PublishedAt,
			Source:          store.SourceAutomated,
		}
		admission, err := r.admit(ctx, candidate)
		if err != nil {
			return stats, err
		}
		stats.count(admission)
		if video.PublishedAt.After(newest) {
			newest = video.PublishedAt
		}
	}

	if !newest.IsZero() {
		if err := r.checkpoints.Advance(ctx, source.ID, newest); err != nil {
			return stats, err
		}
	}

	r.logger.Info("discovery pass finished",
		logging.String(logging.FieldSource, source.ID),
		logging.Int("found", len(videos)),
		logging.Int("admitted", stats.Admitted),
		logging.Int("rejected", stats.Rejected),
		logging.Int("skipped", stats.Skipped),
	)
	if stats.Admitted > 0 {
		if err := r.notifier.NotifyDiscoveryCompleted(ctx, source.ID, stats.Admitted, stats.Rejected+stats.Skipped); err != nil {
			r.logger.Debug("discovery notification failed", logging.Error(err))
		}
	}
	return stats, nil
}

// Backfill ingests pending manual request rows. Rows bypass the duration
// filter: an operator typed them in on purpose. The sheet row is retained on
// the item so the finalize stage can mark it processed.
func (r *Runner) Backfill(ctx context.Context, rows []BackfillRow) (PassStats, error) {
	var stats PassStats
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		admission, _, err := r.guard.Admit(ctx, store.Candidate{
			NaturalKey:      row.NaturalKey,
			Title:           row.Title,
			DurationSeconds: row.DurationSeconds,
			PublishedAt:     row.PublishedAt,
			Source:          store.SourceBackfill,
			SheetOrigin:     row.RowID,
		})
		if err != nil {
			return stats, err
		}
		stats.count(admission)
	}
	r.logger.Info("backfill ingested",
		logging.Int("rows", len(rows)),
		logging.Int("admitted", stats.Admitted),
		logging.Int("skipped", stats.Skipped),
	)
	return stats, nil
}

// admit applies the duration eligibility filter, recording out-of-bounds
// candidates as rejected so rescans do not resurface them.
func (r *Runner) admit(ctx context.Context, candidate store.Candidate) (pipeline.Admission, error) {
	if !r.eligible(candidate.DurationSeconds) {
		existing, err := r.guard.Store().GetByKey(ctx, candidate.NaturalKey)
		if err != nil {
			return "", err
		}
		if existing != nil {
			return pipeline.SkipDuplicate, nil
		}
		if _, err := r.guard.Store().UpsertItem(ctx, candidate, store.StatusRejected); err != nil {
			return "", err
		}
		if err := r.guard.Store().AppendAudit(ctx, "discovery", "reject", "item", candidate.NaturalKey,
			"reason=duration_out_of_bounds"); err != nil {
			r.logger.Warn("audit append failed", logging.Error(err))
		}
		r.logger.Debug("candidate rejected for duration",
			logging.String(logging.FieldItemKey, candidate.NaturalKey),
			logging.Int("duration_seconds", candidate.DurationSeconds),
		)
		return rejected, nil
	}
	admission, _, err := r.guard.Admit(ctx, candidate)
	return admission, err
}

// rejected is a runner-local admission verdict for the eligibility filter.
const rejected pipeline.Admission = "rejected"

// eligible applies the configured duration window. Unknown durations pass;
// the transcription stage will surface the real length.
func (r *Runner) eligible(durationSeconds int) bool {
	if durationSeconds <= 0 {
		return true
	}
	if r.minSeconds > 0 && durationSeconds < r.minSeconds {
		return false
	}
	if r.maxSeconds > 0 && durationSeconds > r.maxSeconds {
		return false
	}
	return true
}

func (s *PassStats) count(admission pipeline.Admission) {
	switch admission {
	case pipeline.Admitted:
		s.Admitted++
	case rejected:
		s.Rejected++
	default:
		s.Skipped++
	}
}
