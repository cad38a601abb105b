package stages_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"gister/internal/discovery"
	"gister/internal/logging"
	"gister/internal/services"
	"gister/internal/stages"
	"gister/internal/store"
	"gister/internal/testsupport"
)

type stubTranscriber struct {
	result stages.Transcription
	err    error
}

func (s stubTranscriber) Transcribe(context.Context, string) (stages.Transcription, error) {
	return s.result, s.err
}
func (s stubTranscriber) Healthy(context.Context) error { return s.err }

type stubSummarizer struct {
	summary stages.Summary
	err     error
}

func (s stubSummarizer) Summarize(context.Context, string, string) (stages.Summary, error) {
	return s.summary, s.err
}
func (s stubSummarizer) Healthy(context.Context) error { return s.err }

type markSheet struct {
	marked []string
	err    error
}

func (s *markSheet) PendingRows(context.Context) ([]discovery.BackfillRow, error) {
	return nil, nil
}

func (s *markSheet) MarkProcessed(_ context.Context, rowID string) error {
	if s.err != nil {
		return s.err
	}
	s.marked = append(s.marked, rowID)
	return nil
}

func TestTranscribeHandlerReportsCostAndDuration(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.NewItem(t, st, "vid-t")
	handler := stages.NewTranscribeHandler(stubTranscriber{result: stages.Transcription{
		TranscriptRef:   "tr-1",
		DurationSeconds: 900,
		Cost:            0.22,
	}}, st, logging.NewNop())

	if err := handler.Prepare(ctx, item); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	result, err := handler.Execute(ctx, item)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.ActualCost != 0.22 || result.ExternalRef != "tr-1" {
		t.Fatalf("unexpected result: %#v", result)
	}

	// Discovery's duration guess is corrected with the worker's value.
	fetched, err := st.GetByKey(ctx, item.NaturalKey)
	if err != nil {
		t.Fatalf("GetByKey failed: %v", err)
	}
	if fetched.DurationSeconds != 900 {
		t.Fatalf("duration not corrected: %d", fetched.DurationSeconds)
	}
}

func TestTranscribeHandlerPrepareValidation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	missing := stages.NewTranscribeHandler(nil, st, logging.NewNop())
	if err := missing.Prepare(context.Background(), &store.Item{NaturalKey: "vid"}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}

	handler := stages.NewTranscribeHandler(stubTranscriber{}, st, logging.NewNop())
	if err := handler.Prepare(context.Background(), &store.Item{}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSummarizeHandlerUsesResolvedTranscriptRef(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.NewItem(t, st, "vid-s")
	job, err := st.EnsureJob(ctx, item.NaturalKey, store.StageTranscribe)
	if err != nil {
		t.Fatalf("EnsureJob failed: %v", err)
	}
	if err := st.SetJobExternalRef(ctx, job.ID, "tr-7"); err != nil {
		t.Fatalf("SetJobExternalRef failed: %v", err)
	}
	if err := st.ResolveJob(ctx, job.ID); err != nil {
		t.Fatalf("ResolveJob failed: %v", err)
	}

	handler := stages.NewSummarizeHandler(stubSummarizer{summary: stages.Summary{
		SummaryRef: "sum-1",
		Cost:       0.03,
	}}, st, logging.NewNop())

	result, err := handler.Execute(ctx, item)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.ExternalRef != "sum-1" || result.ActualCost != 0.03 {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestSummarizeHandlerMissingTranscriptIsPermanent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.NewItem(t, st, "vid-nref")
	handler := stages.NewSummarizeHandler(stubSummarizer{}, st, logging.NewNop())

	_, err := handler.Execute(ctx, item)
	if !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestFinalizeHandlerMarksBackfillRows(t *testing.T) {
	sheet := &markSheet{}
	handler := stages.NewFinalizeHandler(sheet, logging.NewNop())
	ctx := context.Background()

	backfill := &store.Item{
		NaturalKey:  "vid-b",
		Source:      store.SourceBackfill,
		SheetOrigin: "row-2",
	}
	if _, err := handler.Execute(ctx, backfill); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(sheet.marked) != 1 || sheet.marked[0] != "row-2" {
		t.Fatalf("sheet row not marked: %#v", sheet.marked)
	}

	// Automated items never touch the sheet.
	automated := &store.Item{NaturalKey: "vid-a", Source: store.SourceAutomated}
	if _, err := handler.Execute(ctx, automated); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(sheet.marked) != 1 {
		t.Fatalf("automated item marked a sheet row: %#v", sheet.marked)
	}
}

func TestFinalizeHandlerPropagatesMarkFailure(t *testing.T) {
	sheet := &markSheet{err: fmt.Errorf("%w: sheet unavailable", services.ErrTransient)}
	handler := stages.NewFinalizeHandler(sheet, logging.NewNop())

	item := &store.Item{NaturalKey: "vid-b", Source: store.SourceBackfill, SheetOrigin: "row-9"}
	if _, err := handler.Execute(context.Background(), item); !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestHandlerHealthChecks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	healthy := stages.NewTranscribeHandler(stubTranscriber{}, st, logging.NewNop())
	if health := healthy.HealthCheck(ctx); !health.Ready {
		t.Fatalf("expected ready, got %#v", health)
	}

	broken := stages.NewTranscribeHandler(stubTranscriber{err: errors.New("down")}, st, logging.NewNop())
	if health := broken.HealthCheck(ctx); health.Ready || health.Detail == "" {
		t.Fatalf("expected unhealthy with detail, got %#v", health)
	}

	unconfigured := stages.NewSummarizeHandler(nil, st, logging.NewNop())
	if health := unconfigured.HealthCheck(ctx); health.Ready {
		t.Fatalf("expected unhealthy, got %#v", health)
	}

	finalize := stages.NewFinalizeHandler(nil, logging.NewNop())
	if health := finalize.HealthCheck(ctx); !health.Ready {
		t.Fatalf("finalize should always be ready, got %#v", health)
	}
}
