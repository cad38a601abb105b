package api_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"gister/internal/api"
	"gister/internal/budget"
	"gister/internal/checkpoint"
	"gister/internal/config"
	"gister/internal/deadletter"
	"gister/internal/logging"
	"gister/internal/services"
	"gister/internal/stage"
	"gister/internal/store"
	"gister/internal/testsupport"
	"gister/internal/workflow"
)

type stubStatus struct {
	summary workflow.StatusSummary
}

func (s stubStatus) Status(context.Context) workflow.StatusSummary { return s.summary }

func newService(t *testing.T, cfg *config.Config, st *store.Store, status api.StatusProvider) *api.Service {
	t.Helper()
	logger := logging.NewNop()
	enforcer := budget.NewEnforcer(cfg, st, logger, nil)
	checkpoints := checkpoint.NewManager(st, logger)
	deadletters := deadletter.NewManager(st, logger, nil)
	return api.NewService(st, status, enforcer, checkpoints, deadletters)
}

func TestStatusWithProvider(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	provider := stubStatus{summary: workflow.StatusSummary{
		Running:  true,
		Counts:   store.StatusCounts{store.StatusDiscovered: 2},
		OpenJobs: 1,
		StageHealth: map[string]stage.Health{
			"transcription": stage.Healthy("transcribe"),
		},
	}}
	svc := newService(t, cfg, st, provider)

	status, err := svc.Status(context.Background())
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !status.Running || status.OpenJobs != 1 {
		t.Fatalf("unexpected status: %#v", status)
	}
	if status.Counts["discovered"] != 2 {
		t.Fatalf("unexpected counts: %#v", status.Counts)
	}
	if len(status.Budget) != 2 {
		t.Fatalf("expected both budget dimensions, got %d", len(status.Budget))
	}
	if len(status.StageHealth) != 1 || !status.StageHealth[0].Ready {
		t.Fatalf("unexpected stage health: %#v", status.StageHealth)
	}
}

func TestStatusWithoutProviderFallsBackToCounts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	svc := newService(t, cfg, st, nil)

	testsupport.NewItem(t, st, "vid-1")
	testsupport.NewItem(t, st, "vid-2")

	status, err := svc.Status(context.Background())
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Running {
		t.Fatal("no provider should mean not running")
	}
	if status.Counts["discovered"] != 2 {
		t.Fatalf("unexpected counts: %#v", status.Counts)
	}
}

func TestItemsAndDetail(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	svc := newService(t, cfg, st, nil)
	ctx := context.Background()

	item := testsupport.NewItem(t, st, "vid-detail")
	job, err := st.EnsureJob(ctx, item.NaturalKey, store.StageTranscribe)
	if err != nil {
		t.Fatalf("EnsureJob failed: %v", err)
	}
	if err := st.RecordJobFailure(ctx, job, store.FailureRecord{Kind: "transient", Message: "worker 503"}, nil); err != nil {
		t.Fatalf("RecordJobFailure failed: %v", err)
	}

	items, err := svc.Items(ctx, store.StatusDiscovered)
	if err != nil {
		t.Fatalf("Items failed: %v", err)
	}
	if len(items) != 1 || items[0].NaturalKey != "vid-detail" {
		t.Fatalf("unexpected items: %#v", items)
	}
	if items[0].Status != "discovered" {
		t.Fatalf("unexpected status: %q", items[0].Status)
	}

	detail, jobs, err := svc.ItemDetail(ctx, "vid-detail")
	if err != nil {
		t.Fatalf("ItemDetail failed: %v", err)
	}
	if detail == nil || detail.NaturalKey != "vid-detail" {
		t.Fatalf("unexpected detail: %#v", detail)
	}
	if len(jobs) != 1 || jobs[0].Attempts != 1 || len(jobs[0].Failures) != 1 {
		t.Fatalf("unexpected jobs: %#v", jobs)
	}

	missing, _, err := svc.ItemDetail(ctx, "no-such-item")
	if err != nil {
		t.Fatalf("ItemDetail for unknown key failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown key, got %#v", missing)
	}
}

func TestRequeueDeadLetterMutation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	svc := newService(t, cfg, st, nil)
	ctx := context.Background()

	item := testsupport.NewItem(t, st, "vid-parked")
	if err := st.TransitionStatus(ctx, item.NaturalKey, store.StatusDiscovered, store.StatusTranscribing, ""); err != nil {
		t.Fatalf("TransitionStatus failed: %v", err)
	}
	item.Status = store.StatusTranscribing
	job, err := st.EnsureJob(ctx, item.NaturalKey, store.StageTranscribe)
	if err != nil {
		t.Fatalf("EnsureJob failed: %v", err)
	}
	dl := deadletter.NewManager(st, logging.NewNop(), nil)
	entry, err := dl.Escalate(ctx, item, job, fmt.Errorf("%w: worker 503", services.ErrTransient))
	if err != nil {
		t.Fatalf("Escalate failed: %v", err)
	}

	listed, err := svc.DeadLetters(ctx, store.DeadLetterFilter{})
	if err != nil {
		t.Fatalf("DeadLetters failed: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != entry.ID {
		t.Fatalf("unexpected entries: %#v", listed)
	}

	requeued, err := svc.RequeueDeadLetter(ctx, entry.ID)
	if err != nil {
		t.Fatalf("RequeueDeadLetter failed: %v", err)
	}
	if requeued.RequeuedAt == "" {
		t.Fatal("requeue timestamp missing from DTO")
	}

	if _, err := svc.RequeueDeadLetter(ctx, "unknown"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found marker, got %v", err)
	}
}

func TestBudgetCheckpointsAudit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	svc := newService(t, cfg, st, nil)
	ctx := context.Background()

	days, err := svc.Budget(ctx)
	if err != nil {
		t.Fatalf("Budget failed: %v", err)
	}
	if len(days) != 2 {
		t.Fatalf("expected two dimensions, got %d", len(days))
	}
	for _, day := range days {
		if day.Remaining != day.Limit {
			t.Fatalf("untouched dimension should have full headroom: %#v", day)
		}
	}

	if err := st.AppendAudit(ctx, "guard", "admit", "item", "vid-1", "source=automated"); err != nil {
		t.Fatalf("AppendAudit failed: %v", err)
	}
	records, err := svc.Audit(ctx, 10)
	if err != nil {
		t.Fatalf("Audit failed: %v", err)
	}
	if len(records) != 1 || records[0].Action != "admit" {
		t.Fatalf("unexpected audit records: %#v", records)
	}

	cps, err := svc.Checkpoints(ctx)
	if err != nil {
		t.Fatalf("Checkpoints failed: %v", err)
	}
	if len(cps) != 0 {
		t.Fatalf("expected no checkpoints yet, got %#v", cps)
	}
}
