package deadletter_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"gister/internal/deadletter"
	"gister/internal/logging"
	"gister/internal/services"
	"gister/internal/store"
	"gister/internal/testsupport"
)

func escalated(t *testing.T, st *store.Store, mgr *deadletter.Manager, key string, cause error) *store.DeadLetterEntry {
	t.Helper()
	ctx := context.Background()

	item := testsupport.NewItem(t, st, key)
	if err := st.TransitionStatus(ctx, item.NaturalKey, store.StatusDiscovered, store.StatusTranscribing, ""); err != nil {
		t.Fatalf("TransitionStatus failed: %v", err)
	}
	item.Status = store.StatusTranscribing

	job, err := st.EnsureJob(ctx, item.NaturalKey, store.StageTranscribe)
	if err != nil {
		t.Fatalf("EnsureJob failed: %v", err)
	}
	if err := st.RecordJobFailure(ctx, job, store.FailureRecord{Kind: "transient", Message: cause.Error()}, nil); err != nil {
		t.Fatalf("RecordJobFailure failed: %v", err)
	}

	entry, err := mgr.Escalate(ctx, item, job, cause)
	if err != nil {
		t.Fatalf("Escalate failed: %v", err)
	}
	return entry
}

func TestEscalateParksItem(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	mgr := deadletter.NewManager(st, logging.NewNop(), nil)
	ctx := context.Background()

	cause := fmt.Errorf("%w: worker 503", services.ErrTransient)
	entry := escalated(t, st, mgr, "vid-park", cause)

	if entry.Severity != store.SeverityWarning {
		t.Fatalf("transient exhaustion should be warning, got %q", entry.Severity)
	}
	if entry.AttemptCount != 1 || len(entry.FailureHistory) != 1 {
		t.Fatalf("job state not carried: %#v", entry)
	}

	item, err := st.GetByKey(ctx, "vid-park")
	if err != nil {
		t.Fatalf("GetByKey failed: %v", err)
	}
	if item.Status != store.StatusDeadLettered {
		t.Fatalf("item not parked: %q", item.Status)
	}
}

func TestEscalateSeverityForPermanentFaults(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	mgr := deadletter.NewManager(st, logging.NewNop(), nil)

	cause := fmt.Errorf("%w: video deleted upstream", services.ErrPermanent)
	entry := escalated(t, st, mgr, "vid-perm", cause)
	if entry.Severity != store.SeverityCritical {
		t.Fatalf("permanent fault should be critical, got %q", entry.Severity)
	}
}

func TestRequeueRestoresQueuedStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	mgr := deadletter.NewManager(st, logging.NewNop(), nil)
	ctx := context.Background()

	cause := fmt.Errorf("%w: worker 503", services.ErrTransient)
	entry := escalated(t, st, mgr, "vid-requeue", cause)

	requeued, err := mgr.Requeue(ctx, entry.ID)
	if err != nil {
		t.Fatalf("Requeue failed: %v", err)
	}
	if requeued.RequeuedAt == nil {
		t.Fatal("entry not stamped requeued")
	}

	item, err := st.GetByKey(ctx, "vid-requeue")
	if err != nil {
		t.Fatalf("GetByKey failed: %v", err)
	}
	if item.Status != store.StatusDiscovered {
		t.Fatalf("transcription requeue should land on discovered, got %q", item.Status)
	}

	job, err := st.OpenJob(ctx, "vid-requeue", store.StageTranscribe)
	if err != nil {
		t.Fatalf("OpenJob failed: %v", err)
	}
	if job.AttemptCount != 0 {
		t.Fatalf("attempts not reset: %d", job.AttemptCount)
	}
}

func TestRequeueTwiceIsNoOp(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	mgr := deadletter.NewManager(st, logging.NewNop(), nil)
	ctx := context.Background()

	cause := fmt.Errorf("%w: worker 503", services.ErrTransient)
	entry := escalated(t, st, mgr, "vid-double", cause)

	if _, err := mgr.Requeue(ctx, entry.ID); err != nil {
		t.Fatalf("first Requeue failed: %v", err)
	}
	// Move the item along before the second requeue to prove it does not
	// yank the item back.
	if err := st.TransitionStatus(ctx, "vid-double", store.StatusDiscovered, store.StatusTranscribing, ""); err != nil {
		t.Fatalf("TransitionStatus failed: %v", err)
	}

	again, err := mgr.Requeue(ctx, entry.ID)
	if err != nil {
		t.Fatalf("second Requeue failed: %v", err)
	}
	if again.RequeuedAt == nil {
		t.Fatal("second requeue lost the stamp")
	}

	item, err := st.GetByKey(ctx, "vid-double")
	if err != nil {
		t.Fatalf("GetByKey failed: %v", err)
	}
	if item.Status != store.StatusTranscribing {
		t.Fatalf("no-op requeue disturbed the item: %q", item.Status)
	}
}

func TestRequeueUnknownEntry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	mgr := deadletter.NewManager(st, logging.NewNop(), nil)

	_, err := mgr.Requeue(context.Background(), "no-such-entry")
	if err == nil {
		t.Fatal("expected error for unknown entry")
	}
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found marker, got %v", err)
	}
}

func TestEscalateIdempotentForOpenPair(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	mgr := deadletter.NewManager(st, logging.NewNop(), nil)
	ctx := context.Background()

	cause := fmt.Errorf("%w: worker 503", services.ErrTransient)
	entry := escalated(t, st, mgr, "vid-twice", cause)

	// A racing escalator still holds the pre-escalation snapshot; its
	// transition loses the CAS and is tolerated.
	stale, err := st.GetByKey(ctx, "vid-twice")
	if err != nil {
		t.Fatalf("GetByKey failed: %v", err)
	}
	stale.Status = store.StatusTranscribing
	job, err := st.OpenJob(ctx, "vid-twice", store.StageTranscribe)
	if err != nil {
		t.Fatalf("OpenJob failed: %v", err)
	}

	second, err := mgr.Escalate(ctx, stale, job, cause)
	if err != nil {
		t.Fatalf("second Escalate failed: %v", err)
	}
	if second.ID != entry.ID {
		t.Fatalf("duplicate escalation created a second entry: %q vs %q", second.ID, entry.ID)
	}
}
