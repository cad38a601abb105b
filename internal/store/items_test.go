package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"gister/internal/store"
	"gister/internal/testsupport"
)

func TestUpsertItemInsertsAndRefreshes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item, err := st.UpsertItem(ctx, store.Candidate{
		NaturalKey:      "vid-1",
		Title:           "First Title",
		DurationSeconds: 300,
		PublishedAt:     time.Now().UTC().Add(-time.Hour),
		Source:          store.SourceAutomated,
	}, store.StatusDiscovered)
	if err != nil {
		t.Fatalf("UpsertItem failed: %v", err)
	}
	if item.ID == 0 {
		t.Fatal("expected item ID to be assigned")
	}
	if item.Status != store.StatusDiscovered {
		t.Fatalf("unexpected status %q", item.Status)
	}

	// Re-admitting the same key must not touch status or created_at, only
	// mutable metadata.
	again, err := st.UpsertItem(ctx, store.Candidate{
		NaturalKey: "vid-1",
		Title:      "Corrected Title",
		Source:     store.SourceBackfill,
	}, store.StatusDone)
	if err != nil {
		t.Fatalf("second UpsertItem failed: %v", err)
	}
	if again.ID != item.ID {
		t.Fatalf("expected same row, got %d and %d", item.ID, again.ID)
	}
	if again.Status != store.StatusDiscovered {
		t.Fatalf("upsert regressed status to %q", again.Status)
	}
	if again.Title != "Corrected Title" {
		t.Fatalf("expected title refresh, got %q", again.Title)
	}
	if !again.CreatedAt.Equal(item.CreatedAt) {
		t.Fatalf("created_at changed: %v -> %v", item.CreatedAt, again.CreatedAt)
	}
}

func TestNextQueuedDrainsDownstreamFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	advance := func(key string, path ...store.Status) {
		t.Helper()
		item := testsupport.NewItem(t, st, key)
		from := item.Status
		for _, to := range path {
			if err := st.TransitionStatus(ctx, key, from, to, ""); err != nil {
				t.Fatalf("TransitionStatus %s -> %s failed: %v", from, to, err)
			}
			from = to
		}
	}

	// Oldest item stays at the top of the pipeline; newer ones sit further
	// down. Downstream work must still come out first.
	advance("vid-waiting")
	advance("vid-mid", store.StatusTranscribing, store.StatusTranscribed)
	advance("vid-late", store.StatusTranscribing, store.StatusTranscribed,
		store.StatusSummarizing, store.StatusSummarized)

	items, err := st.NextQueued(ctx, 10,
		store.StatusSummarized, store.StatusTranscribed, store.StatusDiscovered)
	if err != nil {
		t.Fatalf("NextQueued failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected three queued items, got %d", len(items))
	}
	got := []string{items[0].NaturalKey, items[1].NaturalKey, items[2].NaturalKey}
	want := []string{"vid-late", "vid-mid", "vid-waiting"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("drain order %v, want %v", got, want)
		}
	}
}

func TestUpsertItemAttachesSheetOriginOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, err := st.UpsertItem(ctx, store.Candidate{
		NaturalKey: "vid-sheet",
		Title:      "Auto Discovered",
		Source:     store.SourceAutomated,
	}, store.StatusDiscovered); err != nil {
		t.Fatalf("UpsertItem failed: %v", err)
	}

	// A backfill row re-discovering the item must record its sheet row so
	// finalize can mark the row processed.
	item, err := st.UpsertItem(ctx, store.Candidate{
		NaturalKey:  "vid-sheet",
		Source:      store.SourceBackfill,
		SheetOrigin: "row-9",
	}, store.StatusDiscovered)
	if err != nil {
		t.Fatalf("second UpsertItem failed: %v", err)
	}
	if item.SheetOrigin != "row-9" {
		t.Fatalf("sheet origin not attached: %q", item.SheetOrigin)
	}

	// An already-attached origin wins over later rows for the same key.
	item, err = st.UpsertItem(ctx, store.Candidate{
		NaturalKey:  "vid-sheet",
		Source:      store.SourceBackfill,
		SheetOrigin: "row-10",
	}, store.StatusDiscovered)
	if err != nil {
		t.Fatalf("third UpsertItem failed: %v", err)
	}
	if item.SheetOrigin != "row-9" {
		t.Fatalf("sheet origin overwritten: %q", item.SheetOrigin)
	}
}

func TestUpsertItemRequiresKey(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	if _, err := st.UpsertItem(context.Background(), store.Candidate{}, store.StatusDiscovered); err == nil {
		t.Fatal("expected error for empty natural key")
	}
}

func TestTransitionStatusEnforcesCompareAndSwap(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.NewItem(t, st, "vid-cas")
	if err := st.TransitionStatus(ctx, item.NaturalKey, store.StatusDiscovered, store.StatusTranscribing, ""); err != nil {
		t.Fatalf("TransitionStatus failed: %v", err)
	}

	// Second claim against the stale expected status must lose.
	err := st.TransitionStatus(ctx, item.NaturalKey, store.StatusDiscovered, store.StatusTranscribing, "")
	if !errors.Is(err, store.ErrStatusConflict) {
		t.Fatalf("expected ErrStatusConflict, got %v", err)
	}

	fetched, err := st.GetByKey(ctx, item.NaturalKey)
	if err != nil {
		t.Fatalf("GetByKey failed: %v", err)
	}
	if fetched.Status != store.StatusTranscribing {
		t.Fatalf("unexpected status %q", fetched.Status)
	}
}

func TestTransitionStatusRejectsIllegalPairs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.NewItem(t, st, "vid-illegal")
	cases := []struct {
		from store.Status
		to   store.Status
	}{
		{store.StatusDiscovered, store.StatusSummarizing},
		{store.StatusDiscovered, store.StatusDone},
		{store.StatusDone, store.StatusDiscovered},
		{store.StatusDiscovered, store.StatusDiscovered},
	}
	for _, tc := range cases {
		err := st.TransitionStatus(ctx, item.NaturalKey, tc.from, tc.to, "")
		if err == nil {
			t.Fatalf("expected %s -> %s to be rejected", tc.from, tc.to)
		}
		if errors.Is(err, store.ErrStatusConflict) {
			t.Fatalf("%s -> %s should fail validation before the database, got conflict", tc.from, tc.to)
		}
	}
}

func TestIsLegalTransitionAbsorbingStatuses(t *testing.T) {
	if !store.IsLegalTransition(store.StatusSummarizing, store.StatusDeadLettered) {
		t.Fatal("dead-lettering from a processing status must be legal")
	}
	if !store.IsLegalTransition(store.StatusDiscovered, store.StatusRejected) {
		t.Fatal("rejection from discovered must be legal")
	}
	if store.IsLegalTransition(store.StatusDone, store.StatusDeadLettered) {
		t.Fatal("terminal items must not be dead-lettered")
	}
	if store.IsLegalTransition(store.StatusDeadLettered, store.StatusDeadLettered) {
		t.Fatal("self transition must be illegal")
	}
	if !store.IsLegalTransition(store.StatusDeadLettered, store.StatusTranscribed) {
		t.Fatal("requeue out of dead letter must be legal")
	}
}

func TestNextQueuedHonorsRetryBackoff(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	ready := testsupport.NewItem(t, st, "vid-ready")
	waiting := testsupport.NewItem(t, st, "vid-waiting")

	job, err := st.EnsureJob(ctx, waiting.NaturalKey, store.StageTranscribe)
	if err != nil {
		t.Fatalf("EnsureJob failed: %v", err)
	}
	future := time.Now().UTC().Add(time.Hour)
	if err := st.RecordJobFailure(ctx, job, store.FailureRecord{Kind: "transient", Message: "boom"}, &future); err != nil {
		t.Fatalf("RecordJobFailure failed: %v", err)
	}

	items, err := st.NextQueued(ctx, 10, store.StatusDiscovered)
	if err != nil {
		t.Fatalf("NextQueued failed: %v", err)
	}
	if len(items) != 1 || items[0].NaturalKey != ready.NaturalKey {
		t.Fatalf("expected only the ready item, got %d items", len(items))
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := store.ParseStatus(" Transcribed "); !ok || status != store.StatusTranscribed {
		t.Fatalf("unexpected parse result %q %v", status, ok)
	}
	if _, ok := store.ParseStatus("bogus"); ok {
		t.Fatal("expected unknown status to fail")
	}
	if _, ok := store.ParseStatus(""); ok {
		t.Fatal("expected empty status to fail")
	}
}

func TestCountsByStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewItem(t, st, "vid-a")
	testsupport.NewItem(t, st, "vid-b")
	item := testsupport.NewItem(t, st, "vid-c")
	if err := st.TransitionStatus(ctx, item.NaturalKey, store.StatusDiscovered, store.StatusTranscribing, ""); err != nil {
		t.Fatalf("TransitionStatus failed: %v", err)
	}

	counts, err := st.CountsByStatus(ctx)
	if err != nil {
		t.Fatalf("CountsByStatus failed: %v", err)
	}
	if counts[store.StatusDiscovered] != 2 || counts[store.StatusTranscribing] != 1 {
		t.Fatalf("unexpected counts: %#v", counts)
	}
}
