package checkpoint_test

import (
	"context"
	"testing"
	"time"

	"gister/internal/checkpoint"
	"gister/internal/logging"
	"gister/internal/testsupport"
)

func TestAdvanceAndGet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	mgr := checkpoint.NewManager(st, logging.NewNop())
	ctx := context.Background()

	cp, err := mgr.Get(ctx, "channel-a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if cp != nil {
		t.Fatalf("expected no checkpoint yet, got %#v", cp)
	}

	watermark := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	if err := mgr.Advance(ctx, "channel-a", watermark); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}

	cp, err = mgr.Get(ctx, "channel-a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if cp == nil || !cp.Watermark.Equal(watermark) {
		t.Fatalf("unexpected checkpoint: %#v", cp)
	}
}

func TestAdvanceIgnoresStaleWatermark(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	mgr := checkpoint.NewManager(st, logging.NewNop())
	ctx := context.Background()

	newer := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	if err := mgr.Advance(ctx, "channel-b", newer); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	// A stale re-submission is absorbed, not an error.
	if err := mgr.Advance(ctx, "channel-b", newer.Add(-time.Hour)); err != nil {
		t.Fatalf("stale Advance errored: %v", err)
	}

	cp, err := mgr.Get(ctx, "channel-b")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !cp.Watermark.Equal(newer) {
		t.Fatalf("watermark rewound to %v", cp.Watermark)
	}
}

func TestListCheckpoints(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	mgr := checkpoint.NewManager(st, logging.NewNop())
	ctx := context.Background()

	now := time.Now().UTC()
	for _, id := range []string{"one", "two"} {
		if err := mgr.Advance(ctx, id, now); err != nil {
			t.Fatalf("Advance failed: %v", err)
		}
	}
	cps, err := mgr.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(cps) != 2 {
		t.Fatalf("expected two checkpoints, got %d", len(cps))
	}
}
