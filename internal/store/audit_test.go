package store_test

import (
	"context"
	"fmt"
	"testing"

	"gister/internal/testsupport"
)

func TestRecentAuditReturnsNewestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := st.AppendAudit(ctx, "guard", "admit", "item", fmt.Sprintf("vid-%d", i), "source=automated"); err != nil {
			t.Fatalf("AppendAudit failed: %v", err)
		}
	}

	entries, err := st.RecentAudit(ctx, 3)
	if err != nil {
		t.Fatalf("RecentAudit failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].EntityID != "vid-4" || entries[2].EntityID != "vid-2" {
		t.Fatalf("unexpected order: %q .. %q", entries[0].EntityID, entries[2].EntityID)
	}
	if entries[0].Actor != "guard" || entries[0].Action != "admit" {
		t.Fatalf("unexpected entry: %#v", entries[0])
	}
}

func TestRecentAuditDefaultsLimit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if err := st.AppendAudit(ctx, "dead-letter", "escalate", "item", "vid-x", ""); err != nil {
		t.Fatalf("AppendAudit failed: %v", err)
	}
	entries, err := st.RecentAudit(ctx, 0)
	if err != nil {
		t.Fatalf("RecentAudit failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Details != "" {
		t.Fatalf("expected empty details, got %q", entries[0].Details)
	}
}
