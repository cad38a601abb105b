package store_test

import (
	"context"
	"testing"

	"gister/internal/store"
	"gister/internal/testsupport"
)

func TestTryReserveBudgetEnforcesLimit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	const day = "2026-08-30"

	ok, err := st.TryReserveBudget(ctx, day, "transcription_cost", 4.80, 5.00, "USD")
	if err != nil {
		t.Fatalf("TryReserveBudget failed: %v", err)
	}
	if !ok {
		t.Fatal("first reservation within limit was denied")
	}
	if err := st.CommitBudget(ctx, day, "transcription_cost", 4.80, 4.80); err != nil {
		t.Fatalf("CommitBudget failed: %v", err)
	}

	// 4.80 used, 0.50 more would exceed 5.00.
	ok, err = st.TryReserveBudget(ctx, day, "transcription_cost", 0.50, 5.00, "USD")
	if err != nil {
		t.Fatalf("TryReserveBudget failed: %v", err)
	}
	if ok {
		t.Fatal("reservation over the limit was allowed")
	}

	// 0.10 still fits.
	ok, err = st.TryReserveBudget(ctx, day, "transcription_cost", 0.10, 5.00, "USD")
	if err != nil {
		t.Fatalf("TryReserveBudget failed: %v", err)
	}
	if !ok {
		t.Fatal("reservation within remaining headroom was denied")
	}
	if err := st.CommitBudget(ctx, day, "transcription_cost", 0.10, 0.10); err != nil {
		t.Fatalf("CommitBudget failed: %v", err)
	}

	state, err := st.BudgetState(ctx, day, "transcription_cost")
	if err != nil {
		t.Fatalf("BudgetState failed: %v", err)
	}
	if state == nil {
		t.Fatal("budget state missing")
	}
	if state.AmountUsed < 4.89 || state.AmountUsed > 4.91 {
		t.Fatalf("expected amount used 4.90, got %f", state.AmountUsed)
	}
	if state.Reserved != 0 {
		t.Fatalf("expected no outstanding reservation, got %f", state.Reserved)
	}
}

func TestReleaseBudgetDropsHoldWithoutSpend(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	const day = "2026-08-30"
	if _, err := st.TryReserveBudget(ctx, day, "transcription_cost", 0.25, 5.00, "USD"); err != nil {
		t.Fatalf("TryReserveBudget failed: %v", err)
	}
	if err := st.ReleaseBudget(ctx, day, "transcription_cost", 0.25); err != nil {
		t.Fatalf("ReleaseBudget failed: %v", err)
	}

	state, err := st.BudgetState(ctx, day, "transcription_cost")
	if err != nil {
		t.Fatalf("BudgetState failed: %v", err)
	}
	if state.AmountUsed != 0 || state.Reserved != 0 {
		t.Fatalf("release left spend behind: %#v", state)
	}
}

func TestCommitBudgetCorrectsEstimate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	const day = "2026-08-30"
	if _, err := st.TryReserveBudget(ctx, day, "transcription_cost", 0.25, 5.00, "USD"); err != nil {
		t.Fatalf("TryReserveBudget failed: %v", err)
	}
	// Actual came in under the estimate.
	if err := st.CommitBudget(ctx, day, "transcription_cost", 0.18, 0.25); err != nil {
		t.Fatalf("CommitBudget failed: %v", err)
	}

	state, err := st.BudgetState(ctx, day, "transcription_cost")
	if err != nil {
		t.Fatalf("BudgetState failed: %v", err)
	}
	if state.AmountUsed < 0.17 || state.AmountUsed > 0.19 {
		t.Fatalf("expected actual spend 0.18, got %f", state.AmountUsed)
	}
	if state.Reserved != 0 {
		t.Fatalf("reservation not fully released: %f", state.Reserved)
	}
}

func TestMarkBudgetWarnedFiresOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	const day = "2026-08-30"
	if _, err := st.TryReserveBudget(ctx, day, "transcription_cost", 4.5, 5.00, "USD"); err != nil {
		t.Fatalf("TryReserveBudget failed: %v", err)
	}

	first, err := st.MarkBudgetWarned(ctx, day, "transcription_cost")
	if err != nil {
		t.Fatalf("MarkBudgetWarned failed: %v", err)
	}
	if !first {
		t.Fatal("first warn flip reported already-warned")
	}
	second, err := st.MarkBudgetWarned(ctx, day, "transcription_cost")
	if err != nil {
		t.Fatalf("second MarkBudgetWarned failed: %v", err)
	}
	if second {
		t.Fatal("warn flag flipped twice")
	}
}

func TestBudgetDaysAreIndependent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	ok, err := st.TryReserveBudget(ctx, "2026-08-29", "transcription_cost", 5.00, 5.00, "USD")
	if err != nil || !ok {
		t.Fatalf("day one reservation: ok=%v err=%v", ok, err)
	}
	if err := st.CommitBudget(ctx, "2026-08-29", "transcription_cost", 5.00, 5.00); err != nil {
		t.Fatalf("CommitBudget failed: %v", err)
	}

	// Exhaustion yesterday does not affect today.
	ok, err = st.TryReserveBudget(ctx, "2026-08-30", "transcription_cost", 0.25, 5.00, "USD")
	if err != nil {
		t.Fatalf("TryReserveBudget failed: %v", err)
	}
	if !ok {
		t.Fatal("fresh day denied despite zero usage")
	}

	state := store.BudgetState{Limit: 5, AmountUsed: 4.5, Reserved: 0.25}
	if remaining := state.Remaining(); remaining < 0.24 || remaining > 0.26 {
		t.Fatalf("unexpected remaining %f", remaining)
	}
}
