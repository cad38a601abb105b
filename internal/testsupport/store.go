package testsupport

import (
	"context"
	"testing"
	"time"

	"gister/internal/config"
	"gister/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewItem inserts a discovered item for tests using the provided store.
func NewItem(t testing.TB, st *store.Store, naturalKey string) *store.Item {
	t.Helper()

	item, err := st.UpsertItem(context.Background(), store.Candidate{
		NaturalKey:      naturalKey,
		Title:           "Test " + naturalKey,
		DurationSeconds: 600,
		PublishedAt:     time.Now().UTC().Add(-time.Hour),
		Source:          store.SourceAutomated,
	}, store.StatusDiscovered)
	if err != nil {
		t.Fatalf("store.UpsertItem: %v", err)
	}
	return item
}
