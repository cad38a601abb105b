package discovery_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gister/internal/discovery"
	"gister/internal/services"
	"gister/internal/testsupport"
)

func TestHTTPClientListSince(t *testing.T) {
	var gotPath, gotSince, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotSince = r.URL.Query().Get("since")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"videos": [
				{"key": "vid-1", "title": "One", "durationSeconds": 600, "publishedAt": "2026-08-29T10:00:00Z"}
			],
			"unitsUsed": 3.5
		}`))
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Services.CatalogURL = server.URL
	cfg.Services.APIToken = "secret"
	client := discovery.NewHTTPClient(cfg)

	since := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	videos, units, err := client.ListSince(context.Background(), "channel-a", since)
	if err != nil {
		t.Fatalf("ListSince failed: %v", err)
	}
	if gotPath != "/v1/sources/channel-a/videos" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotSince != "2026-08-28T00:00:00Z" {
		t.Fatalf("unexpected since %q", gotSince)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if units != 3.5 {
		t.Fatalf("unexpected units %f", units)
	}
	if len(videos) != 1 || videos[0].NaturalKey != "vid-1" || videos[0].DurationSeconds != 600 {
		t.Fatalf("unexpected videos: %#v", videos)
	}
}

func TestHTTPClientErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		marker error
	}{
		{http.StatusTooManyRequests, services.ErrTransient},
		{http.StatusInternalServerError, services.ErrTransient},
		{http.StatusNotFound, services.ErrPermanent},
	}
	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
		}))
		cfg := testsupport.NewConfig(t)
		cfg.Services.CatalogURL = server.URL
		client := discovery.NewHTTPClient(cfg)

		_, _, err := client.ListSince(context.Background(), "channel", time.Time{})
		server.Close()
		if err == nil {
			t.Fatalf("status %d: expected error", tc.status)
		}
		if !errors.Is(err, tc.marker) {
			t.Fatalf("status %d: wrong marker: %v", tc.status, err)
		}
	}
}

func TestHTTPClientUnconfigured(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	client := discovery.NewHTTPClient(cfg)
	_, _, err := client.ListSince(context.Background(), "channel", time.Time{})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestHTTPSheetPendingRowsAndMarkProcessed(t *testing.T) {
	var markedRow string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/backfill/pending":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{
				"rows": [
					{"rowId": "row-3", "key": "vid-m", "title": "Manual", "durationSeconds": 45, "publishedAt": "2026-08-20T12:00:00Z"}
				]
			}`))
		case r.Method == http.MethodPost && r.URL.Path == "/v1/backfill/row-3/processed":
			markedRow = "row-3"
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Services.SheetURL = server.URL
	sheet := discovery.NewHTTPSheet(cfg)
	if !sheet.Configured() {
		t.Fatal("sheet should be configured")
	}

	rows, err := sheet.PendingRows(context.Background())
	if err != nil {
		t.Fatalf("PendingRows failed: %v", err)
	}
	if len(rows) != 1 || rows[0].RowID != "row-3" || rows[0].NaturalKey != "vid-m" {
		t.Fatalf("unexpected rows: %#v", rows)
	}

	if err := sheet.MarkProcessed(context.Background(), "row-3"); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}
	if markedRow != "row-3" {
		t.Fatal("processed endpoint not called")
	}
}

func TestHTTPSheetFallsBackToCatalogBase(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Services.CatalogURL = "http://catalog.local"
	sheet := discovery.NewHTTPSheet(cfg)
	if !sheet.Configured() {
		t.Fatal("sheet should inherit the catalog base")
	}

	unset := testsupport.NewConfig(t)
	if discovery.NewHTTPSheet(unset).Configured() {
		t.Fatal("sheet configured with no endpoints")
	}
}
