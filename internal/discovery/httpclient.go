package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gister/internal/config"
	"gister/internal/services"
)

// HTTPClient lists source videos from the catalog service.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPClient(cfg *config.Config) *HTTPClient {
	timeout := time.Duration(cfg.Services.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.Services.CatalogURL), "/"),
		token:   strings.TrimSpace(cfg.Services.APIToken),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) ListSince(ctx context.Context, sourceID string, since time.Time) ([]Video, float64, error) {
	if c.baseURL == "" {
		return nil, 0, fmt.Errorf("%w: catalog endpoint not configured", services.ErrConfiguration)
	}
	endpoint := c.baseURL + "/v1/sources/" + url.PathEscape(sourceID) + "/videos"
	if !since.IsZero() {
		endpoint += "?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339))
	}

	var resp struct {
		Videos []struct {
			Key             string    `json:"key"`
			Title           string    `json:"title"`
			DurationSeconds int       `json:"durationSeconds"`
			PublishedAt     time.Time `json:"publishedAt"`
		} `json:"videos"`
		UnitsUsed float64 `json:"unitsUsed"`
	}
	if err := c.get(ctx, endpoint, &resp); err != nil {
		return nil, 0, err
	}

	videos := make([]Video, 0, len(resp.Videos))
	for _, v := range resp.Videos {
		videos = append(videos, Video{
			NaturalKey:      v.Key,
			Title:           v.Title,
			DurationSeconds: v.DurationSeconds,
			PublishedAt:     v.PublishedAt,
		})
	}
	return videos, resp.UnitsUsed, nil
}

func (c *HTTPClient) get(ctx context.Context, endpoint string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: catalog request: %w", services.ErrTransient, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		marker := services.ErrPermanent
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			marker = services.ErrTransient
		}
		return fmt.Errorf("%w: catalog returned %d: %s", marker, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("%w: decode catalog response: %w", services.ErrTransient, err)
	}
	return nil
}

// HTTPSheet reads and updates the manual backfill intake sheet through the
// catalog service's sheet endpoints.
type HTTPSheet struct {
	client *HTTPClient
	base   string
}

func NewHTTPSheet(cfg *config.Config) *HTTPSheet {
	inner := NewHTTPClient(cfg)
	base := strings.TrimRight(strings.TrimSpace(cfg.Services.SheetURL), "/")
	if base == "" {
		base = inner.baseURL
	}
	return &HTTPSheet{client: inner, base: base}
}

// Configured reports whether a sheet endpoint is available at all.
func (s *HTTPSheet) Configured() bool {
	return s.base != ""
}

func (s *HTTPSheet) PendingRows(ctx context.Context) ([]BackfillRow, error) {
	if s.base == "" {
		return nil, fmt.Errorf("%w: sheet endpoint not configured", services.ErrConfiguration)
	}
	var resp struct {
		Rows []struct {
			RowID           string    `json:"rowId"`
			Key             string    `json:"key"`
			Title           string    `json:"title"`
			DurationSeconds int       `json:"durationSeconds"`
			PublishedAt     time.Time `json:"publishedAt"`
		} `json:"rows"`
	}
	if err := s.client.get(ctx, s.base+"/v1/backfill/pending", &resp); err != nil {
		return nil, err
	}
	rows := make([]BackfillRow, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		rows = append(rows, BackfillRow{
			RowID:           row.RowID,
			NaturalKey:      row.Key,
			Title:           row.Title,
			DurationSeconds: row.DurationSeconds,
			PublishedAt:     row.PublishedAt,
		})
	}
	return rows, nil
}

func (s *HTTPSheet) MarkProcessed(ctx context.Context, rowID string) error {
	if s.base == "" {
		return fmt.Errorf("%w: sheet endpoint not configured", services.ErrConfiguration)
	}
	endpoint := s.base + "/v1/backfill/" + url.PathEscape(rowID) + "/processed"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if s.client.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.client.token)
	}
	resp, err := s.client.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: mark processed: %w", services.ErrTransient, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		marker := services.ErrPermanent
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			marker = services.ErrTransient
		}
		return fmt.Errorf("%w: mark processed returned %d", marker, resp.StatusCode)
	}
	return nil
}
