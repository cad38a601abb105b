package stages

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gister/internal/config"
	"gister/internal/services"
)

// httpWorker is the shared HTTP plumbing for the transcriber and summarizer
// adapters. Both remote workers speak the same small synchronous API: POST a
// job, block until the worker responds with the result payload.
type httpWorker struct {
	baseURL string
	token   string
	client  *http.Client
}

func newHTTPWorker(baseURL, token string, timeout time.Duration) httpWorker {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return httpWorker{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		client:  &http.Client{Timeout: timeout},
	}
}

func (w httpWorker) post(ctx context.Context, path string, payload, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: call %s: %w", services.ErrTransient, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s returned %d: %s", markerForStatus(resp.StatusCode), path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("%w: decode %s response: %w", services.ErrTransient, path, err)
	}
	return nil
}

func (w httpWorker) healthy(ctx context.Context) error {
	if w.baseURL == "" {
		return fmt.Errorf("%w: worker endpoint not configured", services.ErrConfiguration)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: health check: %w", services.ErrTransient, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health check returned %d", services.ErrTransient, resp.StatusCode)
	}
	return nil
}

// markerForStatus maps worker HTTP statuses onto the error taxonomy: rate
// limits and server faults are worth retrying, anything else 4xx is not.
func markerForStatus(status int) error {
	switch {
	case status == http.StatusTooManyRequests || status >= 500:
		return services.ErrTransient
	case status == http.StatusUnprocessableEntity || status == http.StatusBadRequest:
		return services.ErrValidation
	default:
		return services.ErrPermanent
	}
}

// HTTPTranscriber calls the remote transcription worker.
type HTTPTranscriber struct {
	worker httpWorker
}

func NewHTTPTranscriber(cfg *config.Config) *HTTPTranscriber {
	return &HTTPTranscriber{
		worker: newHTTPWorker(cfg.Services.TranscriberURL, cfg.Services.APIToken,
			time.Duration(cfg.Services.RequestTimeoutSeconds)*time.Second),
	}
}

func (t *HTTPTranscriber) Transcribe(ctx context.Context, videoKey string) (Transcription, error) {
	var resp struct {
		TranscriptRef   string  `json:"transcriptRef"`
		DurationSeconds int     `json:"durationSeconds"`
		Cost            float64 `json:"cost"`
	}
	err := t.worker.post(ctx, "/v1/transcriptions", struct {
		VideoKey string `json:"videoKey"`
	}{VideoKey: videoKey}, &resp)
	if err != nil {
		return Transcription{}, err
	}
	if resp.TranscriptRef == "" {
		return Transcription{}, fmt.Errorf("%w: worker returned empty transcript ref", services.ErrTransient)
	}
	return Transcription{
		TranscriptRef:   resp.TranscriptRef,
		DurationSeconds: resp.DurationSeconds,
		Cost:            resp.Cost,
	}, nil
}

func (t *HTTPTranscriber) Healthy(ctx context.Context) error {
	return t.worker.healthy(ctx)
}

// HTTPSummarizer calls the remote summarization worker.
type HTTPSummarizer struct {
	worker httpWorker
}

func NewHTTPSummarizer(cfg *config.Config) *HTTPSummarizer {
	return &HTTPSummarizer{
		worker: newHTTPWorker(cfg.Services.SummarizerURL, cfg.Services.APIToken,
			time.Duration(cfg.Services.RequestTimeoutSeconds)*time.Second),
	}
}

func (s *HTTPSummarizer) Summarize(ctx context.Context, videoKey, transcriptRef string) (Summary, error) {
	var resp struct {
		SummaryRef string  `json:"summaryRef"`
		Cost       float64 `json:"cost"`
	}
	err := s.worker.post(ctx, "/v1/summaries", struct {
		VideoKey      string `json:"videoKey"`
		TranscriptRef string `json:"transcriptRef"`
	}{VideoKey: videoKey, TranscriptRef: transcriptRef}, &resp)
	if err != nil {
		return Summary{}, err
	}
	if resp.SummaryRef == "" {
		return Summary{}, fmt.Errorf("%w: worker returned empty summary ref", services.ErrTransient)
	}
	return Summary{SummaryRef: resp.SummaryRef, Cost: resp.Cost}, nil
}

func (s *HTTPSummarizer) Healthy(ctx context.Context) error {
	return s.worker.healthy(ctx)
}
