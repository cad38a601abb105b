package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gister/internal/config"
)

const userAgent = "Gister-Go/0.1.0"

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyBudgetThreshold(ctx context.Context, dimension string, used, limit float64, unit string) error
	NotifyBudgetExhausted(ctx context.Context, dimension string, limit float64, unit string) error
	NotifyDeadLetter(ctx context.Context, itemKey, stage string, attempts int, severity string) error
	NotifyItemCompleted(ctx context.Context, itemKey, title string) error
	NotifyDiscoveryCompleted(ctx context.Context, sourceID string, admitted, skipped int) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyBudgetThreshold(ctx context.Context, dimension string, used, limit float64, unit string) error {
	data := payload{
		title:   "Gister - Budget Warning",
		message: fmt.Sprintf("Daily %s usage at %.2f of %.2f %s", dimension, used, limit, unit),
		tags:    []string{"gister", "budget", "warning"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyBudgetExhausted(ctx context.Context, dimension string, limit float64, unit string) error {
	data := payload{
		title:    "Gister - Budget Exhausted",
		message:  fmt.Sprintf("Daily %s limit of %.2f %s reached; admissions held until rollover", dimension, limit, unit),
		tags:     []string{"gister", "budget", "exhausted"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyDeadLetter(ctx context.Context, itemKey, stage string, attempts int, severity string) error {
	data := payload{
		title:    "Gister - Dead Letter",
		message:  fmt.Sprintf("Item %s failed %s after %d attempts (%s)", itemKey, stage, attempts, severity),
		tags:     []string{"gister", "deadletter", severity},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyItemCompleted(ctx context.Context, itemKey, title string) error {
	title = strings.TrimSpace(title)
	message := fmt.Sprintf("Summary ready: %s", itemKey)
	if title != "" {
		message = fmt.Sprintf("Summary ready: %s", title)
	}
	data := payload{
		title:   "Gister - Complete",
		message: message,
		tags:    []string{"gister", "pipeline", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyDiscoveryCompleted(ctx context.Context, sourceID string, admitted, skipped int) error {
	data := payload{
		title:   "Gister - Discovery",
		message: fmt.Sprintf("Source %s: %d admitted, %d skipped", sourceID, admitted, skipped),
		tags:    []string{"gister", "discovery", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Gister - Error",
		message:  builder.String(),
		tags:     []string{"gister", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Gister - Test",
		message:  "Notification system test",
		tags:     []string{"gister", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyBudgetThreshold(context.Context, string, float64, float64, string) error {
	return nil
}
func (noopService) NotifyBudgetExhausted(context.Context, string, float64, string) error { return nil }
func (noopService) NotifyDeadLetter(context.Context, string, string, int, string) error  { return nil }
func (noopService) NotifyItemCompleted(context.Context, string, string) error            { return nil }
func (noopService) NotifyDiscoveryCompleted(context.Context, string, int, int) error     { return nil }
func (noopService) NotifyError(context.Context, error, string) error                     { return nil }
func (noopService) TestNotification(context.Context) error                               { return nil }

// Noop returns the no-op notification service, used in tests.
func Noop() Service { return noopService{} }
