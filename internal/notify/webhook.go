package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	webhookTimeout  = 10 * time.Second
	webhookMaxTries = 3
)

// WebhookNotifier POSTs cycle summaries to an external endpoint as JSON.
// Delivery is retried with exponential backoff; a summary that still cannot
// be delivered is dropped with a log line, never blocking the refresh engine.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a webhook notifier for the given URL.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url: url,
		client: &http.Client{
			Timeout: webhookTimeout,
		},
	}
}

// CycleCompleted delivers the summary. Summaries with no transitions are
// skipped to keep the receiver quiet between interesting cycles.
func (w *WebhookNotifier) CycleCompleted(ctx context.Context, summary CycleSummary) {
	transitions := summary.Transitions()
	if len(transitions) == 0 {
		return
	}

	payload, err := json.Marshal(struct {
		CycleID     string       `json:"cycleId"`
		Changed     int          `json:"changed"`
		Unchanged   int          `json:"unchanged"`
		Transitions []Transition `json:"transitions"`
	}{
		CycleID:     summary.CycleID,
		Changed:     summary.Changed,
		Unchanged:   summary.Unchanged,
		Transitions: transitions,
	})
	if err != nil {
		slog.Error("Failed to marshal webhook payload", "error", err)
		return
	}

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, w.post(ctx, payload)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(webhookMaxTries))
	if err != nil {
		slog.Error("Webhook delivery failed",
			"cycle_id", summary.CycleID,
			"url", w.url,
			"error", err)
	}
}

func (w *WebhookNotifier) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
