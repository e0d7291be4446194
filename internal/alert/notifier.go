package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"ppewatch/internal/violation"
)

// Notifier delivers one violation alert to a downstream channel.
type Notifier interface {
	Notify(ctx context.Context, e violation.Event) error
}

// WebhookNotifier POSTs the violation as JSON to a configured URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a webhook notifier with a short delivery
// timeout so a slow endpoint cannot stall the pipeline.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// Notify delivers the event, treating any non-2xx response as an error.
func (n *WebhookNotifier) Notify(ctx context.Context, e violation.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("alert: encoding webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("alert: building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("alert: delivering webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("alert: webhook returned %d", resp.StatusCode)
	}
	return nil
}

// Alerter fans a violation out to every notifier once the gate approves
// it. Delivery errors are logged, never propagated: alerting must not
// disturb detection.
type Alerter struct {
	gate      *Gate
	notifiers []Notifier
}

// NewAlerter wires the gate to its delivery channels.
func NewAlerter(gate *Gate, notifiers ...Notifier) *Alerter {
	return &Alerter{gate: gate, notifiers: notifiers}
}

// Submit runs the event through the dedup gate and, if approved, delivers
// it to every notifier.
func (a *Alerter) Submit(ctx context.Context, e violation.Event) {
	if !a.gate.ShouldAlert(ctx, e) {
		return
	}
	for _, n := range a.notifiers {
		if err := n.Notify(ctx, e); err != nil {
			log.Printf("[Alert] Notification failed: %v", err)
		}
	}
}
