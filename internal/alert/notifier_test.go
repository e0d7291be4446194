package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ppewatch/internal/violation"
)

func TestWebhookNotifierDeliversEvent(t *testing.T) {
	received := make(chan violation.Event, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var e violation.Event
		if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
			t.Errorf("decoding webhook body: %v", err)
		}
		received <- e
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	e := testViolation("NO-hardhat", 120)
	if err := n.Notify(context.Background(), e); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	got := <-received
	if got.Class != "NO-hardhat" || got.Domain != "Construction" {
		t.Errorf("delivered event = %+v", got)
	}
}

func TestWebhookNotifierRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	if err := n.Notify(context.Background(), testViolation("NO-hardhat", 120)); err == nil {
		t.Error("502 response reported as success")
	}
}

type countingNotifier struct{ calls int }

func (n *countingNotifier) Notify(context.Context, violation.Event) error {
	n.calls++
	return nil
}

func TestAlerterDeduplicates(t *testing.T) {
	n := &countingNotifier{}
	alerter := NewAlerter(NewGate(NewMemoryStore(), time.Minute), n)

	e := testViolation("NO-hardhat", 120)
	alerter.Submit(context.Background(), e)
	alerter.Submit(context.Background(), e)
	alerter.Submit(context.Background(), testViolation("NO-Mask", 120))

	if n.calls != 2 {
		t.Errorf("notifications = %d, want 2", n.calls)
	}
}
