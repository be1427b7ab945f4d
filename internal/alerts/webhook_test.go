package alerts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWebhookNotifierPostsAlert(t *testing.T) {
	var received Alert
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s, want application/json", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(server.URL)
	alert := Alert{
		SiteID:     "site-1",
		SiteName:   "Example",
		FromState:  "up",
		ToState:    "down",
		OccurredAt: time.Now().UTC(),
	}
	if err := notifier.Notify(context.Background(), alert); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if received.SiteID != "site-1" || received.ToState != "down" {
		t.Errorf("received = %+v, want posted alert", received)
	}
}

func TestWebhookNotifierErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(server.URL)
	if err := notifier.Notify(context.Background(), Alert{SiteID: "site-1"}); err == nil {
		t.Fatal("Notify returned nil, want error on 502")
	}
}
