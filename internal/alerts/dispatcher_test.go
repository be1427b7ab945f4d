package alerts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pulsemesh/pulsemesh/internal/config"
	"github.com/pulsemesh/pulsemesh/internal/db"
	"go.uber.org/zap"
)

type fakeNotifier struct {
	calls    []Alert
	failures int // fail this many calls before succeeding
	failFor  map[string]bool
}

func (f *fakeNotifier) Notify(ctx context.Context, alert Alert) error {
	f.calls = append(f.calls, alert)
	if f.failFor[alert.SiteID] {
		return errors.New("endpoint unreachable")
	}
	if f.failures > 0 {
		f.failures--
		return errors.New("endpoint unreachable")
	}
	return nil
}

type fakeAlertStore struct {
	pending    []*db.StatusTransition
	sites      map[string]*db.Site
	dispatched map[string]int
	abandoned  map[string]int
}

func newFakeAlertStore() *fakeAlertStore {
	return &fakeAlertStore{
		sites:      make(map[string]*db.Site),
		dispatched: make(map[string]int),
		abandoned:  make(map[string]int),
	}
}

func (f *fakeAlertStore) PendingTransitions(limit int) ([]*db.StatusTransition, error) {
	out := make([]*db.StatusTransition, 0, len(f.pending))
	for _, tr := range f.pending {
		if _, ok := f.dispatched[tr.ID]; ok {
			continue
		}
		if _, ok := f.abandoned[tr.ID]; ok {
			continue
		}
		out = append(out, tr)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeAlertStore) MarkTransitionDispatched(id string, at time.Time, attempts int) error {
	f.dispatched[id] = attempts
	return nil
}

func (f *fakeAlertStore) MarkTransitionAbandoned(id string, attempts int) error {
	f.abandoned[id] = attempts
	return nil
}

func (f *fakeAlertStore) GetSite(id string) (*db.Site, error) {
	site, ok := f.sites[id]
	if !ok {
		return nil, db.ErrSiteNotFound
	}
	return site, nil
}

func transition(id, siteID string, from, to db.SiteState) *db.StatusTransition {
	return &db.StatusTransition{
		ID:         id,
		SiteID:     siteID,
		FromState:  from,
		ToState:    to,
		OccurredAt: time.Now().UTC(),
	}
}

func testDispatcher(store Store, notifier Notifier) *Dispatcher {
	cfg := config.AlertsConfig{
		PollInterval: time.Second,
		MaxRetries:   3,
		Backoff:      time.Millisecond,
		BatchSize:    50,
	}
	return NewDispatcher(store, notifier, cfg, nil, zap.NewNop())
}

func TestProcessPendingDispatchesOnce(t *testing.T) {
	store := newFakeAlertStore()
	store.sites["site-1"] = &db.Site{ID: "site-1", Name: "Example"}
	store.pending = []*db.StatusTransition{transition("t1", "site-1", db.StateUp, db.StateDown)}
	notifier := &fakeNotifier{}

	d := testDispatcher(store, notifier)
	if err := d.ProcessPending(context.Background()); err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}

	if len(notifier.calls) != 1 {
		t.Fatalf("notify calls = %d, want 1", len(notifier.calls))
	}
	alert := notifier.calls[0]
	if alert.SiteName != "Example" || alert.FromState != "up" || alert.ToState != "down" {
		t.Errorf("unexpected alert payload: %+v", alert)
	}
	if store.dispatched["t1"] != 1 {
		t.Errorf("dispatched attempts = %d, want 1", store.dispatched["t1"])
	}

	// A second poll must not redeliver.
	if err := d.ProcessPending(context.Background()); err != nil {
		t.Fatalf("second ProcessPending: %v", err)
	}
	if len(notifier.calls) != 1 {
		t.Errorf("notify calls after second poll = %d, want 1", len(notifier.calls))
	}
}

func TestProcessPendingRetriesThenSucceeds(t *testing.T) {
	store := newFakeAlertStore()
	store.pending = []*db.StatusTransition{transition("t1", "site-1", db.StateUnknown, db.StateUp)}
	notifier := &fakeNotifier{failures: 2}

	d := testDispatcher(store, notifier)
	if err := d.ProcessPending(context.Background()); err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}

	if len(notifier.calls) != 3 {
		t.Errorf("notify calls = %d, want 3 (two failures then success)", len(notifier.calls))
	}
	if store.dispatched["t1"] != 3 {
		t.Errorf("recorded attempts = %d, want 3", store.dispatched["t1"])
	}
	if len(store.abandoned) != 0 {
		t.Errorf("abandoned = %v, want none", store.abandoned)
	}
}

func TestProcessPendingAbandonsAfterRetries(t *testing.T) {
	store := newFakeAlertStore()
	store.pending = []*db.StatusTransition{transition("t1", "site-1", db.StateUp, db.StateDown)}
	notifier := &fakeNotifier{failFor: map[string]bool{"site-1": true}}

	d := testDispatcher(store, notifier)
	if err := d.ProcessPending(context.Background()); err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}

	if len(notifier.calls) != 3 {
		t.Errorf("notify calls = %d, want MaxRetries=3", len(notifier.calls))
	}
	if store.abandoned["t1"] != 3 {
		t.Errorf("abandoned attempts = %d, want 3", store.abandoned["t1"])
	}
	if len(store.dispatched) != 0 {
		t.Errorf("dispatched = %v, want none", store.dispatched)
	}

	// Abandoned rows leave the queue.
	if err := d.ProcessPending(context.Background()); err != nil {
		t.Fatalf("second ProcessPending: %v", err)
	}
	if len(notifier.calls) != 3 {
		t.Errorf("notify calls after abandon = %d, want still 3", len(notifier.calls))
	}
}

func TestProcessPendingFailureDoesNotBlockOthers(t *testing.T) {
	store := newFakeAlertStore()
	store.pending = []*db.StatusTransition{
		transition("t1", "site-bad", db.StateUp, db.StateDown),
		transition("t2", "site-good", db.StateUp, db.StateDown),
	}
	notifier := &fakeNotifier{failFor: map[string]bool{"site-bad": true}}

	d := testDispatcher(store, notifier)
	if err := d.ProcessPending(context.Background()); err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}

	if _, ok := store.abandoned["t1"]; !ok {
		t.Error("t1 should be abandoned")
	}
	if store.dispatched["t2"] == 0 {
		t.Error("t2 should still be dispatched despite t1 failing")
	}
}

func TestDispatchUsesSiteIDWhenNameUnavailable(t *testing.T) {
	store := newFakeAlertStore()
	store.pending = []*db.StatusTransition{transition("t1", "ghost-site", db.StateUp, db.StateDown)}
	notifier := &fakeNotifier{}

	d := testDispatcher(store, notifier)
	if err := d.ProcessPending(context.Background()); err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}
	if len(notifier.calls) != 1 || notifier.calls[0].SiteName != "ghost-site" {
		t.Errorf("alert = %+v, want site name falling back to id", notifier.calls)
	}
}
