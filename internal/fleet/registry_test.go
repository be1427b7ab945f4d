package fleet

import (
	"testing"
	"time"

	"github.com/pulsemesh/pulsemesh/internal/db"
	"go.uber.org/zap"
)

type fakeStore struct {
	workers map[string]*db.Worker
}

func newFakeStore() *fakeStore {
	return &fakeStore{workers: make(map[string]*db.Worker)}
}

func (f *fakeStore) RegisterWorker(w *db.Worker) error {
	copied := *w
	f.workers[w.ID] = &copied
	return nil
}

func (f *fakeStore) Heartbeat(workerID string, at time.Time, activeSites int) error {
	w, ok := f.workers[workerID]
	if !ok {
		return db.ErrWorkerNotFound
	}
	w.LastHeartbeat = at
	w.ActiveSites = activeSites
	return nil
}

func (f *fakeStore) GetWorker(id string) (*db.Worker, error) {
	w, ok := f.workers[id]
	if !ok {
		return nil, db.ErrWorkerNotFound
	}
	return w, nil
}

func (f *fakeStore) ListWorkers() ([]*db.Worker, error) {
	out := make([]*db.Worker, 0, len(f.workers))
	for _, w := range f.workers {
		out = append(out, w)
	}
	return out, nil
}

func (f *fakeStore) ListWorkerIDs() ([]string, error) {
	out := make([]string, 0, len(f.workers))
	for id := range f.workers {
		out = append(out, id)
	}
	return out, nil
}

func testRegistry(store Store, now time.Time) *Registry {
	r := NewRegistry(store, 90*time.Second, zap.NewNop())
	r.now = func() time.Time { return now }
	return r
}

func TestRegisterAndGet(t *testing.T) {
	now := time.Now().UTC()
	store := newFakeStore()
	registry := testRegistry(store, now)

	startedAt := now.Add(-time.Minute)
	if err := registry.Register("eu-west-probe1", "eu-west", startedAt); err != nil {
		t.Fatalf("Register: %v", err)
	}

	view, err := registry.Get("eu-west-probe1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if view.Region != "eu-west" || !view.StartedAt.Equal(startedAt) {
		t.Errorf("view = %+v", view)
	}
	if !view.Online {
		t.Error("freshly registered worker should be online")
	}
}

func TestReRegisterKeepsIdentity(t *testing.T) {
	now := time.Now().UTC()
	store := newFakeStore()
	registry := testRegistry(store, now)

	if err := registry.Register("w1", "eu-west", now.Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}
	restart := now.Add(-time.Second)
	if err := registry.Register("w1", "eu-west", restart); err != nil {
		t.Fatal(err)
	}

	ids, _ := registry.ListIDs()
	if len(ids) != 1 {
		t.Errorf("ids = %v, want one stable identity", ids)
	}
	view, _ := registry.Get("w1")
	if !view.StartedAt.Equal(restart) {
		t.Errorf("started_at = %v, want refreshed to %v", view.StartedAt, restart)
	}
}

func TestHeartbeatRefreshesLiveness(t *testing.T) {
	now := time.Now().UTC()
	store := newFakeStore()
	registry := testRegistry(store, now)

	if err := registry.Register("w1", "us-east", now); err != nil {
		t.Fatal(err)
	}
	if err := registry.RecordHeartbeat("w1", 7); err != nil {
		t.Fatalf("RecordHeartbeat: %v", err)
	}

	view, _ := registry.Get("w1")
	if view.ActiveSites != 7 {
		t.Errorf("active sites = %d, want 7", view.ActiveSites)
	}
}

func TestHeartbeatUnknownWorker(t *testing.T) {
	registry := testRegistry(newFakeStore(), time.Now())
	if err := registry.RecordHeartbeat("ghost", 1); err == nil {
		t.Error("heartbeat for unregistered worker should fail")
	}
}

func TestOnlineFlagAgainstGrace(t *testing.T) {
	now := time.Now().UTC()
	store := newFakeStore()
	store.workers["fresh"] = &db.Worker{ID: "fresh", LastHeartbeat: now.Add(-30 * time.Second)}
	store.workers["gone"] = &db.Worker{ID: "gone", LastHeartbeat: now.Add(-5 * time.Minute)}
	registry := testRegistry(store, now)

	views, err := registry.List()
	if err != nil {
		t.Fatal(err)
	}
	online := make(map[string]bool, len(views))
	for _, v := range views {
		online[v.ID] = v.Online
	}
	if !online["fresh"] {
		t.Error("worker heartbeating within grace should be online")
	}
	if online["gone"] {
		t.Error("worker silent past grace should be offline")
	}
}

func TestIsKnown(t *testing.T) {
	now := time.Now().UTC()
	store := newFakeStore()
	registry := testRegistry(store, now)

	if registry.IsKnown("w1") {
		t.Error("unregistered worker reported known")
	}
	if err := registry.Register("w1", "eu-west", now); err != nil {
		t.Fatal(err)
	}
	if !registry.IsKnown("w1") {
		t.Error("registered worker reported unknown")
	}
}
