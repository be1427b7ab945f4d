package fleet

import (
	"time"

	"github.com/pulsemesh/pulsemesh/internal/db"
	"go.uber.org/zap"
)

type Store interface {
	RegisterWorker(w *db.Worker) error
	Heartbeat(workerID string, at time.Time, activeSites int) error
	GetWorker(id string) (*db.Worker, error)
	ListWorkers() ([]*db.Worker, error)
	ListWorkerIDs() ([]string, error)
}

// WorkerView is a worker row plus the derived liveness flag, as served to
// operators and polling UIs.
type WorkerView struct {
	*db.Worker
	Online bool `json:"online"`
}

// Registry tracks which workers are alive via heartbeat freshness. Workers
// write through Register/RecordHeartbeat; everything else is read-only.
type Registry struct {
	store  Store
	grace  time.Duration
	logger *zap.Logger
	now    func() time.Time
}

func NewRegistry(store Store, grace time.Duration, logger *zap.Logger) *Registry {
	return &Registry{
		store:  store,
		grace:  grace,
		logger: logger,
		now:    time.Now,
	}
}

// Register upserts a worker identity. Called on agent startup; a restart
// keeps the worker ID and refreshes started_at.
func (r *Registry) Register(workerID, region string, startedAt time.Time) error {
	now := r.now()
	worker := &db.Worker{
		ID:            workerID,
		Region:        region,
		StartedAt:     startedAt,
		LastHeartbeat: now,
	}

	if err := r.store.RegisterWorker(worker); err != nil {
		return err
	}

	r.logger.Info("Worker registered",
		zap.String("worker_id", workerID),
		zap.String("region", region),
	)
	return nil
}

// RecordHeartbeat refreshes liveness and the active-site count. Unknown
// workers are rejected; they must register first.
func (r *Registry) RecordHeartbeat(workerID string, activeSites int) error {
	return r.store.Heartbeat(workerID, r.now(), activeSites)
}

func (r *Registry) Get(workerID string) (*WorkerView, error) {
	worker, err := r.store.GetWorker(workerID)
	if err != nil {
		return nil, err
	}
	return r.view(worker), nil
}

func (r *Registry) List() ([]*WorkerView, error) {
	workers, err := r.store.ListWorkers()
	if err != nil {
		return nil, err
	}

	views := make([]*WorkerView, 0, len(workers))
	for _, w := range workers {
		views = append(views, r.view(w))
	}
	return views, nil
}

// ListIDs serves lightweight polling UIs that only need identity.
func (r *Registry) ListIDs() ([]string, error) {
	return r.store.ListWorkerIDs()
}

// IsKnown reports whether a worker has ever registered.
func (r *Registry) IsKnown(workerID string) bool {
	_, err := r.store.GetWorker(workerID)
	return err == nil
}

func (r *Registry) view(w *db.Worker) *WorkerView {
	return &WorkerView{
		Worker: w,
		Online: w.Online(r.now(), r.grace),
	}
}
