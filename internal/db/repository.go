package db

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

var (
	ErrSiteNotFound       = errors.New("site not found")
	ErrWorkerNotFound     = errors.New("worker not found")
	ErrStatusNotFound     = errors.New("status not found")
	ErrTransitionNotFound = errors.New("transition not found")
)

type Repository struct {
	db *sqlx.DB
}

func NewConnection(databaseURL string, maxOpen, maxIdle int) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Site operations

func (r *Repository) CreateSite(s *Site) error {
	query := `
        INSERT INTO sites (
            id, tenant_id, name, url, enabled, interval_seconds, created_at, updated_at
        ) VALUES (
            :id, :tenant_id, :name, :url, :enabled, :interval_seconds, :created_at, :updated_at
        )`

	_, err := r.db.NamedExec(query, s)
	return err
}

func (r *Repository) GetSite(id string) (*Site, error) {
	var s Site
	err := r.db.Get(&s, `SELECT * FROM sites WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, ErrSiteNotFound
	}
	return &s, err
}

func (r *Repository) ListSites(limit, offset int) ([]*Site, error) {
	sites := []*Site{}
	query := `
        SELECT * FROM sites
        ORDER BY created_at DESC
        LIMIT $1 OFFSET $2`

	err := r.db.Select(&sites, query, limit, offset)
	return sites, err
}

// ListActiveSites returns every enabled site. Agents poll this to build their
// per-site timer set.
func (r *Repository) ListActiveSites() ([]*Site, error) {
	sites := []*Site{}
	err := r.db.Select(&sites, `SELECT * FROM sites WHERE enabled = true ORDER BY created_at`)
	return sites, err
}

func (r *Repository) UpdateSite(s *Site) error {
	query := `
        UPDATE sites SET
            name = :name,
            url = :url,
            enabled = :enabled,
            interval_seconds = :interval_seconds,
            updated_at = :updated_at
        WHERE id = :id`

	res, err := r.db.NamedExec(query, s)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSiteNotFound
	}
	return nil
}

// SetSiteEnabled soft-disables or re-enables a site. Sites are never hard
// deleted while check history exists.
func (r *Repository) SetSiteEnabled(id string, enabled bool) error {
	res, err := r.db.Exec(`UPDATE sites SET enabled = $2, updated_at = NOW() WHERE id = $1`, id, enabled)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSiteNotFound
	}
	return nil
}

// Worker operations

// RegisterWorker upserts the worker row. Re-registration after a restart keeps
// the worker ID and resets started_at.
func (r *Repository) RegisterWorker(w *Worker) error {
	query := `
        INSERT INTO workers (id, region, started_at, last_heartbeat, active_sites)
        VALUES (:id, :region, :started_at, :last_heartbeat, :active_sites)
        ON CONFLICT (id) DO UPDATE SET
            region = EXCLUDED.region,
            started_at = EXCLUDED.started_at,
            last_heartbeat = EXCLUDED.last_heartbeat,
            active_sites = EXCLUDED.active_sites`

	_, err := r.db.NamedExec(query, w)
	return err
}

func (r *Repository) Heartbeat(workerID string, at time.Time, activeSites int) error {
	res, err := r.db.Exec(
		`UPDATE workers SET last_heartbeat = $2, active_sites = $3 WHERE id = $1`,
		workerID, at, activeSites,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrWorkerNotFound
	}
	return nil
}

func (r *Repository) GetWorker(id string) (*Worker, error) {
	var w Worker
	err := r.db.Get(&w, `SELECT * FROM workers WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, ErrWorkerNotFound
	}
	return &w, err
}

func (r *Repository) ListWorkers() ([]*Worker, error) {
	workers := []*Worker{}
	err := r.db.Select(&workers, `SELECT * FROM workers ORDER BY region, id`)
	return workers, err
}

func (r *Repository) ListWorkerIDs() ([]string, error) {
	ids := []string{}
	err := r.db.Select(&ids, `SELECT id FROM workers ORDER BY id`)
	return ids, err
}
