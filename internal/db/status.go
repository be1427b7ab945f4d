package db

import (
	"database/sql"
	"time"
)

func (r *Repository) GetSiteStatus(siteID string) (*SiteStatus, error) {
	var status SiteStatus
	err := r.db.Get(&status, `SELECT * FROM site_status WHERE site_id = $1`, siteID)
	if err == sql.ErrNoRows {
		return nil, ErrStatusNotFound
	}
	return &status, err
}

// SaveConsensus upserts the canonical status and, when the verdict changed,
// records the transition in the same transaction. Either both land or neither
// does, which keeps the "transition iff adjacent statuses differ" invariant.
func (r *Repository) SaveConsensus(status *SiteStatus, transition *StatusTransition) error {
	tx, err := r.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
        INSERT INTO site_status (
            site_id, state, is_up,
            http_is_up, http_response_time_ms,
            ping_is_up, ping_response_time_ms,
            dns_is_up, dns_response_time_ms,
            has_ssl, ssl_is_up, ssl_response_time_ms, ssl_days_until_expiry,
            domain_days_until_expiry, region_count, checked_at
        ) VALUES (
            :site_id, :state, :is_up,
            :http_is_up, :http_response_time_ms,
            :ping_is_up, :ping_response_time_ms,
            :dns_is_up, :dns_response_time_ms,
            :has_ssl, :ssl_is_up, :ssl_response_time_ms, :ssl_days_until_expiry,
            :domain_days_until_expiry, :region_count, :checked_at
        ) ON CONFLICT (site_id) DO UPDATE SET
            state = EXCLUDED.state,
            is_up = EXCLUDED.is_up,
            http_is_up = EXCLUDED.http_is_up,
            http_response_time_ms = EXCLUDED.http_response_time_ms,
            ping_is_up = EXCLUDED.ping_is_up,
            ping_response_time_ms = EXCLUDED.ping_response_time_ms,
            dns_is_up = EXCLUDED.dns_is_up,
            dns_response_time_ms = EXCLUDED.dns_response_time_ms,
            has_ssl = EXCLUDED.has_ssl,
            ssl_is_up = EXCLUDED.ssl_is_up,
            ssl_response_time_ms = EXCLUDED.ssl_response_time_ms,
            ssl_days_until_expiry = EXCLUDED.ssl_days_until_expiry,
            domain_days_until_expiry = EXCLUDED.domain_days_until_expiry,
            region_count = EXCLUDED.region_count,
            checked_at = EXCLUDED.checked_at`

	if _, err = tx.NamedExec(query, status); err != nil {
		return err
	}

	if transition != nil {
		transitionQuery := `
            INSERT INTO status_transitions (
                id, site_id, from_state, to_state, regions, occurred_at,
                dispatched_at, dispatch_attempts, abandoned
            ) VALUES (
                :id, :site_id, :from_state, :to_state, :regions, :occurred_at,
                :dispatched_at, :dispatch_attempts, :abandoned
            )`

		if _, err = tx.NamedExec(transitionQuery, transition); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SitesNeedingRecompute returns enabled sites with check results newer than
// their canonical status, plus sites that have results but no status row yet.
func (r *Repository) SitesNeedingRecompute() ([]*Site, error) {
	sites := []*Site{}
	query := `
        SELECT s.* FROM sites s
        WHERE s.enabled = true
        AND EXISTS (
            SELECT 1 FROM check_results cr
            LEFT JOIN site_status st ON st.site_id = s.id
            WHERE cr.site_id = s.id
            AND (st.checked_at IS NULL OR cr.checked_at > st.checked_at)
        )`

	err := r.db.Select(&sites, query)
	return sites, err
}

func (r *Repository) ListTransitions(siteID string, limit int) ([]*StatusTransition, error) {
	transitions := []*StatusTransition{}
	query := `
        SELECT * FROM status_transitions
        WHERE site_id = $1
        ORDER BY occurred_at DESC
        LIMIT $2`

	err := r.db.Select(&transitions, query, siteID, limit)
	return transitions, err
}

// PendingTransitions returns transitions not yet delivered and not abandoned,
// oldest first so alerts fire in order.
func (r *Repository) PendingTransitions(limit int) ([]*StatusTransition, error) {
	transitions := []*StatusTransition{}
	query := `
        SELECT * FROM status_transitions
        WHERE dispatched_at IS NULL AND abandoned = false
        ORDER BY occurred_at
        LIMIT $1`

	err := r.db.Select(&transitions, query, limit)
	return transitions, err
}

// MarkTransitionDispatched records successful delivery. A transition already
// marked stays marked, which makes dispatch idempotent on retry.
func (r *Repository) MarkTransitionDispatched(id string, at time.Time, attempts int) error {
	res, err := r.db.Exec(
		`UPDATE status_transitions
         SET dispatched_at = $2, dispatch_attempts = $3
         WHERE id = $1 AND dispatched_at IS NULL`,
		id, at, attempts,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTransitionNotFound
	}
	return nil
}

// MarkTransitionAbandoned records that delivery retries were exhausted.
func (r *Repository) MarkTransitionAbandoned(id string, attempts int) error {
	_, err := r.db.Exec(
		`UPDATE status_transitions SET abandoned = true, dispatch_attempts = $2 WHERE id = $1`,
		id, attempts,
	)
	return err
}
