package db

// SaveResultBatch persists one report from one worker as a single unit. All
// check-type rows for a (site, worker, timestamp) land in one transaction so a
// partial failure never leaves a torn batch behind.
func (r *Repository) SaveResultBatch(results []*CheckResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := r.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
        INSERT INTO check_results (
            id, site_id, worker_id, region, check_type, is_up,
            response_time_ms, status_code, days_until_expiry, error, checked_at
        ) VALUES (
            :id, :site_id, :worker_id, :region, :check_type, :is_up,
            :response_time_ms, :status_code, :days_until_expiry, :error, :checked_at
        )`

	for _, result := range results {
		if _, err = tx.NamedExec(query, result); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LatestResults returns the most recent result per (worker, check type) for a
// site. Staleness filtering belongs to the aggregator, which knows the site's
// interval; this query only bounds the scan.
func (r *Repository) LatestResults(siteID string) ([]*CheckResult, error) {
	results := []*CheckResult{}
	query := `
        SELECT DISTINCT ON (worker_id, check_type) *
        FROM check_results
        WHERE site_id = $1
        ORDER BY worker_id, check_type, checked_at DESC`

	err := r.db.Select(&results, query, siteID)
	return results, err
}

func (r *Repository) GetCheckHistory(siteID string, limit int) ([]*CheckResult, error) {
	results := []*CheckResult{}
	query := `
        SELECT * FROM check_results
        WHERE site_id = $1
        ORDER BY checked_at DESC
        LIMIT $2`

	err := r.db.Select(&results, query, siteID, limit)
	return results, err
}
