package db

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

type CheckType string

const (
	CheckTypeHTTP CheckType = "http"
	CheckTypePing CheckType = "ping"
	CheckTypeDNS  CheckType = "dns"
	CheckTypeSSL  CheckType = "ssl"

	// CheckTypeDomain is advisory (registration expiry); it never votes.
	CheckTypeDomain CheckType = "domain"
)

// QuorumCheckTypes are the check types that participate in consensus voting.
// The domain-expiry probe is reported alongside them but never votes.
var QuorumCheckTypes = []CheckType{CheckTypeHTTP, CheckTypePing, CheckTypeDNS, CheckTypeSSL}

type SiteState string

const (
	StateUnknown SiteState = "unknown"
	StateUp      SiteState = "up"
	StateDown    SiteState = "down"
)

// Site is a monitoring target. Sites are soft-disabled rather than deleted so
// that check history stays addressable.
type Site struct {
	ID              string    `json:"id" db:"id"`
	TenantID        string    `json:"-" db:"tenant_id"`
	Name            string    `json:"name" db:"name"`
	URL             string    `json:"url" db:"url"`
	Enabled         bool      `json:"enabled" db:"enabled"`
	IntervalSeconds int       `json:"interval_seconds" db:"interval_seconds"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

func (s *Site) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// Worker is a regional probing agent identity. The ID is stable across
// restarts; StartedAt changes on every restart.
type Worker struct {
	ID            string    `json:"worker_id" db:"id"`
	Region        string    `json:"region" db:"region"`
	StartedAt     time.Time `json:"started_at" db:"started_at"`
	LastHeartbeat time.Time `json:"last_heartbeat" db:"last_heartbeat"`
	ActiveSites   int       `json:"active_sites" db:"active_sites"`
}

// Online reports whether the worker's heartbeat is fresher than the grace
// threshold at the given instant.
func (w *Worker) Online(now time.Time, grace time.Duration) bool {
	return now.Sub(w.LastHeartbeat) < grace
}

// CheckResult is one probe observation from one region. Rows are append-only
// and never mutated after insert.
type CheckResult struct {
	ID              string    `json:"id" db:"id"`
	SiteID          string    `json:"site_id" db:"site_id"`
	WorkerID        string    `json:"worker_id" db:"worker_id"`
	Region          string    `json:"region" db:"region"`
	CheckType       CheckType `json:"check_type" db:"check_type"`
	IsUp            bool      `json:"is_up" db:"is_up"`
	ResponseTimeMs  float64   `json:"response_time_ms" db:"response_time_ms"`
	StatusCode      *int      `json:"status_code,omitempty" db:"status_code"`
	DaysUntilExpiry *int      `json:"days_until_expiry,omitempty" db:"days_until_expiry"`
	Error           string    `json:"error,omitempty" db:"error"`
	CheckedAt       time.Time `json:"checked_at" db:"checked_at"`
}

// SiteStatus is the canonical post-consensus verdict for a site. Exactly one
// row exists per site; only the aggregator writes it.
type SiteStatus struct {
	SiteID                string    `json:"site_id" db:"site_id"`
	State                 SiteState `json:"state" db:"state"`
	IsUp                  bool      `json:"is_up" db:"is_up"`
	HTTPIsUp              bool      `json:"http_is_up" db:"http_is_up"`
	HTTPResponseTimeMs    float64   `json:"http_response_time_ms" db:"http_response_time_ms"`
	PingIsUp              bool      `json:"ping_is_up" db:"ping_is_up"`
	PingResponseTimeMs    float64   `json:"ping_response_time_ms" db:"ping_response_time_ms"`
	DNSIsUp               bool      `json:"dns_is_up" db:"dns_is_up"`
	DNSResponseTimeMs     float64   `json:"dns_response_time_ms" db:"dns_response_time_ms"`
	HasSSL                bool      `json:"has_ssl" db:"has_ssl"`
	SSLIsUp               bool      `json:"ssl_is_up" db:"ssl_is_up"`
	SSLResponseTimeMs     float64   `json:"ssl_response_time_ms" db:"ssl_response_time_ms"`
	SSLDaysUntilExpiry    *int      `json:"ssl_days_until_expiry,omitempty" db:"ssl_days_until_expiry"`
	DomainDaysUntilExpiry *int      `json:"domain_days_until_expiry,omitempty" db:"domain_days_until_expiry"`
	RegionCount           int       `json:"region_count" db:"region_count"`
	CheckedAt             time.Time `json:"checked_at" db:"checked_at"`
}

// StatusTransition records a change of canonical state. Created only by the
// aggregator; consumed once by the alert dispatcher and retained for audit.
type StatusTransition struct {
	ID               string      `json:"id" db:"id"`
	SiteID           string      `json:"site_id" db:"site_id"`
	FromState        SiteState   `json:"from_state" db:"from_state"`
	ToState          SiteState   `json:"to_state" db:"to_state"`
	Regions          StringSlice `json:"regions" db:"regions"`
	OccurredAt       time.Time   `json:"occurred_at" db:"occurred_at"`
	DispatchedAt     *time.Time  `json:"dispatched_at,omitempty" db:"dispatched_at"`
	DispatchAttempts int         `json:"dispatch_attempts" db:"dispatch_attempts"`
	Abandoned        bool        `json:"abandoned" db:"abandoned"`
}

// StringSlice stores a []string column as JSONB.
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *StringSlice) Scan(value interface{}) error {
	if value == nil {
		*s = []string{}
		return nil
	}
	return json.Unmarshal(value.([]byte), s)
}
