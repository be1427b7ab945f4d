package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/pulsemesh/pulsemesh/internal/config"
	"github.com/pulsemesh/pulsemesh/internal/db"
)

type Collector struct {
	config *config.RemoteWriteConfig

	// Ingestion
	ingestBatchesTotal *prometheus.CounterVec
	heartbeatsTotal    *prometheus.CounterVec

	// Consensus
	siteUp            *prometheus.GaugeVec
	checkUp           *prometheus.GaugeVec
	checkResponseTime *prometheus.GaugeVec
	quorumRegions     *prometheus.GaugeVec
	transitionsTotal  *prometheus.CounterVec

	// Expiry warnings
	sslDaysUntilExpiry    *prometheus.GaugeVec
	domainDaysUntilExpiry *prometheus.GaugeVec

	// Alerting
	alertsTotal *prometheus.CounterVec
}

func NewCollector(cfg config.RemoteWriteConfig) *Collector {
	return &Collector{
		config: &cfg,

		ingestBatchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulsemesh_ingest_batches_total",
				Help: "Result batches received from workers",
			},
			[]string{"worker_id", "region", "outcome"},
		),

		heartbeatsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulsemesh_heartbeats_total",
				Help: "Heartbeats received from workers",
			},
			[]string{"worker_id", "region"},
		),

		siteUp: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pulsemesh_site_up",
				Help: "Canonical site status: up (1), down (0), unknown (-1)",
			},
			[]string{"site_id", "site_name"},
		),

		checkUp: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pulsemesh_check_up",
				Help: "Per-check-type consensus verdict (1 up, 0 down)",
			},
			[]string{"site_id", "check_type"},
		),

		checkResponseTime: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pulsemesh_check_response_time_ms",
				Help: "Median response time across regions, by check type",
			},
			[]string{"site_id", "check_type"},
		),

		quorumRegions: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pulsemesh_quorum_regions",
				Help: "Regions that voted in the latest consensus round",
			},
			[]string{"site_id"},
		),

		transitionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulsemesh_status_transitions_total",
				Help: "Canonical status transitions",
			},
			[]string{"site_id", "from_state", "to_state"},
		),

		sslDaysUntilExpiry: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pulsemesh_ssl_days_until_expiry",
				Help: "Days until the site certificate expires (most pessimistic region)",
			},
			[]string{"site_id"},
		),

		domainDaysUntilExpiry: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pulsemesh_domain_days_until_expiry",
				Help: "Days until the site domain registration expires",
			},
			[]string{"site_id"},
		),

		alertsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulsemesh_alerts_total",
				Help: "Alert dispatch outcomes",
			},
			[]string{"site_id", "outcome"},
		),
	}
}

func (c *Collector) RecordIngest(workerID, region string, accepted bool) {
	outcome := "accepted"
	if !accepted {
		outcome = "rejected"
	}
	c.ingestBatchesTotal.WithLabelValues(workerID, region, outcome).Inc()
}

func (c *Collector) RecordHeartbeat(workerID, region string) {
	c.heartbeatsTotal.WithLabelValues(workerID, region).Inc()
}

func (c *Collector) RecordConsensus(siteID, siteName string, status *db.SiteStatus) {
	up := 0.0
	switch status.State {
	case db.StateUp:
		up = 1.0
	case db.StateUnknown:
		up = -1.0
	}
	c.siteUp.WithLabelValues(siteID, siteName).Set(up)
	c.quorumRegions.WithLabelValues(siteID).Set(float64(status.RegionCount))

	c.checkUp.WithLabelValues(siteID, "http").Set(boolGauge(status.HTTPIsUp))
	c.checkUp.WithLabelValues(siteID, "ping").Set(boolGauge(status.PingIsUp))
	c.checkUp.WithLabelValues(siteID, "dns").Set(boolGauge(status.DNSIsUp))
	c.checkUp.WithLabelValues(siteID, "ssl").Set(boolGauge(status.SSLIsUp))

	c.checkResponseTime.WithLabelValues(siteID, "http").Set(status.HTTPResponseTimeMs)
	c.checkResponseTime.WithLabelValues(siteID, "ping").Set(status.PingResponseTimeMs)
	c.checkResponseTime.WithLabelValues(siteID, "dns").Set(status.DNSResponseTimeMs)
	c.checkResponseTime.WithLabelValues(siteID, "ssl").Set(status.SSLResponseTimeMs)

	if status.SSLDaysUntilExpiry != nil {
		c.sslDaysUntilExpiry.WithLabelValues(siteID).Set(float64(*status.SSLDaysUntilExpiry))
	}
	if status.DomainDaysUntilExpiry != nil {
		c.domainDaysUntilExpiry.WithLabelValues(siteID).Set(float64(*status.DomainDaysUntilExpiry))
	}
}

func (c *Collector) RecordTransition(siteID, fromState, toState string) {
	c.transitionsTotal.WithLabelValues(siteID, fromState, toState).Inc()
}

func (c *Collector) RecordAlertSent(siteID string, success bool) {
	outcome := "sent"
	if !success {
		outcome = "abandoned"
	}
	c.alertsTotal.WithLabelValues(siteID, outcome).Inc()
}

func boolGauge(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}
