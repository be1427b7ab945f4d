package consensus

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pulsemesh/pulsemesh/internal/config"
	"github.com/pulsemesh/pulsemesh/internal/db"
	"github.com/pulsemesh/pulsemesh/internal/metrics"
	"go.uber.org/zap"
)

const maxParallelRecomputes = 16

// Store is the slice of the repository the aggregator needs.
type Store interface {
	SitesNeedingRecompute() ([]*db.Site, error)
	ListActiveSites() ([]*db.Site, error)
	LatestResults(siteID string) ([]*db.CheckResult, error)
	ListWorkers() ([]*db.Worker, error)
	GetSiteStatus(siteID string) (*db.SiteStatus, error)
	SaveConsensus(status *db.SiteStatus, transition *db.StatusTransition) error
}

// Aggregator folds per-region observations into one canonical status per
// site. Recomputes for the same site are serialized; different sites run in
// parallel.
type Aggregator struct {
	store   Store
	cfg     config.ConsensusConfig
	logger  *zap.Logger
	metrics *metrics.Collector

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now func() time.Time
}

func NewAggregator(store Store, cfg config.ConsensusConfig, collector *metrics.Collector, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		store:   store,
		cfg:     cfg,
		logger:  logger,
		metrics: collector,
		locks:   make(map[string]*sync.Mutex),
		now:     time.Now,
	}
}

// Run polls for sites with fresh data and periodically sweeps every active
// site so that regions going silent are noticed even when no new results
// arrive.
func (a *Aggregator) Run(ctx context.Context) {
	a.logger.Info("Starting aggregator",
		zap.Duration("poll_interval", a.cfg.PollInterval),
		zap.Duration("sweep_interval", a.cfg.SweepInterval),
	)

	poll := time.NewTicker(a.cfg.PollInterval)
	defer poll.Stop()
	sweep := time.NewTicker(a.cfg.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Stopping aggregator")
			return
		case <-poll.C:
			a.recomputeBatch(a.store.SitesNeedingRecompute)
		case <-sweep.C:
			a.recomputeBatch(a.store.ListActiveSites)
		}
	}
}

func (a *Aggregator) recomputeBatch(fetch func() ([]*db.Site, error)) {
	sites, err := fetch()
	if err != nil {
		a.logger.Error("Failed to list sites for recompute", zap.Error(err))
		return
	}

	sem := make(chan struct{}, maxParallelRecomputes)
	var wg sync.WaitGroup
	for _, site := range sites {
		wg.Add(1)
		sem <- struct{}{}
		go func(site *db.Site) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := a.RecomputeSite(site); err != nil {
				a.logger.Error("Recompute failed",
					zap.String("site_id", site.ID),
					zap.Error(err),
				)
			}
		}(site)
	}
	wg.Wait()
}

// RecomputeSite derives the canonical status for one site from the latest
// eligible per-region results and records a transition when the verdict
// changed. Identical recomputations are idempotent: no transition, no alert.
func (a *Aggregator) RecomputeSite(site *db.Site) error {
	lock := a.siteLock(site.ID)
	lock.Lock()
	defer lock.Unlock()

	now := a.now()

	results, err := a.store.LatestResults(site.ID)
	if err != nil {
		return err
	}

	workers, err := a.store.ListWorkers()
	if err != nil {
		return err
	}
	online := make(map[string]bool, len(workers))
	for _, w := range workers {
		if w.Online(now, a.cfg.HeartbeatGrace) {
			online[w.ID] = true
		}
	}

	// A region votes only while its worker heartbeats and its latest result
	// is younger than the staleness bound. A dead worker must not keep
	// voting an outdated "up". One vote per region per check type: when two
	// workers carry the same region label, the freshest result wins.
	staleBound := time.Duration(a.cfg.StalenessFactor) * site.Interval()
	byType := make(map[db.CheckType]map[string]*db.CheckResult)
	domainByRegion := make(map[string]*db.CheckResult)
	regions := make(map[string]bool)
	var latest time.Time

	for _, r := range results {
		if !online[r.WorkerID] || now.Sub(r.CheckedAt) > staleBound {
			continue
		}
		if r.CheckType == db.CheckTypeDomain {
			if cur, ok := domainByRegion[r.Region]; !ok || r.CheckedAt.After(cur.CheckedAt) {
				domainByRegion[r.Region] = r
			}
			continue
		}
		perRegion := byType[r.CheckType]
		if perRegion == nil {
			perRegion = make(map[string]*db.CheckResult)
			byType[r.CheckType] = perRegion
		}
		if cur, ok := perRegion[r.Region]; !ok || r.CheckedAt.After(cur.CheckedAt) {
			perRegion[r.Region] = r
		}
		regions[r.Region] = true
		if r.CheckedAt.After(latest) {
			latest = r.CheckedAt
		}
	}

	http := tally(regionVotes(byType[db.CheckTypeHTTP]))
	ping := tally(regionVotes(byType[db.CheckTypePing]))
	dns := tally(regionVotes(byType[db.CheckTypeDNS]))
	ssl := tally(regionVotes(byType[db.CheckTypeSSL]))

	status := &db.SiteStatus{
		SiteID:                site.ID,
		HTTPIsUp:              http.IsUp,
		HTTPResponseTimeMs:    http.ResponseTimeMs,
		PingIsUp:              ping.IsUp,
		PingResponseTimeMs:    ping.ResponseTimeMs,
		DNSIsUp:               dns.IsUp,
		DNSResponseTimeMs:     dns.ResponseTimeMs,
		HasSSL:                ssl.Voters > 0,
		SSLIsUp:               ssl.IsUp,
		SSLResponseTimeMs:     ssl.ResponseTimeMs,
		SSLDaysUntilExpiry:    minExpiry(regionVotes(byType[db.CheckTypeSSL])),
		DomainDaysUntilExpiry: minExpiry(regionVotes(domainByRegion)),
		RegionCount:           len(regions),
		CheckedAt:             latest,
	}

	if len(regions) == 0 {
		// Every region is stale or offline: degraded confidence, not a
		// silent reuse of old data.
		status.State = db.StateUnknown
		status.IsUp = false
		status.CheckedAt = now
	} else {
		// Ping and SSL degrade the detail but do not flip the headline:
		// some sites block ICMP-era probes or run transitional certs.
		status.IsUp = http.IsUp && dns.IsUp
		if status.IsUp {
			status.State = db.StateUp
		} else {
			status.State = db.StateDown
		}
	}

	prevState := db.StateUnknown
	prev, err := a.store.GetSiteStatus(site.ID)
	if err != nil && !errors.Is(err, db.ErrStatusNotFound) {
		return err
	}
	if prev != nil {
		prevState = prev.State

		// Nothing new and no verdict change: skip the write entirely so
		// repeated sweeps stay idempotent.
		if prev.State == status.State && !status.CheckedAt.After(prev.CheckedAt) && status.State != db.StateUnknown {
			return nil
		}
	}

	var transition *db.StatusTransition
	if status.State != prevState {
		transition = &db.StatusTransition{
			ID:         uuid.New().String(),
			SiteID:     site.ID,
			FromState:  prevState,
			ToState:    status.State,
			Regions:    sortedKeys(regions),
			OccurredAt: now,
		}
	} else if prev != nil && status.State == db.StateUnknown {
		// Already unknown; avoid rewriting checked_at forever.
		return nil
	}

	if err := a.store.SaveConsensus(status, transition); err != nil {
		return err
	}

	if a.metrics != nil {
		a.metrics.RecordConsensus(site.ID, site.Name, status)
	}

	if transition != nil {
		if a.metrics != nil {
			a.metrics.RecordTransition(site.ID, string(transition.FromState), string(transition.ToState))
		}
		a.logger.Info("Status transition",
			zap.String("site_id", site.ID),
			zap.String("site_name", site.Name),
			zap.String("from", string(transition.FromState)),
			zap.String("to", string(transition.ToState)),
			zap.Int("regions", len(regions)),
		)
	}

	return nil
}

func (a *Aggregator) siteLock(siteID string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	lock, ok := a.locks[siteID]
	if !ok {
		lock = &sync.Mutex{}
		a.locks[siteID] = lock
	}
	return lock
}

func regionVotes(perRegion map[string]*db.CheckResult) []*db.CheckResult {
	votes := make([]*db.CheckResult, 0, len(perRegion))
	for _, r := range perRegion {
		votes = append(votes, r)
	}
	return votes
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
