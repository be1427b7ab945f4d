package agent

import (
	"context"
	"sync"
	"time"

	"github.com/pulsemesh/pulsemesh/internal/config"
	"github.com/pulsemesh/pulsemesh/internal/db"
	"github.com/pulsemesh/pulsemesh/internal/probe"
	"go.uber.org/zap"
)

// Reporter is the slice of Client the agent loop needs; tests swap in fakes.
type Reporter interface {
	Register(ctx context.Context, region string, startedAt time.Time) error
	Heartbeat(ctx context.Context, region string, activeSites int) error
	Report(ctx context.Context, report ReportRequest) error
	Sites(ctx context.Context) ([]*db.Site, error)
}

// Agent owns one region identity and a set of independent per-site timers.
// Each timer fires the probe executor and reports upstream; a slow or failed
// report for one site never blocks another site's schedule.
type Agent struct {
	cfg      config.AgentConfig
	client   Reporter
	executor *probe.Executor
	domain   probe.Prober
	logger   *zap.Logger

	mu      sync.Mutex
	runners map[string]*siteRunner

	domainMu    sync.Mutex
	domainCache map[string]domainEntry

	startedAt time.Time
	wg        sync.WaitGroup
}

type domainEntry struct {
	result    probe.Result
	fetchedAt time.Time
}

func New(cfg config.AgentConfig, client Reporter, executor *probe.Executor, logger *zap.Logger) *Agent {
	return &Agent{
		cfg:         cfg,
		client:      client,
		executor:    executor,
		domain:      probe.NewDomainProber(executor.Timeout()),
		logger:      logger.With(zap.String("worker_id", cfg.WorkerID), zap.String("region", cfg.Region)),
		runners:     make(map[string]*siteRunner),
		domainCache: make(map[string]domainEntry),
		startedAt:   time.Now().UTC(),
	}
}

// Run registers the worker, then drives the heartbeat and site-refresh loops
// until the context is cancelled. In-flight probes finish or time out
// normally on shutdown; no new firings start.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.registerWithRetry(ctx); err != nil {
		return err
	}
	a.logger.Info("Agent registered")

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.heartbeatLoop(ctx)
	}()

	a.refreshSites(ctx)

	refresh := time.NewTicker(a.cfg.SiteRefresh)
	defer refresh.Stop()

	for {
		select {
		case <-ctx.Done():
			a.stopAllRunners()
			a.wg.Wait()
			a.logger.Info("Agent stopped")
			return nil
		case <-refresh.C:
			a.refreshSites(ctx)
		}
	}
}

func (a *Agent) registerWithRetry(ctx context.Context) error {
	for {
		err := a.client.Register(ctx, a.cfg.Region, a.startedAt)
		if err == nil {
			return nil
		}
		a.logger.Warn("Registration failed, retrying", zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.cfg.ReportBackoff):
		}
	}
}

func (a *Agent) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.HeartbeatInterval)
	defer ticker.Stop()

	// Heartbeat cadence is independent of check activity: a worker with zero
	// assigned sites still reports liveness.
	a.sendHeartbeat(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.sendHeartbeat(ctx)
		}
	}
}

func (a *Agent) sendHeartbeat(ctx context.Context) {
	if err := a.client.Heartbeat(ctx, a.cfg.Region, a.ActiveSites()); err != nil {
		a.logger.Warn("Heartbeat failed", zap.Error(err))
	}
}

// ActiveSites is the number of sites with a running timer.
func (a *Agent) ActiveSites() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.runners)
}

// refreshSites reconciles the runner set against the gateway's site list:
// new sites get a timer, removed sites lose theirs, and interval or URL
// changes restart the timer.
func (a *Agent) refreshSites(ctx context.Context) {
	sites, err := a.client.Sites(ctx)
	if err != nil {
		a.logger.Warn("Site refresh failed", zap.Error(err))
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	seen := make(map[string]bool, len(sites))
	for _, site := range sites {
		seen[site.ID] = true

		if existing, ok := a.runners[site.ID]; ok {
			if existing.site.URL == site.URL && existing.site.IntervalSeconds == site.IntervalSeconds {
				continue
			}
			existing.stop()
		}

		runner := newSiteRunner(site, a)
		a.runners[site.ID] = runner
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			runner.run(ctx)
		}()
	}

	for id, runner := range a.runners {
		if !seen[id] {
			runner.stop()
			delete(a.runners, id)
			a.logger.Info("Stopped checking site", zap.String("site_id", id))
		}
	}
}

func (a *Agent) stopAllRunners() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, runner := range a.runners {
		runner.stop()
		delete(a.runners, id)
	}
}

// fire runs one full check cycle for a site and reports the batch. Called
// from the site's own goroutine.
func (a *Agent) fire(ctx context.Context, site *db.Site) {
	checkedAt := time.Now().UTC()

	// Shutdown stops new firings but must not kill a probe mid-request: the
	// work context detaches from run cancellation and is bounded by the probe
	// timeout instead. wg.Wait in Run drains whatever is in flight.
	probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.executor.Timeout())
	batch := a.executor.Run(probeCtx, site.URL)

	if domain := a.domainResult(probeCtx, site); domain != nil {
		batch.Domain = domain
	}
	cancel()

	report := buildReport(a.cfg.WorkerID, a.cfg.Region, site.ID, checkedAt, batch)

	// Reporting retries in its own goroutine so backoff never delays the
	// next scheduled firing. Delivery also survives shutdown; its retries are
	// bounded, so the drain terminates.
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.deliver(context.WithoutCancel(ctx), site, report)
	}()
}

func (a *Agent) deliver(ctx context.Context, site *db.Site, report ReportRequest) {
	attempts := a.cfg.ReportRetries
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = a.client.Report(ctx, report); err == nil {
			return
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
			case <-time.After(a.cfg.ReportBackoff << i):
			}
		}
	}

	// Exhausted: drop this batch. The next firing produces fresh data.
	a.logger.Error("Dropping report after retries",
		zap.String("site_id", site.ID),
		zap.Int("attempts", attempts),
		zap.Error(err),
	)
}

// domainResult returns a cached WHOIS observation, refreshing it when older
// than the configured TTL. WHOIS servers rate-limit aggressively.
func (a *Agent) domainResult(ctx context.Context, site *db.Site) *probe.Result {
	if a.cfg.DomainCheckTTL <= 0 {
		return nil
	}

	a.domainMu.Lock()
	entry, ok := a.domainCache[site.ID]
	a.domainMu.Unlock()

	if ok && time.Since(entry.fetchedAt) < a.cfg.DomainCheckTTL {
		result := entry.result
		return &result
	}

	result := a.domain.Check(ctx, site.URL)

	a.domainMu.Lock()
	a.domainCache[site.ID] = domainEntry{result: result, fetchedAt: time.Now()}
	a.domainMu.Unlock()

	return &result
}

func buildReport(workerID, region, siteID string, checkedAt time.Time, batch probe.Batch) ReportRequest {
	report := ReportRequest{
		SiteID:    siteID,
		WorkerID:  workerID,
		Region:    region,
		CheckedAt: checkedAt,
		HTTP:      toWire(batch.HTTP),
		Ping:      toWire(batch.Ping),
		DNS:       toWire(batch.DNS),
		SSL:       toWire(batch.SSL),
	}
	if batch.Domain != nil {
		wire := toWire(*batch.Domain)
		report.Domain = &wire
	}
	return report
}

func toWire(r probe.Result) WireResult {
	return WireResult{
		IsUp:            r.IsUp,
		ResponseTimeMs:  r.ResponseTimeMs,
		StatusCode:      r.StatusCode,
		DaysUntilExpiry: r.DaysUntilExpiry,
		Error:           r.Error,
	}
}

// siteRunner is one per-site timer. Stopping it only prevents future
// firings; an in-flight firing runs to completion.
type siteRunner struct {
	site  *db.Site
	agent *Agent
	done  chan struct{}
	once  sync.Once
}

func newSiteRunner(site *db.Site, agent *Agent) *siteRunner {
	return &siteRunner{
		site:  site,
		agent: agent,
		done:  make(chan struct{}),
	}
}

func (r *siteRunner) run(ctx context.Context) {
	ticker := time.NewTicker(r.site.Interval())
	defer ticker.Stop()

	// First observation right away rather than one interval in.
	r.agent.fire(ctx, r.site)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-ticker.C:
			r.agent.fire(ctx, r.site)
		}
	}
}

func (r *siteRunner) stop() {
	r.once.Do(func() { close(r.done) })
}
