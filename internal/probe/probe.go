package probe

import (
	"context"
	"sync"
	"time"
)

// Result is one probe observation. Probes never return an error: every
// failure mode (network error, timeout, bad response) is folded into
// IsUp=false with the reason in Error.
type Result struct {
	IsUp            bool
	ResponseTimeMs  float64
	StatusCode      *int
	DaysUntilExpiry *int
	Error           string
}

// Prober runs a single check type against a target URL.
type Prober interface {
	Check(ctx context.Context, target string) Result
}

// Batch holds the per-check-type results of one executor run. Domain is
// optional; it only rides along when the agent has a fresh whois observation.
type Batch struct {
	HTTP   Result
	Ping   Result
	DNS    Result
	SSL    Result
	Domain *Result
}

// Executor fans one site out to the four check kinds concurrently and waits
// for all of them (or their individual timeouts).
type Executor struct {
	HTTP Prober
	Ping Prober
	DNS  Prober
	SSL  Prober

	timeout time.Duration
}

func NewExecutor(timeout time.Duration) *Executor {
	return &Executor{
		HTTP:    NewHTTPProber(timeout),
		Ping:    NewPingProber(timeout),
		DNS:     NewDNSProber(timeout),
		SSL:     NewSSLProber(timeout),
		timeout: timeout,
	}
}

func (e *Executor) Timeout() time.Duration {
	return e.timeout
}

// Run executes the four quorum checks concurrently. The checks are
// independent network calls with no shared state, so there is no ordering.
func (e *Executor) Run(ctx context.Context, target string) Batch {
	var batch Batch
	var wg sync.WaitGroup

	wg.Add(4)
	go func() {
		defer wg.Done()
		batch.HTTP = e.HTTP.Check(ctx, target)
	}()
	go func() {
		defer wg.Done()
		batch.Ping = e.Ping.Check(ctx, target)
	}()
	go func() {
		defer wg.Done()
		batch.DNS = e.DNS.Check(ctx, target)
	}()
	go func() {
		defer wg.Done()
		batch.SSL = e.SSL.Check(ctx, target)
	}()
	wg.Wait()

	return batch
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}

func intPtr(v int) *int {
	return &v
}
