package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/miekg/dns"
)

const defaultResolver = "8.8.8.8:53"

type DNSProber struct {
	timeout  time.Duration
	resolver string
}

func NewDNSProber(timeout time.Duration) *DNSProber {
	return &DNSProber{
		timeout:  timeout,
		resolver: defaultResolver,
	}
}

// NewDNSProberWithResolver is used by tests to point at a local server.
func NewDNSProberWithResolver(timeout time.Duration, resolver string) *DNSProber {
	return &DNSProber{
		timeout:  timeout,
		resolver: resolver,
	}
}

// Check resolves the target hostname. Up means the query succeeded and
// returned at least one address.
func (d *DNSProber) Check(ctx context.Context, target string) Result {
	host, _, err := hostPort(target)
	if err != nil {
		return Result{Error: fmt.Sprintf("invalid target: %v", err)}
	}

	c := new(dns.Client)
	c.Timeout = d.timeout

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), dns.TypeA)

	start := time.Now()
	r, _, err := c.ExchangeContext(ctx, m, d.resolver)
	duration := time.Since(start)

	if err != nil {
		return Result{
			ResponseTimeMs: millis(duration),
			Error:          fmt.Sprintf("DNS query failed: %v", err),
		}
	}

	if r.Rcode != dns.RcodeSuccess {
		return Result{
			ResponseTimeMs: millis(duration),
			Error:          fmt.Sprintf("DNS query failed with code: %s", dns.RcodeToString[r.Rcode]),
		}
	}

	addresses := 0
	for _, ans := range r.Answer {
		switch ans.(type) {
		case *dns.A, *dns.AAAA, *dns.CNAME:
			addresses++
		}
	}

	if addresses == 0 {
		return Result{
			ResponseTimeMs: millis(duration),
			Error:          "no address records found",
		}
	}

	return Result{
		IsUp:           true,
		ResponseTimeMs: millis(duration),
	}
}
