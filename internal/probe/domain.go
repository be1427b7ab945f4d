package probe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/likexian/whois"
)

// DomainProber looks up the registration expiry of the site's domain via
// WHOIS. It is an advisory check: the result is surfaced as a warning
// attribute and never votes in consensus. Registrars rate-limit WHOIS, so the
// agent runs this on a long cadence and caches the answer.
type DomainProber struct {
	timeout time.Duration
}

func NewDomainProber(timeout time.Duration) *DomainProber {
	return &DomainProber{timeout: timeout}
}

func (d *DomainProber) Check(ctx context.Context, target string) Result {
	host, _, err := hostPort(target)
	if err != nil {
		return Result{Error: fmt.Sprintf("invalid target: %v", err)}
	}

	client := whois.NewClient()
	client.SetTimeout(d.timeout)

	start := time.Now()
	raw, err := client.Whois(host)
	duration := time.Since(start)

	if err != nil {
		return Result{
			ResponseTimeMs: millis(duration),
			Error:          fmt.Sprintf("WHOIS lookup failed: %v", err),
		}
	}

	expiry := extractExpiryDate(raw)
	if expiry.IsZero() {
		return Result{
			ResponseTimeMs: millis(duration),
			Error:          "could not extract expiry date from WHOIS data",
		}
	}

	now := time.Now()
	days := int(expiry.Sub(now).Hours() / 24)

	result := Result{
		ResponseTimeMs:  millis(duration),
		DaysUntilExpiry: intPtr(days),
	}

	if now.After(expiry) {
		result.Error = "domain has expired"
		return result
	}

	result.IsUp = true
	return result
}

func extractExpiryDate(whoisData string) time.Time {
	patterns := []string{
		"Registry Expiry Date:",
		"Registrar Registration Expiration Date:",
		"Expiry Date:",
		"Expiration Date:",
		"Expires:",
		"Expiry:",
		"paid-till:",
	}

	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
		"2006-01-02",
		"02-Jan-2006",
		"2006.01.02",
	}

	for _, line := range strings.Split(whoisData, "\n") {
		line = strings.TrimSpace(line)
		for _, pattern := range patterns {
			if !strings.HasPrefix(strings.ToLower(line), strings.ToLower(pattern)) {
				continue
			}
			dateStr := strings.TrimSpace(line[len(pattern):])
			for _, format := range formats {
				if t, err := time.Parse(format, dateStr); err == nil {
					return t
				}
			}
		}
	}

	return time.Time{}
}
