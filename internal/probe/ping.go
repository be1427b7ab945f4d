package probe

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"
)

// PingProber probes host reachability with a TCP connect. ICMP needs raw
// sockets, which agents usually do not have, so a TCP handshake against the
// site's port stands in for echo.
type PingProber struct {
	timeout time.Duration
	dialer  *net.Dialer
}

func NewPingProber(timeout time.Duration) *PingProber {
	return &PingProber{
		timeout: timeout,
		dialer:  &net.Dialer{Timeout: timeout},
	}
}

func (p *PingProber) Check(ctx context.Context, target string) Result {
	host, port, err := hostPort(target)
	if err != nil {
		return Result{Error: fmt.Sprintf("invalid target: %v", err)}
	}

	start := time.Now()
	conn, err := p.dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	duration := time.Since(start)

	if err != nil {
		return Result{
			ResponseTimeMs: millis(duration),
			Error:          fmt.Sprintf("connection failed: %v", err),
		}
	}
	conn.Close()

	return Result{
		IsUp:           true,
		ResponseTimeMs: millis(duration),
	}
}

// hostPort extracts host and port from a site URL, defaulting the port from
// the scheme.
func hostPort(target string) (string, string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", "", err
	}

	host := u.Hostname()
	if host == "" {
		// Bare "example.com" targets parse with an empty host.
		host = u.Path
	}
	if host == "" {
		return "", "", fmt.Errorf("no host in %q", target)
	}

	port := u.Port()
	if port == "" {
		if u.Scheme == "http" {
			port = "80"
		} else {
			port = "443"
		}
	}

	return host, port, nil
}
