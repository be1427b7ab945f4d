package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"
)

type SSLProber struct {
	timeout time.Duration
}

func NewSSLProber(timeout time.Duration) *SSLProber {
	return &SSLProber{timeout: timeout}
}

// Check connects with TLS and inspects the leaf certificate. DaysUntilExpiry
// is set whenever a certificate was seen, including when it makes the check
// fail, so imminent expiry is visible alongside an otherwise healthy site.
func (s *SSLProber) Check(ctx context.Context, target string) Result {
	host, port, err := hostPort(target)
	if err != nil {
		return Result{Error: fmt.Sprintf("invalid target: %v", err)}
	}
	if port == "80" {
		port = "443"
	}

	dialer := &net.Dialer{Timeout: s.timeout}

	start := time.Now()
	conn, err := tls.DialWithDialer(dialer, "tcp", net.JoinHostPort(host, port), &tls.Config{
		ServerName: host,
	})
	duration := time.Since(start)

	if err != nil {
		return Result{
			ResponseTimeMs: millis(duration),
			Error:          fmt.Sprintf("TLS connection failed: %v", err),
		}
	}
	defer conn.Close()

	certs := conn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return Result{
			ResponseTimeMs: millis(duration),
			Error:          "no certificates presented",
		}
	}

	cert := certs[0]
	now := time.Now()
	days := int(cert.NotAfter.Sub(now).Hours() / 24)

	result := Result{
		ResponseTimeMs:  millis(duration),
		DaysUntilExpiry: intPtr(days),
	}

	if now.Before(cert.NotBefore) {
		result.Error = "certificate not yet valid"
		return result
	}
	if now.After(cert.NotAfter) {
		result.Error = "certificate has expired"
		return result
	}

	result.IsUp = true
	return result
}
