package probe

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPProberUp(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	prober := NewHTTPProber(5 * time.Second)
	result := prober.Check(context.Background(), server.URL)

	if !result.IsUp {
		t.Errorf("IsUp = false, want true: %s", result.Error)
	}
	if result.StatusCode == nil || *result.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %v, want 200", result.StatusCode)
	}
	if result.ResponseTimeMs <= 0 {
		t.Errorf("ResponseTimeMs = %v, want > 0", result.ResponseTimeMs)
	}
	if result.Error != "" {
		t.Errorf("Error = %q, want empty", result.Error)
	}
}

func TestHTTPProberRedirectIsUp(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/landed", http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	prober := NewHTTPProber(5 * time.Second)
	if result := prober.Check(context.Background(), server.URL); !result.IsUp {
		t.Errorf("IsUp = false, want true through redirect: %s", result.Error)
	}
}

func TestHTTPProberServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	prober := NewHTTPProber(5 * time.Second)
	result := prober.Check(context.Background(), server.URL)

	if result.IsUp {
		t.Error("IsUp = true, want false for 500")
	}
	if result.StatusCode == nil || *result.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %v, want 500", result.StatusCode)
	}
	if result.Error == "" {
		t.Error("Error should describe the bad status")
	}
}

func TestHTTPProberHangingServerReturnsWithinTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	timeout := 100 * time.Millisecond
	prober := NewHTTPProber(timeout)

	start := time.Now()
	result := prober.Check(context.Background(), server.URL)
	elapsed := time.Since(start)

	if result.IsUp {
		t.Error("IsUp = true, want false against a hanging server")
	}
	if result.Error == "" {
		t.Error("Error should describe the timeout")
	}
	// Bounded return: the probe folds the timeout into the result instead of
	// hanging with the server.
	if elapsed > timeout+500*time.Millisecond {
		t.Errorf("Check took %v, want near the %v timeout", elapsed, timeout)
	}
}

func TestHTTPProberConnectionRefused(t *testing.T) {
	// Grab a port nothing listens on.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	target := "http://" + listener.Addr().String()
	listener.Close()

	prober := NewHTTPProber(2 * time.Second)
	result := prober.Check(context.Background(), target)

	if result.IsUp {
		t.Error("IsUp = true, want false when nothing listens")
	}
	if result.Error == "" {
		t.Error("Error should describe the connection failure")
	}
	if result.StatusCode != nil {
		t.Errorf("StatusCode = %v, want nil", result.StatusCode)
	}
}

func TestHTTPProberInvalidURL(t *testing.T) {
	prober := NewHTTPProber(time.Second)
	if result := prober.Check(context.Background(), "://nope"); result.IsUp || result.Error == "" {
		t.Errorf("result = %+v, want folded failure", result)
	}
}

func TestPingProberUp(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer listener.Close()
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	prober := NewPingProber(2 * time.Second)
	result := prober.Check(context.Background(), "http://"+listener.Addr().String())

	if !result.IsUp {
		t.Errorf("IsUp = false, want true: %s", result.Error)
	}
}

func TestPingProberDown(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	target := "http://" + listener.Addr().String()
	listener.Close()

	prober := NewPingProber(2 * time.Second)
	result := prober.Check(context.Background(), target)

	if result.IsUp {
		t.Error("IsUp = true, want false against closed port")
	}
	if result.Error == "" {
		t.Error("Error should describe the failure")
	}
}

func TestHostPort(t *testing.T) {
	tests := []struct {
		target   string
		wantHost string
		wantPort string
	}{
		{"https://example.com", "example.com", "443"},
		{"http://example.com", "example.com", "80"},
		{"https://example.com:8443/path", "example.com", "8443"},
		{"example.com", "example.com", "443"},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			host, port, err := hostPort(tt.target)
			if err != nil {
				t.Fatalf("hostPort(%q): %v", tt.target, err)
			}
			if host != tt.wantHost || port != tt.wantPort {
				t.Errorf("hostPort(%q) = %s:%s, want %s:%s", tt.target, host, port, tt.wantHost, tt.wantPort)
			}
		})
	}

	if _, _, err := hostPort(""); err == nil {
		t.Error("hostPort(\"\") should fail")
	}
}

func TestSSLProberNonTLSEndpoint(t *testing.T) {
	// A plain TCP listener that never speaks TLS.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer listener.Close()
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	prober := NewSSLProber(2 * time.Second)
	result := prober.Check(context.Background(), "https://"+listener.Addr().String())

	if result.IsUp {
		t.Error("IsUp = true, want false: handshake cannot succeed")
	}
	if result.Error == "" {
		t.Error("Error should describe the handshake failure")
	}
}

func TestSSLProberSelfSignedCertificate(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	prober := NewSSLProber(2 * time.Second)
	result := prober.Check(context.Background(), server.URL)

	// The chain does not verify, so the handshake fails and the check is down.
	if result.IsUp {
		t.Error("IsUp = true, want false for an untrusted chain")
	}
	if result.Error == "" {
		t.Error("Error should describe the handshake failure")
	}
}

func TestDNSProberUnreachableResolver(t *testing.T) {
	prober := NewDNSProberWithResolver(500*time.Millisecond, "127.0.0.1:1")
	result := prober.Check(context.Background(), "https://example.com")

	if result.IsUp {
		t.Error("IsUp = true, want false with unreachable resolver")
	}
	if result.Error == "" {
		t.Error("Error should describe the resolution failure")
	}
}

type stubProber struct {
	result Result
	delay  time.Duration
}

func (s *stubProber) Check(ctx context.Context, target string) Result {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
		}
	}
	return s.result
}

func TestExecutorRunsAllChecks(t *testing.T) {
	e := &Executor{
		HTTP: &stubProber{result: Result{IsUp: true, ResponseTimeMs: 10}},
		Ping: &stubProber{result: Result{IsUp: true, ResponseTimeMs: 5}},
		DNS:  &stubProber{result: Result{IsUp: false, Error: "servfail"}},
		SSL:  &stubProber{result: Result{IsUp: true, DaysUntilExpiry: intPtr(42)}},
	}

	batch := e.Run(context.Background(), "https://example.com")

	if !batch.HTTP.IsUp || !batch.Ping.IsUp || !batch.SSL.IsUp {
		t.Errorf("batch = %+v, want http/ping/ssl up", batch)
	}
	if batch.DNS.IsUp || batch.DNS.Error != "servfail" {
		t.Errorf("dns = %+v, want down with error", batch.DNS)
	}
	if batch.SSL.DaysUntilExpiry == nil || *batch.SSL.DaysUntilExpiry != 42 {
		t.Errorf("ssl expiry = %v, want 42", batch.SSL.DaysUntilExpiry)
	}
	if batch.Domain != nil {
		t.Error("domain should not be set by the executor")
	}
}

func TestExecutorChecksRunConcurrently(t *testing.T) {
	delay := 100 * time.Millisecond
	e := &Executor{
		HTTP: &stubProber{result: Result{IsUp: true}, delay: delay},
		Ping: &stubProber{result: Result{IsUp: true}, delay: delay},
		DNS:  &stubProber{result: Result{IsUp: true}, delay: delay},
		SSL:  &stubProber{result: Result{IsUp: true}, delay: delay},
	}

	start := time.Now()
	e.Run(context.Background(), "https://example.com")
	elapsed := time.Since(start)

	// Sequential would take 4x the delay.
	if elapsed > 3*delay {
		t.Errorf("Run took %v, checks appear sequential", elapsed)
	}
}

func TestMillis(t *testing.T) {
	if got := millis(1500 * time.Microsecond); got != 1.5 {
		t.Errorf("millis = %v, want 1.5", got)
	}
}
