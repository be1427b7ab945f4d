package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"
)

type HTTPProber struct {
	client *http.Client
}

func NewHTTPProber(timeout time.Duration) *HTTPProber {
	return &HTTPProber{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: false,
				},
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		},
	}
}

// Check issues a GET and treats any 2xx or 3xx within the timeout as up.
func (h *HTTPProber) Check(ctx context.Context, target string) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Result{Error: fmt.Sprintf("failed to create request: %v", err)}
	}

	start := time.Now()
	resp, err := h.client.Do(req)
	duration := time.Since(start)

	if err != nil {
		return Result{
			ResponseTimeMs: millis(duration),
			Error:          fmt.Sprintf("request failed: %v", err),
		}
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	result := Result{
		ResponseTimeMs: millis(duration),
		StatusCode:     intPtr(resp.StatusCode),
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		result.IsUp = true
	} else {
		result.Error = fmt.Sprintf("unexpected status code: %d", resp.StatusCode)
	}

	return result
}
