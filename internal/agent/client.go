package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pulsemesh/pulsemesh/internal/db"
)

// Client talks to the ingestion gateway on behalf of one worker. Every
// request carries a short-lived HS256 token with the worker ID as subject.
type Client struct {
	baseURL  string
	workerID string
	secret   []byte
	tokenTTL time.Duration
	http     *http.Client
}

func NewClient(baseURL, workerID, secret string, tokenTTL time.Duration) *Client {
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	return &Client{
		baseURL:  baseURL,
		workerID: workerID,
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		http:     &http.Client{Timeout: 15 * time.Second},
	}
}

type RegisterRequest struct {
	WorkerID  string    `json:"worker_id"`
	Region    string    `json:"region"`
	StartedAt time.Time `json:"started_at"`
}

type HeartbeatRequest struct {
	WorkerID    string    `json:"worker_id"`
	Region      string    `json:"region"`
	At          time.Time `json:"at"`
	ActiveSites int       `json:"active_sites"`
}

type WireResult struct {
	IsUp            bool    `json:"is_up"`
	ResponseTimeMs  float64 `json:"response_time_ms"`
	StatusCode      *int    `json:"status_code,omitempty"`
	DaysUntilExpiry *int    `json:"days_until_expiry,omitempty"`
	Error           string  `json:"error,omitempty"`
}

type ReportRequest struct {
	SiteID    string      `json:"site_id"`
	WorkerID  string      `json:"worker_id"`
	Region    string      `json:"region"`
	CheckedAt time.Time   `json:"checked_at"`
	HTTP      WireResult  `json:"http"`
	Ping      WireResult  `json:"ping"`
	DNS       WireResult  `json:"dns"`
	SSL       WireResult  `json:"ssl"`
	Domain    *WireResult `json:"domain,omitempty"`
}

type sitesResponse struct {
	Sites []*db.Site `json:"sites"`
}

func (c *Client) Register(ctx context.Context, region string, startedAt time.Time) error {
	req := RegisterRequest{WorkerID: c.workerID, Region: region, StartedAt: startedAt}
	return c.post(ctx, "/api/v1/workers/register", req)
}

func (c *Client) Heartbeat(ctx context.Context, region string, activeSites int) error {
	req := HeartbeatRequest{
		WorkerID:    c.workerID,
		Region:      region,
		At:          time.Now().UTC(),
		ActiveSites: activeSites,
	}
	return c.post(ctx, "/api/v1/ingest/heartbeat", req)
}

func (c *Client) Report(ctx context.Context, report ReportRequest) error {
	return c.post(ctx, "/api/v1/ingest/results", report)
}

// Sites fetches the enabled sites this agent should be checking.
func (c *Client) Sites(ctx context.Context) ([]*db.Site, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/agent/sites", nil)
	if err != nil {
		return nil, err
	}
	if err := c.authorize(httpReq); err != nil {
		return nil, err
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sites fetch failed: %s", resp.Status)
	}

	var body sitesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Sites, nil
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if err := c.authorize(httpReq); err != nil {
		return err
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s failed: %s", path, resp.Status)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) error {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   c.workerID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.tokenTTL)),
	})

	signed, err := token.SignedString(c.secret)
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", "Bearer "+signed)
	return nil
}
