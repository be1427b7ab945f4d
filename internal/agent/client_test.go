package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pulsemesh/pulsemesh/internal/db"
)

func verifyToken(t *testing.T, r *http.Request, secret, wantSubject string) {
	t.Helper()
	auth := r.Header.Get("Authorization")
	if len(auth) < 8 || auth[:7] != "Bearer " {
		t.Fatalf("authorization header = %q, want bearer token", auth)
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(auth[7:], claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		t.Fatalf("token does not verify: %v", err)
	}
	if claims.Subject != wantSubject {
		t.Errorf("token subject = %q, want %q", claims.Subject, wantSubject)
	}
	if claims.ExpiresAt == nil {
		t.Error("token has no expiry")
	}
}

func TestClientRegisterSignsToken(t *testing.T) {
	var got RegisterRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/workers/register" {
			t.Errorf("path = %s", r.URL.Path)
		}
		verifyToken(t, r, "secret", "w1")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Error(err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewClient(server.URL, "w1", "secret", time.Hour)
	startedAt := time.Now().UTC()
	if err := client.Register(context.Background(), "eu-west", startedAt); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if got.WorkerID != "w1" || got.Region != "eu-west" {
		t.Errorf("payload = %+v", got)
	}
}

func TestClientReportErrorOnRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := NewClient(server.URL, "w1", "secret", time.Hour)
	if err := client.Report(context.Background(), ReportRequest{SiteID: "s1"}); err == nil {
		t.Fatal("Report returned nil, want error on 422")
	}
}

func TestClientSites(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/agent/sites" {
			t.Errorf("path = %s", r.URL.Path)
		}
		verifyToken(t, r, "secret", "w1")
		json.NewEncoder(w).Encode(sitesResponse{Sites: []*db.Site{
			{ID: "s1", URL: "https://example.com", Enabled: true, IntervalSeconds: 60},
		}})
	}))
	defer server.Close()

	client := NewClient(server.URL, "w1", "secret", time.Hour)
	sites, err := client.Sites(context.Background())
	if err != nil {
		t.Fatalf("Sites: %v", err)
	}
	if len(sites) != 1 || sites[0].ID != "s1" {
		t.Errorf("sites = %+v", sites)
	}
}

func TestClientHeartbeatPayload(t *testing.T) {
	var got HeartbeatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Error(err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, "w1", "secret", time.Hour)
	if err := client.Heartbeat(context.Background(), "eu-west", 12); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if got.WorkerID != "w1" || got.ActiveSites != 12 {
		t.Errorf("payload = %+v", got)
	}
}
