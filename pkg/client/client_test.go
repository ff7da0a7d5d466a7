package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/exposechain/exposechain/internal/model"
	"github.com/exposechain/exposechain/pkg/client"
)

// ── Stub server ─────────────────────────────────────────────────────────

var failedScanID = uuid.MustParse("550e8400-e29b-41d4-a716-446655440001")

func stubServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/scan", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer op-token" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{"error": "missing or malformed Authorization header"})
			return
		}
		var req model.ScanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Target == "" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{"error": "target required"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success":     true,
			"scan_id":     "550e8400-e29b-41d4-a716-446655440000",
			"target":      req.Target,
			"target_type": "domain",
			"message":     "scan completed",
		})
	})

	mux.HandleFunc("/api/v1/exposures/scan", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]any{
			"error": "discover: kubernetes: connection refused",
			"scan":  map[string]any{"id": failedScanID.String(), "kind": "exposure", "status": "failed"},
		})
	})

	mux.HandleFunc("/api/v1/exposures/score", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"risk_score":   8.75,
			"severity":     "critical",
			"risk_factors": map[string]float64{"environment": 10},
			"details":      map[string]string{"environment": "production"},
		})
	})

	mux.HandleFunc("/api/v1/scans/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"error": "scan not found"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// ── Tests ───────────────────────────────────────────────────────────────

func TestNew_InvalidURL(t *testing.T) {
	if _, err := client.New("localhost:8000"); err == nil {
		t.Fatal("expected error for URL without scheme")
	}
}

func TestScan(t *testing.T) {
	srv := stubServer(t)
	c, err := client.New(srv.URL, client.WithBearerToken("op-token"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := c.Scan(context.Background(), "example.com", "quick")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if resp.Target != "example.com" || !resp.Success {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestScan_Unauthorized(t *testing.T) {
	srv := stubServer(t)
	c, _ := client.New(srv.URL)

	_, err := c.Scan(context.Background(), "example.com", "")
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", apiErr.StatusCode)
	}
	if !strings.Contains(apiErr.Message, "Authorization") {
		t.Errorf("Message = %q", apiErr.Message)
	}
}

func TestDiscover_FailedRunCarriesScan(t *testing.T) {
	srv := stubServer(t)
	c, _ := client.New(srv.URL)

	_, err := c.Discover(context.Background())
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Scan == nil || apiErr.Scan.ID != failedScanID {
		t.Fatalf("expected failed scan record, got %+v", apiErr.Scan)
	}
	if apiErr.Scan.Status != model.ScanStatusFailed {
		t.Errorf("Status = %q, want failed", apiErr.Scan.Status)
	}
}

func TestScore(t *testing.T) {
	srv := stubServer(t)
	c, _ := client.New(srv.URL + "/")

	res, err := c.Score(context.Background(), (&model.Exposure{Environment: "production"}).RiskInput())
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if res.RiskScore != 8.75 || res.Severity != "critical" {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestGetScan_NotFound(t *testing.T) {
	srv := stubServer(t)
	c, _ := client.New(srv.URL)

	_, err := c.GetScan(context.Background(), uuid.New())
	if !client.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}
