package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/exposechain/exposechain/internal/discovery"
	"github.com/exposechain/exposechain/internal/handler"
	"github.com/exposechain/exposechain/internal/identity"
	"github.com/exposechain/exposechain/internal/model"
	"github.com/exposechain/exposechain/internal/scan"
	"github.com/exposechain/exposechain/internal/scanner"
	"github.com/exposechain/exposechain/internal/service"
	"github.com/exposechain/exposechain/internal/store"
	"github.com/exposechain/exposechain/internal/threat"
)

// ── Stubs ────────────────────────────────────────────────────────────────

type stubScanner struct{}

func (stubScanner) Scan(_ context.Context, target string, kind scanner.Kind) (*scan.Bundle, error) {
	return &scan.Bundle{Target: target, TargetType: scan.DetectTargetType(target), ScanType: string(kind)}, nil
}

type stubDNS struct{}

func (stubDNS) Lookup(_ context.Context, target string, tt scan.TargetType) *scan.DNSLookup {
	return &scan.DNSLookup{Target: target, TargetType: tt}
}

type stubGeo struct{}

func (stubGeo) LookupIPs(_ context.Context, ips []string) *scan.Geolocation {
	locs := make(map[string]*scan.IPLocation)
	for _, ip := range ips {
		locs[ip] = &scan.IPLocation{Success: true, IP: ip}
	}
	return &scan.Geolocation{TotalIPs: len(locs), IPLocations: locs}
}

type stubSource struct{}

func (stubSource) Source() string { return model.SourceKubernetes }

func (stubSource) Discover(context.Context) ([]*model.Exposure, error) {
	port := 22
	return []*model.Exposure{{
		Source:      model.SourceKubernetes,
		IPAddress:   "203.0.113.10",
		Namespace:   "payments-prod",
		ServiceName: "ssh",
		ServiceType: "LoadBalancer",
		Environment: "production",
		Protocol:    "HTTP",
		Port:        &port,
	}}, nil
}

func setupRouter(t *testing.T, tokens *identity.TokenIssuer) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	st := store.NewMemory()

	scans := service.NewScanService(stubScanner{}, threat.NewPredictor(nil), st, nil, logger)
	lookups := service.NewLookupService(scanner.Collectors{DNS: stubDNS{}, Geo: stubGeo{}})
	exposures := service.NewExposureService(discovery.NewRegistry(stubSource{}), st, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	return handler.NewRouter(ctx, handler.RouterConfig{Version: "test"}, logger,
		handler.NewScanHandler(scans, lookups, tokens, logger),
		handler.NewExposureHandler(exposures, tokens, logger),
	)
}

func do(r http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	var buf *bytes.Buffer
	if body != "" {
		buf = bytes.NewBufferString(body)
	} else {
		buf = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, buf)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response: %v (body %s)", err, w.Body.String())
	}
}

// ── Public endpoints ─────────────────────────────────────────────────────

func TestInfoAndHealth(t *testing.T) {
	r := setupRouter(t, nil)

	w := do(r, http.MethodGet, "/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /: got %d", w.Code)
	}
	var info map[string]string
	decode(t, w, &info)
	if info["service"] != "exposechain" || info["version"] != "test" {
		t.Errorf("info: got %v", info)
	}

	if w := do(r, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Errorf("GET /healthz: got %d", w.Code)
	}
}

// ── Target scans ─────────────────────────────────────────────────────────

func TestScan_RoundTrip(t *testing.T) {
	r := setupRouter(t, nil)

	w := do(r, http.MethodPost, "/api/v1/scan", `{"target":"Example.com","scan_type":"full"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("POST /scan: got %d, body %s", w.Code, w.Body.String())
	}
	var resp model.ScanResponse
	decode(t, w, &resp)
	if !resp.Success || resp.Target != "example.com" || resp.TargetType != scan.TargetDomain {
		t.Errorf("response: %+v", resp)
	}
	if resp.ThreatReport == nil {
		t.Error("expected a threat report for a domain")
	}

	w = do(r, http.MethodGet, "/api/v1/scans/"+resp.ScanID.String(), "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /scans/:id: got %d", w.Code)
	}
	var rec model.ScanRecord
	decode(t, w, &rec)
	if rec.Status != model.ScanStatusCompleted || rec.ScanType != "full" {
		t.Errorf("record: status %q scan_type %q", rec.Status, rec.ScanType)
	}

	w = do(r, http.MethodGet, "/api/v1/scans?kind=target", "")
	var list struct {
		Count int `json:"count"`
	}
	decode(t, w, &list)
	if list.Count != 1 {
		t.Errorf("list count: got %d, want 1", list.Count)
	}
}

func TestScan_BadRequests(t *testing.T) {
	r := setupRouter(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"missing target", `{}`},
		{"invalid target", `{"target":"not a host"}`},
		{"invalid scan type", `{"target":"example.com","scan_type":"deep"}`},
		{"malformed json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(r, http.MethodPost, "/api/v1/scan", tt.body); w.Code != http.StatusBadRequest {
				t.Errorf("got %d, want 400", w.Code)
			}
		})
	}
}

func TestGetScan_NotFound(t *testing.T) {
	r := setupRouter(t, nil)

	if w := do(r, http.MethodGet, "/api/v1/scans/"+uuid.NewString(), ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown id: got %d, want 404", w.Code)
	}
	if w := do(r, http.MethodGet, "/api/v1/scans/nope", ""); w.Code != http.StatusBadRequest {
		t.Errorf("malformed id: got %d, want 400", w.Code)
	}
	if w := do(r, http.MethodGet, "/api/v1/scans/"+uuid.NewString()+"/exposures", ""); w.Code != http.StatusNotFound {
		t.Errorf("exposures of unknown id: got %d, want 404", w.Code)
	}
}

func TestScan_RequiresTokenWhenConfigured(t *testing.T) {
	tokens, err := identity.NewTokenIssuer("secret", "", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	r := setupRouter(t, tokens)

	if w := do(r, http.MethodPost, "/api/v1/scan", `{"target":"example.com"}`); w.Code != http.StatusUnauthorized {
		t.Errorf("no token: got %d, want 401", w.Code)
	}

	tok, _ := tokens.Issue("ops", []string{identity.ScopeScan})
	if w := do(r, http.MethodPost, "/api/v1/scan", `{"target":"example.com"}`, "Authorization", "Bearer "+tok); w.Code != http.StatusOK {
		t.Errorf("with token: got %d, want 200", w.Code)
	}
	if w := do(r, http.MethodPost, "/api/v1/exposures/scan", "", "Authorization", "Bearer "+tok); w.Code != http.StatusForbidden {
		t.Errorf("discover with scan-only token: got %d, want 403", w.Code)
	}
}

// ── Lookups ──────────────────────────────────────────────────────────────

func TestLookups(t *testing.T) {
	r := setupRouter(t, nil)

	w := do(r, http.MethodGet, "/api/v1/dns/example.com", "")
	if w.Code != http.StatusOK {
		t.Fatalf("dns: got %d", w.Code)
	}
	var d scan.DNSLookup
	decode(t, w, &d)
	if d.Target != "example.com" {
		t.Errorf("dns target: got %q", d.Target)
	}

	w = do(r, http.MethodGet, "/api/v1/geo/8.8.8.8", "")
	if w.Code != http.StatusOK {
		t.Fatalf("geo: got %d", w.Code)
	}

	if w := do(r, http.MethodGet, "/api/v1/geo/example.com", ""); w.Code != http.StatusBadRequest {
		t.Errorf("geo of a domain: got %d, want 400", w.Code)
	}
	if w := do(r, http.MethodGet, "/api/v1/whois/8.8.8.8", ""); w.Code != http.StatusBadRequest {
		t.Errorf("whois of an ip: got %d, want 400", w.Code)
	}
	if w := do(r, http.MethodGet, "/api/v1/ssl/example.com", ""); w.Code != http.StatusBadRequest {
		t.Errorf("ssl without collector: got %d, want 400", w.Code)
	}
}

// ── Exposures & chains ───────────────────────────────────────────────────

func TestExposureDiscovery(t *testing.T) {
	r := setupRouter(t, nil)

	w := do(r, http.MethodPost, "/api/v1/exposures/scan", `{"sources":["kubernetes"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("discover: got %d, body %s", w.Code, w.Body.String())
	}
	var rec model.ScanRecord
	decode(t, w, &rec)
	if rec.ExposureCount != 1 || rec.RiskSummary == nil || rec.RiskSummary.Critical != 1 {
		t.Errorf("record: %+v", rec)
	}

	w = do(r, http.MethodGet, "/api/v1/scans/"+rec.ID.String()+"/exposures", "")
	var exps struct {
		Count     int               `json:"count"`
		Exposures []*model.Exposure `json:"exposures"`
	}
	decode(t, w, &exps)
	if exps.Count != 1 || exps.Exposures[0].Severity != "critical" {
		t.Errorf("exposures: %+v", exps)
	}

	w = do(r, http.MethodGet, "/api/v1/scans/"+rec.ID.String()+"/chains", "")
	var chains service.ChainResult
	decode(t, w, &chains)
	if len(chains.Chains) != 1 || len(chains.Chains[0]) != 2 {
		t.Errorf("chains: %+v", chains.Chains)
	}

	w = do(r, http.MethodGet, "/api/v1/risk/summary", "")
	var summary map[string]any
	decode(t, w, &summary)
	if summary["total_exposures"] != float64(1) {
		t.Errorf("summary: %v", summary)
	}

	if w := do(r, http.MethodPost, "/api/v1/exposures/scan", `{"sources":["aws"]}`); w.Code != http.StatusBadRequest {
		t.Errorf("unknown source: got %d, want 400", w.Code)
	}
}

func TestScoreExposure(t *testing.T) {
	r := setupRouter(t, nil)

	w := do(r, http.MethodPost, "/api/v1/exposures/score",
		`{"environment":"production","protocol":"HTTP","tls_enabled":false,"port":22,"service_type":"LoadBalancer"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("score: got %d", w.Code)
	}
	var res struct {
		Score    float64 `json:"risk_score"`
		Severity string  `json:"severity"`
	}
	decode(t, w, &res)
	if res.Score != 8.75 || res.Severity != "critical" {
		t.Errorf("score: got %v %q, want 8.75 critical", res.Score, res.Severity)
	}
}

func TestBuildChains(t *testing.T) {
	r := setupRouter(t, nil)

	body := `{"records":[
		{"domain":"a.example.com","ip_address":"198.51.100.1","namespace":"web","service_name":"front","pod_selector":{"app":"front"}},
		{"domain":"b.example.com","namespace":"web","service_name":"front"}
	],"domain":"a.example.com"}`
	w := do(r, http.MethodPost, "/api/v1/chains", body)
	if w.Code != http.StatusOK {
		t.Fatalf("chains: got %d, body %s", w.Code, w.Body.String())
	}
	var res service.ChainResult
	decode(t, w, &res)
	if len(res.Chains) != 1 || len(res.Chains[0]) != 4 {
		t.Errorf("chains for a.example.com: %+v", res.Chains)
	}
	if res.Stats.TotalNodes != 5 {
		t.Errorf("total nodes: got %d, want 5", res.Stats.TotalNodes)
	}

	if w := do(r, http.MethodPost, "/api/v1/chains", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing records: got %d, want 400", w.Code)
	}
}
