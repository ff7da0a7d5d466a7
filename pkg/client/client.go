package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/exposechain/exposechain/internal/chain"
	"github.com/exposechain/exposechain/internal/model"
	"github.com/exposechain/exposechain/internal/risk"
)

// maxResponse bounds how much of a response body is read. Full scan bundles
// with certificate chains run to a few hundred KB.
const maxResponse = 8 << 20

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
	// Scan is set when a discovery run failed after being recorded.
	Scan *model.ScanRecord
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// ScoreResult is the response of POST /exposures/score.
type ScoreResult struct {
	RiskScore   float64            `json:"risk_score"`
	Severity    risk.Severity      `json:"severity"`
	RiskFactors map[string]float64 `json:"risk_factors"`
	Details     map[string]string  `json:"details"`
}

// ChainResult is the response of the chain endpoints.
type ChainResult struct {
	Chains [][]chain.Node `json:"chains"`
	Stats  chain.Stats    `json:"stats"`
	Graph  chain.Graph    `json:"graph"`
}

// Client talks to one exposechain server.
type Client struct {
	base        string
	httpClient  *http.Client
	bearerToken string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithBearerToken attaches an operator token to every request.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		return nil
	}
}

// WithTimeout sets the per-request timeout. Full scans can take tens of
// seconds; the default is one minute.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		c.httpClient.Timeout = d
		return nil
	}
}

// WithInsecureSkipVerify disables TLS certificate verification.
// Only use this in development.
func WithInsecureSkipVerify() Option {
	return func(c *Client) error {
		c.httpClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
			},
			Timeout: c.httpClient.Timeout,
		}
		return nil
	}
}

// New creates a Client for the server at base, e.g. "http://localhost:8000".
func New(base string, opts ...Option) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", base)
	}
	c := &Client{
		base:       strings.TrimRight(base, "/") + "/api/v1",
		httpClient: &http.Client{Timeout: time.Minute},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ── Scans ─────────────────────────────────────────────────────────────────────

// Scan scans a domain or IP. scanType is "quick", "full" or empty.
func (c *Client) Scan(ctx context.Context, target, scanType string) (*model.ScanResponse, error) {
	var resp model.ScanResponse
	err := c.call(ctx, http.MethodPost, "/scan", model.ScanRequest{Target: target, ScanType: scanType}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetScan fetches one stored scan.
func (c *Client) GetScan(ctx context.Context, id uuid.UUID) (*model.ScanRecord, error) {
	var rec model.ScanRecord
	if err := c.call(ctx, http.MethodGet, "/scans/"+id.String(), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListScans lists stored scans, newest first.
func (c *Client) ListScans(ctx context.Context, f model.ScanFilter) ([]*model.ScanRecord, error) {
	q := url.Values{}
	if f.Kind != "" {
		q.Set("kind", string(f.Kind))
	}
	if f.Target != "" {
		q.Set("target", f.Target)
	}
	if f.Limit > 0 {
		q.Set("limit", fmt.Sprint(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", fmt.Sprint(f.Offset))
	}
	path := "/scans"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var payload struct {
		Scans []*model.ScanRecord `json:"scans"`
	}
	if err := c.call(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Scans, nil
}

// ── Exposures ─────────────────────────────────────────────────────────────────

// Discover runs the named discovery sources, or all of them when none are
// given. A run that failed on the server is returned as an *APIError whose
// Scan field holds the failed record.
func (c *Client) Discover(ctx context.Context, sources ...string) (*model.ScanRecord, error) {
	var rec model.ScanRecord
	if err := c.call(ctx, http.MethodPost, "/exposures/scan", model.DiscoverRequest{Sources: sources}, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Exposures lists the exposures found by a discovery scan.
func (c *Client) Exposures(ctx context.Context, scanID uuid.UUID) ([]*model.Exposure, error) {
	var payload struct {
		Exposures []*model.Exposure `json:"exposures"`
	}
	if err := c.call(ctx, http.MethodGet, "/scans/"+scanID.String()+"/exposures", nil, &payload); err != nil {
		return nil, err
	}
	return payload.Exposures, nil
}

// Score scores a single exposure without storing it.
func (c *Client) Score(ctx context.Context, e risk.Exposure) (*ScoreResult, error) {
	var res ScoreResult
	if err := c.call(ctx, http.MethodPost, "/exposures/score", e, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// BuildChains builds chains from records, optionally only those starting at
// domain.
func (c *Client) BuildChains(ctx context.Context, records []chain.Record, domain string) (*ChainResult, error) {
	var res ChainResult
	req := model.BuildChainsRequest{Records: records, Domain: domain}
	if err := c.call(ctx, http.MethodPost, "/chains", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// RiskSummary returns the severity breakdown of the latest discovery run.
func (c *Client) RiskSummary(ctx context.Context) (*risk.Summary, error) {
	var s risk.Summary
	if err := c.call(ctx, http.MethodGet, "/risk/summary", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ── transport ─────────────────────────────────────────────────────────────────

// call sends reqBody as JSON (when non-nil) and decodes the response into out.
func (c *Client) call(ctx context.Context, method, path string, reqBody, out any) error {
	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	respBody, err := c.do(req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// do executes an HTTP request, attaching the Bearer token if present.
func (c *Client) do(req *http.Request) ([]byte, error) {
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, apiError(resp.StatusCode, body)
	}
	return body, nil
}

func apiError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
	var payload struct {
		Error string            `json:"error"`
		Scan  *model.ScanRecord `json:"scan"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		apiErr.Message = payload.Error
		apiErr.Scan = payload.Scan
	}
	return apiErr
}
