// Package metricsource implements the Metric Source Adapter: a thin client
// over an externally-owned Prometheus-compatible instant-query API.
// Flightline never stores or computes metrics itself — see the Non-goals
// in spec.md §1.
package metricsource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client queries a Prometheus-compatible `/api/v1/query` instant-query
// endpoint.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	timeout time.Duration
}

// NewClient creates a Client against endpoint (trailing slash trimmed).
// apiKey, if non-empty, is sent as a bearer token.
func NewClient(endpoint, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(endpoint, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

type queryResponse struct {
	Status string `json:"status"`
	Data   struct {
		Result []struct {
			Value [2]interface{} `json:"value"`
		} `json:"result"`
	} `json:"data"`
}

// QueryInstant executes an instant query and returns the scalar value of
// the first series, or 0 if the result set is empty. It fails only on
// transport errors; callers treat those as a missing sample, never as a
// budget violation (spec.md §4.A).
func (c *Client) QueryInstant(ctx context.Context, expr string, labels map[string]string) (float64, error) {
	query := expr
	if len(labels) > 0 {
		var pairs []string
		for k, v := range labels {
			pairs = append(pairs, fmt.Sprintf(`%s="%s"`, k, v))
		}
		query = fmt.Sprintf(`%s{%s}`, expr, strings.Join(pairs, ","))
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqURL := c.baseURL + "/api/v1/query?" + url.Values{"query": {query}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("building query request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("querying metric source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("metric source returned status %d", resp.StatusCode)
	}

	var qr queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return 0, fmt.Errorf("decoding query response: %w", err)
	}

	if qr.Status != "success" || len(qr.Data.Result) == 0 {
		return 0, nil
	}

	raw, ok := qr.Data.Result[0].Value[1].(string)
	if !ok {
		return 0, nil
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || isNaN(v) {
		return 0, nil
	}

	return v, nil
}

func isNaN(f float64) bool {
	return f != f
}

// Bundle is the fixed five-query set the Canary Controller issues on every
// monitor tick (spec.md §4.G step 1).
type Bundle struct {
	RequestCount string
	ErrorCount   string
	LatencyP50   string
	LatencyP95   string
	LatencyP99   string
}

// DefaultBundle is the conventional PromQL expression set for a service,
// parameterised only by labels at query time.
var DefaultBundle = Bundle{
	RequestCount: "sum(rate(http_requests_total[5m]))",
	ErrorCount:   "sum(rate(http_requests_total{status=~\"5..\"}[5m]))",
	LatencyP50:   "histogram_quantile(0.50, sum(rate(http_request_duration_seconds_bucket[5m])) by (le))",
	LatencyP95:   "histogram_quantile(0.95, sum(rate(http_request_duration_seconds_bucket[5m])) by (le))",
	LatencyP99:   "histogram_quantile(0.99, sum(rate(http_request_duration_seconds_bucket[5m])) by (le))",
}

// Snapshot is the raw result of issuing Bundle's five queries.
type Snapshot struct {
	RequestCount float64
	ErrorCount   float64
	LatencyP50Ms float64
	LatencyP95Ms float64
	LatencyP99Ms float64
}

// QueryBundle issues the five-query bundle with the given labels and
// returns the raw snapshot. A transport error on any single query degrades
// that query to 0 and is returned alongside the partial snapshot so the
// caller can log it without failing the whole tick.
func (c *Client) QueryBundle(ctx context.Context, b Bundle, labels map[string]string) (Snapshot, error) {
	var snap Snapshot
	var firstErr error

	fetch := func(expr string, dst *float64) {
		v, err := c.QueryInstant(ctx, expr, labels)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		*dst = v
	}

	fetch(b.RequestCount, &snap.RequestCount)
	fetch(b.ErrorCount, &snap.ErrorCount)

	var p50, p95, p99 float64
	fetch(b.LatencyP50, &p50)
	fetch(b.LatencyP95, &p95)
	fetch(b.LatencyP99, &p99)
	snap.LatencyP50Ms = p50 * 1000
	snap.LatencyP95Ms = p95 * 1000
	snap.LatencyP99Ms = p99 * 1000

	return snap, firstErr
}
