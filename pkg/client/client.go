// Package client provides the Mirador Core REST API client.
// It handles authentication headers, request encoding and status handling.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"mirador-grafana-plugin/pkg/metrics"
	"mirador-grafana-plugin/pkg/ratelimit"

	"github.com/grafana/grafana-plugin-sdk-go/backend/log"
	"github.com/valyala/fastjson"
)

const (
	apiPrefix = "/api/v1"

	// Upper bound on response bodies read into memory.
	maxResponseBytes = 64 << 20
	// Length of the body excerpt carried by ClientError.
	errorBodyExcerpt = 512

	headerTenantID = "X-Tenant-ID"
)

var functionNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ClientError represents an error specifically related to Mirador Core API calls.
// StatusCode is zero when the request never produced an HTTP response.
type ClientError struct {
	Msg        string
	Endpoint   string
	StatusCode int
	Body       string
	Err        error // Wrapped error
}

func (e *ClientError) Error() string {
	msg := fmt.Sprintf("mirador client error: %s", e.Msg)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// Config holds configuration options for the Mirador Core client
type Config struct {
	BaseURL     string
	TenantID    string
	BearerToken string
	Timeout     time.Duration
	UserAgent   string
	RateLimit   float64 // requests per second, 0 disables limiting
	RateBurst   int
	HTTPClient  *http.Client // optional; a plain client with Timeout is used when nil
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Timeout:   30 * time.Second,
		UserAgent: "mirador-grafana-datasource",
		RateBurst: 10,
	}
}

// Client talks to one Mirador Core instance.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	tenantID    string
	bearerToken string
	userAgent   string
	limiter     *ratelimit.RateLimiter
}

// NewClient validates the configuration and returns a ready client.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, &ClientError{Msg: "Mirador Core URL cannot be empty"}
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, &ClientError{Msg: fmt.Sprintf("invalid Mirador Core URL %q", base), Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &ClientError{Msg: fmt.Sprintf("Mirador Core URL %q must use http or https", base)}
	}
	if u.Host == "" {
		return nil, &ClientError{Msg: fmt.Sprintf("Mirador Core URL %q has no host", base)}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultConfig().Timeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultConfig().UserAgent
	}

	return &Client{
		baseURL:     base,
		httpClient:  httpClient,
		tenantID:    cfg.TenantID,
		bearerToken: cfg.BearerToken,
		userAgent:   userAgent,
		limiter:     ratelimit.NewRateLimiter(cfg.RateLimit, float64(cfg.RateBurst)),
	}, nil
}

// Health calls GET /api/v1/health. A non-2xx answer is returned as *ClientError
// whose Body still carries the payload.
func (c *Client) Health(ctx context.Context) (*HealthResult, error) {
	body, status, err := c.do(ctx, "health", http.MethodGet, "/health", nil, nil)
	if err != nil {
		return nil, err
	}
	return &HealthResult{StatusCode: status, Status: PayloadStatus(body), Body: body}, nil
}

// SearchLogs calls POST /api/v1/logs/query.
func (c *Client) SearchLogs(ctx context.Context, req LogsQueryRequest) ([]byte, error) {
	return c.doJSON(ctx, "logs_query", http.MethodPost, "/logs/query", nil, req)
}

// LogFields calls GET /api/v1/logs/fields.
func (c *Client) LogFields(ctx context.Context) ([]byte, error) {
	return c.doJSON(ctx, "logs_fields", http.MethodGet, "/logs/fields", nil, nil)
}

// QueryMetrics runs an instant query via POST /api/v1/metrics/query.
func (c *Client) QueryMetrics(ctx context.Context, req MetricsInstantRequest) ([]byte, error) {
	return c.doJSON(ctx, "metrics_query", http.MethodPost, "/metrics/query", nil, req)
}

// QueryMetricsRange runs a range query via POST /api/v1/metrics/query_range.
func (c *Client) QueryMetricsRange(ctx context.Context, req MetricsRangeRequest) ([]byte, error) {
	return c.doJSON(ctx, "metrics_query_range", http.MethodPost, "/metrics/query_range", nil, req)
}

// AggregateMetrics calls POST /api/v1/metrics/query/aggregate/{fn}.
func (c *Client) AggregateMetrics(ctx context.Context, fn string, req MetricsFunctionRequest) ([]byte, error) {
	return c.MetricsFunction(ctx, FunctionAggregate, fn, req)
}

// RollupMetrics calls POST /api/v1/metrics/query/rollup/{fn}.
func (c *Client) RollupMetrics(ctx context.Context, fn string, req MetricsFunctionRequest) ([]byte, error) {
	return c.MetricsFunction(ctx, FunctionRollup, fn, req)
}

// TransformMetrics calls POST /api/v1/metrics/query/transform/{fn}.
func (c *Client) TransformMetrics(ctx context.Context, fn string, req MetricsFunctionRequest) ([]byte, error) {
	return c.MetricsFunction(ctx, FunctionTransform, fn, req)
}

// LabelMetrics calls POST /api/v1/metrics/query/label/{fn}.
func (c *Client) LabelMetrics(ctx context.Context, fn string, req MetricsFunctionRequest) ([]byte, error) {
	return c.MetricsFunction(ctx, FunctionLabel, fn, req)
}

// MetricsFunction calls one of the metrics function endpoints.
func (c *Client) MetricsFunction(ctx context.Context, kind FunctionKind, fn string, req MetricsFunctionRequest) ([]byte, error) {
	switch kind {
	case FunctionAggregate, FunctionRollup, FunctionTransform, FunctionLabel:
	default:
		return nil, &ClientError{Msg: fmt.Sprintf("unknown metrics function kind %q", kind)}
	}
	if !functionNameRegex.MatchString(fn) {
		return nil, &ClientError{Msg: fmt.Sprintf("invalid %s function name %q", kind, fn)}
	}
	path := "/metrics/query/" + string(kind) + "/" + fn
	return c.doJSON(ctx, "metrics_"+string(kind), http.MethodPost, path, nil, req)
}

// Labels calls GET /api/v1/labels.
func (c *Client) Labels(ctx context.Context, req LabelsRequest) ([]byte, error) {
	return c.doJSON(ctx, "labels", http.MethodGet, "/labels", req.values(), nil)
}

// LabelValues calls GET /api/v1/label/{name}/values.
func (c *Client) LabelValues(ctx context.Context, name string, req LabelsRequest) ([]byte, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &ClientError{Msg: "label name cannot be empty"}
	}
	return c.doJSON(ctx, "label_values", http.MethodGet, "/label/"+url.PathEscape(name)+"/values", req.values(), nil)
}

// MetricNames calls GET /api/v1/metrics/names.
func (c *Client) MetricNames(ctx context.Context) ([]byte, error) {
	return c.doJSON(ctx, "metric_names", http.MethodGet, "/metrics/names", nil, nil)
}

// SearchTraces calls POST /api/v1/traces/search.
func (c *Client) SearchTraces(ctx context.Context, req TracesSearchRequest) ([]byte, error) {
	return c.doJSON(ctx, "traces_search", http.MethodPost, "/traces/search", nil, req)
}

// GetTrace calls GET /api/v1/traces/{traceId}.
func (c *Client) GetTrace(ctx context.Context, traceID string) ([]byte, error) {
	if strings.TrimSpace(traceID) == "" {
		return nil, &ClientError{Msg: "trace ID cannot be empty"}
	}
	return c.doJSON(ctx, "trace", http.MethodGet, "/traces/"+url.PathEscape(traceID), nil, nil)
}

// TraceServices calls GET /api/v1/traces/services.
func (c *Client) TraceServices(ctx context.Context) ([]byte, error) {
	return c.doJSON(ctx, "trace_services", http.MethodGet, "/traces/services", nil, nil)
}

func (r LabelsRequest) values() url.Values {
	v := url.Values{}
	if !r.Start.IsZero() {
		v.Set("start", r.Start.UTC().Format(time.RFC3339))
	}
	if !r.End.IsZero() {
		v.Set("end", r.End.UTC().Format(time.RFC3339))
	}
	for _, m := range r.Match {
		v.Add("match[]", m)
	}
	return v
}

func (c *Client) doJSON(ctx context.Context, endpoint, method, path string, query url.Values, payload interface{}) ([]byte, error) {
	body, _, err := c.do(ctx, endpoint, method, path, query, payload)
	return body, err
}

// do performs a single attempt against the API and returns the body of a 2xx
// response after checking it is valid JSON.
func (c *Client) do(ctx context.Context, endpoint, method, path string, query url.Values, payload interface{}) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, &ClientError{Msg: "rate limiter wait aborted", Endpoint: endpoint, Err: err}
	}

	target := c.baseURL + apiPrefix + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, &ClientError{Msg: "could not encode request body", Endpoint: endpoint, Err: err}
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, 0, &ClientError{Msg: "could not build request", Endpoint: endpoint, Err: err}
	}
	c.setHeaders(req, payload != nil)

	log.DefaultLogger.Debug("Calling Mirador Core", "endpoint", endpoint, "method", method, "url", target)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordBackendRequest(endpoint, 0)
		return nil, 0, &ClientError{Msg: fmt.Sprintf("request to %s failed", endpoint), Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()
	metrics.RecordBackendRequest(endpoint, resp.StatusCode)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, &ClientError{Msg: "could not read response body", Endpoint: endpoint, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return body, resp.StatusCode, &ClientError{
			Msg:        fmt.Sprintf("%s returned an error status", endpoint),
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       excerpt(body),
		}
	}

	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("{}")
	}
	if err := fastjson.ValidateBytes(body); err != nil {
		return nil, resp.StatusCode, &ClientError{Msg: "response is not valid JSON", Endpoint: endpoint, StatusCode: resp.StatusCode, Body: excerpt(body), Err: err}
	}
	return body, resp.StatusCode, nil
}

func (c *Client) setHeaders(req *http.Request, hasBody bool) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tenantID != "" {
		req.Header.Set(headerTenantID, c.tenantID)
	}
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}
}

// PayloadStatus extracts the status field of a health-like payload, looking at
// the root and then under data. It returns "" when absent or not JSON.
func PayloadStatus(body []byte) string {
	v, err := fastjson.ParseBytes(body)
	if err != nil {
		return ""
	}
	for _, path := range [][]string{{"status"}, {"data", "status"}} {
		if s := v.GetStringBytes(path...); s != nil {
			return string(s)
		}
	}
	return ""
}

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > errorBodyExcerpt {
		return s[:errorBodyExcerpt] + "..."
	}
	return s
}
