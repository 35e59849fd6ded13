package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   map[string]interface{}
}

// newTestServer returns a fake Mirador Core that records the last request and
// answers with the given status and body.
func newTestServer(t *testing.T, status int, body string) (*httptest.Server, *recordedRequest) {
	t.Helper()
	rec := &recordedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.Method = r.Method
		rec.Path = r.URL.EscapedPath()
		rec.Query = r.URL.RawQuery
		rec.Header = r.Header.Clone()
		rec.Body = nil
		if b, _ := io.ReadAll(r.Body); len(b) > 0 {
			require.NoError(t, json.Unmarshal(b, &rec.Body))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func newTestClient(t *testing.T, baseURL string, mutate func(*Config)) *Client {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := NewClient(cfg)
	require.NoError(t, err)
	return c
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr string
	}{
		{name: "valid http", baseURL: "http://localhost:8080"},
		{name: "valid https with path", baseURL: "https://mirador.example.com/core/"},
		{name: "empty", baseURL: "  ", wantErr: "URL cannot be empty"},
		{name: "bad scheme", baseURL: "ftp://mirador", wantErr: "must use http or https"},
		{name: "no host", baseURL: "http://", wantErr: "has no host"},
		{name: "unparseable", baseURL: "http://[::1", wantErr: "invalid Mirador Core URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.BaseURL = tt.baseURL
			c, err := NewClient(cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, c)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, c)
		})
	}
}

func TestClient_Headers(t *testing.T) {
	t.Run("tenant and token attached when configured", func(t *testing.T) {
		srv, rec := newTestServer(t, http.StatusOK, `{"status":"success","data":[]}`)
		c := newTestClient(t, srv.URL, func(cfg *Config) {
			cfg.TenantID = "acme"
			cfg.BearerToken = "s3cret"
		})

		_, err := c.MetricNames(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "acme", rec.Header.Get("X-Tenant-ID"))
		assert.Equal(t, "Bearer s3cret", rec.Header.Get("Authorization"))
		assert.Equal(t, "application/json", rec.Header.Get("Accept"))
		assert.Equal(t, "mirador-grafana-datasource", rec.Header.Get("User-Agent"))
		assert.Empty(t, rec.Header.Get("Content-Type"))
	})

	t.Run("headers omitted when not configured", func(t *testing.T) {
		srv, rec := newTestServer(t, http.StatusOK, `{}`)
		c := newTestClient(t, srv.URL, nil)

		_, err := c.SearchLogs(context.Background(), LogsQueryRequest{Query: "*"})
		require.NoError(t, err)
		_, hasTenant := rec.Header["X-Tenant-Id"]
		assert.False(t, hasTenant)
		assert.Empty(t, rec.Header.Get("Authorization"))
		assert.Equal(t, "application/json", rec.Header.Get("Content-Type"))
	})
}

func TestClient_Endpoints(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	tests := []struct {
		name       string
		call       func(c *Client) ([]byte, error)
		wantMethod string
		wantPath   string
		wantQuery  string
		checkBody  func(t *testing.T, body map[string]interface{})
	}{
		{
			name: "search logs",
			call: func(c *Client) ([]byte, error) {
				return c.SearchLogs(context.Background(), LogsQueryRequest{Query: "level:error", QueryLanguage: "lucene", Start: start, End: end, Limit: 100})
			},
			wantMethod: http.MethodPost,
			wantPath:   "/api/v1/logs/query",
			checkBody: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "level:error", body["query"])
				assert.Equal(t, "lucene", body["query_language"])
				assert.Equal(t, "2024-01-01T00:00:00Z", body["start"])
				assert.Equal(t, "2024-01-01T01:00:00Z", body["end"])
				assert.Equal(t, float64(100), body["limit"])
			},
		},
		{
			name:       "log fields",
			call:       func(c *Client) ([]byte, error) { return c.LogFields(context.Background()) },
			wantMethod: http.MethodGet,
			wantPath:   "/api/v1/logs/fields",
		},
		{
			name: "instant metrics",
			call: func(c *Client) ([]byte, error) {
				return c.QueryMetrics(context.Background(), MetricsInstantRequest{Query: "up", Time: end})
			},
			wantMethod: http.MethodPost,
			wantPath:   "/api/v1/metrics/query",
			checkBody: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "up", body["query"])
				assert.Equal(t, "2024-01-01T01:00:00Z", body["time"])
			},
		},
		{
			name: "range metrics",
			call: func(c *Client) ([]byte, error) {
				return c.QueryMetricsRange(context.Background(), MetricsRangeRequest{Query: "up", Start: start, End: end, Step: "30s"})
			},
			wantMethod: http.MethodPost,
			wantPath:   "/api/v1/metrics/query_range",
			checkBody: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "30s", body["step"])
			},
		},
		{
			name: "aggregate",
			call: func(c *Client) ([]byte, error) {
				return c.AggregateMetrics(context.Background(), "sum", MetricsFunctionRequest{Query: "http_requests_total", Params: map[string]interface{}{"by": "job"}})
			},
			wantMethod: http.MethodPost,
			wantPath:   "/api/v1/metrics/query/aggregate/sum",
			checkBody: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, map[string]interface{}{"by": "job"}, body["params"])
			},
		},
		{
			name: "rollup",
			call: func(c *Client) ([]byte, error) {
				return c.RollupMetrics(context.Background(), "rate", MetricsFunctionRequest{Query: "x"})
			},
			wantMethod: http.MethodPost,
			wantPath:   "/api/v1/metrics/query/rollup/rate",
		},
		{
			name: "transform",
			call: func(c *Client) ([]byte, error) {
				return c.TransformMetrics(context.Background(), "abs", MetricsFunctionRequest{Query: "x"})
			},
			wantMethod: http.MethodPost,
			wantPath:   "/api/v1/metrics/query/transform/abs",
		},
		{
			name: "label function",
			call: func(c *Client) ([]byte, error) {
				return c.LabelMetrics(context.Background(), "label_set", MetricsFunctionRequest{Query: "x"})
			},
			wantMethod: http.MethodPost,
			wantPath:   "/api/v1/metrics/query/label/label_set",
		},
		{
			name: "labels with filters",
			call: func(c *Client) ([]byte, error) {
				return c.Labels(context.Background(), LabelsRequest{Start: start, End: end, Match: []string{`up{job="a"}`}})
			},
			wantMethod: http.MethodGet,
			wantPath:   "/api/v1/labels",
			wantQuery:  "end=2024-01-01T01%3A00%3A00Z&match%5B%5D=up%7Bjob%3D%22a%22%7D&start=2024-01-01T00%3A00%3A00Z",
		},
		{
			name: "label values escapes name",
			call: func(c *Client) ([]byte, error) {
				return c.LabelValues(context.Background(), "job name", LabelsRequest{})
			},
			wantMethod: http.MethodGet,
			wantPath:   "/api/v1/label/job%20name/values",
		},
		{
			name:       "metric names",
			call:       func(c *Client) ([]byte, error) { return c.MetricNames(context.Background()) },
			wantMethod: http.MethodGet,
			wantPath:   "/api/v1/metrics/names",
		},
		{
			name: "search traces",
			call: func(c *Client) ([]byte, error) {
				return c.SearchTraces(context.Background(), TracesSearchRequest{Service: "checkout", MinDuration: "100ms", Start: start, End: end, Limit: 20})
			},
			wantMethod: http.MethodPost,
			wantPath:   "/api/v1/traces/search",
			checkBody: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "checkout", body["service"])
				assert.Equal(t, "100ms", body["minDuration"])
				assert.NotContains(t, body, "query")
			},
		},
		{
			name:       "get trace",
			call:       func(c *Client) ([]byte, error) { return c.GetTrace(context.Background(), "4bf92f3577b34da6") },
			wantMethod: http.MethodGet,
			wantPath:   "/api/v1/traces/4bf92f3577b34da6",
		},
		{
			name:       "trace services",
			call:       func(c *Client) ([]byte, error) { return c.TraceServices(context.Background()) },
			wantMethod: http.MethodGet,
			wantPath:   "/api/v1/traces/services",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, rec := newTestServer(t, http.StatusOK, `{"status":"success","data":{"result":[]}}`)
			c := newTestClient(t, srv.URL+"/", nil)

			body, err := tt.call(c)
			require.NoError(t, err)
			assert.JSONEq(t, `{"status":"success","data":{"result":[]}}`, string(body))
			assert.Equal(t, tt.wantMethod, rec.Method)
			assert.Equal(t, tt.wantPath, rec.Path)
			assert.Equal(t, tt.wantQuery, rec.Query)
			if tt.checkBody != nil {
				tt.checkBody(t, rec.Body)
			}
		})
	}
}

func TestClient_Errors(t *testing.T) {
	t.Run("non-2xx carries status and body", func(t *testing.T) {
		srv, _ := newTestServer(t, http.StatusBadGateway, `{"status":"error","error":"upstream down"}`)
		c := newTestClient(t, srv.URL, nil)

		_, err := c.SearchLogs(context.Background(), LogsQueryRequest{Query: "*"})
		require.Error(t, err)
		var clientErr *ClientError
		require.True(t, errors.As(err, &clientErr))
		assert.Equal(t, http.StatusBadGateway, clientErr.StatusCode)
		assert.Equal(t, "logs_query", clientErr.Endpoint)
		assert.Contains(t, clientErr.Body, "upstream down")
		assert.Contains(t, err.Error(), "HTTP 502")
	})

	t.Run("invalid JSON on success", func(t *testing.T) {
		srv, _ := newTestServer(t, http.StatusOK, `<html>oops</html>`)
		c := newTestClient(t, srv.URL, nil)

		_, err := c.MetricNames(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "response is not valid JSON")
	})

	t.Run("empty body is treated as an empty object", func(t *testing.T) {
		srv, _ := newTestServer(t, http.StatusOK, ``)
		c := newTestClient(t, srv.URL, nil)

		body, err := c.LogFields(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "{}", string(body))
	})

	t.Run("transport failure", func(t *testing.T) {
		srv, _ := newTestServer(t, http.StatusOK, `{}`)
		c := newTestClient(t, srv.URL, nil)
		srv.Close()

		_, err := c.MetricNames(context.Background())
		require.Error(t, err)
		var clientErr *ClientError
		require.True(t, errors.As(err, &clientErr))
		assert.Equal(t, 0, clientErr.StatusCode)
		assert.NotNil(t, clientErr.Unwrap())
	})

	t.Run("invalid function name never reaches the server", func(t *testing.T) {
		c := newTestClient(t, "http://127.0.0.1:1", nil)
		_, err := c.AggregateMetrics(context.Background(), "sum/../../admin", MetricsFunctionRequest{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid aggregate function name")

		_, err = c.MetricsFunction(context.Background(), FunctionKind("drop"), "sum", MetricsFunctionRequest{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown metrics function kind")
	})

	t.Run("empty identifiers rejected", func(t *testing.T) {
		c := newTestClient(t, "http://127.0.0.1:1", nil)
		_, err := c.GetTrace(context.Background(), " ")
		assert.Error(t, err)
		_, err = c.LabelValues(context.Background(), "", LabelsRequest{})
		assert.Error(t, err)
	})

	t.Run("cancelled context while rate limited", func(t *testing.T) {
		srv, _ := newTestServer(t, http.StatusOK, `{}`)
		c := newTestClient(t, srv.URL, func(cfg *Config) {
			cfg.RateLimit = 0.1
			cfg.RateBurst = 1
		})
		_, err := c.MetricNames(context.Background())
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err = c.MetricNames(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rate limiter wait aborted")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestClient_Health(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		srv, rec := newTestServer(t, http.StatusOK, `{"status":"healthy","version":"2.1.0"}`)
		c := newTestClient(t, srv.URL, nil)

		res, err := c.Health(context.Background())
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, "healthy", res.Status)
		assert.Equal(t, "/api/v1/health", rec.Path)
	})

	t.Run("unhealthy status code", func(t *testing.T) {
		srv, _ := newTestServer(t, http.StatusServiceUnavailable, `{"status":"degraded"}`)
		c := newTestClient(t, srv.URL, nil)

		res, err := c.Health(context.Background())
		require.Error(t, err)
		assert.Nil(t, res)
		var clientErr *ClientError
		require.True(t, errors.As(err, &clientErr))
		assert.Equal(t, http.StatusServiceUnavailable, clientErr.StatusCode)
		assert.Equal(t, "degraded", PayloadStatus([]byte(clientErr.Body)))
	})
}

func TestPayloadStatus(t *testing.T) {
	assert.Equal(t, "ok", PayloadStatus([]byte(`{"status":"ok"}`)))
	assert.Equal(t, "up", PayloadStatus([]byte(`{"data":{"status":"up"}}`)))
	assert.Equal(t, "", PayloadStatus([]byte(`{"status":1}`)))
	assert.Equal(t, "", PayloadStatus([]byte(`not json`)))
}

func TestClientError(t *testing.T) {
	tests := []struct {
		name    string
		err     *ClientError
		wantMsg string
	}{
		{
			name:    "with wrapped error",
			err:     &ClientError{Msg: "test error", Err: errors.New("wrapped error")},
			wantMsg: "mirador client error: test error: wrapped error",
		},
		{
			name:    "without wrapped error",
			err:     &ClientError{Msg: "test error"},
			wantMsg: "mirador client error: test error",
		},
		{
			name:    "with status code",
			err:     &ClientError{Msg: "test error", StatusCode: 401},
			wantMsg: "mirador client error: test error (HTTP 401)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
			assert.Equal(t, tt.err.Err, tt.err.Unwrap())
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, "mirador-grafana-datasource", config.UserAgent)
	assert.Equal(t, 30*time.Second, config.Timeout)
	assert.Equal(t, 10, config.RateBurst)
	assert.Zero(t, config.RateLimit)
}
