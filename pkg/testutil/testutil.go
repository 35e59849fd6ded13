package testutil

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"mirador-grafana-plugin/pkg/client"

	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/grafana/grafana-plugin-sdk-go/data"
	"github.com/stretchr/testify/require"
)

// MockTimeNow returns a fixed time for testing
func MockTimeNow() time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
}

// CreateTestQuery creates a test query from the given query model fields.
// The time range is the hour ending at MockTimeNow.
func CreateTestQuery(t *testing.T, refID string, model map[string]interface{}) backend.DataQuery {
	t.Helper()

	jsonBytes, err := json.Marshal(model)
	require.NoError(t, err)

	return backend.DataQuery{
		RefID:         refID,
		JSON:          jsonBytes,
		MaxDataPoints: 1000,
		Interval:      15 * time.Second,
		TimeRange: backend.TimeRange{
			From: MockTimeNow().Add(-1 * time.Hour),
			To:   MockTimeNow(),
		},
	}
}

// CreateTestSettings creates test datasource settings pointing at url.
func CreateTestSettings(t *testing.T, url string) *backend.DataSourceInstanceSettings {
	t.Helper()
	return &backend.DataSourceInstanceSettings{
		URL:      url,
		JSONData: []byte(`{"tenantId": "test-tenant", "timeout": 5}`),
		DecryptedSecureJSONData: map[string]string{
			"bearerToken": "test-token",
		},
	}
}

// AssertFrameFields checks if a data frame has the expected fields
func AssertFrameFields(t *testing.T, frame *data.Frame, expectedFields []string) {
	t.Helper()

	require.Equal(t, len(expectedFields), len(frame.Fields), "number of fields")
	for i, field := range frame.Fields {
		require.Equal(t, expectedFields[i], field.Name, "field name")
	}
}

// CreateTestPluginContext creates a test plugin context
func CreateTestPluginContext(t *testing.T, settings *backend.DataSourceInstanceSettings) backend.PluginContext {
	t.Helper()
	return backend.PluginContext{
		DataSourceInstanceSettings: settings,
	}
}

// Call records one invocation of FakeAPI.
type Call struct {
	Method  string
	Name    string // function name, label name or trace ID when the method takes one
	Kind    client.FunctionKind
	Request interface{}
}

// FakeAPI is an in-memory Mirador Core API. Responses maps a method name
// (e.g. "SearchLogs") to the body it returns and Errors to the error.
type FakeAPI struct {
	Responses map[string]string
	Errors    map[string]error

	mu    sync.Mutex
	calls []Call
}

// Calls returns the recorded calls in order.
func (f *FakeAPI) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// LastCall returns the most recent call, or the zero Call.
func (f *FakeAPI) LastCall() Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return Call{}
	}
	return f.calls[len(f.calls)-1]
}

func (f *FakeAPI) answer(c Call) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()

	if err := f.Errors[c.Method]; err != nil {
		return nil, err
	}
	body, ok := f.Responses[c.Method]
	if !ok {
		body = "{}"
	}
	return []byte(body), nil
}

func (f *FakeAPI) SearchLogs(_ context.Context, req client.LogsQueryRequest) ([]byte, error) {
	return f.answer(Call{Method: "SearchLogs", Request: req})
}

func (f *FakeAPI) LogFields(_ context.Context) ([]byte, error) {
	return f.answer(Call{Method: "LogFields"})
}

func (f *FakeAPI) QueryMetrics(_ context.Context, req client.MetricsInstantRequest) ([]byte, error) {
	return f.answer(Call{Method: "QueryMetrics", Request: req})
}

func (f *FakeAPI) QueryMetricsRange(_ context.Context, req client.MetricsRangeRequest) ([]byte, error) {
	return f.answer(Call{Method: "QueryMetricsRange", Request: req})
}

func (f *FakeAPI) MetricsFunction(_ context.Context, kind client.FunctionKind, fn string, req client.MetricsFunctionRequest) ([]byte, error) {
	return f.answer(Call{Method: "MetricsFunction", Kind: kind, Name: fn, Request: req})
}

func (f *FakeAPI) Labels(_ context.Context, req client.LabelsRequest) ([]byte, error) {
	return f.answer(Call{Method: "Labels", Request: req})
}

func (f *FakeAPI) LabelValues(_ context.Context, name string, req client.LabelsRequest) ([]byte, error) {
	return f.answer(Call{Method: "LabelValues", Name: name, Request: req})
}

func (f *FakeAPI) MetricNames(_ context.Context) ([]byte, error) {
	return f.answer(Call{Method: "MetricNames"})
}

func (f *FakeAPI) SearchTraces(_ context.Context, req client.TracesSearchRequest) ([]byte, error) {
	return f.answer(Call{Method: "SearchTraces", Request: req})
}

func (f *FakeAPI) GetTrace(_ context.Context, traceID string) ([]byte, error) {
	return f.answer(Call{Method: "GetTrace", Name: traceID})
}

func (f *FakeAPI) TraceServices(_ context.Context) ([]byte, error) {
	return f.answer(Call{Method: "TraceServices"})
}

func (f *FakeAPI) Health(_ context.Context) (*client.HealthResult, error) {
	body, err := f.answer(Call{Method: "Health"})
	if err != nil {
		return nil, err
	}
	return &client.HealthResult{StatusCode: 200, Status: client.PayloadStatus(body), Body: body}, nil
}
