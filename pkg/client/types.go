package client

import "time"

// FunctionKind selects one of the metrics function endpoint families.
type FunctionKind string

const (
	FunctionAggregate FunctionKind = "aggregate"
	FunctionRollup    FunctionKind = "rollup"
	FunctionTransform FunctionKind = "transform"
	FunctionLabel     FunctionKind = "label"
)

// LogsQueryRequest is the body of POST /api/v1/logs/query.
type LogsQueryRequest struct {
	Query         string    `json:"query"`
	QueryLanguage string    `json:"query_language,omitempty"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	Limit         int       `json:"limit,omitempty"`
}

// MetricsInstantRequest is the body of POST /api/v1/metrics/query.
type MetricsInstantRequest struct {
	Query string    `json:"query"`
	Time  time.Time `json:"time"`
}

// MetricsRangeRequest is the body of POST /api/v1/metrics/query_range.
type MetricsRangeRequest struct {
	Query string    `json:"query"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Step  string    `json:"step"`
}

// MetricsFunctionRequest is the body of the aggregate, rollup, transform and
// label function endpoints.
type MetricsFunctionRequest struct {
	Query  string                 `json:"query"`
	Start  time.Time              `json:"start"`
	End    time.Time              `json:"end"`
	Step   string                 `json:"step,omitempty"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// LabelsRequest filters label enumeration. Zero times and an empty Match are omitted.
type LabelsRequest struct {
	Start time.Time
	End   time.Time
	Match []string
}

// TracesSearchRequest is the body of POST /api/v1/traces/search.
type TracesSearchRequest struct {
	Query         string    `json:"query,omitempty"`
	QueryLanguage string    `json:"query_language,omitempty"`
	Service       string    `json:"service,omitempty"`
	Operation     string    `json:"operation,omitempty"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	MinDuration   string    `json:"minDuration,omitempty"`
	MaxDuration   string    `json:"maxDuration,omitempty"`
	Limit         int       `json:"limit,omitempty"`
}

// HealthResult is what the health endpoint reported.
type HealthResult struct {
	StatusCode int
	Status     string // payload status field, e.g. "healthy"
	Body       []byte
}
