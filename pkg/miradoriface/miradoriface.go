// Package miradoriface provides interfaces for the Mirador Core API.
// Handlers depend on these instead of the concrete client so they can be
// exercised with fakes.
package miradoriface

import (
	"context"

	"mirador-grafana-plugin/pkg/client"
)

// LogsAPI searches logs and lists log fields.
type LogsAPI interface {
	SearchLogs(ctx context.Context, req client.LogsQueryRequest) ([]byte, error)
	LogFields(ctx context.Context) ([]byte, error)
}

// MetricsAPI runs metrics queries and enumerates metric names and labels.
type MetricsAPI interface {
	QueryMetrics(ctx context.Context, req client.MetricsInstantRequest) ([]byte, error)
	QueryMetricsRange(ctx context.Context, req client.MetricsRangeRequest) ([]byte, error)
	MetricsFunction(ctx context.Context, kind client.FunctionKind, fn string, req client.MetricsFunctionRequest) ([]byte, error)
	Labels(ctx context.Context, req client.LabelsRequest) ([]byte, error)
	LabelValues(ctx context.Context, name string, req client.LabelsRequest) ([]byte, error)
	MetricNames(ctx context.Context) ([]byte, error)
}

// TracesAPI searches traces and fetches single traces.
type TracesAPI interface {
	SearchTraces(ctx context.Context, req client.TracesSearchRequest) ([]byte, error)
	GetTrace(ctx context.Context, traceID string) ([]byte, error)
	TraceServices(ctx context.Context) ([]byte, error)
}

// API is the full surface the datasource uses.
type API interface {
	LogsAPI
	MetricsAPI
	TracesAPI
	Health(ctx context.Context) (*client.HealthResult, error)
}

var _ API = (*client.Client)(nil)
