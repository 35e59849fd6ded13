package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"mirador-grafana-plugin/pkg/constant"

	"github.com/grafana/grafana-plugin-sdk-go/backend"
)

// Condition is one row of the visual query builder.
type Condition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
	Logic    string `json:"logic,omitempty"` // AND (default) or OR, joins this condition to the previous one
}

// QueryModel represents the structure of a single query sent from Grafana.
// This struct will be unmarshaled from the JSON data in backend.DataQuery.
type QueryModel struct {
	QueryType        string                 `json:"queryType"`
	QueryText        string                 `json:"query"`
	QueryLanguage    string                 `json:"queryLanguage"`
	MetricsQueryType string                 `json:"metricsQueryType"`
	MetricsFunction  string                 `json:"metricsFunction"`
	FunctionParams   map[string]interface{} `json:"functionParams,omitempty"`
	LabelName        string                 `json:"labelName"`
	Step             string                 `json:"step"`
	Limit            int                    `json:"limit"`
	EditorMode       string                 `json:"editorMode"`
	Conditions       []Condition            `json:"conditions,omitempty"`
	MetricName       string                 `json:"metricName"`

	// Traces
	TraceID     string `json:"traceId"`
	Service     string `json:"service"`
	Operation   string `json:"operation"`
	MinDuration string `json:"minDuration"`
	MaxDuration string `json:"maxDuration"`
}

// ParseQuery unmarshals the query JSON and fills in defaults that depend on the
// host query, such as the query type Grafana sent alongside the JSON model.
func ParseQuery(query backend.DataQuery) (*QueryModel, error) {
	qm := &QueryModel{}
	if len(query.JSON) > 0 {
		if err := json.Unmarshal(query.JSON, qm); err != nil {
			return nil, fmt.Errorf("error parsing query JSON: %w", err)
		}
	}

	qm.QueryType = strings.ToLower(strings.TrimSpace(qm.QueryType))
	if qm.QueryType == "" {
		qm.QueryType = strings.ToLower(strings.TrimSpace(query.QueryType))
	}
	if qm.QueryType == "" {
		qm.QueryType = constant.QueryTypeMetrics
	}

	qm.MetricsQueryType = strings.ToLower(strings.TrimSpace(qm.MetricsQueryType))
	if qm.QueryType == constant.QueryTypeMetrics && qm.MetricsQueryType == "" {
		qm.MetricsQueryType = constant.MetricsQueryRange
	}

	qm.QueryLanguage = strings.ToLower(strings.TrimSpace(qm.QueryLanguage))
	if qm.EditorMode == "" {
		qm.EditorMode = constant.EditorModeCode
	}

	return qm, nil
}

// UsesBuilder reports whether the query text should be produced from the builder conditions.
func (q *QueryModel) UsesBuilder() bool {
	return q.EditorMode == constant.EditorModeBuilder && len(q.Conditions) > 0
}
