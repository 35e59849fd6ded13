// Package handler processes incoming query requests from Grafana and executes
// them against the Mirador Core API. It handles query parsing, validation,
// execution, and response formatting. A failing query is answered with a
// placeholder frame instead of an error so the rest of the panel still renders.
package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mirador-grafana-plugin/pkg/client"
	"mirador-grafana-plugin/pkg/config"
	"mirador-grafana-plugin/pkg/constant"
	"mirador-grafana-plugin/pkg/formatter"
	"mirador-grafana-plugin/pkg/metrics"
	"mirador-grafana-plugin/pkg/miradoriface"
	"mirador-grafana-plugin/pkg/models"
	"mirador-grafana-plugin/pkg/querybuilder"
	"mirador-grafana-plugin/pkg/utils"
	"mirador-grafana-plugin/pkg/validator"

	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/grafana/grafana-plugin-sdk-go/backend/log"
	"github.com/grafana/grafana-plugin-sdk-go/data"
)

// QueryError represents an error while executing a single query target.
type QueryError struct {
	RefID string
	Msg   string
	Err   error // Wrapped error
}

func (e *QueryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("query %s: %s: %v", e.RefID, e.Msg, e.Err)
	}
	return fmt.Sprintf("query %s: %s", e.RefID, e.Msg)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

var functionKinds = map[string]client.FunctionKind{
	constant.MetricsQueryAggregate: client.FunctionAggregate,
	constant.MetricsQueryRollup:    client.FunctionRollup,
	constant.MetricsQueryTransform: client.FunctionTransform,
	constant.MetricsQueryLabel:     client.FunctionLabel,
}

// NormalizeQuery joins a multi-line query into one line, dropping blank lines
// and lines that are entirely a # comment.
func NormalizeQuery(query string) string {
	lines := strings.Split(strings.ReplaceAll(query, "\r\n", "\n"), "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, " ")
}

// HandleQuery processes a single Grafana data query.
func HandleQuery(ctx context.Context, api miradoriface.API, settings *config.Settings, query backend.DataQuery) backend.DataResponse {
	logger := log.DefaultLogger.FromContext(ctx)
	start := time.Now()

	qm, frames, err := executeQuery(ctx, api, settings, query)
	queryType := "unknown"
	if qm != nil {
		queryType = qm.QueryType
	}
	metrics.RecordQuery(queryType, time.Since(start), err)

	if err != nil {
		logger.Error("Query failed, returning placeholder frame", "refId", query.RefID, "queryType", queryType, "error", err)
		return backend.DataResponse{Frames: data.Frames{formatter.Placeholder(query, err)}}
	}

	for _, frame := range frames {
		if frame.Meta == nil {
			frame.Meta = &data.FrameMeta{}
		}
		frame.Meta.ExecutedQueryString = qm.QueryText
	}
	logger.Debug("Query completed", "refId", query.RefID, "queryType", queryType, "frames", len(frames), "duration", time.Since(start))
	return backend.DataResponse{Frames: frames}
}

// executeQuery returns the parsed model, or nil when the query JSON could not be parsed.
func executeQuery(ctx context.Context, api miradoriface.API, settings *config.Settings, query backend.DataQuery) (*models.QueryModel, data.Frames, error) {
	qm, err := models.ParseQuery(query)
	if err != nil {
		return nil, nil, &QueryError{RefID: query.RefID, Msg: "invalid query", Err: err}
	}
	if api == nil || settings == nil {
		return qm, nil, &QueryError{RefID: query.RefID, Msg: "Mirador Core client is not initialized"}
	}

	if qm.UsesBuilder() {
		built, err := querybuilder.BuildQuery(qm, settings.DefaultLogsLanguage)
		if err != nil {
			return qm, nil, &QueryError{RefID: query.RefID, Msg: "could not build query", Err: err}
		}
		qm.QueryText = built
	}
	qm.QueryText = NormalizeQuery(qm.QueryText)

	// A step such as $__interval resolves against the step derived from the
	// panel, so it must be substituted before it can be validated.
	if utils.HasTemplateVariables(qm.Step) {
		qm.Step = utils.ApplyTemplateVariables(qm.Step, query.TimeRange, utils.StepOrDefault("", query))
	}

	if err := validator.ValidateQuery(qm); err != nil {
		return qm, nil, &QueryError{RefID: query.RefID, Msg: "query validation failed", Err: err}
	}

	step := utils.StepOrDefault(qm.Step, query)
	qm.QueryText = utils.ApplyTemplateVariables(qm.QueryText, query.TimeRange, step)

	var frames data.Frames
	switch qm.QueryType {
	case constant.QueryTypeLogs:
		frames, err = runLogsQuery(ctx, api, settings, qm, query)
	case constant.QueryTypeMetrics:
		frames, err = runMetricsQuery(ctx, api, qm, query, step)
	case constant.QueryTypeTraces:
		frames, err = runTracesQuery(ctx, api, qm, query)
	}
	if err != nil {
		return qm, nil, &QueryError{RefID: query.RefID, Msg: fmt.Sprintf("%s query failed", qm.QueryType), Err: err}
	}
	return qm, frames, nil
}

func runLogsQuery(ctx context.Context, api miradoriface.LogsAPI, settings *config.Settings, qm *models.QueryModel, query backend.DataQuery) (data.Frames, error) {
	lang := qm.QueryLanguage
	if lang == "" {
		lang = settings.DefaultLogsLanguage
	}
	limit := qm.Limit
	if limit == 0 {
		limit = constant.DefaultLogsLimit
	}

	body, err := api.SearchLogs(ctx, client.LogsQueryRequest{
		Query:         qm.QueryText,
		QueryLanguage: lang,
		Start:         query.TimeRange.From,
		End:           query.TimeRange.To,
		Limit:         limit,
	})
	if err != nil {
		return nil, err
	}
	return formatter.FormatLogs(body, query)
}

func runMetricsQuery(ctx context.Context, api miradoriface.MetricsAPI, qm *models.QueryModel, query backend.DataQuery, step time.Duration) (data.Frames, error) {
	var (
		body []byte
		err  error
	)
	from, to := query.TimeRange.From, query.TimeRange.To

	switch qm.MetricsQueryType {
	case constant.MetricsQueryInstant:
		body, err = api.QueryMetrics(ctx, client.MetricsInstantRequest{Query: qm.QueryText, Time: to})
	case constant.MetricsQueryRange:
		body, err = api.QueryMetricsRange(ctx, client.MetricsRangeRequest{
			Query: qm.QueryText,
			Start: from,
			End:   to,
			Step:  utils.FormatStep(step),
		})
	case constant.MetricsQueryAggregate, constant.MetricsQueryRollup, constant.MetricsQueryTransform, constant.MetricsQueryLabel:
		body, err = api.MetricsFunction(ctx, functionKinds[qm.MetricsQueryType], qm.MetricsFunction, client.MetricsFunctionRequest{
			Query:  qm.QueryText,
			Start:  from,
			End:    to,
			Step:   utils.FormatStep(step),
			Params: qm.FunctionParams,
		})
	case constant.MetricsQueryMetricNames:
		if body, err = api.MetricNames(ctx); err != nil {
			return nil, err
		}
		return formatter.FormatStringList(body, "metric", query)
	case constant.MetricsQueryLabelNames:
		if body, err = api.Labels(ctx, labelsRequest(qm, from, to)); err != nil {
			return nil, err
		}
		return formatter.FormatStringList(body, "label", query)
	case constant.MetricsQueryLabelValues:
		if body, err = api.LabelValues(ctx, qm.LabelName, labelsRequest(qm, from, to)); err != nil {
			return nil, err
		}
		return formatter.FormatStringList(body, qm.LabelName, query)
	default:
		return nil, fmt.Errorf("unsupported metrics query type %q", qm.MetricsQueryType)
	}
	if err != nil {
		return nil, err
	}
	return formatter.FormatMetrics(body, query)
}

func labelsRequest(qm *models.QueryModel, from, to time.Time) client.LabelsRequest {
	req := client.LabelsRequest{Start: from, End: to}
	if qm.QueryText != "" {
		req.Match = []string{qm.QueryText}
	}
	return req
}

func runTracesQuery(ctx context.Context, api miradoriface.TracesAPI, qm *models.QueryModel, query backend.DataQuery) (data.Frames, error) {
	if traceID := strings.TrimSpace(qm.TraceID); traceID != "" {
		body, err := api.GetTrace(ctx, traceID)
		if err != nil {
			return nil, err
		}
		return formatter.FormatTrace(body, traceID, query)
	}

	limit := qm.Limit
	if limit == 0 {
		limit = constant.DefaultTracesLimit
	}
	body, err := api.SearchTraces(ctx, client.TracesSearchRequest{
		Query:         qm.QueryText,
		QueryLanguage: qm.QueryLanguage,
		Service:       qm.Service,
		Operation:     qm.Operation,
		Start:         query.TimeRange.From,
		End:           query.TimeRange.To,
		MinDuration:   qm.MinDuration,
		MaxDuration:   qm.MaxDuration,
		Limit:         limit,
	})
	if err != nil {
		return nil, err
	}
	return formatter.FormatTraces(body, query)
}
