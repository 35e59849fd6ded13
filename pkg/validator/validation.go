// Package validator provides validation functions for plugin settings and queries.
// It ensures that configuration parameters and query models are usable before
// any request is sent to Mirador Core.
package validator

import (
	"fmt"
	"net/url"
	"time"

	"mirador-grafana-plugin/pkg/config"
	"mirador-grafana-plugin/pkg/constant"
	"mirador-grafana-plugin/pkg/models"
	"mirador-grafana-plugin/pkg/utils"

	"github.com/prometheus/common/model"
)

// QueryValidationError reports a query model that cannot be executed.
type QueryValidationError struct {
	Field string
	Msg   string
	Err   error // Wrapped error
}

func (e *QueryValidationError) Error() string {
	msg := fmt.Sprintf("invalid query: %s", e.Msg)
	if e.Field != "" {
		msg = fmt.Sprintf("invalid query field %q: %s", e.Field, e.Msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *QueryValidationError) Unwrap() error {
	return e.Err
}

// ValidateSettings validates the datasource settings
func ValidateSettings(settings *config.Settings) error {
	if settings == nil {
		return &config.SettingsError{Msg: "plugin settings cannot be nil"}
	}

	if settings.URL == "" {
		return &config.SettingsError{Msg: "Mirador Core URL cannot be empty"}
	}
	u, err := url.Parse(settings.URL)
	if err != nil {
		return &config.SettingsError{Msg: "Mirador Core URL is not valid", Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &config.SettingsError{Msg: fmt.Sprintf("Mirador Core URL must use http or https, got %q", u.Scheme)}
	}
	if u.Host == "" {
		return &config.SettingsError{Msg: "Mirador Core URL must include a host"}
	}

	if settings.TimeoutSeconds <= 0 {
		return &config.SettingsError{Msg: "timeout must be a positive number of seconds"}
	}
	if settings.MaxConcurrentQueries <= 0 {
		return &config.SettingsError{Msg: "maxConcurrentQueries must be a positive number"}
	}
	if settings.RateLimit < 0 {
		return &config.SettingsError{Msg: "rateLimit cannot be negative"}
	}

	switch settings.DefaultLogsLanguage {
	case constant.LanguageLucene, constant.LanguageBleve:
	default:
		return &config.SettingsError{Msg: fmt.Sprintf("unsupported default logs language %q", settings.DefaultLogsLanguage)}
	}

	return nil
}

// ValidateQuery checks a parsed query model after its query text has been
// resolved from the builder or template variables.
func ValidateQuery(q *models.QueryModel) error {
	if q == nil {
		return &QueryValidationError{Msg: "query model cannot be nil"}
	}
	if q.Limit < 0 {
		return &QueryValidationError{Field: "limit", Msg: "cannot be negative"}
	}
	if q.Step != "" {
		if _, err := utils.ParseStep(q.Step); err != nil {
			return &QueryValidationError{Field: "step", Msg: fmt.Sprintf("%q is not a duration", q.Step), Err: err}
		}
	}

	switch q.QueryType {
	case constant.QueryTypeLogs:
		return validateLogsQuery(q)
	case constant.QueryTypeMetrics:
		return validateMetricsQuery(q)
	case constant.QueryTypeTraces:
		return validateTracesQuery(q)
	default:
		return &QueryValidationError{Field: "queryType", Msg: fmt.Sprintf("unsupported query type %q", q.QueryType)}
	}
}

func validateTextLanguage(lang string) error {
	switch lang {
	case "", constant.LanguageLucene, constant.LanguageBleve:
		return nil
	}
	return &QueryValidationError{Field: "queryLanguage", Msg: fmt.Sprintf("unsupported language %q", lang)}
}

func validateLogsQuery(q *models.QueryModel) error {
	if err := validateTextLanguage(q.QueryLanguage); err != nil {
		return err
	}
	if q.QueryText == "" {
		return &QueryValidationError{Field: "query", Msg: "logs query cannot be empty"}
	}
	return nil
}

func validateMetricsQuery(q *models.QueryModel) error {
	if q.QueryLanguage != "" && q.QueryLanguage != constant.LanguageMetricsQL {
		return &QueryValidationError{Field: "queryLanguage", Msg: fmt.Sprintf("unsupported metrics language %q", q.QueryLanguage)}
	}

	switch q.MetricsQueryType {
	case constant.MetricsQueryInstant, constant.MetricsQueryRange:
	case constant.MetricsQueryAggregate, constant.MetricsQueryRollup, constant.MetricsQueryTransform, constant.MetricsQueryLabel:
		if q.MetricsFunction == "" {
			return &QueryValidationError{Field: "metricsFunction", Msg: fmt.Sprintf("a function is required for %s queries", q.MetricsQueryType)}
		}
	case constant.MetricsQueryMetricNames, constant.MetricsQueryLabelNames:
		return nil
	case constant.MetricsQueryLabelValues:
		if q.LabelName == "" {
			return &QueryValidationError{Field: "labelName", Msg: "a label name is required for label_values queries"}
		}
		return nil
	default:
		return &QueryValidationError{Field: "metricsQueryType", Msg: fmt.Sprintf("unsupported metrics query type %q", q.MetricsQueryType)}
	}

	if q.QueryText == "" {
		return &QueryValidationError{Field: "query", Msg: "metrics query cannot be empty"}
	}
	return nil
}

func validateTracesQuery(q *models.QueryModel) error {
	if q.TraceID != "" {
		return nil
	}
	if err := validateTextLanguage(q.QueryLanguage); err != nil {
		return err
	}

	minD, err := parseTraceDuration("minDuration", q.MinDuration)
	if err != nil {
		return err
	}
	maxD, err := parseTraceDuration("maxDuration", q.MaxDuration)
	if err != nil {
		return err
	}
	if minD > 0 && maxD > 0 && minD > maxD {
		return &QueryValidationError{Field: "minDuration", Msg: "cannot be greater than maxDuration"}
	}
	return nil
}

func parseTraceDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := model.ParseDuration(s)
	if err != nil {
		return 0, &QueryValidationError{Field: field, Msg: fmt.Sprintf("%q is not a duration", s), Err: err}
	}
	return time.Duration(d), nil
}
