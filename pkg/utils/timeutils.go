// Package utils provides utility functions for the Mirador Core Grafana plugin
package utils

import (
	"regexp"
	"strconv"
	"time"

	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/prometheus/common/model"
)

const (
	minStep = time.Second
	// Grafana's default when a panel does not send maxDataPoints.
	defaultMaxDataPoints = 1000
)

// Longest names first so $__interval_ms is not consumed by $__interval.
var templateVariableRegex = regexp.MustCompile(`\$__(fromISOString|toISOString|interval_ms|interval|range_ms|range_s|range|from|to)\b`)

// ApplyTemplateVariables replaces Grafana's global time variables in a query string.
func ApplyTemplateVariables(query string, timeRange backend.TimeRange, step time.Duration) string {
	if query == "" {
		return query
	}
	rng := timeRange.To.Sub(timeRange.From)

	return templateVariableRegex.ReplaceAllStringFunc(query, func(match string) string {
		switch match[3:] {
		case "from":
			return strconv.FormatInt(timeRange.From.UnixMilli(), 10)
		case "to":
			return strconv.FormatInt(timeRange.To.UnixMilli(), 10)
		case "fromISOString":
			return timeRange.From.UTC().Format(time.RFC3339)
		case "toISOString":
			return timeRange.To.UTC().Format(time.RFC3339)
		case "interval":
			return FormatStep(step)
		case "interval_ms":
			return strconv.FormatInt(step.Milliseconds(), 10)
		case "range":
			return strconv.FormatInt(int64(rng.Seconds()), 10) + "s"
		case "range_s":
			return strconv.FormatInt(int64(rng.Seconds()), 10)
		case "range_ms":
			return strconv.FormatInt(rng.Milliseconds(), 10)
		}
		return match
	})
}

// HasTemplateVariables checks if a query contains Grafana time template variables
func HasTemplateVariables(query string) bool {
	return templateVariableRegex.MatchString(query)
}

// CalculateStep picks the resolution of a range query. An explicit step wins;
// otherwise the step is the larger of the host interval and range/maxDataPoints.
func CalculateStep(explicit string, query backend.DataQuery) (time.Duration, error) {
	if explicit != "" {
		d, err := ParseStep(explicit)
		if err != nil {
			return 0, err
		}
		if d < minStep {
			return minStep, nil
		}
		return d, nil
	}

	rng := query.TimeRange.To.Sub(query.TimeRange.From)
	if rng <= 0 {
		return minStep, nil
	}

	maxPoints := query.MaxDataPoints
	if maxPoints <= 0 {
		maxPoints = defaultMaxDataPoints
	}
	step := time.Duration(int64(rng) / maxPoints)
	if query.Interval > step {
		step = query.Interval
	}
	if step < minStep {
		step = minStep
	}
	return step.Truncate(time.Second), nil
}

// defaultStepForRange calculates a step from the range alone, used when an
// explicit step cannot be parsed.
func defaultStepForRange(timeRange backend.TimeRange) time.Duration {
	duration := timeRange.To.Sub(timeRange.From)

	switch {
	case duration <= time.Hour:
		return 15 * time.Second
	case duration <= 6*time.Hour:
		return time.Minute
	case duration <= 24*time.Hour:
		return 5 * time.Minute
	case duration <= 7*24*time.Hour:
		return time.Hour
	default:
		return 24 * time.Hour
	}
}

// StepOrDefault returns the calculated step, falling back to a range based table
// when the step cannot be derived.
func StepOrDefault(explicit string, query backend.DataQuery) time.Duration {
	step, err := CalculateStep(explicit, query)
	if err != nil || step <= 0 {
		return defaultStepForRange(query.TimeRange)
	}
	return step
}

// ParseStep accepts Prometheus durations ("30s", "1m30s") and bare seconds ("30").
func ParseStep(s string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := model.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	return time.Duration(d), nil
}

// FormatStep renders a step the way Prometheus-compatible engines expect it.
func FormatStep(step time.Duration) string {
	if step <= 0 {
		step = minStep
	}
	return model.Duration(step).String()
}
