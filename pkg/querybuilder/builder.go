// Package querybuilder turns the visual query builder's filter conditions into
// query text for the engines Mirador Core accepts.
package querybuilder

import (
	"fmt"
	"regexp"
	"strings"

	"mirador-grafana-plugin/pkg/constant"
	"mirador-grafana-plugin/pkg/models"
)

// Operators accepted in builder conditions.
const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpContains    = "contains"
	OpNotContains = "not_contains"
	OpStartsWith  = "starts_with"
	OpEndsWith    = "ends_with"
	OpRegex       = "regex"
	OpNotRegex    = "not_regex"
	OpExists      = "exists"
	OpGreater     = "gt"
	OpGreaterEq   = "gte"
	OpLess        = "lt"
	OpLessEq      = "lte"
)

// BuildError reports a condition that cannot be expressed in the target engine.
type BuildError struct {
	Msg string
	Err error // Wrapped error
}

func (e *BuildError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("query builder error: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("query builder error: %s", e.Msg)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

type renderFunc func(field, value string) string

var luceneOperators = map[string]renderFunc{
	OpEquals:      func(f, v string) string { return f + `:"` + escapeQuoted(v) + `"` },
	OpNotEquals:   func(f, v string) string { return "NOT " + f + `:"` + escapeQuoted(v) + `"` },
	OpContains:    func(f, v string) string { return f + ":*" + escapeTerm(v) + "*" },
	OpNotContains: func(f, v string) string { return "NOT " + f + ":*" + escapeTerm(v) + "*" },
	OpStartsWith:  func(f, v string) string { return f + ":" + escapeTerm(v) + "*" },
	OpEndsWith:    func(f, v string) string { return f + ":*" + escapeTerm(v) },
	OpRegex:       func(f, v string) string { return f + ":/" + escapeRegex(v) + "/" },
	OpNotRegex:    func(f, v string) string { return "NOT " + f + ":/" + escapeRegex(v) + "/" },
	OpExists:      func(f, _ string) string { return "_exists_:" + f },
	OpGreater:     func(f, v string) string { return f + ":>" + escapeTerm(v) },
	OpGreaterEq:   func(f, v string) string { return f + ":>=" + escapeTerm(v) },
	OpLess:        func(f, v string) string { return f + ":<" + escapeTerm(v) },
	OpLessEq:      func(f, v string) string { return f + ":<=" + escapeTerm(v) },
}

// Bleve's query string syntax has no boolean keywords; "+" marks a required
// clause and "-" an excluded one.
var bleveOperators = map[string]renderFunc{
	OpEquals:      func(f, v string) string { return f + `:"` + escapeQuoted(v) + `"` },
	OpNotEquals:   func(f, v string) string { return "-" + f + `:"` + escapeQuoted(v) + `"` },
	OpContains:    func(f, v string) string { return f + ":*" + escapeTerm(v) + "*" },
	OpNotContains: func(f, v string) string { return "-" + f + ":*" + escapeTerm(v) + "*" },
	OpStartsWith:  func(f, v string) string { return f + ":" + escapeTerm(v) + "*" },
	OpEndsWith:    func(f, v string) string { return f + ":*" + escapeTerm(v) },
	OpRegex:       func(f, v string) string { return f + ":/" + escapeRegex(v) + "/" },
	OpNotRegex:    func(f, v string) string { return "-" + f + ":/" + escapeRegex(v) + "/" },
	OpExists:      func(f, _ string) string { return f + ":*" },
	OpGreater:     func(f, v string) string { return f + ":>" + escapeTerm(v) },
	OpGreaterEq:   func(f, v string) string { return f + ":>=" + escapeTerm(v) },
	OpLess:        func(f, v string) string { return f + ":<" + escapeTerm(v) },
	OpLessEq:      func(f, v string) string { return f + ":<=" + escapeTerm(v) },
}

var metricsOperators = map[string]renderFunc{
	OpEquals:     func(f, v string) string { return f + `="` + escapeQuoted(v) + `"` },
	OpNotEquals:  func(f, v string) string { return f + `!="` + escapeQuoted(v) + `"` },
	OpRegex:      func(f, v string) string { return f + `=~"` + escapeQuoted(v) + `"` },
	OpNotRegex:   func(f, v string) string { return f + `!~"` + escapeQuoted(v) + `"` },
	OpContains:   func(f, v string) string { return f + `=~".*` + escapeQuoted(regexp.QuoteMeta(v)) + `.*"` },
	OpStartsWith: func(f, v string) string { return f + `=~"` + escapeQuoted(regexp.QuoteMeta(v)) + `.*"` },
	OpEndsWith:   func(f, v string) string { return f + `=~".*` + escapeQuoted(regexp.QuoteMeta(v)) + `"` },
}

// Build renders conditions as a full-text query for the given engine
// (lucene or bleve). An empty language means lucene.
func Build(language string, conditions []models.Condition) (string, error) {
	switch strings.ToLower(language) {
	case "", constant.LanguageLucene:
		return buildText(luceneOperators, conditions, false)
	case constant.LanguageBleve:
		return buildText(bleveOperators, conditions, true)
	default:
		return "", &BuildError{Msg: fmt.Sprintf("unsupported query language %q", language)}
	}
}

func buildText(ops map[string]renderFunc, conditions []models.Condition, bleve bool) (string, error) {
	var b strings.Builder
	for _, c := range conditions {
		field := strings.TrimSpace(c.Field)
		if field == "" {
			continue
		}
		render, ok := ops[strings.ToLower(c.Operator)]
		if !ok {
			return "", &BuildError{Msg: fmt.Sprintf("unsupported operator %q for field %q", c.Operator, field)}
		}
		clause := render(field, c.Value)
		isOr := strings.EqualFold(c.Logic, "OR")

		if bleve {
			// Required unless OR'ed; exclusions already carry their own prefix.
			if !isOr && !strings.HasPrefix(clause, "-") {
				clause = "+" + clause
			}
			if b.Len() > 0 {
				b.WriteString(" ")
			}
			b.WriteString(clause)
			continue
		}

		if b.Len() > 0 {
			if isOr {
				b.WriteString(" OR ")
			} else {
				b.WriteString(" AND ")
			}
		}
		b.WriteString(clause)
	}
	return b.String(), nil
}

// BuildMetricsSelector renders conditions as a MetricsQL series selector,
// e.g. http_requests_total{job="api",code=~"5.*"}.
// MetricsQL selectors have no OR between matchers, so Logic is ignored.
func BuildMetricsSelector(metric string, conditions []models.Condition) (string, error) {
	var matchers []string
	for _, c := range conditions {
		field := strings.TrimSpace(c.Field)
		if field == "" {
			continue
		}
		render, ok := metricsOperators[strings.ToLower(c.Operator)]
		if !ok {
			return "", &BuildError{Msg: fmt.Sprintf("unsupported operator %q for label %q", c.Operator, field)}
		}
		matchers = append(matchers, render(field, c.Value))
	}

	metric = strings.TrimSpace(metric)
	if metric == "" && len(matchers) == 0 {
		return "", &BuildError{Msg: "a metric name or at least one label matcher is required"}
	}
	if len(matchers) == 0 {
		return metric, nil
	}
	return metric + "{" + strings.Join(matchers, ",") + "}", nil
}

// BuildQuery picks the builder for the query type and language of q.
func BuildQuery(q *models.QueryModel, defaultLanguage string) (string, error) {
	if q.QueryType == constant.QueryTypeMetrics {
		return BuildMetricsSelector(q.MetricName, q.Conditions)
	}
	lang := q.QueryLanguage
	if lang == "" {
		lang = defaultLanguage
	}
	return Build(lang, q.Conditions)
}

var termReplacer = strings.NewReplacer(
	`\`, `\\`, `+`, `\+`, `-`, `\-`, `&`, `\&`, `|`, `\|`, `!`, `\!`,
	`(`, `\(`, `)`, `\)`, `{`, `\{`, `}`, `\}`, `[`, `\[`, `]`, `\]`,
	`^`, `\^`, `"`, `\"`, `~`, `\~`, `*`, `\*`, `?`, `\?`, `:`, `\:`,
	`/`, `\/`, ` `, `\ `,
)

func escapeTerm(v string) string {
	return termReplacer.Replace(v)
}

var quotedReplacer = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func escapeQuoted(v string) string {
	return quotedReplacer.Replace(v)
}

func escapeRegex(v string) string {
	return strings.ReplaceAll(v, "/", `\/`)
}
