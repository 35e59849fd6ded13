package constant

const (
	// Query types understood by the datasource
	QueryTypeLogs    = "logs"
	QueryTypeMetrics = "metrics"
	QueryTypeTraces  = "traces"

	// Metrics sub-types
	MetricsQueryInstant     = "instant"
	MetricsQueryRange       = "range"
	MetricsQueryAggregate   = "aggregate"
	MetricsQueryRollup      = "rollup"
	MetricsQueryTransform   = "transform"
	MetricsQueryLabel       = "label"
	MetricsQueryMetricNames = "metric_names"
	MetricsQueryLabelNames  = "label_names"
	MetricsQueryLabelValues = "label_values"

	// Query engines
	LanguageLucene    = "lucene"
	LanguageBleve     = "bleve"
	LanguageMetricsQL = "metricsql"

	// Editor modes
	EditorModeCode    = "code"
	EditorModeBuilder = "builder"

	// Field names used in Grafana DataFrames
	TimeFieldName    = "time"
	ValueFieldName   = "value"
	MessageFieldName = "message"
	LevelFieldName   = "level"
	ServiceFieldName = "service"
	LabelsFieldName  = "labels"

	// Frame names
	LogsFrameName        = "logs"
	TracesFrameName      = "traces"
	SpansFrameName       = "spans"
	PlaceholderFrameName = "placeholder"

	DefaultLogLevel    = "info"
	DefaultLogsLimit   = 1000
	DefaultTracesLimit = 20
)
