package utils

import (
	"testing"
	"time"

	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTimeRange() backend.TimeRange {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return backend.TimeRange{From: from, To: from.Add(time.Hour)}
}

func TestApplyTemplateVariables(t *testing.T) {
	tr := testTimeRange()

	tests := []struct {
		name     string
		query    string
		step     time.Duration
		expected string
	}{
		{
			name:     "no variables",
			query:    "rate(http_requests_total[5m])",
			step:     time.Minute,
			expected: "rate(http_requests_total[5m])",
		},
		{
			name:     "from and to",
			query:    "timestamp:[$__from TO $__to]",
			expected: "timestamp:[1704067200000 TO 1704070800000]",
		},
		{
			name:     "iso strings",
			query:    "@timestamp:[$__fromISOString TO $__toISOString]",
			expected: "@timestamp:[2024-01-01T00:00:00Z TO 2024-01-01T01:00:00Z]",
		},
		{
			name:     "interval and interval_ms",
			query:    "rate(x[$__interval]) / $__interval_ms",
			step:     90 * time.Second,
			expected: "rate(x[1m30s]) / 90000",
		},
		{
			name:     "range variants",
			query:    "increase(x[$__range]) $__range_s $__range_ms",
			expected: "increase(x[3600s]) 3600 3600000",
		},
		{
			name:     "empty query",
			query:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ApplyTemplateVariables(tt.query, tr, tt.step))
		})
	}
}

func TestHasTemplateVariables(t *testing.T) {
	assert.True(t, HasTemplateVariables("x[$__interval]"))
	assert.True(t, HasTemplateVariables("$__from"))
	assert.False(t, HasTemplateVariables("up"))
	assert.False(t, HasTemplateVariables("$service"))
}

func TestCalculateStep(t *testing.T) {
	tr := testTimeRange()

	tests := []struct {
		name     string
		explicit string
		query    backend.DataQuery
		expected time.Duration
		wantErr  bool
	}{
		{
			name:     "explicit prometheus duration",
			explicit: "1m",
			query:    backend.DataQuery{TimeRange: tr},
			expected: time.Minute,
		},
		{
			name:     "explicit seconds",
			explicit: "30",
			query:    backend.DataQuery{TimeRange: tr},
			expected: 30 * time.Second,
		},
		{
			name:     "explicit below minimum",
			explicit: "0",
			query:    backend.DataQuery{TimeRange: tr},
			expected: time.Second,
		},
		{
			name:     "invalid explicit",
			explicit: "soon",
			query:    backend.DataQuery{TimeRange: tr},
			wantErr:  true,
		},
		{
			name:     "from max data points",
			query:    backend.DataQuery{TimeRange: tr, MaxDataPoints: 120},
			expected: 30 * time.Second,
		},
		{
			name:     "interval wins when larger",
			query:    backend.DataQuery{TimeRange: tr, MaxDataPoints: 1000, Interval: 2 * time.Minute},
			expected: 2 * time.Minute,
		},
		{
			name:     "default max data points",
			query:    backend.DataQuery{TimeRange: tr},
			expected: 3 * time.Second,
		},
		{
			name:     "empty range",
			query:    backend.DataQuery{},
			expected: time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step, err := CalculateStep(tt.explicit, tt.query)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, step)
		})
	}
}

func TestStepOrDefault(t *testing.T) {
	tr := testTimeRange()
	assert.Equal(t, 15*time.Second, StepOrDefault("bogus", backend.DataQuery{TimeRange: tr}))

	week := backend.TimeRange{From: tr.From, To: tr.From.Add(5 * 24 * time.Hour)}
	assert.Equal(t, time.Hour, StepOrDefault("bogus", backend.DataQuery{TimeRange: week}))
	assert.Equal(t, time.Minute, StepOrDefault("60s", backend.DataQuery{TimeRange: week}))
}

func TestFormatStep(t *testing.T) {
	assert.Equal(t, "30s", FormatStep(30*time.Second))
	assert.Equal(t, "1h", FormatStep(time.Hour))
	assert.Equal(t, "1s", FormatStep(0))
}
