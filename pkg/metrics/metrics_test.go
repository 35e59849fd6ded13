package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_RecordQuery(t *testing.T) {
	okBefore := testutil.ToFloat64(queriesTotal.WithLabelValues("logs", StatusOK))
	errBefore := testutil.ToFloat64(queriesTotal.WithLabelValues("logs", StatusError))

	t.Run("successful query", func(t *testing.T) {
		RecordQuery("logs", 100*time.Millisecond, nil)
		assert.Equal(t, okBefore+1, testutil.ToFloat64(queriesTotal.WithLabelValues("logs", StatusOK)))
		assert.Equal(t, errBefore, testutil.ToFloat64(queriesTotal.WithLabelValues("logs", StatusError)))
	})

	t.Run("failed query", func(t *testing.T) {
		RecordQuery("logs", 200*time.Millisecond, assert.AnError)
		assert.Equal(t, okBefore+1, testutil.ToFloat64(queriesTotal.WithLabelValues("logs", StatusOK)))
		assert.Equal(t, errBefore+1, testutil.ToFloat64(queriesTotal.WithLabelValues("logs", StatusError)))
	})

	t.Run("duration observed", func(t *testing.T) {
		assert.GreaterOrEqual(t, testutil.CollectAndCount(queryDuration), 1)
	})
}

func TestMetrics_RecordBackendRequest(t *testing.T) {
	before := testutil.ToFloat64(backendRequestsTotal.WithLabelValues("health", "503"))
	RecordBackendRequest("health", 503)
	RecordBackendRequest("health", 503)
	assert.Equal(t, before+2, testutil.ToFloat64(backendRequestsTotal.WithLabelValues("health", "503")))
}

func TestMetrics_ConcurrentQueries(t *testing.T) {
	tests := []struct {
		name     string
		ops      func()
		expected float64
	}{
		{
			name: "increment only",
			ops: func() {
				IncrementConcurrentQueries()
			},
			expected: 1,
		},
		{
			name: "increment and decrement",
			ops: func() {
				IncrementConcurrentQueries()
				DecrementConcurrentQueries()
			},
			expected: 0,
		},
		{
			name: "multiple increments",
			ops: func() {
				IncrementConcurrentQueries()
				IncrementConcurrentQueries()
				IncrementConcurrentQueries()
			},
			expected: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			concurrentQueries.Set(0)
			tt.ops()
			assert.Equal(t, tt.expected, testutil.ToFloat64(concurrentQueries))
		})
	}
}

func TestMetrics_Concurrency(t *testing.T) {
	concurrentQueries.Set(0)
	before := testutil.ToFloat64(queriesTotal.WithLabelValues("metrics", StatusOK))

	const goroutines = 100
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			IncrementConcurrentQueries()
			RecordQuery("metrics", 10*time.Millisecond, nil)
			DecrementConcurrentQueries()
		}()
	}
	wg.Wait()

	assert.Equal(t, 0.0, testutil.ToFloat64(concurrentQueries))
	assert.Equal(t, before+goroutines, testutil.ToFloat64(queriesTotal.WithLabelValues("metrics", StatusOK)))
}
