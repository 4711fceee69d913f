package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReport_MergeAndFinish(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	report := NewReport("run-1", start)

	a := NewAccumulator()
	for i := 1; i <= 10; i++ {
		a.Record(Sample{Scenario: "getclient", Transaction: "getclient", StatusCode: 200, Latency: time.Duration(i*10) * time.Millisecond, Bytes: 10})
	}
	a.RecordIteration("getclient")

	b := NewAccumulator()
	b.Record(Sample{Scenario: "getversion", Transaction: "getversion", Failure: "transport", Latency: time.Millisecond})
	b.Record(Sample{Scenario: "getversion", Transaction: "getversion", StatusCode: 404, Latency: time.Millisecond})
	b.RecordIteration("getversion")

	report.Merge(a)
	report.Merge(b)
	report.Users = 2
	report.Finish(start.Add(2 * time.Second))

	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, 2*time.Second, report.Duration)
	assert.Equal(t, int64(12), report.TotalRequests)
	assert.Equal(t, int64(11), report.ReceivedRequests)
	assert.Equal(t, int64(1), report.FailedRequests)
	assert.Equal(t, int64(100), report.TotalBytes)
	assert.Equal(t, int64(10), report.StatusCodes[200])
	assert.Equal(t, int64(1), report.StatusCodes[404])
	assert.Equal(t, int64(1), report.Failures["transport"])
	assert.Equal(t, int64(1), report.Iterations["getclient"])
	assert.Equal(t, int64(1), report.Iterations["getversion"])

	assert.InDelta(t, 6.0, report.RPS, 0.001)
	assert.InDelta(t, 1.0/12.0, report.ErrorRate, 0.0001)

	assert.Equal(t, int64(12), report.Latency.Count)
	require.Contains(t, report.Transactions, "getclient")
	stats := report.Transactions["getclient"]
	assert.Equal(t, int64(10), stats.Count)
	assert.InDelta(t, float64(50*time.Millisecond), float64(stats.P50), float64(5*time.Millisecond))
	assert.InDelta(t, float64(100*time.Millisecond), float64(stats.Max), float64(time.Millisecond))

	assert.Equal(t, []string{"getclient", "getversion"}, report.TransactionNames())
	assert.Equal(t, []int{200, 404}, report.SortedStatusCodes())
}

func TestReport_Empty(t *testing.T) {
	start := time.Now()
	report := NewReport("empty", start)
	report.Finish(start)

	assert.Zero(t, report.TotalRequests)
	assert.Zero(t, report.RPS)
	assert.Zero(t, report.ErrorRate)
	assert.Equal(t, LatencyStats{}, report.Latency)
	assert.Empty(t, report.Transactions)
}

func TestReport_Abort(t *testing.T) {
	report := NewReport("run", time.Now())
	assert.Equal(t, StatusCompleted, report.Status)
	assert.False(t, report.Aborted())

	report.Abort(errors.New("required credential missing"))
	assert.True(t, report.Aborted())
	assert.Equal(t, StatusAborted, report.Status)
	assert.Equal(t, "required credential missing", report.Error)
}
