package metrics

import (
	"sort"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Phase is a stage of the attack lifecycle.
type Phase string

const (
	PhaseInit     Phase = "init"
	PhaseRampUp   Phase = "ramp-up"
	PhaseSteady   Phase = "steady"
	PhaseRampDown Phase = "ramp-down"
	PhaseDone     Phase = "done"
)

// Run status recorded in a report.
const (
	StatusCompleted = "completed"
	StatusAborted   = "aborted"
)

// LatencyStats contains latency statistics.
type LatencyStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stdDev"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Count  int64         `json:"count"`
}

func statsOf(h *hdrhistogram.Histogram) LatencyStats {
	if h.TotalCount() == 0 {
		return LatencyStats{}
	}
	return LatencyStats{
		Min:    time.Duration(h.Min()) * time.Microsecond,
		Max:    time.Duration(h.Max()) * time.Microsecond,
		Mean:   time.Duration(h.Mean()) * time.Microsecond,
		StdDev: time.Duration(h.StdDev()) * time.Microsecond,
		P50:    time.Duration(h.ValueAtQuantile(50)) * time.Microsecond,
		P90:    time.Duration(h.ValueAtQuantile(90)) * time.Microsecond,
		P95:    time.Duration(h.ValueAtQuantile(95)) * time.Microsecond,
		P99:    time.Duration(h.ValueAtQuantile(99)) * time.Microsecond,
		Count:  h.TotalCount(),
	}
}

// Report is the aggregate result of an attack.
type Report struct {
	RunID     string        `json:"runId"`
	StartTime time.Time     `json:"startTime"`
	EndTime   time.Time     `json:"endTime"`
	Duration  time.Duration `json:"duration"`

	// Status is StatusCompleted, or StatusAborted when a fatal error stopped
	// the run. Error then carries the fatal error's message.
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`

	// Users is the number of virtual users spawned
	Users int `json:"users"`
	// Abandoned is the number of users still running when the grace period ran out
	Abandoned int `json:"abandoned"`

	TotalRequests    int64 `json:"totalRequests"`
	ReceivedRequests int64 `json:"receivedRequests"`
	FailedRequests   int64 `json:"failedRequests"`
	TotalBytes       int64 `json:"totalBytes"`

	StatusCodes map[int]int64    `json:"statusCodes"`
	Failures    map[string]int64 `json:"failures"`
	Iterations  map[string]int64 `json:"iterations"`

	Latency      LatencyStats            `json:"latency"`
	TTFB         LatencyStats            `json:"ttfb"`
	Transactions map[string]LatencyStats `json:"transactions"`

	RPS       float64 `json:"rps"`
	ErrorRate float64 `json:"errorRate"`

	latency      *hdrhistogram.Histogram
	ttfb         *hdrhistogram.Histogram
	transactions map[string]*hdrhistogram.Histogram
}

// NewReport starts an empty report for the run identified by runID.
func NewReport(runID string, start time.Time) *Report {
	return &Report{
		RunID:        runID,
		StartTime:    start,
		Status:       StatusCompleted,
		StatusCodes:  make(map[int]int64),
		Failures:     make(map[string]int64),
		Iterations:   make(map[string]int64),
		Transactions: make(map[string]LatencyStats),
		latency:      newHistogram(),
		ttfb:         newHistogram(),
		transactions: make(map[string]*hdrhistogram.Histogram),
	}
}

// Merge folds a stopped user's accumulator into the report. It must only be
// called after the owning user has stopped.
func (r *Report) Merge(acc *Accumulator) {
	r.TotalRequests += acc.requests
	r.ReceivedRequests += acc.received
	r.FailedRequests += acc.failed
	r.TotalBytes += acc.bytes

	for code, n := range acc.statusCodes {
		r.StatusCodes[code] += n
	}
	for kind, n := range acc.failures {
		r.Failures[kind] += n
	}
	for scenario, n := range acc.iterations {
		r.Iterations[scenario] += n
	}

	r.latency.Merge(acc.latency)
	r.ttfb.Merge(acc.ttfb)
	for name, h := range acc.transactions {
		dst, ok := r.transactions[name]
		if !ok {
			dst = newHistogram()
			r.transactions[name] = dst
		}
		dst.Merge(h)
	}
}

// Abort marks the run as stopped by err.
func (r *Report) Abort(err error) {
	r.Status = StatusAborted
	if err != nil {
		r.Error = err.Error()
	}
}

// Aborted reports whether a fatal error stopped the run.
func (r *Report) Aborted() bool {
	return r.Status == StatusAborted
}

// Finish stamps the end time and computes the derived statistics.
func (r *Report) Finish(end time.Time) {
	r.EndTime = end
	r.Duration = end.Sub(r.StartTime)

	r.Latency = statsOf(r.latency)
	r.TTFB = statsOf(r.ttfb)
	for name, h := range r.transactions {
		r.Transactions[name] = statsOf(h)
	}

	r.RPS = 0
	if r.Duration > 0 {
		r.RPS = float64(r.TotalRequests) / r.Duration.Seconds()
	}
	r.ErrorRate = 0
	if r.TotalRequests > 0 {
		r.ErrorRate = float64(r.FailedRequests) / float64(r.TotalRequests)
	}
}

// TransactionNames returns the measured transactions in sorted order.
func (r *Report) TransactionNames() []string {
	names := make([]string, 0, len(r.Transactions))
	for name := range r.Transactions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SortedStatusCodes returns the observed status codes in ascending order.
func (r *Report) SortedStatusCodes() []int {
	codes := make([]int, 0, len(r.StatusCodes))
	for code := range r.StatusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	return codes
}
