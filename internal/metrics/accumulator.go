// Package metrics accumulates per-user request statistics and merges them into
// the final attack report.
package metrics

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Histogram range: 1 microsecond to 1 hour, 3 significant figures.
const (
	histogramMin     int64 = 1
	histogramMax     int64 = 3600000000
	histogramSigFigs       = 3
)

func newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(histogramMin, histogramMax, histogramSigFigs)
}

func recordDuration(h *hdrhistogram.Histogram, d time.Duration) {
	v := d.Microseconds()
	if v < histogramMin {
		v = histogramMin
	}
	if v > histogramMax {
		v = histogramMax
	}
	// Out of range values are clamped above, RecordValue cannot fail.
	_ = h.RecordValue(v)
}

// Sample is the measurement of one executed transaction.
type Sample struct {
	Scenario    string
	Transaction string
	StatusCode  int
	// Failure is the error kind, empty when a response was received.
	Failure string
	Latency time.Duration
	TTFB    time.Duration
	Bytes   int64
}

// Accumulator collects the samples of a single virtual user.
//
// # Thread Safety
//
// An Accumulator has exactly one owner and is not safe for concurrent use.
// Ownership moves to the scheduler once the user has stopped.
type Accumulator struct {
	latency      *hdrhistogram.Histogram
	ttfb         *hdrhistogram.Histogram
	transactions map[string]*hdrhistogram.Histogram

	requests int64
	received int64
	failed   int64
	bytes    int64

	statusCodes map[int]int64
	failures    map[string]int64
	iterations  map[string]int64
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		latency:      newHistogram(),
		ttfb:         newHistogram(),
		transactions: make(map[string]*hdrhistogram.Histogram),
		statusCodes:  make(map[int]int64),
		failures:     make(map[string]int64),
		iterations:   make(map[string]int64),
	}
}

// Record adds one transaction sample.
func (a *Accumulator) Record(s Sample) {
	a.requests++
	a.bytes += s.Bytes

	if s.Failure == "" {
		a.received++
	} else {
		a.failed++
		a.failures[s.Failure]++
	}
	if s.StatusCode != 0 {
		a.statusCodes[s.StatusCode]++
	}

	recordDuration(a.latency, s.Latency)
	if s.TTFB > 0 {
		recordDuration(a.ttfb, s.TTFB)
	}

	if s.Transaction != "" {
		h, ok := a.transactions[s.Transaction]
		if !ok {
			h = newHistogram()
			a.transactions[s.Transaction] = h
		}
		recordDuration(h, s.Latency)
	}
}

// RecordIteration counts one completed pass through scenario.
func (a *Accumulator) RecordIteration(scenario string) {
	a.iterations[scenario]++
}

// Requests returns the number of samples recorded so far.
func (a *Accumulator) Requests() int64 {
	return a.requests
}

// Failed returns the number of samples without a received response.
func (a *Accumulator) Failed() int64 {
	return a.failed
}

// Iterations returns the completed iterations of scenario.
func (a *Accumulator) Iterations(scenario string) int64 {
	return a.iterations[scenario]
}
