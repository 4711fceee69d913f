package output

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tmsproject/tms-loadtest/internal/loadtest"
)

// Progress prints a one-line status at a fixed interval while an attack runs.
// Record is safe for concurrent use and is meant to be the scheduler's feed.
type Progress struct {
	w        io.Writer
	scheme   *ColorScheme
	interval time.Duration

	requests atomic.Int64
	failed   atomic.Int64

	mu    sync.Mutex
	start time.Time
}

// NewProgress creates a progress printer. A zero interval means one second.
func NewProgress(w io.Writer, scheme *ColorScheme, interval time.Duration) *Progress {
	if scheme == nil {
		scheme = NoColorScheme()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Progress{w: w, scheme: scheme, interval: interval, start: time.Now()}
}

// Record counts one outcome.
func (p *Progress) Record(o loadtest.Outcome) {
	p.requests.Add(1)
	if o.Failed() {
		p.failed.Add(1)
	}
}

// Run prints a status line every interval until ctx is done.
func (p *Progress) Run(ctx context.Context) {
	p.mu.Lock()
	p.start = time.Now()
	p.mu.Unlock()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Print()
		}
	}
}

// Print writes the current status line.
func (p *Progress) Print() {
	p.mu.Lock()
	elapsed := time.Since(p.start)
	p.mu.Unlock()

	requests := p.requests.Load()
	failed := p.failed.Load()

	rps := 0.0
	if elapsed > 0 {
		rps = float64(requests) / elapsed.Seconds()
	}
	errorRate := 0.0
	if requests > 0 {
		errorRate = float64(failed) / float64(requests)
	}

	errColor := p.scheme.Value
	if failed > 0 {
		errColor = p.scheme.Error
	}

	fmt.Fprintf(p.w, "[%s] Reqs: %s | RPS: %.1f | Errors: %s (%.1f%%)\n",
		formatDuration(elapsed),
		formatNumber(requests),
		rps,
		errColor.Sprint(formatNumber(failed)),
		errorRate*100)
}
