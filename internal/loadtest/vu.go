package loadtest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tmsproject/tms-loadtest/internal/config"
	"github.com/tmsproject/tms-loadtest/internal/http"
	"github.com/tmsproject/tms-loadtest/internal/metrics"
)

// VUState represents the lifecycle state of a Virtual User.
type VUState int32

const (
	// VUStateIdle indicates the VU is between scenario iterations.
	VUStateIdle VUState = iota
	// VUStateRunning indicates the VU is executing a scenario.
	VUStateRunning
	// VUStateStopping indicates the VU has been requested to stop.
	VUStateStopping
	// VUStateStopped indicates the VU has fully stopped.
	VUStateStopped
)

func (s VUState) String() string {
	switch s {
	case VUStateIdle:
		return "idle"
	case VUStateRunning:
		return "running"
	case VUStateStopping:
		return "stopping"
	case VUStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// VirtualUser is one simulated TMS client running scenarios in a loop.
//
// Each VU has its own:
// - HTTP session (never shared with another VU)
// - Scenario selector with its own random source
// - Metrics accumulator
//
// The runtime configuration is shared read-only between all VUs.
type VirtualUser struct {
	// Unique identifier for this VU, starting at 1
	ID int

	cfg      *config.RuntimeConfig
	builder  *http.Builder
	session  *http.Session
	runner   *TransactionRunner
	selector Selector
	acc      *metrics.Accumulator

	feed          func(Outcome)
	maxIterations int64

	// Lifecycle state (atomic for lock-free reads)
	state    atomic.Int32
	stopCh   chan struct{}
	stopOnce sync.Once
	doneCh   chan struct{}
	doneOnce sync.Once

	// Completed scenario iterations
	iteration atomic.Int64
}

// NewVirtualUser creates a Virtual User. The VU does not start until Run is
// called.
func NewVirtualUser(id int, cfg *config.RuntimeConfig, session *http.Session, runner *TransactionRunner, selector Selector) *VirtualUser {
	return &VirtualUser{
		ID:       id,
		cfg:      cfg,
		builder:  http.NewBuilder(cfg),
		session:  session,
		runner:   runner,
		selector: selector,
		acc:      metrics.NewAccumulator(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// SetIterationLimit bounds the number of scenario iterations. Zero means
// unbounded. Must be called before Run.
func (vu *VirtualUser) SetIterationLimit(n int) {
	vu.maxIterations = int64(n)
}

// SetFeed registers a callback receiving every outcome in execution order.
// Must be called before Run.
func (vu *VirtualUser) SetFeed(feed func(Outcome)) {
	vu.feed = feed
}

// Config returns the shared runtime configuration.
func (vu *VirtualUser) Config() *config.RuntimeConfig {
	return vu.cfg
}

// Builder returns the request builder bound to the runtime configuration.
func (vu *VirtualUser) Builder() *http.Builder {
	return vu.builder
}

// Accumulator returns the VU's metrics. It may only be read once the VU has
// stopped.
func (vu *VirtualUser) Accumulator() *metrics.Accumulator {
	return vu.acc
}

// GetState returns the current VU state.
func (vu *VirtualUser) GetState() VUState {
	return VUState(vu.state.Load())
}

// GetIteration returns the number of completed scenario iterations.
func (vu *VirtualUser) GetIteration() int64 {
	return vu.iteration.Load()
}

// Do executes spec over the VU's session as the transaction name.
func (vu *VirtualUser) Do(ctx context.Context, name string, spec http.RequestSpec) Outcome {
	return vu.runner.Execute(ctx, name, spec, vu.session)
}

// Run executes scenarios until ctx is done, RequestStop is called or the
// iteration limit is reached.
//
// The stop condition is only checked between transactions, so an in-flight
// transaction always completes and is recorded. A failed transaction does not
// stop the VU. A transaction returning an error does, and Run returns it.
func (vu *VirtualUser) Run(ctx context.Context) error {
	defer vu.MarkStopped()

	for {
		if vu.stopRequested(ctx) {
			return nil
		}
		if vu.maxIterations > 0 && vu.iteration.Load() >= vu.maxIterations {
			return nil
		}

		scenario := vu.selector.Next()
		vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateRunning))

		completed, err := vu.runScenario(ctx, scenario)
		if err != nil {
			return err
		}
		if !completed {
			return nil
		}

		vu.acc.RecordIteration(scenario.Name)
		vu.iteration.Add(1)
		vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateIdle))
	}
}

// runScenario runs the transactions of scenario in order. It reports false
// when a stop was observed before the last transaction.
func (vu *VirtualUser) runScenario(ctx context.Context, scenario *Scenario) (bool, error) {
	iteration := vu.iteration.Load() + 1

	for _, tx := range scenario.Transactions {
		if vu.stopRequested(ctx) {
			return false, nil
		}

		outcome, err := tx.Run(ctx, vu)
		if err != nil {
			return false, fmt.Errorf("virtual user %d, transaction %s: %w", vu.ID, tx.Name, err)
		}

		outcome.VU = vu.ID
		outcome.Iteration = iteration
		outcome.Scenario = scenario.Name
		if outcome.Transaction == "" {
			outcome.Transaction = tx.Name
		}

		vu.acc.Record(outcome.Sample())
		if vu.feed != nil {
			vu.feed(outcome)
		}
	}

	return true, nil
}

func (vu *VirtualUser) stopRequested(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-vu.stopCh:
		return true
	default:
		return false
	}
}

// RequestStop signals the VU to stop before its next transaction.
func (vu *VirtualUser) RequestStop() {
	if vu.GetState() == VUStateStopped {
		return
	}
	vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateStopping))
	vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateStopping))
	vu.stopOnce.Do(func() {
		close(vu.stopCh)
	})
}

// WaitForStop waits for the VU to stop with a timeout.
//
// Returns true if the VU stopped within the timeout, false otherwise.
func (vu *VirtualUser) WaitForStop(timeout time.Duration) bool {
	select {
	case <-vu.doneCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

// MarkStopped marks the VU as fully stopped.
func (vu *VirtualUser) MarkStopped() {
	vu.state.Store(int32(VUStateStopped))
	vu.doneOnce.Do(func() {
		close(vu.doneCh)
	})
}
