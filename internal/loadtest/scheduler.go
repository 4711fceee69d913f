package loadtest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tmsproject/tms-loadtest/internal/config"
	"github.com/tmsproject/tms-loadtest/internal/http"
	"github.com/tmsproject/tms-loadtest/internal/metrics"
)

// DefaultGracefulStop is how long stopping users may take by default.
const DefaultGracefulStop = 30 * time.Second

// Options controls an attack.
type Options struct {
	// Users is the number of virtual users to start
	Users int

	// HatchRate is users started per second (0 = all at once)
	HatchRate float64

	// RunTime stops the attack after this long (0 = no time limit)
	RunTime time.Duration

	// Iterations bounds every user's scenario iterations (0 = unbounded)
	Iterations int

	// GracefulStop bounds the wait for users to finish after the stop signal
	// (0 = DefaultGracefulStop)
	GracefulStop time.Duration

	// Selection is the scenario selection policy
	Selection string

	// Seed seeds scenario selection (0 = derived from the clock)
	Seed int64

	// Session configures every user's HTTP session
	Session http.SessionConfig

	// Feed receives every outcome. It is called concurrently from all users.
	Feed func(Outcome)
}

// DefaultOptions returns options for a single user with no stop condition.
func DefaultOptions() Options {
	return Options{
		Users:        1,
		GracefulStop: DefaultGracefulStop,
		Selection:    config.SelectionWeighted,
		Session:      http.DefaultSessionConfig(),
	}
}

// Validate checks the options.
func (o Options) Validate() error {
	errs := &config.ValidationErrors{}

	if o.Users < 1 {
		errs.Add("users", "must be at least 1")
	}
	if o.HatchRate < 0 {
		errs.Add("hatch_rate", "must not be negative")
	}
	if o.RunTime < 0 {
		errs.Add("run_time", "must not be negative")
	}
	if o.Iterations < 0 {
		errs.Add("iterations", "must not be negative")
	}
	if o.GracefulStop < 0 {
		errs.Add("graceful_stop", "must not be negative")
	}
	switch o.Selection {
	case "", config.SelectionWeighted, config.SelectionRoundRobin:
	default:
		errs.Add("selection", fmt.Sprintf("unknown policy %q", o.Selection))
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// Scheduler runs an attack: it ramps up virtual users, stops them when the
// stop condition is met and merges their metrics into a report.
type Scheduler struct {
	cfg       *config.RuntimeConfig
	scenarios []*Scenario
	opts      Options
	logger    *zap.Logger
	runner    *TransactionRunner

	phase atomic.Value
}

// NewScheduler creates a scheduler. cfg must be fully resolved: it is shared
// read-only by every virtual user. A nil logger discards output.
func NewScheduler(cfg *config.RuntimeConfig, scenarios []*Scenario, opts Options, logger *zap.Logger) (*Scheduler, error) {
	if cfg == nil {
		return nil, errors.New("runtime configuration is required")
	}
	if err := ValidateScenarios(scenarios); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.GracefulStop == 0 {
		opts.GracefulStop = DefaultGracefulStop
	}

	s := &Scheduler{
		cfg:       cfg,
		scenarios: scenarios,
		opts:      opts,
		logger:    logger,
		runner:    NewTransactionRunner(cfg, logger),
	}
	s.phase.Store(metrics.PhaseInit)
	return s, nil
}

// Phase returns the current attack phase.
func (s *Scheduler) Phase() metrics.Phase {
	return s.phase.Load().(metrics.Phase)
}

func (s *Scheduler) setPhase(p metrics.Phase) {
	s.phase.Store(p)
	s.logger.Info("phase", zap.String("phase", string(p)))
}

// Run executes the attack and blocks until it is over.
//
// The attack stops when RunTime elapses, every user reached its iteration
// limit, ctx is cancelled or a transaction fails fatally. Users still running
// GracefulStop after the stop signal are abandoned and left out of the
// report. Run returns the report together with the fatal error, if any; the
// report is then marked aborted. A credential some scenario requires but the
// configuration lacks aborts the run before any user starts.
func (s *Scheduler) Run(ctx context.Context) (*metrics.Report, error) {
	seed := s.opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	report := metrics.NewReport(uuid.NewString(), time.Now())
	s.logger.Info("attack starting",
		zap.String("run_id", report.RunID),
		zap.String("host", s.cfg.Host()),
		zap.Int("users", s.opts.Users),
		zap.Float64("hatch_rate", s.opts.HatchRate),
		zap.Duration("run_time", s.opts.RunTime),
		zap.Int("iterations", s.opts.Iterations),
		zap.String("selection", s.opts.Selection),
		zap.Int64("seed", seed),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if s.opts.RunTime > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, s.opts.RunTime)
		defer cancelTimeout()
	}

	if err := s.checkCredentials(); err != nil {
		report.Abort(err)
		report.Finish(time.Now())
		s.setPhase(metrics.PhaseDone)
		s.logger.Error("attack aborted before ramp-up", zap.String("run_id", report.RunID), zap.Error(err))
		return report, err
	}

	g, gctx := errgroup.WithContext(runCtx)
	vus := make([]*VirtualUser, 0, s.opts.Users)

	var limiter *rate.Limiter
	if s.opts.HatchRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.opts.HatchRate), 1)
	}

	s.setPhase(metrics.PhaseRampUp)
	for id := 1; id <= s.opts.Users; id++ {
		if limiter != nil {
			if err := limiter.Wait(gctx); err != nil {
				break
			}
		}
		if gctx.Err() != nil {
			break
		}

		vu, err := s.spawn(id, seed)
		if err != nil {
			cancel()
			_ = g.Wait()
			return nil, err
		}
		vus = append(vus, vu)

		g.Go(func() error {
			defer vu.session.Close()
			return vu.Run(gctx)
		})
	}
	report.Users = len(vus)

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	if gctx.Err() == nil {
		s.setPhase(metrics.PhaseSteady)
	}

	var waitErr error
	completed := false
	select {
	case waitErr = <-done:
		completed = true
	case <-gctx.Done():
	}

	if !completed {
		s.setPhase(metrics.PhaseRampDown)
		for _, vu := range vus {
			vu.RequestStop()
		}

		grace := time.NewTimer(s.opts.GracefulStop)
		defer grace.Stop()

		select {
		case waitErr = <-done:
		case <-grace.C:
		}
	}

	// A stopped user never touches its accumulator again. Each user is
	// checked once, so merged and abandoned users are disjoint.
	for _, vu := range vus {
		if vu.GetState() != VUStateStopped {
			report.Abandoned++
			s.logger.Warn("abandoning virtual user after graceful stop",
				zap.Int("vu", vu.ID),
				zap.Int64("iterations", vu.GetIteration()),
				zap.Duration("graceful_stop", s.opts.GracefulStop),
			)
			continue
		}
		report.Merge(vu.Accumulator())
	}

	err := runError(gctx, waitErr)
	if err != nil {
		report.Abort(err)
	}
	report.Finish(time.Now())

	s.setPhase(metrics.PhaseDone)

	if err != nil {
		s.logger.Error("attack aborted", zap.String("run_id", report.RunID), zap.Error(err))
	} else {
		s.logger.Info("attack finished",
			zap.String("run_id", report.RunID),
			zap.Int64("requests", report.TotalRequests),
			zap.Int64("failed", report.FailedRequests),
			zap.Int("abandoned", report.Abandoned),
			zap.Duration("duration", report.Duration),
		)
	}
	return report, err
}

// spawn creates virtual user id with its own session and selector.
func (s *Scheduler) spawn(id int, seed int64) (*VirtualUser, error) {
	selector, err := NewSelector(s.opts.Selection, s.scenarios, seed, id)
	if err != nil {
		return nil, err
	}

	session := http.NewSession(s.cfg.Host(), s.opts.Session)
	vu := NewVirtualUser(id, s.cfg, session, s.runner, selector)
	s.logger.Debug("virtual user spawned", zap.Int("vu", id), zap.String("target", session.BaseURL()))
	vu.SetIterationLimit(s.opts.Iterations)
	vu.SetFeed(s.opts.Feed)
	return vu, nil
}

// checkCredentials fails with the first credential a selected scenario
// requires but the runtime configuration lacks.
func (s *Scheduler) checkCredentials() error {
	for _, sc := range s.scenarios {
		for _, key := range sc.Requires {
			if _, err := s.cfg.Require(key); err != nil {
				return fmt.Errorf("scenario %s: %w", sc.Name, err)
			}
		}
	}
	return nil
}

// runError picks the error to report. When users were abandoned the group
// never returned, so the fatal error is recovered from the group's cause.
func runError(gctx context.Context, waitErr error) error {
	if waitErr != nil {
		return waitErr
	}
	var fatal *config.FatalConfigurationError
	if cause := context.Cause(gctx); errors.As(cause, &fatal) {
		return cause
	}
	return nil
}
