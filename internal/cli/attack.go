package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/tmsproject/tms-loadtest/internal/config"
	"github.com/tmsproject/tms-loadtest/internal/loadtest"
	"github.com/tmsproject/tms-loadtest/internal/metrics"
	"github.com/tmsproject/tms-loadtest/internal/output"
	"github.com/tmsproject/tms-loadtest/internal/tms"
)

func newAttackCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attack",
		Short: "Run a load test against a TMS service",
		Long: `Start virtual users that run the registered TMS scenarios until the run time
elapses, every user completed its iterations, or the run is interrupted.

Quick mode:
  tms-loadtest attack --host http://localhost:8080 --users 20 --hatch-rate 5 --run-time 2m

Plan file mode (flags override plan values):
  tms-loadtest attack --plan plan.yaml --report-file report.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAttack(cmd, stdout, stderr)
		},
	}

	f := cmd.Flags()
	f.IntP("users", "u", 1, "Number of virtual users")
	f.Float64P("hatch-rate", "r", 0, "Users started per second (0 = all at once)")
	f.DurationP("run-time", "t", 0, "Stop after this long (e.g. 30s, 5m)")
	f.Int("iterations", 0, "Scenario iterations per user (0 = unbounded)")
	f.StringP("host", "H", "", "Target base URL (overrides TMS_HOST)")
	f.StringSlice("scenarios", nil, "Only run these scenarios")
	f.String("selection", config.SelectionWeighted, "Scenario selection policy: weighted or round-robin")
	f.Int64("seed", 0, "Seed for scenario selection (0 = random)")
	f.Duration("graceful-stop", loadtest.DefaultGracefulStop, "How long stopping users may take to finish")
	f.Duration("timeout", 30*time.Second, "Per-request timeout")
	f.Bool("insecure", false, "Skip TLS certificate verification")

	f.StringP("plan", "p", "", "YAML attack plan")
	f.String("report-file", "", "Write the final report as JSON to this file")
	f.String("prom-textfile", "", "Write the final report in Prometheus text format to this file")
	f.String("html-report", "", "Write the final report as a standalone HTML page to this file")

	f.BoolP("quiet", "q", false, "Disable live progress output, show only final summary")
	f.Bool("no-color", false, "Disable colored output")
	f.Bool("debug", false, "Enable debug logging")

	return cmd
}

func runAttack(cmd *cobra.Command, stdout, stderr io.Writer) error {
	flags := cmd.Flags()

	debug, _ := flags.GetBool("debug")
	logger := newLogger(stderr, debug)
	defer logger.Sync()

	plan := &config.Plan{}
	if path, _ := flags.GetString("plan"); path != "" {
		loaded, err := config.LoadPlan(path)
		if err != nil {
			return err
		}
		plan = loaded
	}

	env, err := config.NewViperEnvironment()
	if err != nil {
		return err
	}
	if err := env.BindFlag(config.EnvHost, flags.Lookup("host")); err != nil {
		return err
	}

	cfg := config.NewLoader(env).Load()
	if plan.Host != "" && !flags.Changed("host") {
		cfg = cfg.WithHost(plan.Host)
	}
	if cfg.Host() == "" {
		return fmt.Errorf("no target host: use --host, the plan file or %s", config.EnvHost)
	}

	logger.Info("resolved configuration", zap.Object("config", cfg))

	opts, err := attackOptions(flags, plan)
	if err != nil {
		return err
	}

	only, _ := flags.GetStringSlice("scenarios")
	scenarios, err := loadtest.ConfigureScenarios(tms.Scenarios(), plan.Scenarios, only)
	if err != nil {
		return err
	}

	noColor, _ := flags.GetBool("no-color")
	quiet, _ := flags.GetBool("quiet")

	var progress *output.Progress
	if !quiet {
		progress = output.NewProgress(stderr, output.SchemeFor(stderr, noColor), time.Second)
		opts.Feed = progress.Record
	}

	scheduler, err := loadtest.NewScheduler(cfg, scenarios, opts, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	progressCtx, cancelProgress := context.WithCancel(ctx)
	if progress != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			progress.Run(progressCtx)
		}()
	}

	report, runErr := scheduler.Run(ctx)

	cancelProgress()
	wg.Wait()

	if report != nil {
		output.NewSummary(stdout, output.SchemeFor(stdout, noColor)).Print(report, runErr)
		if err := writeReports(flags, report, runErr); err != nil {
			return errors.Join(runErr, err)
		}
	}

	return runErr
}

// attackOptions merges plan values with command-line flags. A flag given on
// the command line always wins; a plan value wins over a flag default.
func attackOptions(flags *pflag.FlagSet, plan *config.Plan) (loadtest.Options, error) {
	opts := loadtest.DefaultOptions()

	opts.Users, _ = flags.GetInt("users")
	if plan.Users > 0 && !flags.Changed("users") {
		opts.Users = plan.Users
	}

	opts.HatchRate, _ = flags.GetFloat64("hatch-rate")
	if plan.HatchRate > 0 && !flags.Changed("hatch-rate") {
		opts.HatchRate = plan.HatchRate
	}

	opts.RunTime, _ = flags.GetDuration("run-time")
	if plan.RunTime > 0 && !flags.Changed("run-time") {
		opts.RunTime = plan.RunTime.Std()
	}

	opts.Iterations, _ = flags.GetInt("iterations")
	if plan.Iterations > 0 && !flags.Changed("iterations") {
		opts.Iterations = plan.Iterations
	}

	opts.GracefulStop, _ = flags.GetDuration("graceful-stop")
	if plan.GracefulStop > 0 && !flags.Changed("graceful-stop") {
		opts.GracefulStop = plan.GracefulStop.Std()
	}

	opts.Selection, _ = flags.GetString("selection")
	if plan.Selection != "" && !flags.Changed("selection") {
		opts.Selection = plan.Selection
	}

	opts.Seed, _ = flags.GetInt64("seed")
	if plan.Seed != 0 && !flags.Changed("seed") {
		opts.Seed = plan.Seed
	}

	opts.Session.Timeout, _ = flags.GetDuration("timeout")
	if plan.Timeout > 0 && !flags.Changed("timeout") {
		opts.Session.Timeout = plan.Timeout.Std()
	}
	opts.Session.InsecureSkipVerify, _ = flags.GetBool("insecure")

	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

func writeReports(flags *pflag.FlagSet, report *metrics.Report, runErr error) error {
	if path, _ := flags.GetString("report-file"); path != "" {
		if err := output.WriteJSONFile(path, report); err != nil {
			return err
		}
	}

	if path, _ := flags.GetString("html-report"); path != "" {
		if err := output.WriteHTMLFile(path, report, runErr); err != nil {
			return err
		}
	}

	if path, _ := flags.GetString("prom-textfile"); path != "" {
		exporter := metrics.NewExporter()
		exporter.Export(report)
		if err := exporter.WriteTextfile(path); err != nil {
			return fmt.Errorf("failed to write prometheus textfile: %w", err)
		}
	}

	return nil
}
