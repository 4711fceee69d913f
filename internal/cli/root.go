package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tmsproject/tms-loadtest/internal/config"
)

var version = "0.1.0"

// Exit codes returned by the process.
const (
	ExitOK          = 0
	ExitError       = 1
	ExitConfigError = 2
)

// NewRootCmd builds the command tree writing results to stdout and logs and
// diagnostics to stderr.
func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:     "tms-loadtest",
		Short:   "Load-generation harness for the TMS service",
		Version: version,
		Long: `tms-loadtest drives concurrent virtual users that repeatedly execute
weighted TMS scenarios and reports throughput, latency and error rate.

Credentials are read from X_TMS_TENANT, X_TMS_CLIENT_ID and X_TMS_CLIENT_SECRET.
TMS_VERBOSE and TMS_PARSE_RESPONSE are enabled by any value other than "false".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// If no subcommand is provided, print help
			return cmd.Help()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(newAttackCmd(stdout, stderr))
	root.AddCommand(newVersionCmd(stdout))
	root.AddCommand(newScenariosCmd(stdout))

	return root
}

// Execute runs the command line and returns the command's error.
// This is called by main.main().
func Execute() error {
	err := NewRootCmd(os.Stdout, os.Stderr).Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

// ExitCode maps an error returned by Execute to the process exit status.
// A missing credential exits with ExitConfigError.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var fatal *config.FatalConfigurationError
	if errors.As(err, &fatal) {
		return ExitConfigError
	}
	return ExitError
}
