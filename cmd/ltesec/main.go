// ltesec - LTE NAS/RRC security compliance testbench
// Records what a fuzzed LTE stack reports and flags insecure or non-compliant
// algorithm negotiation.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fluxfuzzer/ltesec/internal/config"
	"github.com/fluxfuzzer/ltesec/internal/logger"
	"github.com/fluxfuzzer/ltesec/internal/report"
	"github.com/fluxfuzzer/ltesec/internal/testbench"
	"github.com/fluxfuzzer/ltesec/internal/triage"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-dev"

	// global flags
	configFile string
	verbose    bool
	logFile    string
)

// Exit codes
const (
	exitFail  = 1 // interesting testcases or failed expectations
	exitUsage = 2 // bad flags, config or input files
)

// exitError carries the process exit code to main
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func usageError(err error) error {
	return &exitError{code: exitUsage, err: err}
}

// errFailed is returned when the run completed with a FAIL verdict
var errFailed = &exitError{code: exitFail}

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		code := exitUsage
		var ee *exitError
		if errors.As(err, &ee) {
			code = ee.code
		}
		if ee == nil || ee.err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(code)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ltesec",
		Short: "ltesec - LTE NAS/RRC security compliance testbench",
		Long: `ltesec records the security-relevant events a fuzzed LTE protocol stack
reports for each testcase and flags insecure or non-compliant negotiation.

Features:
  - Capability mismatch and NULL/spare algorithm detection for NAS and RRC
  - Unexpected attach reject detection against a configurable cause set
  - Scenario and JSONL trace replay on a worker pool
  - HTTP reporting API with live websocket feed for out-of-process stacks
  - TLSH triage of interesting testcases`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to this file instead of stderr")

	rootCmd.AddCommand(
		newReplayCmd(),
		newServeCmd(),
		newSendCmd(),
		newValidateCmd(),
		newCausesCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// loadConfig reads --config on top of the defaults and configures logging
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			return nil, usageError(err)
		}
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if logFile != "" {
		cfg.Log.Path = logFile
	}
	if err := logger.Setup(cfg.Log); err != nil {
		return nil, usageError(err)
	}
	return cfg, nil
}

// quietLogs keeps log lines off the terminal while the TUI owns it
func quietLogs(cfg *config.Config) {
	if cfg.Log.Path == "" {
		logger.SetOutput(io.Discard)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ltesec version %s\n", version)
		},
	}
}

func newCausesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "causes",
		Short: "List EMM reject causes and whether the configured rules expect them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			rules := cfg.Rules()
			w := cmd.OutOrStdout()
			for _, c := range testbench.KnownCauses() {
				mark := " "
				if rules.ExpectedReject(c) {
					mark = "*"
				}
				fmt.Fprintf(w, "%s %s\n", mark, testbench.CauseString(c))
			}
			fmt.Fprintln(w, "\n* expected: a reject with this cause is not interesting")
			return nil
		},
	}
}

// writeReport renders the run in format, to the output dir when one is set, else to w
func writeReport(tb *testbench.Testbench, format, outDir string, w io.Writer) error {
	r := report.FromTestbench(tb, "ltesec run "+tb.RunID())
	r.SetClusters(triage.New(nil).Cluster(r.Testcases))

	if outDir == "" {
		return report.NewManager("").Write(r, format, w)
	}
	path, err := report.NewManager(outDir).Generate(r, format)
	if err != nil {
		return err
	}
	abs, _ := filepath.Abs(path)
	logger.CLILog.WithField("path", abs).Info("Report written")
	fmt.Fprintf(w, "[*] Report written to %s\n", path)
	return nil
}
