package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fluxfuzzer/ltesec/internal/config"
	"github.com/fluxfuzzer/ltesec/internal/logger"
	"github.com/fluxfuzzer/ltesec/internal/scenario"
	"github.com/fluxfuzzer/ltesec/internal/testbench"
	"github.com/fluxfuzzer/ltesec/internal/ui"
	"github.com/spf13/cobra"
)

type replayFlags struct {
	trace    string
	workers  int
	rate     int
	failFast bool
	format   string
	outDir   string
	tui      bool
}

func newReplayCmd() *cobra.Command {
	var f replayFlags

	cmd := &cobra.Command{
		Use:   "replay [scenario files or directories...]",
		Short: "Replay scripted scenarios or a recorded JSONL trace into a fresh testbench",
		Long: `Replay drives an in-process testbench with scripted testcases.

Scenario files (YAML) run on a worker pool, one explicit testcase handle per
script, and are checked against their expectations. A trace (--trace) is
replayed in order the way a single stack would report it. Either way the run
fails when the testbench result is FAIL, and scenario runs also fail on an
unmet expectation.

Exit status is 0 on PASS, 1 on FAIL and 2 on usage errors.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			applyReplayFlags(cmd, cfg, &f)
			if err := cfg.Validate(); err != nil {
				return usageError(err)
			}
			if f.trace == "" && len(args) == 0 {
				return usageError(errors.New("need scenario paths or --trace"))
			}
			if f.trace != "" && len(args) > 0 {
				return usageError(errors.New("--trace and scenario paths are mutually exclusive"))
			}
			return runReplay(cmd, cfg, &f, args)
		},
	}

	cmd.Flags().StringVar(&f.trace, "trace", "", "Replay a JSONL event trace instead of scenarios")
	cmd.Flags().IntVarP(&f.workers, "workers", "w", 0, "Concurrent scenario testcases (default from config)")
	cmd.Flags().IntVarP(&f.rate, "rate", "r", 0, "Testcases started per second, 0 = unlimited")
	cmd.Flags().BoolVar(&f.failFast, "fail-fast", false, "Stop at the first failed expectation")
	cmd.Flags().StringVarP(&f.format, "format", "f", "", "Report format: text, json, html, markdown")
	cmd.Flags().StringVarP(&f.outDir, "output", "o", "", "Write the report to this directory instead of stdout")
	cmd.Flags().BoolVar(&f.tui, "tui", false, "Show the live terminal dashboard")
	return cmd
}

// applyReplayFlags lets explicitly set flags override the config file
func applyReplayFlags(cmd *cobra.Command, cfg *config.Config, f *replayFlags) {
	if cmd.Flags().Changed("workers") {
		cfg.Replay.Workers = f.workers
	}
	if cmd.Flags().Changed("rate") {
		cfg.Replay.Rate = f.rate
	}
	if f.failFast {
		cfg.Replay.FailFast = true
	}
	if f.format != "" {
		cfg.Output.Format = f.format
	}
	if f.tui {
		cfg.Output.TUI = true
	}
}

func runReplay(cmd *cobra.Command, cfg *config.Config, f *replayFlags, paths []string) error {
	log := logger.CLILog
	out := cmd.OutOrStdout()

	var (
		scenarios []*scenario.Scenario
		expected  int
		err       error
	)
	if f.trace == "" {
		scenarios, err = scenario.NewStrictParser().ParsePaths(paths)
		if err != nil {
			return usageError(err)
		}
		expected = scenario.TestcaseCount(scenarios)
		log.WithField("testcases", expected).Infof("Loaded %d scenario(s)", len(scenarios))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var feed *ui.Feed
	if cfg.Output.TUI {
		feed = ui.NewFeed(200)
		quietLogs(cfg)
	}
	var listener testbench.Listener
	if feed != nil {
		listener = feed.Publish
	}
	tb := testbench.New(&testbench.Options{Rules: cfg.Rules(), Listener: listener})
	replayer := scenario.NewReplayer(tb, &scenario.Options{
		Workers:  cfg.Replay.Workers,
		Rate:     cfg.Replay.Rate,
		FailFast: cfg.Replay.FailFast,
	})

	run := func(ctx context.Context) (bool, error) {
		if f.trace != "" {
			return replayTrace(ctx, replayer, tb, f.trace, out)
		}
		return replayScenarios(ctx, replayer, tb, scenarios, out)
	}

	var (
		pass   bool
		runErr error
	)
	if cfg.Output.TUI {
		pass, runErr = runWithDashboard(ctx, tb, feed, expected, run)
	} else {
		pass, runErr = run(ctx)
	}
	if runErr != nil {
		return runErr
	}

	if err := writeReport(tb, cfg.Output.Format, f.outDir, out); err != nil {
		return usageError(err)
	}

	verdict := "PASS"
	if !pass {
		verdict = "FAIL"
	}
	log.WithField("run", tb.RunID()).Infof("Replay finished: %s", verdict)
	if !pass {
		return errFailed
	}
	return nil
}

// replayScenarios passes only when every expectation held and the testbench
// result is PASS, so a met "interesting: true" expectation still fails the run
func replayScenarios(ctx context.Context, r *scenario.Replayer, tb *testbench.Testbench, scenarios []*scenario.Scenario, out io.Writer) (bool, error) {
	res, err := r.Run(ctx, scenarios)
	if err != nil {
		return false, err
	}
	failed := res.Failed()
	for _, tc := range failed {
		fmt.Fprintf(out, "[!] %s/%s (testcase %d)\n", tc.Scenario, tc.Name, tc.ID)
		for _, msg := range tc.Failures {
			fmt.Fprintf(out, "      %s\n", msg)
		}
		for _, msg := range tc.Errors {
			fmt.Fprintf(out, "      rejected: %s\n", msg)
		}
	}
	fmt.Fprintf(out, "[*] %d/%d testcases met their expectations in %s (pool: %d submitted, %d failed)\n",
		len(res.Testcases)-len(failed), len(res.Testcases), res.Duration, res.Pool.Submitted, res.Pool.Failed)
	if !tb.Result() {
		fmt.Fprintf(out, "[!] testbench result: FAIL (%d interesting testcase(s))\n", tb.Stats().Interesting)
	}
	return len(failed) == 0 && tb.Result(), nil
}

func replayTrace(ctx context.Context, r *scenario.Replayer, tb *testbench.Testbench, path string, out io.Writer) (bool, error) {
	events, err := scenario.ReadTraceFile(path)
	if err != nil {
		return false, usageError(err)
	}
	res, err := r.RunTrace(ctx, events)
	if err != nil {
		return false, err
	}
	for _, msg := range res.Errors {
		fmt.Fprintf(out, "[!] %s\n", msg)
	}
	fmt.Fprintf(out, "[*] %d events, %d testcases, %d rejected reports\n", res.Events, res.Started, len(res.Errors))
	return tb.Result(), nil
}

// runWithDashboard runs fn in the background while the TUI owns the terminal.
// Quitting the TUI cancels the run.
func runWithDashboard(ctx context.Context, tb *testbench.Testbench, feed *ui.Feed, expected int,
	fn func(context.Context) (bool, error)) (bool, error) {

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d := ui.NewDashboard(tb.RunID(), tb, feed)
	d.SetExpected(expected)
	p := ui.NewProgram(d)

	type outcome struct {
		pass bool
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		pass, err := fn(ctx)
		done <- outcome{pass, err}
		p.Send(ui.DoneMsg{Pass: pass, Err: err})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-done
		return false, err
	}
	cancel()
	o := <-done
	return o.pass, o.err
}
