package scenario

import (
	"context"
	"fmt"
	"time"

	"github.com/fluxfuzzer/ltesec/internal/logger"
	"github.com/fluxfuzzer/ltesec/internal/secalg"
	"github.com/fluxfuzzer/ltesec/internal/testbench"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Options configures a Replayer
type Options struct {
	Workers  int
	Rate     int // testcases started per second, 0 = unlimited
	FailFast bool
	Log      *logrus.Entry
}

// DefaultOptions returns the default replay options
func DefaultOptions() *Options {
	return &Options{
		Workers: 8,
		Log:     logger.ScenarioLog,
	}
}

// Replayer drives a testbench with scripted testcases.
// Each testcase reports through its own explicit handle so several can run at once.
type Replayer struct {
	tb      *testbench.Testbench
	opts    Options
	limiter *rate.Limiter
	log     *logrus.Entry
}

// NewReplayer creates a replayer for tb
func NewReplayer(tb *testbench.Testbench, opts *Options) *Replayer {
	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.Log == nil {
		o.Log = logger.ScenarioLog
	}

	limit := rate.Inf
	if o.Rate > 0 {
		limit = rate.Limit(o.Rate)
	}

	return &Replayer{
		tb:      tb,
		opts:    o,
		limiter: rate.NewLimiter(limit, 1),
		log:     o.Log,
	}
}

// TestcaseResult is the outcome of one scripted testcase
type TestcaseResult struct {
	Scenario  string               `json:"scenario"`
	Name      string               `json:"name"`
	ID        testbench.TestcaseID `json:"id"`
	Summary   testbench.Summary    `json:"summary"`
	Errors    []string             `json:"errors,omitempty"`
	Failures  []string             `json:"failures,omitempty"`
	Cancelled bool                 `json:"cancelled,omitempty"`
}

// Passed reports whether every expectation held
func (r TestcaseResult) Passed() bool {
	return len(r.Failures) == 0 && !r.Cancelled
}

// Result is the outcome of a replay run
type Result struct {
	Testcases []TestcaseResult `json:"testcases"`
	Duration  time.Duration    `json:"duration"`
	Pool      PoolStats        `json:"pool"`
}

// Failed returns the testcases whose expectations did not hold
func (r *Result) Failed() []TestcaseResult {
	var out []TestcaseResult
	for _, tc := range r.Testcases {
		if !tc.Passed() {
			out = append(out, tc)
		}
	}
	return out
}

// Run replays every testcase of every scenario. Results are ordered by testcase ID.
// The returned error is non-nil only if the pool fails or ctx is cancelled.
func (r *Replayer) Run(ctx context.Context, scenarios []*Scenario) (*Result, error) {
	start := time.Now()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool, err := newTestcasePool(r.opts.Workers,
		func(j job) TestcaseResult { return r.runTestcase(runCtx, j.scenario, j.script) },
		func(res TestcaseResult) {
			if !res.Passed() && r.opts.FailFast {
				cancel()
			}
		})
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	total := TestcaseCount(scenarios)
	r.log.WithFields(logrus.Fields{
		"scenarios": len(scenarios),
		"testcases": total,
		"workers":   r.opts.Workers,
	}).Info("Replay started")

submit:
	for _, s := range scenarios {
		for _, script := range s.Testcases {
			if err := r.limiter.Wait(runCtx); err != nil {
				break submit
			}
			if err := pool.invoke(job{scenario: s.Name, script: script}); err != nil {
				pool.close()
				return nil, fmt.Errorf("failed to submit testcase %s: %w", script.Name, err)
			}
		}
	}
	results := pool.close()

	result := &Result{
		Testcases: results,
		Duration:  time.Since(start),
		Pool:      pool.stats(),
	}

	r.log.WithFields(logrus.Fields{
		"testcases": len(results),
		"failed":    len(result.Failed()),
		"duration":  result.Duration,
	}).Info("Replay finished")

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("replay interrupted: %w", err)
	}
	return result, nil
}

func (r *Replayer) runTestcase(ctx context.Context, scenarioName string, script Testcase) TestcaseResult {
	id := r.tb.StartTestcase(secalg.CapabilityMask(script.EIAMask), secalg.CapabilityMask(script.EEAMask))
	tc, _ := r.tb.Testcase(id)

	res := TestcaseResult{Scenario: scenarioName, Name: script.Name, ID: id}
	log := r.log.WithFields(logrus.Fields{"scenario": scenarioName, "testcase": script.Name, "id": id})

	if script.PCAP != nil {
		if err := tc.SetPCAP(script.PCAP.NAS, script.PCAP.MAC); err != nil {
			res.Errors = append(res.Errors, err.Error())
		}
	}

	for i, step := range script.Events {
		if ctx.Err() != nil {
			res.Cancelled = true
			log.Warnf("Cancelled before event %d", i)
			break
		}
		ev, err := step.Event()
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("event %d: %v", i, err))
			continue
		}
		if err := testbench.Apply(tc, ev); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("event %d (%s): %v", i, ev.Type, err))
		}
	}

	snap := tc.Snapshot()
	res.Summary = testbench.Summarize(snap, r.tb.Rules())
	res.Failures = checkExpectation(script.Expect, snap, res.Summary, len(res.Errors))

	if len(res.Failures) > 0 {
		log.WithField("failures", res.Failures).Warn("Expectation failed")
	} else {
		log.Debug("Testcase replayed")
	}
	return res
}

func checkExpectation(exp *Expectation, snap testbench.Snapshot, sum testbench.Summary, errs int) []string {
	var failures []string
	expectedErrors := 0
	if exp != nil && exp.Errors != nil {
		expectedErrors = *exp.Errors
	}
	if errs != expectedErrors {
		failures = append(failures, fmt.Sprintf("rejected reports: got %d, want %d", errs, expectedErrors))
	}
	if exp == nil {
		return failures
	}

	check := func(what string, want *bool, got bool) {
		if want != nil && *want != got {
			failures = append(failures, fmt.Sprintf("%s: got %t, want %t", what, got, *want))
		}
	}
	check("interesting", exp.Interesting, sum.IsInteresting)
	check("connected", exp.Connected, snap.Connected())
	check("finished", exp.Finished, snap.Finished())

	if len(exp.Findings) > 0 {
		raised := make(map[string]bool)
		for _, f := range testbench.Findings(snap, sum) {
			raised[string(f.Kind)] = true
		}
		for _, want := range exp.Findings {
			if !raised[want] {
				failures = append(failures, fmt.Sprintf("finding %s not raised", want))
			}
		}
	}
	return failures
}
