// Package testbench records the security negotiation of every fuzz iteration
// against an LTE stack and derives whether any iteration behaved insecurely.
//
// A Testbench is the registry of testcases for one fuzz run. The stack under test
// reports into the active testcase (or into an explicit one through Testcase),
// while any other goroutine may query summaries and the aggregate result.
package testbench

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fluxfuzzer/ltesec/internal/logger"
	"github.com/fluxfuzzer/ltesec/internal/secalg"
	"github.com/fluxfuzzer/ltesec/pkg/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Options configures a Testbench. A nil ExpectedRejectCauses takes the
// default set; pass an empty slice to expect no cause at all.
type Options struct {
	Rules    Rules
	Listener Listener
	Log      *logrus.Entry
}

// DefaultOptions returns options with DefaultRules and the shared testbench logger
func DefaultOptions() *Options {
	return &Options{
		Rules: DefaultRules(),
		Log:   logger.TestbenchLog,
	}
}

// Testbench owns every testcase of a run.
// mu guards the arena and the active pointer only; testcase fields have their own lock.
type Testbench struct {
	mu        sync.RWMutex
	testcases []*Testcase // arena, index = ID-1
	active    TestcaseID  // 0 = none

	runID     string
	startedAt time.Time
	rules     Rules
	listener  Listener
	log       *logrus.Entry
}

// New creates an empty testbench
func New(opts *Options) *Testbench {
	if opts == nil {
		opts = DefaultOptions()
	}
	log := opts.Log
	if log == nil {
		log = logger.TestbenchLog
	}
	rules := opts.Rules
	if rules.ExpectedRejectCauses == nil {
		rules.ExpectedRejectCauses = DefaultRules().ExpectedRejectCauses
	}

	runID := uuid.NewString()
	return &Testbench{
		testcases: make([]*Testcase, 0, 64),
		runID:     runID,
		startedAt: time.Now(),
		rules:     rules,
		listener:  opts.Listener,
		log:       log.WithField("run", runID),
	}
}

// RunID identifies this fuzz run
func (tb *Testbench) RunID() string {
	return tb.runID
}

// StartedAt returns the creation time of the testbench
func (tb *Testbench) StartedAt() time.Time {
	return tb.startedAt
}

// Rules returns the summary rules in effect
func (tb *Testbench) Rules() Rules {
	return tb.rules
}

// StartTestcase registers a new testcase with the advertised capability masks
// and makes it the active one. Malformed masks are stored as-is.
func (tb *Testbench) StartTestcase(eiaMask, eeaMask secalg.CapabilityMask) TestcaseID {
	tb.mu.Lock()
	id := TestcaseID(len(tb.testcases) + 1)
	tc := newTestcase(id, eiaMask, eeaMask, tb.rules, tb.listener, tb.log)
	tb.testcases = append(tb.testcases, tc)
	tb.active = id
	tb.mu.Unlock()

	tb.log.WithFields(logrus.Fields{
		"testcase": id,
		"eia_mask": eiaMask.Format(secalg.Integrity),
		"eea_mask": eeaMask.Format(secalg.Ciphering),
	}).Info("testcase started")

	if tb.listener != nil {
		tb.listener(types.Event{
			Type:       types.EventStart,
			TestcaseID: uint64(id),
			EIAMask:    uint8(eiaMask),
			EEAMask:    uint8(eeaMask),
			Timestamp:  time.Now(),
		})
	}
	return id
}

// Testcase looks up a testcase by identifier
func (tb *Testbench) Testcase(id TestcaseID) (*Testcase, bool) {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	if id == 0 || int(id) > len(tb.testcases) {
		return nil, false
	}
	return tb.testcases[id-1], true
}

// Handle returns the testcase for id, or ErrUnknownTestcase
func (tb *Testbench) Handle(id TestcaseID) (*Testcase, error) {
	tc, ok := tb.Testcase(id)
	if !ok {
		err := fmt.Errorf("%w: %d", ErrUnknownTestcase, id)
		tb.log.WithError(err).Error("report for unknown testcase")
		return nil, err
	}
	return tc, nil
}

// ActiveID returns the active testcase, 0 if none was started
func (tb *Testbench) ActiveID() TestcaseID {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	return tb.active
}

// Len returns the number of testcases
func (tb *Testbench) Len() int {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	return len(tb.testcases)
}

func (tb *Testbench) current() (*Testcase, error) {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	if tb.active == 0 {
		return nil, ErrNoActiveTestcase
	}
	return tb.testcases[tb.active-1], nil
}

// all copies the arena so iteration happens outside the registry lock
func (tb *Testbench) all() []*Testcase {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	out := make([]*Testcase, len(tb.testcases))
	copy(out, tb.testcases)
	return out
}

func (tb *Testbench) withCurrent(what string, fn func(tc *Testcase) error) error {
	tc, err := tb.current()
	if err != nil {
		tb.log.WithError(err).Errorf("%s without active testcase", what)
		return err
	}
	return fn(tc)
}

// --- NAS reporting ---

// ReportNAS records the arrival of a NAS message on the active testcase
func (tb *Testbench) ReportNAS() error {
	return tb.withCurrent("NAS message", (*Testcase).ReportNAS)
}

// ReportAttachAccept records an Attach Accept on the active testcase
func (tb *Testbench) ReportAttachAccept() error {
	return tb.withCurrent("attach accept", (*Testcase).ReportAttachAccept)
}

// ReportAttachReject records an Attach Reject on the active testcase
func (tb *Testbench) ReportAttachReject(cause uint8) error {
	return tb.withCurrent("attach reject", func(tc *Testcase) error {
		return tc.ReportAttachReject(cause)
	})
}

// ReportNASSecurityModeCommand records the NAS SMC choice on the active testcase
func (tb *Testbench) ReportNASSecurityModeCommand(eia, eea secalg.Algorithm) error {
	return tb.withCurrent("NAS security mode command", func(tc *Testcase) error {
		return tc.ReportNASSecurityModeCommand(eia, eea)
	})
}

// --- RRC reporting ---

// ReportRRCSecurityModeCommand records the RRC SMC choice on the active testcase
func (tb *Testbench) ReportRRCSecurityModeCommand(eia, eea secalg.Algorithm) error {
	return tb.withCurrent("RRC security mode command", func(tc *Testcase) error {
		return tc.ReportRRCSecurityModeCommand(eia, eea)
	})
}

// ReportRRCKey stores a derived key on the active testcase
func (tb *Testbench) ReportRRCKey(kt KeyType, key []byte) error {
	return tb.withCurrent("RRC key", func(tc *Testcase) error {
		return tc.ReportRRCKey(kt, key)
	})
}

// --- harness ---

// SetPCAP attaches capture paths to the active testcase
func (tb *Testbench) SetPCAP(nasPath, macPath string) error {
	return tb.withCurrent("pcap", func(tc *Testcase) error {
		return tc.SetPCAP(nasPath, macPath)
	})
}

// DeclareTimeout marks the active testcase as finished by the harness
func (tb *Testbench) DeclareTimeout() error {
	return tb.withCurrent("timeout", (*Testcase).DeclareTimeout)
}

// IsFinished queries the active testcase
func (tb *Testbench) IsFinished() (bool, error) {
	tc, err := tb.current()
	if err != nil {
		return false, err
	}
	return tc.IsFinished(), nil
}

// IsInteresting queries the active testcase
func (tb *Testbench) IsInteresting() (bool, error) {
	tc, err := tb.current()
	if err != nil {
		return false, err
	}
	return tc.IsInteresting(), nil
}

// IsConnected queries the active testcase
func (tb *Testbench) IsConnected() (bool, error) {
	tc, err := tb.current()
	if err != nil {
		return false, err
	}
	return tc.IsConnected(), nil
}

// --- aggregation ---

// Entry pairs a snapshot with its derived summary
type Entry struct {
	Snapshot Snapshot `json:"snapshot"`
	Summary  Summary  `json:"summary"`
}

// Findings explains the raised flags of the entry
func (e Entry) Findings() []Finding {
	return Findings(e.Snapshot, e.Summary)
}

// Render formats the entry as text
func (e Entry) Render() string {
	return Render(e.Snapshot, e.Summary)
}

// Entries returns every testcase in creation order
func (tb *Testbench) Entries() []Entry {
	tcs := tb.all()
	out := make([]Entry, len(tcs))
	for i, tc := range tcs {
		snap := tc.Snapshot()
		out[i] = Entry{Snapshot: snap, Summary: Summarize(snap, tb.rules)}
	}
	return out
}

// Snapshots returns a copy of every testcase in creation order
func (tb *Testbench) Snapshots() []Snapshot {
	tcs := tb.all()
	out := make([]Snapshot, len(tcs))
	for i, tc := range tcs {
		out[i] = tc.Snapshot()
	}
	return out
}

// Lookup returns the entry for id
func (tb *Testbench) Lookup(id TestcaseID) (Entry, bool) {
	tc, ok := tb.Testcase(id)
	if !ok {
		return Entry{}, false
	}
	snap := tc.Snapshot()
	return Entry{Snapshot: snap, Summary: Summarize(snap, tb.rules)}, true
}

// Query returns one consistent view of testcase id, or of the active
// testcase when id is 0. All flags come from a single snapshot.
func (tb *Testbench) Query(id TestcaseID) (Entry, error) {
	var (
		tc  *Testcase
		err error
	)
	if id == 0 {
		tc, err = tb.current()
	} else {
		tc, err = tb.Handle(id)
	}
	if err != nil {
		return Entry{}, err
	}
	snap := tc.Snapshot()
	return Entry{Snapshot: snap, Summary: Summarize(snap, tb.rules)}, nil
}

// Summary renders every testcase in creation order
func (tb *Testbench) Summary() string {
	var b strings.Builder
	for _, e := range tb.Entries() {
		b.WriteString(e.Render())
	}
	return b.String()
}

// CurrentSummary renders the active testcase only
func (tb *Testbench) CurrentSummary() (string, error) {
	tc, err := tb.current()
	if err != nil {
		return "", err
	}
	return tc.Render(), nil
}

// Result is the pass/fail verdict of the run: true iff no testcase is interesting
func (tb *Testbench) Result() bool {
	for _, tc := range tb.all() {
		if tc.IsInteresting() {
			return false
		}
	}
	return true
}

// Stats aggregates counters over all testcases
type Stats struct {
	RunID       string              `json:"run_id"`
	Total       int                 `json:"total"`
	Interesting int                 `json:"interesting"`
	Connected   int                 `json:"connected"`
	Finished    int                 `json:"finished"`
	Rejected    int                 `json:"rejected"`
	TimedOut    int                 `json:"timed_out"`
	Findings    map[FindingKind]int `json:"findings"`
	Pass        bool                `json:"pass"`
}

// Stats computes the aggregate counters
func (tb *Testbench) Stats() Stats {
	st := Stats{
		RunID:    tb.runID,
		Findings: make(map[FindingKind]int),
	}
	for _, e := range tb.Entries() {
		st.Total++
		if e.Summary.IsInteresting {
			st.Interesting++
		}
		if e.Snapshot.Connected() {
			st.Connected++
		}
		if e.Snapshot.Finished() {
			st.Finished++
		}
		if e.Snapshot.AttachReject {
			st.Rejected++
		}
		if e.Snapshot.TimedOut {
			st.TimedOut++
		}
		for _, f := range e.Findings() {
			st.Findings[f.Kind]++
		}
	}
	st.Pass = st.Interesting == 0
	return st
}
