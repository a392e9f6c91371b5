// Package scenario replays scripted stack behaviour into a testbench.
// A scenario is a YAML list of testcases, each advertising capability masks and
// then reporting a sequence of NAS/RRC events; a trace is the JSONL log of a real run.
package scenario

import (
	"fmt"

	"github.com/fluxfuzzer/ltesec/internal/testbench"
	"github.com/fluxfuzzer/ltesec/pkg/types"
)

// Scenario represents a complete replay file
type Scenario struct {
	Name        string     `yaml:"name" json:"name"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	Version     string     `yaml:"version,omitempty" json:"version,omitempty"`
	Testcases   []Testcase `yaml:"testcases" json:"testcases"`

	// Source is the file the scenario was read from, empty for in-memory data
	Source string `yaml:"-" json:"source,omitempty"`
}

// Testcase is one scripted fuzz iteration
type Testcase struct {
	Name    string       `yaml:"name" json:"name"`
	EIAMask uint8        `yaml:"eia_mask" json:"eia_mask"`
	EEAMask uint8        `yaml:"eea_mask" json:"eea_mask"`
	PCAP    *PCAPConfig  `yaml:"pcap,omitempty" json:"pcap,omitempty"`
	Events  []Step       `yaml:"events" json:"events"`
	Expect  *Expectation `yaml:"expect,omitempty" json:"expect,omitempty"`
}

// PCAPConfig holds the capture paths attached to a testcase
type PCAPConfig struct {
	NAS string `yaml:"nas" json:"nas"`
	MAC string `yaml:"mac" json:"mac"`
}

// Step is a single report. Exactly one field must be set.
type Step struct {
	NAS          *struct{}      `yaml:"nas,omitempty" json:"nas,omitempty"`
	NASSMC       *AlgorithmPair `yaml:"nas_smc,omitempty" json:"nas_smc,omitempty"`
	AttachAccept *struct{}      `yaml:"attach_accept,omitempty" json:"attach_accept,omitempty"`
	AttachReject *RejectStep    `yaml:"attach_reject,omitempty" json:"attach_reject,omitempty"`
	RRCSMC       *AlgorithmPair `yaml:"rrc_smc,omitempty" json:"rrc_smc,omitempty"`
	RRCKey       *KeyStep       `yaml:"rrc_key,omitempty" json:"rrc_key,omitempty"`
	Timeout      *struct{}      `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// AlgorithmPair is the (EIA, EEA) choice of a security mode command
type AlgorithmPair struct {
	EIA uint8 `yaml:"eia" json:"eia"`
	EEA uint8 `yaml:"eea" json:"eea"`
}

// RejectStep carries the EMM cause of an attach reject
type RejectStep struct {
	Cause uint8 `yaml:"cause" json:"cause"`
}

// KeyStep carries one derived key, hex encoded
type KeyStep struct {
	Type string `yaml:"type" json:"type"`
	Key  string `yaml:"key" json:"key"`
}

// Expectation is checked against the testcase once all its events are replayed.
// Unset fields are not checked, except Errors which defaults to zero rejected reports.
type Expectation struct {
	Interesting *bool    `yaml:"interesting,omitempty" json:"interesting,omitempty"`
	Errors      *int     `yaml:"errors,omitempty" json:"errors,omitempty"`
	Connected   *bool    `yaml:"connected,omitempty" json:"connected,omitempty"`
	Finished    *bool    `yaml:"finished,omitempty" json:"finished,omitempty"`
	Findings    []string `yaml:"findings,omitempty" json:"findings,omitempty"`
}

// Event converts the step into the shared event model
func (s Step) Event() (types.Event, error) {
	var (
		ev  types.Event
		set int
	)
	if s.NAS != nil {
		ev = types.Event{Type: types.EventNAS}
		set++
	}
	if s.NASSMC != nil {
		ev = types.Event{Type: types.EventNASSMC, EIA: s.NASSMC.EIA, EEA: s.NASSMC.EEA}
		set++
	}
	if s.AttachAccept != nil {
		ev = types.Event{Type: types.EventAttachAccept}
		set++
	}
	if s.AttachReject != nil {
		ev = types.Event{Type: types.EventAttachReject, Cause: s.AttachReject.Cause}
		set++
	}
	if s.RRCSMC != nil {
		ev = types.Event{Type: types.EventRRCSMC, EIA: s.RRCSMC.EIA, EEA: s.RRCSMC.EEA}
		set++
	}
	if s.RRCKey != nil {
		ev = types.Event{Type: types.EventRRCKey, KeyType: s.RRCKey.Type, Key: s.RRCKey.Key}
		set++
	}
	if s.Timeout != nil {
		ev = types.Event{Type: types.EventTimeout}
		set++
	}

	switch set {
	case 0:
		return ev, fmt.Errorf("empty event")
	case 1:
		return ev, nil
	default:
		return ev, fmt.Errorf("event sets %d actions, want exactly one", set)
	}
}

// Validate checks if the scenario is valid
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario name is required")
	}

	if len(s.Testcases) == 0 {
		return fmt.Errorf("scenario must have at least one testcase")
	}

	for i, tc := range s.Testcases {
		if err := tc.Validate(); err != nil {
			return fmt.Errorf("testcase %d (%s): %w", i, tc.Name, err)
		}
	}

	return nil
}

// Validate checks if the testcase script is valid
func (t *Testcase) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("testcase name is required")
	}

	for i, step := range t.Events {
		ev, err := step.Event()
		if err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
		if ev.Type == types.EventRRCKey {
			if _, err := testbench.ParseKeyType(ev.KeyType); err != nil {
				return fmt.Errorf("event %d: %w", i, err)
			}
			if _, err := testbench.DecodeKey(ev.Key); err != nil {
				return fmt.Errorf("event %d: %w", i, err)
			}
		}
	}

	if t.Expect != nil {
		for _, f := range t.Expect.Findings {
			if !knownFinding(f) {
				return fmt.Errorf("unknown finding in expectation: %s", f)
			}
		}
	}

	return nil
}

func knownFinding(name string) bool {
	for _, k := range testbench.AllFindingKinds {
		if string(k) == name {
			return true
		}
	}
	return false
}

// TestcaseCount returns the number of testcases across scenarios
func TestcaseCount(scenarios []*Scenario) int {
	n := 0
	for _, s := range scenarios {
		n += len(s.Testcases)
	}
	return n
}
