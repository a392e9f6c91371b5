package testbench

import (
	"github.com/fluxfuzzer/ltesec/internal/secalg"
	"github.com/fluxfuzzer/ltesec/pkg/types"
)

// NASReporter is called by the NAS layer of the stack under test
type NASReporter interface {
	ReportNAS() error
	ReportAttachAccept() error
	ReportAttachReject(cause uint8) error
	ReportNASSecurityModeCommand(eia, eea secalg.Algorithm) error
}

// RRCReporter is called by the RRC layer of the stack under test
type RRCReporter interface {
	ReportRRCSecurityModeCommand(eia, eea secalg.Algorithm) error
	ReportRRCKey(kt KeyType, key []byte) error
}

// StackQuery lets the stack decide when to stop driving the active testcase
type StackQuery interface {
	IsFinished() (bool, error)
	IsInteresting() (bool, error)
	IsConnected() (bool, error)
}

// Harness is the surface used by the run harness
type Harness interface {
	StartTestcase(eiaMask, eeaMask secalg.CapabilityMask) TestcaseID
	SetPCAP(nasPath, macPath string) error
	Summary() string
	CurrentSummary() (string, error)
	Result() bool
}

// Listener receives every accepted report. It is called outside all testbench
// locks, from the reporting goroutine.
type Listener func(ev types.Event)

// MultiListener fans an event out to every non-nil listener in order
func MultiListener(ls ...Listener) Listener {
	var out []Listener
	for _, l := range ls {
		if l != nil {
			out = append(out, l)
		}
	}
	return func(ev types.Event) {
		for _, l := range out {
			l(ev)
		}
	}
}

var (
	_ NASReporter = (*Testbench)(nil)
	_ RRCReporter = (*Testbench)(nil)
	_ StackQuery  = (*Testbench)(nil)
	_ Harness     = (*Testbench)(nil)

	_ NASReporter = (*Testcase)(nil)
	_ RRCReporter = (*Testcase)(nil)
)
