package testbench

import (
	"encoding/hex"
	"fmt"

	"github.com/fluxfuzzer/ltesec/internal/secalg"
	"github.com/fluxfuzzer/ltesec/pkg/types"
)

// EventReporter accepts every per-testcase event. Both *Testbench (active
// testcase) and *Testcase (explicit testcase) implement it.
type EventReporter interface {
	NASReporter
	RRCReporter
	SetPCAP(nasPath, macPath string) error
	DeclareTimeout() error
}

var (
	_ EventReporter = (*Testbench)(nil)
	_ EventReporter = (*Testcase)(nil)
)

// Apply routes a decoded event to r. EventStart needs the registry and is rejected here.
func Apply(r EventReporter, ev types.Event) error {
	switch ev.Type {
	case types.EventNAS:
		return r.ReportNAS()
	case types.EventNASSMC:
		return r.ReportNASSecurityModeCommand(secalg.Algorithm(ev.EIA), secalg.Algorithm(ev.EEA))
	case types.EventAttachAccept:
		return r.ReportAttachAccept()
	case types.EventAttachReject:
		return r.ReportAttachReject(ev.Cause)
	case types.EventRRCSMC:
		return r.ReportRRCSecurityModeCommand(secalg.Algorithm(ev.EIA), secalg.Algorithm(ev.EEA))
	case types.EventRRCKey:
		kt, err := ParseKeyType(ev.KeyType)
		if err != nil {
			return err
		}
		key, err := DecodeKey(ev.Key)
		if err != nil {
			return err
		}
		return r.ReportRRCKey(kt, key)
	case types.EventPCAP:
		return r.SetPCAP(ev.NASPcap, ev.MACPcap)
	case types.EventTimeout:
		return r.DeclareTimeout()
	case types.EventStart:
		return fmt.Errorf("start event cannot be applied to a testcase")
	default:
		return fmt.Errorf("unknown event type: %q", ev.Type)
	}
}

// DecodeKey parses a hex encoded key of exactly KeyLength bytes
func DecodeKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(key) != KeyLength {
		return nil, fmt.Errorf("%w: %d bytes, want %d", ErrInvalidKey, len(key), KeyLength)
	}
	return key, nil
}
