package testbench

import (
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fluxfuzzer/ltesec/internal/secalg"
	"github.com/fluxfuzzer/ltesec/pkg/types"
	"github.com/sirupsen/logrus"
)

// TestcaseID identifies a testcase for the lifetime of a Testbench. IDs start at 1.
type TestcaseID uint64

// KeyType selects one of the key slots derived after the RRC Security Mode Command
type KeyType int

const (
	KeyRRCEnc KeyType = iota // K_RRCenc
	KeyRRCInt                // K_RRCint
	KeyUPEnc                 // K_UPenc
	numKeyTypes
)

// KeyLength is the size of every derived key
const KeyLength = 32

func (k KeyType) String() string {
	switch k {
	case KeyRRCEnc:
		return "rrc_enc"
	case KeyRRCInt:
		return "rrc_int"
	case KeyUPEnc:
		return "up_enc"
	default:
		return "unknown"
	}
}

// Valid reports whether k names a key slot
func (k KeyType) Valid() bool {
	return k >= KeyRRCEnc && k < numKeyTypes
}

// ParseKeyType accepts the names produced by KeyType.String
func ParseKeyType(s string) (KeyType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rrc_enc", "k_rrc_enc":
		return KeyRRCEnc, nil
	case "rrc_int", "k_rrc_int":
		return KeyRRCInt, nil
	case "up_enc", "k_up_enc":
		return KeyUPEnc, nil
	}
	return 0, fmt.Errorf("%w: unknown key type %q", ErrInvalidKey, s)
}

// Key is a 256-bit key slot
type Key [KeyLength]byte

// KeySet holds the write-once key slots, indexed by KeyType
type KeySet struct {
	Keys     [numKeyTypes]Key  `json:"-"`
	Reported [numKeyTypes]bool `json:"reported"`
}

// Get returns the key and whether it was reported
func (s KeySet) Get(k KeyType) (Key, bool) {
	if !k.Valid() {
		return Key{}, false
	}
	return s.Keys[k], s.Reported[k]
}

// Count returns how many slots are filled
func (s KeySet) Count() int {
	n := 0
	for _, r := range s.Reported {
		if r {
			n++
		}
	}
	return n
}

// NASState is the NAS half of the testcase lifecycle
type NASState int

const (
	NASCreated NASState = iota
	NASCapabilitiesKnown
	NASSecurityNegotiated
	NASAttachAccepted
	NASAttachRejected
)

func (s NASState) String() string {
	switch s {
	case NASCreated:
		return "Created"
	case NASCapabilitiesKnown:
		return "NasCapabilitiesKnown"
	case NASSecurityNegotiated:
		return "NasSecurityNegotiated"
	case NASAttachAccepted:
		return "AttachAccepted"
	case NASAttachRejected:
		return "AttachRejected"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further NAS transition is allowed
func (s NASState) Terminal() bool {
	return s == NASAttachAccepted || s == NASAttachRejected
}

// RRCState is the RRC half of the testcase lifecycle
type RRCState int

const (
	RRCCreated RRCState = iota
	RRCSecurityNegotiated
	RRCKeysDerived
)

func (s RRCState) String() string {
	switch s {
	case RRCCreated:
		return "Created"
	case RRCSecurityNegotiated:
		return "RrcSecurityNegotiated"
	case RRCKeysDerived:
		return "KeysDerived"
	default:
		return "Unknown"
	}
}

// Snapshot is a consistent copy of a testcase's recorded state
type Snapshot struct {
	ID        TestcaseID `json:"id"`
	CreatedAt time.Time  `json:"created_at"`

	EIACaps secalg.CapabilityMask `json:"eia_caps"`
	EEACaps secalg.CapabilityMask `json:"eea_caps"`

	NASEIA secalg.Algorithm `json:"nas_eia"`
	NASEEA secalg.Algorithm `json:"nas_eea"`
	RRCEIA secalg.Algorithm `json:"rrc_eia"`
	RRCEEA secalg.Algorithm `json:"rrc_eea"`

	Keys KeySet `json:"keys"`

	NASPcap string `json:"nas_pcap,omitempty"`
	MACPcap string `json:"mac_pcap,omitempty"`

	NASSecurityModeCommand bool  `json:"nas_security_mode_command"`
	AttachAccept           bool  `json:"attach_accept"`
	AttachReject           bool  `json:"attach_reject"`
	RejectCause            uint8 `json:"reject_cause,omitempty"`
	RRCSecurityModeCommand bool  `json:"rrc_security_mode_command"`
	TimedOut               bool  `json:"timed_out"`
	NASMessages            int   `json:"nas_messages"`
}

// NASState derives the NAS lifecycle state from the recorded flags
func (s Snapshot) NASState() NASState {
	switch {
	case s.AttachAccept:
		return NASAttachAccepted
	case s.AttachReject:
		return NASAttachRejected
	case s.NASSecurityModeCommand:
		return NASSecurityNegotiated
	default:
		return NASCapabilitiesKnown
	}
}

// RRCState derives the RRC lifecycle state from the recorded flags
func (s Snapshot) RRCState() RRCState {
	switch {
	case s.RRCSecurityModeCommand && s.Keys.Count() > 0:
		return RRCKeysDerived
	case s.RRCSecurityModeCommand:
		return RRCSecurityNegotiated
	default:
		return RRCCreated
	}
}

// Finished: NAS reached a terminal leaf and RRC security is set up, or the harness gave up
func (s Snapshot) Finished() bool {
	return s.TimedOut || (s.NASState().Terminal() && s.RRCSecurityModeCommand)
}

// Connected: attach accepted and RRC security negotiated
func (s Snapshot) Connected() bool {
	return s.AttachAccept && s.RRCSecurityModeCommand
}

// Testcase records the security-relevant events of one fuzz iteration.
// Every field is guarded by mu; readers work on Snapshot copies.
type Testcase struct {
	mu    sync.RWMutex
	state Snapshot

	rules  Rules
	notify Listener
	log    *logrus.Entry
}

func newTestcase(id TestcaseID, eiaMask, eeaMask secalg.CapabilityMask, rules Rules, notify Listener, log *logrus.Entry) *Testcase {
	return &Testcase{
		state: Snapshot{
			ID:        id,
			CreatedAt: time.Now(),
			EIACaps:   eiaMask,
			EEACaps:   eeaMask,
		},
		rules:  rules,
		notify: notify,
		log:    log.WithField("testcase", id),
	}
}

// ID returns the testcase identifier
func (tc *Testcase) ID() TestcaseID {
	return tc.state.ID
}

// Snapshot returns a copy of the recorded state
func (tc *Testcase) Snapshot() Snapshot {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.state
}

// Summary derives the anomaly flags from the current state
func (tc *Testcase) Summary() Summary {
	return Summarize(tc.Snapshot(), tc.rules)
}

// Render returns the human readable summary of this testcase
func (tc *Testcase) Render() string {
	snap := tc.Snapshot()
	return Render(snap, Summarize(snap, tc.rules))
}

// IsFinished reports whether both lifecycles reached their end
func (tc *Testcase) IsFinished() bool {
	return tc.Snapshot().Finished()
}

// IsConnected reports whether the stack reached a secured, connected state
func (tc *Testcase) IsConnected() bool {
	return tc.Snapshot().Connected()
}

// IsInteresting reports whether the testcase warrants manual review
func (tc *Testcase) IsInteresting() bool {
	return tc.Summary().IsInteresting
}

// update applies fn under the write lock, then logs and notifies outside of it
func (tc *Testcase) update(what string, ev types.Event, fn func(s *Snapshot) error) error {
	tc.mu.Lock()
	err := fn(&tc.state)
	tc.mu.Unlock()

	if err != nil {
		err = fmt.Errorf("testcase %d: %s: %w", tc.state.ID, what, err)
		tc.log.WithError(err).Error("rejected report")
		return err
	}

	tc.log.WithField("event", ev.Type).Debug(what)
	if tc.notify != nil {
		ev.TestcaseID = uint64(tc.state.ID)
		ev.Timestamp = time.Now()
		tc.notify(ev)
	}
	return nil
}

// ReportNAS records the arrival of any NAS message
func (tc *Testcase) ReportNAS() error {
	return tc.update("NAS message", types.Event{Type: types.EventNAS}, func(s *Snapshot) error {
		s.NASMessages++
		return nil
	})
}

// ReportNASSecurityModeCommand records the algorithms selected by the NAS SMC
func (tc *Testcase) ReportNASSecurityModeCommand(eia, eea secalg.Algorithm) error {
	ev := types.Event{Type: types.EventNASSMC, EIA: uint8(eia), EEA: uint8(eea)}
	return tc.update("NAS security mode command", ev, func(s *Snapshot) error {
		if s.NASSecurityModeCommand {
			return ErrAlreadyReported
		}
		if s.NASState().Terminal() {
			return ErrTerminalState
		}
		s.NASEIA = eia
		s.NASEEA = eea
		s.NASSecurityModeCommand = true
		return nil
	})
}

// ReportAttachAccept records the NAS Attach Accept
func (tc *Testcase) ReportAttachAccept() error {
	return tc.update("attach accept", types.Event{Type: types.EventAttachAccept}, func(s *Snapshot) error {
		if s.NASState().Terminal() {
			return ErrTerminalState
		}
		s.AttachAccept = true
		return nil
	})
}

// ReportAttachReject records the NAS Attach Reject and its EMM cause
func (tc *Testcase) ReportAttachReject(cause uint8) error {
	ev := types.Event{Type: types.EventAttachReject, Cause: cause}
	return tc.update("attach reject", ev, func(s *Snapshot) error {
		if s.NASState().Terminal() {
			return ErrTerminalState
		}
		s.AttachReject = true
		s.RejectCause = cause
		return nil
	})
}

// ReportRRCSecurityModeCommand records the algorithms selected by the RRC SMC
func (tc *Testcase) ReportRRCSecurityModeCommand(eia, eea secalg.Algorithm) error {
	ev := types.Event{Type: types.EventRRCSMC, EIA: uint8(eia), EEA: uint8(eea)}
	return tc.update("RRC security mode command", ev, func(s *Snapshot) error {
		if s.RRCSecurityModeCommand {
			return ErrAlreadyReported
		}
		s.RRCEIA = eia
		s.RRCEEA = eea
		s.RRCSecurityModeCommand = true
		return nil
	})
}

// ReportRRCKey stores one derived key. key must be exactly KeyLength bytes.
func (tc *Testcase) ReportRRCKey(kt KeyType, key []byte) error {
	ev := types.Event{Type: types.EventRRCKey, KeyType: kt.String(), Key: hex.EncodeToString(key)}
	return tc.update("RRC key "+kt.String(), ev, func(s *Snapshot) error {
		if !kt.Valid() {
			return fmt.Errorf("%w: key type %d", ErrInvalidKey, int(kt))
		}
		if len(key) != KeyLength {
			return fmt.Errorf("%w: %d bytes, want %d", ErrInvalidKey, len(key), KeyLength)
		}
		if s.Keys.Reported[kt] {
			return ErrAlreadyReported
		}
		copy(s.Keys.Keys[kt][:], key)
		s.Keys.Reported[kt] = true
		return nil
	})
}

// SetPCAP attaches capture file paths. Later calls replace earlier paths.
func (tc *Testcase) SetPCAP(nasPath, macPath string) error {
	ev := types.Event{Type: types.EventPCAP, NASPcap: nasPath, MACPcap: macPath}
	return tc.update("pcap", ev, func(s *Snapshot) error {
		s.NASPcap = nasPath
		s.MACPcap = macPath
		return nil
	})
}

// DeclareTimeout marks the testcase finished on behalf of the harness;
// the testbench itself never times out.
func (tc *Testcase) DeclareTimeout() error {
	return tc.update("timeout", types.Event{Type: types.EventTimeout}, func(s *Snapshot) error {
		if s.TimedOut {
			return ErrAlreadyReported
		}
		if s.Finished() {
			return ErrTerminalState
		}
		s.TimedOut = true
		return nil
	})
}
