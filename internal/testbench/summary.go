package testbench

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/fluxfuzzer/ltesec/internal/secalg"
	"github.com/fluxfuzzer/ltesec/pkg/types"
)

// Rules parameterise the summary engine
type Rules struct {
	Policy secalg.Policy `yaml:"policy" json:"policy"`

	// ExpectedRejectCauses are the EMM causes a correct network sends when it
	// refuses a fuzzed capability set. Any other reject without success is interesting.
	ExpectedRejectCauses []uint8 `yaml:"expected_reject_causes" json:"expected_reject_causes"`
}

// DefaultRules accepts rejects for security capability mismatch and SMC rejection
func DefaultRules() Rules {
	return Rules{
		Policy: secalg.DefaultPolicy(),
		ExpectedRejectCauses: []uint8{
			CauseUESecurityCapabilitiesMismatch,
			CauseSecurityModeRejected,
		},
	}
}

// ExpectedReject reports whether cause is in the expected set
func (r Rules) ExpectedReject(cause uint8) bool {
	for _, c := range r.ExpectedRejectCauses {
		if c == cause {
			return true
		}
	}
	return false
}

// Summary holds the verdict flags derived from a testcase. It is never stored.
type Summary struct {
	// NULL or spare algorithm selected in an SMC
	InsecureNASEIAChoice bool `json:"insecure_nas_eia_choice"`
	InsecureNASEEAChoice bool `json:"insecure_nas_eea_choice"`
	InsecureRRCEIAChoice bool `json:"insecure_rrc_eia_choice"`
	InsecureRRCEEAChoice bool `json:"insecure_rrc_eea_choice"`

	// algorithm selected that the UE never advertised
	NASSecCapMismatch bool `json:"nas_sec_cap_mismatch"`
	RRCSecCapMismatch bool `json:"rrc_sec_cap_mismatch"`

	// the UE advertised reserved capability bits
	SpareValues bool `json:"spare_values"`

	// attach rejected with a cause outside the expected set
	UnexpectedReject bool `json:"unexpected_reject"`

	Success       bool `json:"success"`
	IsInteresting bool `json:"is_interesting"`
}

// Interesting is the OR of every anomaly flag, plus an unexpected reject
// when the stack never reached a secured state
func (s Summary) Interesting() bool {
	return s.InsecureNASEIAChoice ||
		s.InsecureNASEEAChoice ||
		s.InsecureRRCEIAChoice ||
		s.InsecureRRCEEAChoice ||
		s.NASSecCapMismatch ||
		s.RRCSecCapMismatch ||
		s.SpareValues ||
		(!s.Success && s.UnexpectedReject)
}

// Summarize derives the verdict from a snapshot. It has no side effects.
// Choices only count once their SMC was reported.
func Summarize(snap Snapshot, rules Rules) Summary {
	var s Summary
	p := rules.Policy

	if snap.NASSecurityModeCommand {
		s.InsecureNASEIAChoice = p.InsecureChoice(secalg.Integrity, snap.NASEIA)
		s.InsecureNASEEAChoice = p.InsecureChoice(secalg.Ciphering, snap.NASEEA)
		s.NASSecCapMismatch = secalg.Mismatch(snap.EIACaps, snap.NASEIA) ||
			secalg.Mismatch(snap.EEACaps, snap.NASEEA)
	}
	if snap.RRCSecurityModeCommand {
		s.InsecureRRCEIAChoice = p.InsecureChoice(secalg.Integrity, snap.RRCEIA)
		s.InsecureRRCEEAChoice = p.InsecureChoice(secalg.Ciphering, snap.RRCEEA)
		s.RRCSecCapMismatch = secalg.Mismatch(snap.EIACaps, snap.RRCEIA) ||
			secalg.Mismatch(snap.EEACaps, snap.RRCEEA)
	}

	s.SpareValues = snap.EIACaps.HasSpare() || snap.EEACaps.HasSpare()
	s.Success = snap.AttachAccept && snap.RRCSecurityModeCommand
	s.UnexpectedReject = snap.AttachReject && !rules.ExpectedReject(snap.RejectCause)
	s.IsInteresting = s.Interesting()
	return s
}

// FindingKind names one raised summary flag
type FindingKind string

const (
	FindingInsecureNASEIA   FindingKind = "insecure_nas_eia_choice"
	FindingInsecureNASEEA   FindingKind = "insecure_nas_eea_choice"
	FindingInsecureRRCEIA   FindingKind = "insecure_rrc_eia_choice"
	FindingInsecureRRCEEA   FindingKind = "insecure_rrc_eea_choice"
	FindingNASCapMismatch   FindingKind = "nas_sec_cap_mismatch"
	FindingRRCCapMismatch   FindingKind = "rrc_sec_cap_mismatch"
	FindingSpareValues      FindingKind = "spare_values"
	FindingUnexpectedReject FindingKind = "unexpected_reject"
)

// AllFindingKinds lists the kinds in report order
var AllFindingKinds = []FindingKind{
	FindingNASCapMismatch, FindingRRCCapMismatch,
	FindingInsecureNASEIA, FindingInsecureNASEEA, FindingInsecureRRCEIA, FindingInsecureRRCEEA,
	FindingSpareValues, FindingUnexpectedReject,
}

// Severity ranks a kind: protocol violations above policy violations
func (k FindingKind) Severity() types.Severity {
	switch k {
	case FindingNASCapMismatch, FindingRRCCapMismatch:
		return types.Critical
	case FindingInsecureNASEIA, FindingInsecureNASEEA, FindingInsecureRRCEIA, FindingInsecureRRCEEA:
		return types.High
	case FindingSpareValues:
		return types.Medium
	default:
		return types.Low
	}
}

// Finding is a raised flag with severity and explanation
type Finding struct {
	Kind        FindingKind    `json:"kind"`
	Severity    types.Severity `json:"severity"`
	Description string         `json:"description"`
}

// Findings lists the raised flags of sum, explained against snap.
// A capability mismatch is a protocol violation by the network; an insecure but
// advertised choice is a policy violation.
func Findings(snap Snapshot, sum Summary) []Finding {
	var out []Finding
	add := func(kind FindingKind, format string, args ...interface{}) {
		out = append(out, Finding{Kind: kind, Severity: kind.Severity(), Description: fmt.Sprintf(format, args...)})
	}

	if sum.NASSecCapMismatch {
		add(FindingNASCapMismatch,
			"protocol violation: NAS SMC selected %s/%s outside advertised EIA %s / EEA %s",
			snap.NASEIA.Name(secalg.Integrity), snap.NASEEA.Name(secalg.Ciphering),
			snap.EIACaps.Format(secalg.Integrity), snap.EEACaps.Format(secalg.Ciphering))
	}
	if sum.RRCSecCapMismatch {
		add(FindingRRCCapMismatch,
			"protocol violation: RRC SMC selected %s/%s outside advertised EIA %s / EEA %s",
			snap.RRCEIA.Name(secalg.Integrity), snap.RRCEEA.Name(secalg.Ciphering),
			snap.EIACaps.Format(secalg.Integrity), snap.EEACaps.Format(secalg.Ciphering))
	}
	if sum.InsecureNASEIAChoice {
		add(FindingInsecureNASEIA, "policy violation: NAS integrity %s selected",
			snap.NASEIA.Name(secalg.Integrity))
	}
	if sum.InsecureNASEEAChoice {
		add(FindingInsecureNASEEA, "policy violation: NAS ciphering %s selected",
			snap.NASEEA.Name(secalg.Ciphering))
	}
	if sum.InsecureRRCEIAChoice {
		add(FindingInsecureRRCEIA, "policy violation: RRC integrity %s selected",
			snap.RRCEIA.Name(secalg.Integrity))
	}
	if sum.InsecureRRCEEAChoice {
		add(FindingInsecureRRCEEA, "policy violation: RRC ciphering %s selected",
			snap.RRCEEA.Name(secalg.Ciphering))
	}
	if sum.SpareValues {
		add(FindingSpareValues, "UE advertised spare capability bits: EIA %s, EEA %s",
			snap.EIACaps.Format(secalg.Integrity), snap.EEACaps.Format(secalg.Ciphering))
	}
	if sum.UnexpectedReject && !sum.Success {
		add(FindingUnexpectedReject, "attach rejected with unexpected cause %s",
			CauseString(snap.RejectCause))
	}
	return out
}

// Render formats a testcase for the text summary
func Render(snap Snapshot, sum Summary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "=== Testcase %d ===\n", snap.ID)
	fmt.Fprintf(&b, "  capabilities: EIA %s, EEA %s\n",
		snap.EIACaps.Format(secalg.Integrity), snap.EEACaps.Format(secalg.Ciphering))
	fmt.Fprintf(&b, "  NAS SMC:      %s\n", renderChoice(snap.NASSecurityModeCommand, snap.NASEIA, snap.NASEEA))
	fmt.Fprintf(&b, "  RRC SMC:      %s\n", renderChoice(snap.RRCSecurityModeCommand, snap.RRCEIA, snap.RRCEEA))
	fmt.Fprintf(&b, "  outcome:      %s\n", renderOutcome(snap))
	fmt.Fprintf(&b, "  state:        NAS %s, RRC %s, %d NAS messages\n",
		snap.NASState(), snap.RRCState(), snap.NASMessages)
	fmt.Fprintf(&b, "  keys:         %s\n", renderKeys(snap.Keys))
	if snap.NASPcap != "" || snap.MACPcap != "" {
		fmt.Fprintf(&b, "  pcap:         nas=%s mac=%s\n", snap.NASPcap, snap.MACPcap)
	}

	verdict := "uninteresting"
	if sum.IsInteresting {
		verdict = "INTERESTING"
	}
	fmt.Fprintf(&b, "  verdict:      %s (success=%t)\n", verdict, sum.Success)

	for _, f := range Findings(snap, sum) {
		fmt.Fprintf(&b, "    - [%s] %s\n", f.Severity, f.Description)
	}
	return b.String()
}

func renderChoice(seen bool, eia, eea secalg.Algorithm) string {
	if !seen {
		return "not observed"
	}
	return eia.Name(secalg.Integrity) + " / " + eea.Name(secalg.Ciphering)
}

func renderOutcome(snap Snapshot) string {
	var parts []string
	switch {
	case snap.AttachAccept:
		parts = append(parts, "attach accepted")
	case snap.AttachReject:
		parts = append(parts, "attach rejected ("+CauseString(snap.RejectCause)+")")
	default:
		parts = append(parts, "no attach result")
	}
	if snap.Connected() {
		parts = append(parts, "connected")
	}
	if snap.TimedOut {
		parts = append(parts, "timed out")
	} else if snap.Finished() {
		parts = append(parts, "finished")
	}
	return strings.Join(parts, ", ")
}

func renderKeys(keys KeySet) string {
	parts := make([]string, 0, numKeyTypes)
	for k := KeyRRCEnc; k < numKeyTypes; k++ {
		key, ok := keys.Get(k)
		if !ok {
			parts = append(parts, k.String()+"=-")
			continue
		}
		parts = append(parts, k.String()+"="+hex.EncodeToString(key[:4])+"..")
	}
	return strings.Join(parts, " ")
}
