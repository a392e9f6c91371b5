// Package types defines the event model shared by the replayer, the HTTP API and the remote client.
package types

import (
	"fmt"
	"time"
)

// EventType identifies a report emitted by the protocol stack under test
type EventType string

const (
	EventStart        EventType = "start"         // new testcase with capability masks
	EventNAS          EventType = "nas"           // any NAS message (liveness only)
	EventNASSMC       EventType = "nas_smc"       // NAS Security Mode Command
	EventAttachAccept EventType = "attach_accept" // NAS Attach Accept
	EventAttachReject EventType = "attach_reject" // NAS Attach Reject with EMM cause
	EventRRCSMC       EventType = "rrc_smc"       // RRC Security Mode Command
	EventRRCKey       EventType = "rrc_key"       // derived RRC/UP key
	EventPCAP         EventType = "pcap"          // capture file paths
	EventTimeout      EventType = "timeout"       // harness gave up waiting
)

// AllEventTypes lists every known event type
var AllEventTypes = []EventType{
	EventStart, EventNAS, EventNASSMC, EventAttachAccept, EventAttachReject,
	EventRRCSMC, EventRRCKey, EventPCAP, EventTimeout,
}

// Valid reports whether t is a known event type
func (t EventType) Valid() bool {
	for _, known := range AllEventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Severity indicates how urgently a finding needs manual review
type Severity int

const (
	Info Severity = iota
	Low
	Medium
	High
	Critical
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	case Critical:
		return "critical"
	default:
		return "unknown"
	}
}

// MarshalText encodes the severity by name
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a severity name
func (s *Severity) UnmarshalText(text []byte) error {
	for v := Info; v <= Critical; v++ {
		if v.String() == string(text) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown severity: %q", text)
}

// Event is a single report from the stack, routed to one testcase.
// Only the fields relevant to Type are meaningful.
type Event struct {
	Type       EventType `json:"type" yaml:"type"`
	TestcaseID uint64    `json:"testcase_id,omitempty" yaml:"testcase_id,omitempty"`
	EIAMask    uint8     `json:"eia_mask,omitempty" yaml:"eia_mask,omitempty"`
	EEAMask    uint8     `json:"eea_mask,omitempty" yaml:"eea_mask,omitempty"`
	EIA        uint8     `json:"eia,omitempty" yaml:"eia,omitempty"`
	EEA        uint8     `json:"eea,omitempty" yaml:"eea,omitempty"`
	Cause      uint8     `json:"cause,omitempty" yaml:"cause,omitempty"`
	KeyType    string    `json:"key_type,omitempty" yaml:"key_type,omitempty"`
	Key        string    `json:"key,omitempty" yaml:"key,omitempty"` // hex encoded
	NASPcap    string    `json:"nas_pcap,omitempty" yaml:"nas_pcap,omitempty"`
	MACPcap    string    `json:"mac_pcap,omitempty" yaml:"mac_pcap,omitempty"`
	Timestamp  time.Time `json:"timestamp" yaml:"-"`
}
