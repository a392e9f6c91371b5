// Package triage groups interesting testcases that failed the same way, so a
// fuzz campaign with thousands of hits reduces to a handful of distinct bugs.
//
// Testcases are first grouped by an exact signature (raised findings plus the
// negotiated algorithms). Groups whose TLSH fingerprints lie within
// MergeThreshold of each other are then merged.
package triage

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fluxfuzzer/ltesec/internal/secalg"
	"github.com/fluxfuzzer/ltesec/internal/testbench"
	"github.com/fluxfuzzer/ltesec/pkg/types"
	"github.com/glaslos/tlsh"
)

// Config holds configuration for triage
type Config struct {
	// MinDataSize is the fingerprint length fed to TLSH; shorter fingerprints are repeated
	MinDataSize int

	// MergeThreshold is the maximum TLSH distance for two groups to merge. 0 disables merging.
	MergeThreshold int

	// InterestingOnly skips testcases without raised flags
	InterestingOnly bool
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		MinDataSize:     256,
		MergeThreshold:  30,
		InterestingOnly: true,
	}
}

// Cluster is a set of testcases that most likely share a root cause
type Cluster struct {
	ID             int                     `json:"id"`
	Signature      string                  `json:"signature"`
	Hash           string                  `json:"hash,omitempty"`
	Representative testbench.TestcaseID    `json:"representative"`
	Members        []testbench.TestcaseID  `json:"members"`
	Kinds          []testbench.FindingKind `json:"kinds"`
	Severity       types.Severity          `json:"severity"`
}

// Size returns the number of member testcases
func (c Cluster) Size() int {
	return len(c.Members)
}

// Triager clusters testbench entries
type Triager struct {
	config *Config
}

// New creates a new Triager
func New(config *Config) *Triager {
	if config == nil {
		config = DefaultConfig()
	}
	return &Triager{config: config}
}

// Signature is the exact grouping key of an entry
func Signature(e testbench.Entry) string {
	var kinds []string
	for _, f := range e.Findings() {
		kinds = append(kinds, string(f.Kind))
	}
	if len(kinds) == 0 {
		kinds = append(kinds, "clean")
	}
	s := e.Snapshot
	return fmt.Sprintf("%s|nas=%s|rrc=%s|%s",
		strings.Join(kinds, "+"),
		choice(s.NASSecurityModeCommand, s.NASEIA, s.NASEEA),
		choice(s.RRCSecurityModeCommand, s.RRCEIA, s.RRCEEA),
		s.NASState())
}

func choice(seen bool, eia, eea secalg.Algorithm) string {
	if !seen {
		return "-"
	}
	return eia.Name(secalg.Integrity) + "/" + eea.Name(secalg.Ciphering)
}

// Fingerprint is the text hashed with TLSH. It leaves out the testcase ID and
// timestamps so that equivalent failures hash alike.
func (t *Triager) Fingerprint(e testbench.Entry) []byte {
	s := e.Snapshot
	var b strings.Builder
	fmt.Fprintf(&b, "capabilities eia %s eea %s\n", s.EIACaps.Format(secalg.Integrity), s.EEACaps.Format(secalg.Ciphering))
	fmt.Fprintf(&b, "nas security mode command %s\n", choice(s.NASSecurityModeCommand, s.NASEIA, s.NASEEA))
	fmt.Fprintf(&b, "rrc security mode command %s\n", choice(s.RRCSecurityModeCommand, s.RRCEIA, s.RRCEEA))
	fmt.Fprintf(&b, "lifecycle %s %s connected=%t timed_out=%t\n", s.NASState(), s.RRCState(), s.Connected(), s.TimedOut)
	if s.AttachReject {
		fmt.Fprintf(&b, "attach reject %s\n", testbench.CauseString(s.RejectCause))
	}
	for _, f := range e.Findings() {
		fmt.Fprintf(&b, "finding %s severity %s: %s\n", f.Kind, f.Severity, f.Description)
	}

	base := b.String()
	for b.Len() < t.config.MinDataSize {
		b.WriteString(base)
	}
	return []byte(b.String())
}

type group struct {
	cluster Cluster
	hash    *tlsh.TLSH
}

// Cluster groups entries. Clusters are ordered by severity, then size, then
// representative ID; members are in ID order.
func (t *Triager) Cluster(entries []testbench.Entry) []Cluster {
	var (
		groups []*group
		bySig  = make(map[string]*group)
	)

	for _, e := range entries {
		if t.config.InterestingOnly && !e.Summary.IsInteresting {
			continue
		}
		sig := Signature(e)
		g, ok := bySig[sig]
		if !ok {
			g = &group{cluster: Cluster{
				Signature:      sig,
				Representative: e.Snapshot.ID,
			}}
			for _, f := range e.Findings() {
				g.cluster.Kinds = append(g.cluster.Kinds, f.Kind)
				if f.Severity > g.cluster.Severity {
					g.cluster.Severity = f.Severity
				}
			}
			if h, err := t.hash(e); err == nil {
				g.hash = h
				g.cluster.Hash = h.String()
			}
			bySig[sig] = g
			groups = append(groups, g)
		}
		g.cluster.Members = append(g.cluster.Members, e.Snapshot.ID)
	}

	if t.config.MergeThreshold > 0 {
		groups = t.merge(groups)
	}

	out := make([]Cluster, len(groups))
	for i, g := range groups {
		c := g.cluster
		sort.Slice(c.Members, func(a, b int) bool { return c.Members[a] < c.Members[b] })
		c.Representative = c.Members[0]
		out[i] = c
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Severity != out[j].Severity {
			return out[i].Severity > out[j].Severity
		}
		if out[i].Size() != out[j].Size() {
			return out[i].Size() > out[j].Size()
		}
		return out[i].Representative < out[j].Representative
	})
	for i := range out {
		out[i].ID = i + 1
	}
	return out
}

// merge folds each group into the first earlier group within MergeThreshold
func (t *Triager) merge(groups []*group) []*group {
	var kept []*group
	for _, g := range groups {
		var into *group
		if g.hash != nil {
			for _, k := range kept {
				if k.hash != nil && k.hash.Diff(g.hash) <= t.config.MergeThreshold {
					into = k
					break
				}
			}
		}
		if into == nil {
			kept = append(kept, g)
			continue
		}
		into.cluster.Members = append(into.cluster.Members, g.cluster.Members...)
		into.cluster.Kinds = unionKinds(into.cluster.Kinds, g.cluster.Kinds)
		if g.cluster.Severity > into.cluster.Severity {
			into.cluster.Severity = g.cluster.Severity
		}
	}
	return kept
}

func (t *Triager) hash(e testbench.Entry) (*tlsh.TLSH, error) {
	data := t.Fingerprint(e)
	if len(data) < t.config.MinDataSize {
		return nil, errors.New("fingerprint too small for TLSH computation")
	}
	return tlsh.HashBytes(data)
}

// Distance returns the TLSH distance between the fingerprints of two entries
func (t *Triager) Distance(a, b testbench.Entry) (int, error) {
	ha, err := t.hash(a)
	if err != nil {
		return -1, err
	}
	hb, err := t.hash(b)
	if err != nil {
		return -1, err
	}
	return ha.Diff(hb), nil
}

func unionKinds(a, b []testbench.FindingKind) []testbench.FindingKind {
	seen := make(map[testbench.FindingKind]bool, len(a))
	for _, k := range a {
		seen[k] = true
	}
	for _, k := range b {
		if !seen[k] {
			a = append(a, k)
			seen[k] = true
		}
	}
	return a
}
