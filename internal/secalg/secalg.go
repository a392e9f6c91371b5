// Package secalg models the LTE security algorithm identifiers (EIA/EEA) and
// the UE security capability bitmasks they are advertised in.
// document version: 3GPP TS 24.301 9.9.3.36, TS 33.401 5.1.3 / 5.1.4
package secalg

import (
	"fmt"
	"strings"
)

// Direction selects the integrity (EIA) or ciphering (EEA) algorithm family
type Direction int

const (
	Integrity Direction = iota // EIA
	Ciphering                  // EEA
)

func (d Direction) String() string {
	switch d {
	case Integrity:
		return "EIA"
	case Ciphering:
		return "EEA"
	default:
		return "unknown"
	}
}

// Algorithm is a 3-bit algorithm index as selected in a Security Mode Command
type Algorithm uint8

// Defined algorithm indices. 4 to 7 are spare.
const (
	AlgNull   Algorithm = 0 // EIA0 / EEA0
	AlgSnow3G Algorithm = 1 // 128-EIA1 / 128-EEA1
	AlgAES    Algorithm = 2 // 128-EIA2 / 128-EEA2
	AlgZUC    Algorithm = 3 // 128-EIA3 / 128-EEA3

	MaxAlgorithm Algorithm = 7
)

// IsReserved reports whether the index lies in the spare range 4..7
func IsReserved(alg Algorithm) bool {
	return alg >= 4 && alg <= MaxAlgorithm
}

// IsReserved reports whether a is a spare index
func (a Algorithm) IsReserved() bool {
	return IsReserved(a)
}

// IsNull reports whether a is the NULL algorithm
func (a Algorithm) IsNull() bool {
	return a == AlgNull
}

// Valid reports whether a fits in the 3-bit field
func (a Algorithm) Valid() bool {
	return a <= MaxAlgorithm
}

// Name renders the algorithm as e.g. "EIA2" or "EEA-spare(5)"
func (a Algorithm) Name(dir Direction) string {
	switch {
	case a.IsReserved():
		return fmt.Sprintf("%s-spare(%d)", dir, a)
	case !a.Valid():
		return fmt.Sprintf("%s-invalid(%d)", dir, a)
	default:
		return fmt.Sprintf("%s%d", dir, a)
	}
}

// CapabilityMask is the 8-bit set of advertised algorithms.
// Bit i is set when algorithm index i is supported; bit 0 is EIA0/EEA0.
type CapabilityMask uint8

// SpareBits covers the reserved indices 4..7
const SpareBits CapabilityMask = 0xF0

// Has tests bit index of the mask
func (m CapabilityMask) Has(alg Algorithm) bool {
	if !alg.Valid() {
		return false
	}
	return m&(1<<alg) != 0
}

// HasSpare reports whether any reserved bit is set
func (m CapabilityMask) HasSpare() bool {
	return m&SpareBits != 0
}

// Indices returns the set algorithm indices in ascending order
func (m CapabilityMask) Indices() []Algorithm {
	var out []Algorithm
	for i := Algorithm(0); i <= MaxAlgorithm; i++ {
		if m.Has(i) {
			out = append(out, i)
		}
	}
	return out
}

// Format renders the mask as hex plus the advertised algorithm names
func (m CapabilityMask) Format(dir Direction) string {
	names := make([]string, 0, 8)
	for _, alg := range m.Indices() {
		names = append(names, alg.Name(dir))
	}
	if len(names) == 0 {
		return fmt.Sprintf("0x%02x (none)", uint8(m))
	}
	return fmt.Sprintf("0x%02x (%s)", uint8(m), strings.Join(names, ","))
}

// MaskOf builds a mask advertising the given algorithms
func MaskOf(algs ...Algorithm) CapabilityMask {
	var m CapabilityMask
	for _, a := range algs {
		if a.Valid() {
			m |= 1 << a
		}
	}
	return m
}

// Policy decides which choices count as insecure beyond the fixed rules.
// EIA0 and every spare index are always insecure.
type Policy struct {
	// NullCipheringInsecure flags EEA0. Emergency sessions may legitimately
	// run unciphered, so this is off by default.
	NullCipheringInsecure bool `yaml:"null_ciphering_insecure" json:"null_ciphering_insecure"`
}

// DefaultPolicy returns the policy that only flags spare EEA indices
func DefaultPolicy() Policy {
	return Policy{}
}

// InsecureChoice applies the policy to a selected algorithm
func (p Policy) InsecureChoice(dir Direction, alg Algorithm) bool {
	if IsReserved(alg) || !alg.Valid() {
		return true
	}
	if alg.IsNull() {
		return dir == Integrity || p.NullCipheringInsecure
	}
	return false
}

// Mismatch reports whether alg was chosen without being advertised in mask
func Mismatch(mask CapabilityMask, alg Algorithm) bool {
	return !mask.Has(alg)
}
