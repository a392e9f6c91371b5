// Package mutator generates the UE security capability masks advertised by
// successive fuzz iterations. It hands out (EIA, EEA) mask pairs; the stack
// harness feeds them into StartTestcase.
package mutator

import (
	"fmt"
	"sync"

	"github.com/fluxfuzzer/ltesec/internal/secalg"
)

// MaskPair is the pair of capability masks advertised in one testcase
type MaskPair struct {
	EIA secalg.CapabilityMask `json:"eia_mask"`
	EEA secalg.CapabilityMask `json:"eea_mask"`
}

func (p MaskPair) String() string {
	return fmt.Sprintf("EIA 0x%02x / EEA 0x%02x", uint8(p.EIA), uint8(p.EEA))
}

// Mutator defines the interface for all mask mutation strategies
type Mutator interface {
	// Name returns the human-readable name of the mutator
	Name() string

	// Description returns a brief description of what this mutator does
	Description() string

	// Mutate derives the n-th pair from the seed. n starts at 0.
	Mutate(seed MaskPair, n uint64) MaskPair
}

// New returns the mutator registered under mode
func New(mode string, randomSeed int64) (Mutator, error) {
	switch mode {
	case "bitflip":
		return NewBitFlipMutator(), nil
	case "interesting":
		return NewInterestingValueMutator(), nil
	case "random":
		return NewRandomMutator(randomSeed), nil
	default:
		return nil, fmt.Errorf("unknown mutator mode: %s", mode)
	}
}

// Generator hands out successive mask pairs. Safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	mutator Mutator
	seed    MaskPair
	n       uint64
}

// NewGenerator creates a generator starting at seed
func NewGenerator(m Mutator, seed MaskPair) *Generator {
	return &Generator{
		mutator: m,
		seed:    seed,
	}
}

// Next returns the next mask pair
func (g *Generator) Next() MaskPair {
	g.mu.Lock()
	defer g.mu.Unlock()
	p := g.mutator.Mutate(g.seed, g.n)
	g.n++
	return p
}

// Count returns how many pairs were handed out
func (g *Generator) Count() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}

// Mutator returns the underlying strategy
func (g *Generator) Mutator() Mutator {
	return g.mutator
}
