package mutator

import (
	"math/rand"
	"sync"

	"github.com/fluxfuzzer/ltesec/internal/secalg"
)

// AFL-inspired interesting capability masks
var interestingMasks = []secalg.CapabilityMask{
	0x00, // nothing advertised
	0x01, // NULL only
	0x02, // EIA1/EEA1 only
	0x0E, // all real algorithms, no NULL
	0x0F, // every defined algorithm
	0x10, // first spare bit
	0x80, // last spare bit
	0xF0, // spare bits only
	0xFF, // everything
}

// --- BitFlipMutator ---

// BitFlipMutator walks the seed pair one bit at a time, AFL's deterministic
// bitflip/1 stage over the 16 bits of (EIA, EEA). Step 0 is the unmodified seed.
type BitFlipMutator struct{}

// NewBitFlipMutator creates a new BitFlipMutator
func NewBitFlipMutator() *BitFlipMutator {
	return &BitFlipMutator{}
}

// Name returns the mutator name
func (m *BitFlipMutator) Name() string {
	return "bitflip/1"
}

// Description returns the mutator description
func (m *BitFlipMutator) Description() string {
	return "deterministic single bit flips over the EIA and EEA masks"
}

// Mutate flips bit (n-1) mod 16 of the seed
func (m *BitFlipMutator) Mutate(seed MaskPair, n uint64) MaskPair {
	if n == 0 {
		return seed
	}
	bit := (n - 1) % 16
	if bit < 8 {
		seed.EIA ^= 1 << bit
	} else {
		seed.EEA ^= 1 << (bit - 8)
	}
	return seed
}

// --- InterestingValueMutator ---

// InterestingValueMutator iterates the cross product of interesting masks
type InterestingValueMutator struct{}

// NewInterestingValueMutator creates a new InterestingValueMutator
func NewInterestingValueMutator() *InterestingValueMutator {
	return &InterestingValueMutator{}
}

// Name returns the mutator name
func (m *InterestingValueMutator) Name() string {
	return "interesting"
}

// Description returns the mutator description
func (m *InterestingValueMutator) Description() string {
	return "boundary capability masks: empty, NULL only, spare bits, all bits"
}

// Mutate ignores the seed and returns the n-th combination
func (m *InterestingValueMutator) Mutate(_ MaskPair, n uint64) MaskPair {
	k := uint64(len(interestingMasks))
	idx := n % (k * k)
	return MaskPair{
		EIA: interestingMasks[idx/k],
		EEA: interestingMasks[idx%k],
	}
}

// --- RandomMutator ---

// RandomMutator draws uniformly random masks from a seeded source so a run can be reproduced
type RandomMutator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomMutator creates a new RandomMutator
func NewRandomMutator(seed int64) *RandomMutator {
	return &RandomMutator{rng: rand.New(rand.NewSource(seed))}
}

// Name returns the mutator name
func (m *RandomMutator) Name() string {
	return "random"
}

// Description returns the mutator description
func (m *RandomMutator) Description() string {
	return "uniformly random EIA and EEA masks"
}

// Mutate returns a random pair; the seed is only used for step 0
func (m *RandomMutator) Mutate(seed MaskPair, n uint64) MaskPair {
	if n == 0 {
		return seed
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.rng.Intn(1 << 16)
	return MaskPair{
		EIA: secalg.CapabilityMask(v >> 8),
		EEA: secalg.CapabilityMask(v & 0xFF),
	}
}
