package mutator

import (
	"sync"
	"testing"

	"github.com/fluxfuzzer/ltesec/internal/secalg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	for _, mode := range []string{"bitflip", "interesting", "random"} {
		m, err := New(mode, 1)
		require.NoError(t, err, mode)
		assert.NotEmpty(t, m.Name())
		assert.NotEmpty(t, m.Description())
	}
	_, err := New("havoc", 1)
	assert.Error(t, err)
}

func TestBitFlipMutator(t *testing.T) {
	m := NewBitFlipMutator()
	seed := MaskPair{EIA: 0x0E, EEA: 0x0F}

	assert.Equal(t, seed, m.Mutate(seed, 0))
	assert.Equal(t, MaskPair{EIA: 0x0F, EEA: 0x0F}, m.Mutate(seed, 1))
	assert.Equal(t, MaskPair{EIA: 0x8E, EEA: 0x0F}, m.Mutate(seed, 8))
	assert.Equal(t, MaskPair{EIA: 0x0E, EEA: 0x0E}, m.Mutate(seed, 9))
	assert.Equal(t, MaskPair{EIA: 0x0E, EEA: 0x8F}, m.Mutate(seed, 16))
	assert.Equal(t, m.Mutate(seed, 1), m.Mutate(seed, 17), "walk wraps after 16 bits")

	// every step differs from the seed in exactly one bit
	for n := uint64(1); n <= 16; n++ {
		p := m.Mutate(seed, n)
		diff := uint16(p.EIA^seed.EIA)<<8 | uint16(p.EEA^seed.EEA)
		assert.Equal(t, 1, popcount(diff), "step %d", n)
	}
}

func popcount(v uint16) int {
	n := 0
	for ; v != 0; v &= v - 1 {
		n++
	}
	return n
}

func TestInterestingValueMutator(t *testing.T) {
	m := NewInterestingValueMutator()
	k := uint64(len(interestingMasks))

	seen := make(map[MaskPair]bool)
	for n := uint64(0); n < k*k; n++ {
		seen[m.Mutate(MaskPair{}, n)] = true
	}
	assert.Len(t, seen, int(k*k))
	assert.True(t, seen[MaskPair{EIA: 0xFF, EEA: 0x00}])
	assert.Equal(t, m.Mutate(MaskPair{}, 0), m.Mutate(MaskPair{}, k*k))
}

func TestRandomMutator_Reproducible(t *testing.T) {
	a := NewRandomMutator(42)
	b := NewRandomMutator(42)
	seed := MaskPair{EIA: 0x02, EEA: 0x02}

	assert.Equal(t, seed, a.Mutate(seed, 0))
	b.Mutate(seed, 0)
	for n := uint64(1); n < 50; n++ {
		assert.Equal(t, a.Mutate(seed, n), b.Mutate(seed, n))
	}
}

func TestGenerator(t *testing.T) {
	g := NewGenerator(NewBitFlipMutator(), MaskPair{EIA: 0x02, EEA: 0x02})
	assert.Equal(t, MaskPair{EIA: 0x02, EEA: 0x02}, g.Next())
	assert.Equal(t, MaskPair{EIA: 0x03, EEA: 0x02}, g.Next())
	assert.Equal(t, uint64(2), g.Count())
	assert.Equal(t, "bitflip/1", g.Mutator().Name())
	assert.Equal(t, "EIA 0x02 / EEA 0x02", MaskPair{EIA: 0x02, EEA: secalg.CapabilityMask(2)}.String())
}

func TestGenerator_Concurrent(t *testing.T) {
	g := NewGenerator(NewInterestingValueMutator(), MaskPair{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				g.Next()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(800), g.Count())
}
