package secalg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsReserved(t *testing.T) {
	for i := Algorithm(0); i <= MaxAlgorithm; i++ {
		assert.Equal(t, i >= 4, IsReserved(i), "index %d", i)
	}
}

func TestCapabilityMask_HasSpare(t *testing.T) {
	tests := []struct {
		mask CapabilityMask
		want bool
	}{
		{0x00, false},
		{0x0F, false},
		{0x10, true},
		{0x80, true},
		{0xFF, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.mask.HasSpare(), "mask 0x%02x", uint8(tt.mask))
	}

	// exhaustive: spare iff any of bits 4-7 set
	for m := 0; m < 256; m++ {
		assert.Equal(t, m&0xF0 != 0, CapabilityMask(m).HasSpare())
	}
}

func TestCapabilityMask_Has(t *testing.T) {
	m := CapabilityMask(0x02)
	assert.True(t, m.Has(1))
	assert.False(t, m.Has(0))
	assert.False(t, m.Has(2))
	assert.False(t, m.Has(8), "out of range index is never advertised")

	assert.Equal(t, []Algorithm{1, 2, 3}, MaskOf(AlgSnow3G, AlgAES, AlgZUC).Indices())
	assert.Equal(t, CapabilityMask(0x0E), MaskOf(1, 2, 3))
}

func TestAlgorithm_Name(t *testing.T) {
	assert.Equal(t, "EIA2", AlgAES.Name(Integrity))
	assert.Equal(t, "EEA0", AlgNull.Name(Ciphering))
	assert.Equal(t, "EIA-spare(5)", Algorithm(5).Name(Integrity))
	assert.Equal(t, "EEA-invalid(9)", Algorithm(9).Name(Ciphering))
}

func TestCapabilityMask_Format(t *testing.T) {
	assert.Equal(t, "0x00 (none)", CapabilityMask(0).Format(Integrity))
	assert.Equal(t, "0x13 (EIA0,EIA1,EIA-spare(4))", CapabilityMask(0x13).Format(Integrity))
}

func TestPolicy_InsecureChoice(t *testing.T) {
	p := DefaultPolicy()

	// integrity: insecure iff index 0 or >= 4
	for i := Algorithm(0); i <= MaxAlgorithm; i++ {
		want := i == 0 || i >= 4
		assert.Equal(t, want, p.InsecureChoice(Integrity, i), "EIA%d", i)
	}

	// ciphering: NULL is acceptable by default
	assert.False(t, p.InsecureChoice(Ciphering, AlgNull))
	assert.False(t, p.InsecureChoice(Ciphering, AlgAES))
	assert.True(t, p.InsecureChoice(Ciphering, 6))

	strict := Policy{NullCipheringInsecure: true}
	assert.True(t, strict.InsecureChoice(Ciphering, AlgNull))
	assert.False(t, strict.InsecureChoice(Ciphering, AlgZUC))
}

func TestMismatch(t *testing.T) {
	mask := CapabilityMask(0x02)
	assert.False(t, Mismatch(mask, 1))
	assert.True(t, Mismatch(mask, 2))
	// a spare choice that was advertised is not a mismatch
	assert.False(t, Mismatch(CapabilityMask(0x20), 5))
}
