package testbench

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCauseString(t *testing.T) {
	assert.Equal(t, "#23 UE security capabilities mismatch", CauseString(23))
	assert.Equal(t, "#111 Protocol error, unspecified", CauseString(CauseProtocolErrorUnspecified))
	assert.Equal(t, "unknown cause (0)", CauseString(0))
	assert.Equal(t, "unknown cause (255)", CauseString(255))
}

func TestKnownCauses(t *testing.T) {
	causes := KnownCauses()
	assert.Len(t, causes, len(emmCauses))
	for i := 1; i < len(causes); i++ {
		assert.Less(t, causes[i-1], causes[i])
	}
}
