package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventType_Valid(t *testing.T) {
	for _, et := range AllEventTypes {
		assert.True(t, et.Valid(), et)
	}
	assert.False(t, EventType("detach").Valid())
}

func TestSeverity_Text(t *testing.T) {
	data, err := json.Marshal(map[string]Severity{"s": High})
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":"high"}`, string(data))

	var s Severity
	require.NoError(t, s.UnmarshalText([]byte("critical")))
	assert.Equal(t, Critical, s)
	assert.Error(t, s.UnmarshalText([]byte("urgent")))
	assert.Equal(t, "unknown", Severity(42).String())
}
