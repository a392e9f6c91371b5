package testbench

import (
	"strings"
	"testing"

	"github.com/fluxfuzzer/ltesec/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply(t *testing.T) {
	tb := New(nil)
	tb.StartTestcase(0x02, 0x02)

	events := []types.Event{
		{Type: types.EventNAS},
		{Type: types.EventNASSMC, EIA: 1, EEA: 1},
		{Type: types.EventAttachAccept},
		{Type: types.EventRRCSMC, EIA: 1, EEA: 1},
		{Type: types.EventRRCKey, KeyType: "rrc_int", Key: strings.Repeat("0a", KeyLength)},
		{Type: types.EventPCAP, NASPcap: "n.pcap", MACPcap: "m.pcap"},
	}
	for _, ev := range events {
		require.NoError(t, Apply(tb, ev), ev.Type)
	}

	entry, _ := tb.Lookup(1)
	assert.True(t, entry.Snapshot.Connected())
	assert.Equal(t, 1, entry.Snapshot.NASMessages)
	assert.Equal(t, "m.pcap", entry.Snapshot.MACPcap)
	k, ok := entry.Snapshot.Keys.Get(KeyRRCInt)
	require.True(t, ok)
	assert.Equal(t, byte(0x0a), k[31])
}

func TestApply_Errors(t *testing.T) {
	tb := New(nil)
	tc, _ := tb.Testcase(tb.StartTestcase(0x02, 0x02))

	assert.Error(t, Apply(tc, types.Event{Type: types.EventStart}))
	assert.Error(t, Apply(tc, types.Event{Type: "bogus"}))
	assert.ErrorIs(t, Apply(tc, types.Event{Type: types.EventRRCKey, KeyType: "rrc_enc", Key: "zz"}), ErrInvalidKey)
	assert.ErrorIs(t, Apply(tc, types.Event{Type: types.EventRRCKey, KeyType: "rrc_enc", Key: "00"}), ErrInvalidKey)
	assert.ErrorIs(t, Apply(tc, types.Event{Type: types.EventRRCKey, KeyType: "nas", Key: ""}), ErrInvalidKey)

	require.NoError(t, Apply(tc, types.Event{Type: types.EventAttachReject, Cause: 23}))
	assert.ErrorIs(t, Apply(tc, types.Event{Type: types.EventAttachAccept}), ErrTerminalState)
	require.NoError(t, Apply(tc, types.Event{Type: types.EventTimeout}))
}
