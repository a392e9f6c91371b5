package client

import (
	"errors"
	"testing"
	"time"

	"github.com/fluxfuzzer/ltesec/internal/mutator"
	"github.com/fluxfuzzer/ltesec/internal/server"
	"github.com/fluxfuzzer/ltesec/internal/testbench"
	"github.com/fluxfuzzer/ltesec/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp/fasthttputil"
)

var testKey = make([]byte, testbench.KeyLength)

// newPair serves a fresh testbench over an in-memory listener
func newPair(t *testing.T) (*Client, *testbench.Testbench) {
	t.Helper()
	tb := testbench.New(nil)
	gen := mutator.NewGenerator(mutator.NewInterestingValueMutator(), mutator.MaskPair{})
	srv := server.New(tb, &server.Options{Generator: gen})

	ln := fasthttputil.NewInmemoryListener()
	go srv.Serve(ln)
	t.Cleanup(func() {
		srv.App().Shutdown()
		ln.Close()
	})

	opts := DefaultOptions()
	opts.BaseURL = "http://ltesec.test"
	opts.Dial = DialListener(ln.Dial)
	c := New(opts)
	t.Cleanup(c.CloseIdleConnections)
	return c, tb
}

func TestClient_Connected(t *testing.T) {
	c, tb := newPair(t)

	id, err := c.StartTestcase(0x06, 0x06)
	require.NoError(t, err)
	assert.Equal(t, testbench.TestcaseID(1), id)

	require.NoError(t, c.ReportNAS())
	require.NoError(t, c.ReportNASSecurityModeCommand(2, 1))
	require.NoError(t, c.ReportAttachAccept())

	finished, err := c.IsFinished()
	require.NoError(t, err)
	assert.False(t, finished)

	require.NoError(t, c.ReportRRCSecurityModeCommand(2, 1))
	require.NoError(t, c.ReportRRCKey(testbench.KeyRRCEnc, testKey))
	require.NoError(t, c.SetPCAP("nas.pcap", "mac.pcap"))

	finished, err = c.IsFinished()
	require.NoError(t, err)
	assert.True(t, finished)
	connected, err := c.IsConnected()
	require.NoError(t, err)
	assert.True(t, connected)
	interesting, err := c.IsInteresting()
	require.NoError(t, err)
	assert.False(t, interesting)

	h, err := c.Health()
	require.NoError(t, err)
	assert.Equal(t, 1, h.Testcases)
	assert.Equal(t, tb.RunID(), h.RunID)

	pass, err := c.Result()
	require.NoError(t, err)
	assert.True(t, pass)

	summary, err := c.Summary()
	require.NoError(t, err)
	assert.Equal(t, tb.Summary(), summary)

	entry, ok := tb.Lookup(id)
	require.True(t, ok)
	assert.Equal(t, "mac.pcap", entry.Snapshot.MACPcap)
	assert.Equal(t, 1, entry.Snapshot.Keys.Count())
}

func TestClient_UsageErrors(t *testing.T) {
	c, _ := newPair(t)

	err := c.ReportNAS()
	assert.ErrorIs(t, err, testbench.ErrNoActiveTestcase)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 409, apiErr.Status)

	_, err = c.CurrentSummary()
	assert.ErrorIs(t, err, testbench.ErrNoActiveTestcase)

	_, err = c.StartTestcase(0x02, 0x02)
	require.NoError(t, err)

	assert.ErrorIs(t, c.ReportRRCKey(testbench.KeyUPEnc, []byte{1, 2}), testbench.ErrInvalidKey)
	require.NoError(t, c.ReportAttachReject(23))
	assert.ErrorIs(t, c.ReportAttachAccept(), testbench.ErrTerminalState)
	require.NoError(t, c.ReportRRCSecurityModeCommand(1, 1))
	assert.ErrorIs(t, c.ReportRRCSecurityModeCommand(1, 1), testbench.ErrAlreadyReported)
	assert.ErrorIs(t, c.ForTestcase(9).ReportNAS(), testbench.ErrUnknownTestcase)
}

func TestClient_ForTestcase(t *testing.T) {
	c, tb := newPair(t)
	_, err := c.StartTestcase(0x02, 0x02)
	require.NoError(t, err)
	_, err = c.StartTestcase(0x02, 0x02)
	require.NoError(t, err)

	first := c.ForTestcase(1)
	require.NoError(t, first.ReportNASSecurityModeCommand(0, 0))
	require.NoError(t, first.DeclareTimeout())

	e1, _ := tb.Lookup(1)
	e2, _ := tb.Lookup(2)
	assert.True(t, e1.Summary.IsInteresting)
	assert.True(t, e1.Snapshot.TimedOut)
	assert.False(t, e2.Snapshot.NASSecurityModeCommand)

	// the active testcase is untouched
	interesting, err := c.IsInteresting()
	require.NoError(t, err)
	assert.False(t, interesting)

	// the pinned client answers for its own testcase
	interesting, err = first.IsInteresting()
	require.NoError(t, err)
	assert.True(t, interesting)
	finished, err := first.IsFinished()
	require.NoError(t, err)
	assert.True(t, finished)
	st1, err := first.Status()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), st1.ID)

	_, err = c.ForTestcase(9).IsConnected()
	assert.ErrorIs(t, err, testbench.ErrUnknownTestcase)

	entries, err := c.Entries()
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	st, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 1, st.Interesting)
	assert.Equal(t, 1, st.TimedOut)
}

func TestClient_Next(t *testing.T) {
	c, tb := newPair(t)

	resp, err := c.Next()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), resp.ID)
	assert.NotEmpty(t, resp.Mutator)
	assert.Equal(t, testbench.TestcaseID(1), tb.ActiveID())
}

func TestClient_Apply(t *testing.T) {
	c, tb := newPair(t)
	_, err := c.StartTestcase(0x02, 0x02)
	require.NoError(t, err)

	for _, ev := range []types.Event{
		{Type: types.EventNASSMC, EIA: 1, EEA: 1},
		{Type: types.EventAttachAccept},
		{Type: types.EventRRCSMC, EIA: 1, EEA: 1},
	} {
		require.NoError(t, testbench.Apply(c, ev))
	}
	e, _ := tb.Lookup(1)
	assert.True(t, e.Snapshot.Connected())
}

func TestClient_Unreachable(t *testing.T) {
	opts := DefaultOptions()
	opts.BaseURL = "http://127.0.0.1:1"
	opts.Timeout = 200 * time.Millisecond
	_, err := New(opts).Result()
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}
