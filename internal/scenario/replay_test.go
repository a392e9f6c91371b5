package scenario

import (
	"context"
	"fmt"
	"testing"

	"github.com/fluxfuzzer/ltesec/internal/testbench"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, data string) *Scenario {
	t.Helper()
	s, err := NewStrictParser().Parse([]byte(data))
	require.NoError(t, err)
	return s
}

func TestReplayer_Run(t *testing.T) {
	tb := testbench.New(nil)
	r := NewReplayer(tb, &Options{Workers: 2})

	res, err := r.Run(context.Background(), []*Scenario{parse(t, baselineYAML)})
	require.NoError(t, err)
	require.Len(t, res.Testcases, 2)
	assert.Empty(t, res.Failed())
	assert.Equal(t, int64(2), res.Pool.Completed)

	assert.Equal(t, 2, tb.Len())
	assert.False(t, tb.Result())

	// results come back in ID order whatever order the workers finished in
	assert.Equal(t, testbench.TestcaseID(1), res.Testcases[0].ID)
	assert.Equal(t, testbench.TestcaseID(2), res.Testcases[1].ID)

	byName := map[string]TestcaseResult{}
	for _, tc := range res.Testcases {
		byName[tc.Name] = tc
	}
	entry, ok := tb.Lookup(byName["connected"].ID)
	require.True(t, ok)
	assert.Equal(t, "nas.pcap", entry.Snapshot.NASPcap)
	assert.Equal(t, 1, entry.Snapshot.NASMessages)
	assert.True(t, byName["null-integrity"].Summary.InsecureNASEIAChoice)
}

func TestReplayer_ExpectationFailure(t *testing.T) {
	s := parse(t, `
name: wrong
testcases:
  - name: claims-secure
    eia_mask: 0x02
    eea_mask: 0x02
    events:
      - nas_smc: {eia: 0, eea: 0}
    expect: {interesting: false, connected: true, findings: [spare_values]}
`)
	res, err := NewReplayer(testbench.New(nil), nil).Run(context.Background(), []*Scenario{s})
	require.NoError(t, err)
	require.Len(t, res.Failed(), 1)
	assert.Len(t, res.Testcases[0].Failures, 3)
	assert.Equal(t, int64(1), res.Pool.Failed)
}

func TestReplayer_UsageErrors(t *testing.T) {
	s := parse(t, `
name: double
testcases:
  - name: expected
    eia_mask: 0x02
    eea_mask: 0x02
    events:
      - nas_smc: {eia: 1, eea: 1}
      - nas_smc: {eia: 0, eea: 0}
      - attach_reject: {cause: 23}
      - attach_accept: {}
    expect: {errors: 2, interesting: false}
  - name: unexpected
    eia_mask: 0x02
    eea_mask: 0x02
    events:
      - rrc_smc: {eia: 1, eea: 1}
      - rrc_smc: {eia: 1, eea: 1}
`)
	tb := testbench.New(nil)
	res, err := NewReplayer(tb, &Options{Workers: 1}).Run(context.Background(), []*Scenario{s})
	require.NoError(t, err)
	require.Len(t, res.Testcases, 2)

	assert.True(t, res.Testcases[0].Passed())
	assert.Len(t, res.Testcases[0].Errors, 2)

	assert.False(t, res.Testcases[1].Passed())
	assert.Len(t, res.Testcases[1].Errors, 1)

	// the rejected second SMC must not overwrite the first
	entry, _ := tb.Lookup(res.Testcases[0].ID)
	assert.Equal(t, uint8(1), uint8(entry.Snapshot.NASEIA))
}

func TestReplayer_Concurrent(t *testing.T) {
	s := &Scenario{Name: "bulk"}
	for i := 0; i < 50; i++ {
		interesting := i%2 == 1
		eia := uint8(1)
		if interesting {
			eia = 0
		}
		s.Testcases = append(s.Testcases, Testcase{
			Name:    fmt.Sprintf("tc-%d", i),
			EIAMask: 0x02,
			EEAMask: 0x02,
			Events: []Step{
				{NASSMC: &AlgorithmPair{EIA: eia, EEA: 1}},
				{AttachAccept: &struct{}{}},
				{RRCSMC: &AlgorithmPair{EIA: 1, EEA: 1}},
			},
			Expect: &Expectation{Interesting: &interesting},
		})
	}
	require.NoError(t, s.Validate())

	tb := testbench.New(nil)
	res, err := NewReplayer(tb, &Options{Workers: 8, Rate: 5000}).Run(context.Background(), []*Scenario{s})
	require.NoError(t, err)
	assert.Empty(t, res.Failed())
	require.Len(t, res.Testcases, 50)
	for i, tc := range res.Testcases {
		assert.Equal(t, testbench.TestcaseID(i+1), tc.ID)
	}

	st := tb.Stats()
	assert.Equal(t, 50, st.Total)
	assert.Equal(t, 25, st.Interesting)
	assert.Equal(t, 50, st.Connected)
}

func TestReplayer_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tb := testbench.New(nil)
	res, err := NewReplayer(tb, nil).Run(ctx, []*Scenario{parse(t, baselineYAML)})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Testcases)
	assert.Equal(t, 0, tb.Len())
}

func TestReplayer_FailFast(t *testing.T) {
	s := &Scenario{Name: "ff"}
	for i := 0; i < 20; i++ {
		s.Testcases = append(s.Testcases, Testcase{
			Name:   fmt.Sprintf("tc-%d", i),
			Events: []Step{{Timeout: &struct{}{}}, {Timeout: &struct{}{}}},
		})
	}

	tb := testbench.New(nil)
	res, err := NewReplayer(tb, &Options{Workers: 1, FailFast: true}).Run(context.Background(), []*Scenario{s})
	require.NoError(t, err)
	require.NotEmpty(t, res.Failed())
	assert.Less(t, len(res.Testcases), 20)
}
