package triage

import (
	"io"
	"testing"

	"github.com/fluxfuzzer/ltesec/internal/secalg"
	"github.com/fluxfuzzer/ltesec/internal/testbench"
	"github.com/fluxfuzzer/ltesec/pkg/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run returns entries for: 1 NULL integrity, 2 spare EIA, 3 NULL integrity, 4 clean
func run(t *testing.T) []testbench.Entry {
	t.Helper()
	tb := testbench.New(nil)
	for _, eia := range []uint8{0, 5, 0, 1} {
		tb.StartTestcase(0x02, 0x02)
		require.NoError(t, tb.ReportNASSecurityModeCommand(secalg.Algorithm(eia), 1))
		require.NoError(t, tb.ReportAttachAccept())
		require.NoError(t, tb.ReportRRCSecurityModeCommand(1, 1))
	}
	return tb.Entries()
}

func TestCluster_ExactSignatures(t *testing.T) {
	entries := run(t)
	clusters := New(&Config{MinDataSize: 256, InterestingOnly: true}).Cluster(entries)
	require.Len(t, clusters, 2)

	assert.Equal(t, 1, clusters[0].ID)
	assert.Equal(t, []testbench.TestcaseID{1, 3}, clusters[0].Members)
	assert.Equal(t, testbench.TestcaseID(1), clusters[0].Representative)
	assert.Equal(t, types.Critical, clusters[0].Severity)
	assert.Contains(t, clusters[0].Kinds, testbench.FindingInsecureNASEIA)
	assert.NotEmpty(t, clusters[0].Hash)

	assert.Equal(t, []testbench.TestcaseID{2}, clusters[1].Members)
	assert.Contains(t, clusters[1].Signature, "EIA-spare(5)")
	assert.NotEqual(t, clusters[0].Signature, clusters[1].Signature)
}

func TestCluster_IncludeClean(t *testing.T) {
	clusters := New(&Config{MinDataSize: 256}).Cluster(run(t))
	require.Len(t, clusters, 3)

	last := clusters[len(clusters)-1]
	assert.Equal(t, []testbench.TestcaseID{4}, last.Members)
	assert.Equal(t, types.Info, last.Severity)
	assert.Contains(t, last.Signature, "clean")
}

func TestCluster_Merge(t *testing.T) {
	clusters := New(nil).Cluster(run(t))

	total := 0
	together := false
	for _, c := range clusters {
		total += c.Size()
		if len(c.Members) >= 2 && c.Members[0] == 1 && c.Members[1] == 3 {
			together = true
		}
	}
	assert.Equal(t, 3, total, "merging never loses a testcase")
	assert.True(t, together)
}

func TestDistance(t *testing.T) {
	entries := run(t)
	tr := New(nil)

	d, err := tr.Distance(entries[0], entries[2])
	require.NoError(t, err)
	assert.Equal(t, 0, d, "identical failures differ only by ID")

	d, err = tr.Distance(entries[0], entries[3])
	require.NoError(t, err)
	assert.Greater(t, d, 0)
}

func TestCluster_Empty(t *testing.T) {
	assert.Empty(t, New(nil).Cluster(nil))
}

// BenchmarkCluster measures fuzzy clustering over a mixed run.
func BenchmarkCluster(b *testing.B) {
	l := logrus.New()
	l.SetOutput(io.Discard)
	tb := testbench.New(&testbench.Options{Log: logrus.NewEntry(l)})
	for i := 0; i < 200; i++ {
		tb.StartTestcase(0xF6, 0x06)
		tb.ReportNASSecurityModeCommand(secalg.Algorithm(i%8), 1)
		tb.ReportAttachAccept()
		tb.ReportRRCSecurityModeCommand(1, secalg.Algorithm(i%3))
	}
	entries := tb.Entries()
	tr := New(nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tr.Cluster(entries)
	}
}
