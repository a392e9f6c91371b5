package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fluxfuzzer/ltesec/internal/testbench"
	"github.com/fluxfuzzer/ltesec/internal/triage"
	"github.com/fluxfuzzer/ltesec/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestbench returns a run with one connected and one NULL integrity testcase
func newTestbench(t *testing.T) *testbench.Testbench {
	t.Helper()
	tb := testbench.New(nil)

	tb.StartTestcase(0x02, 0x02)
	require.NoError(t, tb.ReportNASSecurityModeCommand(1, 1))
	require.NoError(t, tb.ReportAttachAccept())
	require.NoError(t, tb.ReportRRCSecurityModeCommand(1, 1))

	tb.StartTestcase(0x02, 0x02)
	require.NoError(t, tb.SetPCAP("nas-2.pcap", "mac-2.pcap"))
	require.NoError(t, tb.ReportNASSecurityModeCommand(0, 1))
	require.NoError(t, tb.ReportAttachAccept())
	require.NoError(t, tb.ReportRRCSecurityModeCommand(1, 1))
	return tb
}

func TestFromTestbench(t *testing.T) {
	tb := newTestbench(t)
	r := FromTestbench(tb, "nightly")

	assert.Equal(t, "nightly", r.Title)
	assert.Equal(t, "1.0", r.Version)
	assert.Equal(t, tb.RunID(), r.RunID)
	assert.False(t, r.Pass)
	assert.Len(t, r.Testcases, 2)
	assert.Equal(t, 2, r.Statistics.Total)
	assert.Equal(t, 1, r.Statistics.Interesting)

	// EIA0 not advertised: mismatch plus insecure choice, both on testcase 2
	require.Len(t, r.Anomalies, 2)
	for _, a := range r.Anomalies {
		assert.Equal(t, testbench.TestcaseID(2), a.Testcase)
		assert.NotEmpty(t, a.ID)
		assert.Equal(t, "EIA0 / EEA1", a.NAS)
		assert.Equal(t, "connected", a.Outcome)
		assert.Equal(t, "nas-2.pcap", a.NASPcap)
	}
	assert.Equal(t, 1, r.SeverityCounts[types.Critical])
	assert.Equal(t, 1, r.SeverityCounts[types.High])
	assert.Len(t, r.FilterBySeverity(types.Critical), 1)
	assert.Len(t, r.FilterByKind(testbench.FindingInsecureNASEIA), 1)
	assert.Len(t, r.Interesting(), 1)
}

func TestFromTestbench_Empty(t *testing.T) {
	r := FromTestbench(testbench.New(nil), "empty")
	assert.True(t, r.Pass)
	assert.Empty(t, r.Anomalies)
}

func TestJSONGenerator(t *testing.T) {
	r := FromTestbench(newTestbench(t), "Test Report")

	var buf bytes.Buffer
	require.NoError(t, (&JSONGenerator{Indent: true}).Generate(r, &buf))

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))
	assert.Equal(t, "Test Report", parsed["title"])
	assert.Equal(t, false, parsed["pass"])

	counts := parsed["severity_counts"].(map[string]interface{})
	assert.EqualValues(t, 1, counts["critical"])

	stats := parsed["statistics"].(map[string]interface{})
	assert.EqualValues(t, 2, stats["total"])
	assert.IsType(t, "", stats["duration"])

	assert.Equal(t, "json", (&JSONGenerator{}).Extension())

	buf.Reset()
	require.NoError(t, (&JSONGenerator{InterestingOnly: true}).Generate(r, &buf))
	var trimmed struct {
		Testcases []testbench.Entry `json:"testcases"`
		Anomalies []Anomaly         `json:"anomalies"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &trimmed))
	require.Len(t, trimmed.Testcases, 1)
	assert.Equal(t, testbench.TestcaseID(2), trimmed.Testcases[0].Snapshot.ID)
	assert.Len(t, trimmed.Anomalies, 2)
	assert.Len(t, r.Testcases, 2, "source report untouched")
}

func TestMarkdownGenerator(t *testing.T) {
	r := FromTestbench(newTestbench(t), "Test Report")
	r.SetClusters(triage.New(nil).Cluster(r.Testcases))

	var buf bytes.Buffer
	require.NoError(t, (&MarkdownGenerator{IncludeDetails: true}).Generate(r, &buf))
	output := buf.String()

	assert.Contains(t, output, "# Test Report")
	assert.Contains(t, output, "## 📊 Summary")
	assert.Contains(t, output, "## 🔍 Anomalies Found")
	assert.Contains(t, output, "🔴 Critical")
	assert.Contains(t, output, "❌ FAIL")
	assert.Contains(t, output, "## 🧩 Triage")
	assert.Contains(t, output, "### Testcase 2")
	assert.NotContains(t, output, "### Testcase 1\n")
}

func TestMarkdownGenerator_NoAnomalies(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&MarkdownGenerator{}).Generate(NewReport("Clean Report"), &buf))
	assert.Contains(t, buf.String(), "No anomalies detected")
	assert.Contains(t, buf.String(), "✅ PASS")
}

func TestHTMLGenerator(t *testing.T) {
	r := FromTestbench(newTestbench(t), "Test <Report>")
	r.SetClusters(triage.New(nil).Cluster(r.Testcases))

	var buf bytes.Buffer
	require.NoError(t, NewHTMLGenerator().Generate(r, &buf))
	output := buf.String()

	assert.True(t, strings.HasPrefix(output, "<!DOCTYPE html>"))
	assert.Contains(t, output, "Test &lt;Report&gt;")
	assert.Contains(t, output, "FAIL: 1 interesting testcase(s)")
	assert.Contains(t, output, `class="anomaly-item critical"`)
	assert.Contains(t, output, "Triage (")
	assert.Contains(t, output, "<code>nas_sec_cap_mismatch</code>")
	assert.Contains(t, output, `<tr class="interesting"><td>2</td>`)
	assert.Contains(t, output, "<td>EIA0 / EEA1</td>")
	assert.Equal(t, "html", NewHTMLGenerator().Extension())
}

func TestCustomHTMLGenerator(t *testing.T) {
	gen, err := CustomHTMLGenerator(`{{.Title}} {{severityClass .Statistics.Findings}}`)
	require.NoError(t, err)
	assert.Error(t, gen.Generate(NewReport("x"), &bytes.Buffer{}))

	gen, err = CustomHTMLGenerator(`{{.Title}}: {{len .Anomalies}}`)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, gen.Generate(NewReport("x"), &buf))
	assert.Equal(t, "x: 0", buf.String())

	_, err = CustomHTMLGenerator(`{{.Title`)
	assert.Error(t, err)
}

func TestTextGenerator(t *testing.T) {
	r := FromTestbench(newTestbench(t), "t")

	var buf bytes.Buffer
	require.NoError(t, (&TextGenerator{}).Generate(r, &buf))
	assert.Contains(t, buf.String(), "=== Testcase 1 ===")
	assert.Contains(t, buf.String(), "=== Testcase 2 ===")
	assert.Contains(t, buf.String(), "result: FAIL")

	buf.Reset()
	require.NoError(t, (&TextGenerator{InterestingOnly: true}).Generate(r, &buf))
	assert.NotContains(t, buf.String(), "=== Testcase 1 ===")
	assert.Contains(t, buf.String(), "=== Testcase 2 ===")
}

func TestManager(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	m := NewManager(dir)
	r := FromTestbench(newTestbench(t), "t")

	path, err := m.Generate(r, "markdown")
	require.NoError(t, err)
	assert.Equal(t, ".md", filepath.Ext(path))
	assert.Equal(t, FileName(r, "md"), filepath.Base(path))
	assert.Contains(t, filepath.Base(path), "ltesec_"+r.RunID[:8])
	_, err = os.Stat(path)
	require.NoError(t, err)

	_, err = m.Generate(r, "pdf")
	assert.ErrorContains(t, err, "json, html, markdown, text")

	paths, err := m.GenerateAll(r)
	require.NoError(t, err)
	assert.Len(t, paths, 4)
	assert.Equal(t, ".json", filepath.Ext(paths[0]))
	assert.Equal(t, ".txt", filepath.Ext(paths[3]))

	var buf bytes.Buffer
	require.NoError(t, m.Write(r, "txt", &buf))
	assert.Contains(t, buf.String(), "result: FAIL")
	assert.Error(t, m.Write(r, "pdf", &buf))

	gen, err := m.Generator("md")
	require.NoError(t, err)
	assert.Equal(t, "text/markdown; charset=utf-8", gen.ContentType())
	assert.Equal(t, []string{"json", "html", "markdown", "text"}, m.Formats())

	m.Register("html", NewHTMLGenerator(), "htm")
	assert.Len(t, m.Formats(), 4)
	_, err = m.Generator("htm")
	assert.NoError(t, err)
}

func TestFileName(t *testing.T) {
	r := NewReport("x")
	r.GeneratedAt = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, "ltesec_norun_20240501_100000.json", FileName(r, "json"))
	r.RunID = "abc"
	assert.Equal(t, "ltesec_abc_20240501_100000.html", FileName(r, "html"))
}
