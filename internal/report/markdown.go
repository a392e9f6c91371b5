package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/fluxfuzzer/ltesec/internal/testbench"
	"github.com/fluxfuzzer/ltesec/pkg/types"
)

// MarkdownGenerator generates Markdown reports
type MarkdownGenerator struct {
	// IncludeDetails adds the full text summary of every interesting testcase
	IncludeDetails bool
}

var severityEmoji = map[types.Severity]string{
	types.Critical: "🔴 Critical",
	types.High:     "🟠 High",
	types.Medium:   "🟡 Medium",
	types.Low:      "🔵 Low",
	types.Info:     "⚪ Info",
}

// Generate generates a Markdown report
func (g *MarkdownGenerator) Generate(r *Report, w io.Writer) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "# %s\n\n", r.Title)
	if r.Description != "" {
		fmt.Fprintf(bw, "%s\n\n", r.Description)
	}
	fmt.Fprintf(bw, "- **Run:** `%s`\n", r.RunID)
	fmt.Fprintf(bw, "- **Generated:** %s\n", r.GeneratedAt.Format("2006-01-02 15:04:05"))
	verdict := "✅ PASS"
	if !r.Pass {
		verdict = "❌ FAIL"
	}
	fmt.Fprintf(bw, "- **Verdict:** %s\n\n", verdict)

	fmt.Fprintf(bw, "## 📊 Summary\n\n")
	fmt.Fprintf(bw, "| Metric | Value |\n|---|---|\n")
	st := r.Statistics
	fmt.Fprintf(bw, "| Testcases | %d |\n", st.Total)
	fmt.Fprintf(bw, "| Interesting | %d |\n", st.Interesting)
	fmt.Fprintf(bw, "| Connected | %d |\n", st.Connected)
	fmt.Fprintf(bw, "| Finished | %d |\n", st.Finished)
	fmt.Fprintf(bw, "| Rejected | %d |\n", st.Rejected)
	fmt.Fprintf(bw, "| Timed out | %d |\n", st.TimedOut)
	fmt.Fprintf(bw, "| Duration | %s |\n\n", st.Duration)

	if len(r.Anomalies) == 0 {
		fmt.Fprintf(bw, "## 🔍 Findings\n\nNo anomalies detected.\n")
		return bw.Flush()
	}

	fmt.Fprintf(bw, "## 🔍 Anomalies Found\n\n")
	for sev := types.Critical; sev >= types.Info; sev-- {
		if n := r.SeverityCounts[sev]; n > 0 {
			fmt.Fprintf(bw, "- %s: %d\n", severityEmoji[sev], n)
		}
	}
	fmt.Fprintf(bw, "\n| Testcase | Severity | Kind | NAS SMC | RRC SMC | Outcome |\n|---|---|---|---|---|---|\n")
	for _, a := range r.Anomalies {
		fmt.Fprintf(bw, "| %d | %s | `%s` | %s | %s | %s |\n",
			a.Testcase, severityEmoji[a.Severity], a.Kind, a.NAS, a.RRC, escapePipes(a.Outcome))
	}
	fmt.Fprintln(bw)

	if len(r.Clusters) > 0 {
		fmt.Fprintf(bw, "## 🧩 Triage\n\n| Cluster | Severity | Size | Representative | Signature |\n|---|---|---|---|---|\n")
		for _, c := range r.Clusters {
			fmt.Fprintf(bw, "| %d | %s | %d | %d | `%s` |\n",
				c.ID, severityEmoji[c.Severity], c.Size(), c.Representative, escapePipes(c.Signature))
		}
		fmt.Fprintln(bw)
	}

	if g.IncludeDetails {
		fmt.Fprintf(bw, "## 📝 Details\n\n")
		for _, e := range r.Interesting() {
			writeDetails(bw, e)
		}
	}

	return bw.Flush()
}

func writeDetails(w io.Writer, e testbench.Entry) {
	fmt.Fprintf(w, "### Testcase %d\n\n```\n%s```\n\n", e.Snapshot.ID, e.Render())
}

func escapePipes(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// Extension returns the file extension
func (g *MarkdownGenerator) Extension() string {
	return "md"
}

func (g *MarkdownGenerator) ContentType() string {
	return "text/markdown; charset=utf-8"
}
