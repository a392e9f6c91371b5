package report

import (
	"fmt"
	"io"
)

// TextGenerator writes the plain text summary of every testcase followed by the verdict
type TextGenerator struct {
	// InterestingOnly omits testcases without raised flags
	InterestingOnly bool
}

// Generate generates a text report
func (g *TextGenerator) Generate(r *Report, w io.Writer) error {
	for _, e := range r.Testcases {
		if g.InterestingOnly && !e.Summary.IsInteresting {
			continue
		}
		if _, err := io.WriteString(w, e.Render()); err != nil {
			return err
		}
	}

	st := r.Statistics
	verdict := "PASS"
	if !r.Pass {
		verdict = "FAIL"
	}
	_, err := fmt.Fprintf(w, "\n%d testcases, %d interesting, %d connected, %d rejected, %d timed out\nresult: %s\n",
		st.Total, st.Interesting, st.Connected, st.Rejected, st.TimedOut, verdict)
	return err
}

// Extension returns the file extension
func (g *TextGenerator) Extension() string {
	return "txt"
}

func (g *TextGenerator) ContentType() string {
	return "text/plain; charset=utf-8"
}
