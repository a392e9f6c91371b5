package report

import (
	"encoding/json"
	"io"
)

// JSONGenerator writes the report as one JSON document
type JSONGenerator struct {
	Indent bool

	// InterestingOnly drops uninteresting testcases; anomalies and statistics are kept whole
	InterestingOnly bool
}

// Generate writes the JSON report
func (g *JSONGenerator) Generate(r *Report, w io.Writer) error {
	if g.InterestingOnly {
		trimmed := *r
		trimmed.Testcases = r.Interesting()
		r = &trimmed
	}

	enc := json.NewEncoder(w)
	if g.Indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(r)
}

// Extension returns the file extension
func (g *JSONGenerator) Extension() string {
	return "json"
}

func (g *JSONGenerator) ContentType() string {
	return "application/json; charset=utf-8"
}
