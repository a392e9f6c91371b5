package report

import (
	"fmt"
	"io"
	"testing"

	"github.com/fluxfuzzer/ltesec/internal/testbench"
	"github.com/sirupsen/logrus"
)

// benchmarkReport builds a report over size testcases, half of them interesting
func benchmarkReport(size int) *Report {
	l := logrus.New()
	l.SetOutput(io.Discard)
	tb := testbench.New(&testbench.Options{Log: logrus.NewEntry(l)})
	for i := 0; i < size; i++ {
		tb.StartTestcase(0x06, 0x06)
		if i%2 == 0 {
			tb.ReportNASSecurityModeCommand(0, 4)
		} else {
			tb.ReportNASSecurityModeCommand(1, 1)
		}
		tb.ReportAttachAccept()
		tb.ReportRRCSecurityModeCommand(1, 1)
	}
	return FromTestbench(tb, "Benchmark Report")
}

// BenchmarkReportGeneration measures report generation per format and size.
func BenchmarkReportGeneration(b *testing.B) {
	generators := []struct {
		name string
		gen  Generator
	}{
		{"JSON", &JSONGenerator{}},
		{"Markdown", &MarkdownGenerator{}},
		{"HTML", NewHTMLGenerator()},
		{"Text", &TextGenerator{}},
	}

	for _, size := range []int{10, 100, 1000} {
		r := benchmarkReport(size)
		for _, g := range generators {
			b.Run(fmt.Sprintf("%s_%d", g.name, size), func(b *testing.B) {
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					if err := g.gen.Generate(r, io.Discard); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}
