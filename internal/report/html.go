package report

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/fluxfuzzer/ltesec/internal/secalg"
	"github.com/fluxfuzzer/ltesec/internal/testbench"
	"github.com/fluxfuzzer/ltesec/pkg/types"
)

// HTMLGenerator renders a self-contained audit page
type HTMLGenerator struct {
	template *template.Template
}

func funcMap() template.FuncMap {
	return template.FuncMap{
		"severityClass": func(s types.Severity) string {
			return s.String()
		},
		"formatTime": func(t time.Time) string {
			return t.Format("2006-01-02 15:04:05")
		},
		"formatDuration": func(d time.Duration) string {
			return d.Round(time.Millisecond).String()
		},
		"caps": func(s testbench.Snapshot) string {
			return "EIA " + s.EIACaps.Format(secalg.Integrity) + ", EEA " + s.EEACaps.Format(secalg.Ciphering)
		},
		"nas": func(s testbench.Snapshot) string {
			return choice(s.NASSecurityModeCommand, s.NASEIA, s.NASEEA)
		},
		"rrc": func(s testbench.Snapshot) string {
			return choice(s.RRCSecurityModeCommand, s.RRCEIA, s.RRCEEA)
		},
		"outcome": func(s testbench.Snapshot) string {
			return outcome(s)
		},
		"findingKinds": func() []testbench.FindingKind {
			return testbench.AllFindingKinds
		},
	}
}

// NewHTMLGenerator creates the default HTML generator
func NewHTMLGenerator() *HTMLGenerator {
	return &HTMLGenerator{
		template: template.Must(template.New("report").Funcs(funcMap()).Parse(htmlTemplate)),
	}
}

// Generate writes the HTML report
func (g *HTMLGenerator) Generate(report *Report, w io.Writer) error {
	return g.template.Execute(w, report)
}

// Extension returns the file extension
func (g *HTMLGenerator) Extension() string {
	return "html"
}

func (g *HTMLGenerator) ContentType() string {
	return "text/html; charset=utf-8"
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>{{.Title}} - ltesec report</title>
<style>
body { font: 14px/1.5 -apple-system, 'Segoe UI', sans-serif; margin: 0; background: #f4f5f7; color: #1d2330; }
main { max-width: 1100px; margin: 0 auto; padding: 24px; }
h1 { font-size: 22px; margin: 0 0 4px; }
h2 { font-size: 16px; margin: 0 0 12px; text-transform: uppercase; letter-spacing: .04em; color: #4a5263; }
section, header { background: #fff; border: 1px solid #dfe2e8; border-radius: 6px; padding: 16px 20px; margin-bottom: 16px; }
.meta { color: #6b7385; font-size: 12px; }
.meta b { color: #1d2330; font-family: monospace; }
.verdict { display: inline-block; margin-top: 10px; padding: 4px 12px; border-radius: 4px; font-weight: 600; color: #fff; }
.verdict.pass { background: #1f8a4c; }
.verdict.fail { background: #c0392b; }
.counters { display: flex; flex-wrap: wrap; gap: 24px; }
.counters div { min-width: 90px; }
.counters strong { display: block; font-size: 24px; }
.counters span { color: #6b7385; font-size: 12px; }
table { width: 100%; border-collapse: collapse; font-size: 13px; }
th { text-align: left; color: #6b7385; font-weight: 500; border-bottom: 2px solid #dfe2e8; padding: 6px 8px; }
td { border-bottom: 1px solid #eef0f3; padding: 6px 8px; vertical-align: top; }
tr.interesting td:first-child { border-left: 3px solid #c0392b; }
code { font-family: 'JetBrains Mono', Consolas, monospace; font-size: 12px; background: #f0f2f5; padding: 1px 4px; border-radius: 3px; }
.badge { padding: 1px 8px; border-radius: 10px; font-size: 11px; font-weight: 600; text-transform: uppercase; }
.critical { background: #c0392b; color: #fff; }
.high { background: #e67e22; color: #fff; }
.medium { background: #f1c40f; color: #1d2330; }
.low { background: #95a5a6; color: #fff; }
.info { background: #3498db; color: #fff; }
ul.findings { list-style: none; padding: 0; margin: 0; }
.anomaly-item { border-left: 4px solid #dfe2e8; padding: 8px 12px; margin-bottom: 10px; background: #fafbfc; }
.anomaly-item.critical { border-left-color: #c0392b; background: #fdf3f2; color: inherit; }
.anomaly-item.high { border-left-color: #e67e22; background: #fef7f0; color: inherit; }
.anomaly-item.medium { border-left-color: #f1c40f; background: #fefbec; }
.anomaly-item.low { border-left-color: #95a5a6; background: #f6f7f7; color: inherit; }
.anomaly-item p { margin: 2px 0; }
.empty { color: #1f8a4c; font-weight: 600; }
footer { color: #6b7385; font-size: 12px; text-align: center; }
</style>
</head>
<body>
<main>
<header>
  <h1>{{.Title}}</h1>
  <div class="meta">run <b>{{.RunID}}</b> &middot; started {{formatTime .StartedAt}} &middot; generated {{formatTime .GeneratedAt}} &middot; format v{{.Version}}</div>
  <div class="verdict {{if .Pass}}pass{{else}}fail{{end}}">{{if .Pass}}PASS: no interesting testcase{{else}}FAIL: {{.Statistics.Interesting}} interesting testcase(s){{end}}</div>
</header>

<section>
  <h2>Run</h2>
  <div class="counters">
    <div><strong>{{.Statistics.Total}}</strong><span>testcases</span></div>
    <div><strong>{{.Statistics.Interesting}}</strong><span>interesting</span></div>
    <div><strong>{{.Statistics.Connected}}</strong><span>connected</span></div>
    <div><strong>{{.Statistics.Finished}}</strong><span>finished</span></div>
    <div><strong>{{.Statistics.Rejected}}</strong><span>rejected</span></div>
    <div><strong>{{.Statistics.TimedOut}}</strong><span>timed out</span></div>
    <div><strong>{{formatDuration .Statistics.Duration}}</strong><span>duration</span></div>
  </div>
</section>

{{if .Anomalies}}
<section>
  <h2>Findings by kind</h2>
  <table>
    <tr><th>Kind</th><th>Severity</th><th>Count</th></tr>
    {{range $kind := findingKinds}}{{$n := index $.KindCounts $kind}}{{if $n}}
    <tr><td><code>{{$kind}}</code></td><td><span class="badge {{severityClass $kind.Severity}}">{{$kind.Severity}}</span></td><td>{{$n}}</td></tr>
    {{end}}{{end}}
  </table>
</section>
{{end}}

<section>
  <h2>Findings ({{len .Anomalies}})</h2>
  {{if .Anomalies}}
  <ul class="findings">
    {{range .Anomalies}}
    <li class="anomaly-item {{severityClass .Severity}}">
      <p><span class="badge {{severityClass .Severity}}">{{.Severity}}</span> <strong>Testcase {{.Testcase}}</strong>: {{.Description}}</p>
      <p>capabilities <code>{{.Capabilities}}</code> &middot; NAS <code>{{.NAS}}</code> &middot; RRC <code>{{.RRC}}</code> &middot; {{.Outcome}}</p>
      {{if .NASPcap}}<p>captures <code>{{.NASPcap}}</code> <code>{{.MACPcap}}</code></p>{{end}}
    </li>
    {{end}}
  </ul>
  {{else}}
  <p class="empty">No insecure negotiation detected</p>
  {{end}}
</section>

{{if .Clusters}}
<section>
  <h2>Triage ({{len .Clusters}} clusters)</h2>
  <table>
    <tr><th>#</th><th>Severity</th><th>Size</th><th>Representative</th><th>Signature</th></tr>
    {{range .Clusters}}
    <tr><td>{{.ID}}</td><td><span class="badge {{severityClass .Severity}}">{{.Severity}}</span></td><td>{{.Size}}</td><td>{{.Representative}}</td><td><code>{{.Signature}}</code></td></tr>
    {{end}}
  </table>
</section>
{{end}}

<section>
  <h2>Testcases</h2>
  <table>
    <tr><th>ID</th><th>Capabilities</th><th>NAS SMC</th><th>RRC SMC</th><th>Outcome</th><th>Keys</th></tr>
    {{range .Testcases}}
    <tr{{if .Summary.IsInteresting}} class="interesting"{{end}}><td>{{.Snapshot.ID}}</td><td><code>{{caps .Snapshot}}</code></td><td>{{nas .Snapshot}}</td><td>{{rrc .Snapshot}}</td><td>{{outcome .Snapshot}}</td><td>{{.Snapshot.Keys.Count}}/3</td></tr>
    {{end}}
  </table>
</section>

<footer>ltesec &middot; LTE NAS/RRC security compliance testbench</footer>
</main>
</body>
</html>`

// SetTemplate replaces the page template
func (g *HTMLGenerator) SetTemplate(tmpl *template.Template) {
	g.template = tmpl
}

// CustomHTMLGenerator parses templateStr with the report helpers available
func CustomHTMLGenerator(templateStr string) (*HTMLGenerator, error) {
	tmpl, err := template.New("report").Funcs(funcMap()).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	return &HTMLGenerator{template: tmpl}, nil
}
