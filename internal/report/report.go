// Package report renders the verdict of a testbench run as JSON, Markdown, HTML or text.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fluxfuzzer/ltesec/internal/secalg"
	"github.com/fluxfuzzer/ltesec/internal/testbench"
	"github.com/fluxfuzzer/ltesec/internal/triage"
	"github.com/fluxfuzzer/ltesec/pkg/types"
	"github.com/google/uuid"
)

// Anomaly is one raised finding of one testcase
type Anomaly struct {
	ID           string                `json:"id"`
	Testcase     testbench.TestcaseID  `json:"testcase"`
	Kind         testbench.FindingKind `json:"kind"`
	Severity     types.Severity        `json:"severity"`
	Description  string                `json:"description"`
	Capabilities string                `json:"capabilities"`
	NAS          string                `json:"nas"`
	RRC          string                `json:"rrc"`
	Outcome      string                `json:"outcome"`
	NASPcap      string                `json:"nas_pcap,omitempty"`
	MACPcap      string                `json:"mac_pcap,omitempty"`
	Timestamp    time.Time             `json:"timestamp"`
}

// Statistics holds run statistics
type Statistics struct {
	testbench.Stats
	Duration time.Duration `json:"duration"`
}

// MarshalJSON implements custom JSON marshaling for Statistics
func (s Statistics) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		testbench.Stats
		Duration string `json:"duration"`
	}{
		Stats:    s.Stats,
		Duration: s.Duration.String(),
	})
}

// Report represents a testbench report
type Report struct {
	// Metadata
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Version     string    `json:"version"`
	GeneratedAt time.Time `json:"generated_at"`
	RunID       string    `json:"run_id"`
	StartedAt   time.Time `json:"started_at"`

	// Verdict
	Pass       bool       `json:"pass"`
	Statistics Statistics `json:"statistics"`

	Testcases []testbench.Entry `json:"testcases"`
	Anomalies []Anomaly         `json:"anomalies"`
	Clusters  []triage.Cluster  `json:"clusters,omitempty"`

	// Summary by severity
	SeverityCounts map[types.Severity]int `json:"severity_counts"`

	// Summary by kind
	KindCounts map[testbench.FindingKind]int `json:"kind_counts"`
}

// NewReport creates an empty report
func NewReport(title string) *Report {
	return &Report{
		Title:          title,
		Version:        "1.0",
		GeneratedAt:    time.Now(),
		Pass:           true,
		Testcases:      make([]testbench.Entry, 0),
		Anomalies:      make([]Anomaly, 0),
		SeverityCounts: make(map[types.Severity]int),
		KindCounts:     make(map[testbench.FindingKind]int),
	}
}

// FromTestbench builds a report from the current state of tb
func FromTestbench(tb *testbench.Testbench, title string) *Report {
	r := NewReport(title)
	r.RunID = tb.RunID()
	r.StartedAt = tb.StartedAt()
	for _, e := range tb.Entries() {
		r.AddEntry(e)
	}
	r.SetStatistics(Statistics{Stats: tb.Stats(), Duration: r.GeneratedAt.Sub(r.StartedAt)})
	return r
}

// AddEntry adds a testcase and one anomaly per raised finding
func (r *Report) AddEntry(e testbench.Entry) {
	r.Testcases = append(r.Testcases, e)
	if e.Summary.IsInteresting {
		r.Pass = false
	}

	s := e.Snapshot
	for _, f := range e.Findings() {
		r.AddAnomaly(Anomaly{
			ID:           uuid.NewString(),
			Testcase:     s.ID,
			Kind:         f.Kind,
			Severity:     f.Severity,
			Description:  f.Description,
			Capabilities: fmt.Sprintf("EIA %s, EEA %s", s.EIACaps.Format(secalg.Integrity), s.EEACaps.Format(secalg.Ciphering)),
			NAS:          choice(s.NASSecurityModeCommand, s.NASEIA, s.NASEEA),
			RRC:          choice(s.RRCSecurityModeCommand, s.RRCEIA, s.RRCEEA),
			Outcome:      outcome(s),
			NASPcap:      s.NASPcap,
			MACPcap:      s.MACPcap,
			Timestamp:    s.CreatedAt,
		})
	}
}

// AddAnomaly adds an anomaly to the report
func (r *Report) AddAnomaly(a Anomaly) {
	r.Anomalies = append(r.Anomalies, a)
	r.SeverityCounts[a.Severity]++
	r.KindCounts[a.Kind]++
}

// SetStatistics sets the statistics
func (r *Report) SetStatistics(stats Statistics) {
	r.Statistics = stats
	r.Pass = stats.Pass
}

// SetClusters attaches triage clusters
func (r *Report) SetClusters(clusters []triage.Cluster) {
	r.Clusters = clusters
}

// FilterBySeverity returns anomalies with the given severity
func (r *Report) FilterBySeverity(severity types.Severity) []Anomaly {
	var filtered []Anomaly
	for _, a := range r.Anomalies {
		if a.Severity == severity {
			filtered = append(filtered, a)
		}
	}
	return filtered
}

// FilterByKind returns anomalies of the given kind
func (r *Report) FilterByKind(kind testbench.FindingKind) []Anomaly {
	var filtered []Anomaly
	for _, a := range r.Anomalies {
		if a.Kind == kind {
			filtered = append(filtered, a)
		}
	}
	return filtered
}

// Interesting returns the testcases that need manual review
func (r *Report) Interesting() []testbench.Entry {
	var out []testbench.Entry
	for _, e := range r.Testcases {
		if e.Summary.IsInteresting {
			out = append(out, e)
		}
	}
	return out
}

func choice(seen bool, eia, eea secalg.Algorithm) string {
	if !seen {
		return "-"
	}
	return eia.Name(secalg.Integrity) + " / " + eea.Name(secalg.Ciphering)
}

func outcome(s testbench.Snapshot) string {
	switch {
	case s.AttachAccept && s.Connected():
		return "connected"
	case s.AttachAccept:
		return "attach accepted"
	case s.AttachReject:
		return "rejected: " + testbench.CauseString(s.RejectCause)
	case s.TimedOut:
		return "timed out"
	default:
		return "pending"
	}
}

// Generator renders a report in one format
type Generator interface {
	Generate(report *Report, w io.Writer) error
	Extension() string
	ContentType() string
}

// Manager maps format names to generators and writes report files
type Manager struct {
	generators map[string]Generator
	formats    []string // canonical names, registration order
	outputDir  string
}

// NewManager returns a manager writing below outputDir with the json, html,
// markdown (alias md) and text formats registered
func NewManager(outputDir string) *Manager {
	m := &Manager{
		generators: make(map[string]Generator),
		outputDir:  outputDir,
	}
	m.Register("json", &JSONGenerator{Indent: true})
	m.Register("html", NewHTMLGenerator())
	m.Register("markdown", &MarkdownGenerator{IncludeDetails: true}, "md")
	m.Register("text", &TextGenerator{}, "txt")
	return m
}

// Register adds gen under format and its aliases, replacing any previous one
func (m *Manager) Register(format string, gen Generator, aliases ...string) {
	if _, ok := m.generators[format]; !ok {
		m.formats = append(m.formats, format)
	}
	m.generators[format] = gen
	for _, a := range aliases {
		m.generators[a] = gen
	}
}

// Formats returns the canonical format names
func (m *Manager) Formats() []string {
	return append([]string(nil), m.formats...)
}

// Generator looks up format or one of its aliases
func (m *Manager) Generator(format string) (Generator, error) {
	gen, ok := m.generators[format]
	if !ok {
		return nil, fmt.Errorf("unknown report format %q (want one of %s)", format, strings.Join(m.formats, ", "))
	}
	return gen, nil
}

// FileName is the name a report of run is written under
func FileName(report *Report, ext string) string {
	run := report.RunID
	if len(run) > 8 {
		run = run[:8]
	}
	if run == "" {
		run = "norun"
	}
	return fmt.Sprintf("ltesec_%s_%s.%s", run, report.GeneratedAt.Format("20060102_150405"), ext)
}

// Generate writes the report to the output directory and returns the file path
func (m *Manager) Generate(report *Report, format string) (string, error) {
	gen, err := m.Generator(format)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(m.outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(m.outputDir, FileName(report, gen.Extension()))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}
	if err := gen.Generate(report, f); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to generate %s report: %w", format, err)
	}
	return path, f.Close()
}

// GenerateAll writes one file per canonical format
func (m *Manager) GenerateAll(report *Report) ([]string, error) {
	var paths []string
	for _, format := range m.formats {
		path, err := m.Generate(report, format)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// Write renders the report in format to w
func (m *Manager) Write(report *Report, format string, w io.Writer) error {
	gen, err := m.Generator(format)
	if err != nil {
		return err
	}
	return gen.Generate(report, w)
}
