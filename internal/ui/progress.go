package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fluxfuzzer/ltesec/pkg/types"
)

// segment is one colored run of cells in a stacked bar
type segment struct {
	label string
	n     int
	style lipgloss.Style
}

// ProgressBar renders a fraction as a bar. When segments are set the filled
// part is split between them in proportion to their counts.
type ProgressBar struct {
	width      int
	percentage float64
	eta        string
	segments   []segment
}

// NewProgressBar creates a new progress bar
func NewProgressBar(width int) *ProgressBar {
	return &ProgressBar{width: width}
}

// SetProgress sets the progress fraction, clamped to [0, 1]
func (p *ProgressBar) SetProgress(percentage float64) {
	p.percentage = min(max(percentage, 0), 1)
}

// SetETA sets the estimated time remaining
func (p *ProgressBar) SetETA(eta string) {
	p.eta = eta
}

// SetWidth sets the progress bar width
func (p *ProgressBar) SetWidth(width int) {
	p.width = width
}

func (p *ProgressBar) setSegments(segs []segment) {
	p.segments = segs
}

// cells distributes filled cells over the segments in proportion to their
// counts. A non-empty segment keeps at least one cell while cells remain.
func cells(filled int, segs []segment) []int {
	out := make([]int, len(segs))
	total, nonEmpty := 0, 0
	for _, s := range segs {
		total += s.n
		if s.n > 0 {
			nonEmpty++
		}
	}
	if total == 0 || filled == 0 {
		return out
	}

	rest := filled
	if filled >= nonEmpty {
		for i, s := range segs {
			if s.n > 0 {
				out[i] = 1
			}
		}
		rest -= nonEmpty
	}
	for i, s := range segs {
		out[i] += rest * s.n / total
	}
	for i, used := 0, sum(out); used < filled; i = (i + 1) % len(out) {
		if segs[i].n > 0 {
			out[i]++
			used++
		}
	}
	return out
}

func sum(v []int) int {
	t := 0
	for _, x := range v {
		t += x
	}
	return t
}

// Render renders the progress bar
func (p *ProgressBar) Render() string {
	barWidth := max(p.width-10, 10)
	filled := int(float64(barWidth) * p.percentage)

	var b strings.Builder
	if len(p.segments) == 0 {
		b.WriteString(ProgressFullStyle.Render(strings.Repeat("█", filled)))
	} else {
		n := cells(filled, p.segments)
		if sum(n) == 0 {
			n = nil
			b.WriteString(ProgressFullStyle.Render(strings.Repeat("█", filled)))
		}
		for i, c := range n {
			b.WriteString(p.segments[i].style.Render(strings.Repeat("█", c)))
		}
	}
	b.WriteString(ProgressEmptyStyle.Render(strings.Repeat("░", barWidth-filled)))
	b.WriteString(" ")
	b.WriteString(ValueStyle.Render(fmt.Sprintf("%5.1f%%", p.percentage*100)))

	if p.eta != "" {
		b.WriteString(" ")
		b.WriteString(InfoStyle.Render("ETA: " + p.eta))
	}
	return b.String()
}

// legend renders one "█ label n" item per segment
func (p *ProgressBar) legend() string {
	items := make([]string, 0, len(p.segments))
	for _, s := range p.segments {
		items = append(items, s.style.Render("█")+" "+HelpStyle.Render(fmt.Sprintf("%s %d", s.label, s.n)))
	}
	return strings.Join(items, "  ")
}

// ProgressView shows how far the run got and how the finished testcases
// ended. Open ended runs scale the bar to the finished count.
type ProgressView struct {
	width    int
	progress *ProgressBar
	finished int
	expected int
}

// NewProgressView creates a new progress view
func NewProgressView(width int) *ProgressView {
	return &ProgressView{
		width:    width,
		progress: NewProgressBar(width - 6),
	}
}

// SetSize updates the view size
func (v *ProgressView) SetSize(width int) {
	v.width = width
	v.progress.SetWidth(width - 6)
}

// Update updates the progress view from a stats snapshot
func (v *ProgressView) Update(snap StatsSnapshot) {
	v.finished = snap.Finished
	v.expected = snap.Expected

	v.progress.setSegments([]segment{
		{"connected", snap.Connected, SuccessStyle},
		{"rejected", snap.Rejected, WarningStyle},
		{"timed out", snap.TimedOut, SeverityStyle(types.Medium)},
	})
	switch {
	case snap.Expected > 0:
		v.progress.SetProgress(snap.Progress)
	case snap.Finished > 0:
		v.progress.SetProgress(1)
	default:
		v.progress.SetProgress(0)
	}
	if snap.ETA > 0 {
		v.progress.SetETA(formatDuration(snap.ETA))
	} else {
		v.progress.SetETA("")
	}
}

// Render renders the progress view
func (v *ProgressView) Render() string {
	var b strings.Builder

	b.WriteString(HeaderStyle.Render("📈 Progress"))
	b.WriteString("\n\n")
	b.WriteString(v.progress.Render())
	b.WriteString("\n")
	b.WriteString(v.progress.legend())
	b.WriteString("\n\n")

	finished := fmt.Sprintf("%d", v.finished)
	if v.expected > 0 {
		finished += fmt.Sprintf(" / %d", v.expected)
	}
	b.WriteString(RenderLabelValue("Finished", finished))

	return PanelStyle.Width(v.width).Render(b.String())
}

// Spinner animates the header while the run is live
type Spinner struct {
	frame   int
	running bool
}

// NewSpinner creates a running spinner
func NewSpinner() *Spinner {
	return &Spinner{running: true}
}

// Stop freezes the spinner
func (s *Spinner) Stop() {
	s.running = false
}

// Tick advances the animation
func (s *Spinner) Tick() {
	if s.running {
		s.frame = (s.frame + 1) % len(SpinnerChars)
	}
}

// Render renders the current frame
func (s *Spinner) Render() string {
	if !s.running {
		return SuccessStyle.Render("✓")
	}
	return InfoStyle.Render(SpinnerChars[s.frame])
}
