package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fluxfuzzer/ltesec/internal/testbench"
)

// rateWindow is how far back the recent finish rate looks
const rateWindow = 10 * time.Second

type sample struct {
	at       time.Time
	finished int
}

// Stats samples the testbench counters and derives throughput from them
type Stats struct {
	mu sync.RWMutex

	StartTime time.Time

	current  testbench.Stats
	expected int
	samples  []sample
}

// NewStats creates a new Stats instance
func NewStats() *Stats {
	return &Stats{StartTime: time.Now()}
}

// Update stores the latest counters
func (s *Stats) Update(st testbench.Stats) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = st
	s.samples = append(s.samples, sample{at: now, finished: st.Finished})
	cut := 0
	for cut < len(s.samples)-1 && now.Sub(s.samples[cut].at) > rateWindow {
		cut++
	}
	s.samples = s.samples[cut:]
}

// SetExpected sets how many testcases the run will execute; 0 when open ended
func (s *Stats) SetExpected(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expected = n
}

// recentRate is the finish rate over the sample window, or -1 when the
// window is too short to tell
func (s *Stats) recentRate() float64 {
	if len(s.samples) < 2 {
		return -1
	}
	first, last := s.samples[0], s.samples[len(s.samples)-1]
	span := last.at.Sub(first.at)
	if span < time.Second {
		return -1
	}
	return float64(last.finished-first.finished) / span.Seconds()
}

// Snapshot returns a copy of the current stats
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	elapsed := time.Since(s.StartTime)
	snap := StatsSnapshot{
		Stats:    s.current,
		Expected: s.expected,
		Elapsed:  elapsed,
	}
	if elapsed >= time.Second {
		snap.Rate = float64(s.current.Finished) / elapsed.Seconds()
	}
	snap.RecentRate = s.recentRate()
	if snap.RecentRate < 0 {
		snap.RecentRate = snap.Rate
	}
	if s.current.Total > 0 {
		snap.InterestingRatio = float64(s.current.Interesting) / float64(s.current.Total)
	}

	if s.expected > 0 {
		snap.Progress = min(float64(s.current.Finished)/float64(s.expected), 1)
		if snap.RecentRate > 0 && s.current.Finished < s.expected {
			remaining := float64(s.expected - s.current.Finished)
			snap.ETA = time.Duration(remaining/snap.RecentRate) * time.Second
		}
	}
	return snap
}

// StatsSnapshot is an immutable snapshot of stats
type StatsSnapshot struct {
	testbench.Stats

	Expected         int
	Elapsed          time.Duration
	Rate             float64 // finished testcases per second since start
	RecentRate       float64 // same, over the last rateWindow
	InterestingRatio float64
	Progress         float64
	ETA              time.Duration
}

// StatsView renders the statistics panel
type StatsView struct {
	width  int
	height int
}

// NewStatsView creates a new stats view
func NewStatsView(width, height int) *StatsView {
	return &StatsView{
		width:  width,
		height: height,
	}
}

// SetSize updates the view size
func (v *StatsView) SetSize(width, height int) {
	v.width = width
	v.height = height
}

func section(b *strings.Builder, title string) {
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString(HeaderStyle.Render(title))
	b.WriteString("\n\n")
}

func row(b *strings.Builder, label, value string) {
	b.WriteString(RenderLabel(label))
	b.WriteString(" ")
	b.WriteString(value)
	b.WriteString("\n")
}

// Render renders the stats view
func (v *StatsView) Render(snap StatsSnapshot) string {
	var b strings.Builder

	section(&b, "📊 Testcases")
	row(&b, "Total", RenderValue(formatNumber(int64(snap.Total))))
	row(&b, "Finished", RenderValue(formatNumber(int64(snap.Finished))))
	row(&b, "Connected", SuccessStyle.Render(formatNumber(int64(snap.Connected))))
	row(&b, "Rejected", WarningStyle.Render(formatNumber(int64(snap.Rejected))))
	row(&b, "Timed out", RenderValue(formatNumber(int64(snap.TimedOut))))

	section(&b, "⚡ Throughput")
	row(&b, "Rate", RenderValue(fmt.Sprintf("%.1f/s (%.1f/s now)", snap.Rate, snap.RecentRate)))
	row(&b, "Elapsed", RenderValue(formatDuration(snap.Elapsed)))

	section(&b, "🔍 Findings")
	interesting := fmt.Sprintf("%s (%.0f%%)", formatNumber(int64(snap.Interesting)), snap.InterestingRatio*100)
	if snap.Interesting > 0 {
		row(&b, "Interesting", ErrorStyle.Render(interesting))
	} else {
		row(&b, "Interesting", SuccessStyle.Render(interesting))
	}
	for _, kind := range testbench.AllFindingKinds {
		if n := snap.Findings[kind]; n > 0 {
			b.WriteString("  ")
			b.WriteString(SeverityStyle(kind.Severity()).Render(fmt.Sprintf("%-24s %d", kind, n)))
			b.WriteString("\n")
		}
	}

	return StatsPanelStyle.Width(v.width).Render(b.String())
}

func formatNumber(n int64) string {
	switch {
	case n < 1000:
		return fmt.Sprintf("%d", n)
	case n < 1000000:
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	default:
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
