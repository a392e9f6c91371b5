package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fluxfuzzer/ltesec/internal/secalg"
	"github.com/fluxfuzzer/ltesec/internal/testbench"
	"github.com/fluxfuzzer/ltesec/pkg/types"
)

// Status represents the dashboard state
type Status int

const (
	StatusIdle Status = iota
	StatusRunning
	StatusStopped
	StatusCompleted
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "Idle"
	case StatusRunning:
		return "Running"
	case StatusStopped:
		return "Stopped"
	case StatusCompleted:
		return "Completed"
	default:
		return "Unknown"
	}
}

// LogEntry represents a line of the activity log
type LogEntry struct {
	Time    time.Time
	Level   string
	Message string
}

// Source is polled for the run counters; *testbench.Testbench satisfies it
type Source interface {
	Stats() testbench.Stats
}

// Feed buffers testbench events between dashboard refreshes. Publish is a
// testbench.Listener; the oldest events are discarded once max is reached.
type Feed struct {
	mu     sync.Mutex
	events []types.Event
	max    int
}

// NewFeed creates a feed holding at most max undrained events
func NewFeed(max int) *Feed {
	if max <= 0 {
		max = 100
	}
	return &Feed{max: max}
}

// Publish records ev
func (f *Feed) Publish(ev types.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	if len(f.events) > f.max {
		f.events = f.events[len(f.events)-f.max:]
	}
}

// Drain returns and clears the buffered events
func (f *Feed) Drain() []types.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.events
	f.events = nil
	return out
}

// Negotiated counts the algorithms chosen by security mode commands
type Negotiated struct {
	NASEIA, NASEEA [8]int
	RRCEIA, RRCEEA [8]int
}

func (n *Negotiated) observe(ev types.Event) {
	if ev.EIA > 7 || ev.EEA > 7 {
		return
	}
	switch ev.Type {
	case types.EventNASSMC:
		n.NASEIA[ev.EIA]++
		n.NASEEA[ev.EEA]++
	case types.EventRRCSMC:
		n.RRCEIA[ev.EIA]++
		n.RRCEEA[ev.EEA]++
	}
}

func describeEvent(ev types.Event) LogEntry {
	level, msg := describe(ev)
	return LogEntry{Time: ev.Timestamp, Level: level, Message: msg}
}

func describe(ev types.Event) (string, string) {
	prefix := fmt.Sprintf("#%d ", ev.TestcaseID)
	switch ev.Type {
	case types.EventStart:
		return "INFO", prefix + fmt.Sprintf("started EIA 0x%02x EEA 0x%02x", ev.EIAMask, ev.EEAMask)
	case types.EventNASSMC:
		return "INFO", prefix + fmt.Sprintf("NAS SMC EIA%d/EEA%d", ev.EIA, ev.EEA)
	case types.EventRRCSMC:
		return "INFO", prefix + fmt.Sprintf("RRC SMC EIA%d/EEA%d", ev.EIA, ev.EEA)
	case types.EventAttachAccept:
		return "INFO", prefix + "attach accept"
	case types.EventAttachReject:
		return "WARN", prefix + "attach reject " + testbench.CauseString(ev.Cause)
	case types.EventRRCKey:
		return "DEBUG", prefix + "key " + ev.KeyType
	case types.EventTimeout:
		return "WARN", prefix + "timeout"
	default:
		return "DEBUG", prefix + string(ev.Type)
	}
}

// Dashboard is the main TUI model
type Dashboard struct {
	width  int
	height int

	title     string
	status    Status
	pass      bool
	source    Source
	feed      *Feed
	stats     *Stats
	statsView *StatsView
	progress  *ProgressView
	spinner   *Spinner

	logs       []LogEntry
	maxLogs    int
	negotiated Negotiated

	lastInteresting int
}

// NewDashboard creates a dashboard polling source. feed may be nil.
func NewDashboard(title string, source Source, feed *Feed) *Dashboard {
	return &Dashboard{
		width:     80,
		height:    24,
		title:     title,
		status:    StatusRunning,
		pass:      true,
		source:    source,
		feed:      feed,
		stats:     NewStats(),
		statsView: NewStatsView(40, 15),
		progress:  NewProgressView(40),
		spinner:   NewSpinner(),
		logs:      make([]LogEntry, 0, 100),
		maxLogs:   50,
	}
}

// SetExpected sets the number of testcases of a bounded run
func (d *Dashboard) SetExpected(n int) {
	d.stats.SetExpected(n)
}

// AddLog adds a log entry
func (d *Dashboard) AddLog(level, message string) {
	d.appendLogs(LogEntry{Time: time.Now(), Level: level, Message: message})
}

func (d *Dashboard) appendLogs(entries ...LogEntry) {
	d.logs = append(d.logs, entries...)
	if len(d.logs) > d.maxLogs {
		d.logs = d.logs[len(d.logs)-d.maxLogs:]
	}
}

// --- Bubbletea Model interface ---

// TickMsg is sent on each refresh tick
type TickMsg time.Time

// DoneMsg tells the dashboard that the run ended
type DoneMsg struct {
	Pass bool
	Err  error
}

// Init initializes the model
func (d *Dashboard) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// refresh polls the source and drains the feed
func (d *Dashboard) refresh() {
	st := d.source.Stats()
	d.stats.Update(st)
	d.pass = st.Pass

	if d.feed != nil {
		for _, ev := range d.feed.Drain() {
			d.negotiated.observe(ev)
			d.appendLogs(describeEvent(ev))
		}
	}
	if st.Interesting > d.lastInteresting {
		d.AddLog("ERROR", fmt.Sprintf("%d new interesting testcase(s)", st.Interesting-d.lastInteresting))
		d.lastInteresting = st.Interesting
	}

	d.progress.Update(d.stats.Snapshot())
}

// Update handles messages
func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if d.status == StatusRunning {
				d.status = StatusStopped
			}
			return d, tea.Quit
		}

	case tea.WindowSizeMsg:
		d.width = msg.Width
		d.height = msg.Height
		d.statsView.SetSize(d.width/3, d.height-10)
		d.progress.SetSize(d.width/2 - 6)

	case DoneMsg:
		d.refresh()
		d.status = StatusCompleted
		d.spinner.Stop()
		if msg.Err != nil {
			d.AddLog("ERROR", msg.Err.Error())
		}
		verdict := "PASS"
		if !msg.Pass {
			verdict = "FAIL"
		}
		d.AddLog("INFO", "run completed: "+verdict)

	case TickMsg:
		d.spinner.Tick()
		d.refresh()
		if d.status == StatusCompleted {
			return d, nil
		}
		return d, tickCmd()
	}

	return d, nil
}

// View renders the dashboard
func (d *Dashboard) View() string {
	if d.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	b.WriteString(d.renderHeader())
	b.WriteString("\n")

	b.WriteString(lipgloss.JoinHorizontal(
		lipgloss.Top,
		d.statsView.Render(d.stats.Snapshot()),
		d.renderLogPanel(),
	))
	b.WriteString("\n")

	b.WriteString(lipgloss.JoinHorizontal(
		lipgloss.Top,
		d.progress.Render(),
		d.renderNegotiated(),
	))
	b.WriteString("\n")

	b.WriteString(FooterStyle.Render(RenderHelp("q", "quit")))

	return b.String()
}

func (d *Dashboard) renderHeader() string {
	title := TitleStyle.Render("🛡️ ltesec")

	var statusText string
	switch d.status {
	case StatusRunning:
		statusText = d.spinner.Render() + " " + SuccessStyle.Render("RUNNING")
	case StatusStopped:
		statusText = ErrorStyle.Render("■ STOPPED")
	case StatusCompleted:
		statusText = SuccessStyle.Render("✓ COMPLETED")
	default:
		statusText = HelpStyle.Render("○ IDLE")
	}

	leftSide := title + "  " + statusText + "  " + VerdictStyle(d.pass)
	rightSide := InfoStyle.Render(d.title)

	padding := d.width - lipgloss.Width(leftSide) - lipgloss.Width(rightSide) - 2
	if padding < 0 {
		padding = 0
	}

	return BoxStyle.Width(d.width - 2).Render(leftSide + strings.Repeat(" ", padding) + rightSide)
}

func (d *Dashboard) renderLogPanel() string {
	var b strings.Builder

	b.WriteString(HeaderStyle.Render("📝 Events"))
	b.WriteString("\n\n")

	rows := d.height - 14
	if rows < 8 {
		rows = 8
	}
	startIdx := 0
	if len(d.logs) > rows {
		startIdx = len(d.logs) - rows
	}

	maxWidth := d.width/2 - 10
	for _, entry := range d.logs[startIdx:] {
		msg := entry.Message
		if maxWidth > 20 && len(msg) > maxWidth-15 {
			msg = msg[:maxWidth-18] + "..."
		}

		b.WriteString(fmt.Sprintf("%s %s %s\n",
			HelpStyle.Render(entry.Time.Format("15:04:05")),
			LevelStyle(entry.Level).Render(fmt.Sprintf("%-5s", entry.Level)),
			msg,
		))
	}

	return LogPanelStyle.Width(d.width/2 - 4).Render(b.String())
}

// renderNegotiated shows one row of per-index counts for each SMC field.
// Null and spare algorithms are highlighted once chosen.
func (d *Dashboard) renderNegotiated() string {
	var b strings.Builder

	b.WriteString(HeaderStyle.Render("🔐 Negotiated"))
	b.WriteString("\n\n")

	rows := []struct {
		label  string
		counts [8]int
		dir    secalg.Direction
	}{
		{"NAS EIA", d.negotiated.NASEIA, secalg.Integrity},
		{"NAS EEA", d.negotiated.NASEEA, secalg.Ciphering},
		{"RRC EIA", d.negotiated.RRCEIA, secalg.Integrity},
		{"RRC EEA", d.negotiated.RRCEEA, secalg.Ciphering},
	}
	for _, row := range rows {
		b.WriteString(RenderLabel(row.label))
		for i, n := range row.counts {
			alg := secalg.Algorithm(i)
			cell := fmt.Sprintf(" %d:%-3d", i, n)
			switch {
			case n == 0:
				cell = HelpStyle.Render(cell)
			case alg.IsReserved():
				cell = SeverityStyle(types.Medium).Render(cell)
			case alg.IsNull() && row.dir == secalg.Integrity:
				cell = ErrorStyle.Render(cell)
			default:
				cell = ValueStyle.Render(cell)
			}
			b.WriteString(cell)
		}
		b.WriteString("\n")
	}

	return PanelStyle.Render(b.String())
}

// NewProgram returns the tea.Program for external control, e.g. to Send a DoneMsg
func NewProgram(d *Dashboard) *tea.Program {
	return tea.NewProgram(d, tea.WithAltScreen())
}

// Run runs the dashboard until the user quits
func Run(d *Dashboard) error {
	_, err := NewProgram(d).Run()
	return err
}
