// Package ui provides the terminal dashboard of a testbench run.
package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/fluxfuzzer/ltesec/pkg/types"
)

var (
	colorAccent   = lipgloss.Color("#00FFFF")
	colorTitle    = lipgloss.Color("#FF00FF")
	colorSecure   = lipgloss.Color("#00FF00")
	colorWarn     = lipgloss.Color("#FFFF00")
	colorInsecure = lipgloss.Color("#FF0055")
	colorSpare    = lipgloss.Color("#FF8800")
	colorBar      = lipgloss.Color("#16213E")
	colorMuted    = lipgloss.Color("#666666")
	colorValue    = lipgloss.Color("#FFFFFF")
)

func fg(c lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(c)
}

func panel(border lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(border)
}

var (
	HeaderStyle = fg(colorAccent).Bold(true).Background(colorBar).Padding(0, 1).MarginBottom(1)
	TitleStyle  = fg(colorTitle).Bold(true).Background(colorBar).Padding(0, 2)
	BoxStyle    = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(colorAccent)

	PanelStyle      = panel(colorAccent).Padding(1, 2).MarginRight(1)
	StatsPanelStyle = panel(colorTitle).Padding(1, 2)
	LogPanelStyle   = panel(colorSecure).Padding(0, 1)

	LabelStyle = fg(colorMuted).Width(15)
	ValueStyle = fg(colorValue).Bold(true)
	HelpStyle  = fg(colorMuted)
	KeyStyle   = fg(colorAccent).Bold(true)

	FooterStyle = HelpStyle.MarginTop(1)

	// verdict and status
	SuccessStyle = fg(colorSecure).Bold(true)
	ErrorStyle   = fg(colorInsecure).Bold(true)
	WarningStyle = fg(colorWarn)
	InfoStyle    = fg(colorAccent)

	ProgressFullStyle  = fg(colorAccent)
	ProgressEmptyStyle = fg(colorMuted)

	SpinnerChars = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
)

var severityStyles = map[types.Severity]lipgloss.Style{
	types.Critical: fg(colorTitle).Bold(true),
	types.High:     fg(colorInsecure).Bold(true),
	types.Medium:   fg(colorSpare),
}

// SeverityStyle returns the style used for findings of sev
func SeverityStyle(sev types.Severity) lipgloss.Style {
	if s, ok := severityStyles[sev]; ok {
		return s
	}
	return WarningStyle
}

// LevelStyle returns the style of an activity log level
func LevelStyle(level string) lipgloss.Style {
	switch level {
	case "ERROR":
		return ErrorStyle
	case "WARN":
		return WarningStyle
	case "INFO":
		return InfoStyle
	}
	return HelpStyle
}

// VerdictStyle renders the run verdict
func VerdictStyle(pass bool) string {
	if pass {
		return SuccessStyle.Render("PASS")
	}
	return ErrorStyle.Render("FAIL")
}

// RenderLabel renders "label:" in the label column
func RenderLabel(label string) string {
	return LabelStyle.Render(label + ":")
}

// RenderValue renders a counter value
func RenderValue(value string) string {
	return ValueStyle.Render(value)
}

// RenderLabelValue renders one label column row
func RenderLabelValue(label, value string) string {
	return RenderLabel(label) + " " + RenderValue(value)
}

// RenderHelp renders a key binding hint
func RenderHelp(key, description string) string {
	return KeyStyle.Render("["+key+"]") + " " + HelpStyle.Render(description)
}

// Banner is printed by the CLI before a run
const Banner = `
┌───────────────────────────────────────────────┐
│  ltesec  ·  LTE NAS/RRC security testbench    │
└───────────────────────────────────────────────┘`

// GetBannerStyled returns the styled banner
func GetBannerStyled() string {
	return InfoStyle.Bold(true).Render(Banner)
}
