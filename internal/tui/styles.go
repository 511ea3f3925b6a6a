package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorAccent  = lipgloss.Color("62")
	colorMuted   = lipgloss.Color("240")
	colorRunning = lipgloss.AdaptiveColor{Light: "136", Dark: "220"}
	colorDone    = lipgloss.AdaptiveColor{Light: "28", Dark: "42"}
	colorFailed  = lipgloss.AdaptiveColor{Light: "160", Dark: "203"}
)

var (
	StyleTitle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	StyleHelp = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	StyleSelected = lipgloss.NewStyle().
			Background(colorAccent).
			Foreground(lipgloss.Color("0"))
)

// statusStyles colour icons, counters and bar segments by task status.
var statusStyles = map[string]lipgloss.Style{
	StatusPending:   lipgloss.NewStyle().Foreground(colorMuted),
	StatusRunning:   lipgloss.NewStyle().Foreground(colorRunning).Bold(true),
	StatusCompleted: lipgloss.NewStyle().Foreground(colorDone).Bold(true),
	StatusFailed:    lipgloss.NewStyle().Foreground(colorFailed).Bold(true),
}

var statusIcons = map[string]string{
	StatusPending:   "○",
	StatusRunning:   "●",
	StatusCompleted: "✓",
	StatusFailed:    "✗",
}

// statusStyle falls back to the pending style for unknown statuses.
func statusStyle(status string) lipgloss.Style {
	if s, ok := statusStyles[status]; ok {
		return s
	}
	return statusStyles[StatusPending]
}

// StatusIcon returns the coloured marker for a task status.
func StatusIcon(status string) string {
	icon, ok := statusIcons[status]
	if !ok {
		icon = statusIcons[StatusPending]
	}
	return statusStyle(status).Render(icon)
}

// paneStyle is the rounded border around a pane, highlighted when focused.
func paneStyle(focused bool) lipgloss.Style {
	border := colorMuted
	if focused {
		border = colorAccent
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border)
}
