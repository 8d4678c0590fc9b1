package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func ac(light, dark string) lipgloss.AdaptiveColor {
	return lipgloss.AdaptiveColor{Light: light, Dark: dark}
}

var (
	colorMuted    lipgloss.TerminalColor = ac("240", "243")
	colorAccent   lipgloss.TerminalColor = ac("27", "62")
	colorError    lipgloss.TerminalColor = ac("160", "203")
	colorWarning  lipgloss.TerminalColor = ac("130", "214")
	colorSuccess  lipgloss.TerminalColor = ac("28", "42")
	colorSelected lipgloss.TerminalColor = ac("#e9e9e9", "#262626")
	colorBorder   lipgloss.TerminalColor = ac("250", "243")
)

var (
	styleTitle    = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	styleMuted    = lipgloss.NewStyle().Foreground(colorMuted)
	styleError    = lipgloss.NewStyle().Foreground(colorError)
	styleWarning  = lipgloss.NewStyle().Foreground(colorWarning)
	styleSuccess  = lipgloss.NewStyle().Foreground(colorSuccess)
	styleSelected = lipgloss.NewStyle().Background(colorSelected).Bold(true)
	styleHeader   = lipgloss.NewStyle().Bold(true).Foreground(colorMuted)
)

const minModalWidth = 44

func modalWidth(width int) int {
	w := width - 8
	if w > 64 {
		w = 64
	}
	if w < minModalWidth {
		w = minModalWidth
	}
	return w
}

func renderModal(width int, title string, lines ...string) string {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Padding(0, 1).
		Width(modalWidth(width))
	body := append([]string{styleTitle.Render(title), ""}, lines...)
	return box.Render(strings.Join(body, "\n"))
}
