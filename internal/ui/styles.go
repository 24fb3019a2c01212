package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

const (
	MinTerminalWidth = 60
	MaxContentWidth  = 100
)

var (
	accent = lipgloss.Color("#7D56F4")
	muted  = lipgloss.Color("#626262")
	text   = lipgloss.Color("#FFFFFF")
)

// tone is the colour and banner of one ResultType
type tone struct {
	color  lipgloss.Color
	marker string
	label  string
}

var tones = map[ResultType]tone{
	ResultSuccess: {lipgloss.Color("#43BF6D"), "✓", "SUCCESS"},
	ResultFailure: {lipgloss.Color("#FF5555"), "✗", "FAILED"},
	ResultWarning: {lipgloss.Color("#FFA500"), "⚠", "WARNING"},
}

func (t tone) title() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.color).Bold(true)
}

func (t tone) box(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(t.color).
		Width(width-2).
		Padding(0, 2)
}

var (
	headingStyle = lipgloss.NewStyle().Foreground(accent).Bold(true)
	keyStyle     = lipgloss.NewStyle().Foreground(muted).Width(15)
	valueStyle   = lipgloss.NewStyle().Foreground(text)
	errorStyle   = lipgloss.NewStyle().Foreground(tones[ResultFailure].color)
	tipStyle     = lipgloss.NewStyle().Foreground(muted)
)

// GetTerminalWidth returns the stdout terminal width clamped to
// [MinTerminalWidth, MaxContentWidth]. Non-terminals get the minimum.
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	return clampWidth(width, err)
}

func clampWidth(width int, err error) int {
	switch {
	case err != nil, width < MinTerminalWidth:
		return MinTerminalWidth
	case width > MaxContentWidth:
		return MaxContentWidth
	}
	return width
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
