package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ResultType selects the colour and banner of a Result
type ResultType int

const (
	ResultSuccess ResultType = iota
	ResultFailure
	ResultWarning
)

// Detail is one key/value line of a result box
type Detail struct {
	Key   string
	Value string
}

// Result is a finished command's summary box.
type Result struct {
	Type            ResultType
	Title           string
	Details         []Detail // rendered in insertion order
	Error           error
	Troubleshooting []string
	Width           int
}

func newResult(typ ResultType, title string) *Result {
	return &Result{Type: typ, Title: title, Width: GetTerminalWidth()}
}

func NewSuccessResult(title string) *Result { return newResult(ResultSuccess, title) }
func NewWarningResult(title string) *Result { return newResult(ResultWarning, title) }

// NewFailureResult creates a failure box showing err and any tips.
func NewFailureResult(title string, err error, troubleshooting ...string) *Result {
	r := newResult(ResultFailure, title)
	r.Error = err
	r.Troubleshooting = troubleshooting
	return r
}

func (r *Result) SetWidth(width int) *Result {
	r.Width = width
	return r
}

// AddDetail appends a key/value line. Empty values are skipped.
func (r *Result) AddDetail(key, value string) *Result {
	if value != "" {
		r.Details = append(r.Details, Detail{Key: key, Value: value})
	}
	return r
}

// Render returns the styled result box
func (r *Result) Render() string {
	width := max(r.Width, MinTerminalWidth)
	t, ok := tones[r.Type]
	if !ok {
		t = tones[ResultSuccess]
	}

	lines := []string{
		"",
		t.title().Render(fmt.Sprintf("   %s  %s  ─  %s", t.marker, t.label, r.Title)),
		"",
	}

	for _, d := range r.Details {
		lines = append(lines, keyStyle.Render("   "+d.Key+":")+" "+valueStyle.Render(d.Value))
	}
	if len(r.Details) > 0 {
		lines = append(lines, "")
	}

	if r.Error != nil {
		lines = append(lines, errorStyle.Render("   Error: "+r.Error.Error()), "")
	}

	if len(r.Troubleshooting) > 0 {
		lines = append(lines, renderTips(r.Troubleshooting, width), "")
	}

	return t.box(width).Render(strings.Join(lines, "\n"))
}

func (r *Result) String() string {
	return r.Render()
}

// renderTips draws the indented troubleshooting box inside a result
func renderTips(tips []string, width int) string {
	lines := []string{tipStyle.Bold(true).Render("Troubleshooting:"), ""}
	for _, tip := range tips {
		lines = append(lines, tipStyle.Render("  • "+tip))
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(muted).
		Width(max(width-12, 40)).
		Padding(0, 1).
		MarginLeft(3).
		Render(strings.Join(lines, "\n"))
}

// RenderList renders a heading followed by one box per item.
func RenderList(heading string, items []*Result) string {
	parts := []string{headingStyle.Render(heading)}
	for _, item := range items {
		parts = append(parts, item.Render())
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
