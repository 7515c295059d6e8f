package style

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
)

// BoxWidth is the outer width of banner boxes.
const BoxWidth = 60

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)

// painter returns a color that always emits escape codes. Text painted on
// the server travels inside envelopes, so it must not depend on whether the
// server's own stdout is a terminal.
func painter(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	c.EnableColor()
	return c
}

// Paint wraps s in the escape codes of palette color c. Unknown colors
// return s unchanged.
func Paint(c Color, s string) string {
	attr, ok := attributes[c]
	if !ok {
		return s
	}
	return painter(attr).Sprint(s)
}

func Dim(s string) string {
	return painter(color.Faint).Sprint(s)
}

// Strip removes ANSI escape sequences.
func Strip(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// Box draws text inside a rounded, dimmed border BoxWidth columns wide.
func Box(text string) string {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("8")).
		Padding(0, 1).
		Width(BoxWidth - 2).
		Render(text)
}

// Rule is a dimmed horizontal line as wide as a box.
func Rule() string {
	return Dim(strings.Repeat("─", BoxWidth))
}
