// Package style holds the chat's display vocabulary: the user color
// palette, ANSI painting helpers and banner boxes.
package style

import (
	"math/rand/v2"
	"sync"

	"github.com/fatih/color"
)

// Color names one palette entry.
type Color string

const (
	Red     Color = "red"
	Green   Color = "green"
	Yellow  Color = "yellow"
	Blue    Color = "blue"
	Magenta Color = "magenta"
	Cyan    Color = "cyan"
	White   Color = "white"
)

// Colors is the fixed palette assignable to users, in round-robin order.
var Colors = []Color{Red, Green, Yellow, Blue, Magenta, Cyan, White}

var attributes = map[Color]color.Attribute{
	Red:     color.FgHiRed,
	Green:   color.FgHiGreen,
	Yellow:  color.FgHiYellow,
	Blue:    color.FgHiBlue,
	Magenta: color.FgHiMagenta,
	Cyan:    color.FgHiCyan,
	White:   color.FgHiWhite,
}

// Palette hands out user colors. A nickname keeps its color for the life of
// the palette. Colors are drawn at random without replacement; once every
// entry is taken, new nicknames cycle through Colors by assignment count,
// which can repeat a color already in use.
type Palette struct {
	mu        sync.Mutex
	assigned  map[string]Color
	available []Color
	pick      func(n int) int
}

// NewPalette returns a palette drawing with math/rand.
func NewPalette() *Palette {
	return NewPaletteWithPicker(rand.IntN)
}

// NewPaletteWithPicker lets callers control the draw; pick must return a
// value in [0, n).
func NewPaletteWithPicker(pick func(n int) int) *Palette {
	return &Palette{
		assigned:  make(map[string]Color),
		available: append([]Color(nil), Colors...),
		pick:      pick,
	}
}

// Assign returns the color for nickname, choosing one on first sight.
func (p *Palette) Assign(nickname string) Color {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.assigned[nickname]; ok {
		return c
	}

	var c Color
	if len(p.available) > 0 {
		i := p.pick(len(p.available))
		c = p.available[i]
		p.available = append(p.available[:i], p.available[i+1:]...)
	} else {
		c = Colors[len(p.assigned)%len(Colors)]
	}
	p.assigned[nickname] = c
	return c
}
