package client

import (
	"fmt"
	"strings"
	"sync"

	"github.com/jroimartin/gocui"

	"backdoorchat/internal/style"
)

// ChatUI is the full-screen Display: a message pane, a status bar and an
// input line. Escape sequences are stripped before text reaches a view.
type ChatUI struct {
	gui        *gocui.Gui
	msgView    string
	statusView string
	inputView  string

	lines     chan string
	done      chan struct{}
	closeOnce sync.Once
}

func NewChatUI() (*ChatUI, error) {
	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		return nil, fmt.Errorf("failed to start terminal ui: %w", err)
	}
	g.Cursor = true

	ui := &ChatUI{
		gui:        g,
		msgView:    "messages",
		statusView: "status",
		inputView:  "input",
		lines:      make(chan string),
		done:       make(chan struct{}),
	}

	g.SetManagerFunc(ui.layout)
	return ui, nil
}

func (ui *ChatUI) layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()
	msgHeight := maxY - 6

	// Messages view
	if v, err := g.SetView(ui.msgView, 0, 0, maxX-1, msgHeight); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Backdoor"
		v.Wrap = true
		v.Autoscroll = true
	}

	// Status bar
	if v, err := g.SetView(ui.statusView, 0, msgHeight+1, maxX-1, msgHeight+3); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Status"
		fmt.Fprint(v, "Connecting... | Ctrl-C: Quit")
	}

	// Input field
	if v, err := g.SetView(ui.inputView, 0, msgHeight+3, maxX-1, maxY-1); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "You"
		v.Editable = true
		v.Wrap = true

		if _, err := g.SetCurrentView(ui.inputView); err != nil {
			return err
		}
	}

	return nil
}

func (ui *ChatUI) keybindings() error {
	// Quit
	if err := ui.gui.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone,
		func(_ *gocui.Gui, _ *gocui.View) error {
			return gocui.ErrQuit
		}); err != nil {
		return err
	}

	// Send message
	if err := ui.gui.SetKeybinding(ui.inputView, gocui.KeyEnter, gocui.ModNone,
		ui.handleInput); err != nil {
		return err
	}

	return nil
}

func (ui *ChatUI) handleInput(_ *gocui.Gui, v *gocui.View) error {
	input := strings.TrimRight(v.Buffer(), "\n")
	v.Clear()
	v.SetCursor(0, 0)

	// the session may have ended while the line was typed
	go func() {
		select {
		case ui.lines <- input:
		case <-ui.done:
		}
	}()
	return nil
}

// Lines yields each line entered in the input view. The channel is never
// closed; callers end the session when Run returns.
func (ui *ChatUI) Lines() <-chan string {
	return ui.lines
}

// Run drives the UI until Ctrl-C or Stop.
func (ui *ChatUI) Run() error {
	defer ui.finish()

	if err := ui.keybindings(); err != nil {
		return err
	}
	if err := ui.gui.MainLoop(); err != nil && err != gocui.ErrQuit {
		return err
	}
	return nil
}

// Stop makes Run return. It is safe to call from any goroutine.
func (ui *ChatUI) Stop() {
	ui.gui.Update(func(_ *gocui.Gui) error {
		return gocui.ErrQuit
	})
}

func (ui *ChatUI) Close() {
	ui.finish()
	ui.gui.Close()
}

func (ui *ChatUI) finish() {
	ui.closeOnce.Do(func() {
		close(ui.done)
	})
}

func (ui *ChatUI) Connected(nickname, room string, help bool) {
	ui.gui.Update(func(g *gocui.Gui) error {
		v, err := g.View(ui.msgView)
		if err != nil {
			return err
		}
		v.Clear()
		fmt.Fprintf(v, "Connected as %s on Backdoor\n", nickname)
		if help {
			fmt.Fprintln(v, "Type !help for available commands")
		}
		fmt.Fprintln(v, strings.Repeat("─", style.BoxWidth))
		return nil
	})
	ui.updateStatus(fmt.Sprintf("%s@%s | Ctrl-C: Quit", nickname, room))
}

func (ui *ChatUI) Message(timestamp, content string) {
	ui.appendLine(style.Strip(FormatMessage(timestamp, content)))
}

// Prompt is a no-op; the input view is always visible.
func (ui *ChatUI) Prompt() {}

func (ui *ChatUI) Notice(_ style.Color, text string) {
	ui.appendLine(text)
	ui.updateStatus(text)
}

func (ui *ChatUI) appendLine(text string) {
	text = strings.TrimPrefix(text, "\r")
	ui.gui.Update(func(g *gocui.Gui) error {
		v, err := g.View(ui.msgView)
		if err != nil {
			return err
		}
		fmt.Fprintln(v, strings.TrimRight(text, "\n"))
		return nil
	})
}

func (ui *ChatUI) updateStatus(status string) {
	ui.gui.Update(func(g *gocui.Gui) error {
		v, err := g.View(ui.statusView)
		if err != nil {
			return err
		}
		v.Clear()
		fmt.Fprint(v, status)
		return nil
	})
}
