package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"backdoorchat/internal/style"
)

const clearScreen = "\033[H\033[2J"

var errTerminalClosed = errors.New("terminal closed")

// Terminal is the line-oriented Display. Output from both session loops
// goes through one lock, so lines never interleave mid-write.
type Terminal struct {
	mu    sync.Mutex
	out   io.Writer
	in    *bufio.Reader
	plain bool

	readOnce  sync.Once
	input     chan string
	readErr   error // set before input is closed
	done      chan struct{}
	closeOnce sync.Once
}

// NewTerminal reads input from in and writes to out. In plain mode every
// escape sequence is stripped from the output, including those carried in
// server content.
func NewTerminal(in io.Reader, out io.Writer, plain bool) *Terminal {
	return &Terminal{
		out:   out,
		in:    bufio.NewReader(in),
		plain: plain,
		done:  make(chan struct{}),
	}
}

func (t *Terminal) write(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.plain {
		s = style.Strip(s)
	}
	io.WriteString(t.out, s)
}

// Welcome clears the screen and shows the opening banner.
func (t *Terminal) Welcome() {
	t.write(clearScreen + style.Box("Welcome to Backdoor") + "\n")
}

func (t *Terminal) Banner(text string) {
	t.write(style.Box(text) + "\n")
}

// Ask prints prompt and returns the next input line without its newline.
// It gives up with ctx's error when ctx is done first.
func (t *Terminal) Ask(ctx context.Context, prompt string) (string, error) {
	t.write(style.Paint(style.Cyan, prompt) + " ")

	input := t.startReading()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-input:
		if !ok {
			return "", fmt.Errorf("failed to read input: %w", t.readErr)
		}
		return line, nil
	}
}

// Lines streams input lines until the input ends or ctx is done, then
// closes the channel.
func (t *Terminal) Lines(ctx context.Context) <-chan string {
	input := t.startReading()
	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			select {
			case <-ctx.Done():
				return
			case line, ok := <-input:
				if !ok {
					return
				}
				select {
				case lines <- line:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return lines
}

// Close stops the input reader once its pending read returns.
func (t *Terminal) Close() {
	t.closeOnce.Do(func() {
		close(t.done)
	})
}

// startReading starts the single goroutine that owns the input reader.
func (t *Terminal) startReading() <-chan string {
	t.readOnce.Do(func() {
		t.input = make(chan string)
		go t.readLoop()
	})
	return t.input
}

func (t *Terminal) readLoop() {
	defer close(t.input)
	for {
		line, err := t.in.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if err == nil || line != "" {
			select {
			case t.input <- line:
			case <-t.done:
				t.readErr = errTerminalClosed
				return
			}
		}
		if err != nil {
			t.readErr = err
			return
		}
	}
}

func (t *Terminal) Connected(nickname, room string, help bool) {
	var b strings.Builder
	b.WriteString(clearScreen)
	b.WriteString(style.Box(fmt.Sprintf("Connected as %s on Backdoor", nickname)) + "\n")
	if help {
		b.WriteString(style.Box("Type !help for available commands") + "\n")
	}
	b.WriteString(style.Rule() + "\n\n")
	t.write(b.String())
}

// Message overwrites the pending prompt with one timestamped line.
func (t *Terminal) Message(timestamp, content string) {
	t.write(FormatMessage(timestamp, content) + "\n")
}

func (t *Terminal) Prompt() {
	t.write(style.Paint(style.Cyan, "You:") + " ")
}

func (t *Terminal) Notice(color style.Color, text string) {
	t.write("\n" + style.Paint(color, text) + "\n")
}

// FormatMessage renders "[HH:MM:SS] content" with a dimmed timestamp,
// starting with a carriage return so it replaces an unfinished prompt.
func FormatMessage(timestamp, content string) string {
	return "\r" + style.Dim("["+timestamp+"]") + " " + content
}
