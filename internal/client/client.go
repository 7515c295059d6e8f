// Package client implements the terminal side of the chat: dialing the
// server, the nickname handshake and the two loops that carry a session.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"backdoorchat/internal/protocol"
	"backdoorchat/internal/style"
)

var (
	ErrConnectionRefused = errors.New("could not connect to the server, check the address and port")
	ErrInvalidAddress    = errors.New("invalid server address")
	// ErrConnectionLost ends a session whose socket failed mid-stream.
	ErrConnectionLost = errors.New("lost connection to server")
	// ErrNicknameRejected is returned when the server asks for a nickname
	// again after refusing the one offered.
	ErrNicknameRejected = errors.New("nickname rejected by server")
)

const (
	quitCommand  = "quit"
	clearCommand = "!clear"
)

// Display renders a session. Implementations must be safe for use from
// both session loops.
type Display interface {
	// Connected clears the screen and prints the connection banner, with the
	// command hint when help is set.
	Connected(nickname, room string, help bool)
	Message(timestamp, content string)
	Prompt()
	Notice(color style.Color, text string)
}

// Dial connects to addr and sorts failures into ErrInvalidAddress and
// ErrConnectionRefused.
func Dial(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, classifyDialError(addr, err)
	}
	return conn, nil
}

func classifyDialError(addr string, err error) error {
	var dnsErr *net.DNSError
	var addrErr *net.AddrError
	switch {
	case errors.As(err, &dnsErr), errors.As(err, &addrErr):
		return fmt.Errorf("%w %q: %w", ErrInvalidAddress, addr, err)
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("%w: %w", ErrConnectionRefused, err)
	}
	return fmt.Errorf("failed to connect to %s: %w", addr, err)
}

// Options configure a Client.
type Options struct {
	Nickname       string
	Display        Display
	Logger         *slog.Logger
	MaxMessageSize int
}

// Client is one chat session over an established connection.
type Client struct {
	conn     net.Conn
	enc      *protocol.Encoder
	dec      *protocol.Decoder
	nickname string
	display  Display
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.Mutex
	room string

	closing   atomic.Bool
	closeOnce sync.Once
	endOnce   sync.Once
}

func New(conn net.Conn, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		conn:     conn,
		enc:      protocol.NewEncoder(conn),
		dec:      protocol.NewDecoder(conn, opts.MaxMessageSize),
		nickname: opts.Nickname,
		display:  opts.Display,
		logger:   logger,
		now:      time.Now,
	}
}

func (c *Client) Nickname() string {
	return c.nickname
}

// Room is the room announced by the server, empty before the handshake.
func (c *Client) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *Client) setRoom(room string) {
	c.mu.Lock()
	c.room = room
	c.mu.Unlock()
}

// Close closes the connection. Loops blocked on it return without reporting
// a lost connection.
func (c *Client) Close() error {
	c.closing.Store(true)
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

// Run carries the session until the user quits, ctx is cancelled, lines is
// closed or the server goes away. Typing quit, cancelling ctx and a clean
// server close all return nil.
func (c *Client) Run(ctx context.Context, lines <-chan string) error {
	readDone := make(chan struct{})
	var readErr error
	go func() {
		defer close(readDone)
		readErr = c.receiveLoop()
	}()

	writeErr := c.writeLoop(ctx, lines, readDone)
	c.Close()
	<-readDone

	c.logger.Info("session_ended",
		"nickname", c.nickname,
		"room", c.Room(),
	)
	if writeErr != nil {
		return writeErr
	}
	return readErr
}

func (c *Client) receiveLoop() error {
	requested := false
	for {
		env, err := c.dec.Decode()
		if err != nil {
			if protocol.IsSkippable(err) {
				c.logger.Debug("malformed_frame", "error", err.Error())
				continue
			}
			return c.lost(err)
		}

		switch env.Type {
		case protocol.TypeNicknameRequest:
			if requested {
				c.end(style.Red, "Nickname rejected by server")
				return ErrNicknameRejected
			}
			requested = true
			if err := c.enc.Encode(protocol.NewNickname(c.nickname)); err != nil {
				return c.lost(err)
			}

		case protocol.TypeRoomInfo:
			c.setRoom(env.RoomName)
			c.logger.Info("joined_room", "nickname", c.nickname, "room", env.RoomName)
			c.display.Connected(c.nickname, env.RoomName, true)

		case protocol.TypeMessage, protocol.TypeCommandResponse:
			c.display.Message(env.Timestamp, env.Content)
			c.display.Prompt()

		case protocol.TypeClearScreen:
			c.display.Connected(c.nickname, c.Room(), false)
		}
	}
}

func (c *Client) writeLoop(ctx context.Context, lines <-chan string, readDone <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			c.end(style.Yellow, "Disconnecting from server...")
			return nil

		case <-readDone:
			return nil

		case line, ok := <-lines:
			if !ok {
				return nil
			}

			text := strings.TrimSpace(line)
			switch {
			case strings.EqualFold(text, quitCommand):
				c.logger.Info("quit", "nickname", c.nickname)
				return nil
			case strings.EqualFold(text, clearCommand):
				c.display.Connected(c.nickname, c.Room(), false)
				c.display.Prompt()
			case text == "":
				c.display.Prompt()
			default:
				if err := c.enc.Encode(protocol.NewMessage(line, c.now(), false)); err != nil {
					return c.lost(err)
				}
			}
		}
	}
}

// lost reports the end of a session caused by err. EOF is a clean close by
// the server; errors after Close are expected and silent.
func (c *Client) lost(err error) error {
	if c.closing.Load() {
		return nil
	}
	if errors.Is(err, io.EOF) {
		c.end(style.Red, "Disconnected from server")
		return nil
	}
	c.logger.Warn("connection_lost", "error", err.Error())
	c.end(style.Red, "Lost connection to server")
	return fmt.Errorf("%w: %w", ErrConnectionLost, err)
}

// end prints the notice that closes the session, once.
func (c *Client) end(color style.Color, text string) {
	c.endOnce.Do(func() {
		c.display.Notice(color, text)
	})
}
