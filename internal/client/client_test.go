package client

import (
	"context"
	"fmt"
	"io"
	"net"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backdoorchat/internal/protocol"
	"backdoorchat/internal/style"
)

const waitTimeout = 2 * time.Second

// recorder is a Display that keeps a log of what it was asked to show.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *recorder) Connected(nickname, room string, help bool) {
	r.add(fmt.Sprintf("connected %s@%s help=%t", nickname, room, help))
}

func (r *recorder) Message(timestamp, content string) {
	r.add(fmt.Sprintf("message [%s] %s", timestamp, content))
}

func (r *recorder) Prompt() {
	r.add("prompt")
}

func (r *recorder) Notice(_ style.Color, text string) {
	r.add("notice " + text)
}

func (r *recorder) has(event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Contains(r.events, event)
}

func (r *recorder) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == event {
			n++
		}
	}
	return n
}

func (r *recorder) waitFor(t *testing.T, event string) {
	t.Helper()
	assert.Eventually(t, func() bool { return r.has(event) }, waitTimeout, 5*time.Millisecond,
		"display never showed %q", event)
}

// fakeServer is the far end of a pipe speaking the wire protocol.
type fakeServer struct {
	conn net.Conn
	enc  *protocol.Encoder
	dec  *protocol.Decoder
}

func (s *fakeServer) send(t *testing.T, env protocol.Envelope) {
	t.Helper()
	require.NoError(t, s.enc.Encode(env))
}

func (s *fakeServer) next(t *testing.T) protocol.Envelope {
	t.Helper()
	require.NoError(t, s.conn.SetReadDeadline(time.Now().Add(waitTimeout)))
	env, err := s.dec.Decode()
	require.NoError(t, err)
	return env
}

type session struct {
	client  *Client
	server  *fakeServer
	display *recorder
	lines   chan string
	cancel  context.CancelFunc
	result  chan error
}

func startSession(t *testing.T, nickname string) *session {
	t.Helper()
	clientSide, serverSide := net.Pipe()
	t.Cleanup(func() {
		clientSide.Close()
		serverSide.Close()
	})

	display := &recorder{}
	c := New(clientSide, Options{Nickname: nickname, Display: display})
	c.now = func() time.Time { return time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC) }

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	s := &session{
		client: c,
		server: &fakeServer{
			conn: serverSide,
			enc:  protocol.NewEncoder(serverSide),
			dec:  protocol.NewDecoder(serverSide, 0),
		},
		display: display,
		lines:   make(chan string),
		cancel:  cancel,
		result:  make(chan error, 1),
	}
	go func() { s.result <- c.Run(ctx, s.lines) }()
	return s
}

// handshake plays the server side of joining room.
func (s *session) handshake(t *testing.T, room string) {
	t.Helper()
	s.server.send(t, protocol.NewNicknameRequest())
	got := s.server.next(t)
	require.Equal(t, protocol.TypeNickname, got.Type)
	require.Equal(t, s.client.Nickname(), got.Content)

	s.server.send(t, protocol.NewRoomInfo(room))
	s.display.waitFor(t, fmt.Sprintf("connected %s@%s help=true", s.client.Nickname(), room))
}

func (s *session) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-s.result:
		return err
	case <-time.After(waitTimeout):
		t.Fatal("session did not end")
		return nil
	}
}

func TestHandshake(t *testing.T) {
	s := startSession(t, "alice")
	s.handshake(t, "lobby")

	assert.Equal(t, "lobby", s.client.Room())
}

func TestMessagesAreRendered(t *testing.T) {
	s := startSession(t, "alice")
	s.handshake(t, "lobby")

	s.server.send(t, protocol.NewMessage("bob@lobby# hi", time.Date(2024, 5, 1, 12, 0, 1, 0, time.UTC), false))
	s.server.send(t, protocol.NewCommandResponse("Current room: lobby", time.Date(2024, 5, 1, 12, 0, 2, 0, time.UTC)))

	s.display.waitFor(t, "message [12:00:01] bob@lobby# hi")
	s.display.waitFor(t, "message [12:00:02] Current room: lobby")
	assert.Eventually(t, func() bool { return s.display.count("prompt") == 2 }, waitTimeout, 5*time.Millisecond)
}

func TestLinesAreSentAsMessages(t *testing.T) {
	s := startSession(t, "alice")
	s.handshake(t, "lobby")

	s.lines <- "hello there"
	got := s.server.next(t)
	assert.Equal(t, protocol.TypeMessage, got.Type)
	assert.Equal(t, "hello there", got.Content)
	assert.Equal(t, "09:30:00", got.Timestamp)
	assert.False(t, got.IsSystem)
}

func TestQuitClosesConnection(t *testing.T) {
	for _, word := range []string{"quit", "QUIT", "  Quit "} {
		t.Run(strings.TrimSpace(word), func(t *testing.T) {
			s := startSession(t, "alice")
			s.handshake(t, "lobby")

			s.lines <- word
			assert.NoError(t, s.wait(t))

			_, err := s.server.dec.Decode()
			assert.ErrorIs(t, err, io.EOF)
			assert.False(t, s.display.has("notice Lost connection to server"))
		})
	}
}

func TestClearIsHandledLocally(t *testing.T) {
	s := startSession(t, "alice")
	s.handshake(t, "lobby")

	s.lines <- "!clear"
	s.display.waitFor(t, "connected alice@lobby help=false")

	s.lines <- "after"
	got := s.server.next(t)
	assert.Equal(t, "after", got.Content)
}

func TestBlankLinesOnlyPrompt(t *testing.T) {
	s := startSession(t, "alice")
	s.handshake(t, "lobby")

	s.lines <- "   "
	s.display.waitFor(t, "prompt")

	s.lines <- "real"
	assert.Equal(t, "real", s.server.next(t).Content)
}

func TestServerClearScreen(t *testing.T) {
	s := startSession(t, "alice")
	s.handshake(t, "lobby")

	s.server.send(t, protocol.NewClearScreen())
	s.display.waitFor(t, "connected alice@lobby help=false")
}

func TestMalformedFramesAreSkipped(t *testing.T) {
	s := startSession(t, "alice")
	s.handshake(t, "lobby")

	_, err := s.server.conn.Write([]byte("definitely not json\n"))
	require.NoError(t, err)
	s.server.send(t, protocol.NewMessage("still here", time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), true))

	s.display.waitFor(t, "message [12:00:00] still here")
}

func TestServerCloseEndsSession(t *testing.T) {
	s := startSession(t, "alice")
	s.handshake(t, "lobby")

	s.server.conn.Close()

	assert.NoError(t, s.wait(t))
	assert.True(t, s.display.has("notice Disconnected from server"))
}

func TestCancelDisconnects(t *testing.T) {
	s := startSession(t, "alice")
	s.handshake(t, "lobby")

	s.cancel()

	assert.NoError(t, s.wait(t))
	assert.True(t, s.display.has("notice Disconnecting from server..."))
	assert.False(t, s.display.has("notice Disconnected from server"))
}

func TestRepeatedNicknameRequest(t *testing.T) {
	s := startSession(t, "alice")

	s.server.send(t, protocol.NewNicknameRequest())
	assert.Equal(t, "alice", s.server.next(t).Content)
	s.server.send(t, protocol.NewCommandResponse("Invalid name", time.Now()))
	s.server.send(t, protocol.NewNicknameRequest())

	assert.ErrorIs(t, s.wait(t), ErrNicknameRejected)
}

func TestDialRefused(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	_, err = Dial(context.Background(), addr)
	assert.ErrorIs(t, err, ErrConnectionRefused)
}

func TestDialInvalidAddress(t *testing.T) {
	tests := []struct {
		name string
		addr string
	}{
		{"UnknownHost", "no-such-host.invalid:55555"},
		{"BadPort", "127.0.0.1:notaport"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Dial(context.Background(), tt.addr)
			assert.ErrorIs(t, err, ErrInvalidAddress)
		})
	}
}
