package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"backdoorchat/internal/protocol"
	"backdoorchat/internal/style"
)

// Options configure a Server.
type Options struct {
	Room           string
	MaxClients     int
	MaxMessageSize int
	WriteTimeout   time.Duration
}

// Server represents the chat server
type Server struct {
	opts     Options
	registry *Registry
	palette  *style.Palette
	commands map[string]CommandFunc
	help     []commandInfo
	logger   *slog.Logger
	now      func() time.Time

	// every open connection, including those still choosing a nickname
	mutex   sync.Mutex
	clients map[*Client]struct{}
	wg      sync.WaitGroup
}

func NewServer(opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Room == "" {
		opts.Room = "backdoor"
	}

	s := &Server{
		opts:     opts,
		registry: NewRegistry(),
		palette:  style.NewPalette(),
		logger:   logger,
		now:      time.Now,
		clients:  make(map[*Client]struct{}),
	}

	s.registerCommands()
	return s
}

func (s *Server) Registry() *Registry {
	return s.registry
}

// Serve accepts connections on listener until ctx is cancelled, then tells
// the remaining clients the server is going away, closes them and waits for
// their goroutines. It returns nil after a cancellation.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		listener.Close()
	})
	defer stop()

	s.logger.Info("server_started",
		"addr", listener.Addr().String(),
		"room", s.opts.Room,
		"max_clients", s.opts.MaxClients,
	)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				s.shutdown()
				return fmt.Errorf("listener closed: %w", err)
			}
			s.logger.Error("accept_failed", "error", err)
			continue
		}

		// tracked here, on the accept goroutine, so shutdown always sees it
		// and the cap counts handshakes still in progress
		c := newClient(conn, s.opts.WriteTimeout)
		if !s.track(c) {
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.reject(c)
			}()
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(c)
			s.handleConnection(c)
		}()
	}

	s.shutdown()
	s.logger.Info("server_stopped")
	return nil
}

// Register adds an already connected socket under nickname and announces
// the join. The read loop normally does this after the handshake.
func (s *Server) Register(conn net.Conn, nickname string) (*Client, error) {
	c := newClient(conn, s.opts.WriteTimeout)
	c.name = nickname
	if err := s.join(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Server) join(c *Client) error {
	if err := s.registry.Add(c, s.opts.MaxClients); err != nil {
		return err
	}

	s.logger.Info("client_registered",
		"client_id", c.ID,
		"nickname", c.name,
		"color", string(s.palette.Assign(c.name)),
		"remote_addr", c.RemoteAddr(),
		"total", s.registry.Len(),
	)
	s.Broadcast(s.announce(c, "joined the chat!"), true)
	return nil
}

// Unregister removes c, closes its socket and announces the departure.
// Calling it for a client that is already gone does nothing.
func (s *Server) Unregister(c *Client) {
	if !s.registry.Remove(c) {
		return
	}
	c.Close()

	s.logger.Info("client_unregistered",
		"client_id", c.ID,
		"nickname", c.name,
		"connected_for", time.Since(c.joinTime).Round(time.Second).String(),
		"total", s.registry.Len(),
	)
	s.Broadcast(s.announce(c, "left the chat!"), true)
}

// Broadcast sends text to every registered client. Clients whose write
// fails are unregistered.
func (s *Server) Broadcast(text string, isSystem bool) {
	env := protocol.NewMessage(text, s.now(), isSystem)

	var failed []*Client
	for _, c := range s.registry.Snapshot() {
		if err := c.Send(env); err != nil {
			s.logger.Warn("broadcast_write_failed",
				"client_id", c.ID,
				"nickname", c.name,
				"error", err.Error(),
			)
			failed = append(failed, c)
		}
	}

	for _, c := range failed {
		s.Unregister(c)
	}
}

// handleConnection runs one connection through nickname handshake, chat and
// cleanup.
func (s *Server) handleConnection(c *Client) {
	s.logger.Info("connection_accepted",
		"client_id", c.ID,
		"remote_addr", c.RemoteAddr(),
	)

	dec := protocol.NewDecoder(c.conn, s.opts.MaxMessageSize)

	name, err := s.awaitNickname(c, dec)
	if err != nil {
		s.logger.Info("handshake_aborted",
			"client_id", c.ID,
			"error", err.Error(),
		)
		c.Close()
		return
	}
	c.name = name

	if err := c.Send(protocol.NewRoomInfo(s.opts.Room)); err != nil {
		c.Close()
		return
	}
	if err := s.join(c); err != nil {
		s.reject(c)
		return
	}

	s.readLoop(c, dec)
	s.Unregister(c)
}

func (s *Server) awaitNickname(c *Client, dec *protocol.Decoder) (string, error) {
	if err := c.Send(protocol.NewNicknameRequest()); err != nil {
		return "", err
	}

	for {
		env, err := dec.Decode()
		if err != nil {
			if protocol.IsSkippable(err) {
				s.logger.Debug("malformed_frame", "client_id", c.ID, "error", err.Error())
				continue
			}
			return "", err
		}
		if env.Type != protocol.TypeNickname {
			continue
		}

		name := strings.TrimSpace(env.Content)
		if err := ValidateName(name); err != nil {
			s.reply(c, style.Paint(style.Red, "Invalid name: "+err.Error()))
			if err := c.Send(protocol.NewNicknameRequest()); err != nil {
				return "", err
			}
			continue
		}
		return name, nil
	}
}

func (s *Server) readLoop(c *Client, dec *protocol.Decoder) {
	for {
		env, err := dec.Decode()
		if err != nil {
			if protocol.IsSkippable(err) {
				s.logger.Debug("malformed_frame", "client_id", c.ID, "error", err.Error())
				continue
			}
			if !isExpectedCloseError(err) {
				s.logger.Warn("client_read_error", "client_id", c.ID, "error", err.Error())
			}
			return
		}

		if env.Type != protocol.TypeMessage {
			continue
		}

		content := strings.TrimSpace(env.Content)
		if s.handleCommand(c, content) {
			continue
		}
		if content == "" {
			continue
		}

		s.Broadcast(s.formatUsername(c.name)+" "+env.Content, false)
		s.logger.Info("message_broadcast",
			"client_id", c.ID,
			"nickname", c.name,
			"length", len(env.Content),
		)
	}
}

func (s *Server) reject(c *Client) {
	s.logger.Warn("connection_rejected",
		"client_id", c.ID,
		"reason", ErrServerFull.Error(),
	)
	s.reply(c, style.Paint(style.Red, "Chat is full. Please try again later."))
	c.Close()
}

func (s *Server) reply(c *Client, content string) error {
	return c.Send(protocol.NewCommandResponse(content, s.now()))
}

// track records c as open unless MaxClients connections already are.
func (s *Server) track(c *Client) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.opts.MaxClients > 0 && len(s.clients) >= s.opts.MaxClients {
		return false
	}
	s.clients[c] = struct{}{}
	return true
}

func (s *Server) untrack(c *Client) {
	s.mutex.Lock()
	delete(s.clients, c)
	s.mutex.Unlock()
}

func (s *Server) shutdown() {
	s.logger.Info("server_shutting_down", "clients", s.registry.Len())
	s.Broadcast(style.Paint(style.Yellow, "root: ")+"Server is shutting down.", true)

	s.mutex.Lock()
	open := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		open = append(open, c)
	}
	s.mutex.Unlock()
	open = append(open, s.registry.Snapshot()...)

	// removed first so the read loops exit without announcing departures
	for _, c := range open {
		s.registry.Remove(c)
		c.Close()
	}
	s.wg.Wait()
}
