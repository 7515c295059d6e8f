package server

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"backdoorchat/internal/protocol"
)

// Client represents a connected chat client
type Client struct {
	ID       string
	conn     net.Conn
	enc      *protocol.Encoder
	name     string
	joinTime time.Time

	writeTimeout time.Duration
	writeMu      sync.Mutex
	closeOnce    sync.Once
}

func newClient(conn net.Conn, writeTimeout time.Duration) *Client {
	return &Client{
		ID:           uuid.NewString(),
		conn:         conn,
		enc:          protocol.NewEncoder(conn),
		joinTime:     time.Now(),
		writeTimeout: writeTimeout,
	}
}

// Name is the nickname chosen during the handshake.
func (c *Client) Name() string {
	return c.name
}

func (c *Client) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// Send writes one envelope. A write that does not finish within the write
// timeout fails, which the caller treats as a disconnect.
func (c *Client) Send(env protocol.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return c.enc.Encode(env)
}

// Close closes the socket once; later calls do nothing.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.conn.Close()
	})
}
