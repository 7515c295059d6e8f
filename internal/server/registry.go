package server

import (
	"errors"
	"net"
	"sync"
)

// ErrServerFull is returned when the registry already holds the maximum
// number of clients.
var ErrServerFull = errors.New("chat is full")

// Registry is the ordered table of active clients. Each entry carries both
// the connection and its nickname, so the two columns never drift apart.
type Registry struct {
	mu      sync.RWMutex
	clients []*Client
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Add appends c unless the registry already holds limit clients. A
// non-positive limit means unbounded.
func (r *Registry) Add(c *Client, limit int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit > 0 && len(r.clients) >= limit {
		return ErrServerFull
	}
	r.clients = append(r.clients, c)
	return nil
}

// Remove deletes c and reports whether it was present. Removing a client
// twice is harmless.
func (r *Registry) Remove(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.clients {
		if existing == c {
			r.clients = append(r.clients[:i], r.clients[i+1:]...)
			return true
		}
	}
	return false
}

func (r *Registry) Contains(c *Client) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, existing := range r.clients {
		if existing == c {
			return true
		}
	}
	return false
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Snapshot returns the clients in arrival order.
func (r *Registry) Snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Client(nil), r.clients...)
}

// Columns returns the connection and nickname sequences, index-aligned and
// taken under one lock.
func (r *Registry) Columns() ([]net.Conn, []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]net.Conn, len(r.clients))
	nicknames := make([]string, len(r.clients))
	for i, c := range r.clients {
		conns[i] = c.conn
		nicknames[i] = c.name
	}
	return conns, nicknames
}

// Nicknames returns the registered nicknames in arrival order.
func (r *Registry) Nicknames() []string {
	_, nicknames := r.Columns()
	return nicknames
}
