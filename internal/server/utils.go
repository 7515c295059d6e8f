package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"unicode"
	"unicode/utf8"

	"backdoorchat/internal/style"
)

// MaxNameLength is the longest nickname accepted, in runes.
const MaxNameLength = 32

// formatUsername renders nickname@room# in the user's color.
func (s *Server) formatUsername(nickname string) string {
	color := s.palette.Assign(nickname)
	return style.Paint(color, fmt.Sprintf("%s@%s#", nickname, s.opts.Room))
}

// announce builds a system line such as "root: alice joined the chat!".
func (s *Server) announce(c *Client, action string) string {
	return style.Paint(style.Yellow, "root: ") + style.Paint(s.palette.Assign(c.name), c.name) + " " + action
}

// activeUsers lists registered nicknames in their colors, in arrival order.
func (s *Server) activeUsers() []string {
	nicknames := s.registry.Nicknames()
	users := make([]string, len(nicknames))
	for i, nick := range nicknames {
		users[i] = style.Paint(s.palette.Assign(nick), nick)
	}
	return users
}

// ValidateName checks a requested nickname. Nicknames need not be unique.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name cannot be empty")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return fmt.Errorf("name too long (maximum %d characters)", MaxNameLength)
	}
	if strings.IndexFunc(name, unicode.IsControl) >= 0 {
		return errors.New("name cannot contain control characters")
	}
	return nil
}

// isExpectedCloseError reports errors that just mean the peer went away.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}
