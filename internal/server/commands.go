package server

import (
	"fmt"
	"strings"

	"backdoorchat/internal/protocol"
	"backdoorchat/internal/style"
)

// CommandFunc represents a command handler function
type CommandFunc func(s *Server, c *Client, args []string) error

type commandInfo struct {
	name        string
	description string
}

// CommandPrefix starts every chat command.
const CommandPrefix = "!"

func (s *Server) registerCommands() {
	type command struct {
		commandInfo
		run CommandFunc
	}

	// order is the order !help prints
	list := []command{
		{commandInfo{"!help", "Show available commands"}, func(s *Server, c *Client, args []string) error {
			var b strings.Builder
			b.WriteString(style.Paint(style.Yellow, "Available commands:") + "\n")
			for _, info := range s.help {
				fmt.Fprintf(&b, "%s: %s\n", style.Paint(style.Cyan, info.name), info.description)
			}
			return s.reply(c, b.String())
		}},

		{commandInfo{"!active", "Show active users in the chat"}, func(s *Server, c *Client, args []string) error {
			users := s.activeUsers()
			var b strings.Builder
			b.WriteString(style.Paint(style.Yellow, fmt.Sprintf("Active users (%d):", len(users))) + "\n")
			for _, user := range users {
				fmt.Fprintf(&b, "• %s\n", user)
			}
			return s.reply(c, b.String())
		}},

		{commandInfo{"!clear", "Clear the screen"}, func(s *Server, c *Client, args []string) error {
			return c.Send(protocol.NewClearScreen())
		}},

		{commandInfo{"!whoami", "Show your current username"}, func(s *Server, c *Client, args []string) error {
			return s.reply(c, "You are "+s.formatUsername(c.name))
		}},

		{commandInfo{"!time", "Show current server time"}, func(s *Server, c *Client, args []string) error {
			return s.reply(c, "Server time: "+s.now().Format("2006-01-02 15:04:05"))
		}},

		{commandInfo{"!room", "Show current room name"}, func(s *Server, c *Client, args []string) error {
			return s.reply(c, "Current room: "+s.opts.Room)
		}},
	}

	s.commands = make(map[string]CommandFunc, len(list))
	s.help = make([]commandInfo, 0, len(list))
	for _, cmd := range list {
		s.commands[cmd.name] = cmd.run
		s.help = append(s.help, cmd.commandInfo)
	}
}

// handleCommand answers message privately if it is a command and reports
// whether it was one.
func (s *Server) handleCommand(c *Client, message string) bool {
	if !strings.HasPrefix(message, CommandPrefix) {
		return false
	}

	parts := strings.Fields(message)
	name := strings.ToLower(parts[0])

	handler, exists := s.commands[name]
	if !exists {
		s.logger.Info("unknown_command", "client_id", c.ID, "command", name)
		if err := s.reply(c, style.Paint(style.Red, "Unknown command. Type !help for available commands.")); err != nil {
			s.logger.Warn("command_reply_failed", "client_id", c.ID, "error", err.Error())
		}
		return true
	}

	s.logger.Debug("command_dispatched", "client_id", c.ID, "command", name)
	if err := handler(s, c, parts[1:]); err != nil {
		s.logger.Warn("command_reply_failed",
			"client_id", c.ID,
			"command", name,
			"error", err.Error(),
		)
	}
	return true
}
