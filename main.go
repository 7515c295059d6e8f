// main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"backdoorchat/internal/client"
	"backdoorchat/internal/config"
	"backdoorchat/internal/logging"
	"backdoorchat/internal/server"
	"backdoorchat/internal/style"
)

// console is where the command reads and writes. Plain disables escape
// sequences in client output.
type console struct {
	in    io.Reader
	out   io.Writer
	plain bool
}

type flags struct {
	server     bool
	host       string
	port       int
	room       string
	nick       string
	ui         bool
	maxClients int
}

func main() {
	plain := !term.IsTerminal(int(os.Stdout.Fd()))
	color.NoColor = plain

	cmd := newRootCommand(console{in: os.Stdin, out: os.Stdout, plain: plain})
	if err := cmd.Execute(); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand(con console) *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "backdoor",
		Short: "Multi-user terminal chat over TCP",
		Long: `Backdoor is a small multi-user chat. Run one process with --server and
connect any number of clients to it.

Examples:
  # Start a server on the default port
  backdoor --server

  # Join it
  backdoor --host 127.0.0.1 --port 55555 --nick alice

  # Full-screen client
  backdoor --ui`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, f)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if f.server {
				return runServer(ctx, cfg, con)
			}
			return runClient(ctx, cfg, f, con)
		},
	}

	cmd.Flags().BoolVar(&f.server, "server", false, "Run as server")
	cmd.Flags().StringVar(&f.host, "host", config.DefaultHost, "Host address to connect to or bind on (env CHAT_HOST)")
	cmd.Flags().IntVar(&f.port, "port", config.DefaultPort, "Port number (env CHAT_PORT)")
	cmd.Flags().StringVar(&f.room, "room", config.DefaultRoom, "Chat room name (env CHAT_ROOM)")
	cmd.Flags().StringVar(&f.nick, "nick", "", "Nickname; prompts when empty")
	cmd.Flags().BoolVar(&f.ui, "ui", false, "Use the full-screen client")
	cmd.Flags().IntVar(&f.maxClients, "max-clients", config.DefaultMaxClients, "Maximum simultaneous clients (env CHAT_MAX_CLIENTS)")

	cmd.SetIn(con.in)
	cmd.SetOut(con.out)
	return cmd
}

// resolveConfig loads the environment and applies the flags given on the
// command line on top of it.
func resolveConfig(cmd *cobra.Command, f flags) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("host") {
		cfg.Host = f.host
	}
	if changed("port") {
		cfg.Port = f.port
	}
	if changed("room") {
		cfg.Room = f.room
	}
	if changed("max-clients") {
		cfg.MaxClients = f.maxClients
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runServer(ctx context.Context, cfg *config.Config, con console) error {
	logger, closeLog, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	}, con.out)
	if err != nil {
		return err
	}
	defer closeLog()

	srv := server.NewServer(server.Options{
		Room:           cfg.Room,
		MaxClients:     cfg.MaxClients,
		MaxMessageSize: cfg.MaxMessageSize,
		WriteTimeout:   cfg.WriteTimeout,
	}, logger)

	listener, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	fmt.Fprintln(con.out, style.Box(fmt.Sprintf("Server running on port %d", port)))

	return srv.Serve(ctx, listener)
}

func runClient(ctx context.Context, cfg *config.Config, f flags, con console) error {
	// the client only logs to a file; stdout belongs to the chat
	logger, closeLog, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	}, nil)
	if err != nil {
		return err
	}
	defer closeLog()

	terminal := client.NewTerminal(con.in, con.out, con.plain)
	defer terminal.Close()
	terminal.Welcome()

	nickname, err := chooseNickname(ctx, terminal, f.nick)
	if interrupted(ctx, err) {
		terminal.Notice(style.Yellow, "Shutting down...")
		return nil
	}
	if err != nil {
		return err
	}

	conn, err := client.Dial(ctx, cfg.Addr())
	if interrupted(ctx, err) {
		terminal.Notice(style.Yellow, "Shutting down...")
		return nil
	}
	if err != nil {
		logger.Error("dial_failed", "addr", cfg.Addr(), "error", err.Error())
		return err
	}
	terminal.Banner(fmt.Sprintf("Connected to %s", cfg.Addr()))

	opts := client.Options{
		Nickname:       nickname,
		Logger:         logger,
		MaxMessageSize: cfg.MaxMessageSize,
	}

	if f.ui {
		err = runChatUI(ctx, conn, opts)
	} else {
		opts.Display = terminal
		sessionCtx, cancel := context.WithCancel(ctx)
		err = client.New(conn, opts).Run(sessionCtx, terminal.Lines(sessionCtx))
		cancel()
	}

	// a lost connection has already been reported on screen
	if errors.Is(err, client.ErrConnectionLost) {
		logger.Warn("session_lost", "error", err.Error())
		return nil
	}
	return err
}

func runChatUI(ctx context.Context, conn net.Conn, opts client.Options) error {
	ui, err := client.NewChatUI()
	if err != nil {
		conn.Close()
		return err
	}
	defer ui.Close()

	opts.Display = ui
	session := client.New(conn, opts)

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- session.Run(sessionCtx, ui.Lines())
		ui.Stop()
	}()

	uiErr := ui.Run()
	cancel()
	if err := <-done; err != nil {
		return err
	}
	return uiErr
}

// interrupted reports whether err is the result of cancelling ctx.
func interrupted(ctx context.Context, err error) bool {
	return err != nil && (ctx.Err() != nil || errors.Is(err, context.Canceled))
}

// chooseNickname validates nick, or asks until the user types a valid one.
func chooseNickname(ctx context.Context, terminal *client.Terminal, nick string) (string, error) {
	if nick != "" {
		if err := server.ValidateName(nick); err != nil {
			return "", fmt.Errorf("invalid nickname: %w", err)
		}
		return strings.TrimSpace(nick), nil
	}

	for {
		answer, err := terminal.Ask(ctx, "Choose an alias:")
		if err != nil {
			return "", err
		}
		if err := server.ValidateName(answer); err != nil {
			terminal.Notice(style.Red, "Invalid name: "+err.Error())
			continue
		}
		return strings.TrimSpace(answer), nil
	}
}
