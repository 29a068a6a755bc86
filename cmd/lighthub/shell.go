package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	cmdmessenger "github.com/pior/cmdmessenger"
	"github.com/pior/cmdmessenger/lighthub"
	"github.com/pior/cmdmessenger/wire"
)

const shellHelp = `Commands:
  connect [port] [baud] [timeout]  - Connect to the hub
  disconnect                       - Close the serial port
  node <id>                        - Select the switch to talk to
  reset                            - Reset the switch
  hardreset                        - Reset the switch and its settings
  status                           - Request a status report
  dump                             - Dump the switch settings
  setbyte <offset> <value>         - Set a configuration byte
  geti2c <address> <register>      - Read an I2C register
  seti2c <address> <register> <v>  - Write an I2C register
  stats                            - Show link statistics
  quit                             - Exit the shell`

// shell is the interactive hub console.
type shell struct {
	cfg     appConfig
	logger  *zerolog.Logger
	console *console

	// dial overrides the serial transport; tests set it.
	dial func(ctx context.Context) (cmdmessenger.Transport, error)

	hub     *lighthub.Hub
	port    string
	node    uint8
	hasNode bool
}

func newShell(cfg appConfig, logger *zerolog.Logger, out io.Writer) *shell {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &shell{
		cfg:     cfg,
		logger:  logger,
		console: newConsole(out),
	}
}

func (s *shell) prompt() string {
	if s.hasNode {
		return fmt.Sprintf("node:%d> ", s.node)
	}
	return "hub> "
}

// run reads commands from in until quit, end of input or ctx is done.
// Cancelling ctx returns at once, even while waiting for a line.
func (s *shell) run(ctx context.Context, in io.Reader) error {
	defer s.disconnect()

	s.console.printf("switch controller shell. Type help to list commands.\n\n")

	done := make(chan struct{})
	defer close(done)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		s.console.printf("%s", s.prompt())

		var line string
		select {
		case <-ctx.Done():
			s.console.printf("\n")
			return nil
		case l, ok := <-lines:
			if !ok {
				s.console.printf("\n")
				return <-scanErr
			}
			line = l
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		if quit := s.exec(ctx, strings.ToLower(parts[0]), parts[1:]); quit {
			return nil
		}
	}
}

// exec runs one command and reports whether the shell should exit.
func (s *shell) exec(ctx context.Context, command string, args []string) bool {
	switch command {
	case "connect":
		s.connect(ctx, args)

	case "disconnect":
		if s.hub == nil {
			s.console.printf("Not connected\n")
			return false
		}
		s.console.printf("Disconnecting...\n")
		s.disconnect()

	case "node":
		if len(args) != 1 {
			s.console.printf("Usage: node <id>\n")
			return false
		}
		node, err := lighthub.ParseByte(args[0])
		if err != nil {
			s.console.printf("Invalid node id: %s\n", args[0])
			return false
		}
		s.node, s.hasNode = node, true

	case "reset":
		s.request(ctx, "reset", func(ctx context.Context, h *lighthub.Hub) (*wire.Reader, error) {
			return h.Reset(ctx, s.node, false)
		}, nil)

	case "hardreset":
		s.request(ctx, "reset", func(ctx context.Context, h *lighthub.Hub) (*wire.Reader, error) {
			return h.Reset(ctx, s.node, true)
		}, nil)

	case "status":
		s.request(ctx, "get status", func(ctx context.Context, h *lighthub.Hub) (*wire.Reader, error) {
			return h.Status(ctx, s.node)
		}, nil)

	case "dump":
		s.request(ctx, "dump settings", func(ctx context.Context, h *lighthub.Hub) (*wire.Reader, error) {
			return h.Dump(ctx, s.node)
		}, nil)

	case "setbyte":
		vals, ok := s.parseBytes(args, 2, "setbyte <offset> <value>")
		if !ok {
			return false
		}
		s.request(ctx, "set configuration", func(ctx context.Context, h *lighthub.Hub) (*wire.Reader, error) {
			return h.SetByte(ctx, s.node, vals[0], vals[1])
		}, []string{"nodeid", "offset", "value"})

	case "geti2c":
		vals, ok := s.parseBytes(args, 2, "geti2c <address> <register>")
		if !ok {
			return false
		}
		s.request(ctx, "get register", func(ctx context.Context, h *lighthub.Hub) (*wire.Reader, error) {
			return h.GetI2C(ctx, s.node, vals[0], vals[1])
		}, nil)

	case "seti2c":
		vals, ok := s.parseBytes(args, 3, "seti2c <address> <register> <value>")
		if !ok {
			return false
		}
		s.request(ctx, "set register", func(ctx context.Context, h *lighthub.Hub) (*wire.Reader, error) {
			return h.SetI2C(ctx, s.node, vals[0], vals[1], vals[2])
		}, []string{"nodeid", "address", "register", "value"})

	case "stats":
		if s.hub == nil {
			s.console.printf("Not connected\n")
			return false
		}
		st := s.hub.Stats()
		s.console.printf("sessions opened: %d, closed: %d\n", st.SessionsOpened, st.SessionsClosed)
		s.console.printf("breaker: %s (requests %d, failures %d)\n",
			st.BreakerState, st.BreakerCounts.Requests, st.BreakerCounts.TotalFailures)
		if st.Connected {
			l := st.Link
			s.console.printf("link: %d bytes read, %d frames sent, %d dispatched, %d dropped\n",
				l.BytesRead, l.FramesSent, l.FramesDispatched, l.FramesDropped)
			s.console.printf("acks: %d received, %d timed out\n", l.RepliesReceived, l.ReplyTimeouts)
		}

	case "help", "?":
		s.console.printf("%s\n", shellHelp)

	case "quit", "exit":
		return true

	default:
		s.console.printf("Unknown command: %s. Type 'help' for available commands.\n", command)
	}
	return false
}

func (s *shell) connect(ctx context.Context, args []string) {
	if s.hub != nil {
		s.console.printf("Already connected to %s\n", s.port)
		return
	}

	cfg := s.cfg
	if len(args) > 0 {
		cfg.Port = args[0]
	}
	if len(args) > 1 {
		baud, err := strconv.Atoi(args[1])
		if err != nil || baud <= 0 {
			s.console.printf("Invalid baud rate: %s\n", args[1])
			return
		}
		cfg.Baud = baud
	}
	if len(args) > 2 {
		d, err := parseTimeout(args[2])
		if err != nil {
			s.console.printf("Invalid timeout: %s\n", args[2])
			return
		}
		cfg.ReadTimeout = d
	}

	s.console.printf("Connecting to %s at %d baud, timeout %s\n", cfg.Port, cfg.Baud, cfg.ReadTimeout)

	hub, err := lighthub.New(lighthub.Config{
		Serial:     cfg.serial(),
		AckTimeout: cfg.AckTimeout,
		Handler:    s.console,
		Dial:       s.dial,
		Logger:     s.logger,
	})
	if err != nil {
		s.console.printf("Error: %v\n", err)
		return
	}
	if err := hub.Connect(ctx); err != nil {
		hub.Close()
		s.console.printf("Error: %v\n", err)
		return
	}

	s.hub = hub
	s.port = cfg.Port
	s.hasNode = false
}

func (s *shell) disconnect() {
	if s.hub == nil {
		return
	}
	s.hub.Close()
	s.hub = nil
}

func (s *shell) parseBytes(args []string, n int, usage string) ([]uint8, bool) {
	if len(args) != n {
		s.console.printf("Missing required argument. Usage: %s\n", usage)
		return nil, false
	}
	vals := make([]uint8, n)
	for i, arg := range args {
		v, err := lighthub.ParseByte(arg)
		if err != nil {
			s.console.printf("Invalid value: %s\n", arg)
			return nil, false
		}
		vals[i] = v
	}
	return vals, true
}

// request runs a hub command for the selected node. When echo is set the
// ack is expected to carry one byte per name and is printed.
func (s *shell) request(ctx context.Context, action string, call func(context.Context, *lighthub.Hub) (*wire.Reader, error), echo []string) {
	if !s.hasNode {
		s.console.printf("Must select a node first\n")
		return
	}
	if s.hub == nil {
		s.console.printf("Not connected\n")
		return
	}

	start := time.Now()
	ack, err := call(ctx, s.hub)
	switch {
	case errors.Is(err, lighthub.ErrNoAck):
		s.console.printf("No ACK received (took %v)\n", time.Since(start))
		return
	case errors.Is(err, lighthub.ErrHubUnavailable):
		s.console.printf("Hub is not answering, try again later\n")
		return
	case err != nil:
		s.console.printf("Error: %v\n", err)
		return
	}

	s.console.printf("Tap switch %d to %s.\n", s.node, action)

	if len(echo) > 0 {
		fields := make([]string, 0, len(echo))
		for _, name := range echo {
			v, err := ack.ReadUint8()
			if err != nil {
				s.logger.Debug().Err(err).Msg("unexpected ack payload")
				return
			}
			fields = append(fields, fmt.Sprintf("%s:0x%02x", name, v))
		}
		s.console.printf("%s\n", strings.Join(fields, " "))
	}
}
