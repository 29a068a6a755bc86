package lighthub

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/puddle/v2"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	cmdmessenger "github.com/pior/cmdmessenger"
	"github.com/pior/cmdmessenger/wire"
)

const (
	DefaultAckTimeout      = time.Second
	DefaultBreakerFailures = 3
	DefaultBreakerCooldown = 5 * time.Second
)

var (
	// ErrNoAck is returned when the hub does not acknowledge a command in
	// time. It matches cmdmessenger.ErrReplyTimeout.
	ErrNoAck = fmt.Errorf("lighthub: no ack received: %w", cmdmessenger.ErrReplyTimeout)

	// ErrHubUnavailable is returned without sending anything while the
	// breaker is open after repeated missing acks.
	ErrHubUnavailable = errors.New("lighthub: hub unavailable")

	// ErrClosed is returned by commands issued after Close.
	ErrClosed = errors.New("lighthub: hub closed")
)

// Config holds Hub settings.
type Config struct {
	// Serial locates the hub. Used by the default Dial.
	Serial cmdmessenger.SerialConfig

	// AckTimeout bounds the wait for each acknowledgment.
	// Zero means DefaultAckTimeout.
	AckTimeout time.Duration

	// Handler receives asynchronous hub events. May be nil.
	Handler EventHandler

	// BreakerFailures is the number of consecutive missing acks that opens
	// the breaker. Zero means DefaultBreakerFailures.
	BreakerFailures uint32

	// BreakerCooldown is how long the breaker stays open before a probe
	// command is let through. Zero means DefaultBreakerCooldown.
	BreakerCooldown time.Duration

	// Dial opens the byte stream to the hub. Nil opens Serial.
	Dial func(ctx context.Context) (cmdmessenger.Transport, error)

	// If nil, logging is disabled.
	Logger *zerolog.Logger
}

// session is one open link to the hub.
type session struct {
	messenger *cmdmessenger.Messenger
	listener  *cmdmessenger.Listener
}

func (s *session) alive() bool {
	select {
	case <-s.listener.Done():
		return false
	default:
		return true
	}
}

func (s *session) close() error {
	stopErr := s.listener.Stop()
	closeErr := s.messenger.Close()
	return errors.Join(stopErr, closeErr)
}

// Hub drives a light switch hub over one serial link.
//
// The link is opened on first use and kept open; events flow to the
// Handler while no command is running. Commands are serialized: the hub
// acknowledges with a single uncorrelated ACK frame, so only one exchange
// may be in flight. A command that hits a transport failure drops the link
// and the next command reopens it.
type Hub struct {
	config  Config
	logger  zerolog.Logger
	pool    *puddle.Pool[*session]
	breaker *gobreaker.CircuitBreaker[*wire.Reader]

	// ctx bounds the listeners of every session.
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	sessionsOpened atomic.Uint64
	sessionsClosed atomic.Uint64

	// link is the messenger of the open session, if any.
	link atomic.Pointer[cmdmessenger.Messenger]
}

// New creates a Hub. No I/O happens until Connect or the first command.
func New(config Config) (*Hub, error) {
	if config.AckTimeout <= 0 {
		config.AckTimeout = DefaultAckTimeout
	}
	if config.BreakerFailures == 0 {
		config.BreakerFailures = DefaultBreakerFailures
	}
	if config.BreakerCooldown <= 0 {
		config.BreakerCooldown = DefaultBreakerCooldown
	}
	if config.Dial == nil {
		serialConfig := config.Serial
		config.Dial = func(ctx context.Context) (cmdmessenger.Transport, error) {
			t, err := cmdmessenger.OpenSerial(serialConfig)
			if err != nil {
				return nil, err
			}
			return t, nil
		}
	}

	h := &Hub{
		config: config,
		logger: zerolog.Nop(),
	}
	if config.Logger != nil {
		h.logger = *config.Logger
	}
	h.ctx, h.cancel = context.WithCancel(context.Background())

	pool, err := puddle.NewPool(&puddle.Config[*session]{
		Constructor: h.openSession,
		Destructor:  h.closeSession,
		MaxSize:     1,
	})
	if err != nil {
		h.cancel()
		return nil, err
	}
	h.pool = pool

	h.breaker = gobreaker.NewCircuitBreaker[*wire.Reader](gobreaker.Settings{
		Name:        "lighthub",
		MaxRequests: 1,
		Timeout:     config.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.BreakerFailures
		},
		// Only a silent hub counts against the breaker; transport failures
		// reopen the link and caller cancellations say nothing about it.
		IsSuccessful: func(err error) bool {
			return !errors.Is(err, ErrNoAck)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			h.logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("lighthub: breaker state changed")
		},
	})

	return h, nil
}

func (h *Hub) openSession(ctx context.Context) (*session, error) {
	t, err := h.config.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("lighthub: open %s: %w", h.config.Serial.Port, err)
	}

	m, err := cmdmessenger.New(t, cmdmessenger.Config{Logger: h.config.Logger})
	if err != nil {
		_ = t.Close()
		return nil, err
	}
	if h.config.Handler != nil {
		m.RegisterRoutes(Routes(h.config.Handler))
	}

	l := cmdmessenger.NewListener(m, CmdAck)
	if err := l.Start(h.ctx); err != nil {
		_ = t.Close()
		return nil, err
	}

	h.sessionsOpened.Add(1)
	h.link.Store(m)
	h.logger.Info().Str("port", h.config.Serial.Port).Msg("lighthub: connected")
	return &session{messenger: m, listener: l}, nil
}

func (h *Hub) closeSession(s *session) {
	h.sessionsClosed.Add(1)
	h.link.CompareAndSwap(s.messenger, nil)
	if err := s.close(); err != nil {
		h.logger.Debug().Err(err).Msg("lighthub: session closed with error")
	}
	h.logger.Info().Str("port", h.config.Serial.Port).Msg("lighthub: disconnected")
}

// Connect opens the link now instead of on the first command.
func (h *Hub) Connect(ctx context.Context) error {
	res, err := h.acquire(ctx)
	if err != nil {
		return err
	}
	res.Release()
	return nil
}

// Close drops the link and fails every later command with ErrClosed.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		h.cancel()
		h.pool.Close()
	})
}

// acquire returns a live session, replacing one whose listener has died.
func (h *Hub) acquire(ctx context.Context) (*puddle.Resource[*session], error) {
	for attempt := 0; ; attempt++ {
		res, err := h.pool.Acquire(ctx)
		if err != nil {
			if errors.Is(err, puddle.ErrClosedPool) {
				return nil, ErrClosed
			}
			return nil, err
		}
		if res.Value().alive() || attempt > 0 {
			return res, nil
		}
		h.logger.Warn().Err(res.Value().listener.Err()).Msg("lighthub: link lost, reconnecting")
		res.Destroy()
	}
}

// exchange sends one command and returns the hub's acknowledgment.
func (h *Hub) exchange(ctx context.Context, id wire.CommandID, build func(w *wire.Writer) error) (*wire.Reader, error) {
	r, err := h.breaker.Execute(func() (*wire.Reader, error) {
		return h.exchangeDirect(ctx, id, build)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrHubUnavailable
	}
	return r, err
}

func (h *Hub) exchangeDirect(ctx context.Context, id wire.CommandID, build func(w *wire.Writer) error) (*wire.Reader, error) {
	res, err := h.acquire(ctx)
	if err != nil {
		return nil, err
	}
	s := res.Value()

	r, err := s.listener.Request(ctx, id, h.config.AckTimeout, build)
	if err != nil {
		var abortErr *wire.AbortedFrameError
		if cmdmessenger.ShouldReconnect(err) || errors.As(err, &abortErr) || !s.alive() {
			res.Destroy()
		} else {
			res.Release()
		}
		if errors.Is(err, cmdmessenger.ErrReplyTimeout) {
			return nil, ErrNoAck
		}
		return nil, err
	}

	res.Release()
	return r, nil
}

// Reset reboots a switch. With hard set, its settings are reset as well.
func (h *Hub) Reset(ctx context.Context, node uint8, hard bool) (*wire.Reader, error) {
	return h.exchange(ctx, CmdReset, func(w *wire.Writer) error {
		if err := w.WriteChar(node); err != nil {
			return err
		}
		return w.WriteBool(hard)
	})
}

// Status asks a switch to report a StatusEvent.
func (h *Hub) Status(ctx context.Context, node uint8) (*wire.Reader, error) {
	return h.exchange(ctx, CmdStatusRequest, func(w *wire.Writer) error {
		return w.WriteInt16(int16(node))
	})
}

// Dump asks a switch to report its settings as a SettingsDump.
func (h *Hub) Dump(ctx context.Context, node uint8) (*wire.Reader, error) {
	return h.exchange(ctx, CmdDumpSettings, func(w *wire.Writer) error {
		return w.WriteChar(node)
	})
}

// SetByte writes one settings byte of a switch. The ack echoes node,
// offset and value.
func (h *Hub) SetByte(ctx context.Context, node, offset, value uint8) (*wire.Reader, error) {
	return h.exchange(ctx, CmdSetByte, writeInt16s(node, offset, value))
}

// GetI2C asks a switch to read an I2C register; the value arrives as an
// I2CRegister event.
func (h *Hub) GetI2C(ctx context.Context, node, address, register uint8) (*wire.Reader, error) {
	return h.exchange(ctx, CmdGetI2C, writeInt16s(node, address, register))
}

// SetI2C writes an I2C register on a switch.
func (h *Hub) SetI2C(ctx context.Context, node, address, register, value uint8) (*wire.Reader, error) {
	return h.exchange(ctx, CmdSetI2C, writeInt16s(node, address, register, value))
}

func writeInt16s(values ...uint8) func(w *wire.Writer) error {
	return func(w *wire.Writer) error {
		for _, v := range values {
			if err := w.WriteInt16(int16(v)); err != nil {
				return err
			}
		}
		return nil
	}
}

// Stats is a snapshot of the Hub link and breaker.
type Stats struct {
	SessionsOpened uint64
	SessionsClosed uint64
	Connected      bool
	BreakerState   gobreaker.State
	BreakerCounts  gobreaker.Counts

	// Link holds the counters of the open session. They start from zero
	// on every reconnect.
	Link cmdmessenger.Stats
}

func (h *Hub) Stats() Stats {
	st := Stats{
		SessionsOpened: h.sessionsOpened.Load(),
		SessionsClosed: h.sessionsClosed.Load(),
		BreakerState:   h.breaker.State(),
		BreakerCounts:  h.breaker.Counts(),
	}
	if m := h.link.Load(); m != nil {
		st.Connected = true
		st.Link = m.Stats()
	}
	return st
}

// ParseByte parses a byte written in decimal, hex (0x5A), octal (0o17)
// or binary (0b101).
func ParseByte(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("lighthub: invalid byte %q: %w", s, err)
	}
	return uint8(v), nil
}
