package cmdmessenger

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/pior/cmdmessenger/wire"
)

// DefaultReadSize is the transport read buffer used by Pump.
const DefaultReadSize = 64

// Handler processes one inbound frame. The Reader is positioned at the
// first field after the command id.
//
// Handlers run synchronously on the goroutine calling Pump: a slow handler
// delays every frame behind it. A returned error is logged and counted;
// it never stops the pump.
type Handler func(r *wire.Reader) error

// Routes is a declarative table of handlers keyed by command id.
type Routes map[wire.CommandID]Handler

// Config holds Messenger settings. The zero value is usable.
type Config struct {
	// Separators is the separator set of the stream.
	// The zero value selects wire.DefaultSeparators.
	Separators wire.Separators

	// ReadSize is the maximum number of bytes requested per transport read.
	// Zero means DefaultReadSize.
	ReadSize int

	// Logger receives dropped-frame and transport events.
	// If nil, logging is disabled.
	Logger *zerolog.Logger
}

// Messenger multiplexes frames over one Transport: it writes outbound
// frames and demultiplexes inbound frames to handlers by command id.
//
// Send may be called from any goroutine. Pump is meant to be driven by a
// single goroutine, usually a Listener.
type Messenger struct {
	transport Transport
	seps      wire.Separators
	logger    zerolog.Logger

	// writeMu guards out.
	writeMu sync.Mutex
	out     trackingWriter

	// pumpMu guards splitter and readBuf.
	pumpMu   sync.Mutex
	splitter *wire.Splitter
	readBuf  []byte

	mu             sync.RWMutex
	handlers       map[wire.CommandID]Handler
	defaultHandler Handler

	stats statsCollector
}

// New creates a Messenger on transport.
func New(transport Transport, config Config) (*Messenger, error) {
	seps := config.Separators
	if seps == (wire.Separators{}) {
		seps = wire.DefaultSeparators()
	}
	if err := seps.Validate(); err != nil {
		return nil, err
	}

	readSize := config.ReadSize
	if readSize <= 0 {
		readSize = DefaultReadSize
	}

	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = *config.Logger
	}

	return &Messenger{
		transport: transport,
		out:       trackingWriter{w: transport},
		seps:      seps,
		logger:    logger,
		splitter:  wire.NewSplitter(seps),
		readBuf:   make([]byte, readSize),
		handlers:  make(map[wire.CommandID]Handler),
	}, nil
}

// Separators returns the separator set used on the stream.
func (m *Messenger) Separators() wire.Separators {
	return m.seps
}

// Register binds h to id, replacing any previous handler for id.
func (m *Messenger) Register(id wire.CommandID, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[id] = h
}

// RegisterRoutes registers every entry of routes.
func (m *Messenger) RegisterRoutes(routes Routes) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, h := range routes {
		m.handlers[id] = h
	}
}

// Unregister removes the handler for id.
func (m *Messenger) Unregister(id wire.CommandID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, id)
}

// SetDefaultHandler sets the handler invoked for command ids that have no
// registered handler. A nil h restores logging and dropping such frames.
func (m *Messenger) SetDefaultHandler(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultHandler = h
}

func (m *Messenger) lookup(id wire.CommandID) (Handler, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if h, ok := m.handlers[id]; ok {
		return h, true
	}
	return m.defaultHandler, false
}

// Send writes one frame: the command id, the fields appended by build and
// the terminator. build may be nil for a frame without arguments.
//
// Concurrent Sends never interleave. If build fails the frame is left
// unterminated on the wire and the returned error satisfies
// wire.ShouldResync. Transport failures are returned as a TransportError.
func (m *Messenger) Send(id wire.CommandID, build func(w *wire.Writer) error) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.out.err = nil
	err := wire.Send(&m.out, m.seps, id, build)
	if m.out.err != nil {
		m.logger.Error().Err(m.out.err).Int16("id", int16(id)).Msg("cmdmessenger: write failed")
		return &TransportError{Op: "write", Err: m.out.err}
	}
	if err != nil {
		return err
	}

	m.stats.framesSent.Add(1)
	return nil
}

// trackingWriter remembers the first write failure so that it is reported
// as a TransportError even when it surfaces inside a frame builder.
type trackingWriter struct {
	w   io.Writer
	err error
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	if t.err != nil {
		return 0, t.err
	}
	n, err := t.w.Write(p)
	if err != nil {
		t.err = err
	}
	return n, err
}

// Pump reads from the transport until at least one complete frame is
// buffered or a read returns no data, then dispatches every complete frame
// in arrival order. An unterminated tail stays buffered for the next call.
//
// A read that times out is not an error. Read failures, including end of
// stream, are returned as a TransportError after the frames already
// buffered have been dispatched. ctx is checked between reads.
func (m *Messenger) Pump(ctx context.Context) error {
	m.pumpMu.Lock()
	defer m.pumpMu.Unlock()

	var readErr error
	for !m.splitter.Terminated() {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := m.transport.Read(m.readBuf)
		if n > 0 {
			m.splitter.Write(m.readBuf[:n])
			m.stats.bytesRead.Add(uint64(n))
		}
		if err != nil {
			readErr = &TransportError{Op: "read", Err: err}
			break
		}
		if n == 0 {
			break
		}
	}

	for {
		frame, ok := m.splitter.Next()
		if !ok {
			break
		}
		m.dispatch(frame)
	}

	return readErr
}

func (m *Messenger) dispatch(frame []byte) {
	m.stats.recordFrame()

	r, err := wire.NewReader(frame, m.seps)
	if err != nil {
		m.stats.framingErrors.Add(1)
		m.stats.framesDropped.Add(1)
		m.logger.Warn().Err(err).Bytes("frame", frame).Msg("cmdmessenger: dropping malformed frame")
		return
	}

	h, registered := m.lookup(r.ID())
	if !registered {
		m.stats.unknownCommands.Add(1)
		if h == nil {
			m.stats.framesDropped.Add(1)
			m.logger.Warn().
				Err(&UnregisteredCommandError{ID: r.ID()}).
				Bytes("frame", frame).
				Msg("cmdmessenger: dropping frame")
			return
		}
	}

	m.stats.framesDispatched.Add(1)
	if err := h(r); err != nil {
		var framingErr *wire.FramingError
		if errors.As(err, &framingErr) || errors.Is(err, wire.ErrNoMoreFields) {
			m.stats.framingErrors.Add(1)
		} else {
			m.stats.handlerErrors.Add(1)
		}
		m.logger.Warn().Err(err).Int16("id", int16(r.ID())).Bytes("frame", frame).Msg("cmdmessenger: handler failed")
	}
}

// Close closes the transport. A Listener running on the Messenger exits
// with a TransportError once its pending read fails.
func (m *Messenger) Close() error {
	if err := m.transport.Close(); err != nil {
		return &TransportError{Op: "close", Err: err}
	}
	return nil
}

// Stats returns a snapshot of the Messenger counters.
func (m *Messenger) Stats() Stats {
	return m.stats.snapshot()
}
