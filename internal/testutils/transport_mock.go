package testutils

import (
	"bytes"
	"errors"
	"sync"
	"time"

	"github.com/pior/cmdmessenger/wire"
)

// ErrClosed is returned by reads and writes on a closed TransportMock.
var ErrClosed = errors.New("testutils: transport closed")

// TransportMock is an in-memory byte stream behaving like a serial port:
// reads are served from chunks queued with Feed, and when nothing is queued
// Read waits up to ReadTimeout and returns 0, nil.
type TransportMock struct {
	ReadTimeout time.Duration

	mu        sync.Mutex
	chunks    [][]byte
	written   bytes.Buffer
	closed    bool
	readErr   error
	writeErr  error
	responder func(frame []byte) string
	outbound  *wire.Splitter
	notify    chan struct{}
}

// NewTransportMock creates a mock with pre-queued inbound data. Each chunk
// is returned by at most one Read.
func NewTransportMock(chunks ...string) *TransportMock {
	m := &TransportMock{
		outbound: wire.NewSplitter(wire.DefaultSeparators()),
		notify:   make(chan struct{}, 1),
	}
	m.Feed(chunks...)
	return m
}

// Feed queues inbound chunks and wakes a pending Read.
func (m *TransportMock) Feed(chunks ...string) {
	m.mu.Lock()
	for _, c := range chunks {
		if c != "" {
			m.chunks = append(m.chunks, []byte(c))
		}
	}
	m.mu.Unlock()
	m.wake()
}

// FailReads makes Read return err once the queued chunks are consumed.
func (m *TransportMock) FailReads(err error) {
	m.mu.Lock()
	m.readErr = err
	m.mu.Unlock()
	m.wake()
}

// FailWrites makes every following Write return err.
func (m *TransportMock) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// Respond installs a simulated device: every complete outbound frame
// (default separators) is passed to fn and its return value is fed back as
// inbound data.
func (m *TransportMock) Respond(fn func(frame []byte) string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responder = fn
}

func (m *TransportMock) wake() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *TransportMock) Read(p []byte) (int, error) {
	deadline := time.Now().Add(m.ReadTimeout)

	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return 0, ErrClosed
		}
		if len(m.chunks) > 0 {
			chunk := m.chunks[0]
			n := copy(p, chunk)
			if n < len(chunk) {
				m.chunks[0] = chunk[n:]
			} else {
				m.chunks = m.chunks[1:]
			}
			m.mu.Unlock()
			return n, nil
		}
		if m.readErr != nil {
			err := m.readErr
			m.mu.Unlock()
			return 0, err
		}
		m.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, nil
		}
		select {
		case <-m.notify:
		case <-time.After(remaining):
		}
	}
}

func (m *TransportMock) Write(p []byte) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, ErrClosed
	}
	if m.writeErr != nil {
		err := m.writeErr
		m.mu.Unlock()
		return 0, err
	}
	m.written.Write(p)

	var frames [][]byte
	if m.responder != nil {
		m.outbound.Write(p)
		for {
			frame, ok := m.outbound.Next()
			if !ok {
				break
			}
			frames = append(frames, frame)
		}
	}
	responder := m.responder
	m.mu.Unlock()

	for _, frame := range frames {
		if reply := responder(frame); reply != "" {
			m.Feed(reply)
		}
	}
	return len(p), nil
}

func (m *TransportMock) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.wake()
	return nil
}

// Closed reports whether Close was called.
func (m *TransportMock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Written returns every byte written so far.
func (m *TransportMock) Written() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written.String()
}
