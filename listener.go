package cmdmessenger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pior/cmdmessenger/wire"
)

// Listener runs a Messenger's Pump loop on its own goroutine and lets
// callers block for the acknowledgment frame of a request.
//
// Acknowledgments are not correlated by request id: the Listener holds a
// single reply slot, so at most one request may wait at a time. Callers
// must serialize requests themselves.
type Listener struct {
	m     *Messenger
	ackID wire.CommandID
	box   *mailbox

	mu      sync.Mutex
	started bool
	err     error

	stopping atomic.Bool
	done     chan struct{}
}

// NewListener registers the acknowledgment handler for ackID on m.
func NewListener(m *Messenger, ackID wire.CommandID) *Listener {
	l := &Listener{
		m:     m,
		ackID: ackID,
		box:   newMailbox(),
		done:  make(chan struct{}),
	}
	m.Register(ackID, l.handleAck)
	return l
}

func (l *Listener) handleAck(r *wire.Reader) error {
	l.m.stats.repliesReceived.Add(1)
	l.box.deposit(r)
	return nil
}

// Start launches the read loop. The loop runs until Stop is called, ctx is
// done, or the transport fails.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return ErrListenerStarted
	}
	l.started = true

	go l.run(ctx)
	return nil
}

func (l *Listener) run(ctx context.Context) {
	var err error
	defer func() {
		l.mu.Lock()
		l.err = err
		l.mu.Unlock()

		if err != nil {
			l.box.fail(err)
		} else {
			l.box.fail(ErrListenerStopped)
		}
		close(l.done)
	}()

	l.m.logger.Debug().Int16("ack", int16(l.ackID)).Msg("cmdmessenger: listener started")

	for !l.stopping.Load() {
		if ctx.Err() != nil {
			break
		}
		if pumpErr := l.m.Pump(ctx); pumpErr != nil {
			if ctx.Err() != nil {
				break
			}
			if l.stopping.Load() {
				// Closing the transport is the usual way to interrupt a read.
				break
			}
			err = pumpErr
			l.m.logger.Error().Err(err).Msg("cmdmessenger: listener terminated")
			return
		}
	}

	l.m.logger.Debug().Msg("cmdmessenger: listener stopped")
}

// Stop asks the loop to exit and waits for it. The loop notices the request
// after the pending transport read returns, so Stop can take up to one
// transport read timeout. Stop returns the error that terminated the loop,
// if any.
func (l *Listener) Stop() error {
	l.stopping.Store(true)

	l.mu.Lock()
	started := l.started
	l.mu.Unlock()
	if !started {
		return nil
	}

	<-l.done
	return l.Err()
}

// Done is closed when the loop has exited.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// Err returns the transport error that terminated the loop, or nil while the
// loop runs or after a clean stop.
func (l *Listener) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Arm clears the reply slot. Call it before sending the request whose
// acknowledgment will be awaited with Wait, so that a stale reply from an
// earlier exchange is never returned.
func (l *Listener) Arm() {
	l.box.arm()
}

// Wait blocks until an acknowledgment deposited since the last Arm is
// available, timeout elapses, or ctx is done. A timeout <= 0 waits on ctx
// only.
//
// It returns ErrReplyTimeout on timeout and the loop's terminal error (or
// ErrListenerStopped) once the loop has exited.
func (l *Listener) Wait(ctx context.Context, timeout time.Duration) (*wire.Reader, error) {
	r, err := l.box.wait(ctx, timeout)
	if errors.Is(err, ErrReplyTimeout) {
		l.m.stats.replyTimeouts.Add(1)
	}
	return r, err
}

// AwaitReply clears the reply slot and waits for the next acknowledgment.
//
// An acknowledgment that arrives before AwaitReply is called is discarded;
// use Request, or Arm before sending, when the reply may be fast.
func (l *Listener) AwaitReply(ctx context.Context, timeout time.Duration) (*wire.Reader, error) {
	l.Arm()
	return l.Wait(ctx, timeout)
}

// Request arms the reply slot, sends the frame built by build, and waits for
// the acknowledgment.
func (l *Listener) Request(ctx context.Context, id wire.CommandID, timeout time.Duration, build func(w *wire.Writer) error) (*wire.Reader, error) {
	l.Arm()
	if err := l.m.Send(id, build); err != nil {
		return nil, err
	}
	return l.Wait(ctx, timeout)
}

// mailbox is a single-slot holder for the latest acknowledgment.
//
// ready is closed exactly when reply != nil or err != nil.
type mailbox struct {
	mu    sync.Mutex
	reply *wire.Reader
	err   error
	ready chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{ready: make(chan struct{})}
}

func (b *mailbox) arm() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.reply != nil {
		b.reply = nil
		if b.err == nil {
			b.ready = make(chan struct{})
		}
	}
}

func (b *mailbox) deposit(r *wire.Reader) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return
	}
	if b.reply == nil {
		close(b.ready)
	}
	b.reply = r
}

func (b *mailbox) fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return
	}
	if b.reply == nil {
		close(b.ready)
	}
	b.err = err
}

// take consumes the pending reply or returns the terminal error. When
// neither is present it returns the channel to wait on.
func (b *mailbox) take() (*wire.Reader, chan struct{}, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.reply != nil {
		r := b.reply
		b.reply = nil
		if b.err == nil {
			b.ready = make(chan struct{})
		}
		return r, nil, nil
	}
	if b.err != nil {
		return nil, nil, b.err
	}
	return nil, b.ready, nil
}

func (b *mailbox) wait(ctx context.Context, timeout time.Duration) (*wire.Reader, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		r, ready, err := b.take()
		if ready == nil {
			return r, err
		}

		select {
		case <-ready:
		case <-expired:
			return nil, ErrReplyTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
