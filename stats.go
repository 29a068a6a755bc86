package cmdmessenger

import (
	"sync/atomic"
	"time"

	"github.com/pior/cmdmessenger/internal/coarsetime"
)

// Stats is a snapshot of Messenger and Listener counters.
//
// For Prometheus integration, expose these as counters; LastFrameAt as a
// gauge of seconds since epoch.
type Stats struct {
	BytesRead        uint64 // Bytes received from the transport
	FramesSent       uint64 // Frames written with a terminator
	FramesDispatched uint64 // Frames handed to a handler
	FramesDropped    uint64 // Malformed frames and frames with no handler
	FramingErrors    uint64 // Frames that failed to decode, in Pump or in a handler
	UnknownCommands  uint64 // Frames whose command id has no handler
	HandlerErrors    uint64 // Handlers that returned a non-framing error
	RepliesReceived  uint64 // Acknowledgment frames deposited in the mailbox
	ReplyTimeouts    uint64 // Waits that gave up

	// LastFrameAt is the coarse time of the last complete inbound frame.
	// Zero if none was received.
	LastFrameAt time.Time
}

type statsCollector struct {
	bytesRead        atomic.Uint64
	framesSent       atomic.Uint64
	framesDispatched atomic.Uint64
	framesDropped    atomic.Uint64
	framingErrors    atomic.Uint64
	unknownCommands  atomic.Uint64
	handlerErrors    atomic.Uint64
	repliesReceived  atomic.Uint64
	replyTimeouts    atomic.Uint64
	lastFrameNs      atomic.Int64
}

func (c *statsCollector) recordFrame() {
	c.lastFrameNs.Store(coarsetime.UnixNano())
}

func (c *statsCollector) snapshot() Stats {
	s := Stats{
		BytesRead:        c.bytesRead.Load(),
		FramesSent:       c.framesSent.Load(),
		FramesDispatched: c.framesDispatched.Load(),
		FramesDropped:    c.framesDropped.Load(),
		FramingErrors:    c.framingErrors.Load(),
		UnknownCommands:  c.unknownCommands.Load(),
		HandlerErrors:    c.handlerErrors.Load(),
		RepliesReceived:  c.repliesReceived.Load(),
		ReplyTimeouts:    c.replyTimeouts.Load(),
	}
	if ns := c.lastFrameNs.Load(); ns != 0 {
		s.LastFrameAt = time.Unix(0, ns)
	}
	return s
}
