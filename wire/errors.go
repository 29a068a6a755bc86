package wire

import (
	"errors"
	"fmt"
)

// ErrNoMoreFields is returned by Reader methods when every field of the
// frame has already been consumed.
var ErrNoMoreFields = errors.New("wire: no more fields in frame")

// FramingError reports a frame that cannot be decoded: a truncated escape
// sequence, a malformed numeric field or a missing command id.
//
// The frame is lost but the stream is not: the demultiplexer drops the
// segment and resumes at the next terminator.
type FramingError struct {
	Message string
	Err     error // Underlying error, if any
}

func (e *FramingError) Error() string {
	if e.Err != nil {
		return "wire: framing error: " + e.Message + ": " + e.Err.Error()
	}
	return "wire: framing error: " + e.Message
}

// Unwrap returns the underlying error for error chain inspection
func (e *FramingError) Unwrap() error {
	return e.Err
}

// ShouldResync returns false - a bad inbound frame does not affect outbound framing
func (e *FramingError) ShouldResync() bool {
	return false
}

// ProtocolStateError reports a Writer used out of sequence, for example a
// field appended after the frame terminator was written.
//
// This is a programming error. The in-progress frame must be abandoned.
type ProtocolStateError struct {
	Op    string
	State string
}

func (e *ProtocolStateError) Error() string {
	return fmt.Sprintf("wire: %s on %s writer", e.Op, e.State)
}

// ShouldResync returns true - the frame on the wire is in an unknown state
func (e *ProtocolStateError) ShouldResync() bool {
	return true
}

// InvalidCommandIDError is returned by NewWriter for an id that no reader
// accepts. Nothing is written.
type InvalidCommandIDError struct {
	ID CommandID
}

func (e *InvalidCommandIDError) Error() string {
	return fmt.Sprintf("wire: invalid command id %d", e.ID)
}

// ShouldResync returns false - the frame was never started
func (e *InvalidCommandIDError) ShouldResync() bool {
	return false
}

// AbortedFrameError is returned when a frame build callback fails after the
// command id (and possibly some fields) already reached the transport. The
// terminator is not written, so the peer sees an unterminated frame.
type AbortedFrameError struct {
	ID  CommandID
	Err error
}

func (e *AbortedFrameError) Error() string {
	return fmt.Sprintf("wire: frame %d aborted: %v", e.ID, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *AbortedFrameError) Unwrap() error {
	return e.Err
}

// ShouldResync returns true - an unterminated frame is on the wire
func (e *AbortedFrameError) ShouldResync() bool {
	return true
}

// ErrorWithStreamState is implemented by errors that know whether the
// outbound stream needs resynchronizing before the next frame is sent.
type ErrorWithStreamState interface {
	error
	ShouldResync() bool
}

// ShouldResync reports whether err leaves the outbound stream in an unknown
// state. Unknown non-nil errors are treated conservatively as true.
//
// Usage:
//
//	err := wire.Send(port, seps, id, build)
//	if wire.ShouldResync(err) {
//	    // reopen or flush the link before sending again
//	}
func ShouldResync(err error) bool {
	if err == nil {
		return false
	}

	var e ErrorWithStreamState
	if errors.As(err, &e) {
		return e.ShouldResync()
	}

	return true
}
