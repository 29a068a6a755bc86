package cmdmessenger

import (
	"errors"
	"fmt"

	"github.com/pior/cmdmessenger/wire"
)

var (
	// ErrReplyTimeout is returned when no acknowledgment arrives in time.
	// The request may still be answered later; that late reply is discarded
	// by the next Arm.
	ErrReplyTimeout = errors.New("cmdmessenger: timed out waiting for reply")

	// ErrListenerStopped is returned to waiters once the read loop has exited.
	ErrListenerStopped = errors.New("cmdmessenger: listener stopped")

	// ErrListenerStarted is returned by Start when the loop is already running.
	ErrListenerStarted = errors.New("cmdmessenger: listener already started")
)

// UnregisteredCommandError describes a well-formed frame whose command id
// has no handler. It is reported through the logger and never returned
// from Pump: the frame is dropped and dispatch continues.
type UnregisteredCommandError struct {
	ID wire.CommandID
}

func (e *UnregisteredCommandError) Error() string {
	return fmt.Sprintf("cmdmessenger: no handler for command %d", e.ID)
}

// TransportError wraps I/O failures of the underlying byte stream.
// A TransportError from Pump terminates the Listener loop; reconnecting is
// up to the caller.
type TransportError struct {
	Op  string // read, write or close
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("cmdmessenger: transport %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ShouldResync returns true - the link is broken
func (e *TransportError) ShouldResync() bool {
	return true
}

// ShouldReconnect reports whether err means the transport is unusable and
// must be reopened.
func ShouldReconnect(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
