package wire

import (
	"io"

	"github.com/pior/cmdmessenger/internal"
)

// Fields are small; a settings blob is the largest payload in practice.
var bufferPool = internal.NewBufferPool(64, 4096)

type writerState int

const (
	writerStarted writerState = iota
	writerFinished
	writerFailed
)

func (s writerState) String() string {
	switch s {
	case writerStarted:
		return "started"
	case writerFinished:
		return "finished"
	default:
		return "failed"
	}
}

// Writer builds one outbound frame directly on the transport.
//
// NewWriter writes the command id; each Write* call appends one field;
// Close writes the terminator. Nothing is buffered across calls, so a
// Writer that is abandoned before Close leaves an unterminated frame on the
// wire.
//
// A Writer is not safe for concurrent use.
type Writer struct {
	w     io.Writer
	seps  Separators
	id    CommandID
	state writerState
	err   error
}

// NewWriter starts a frame for id on w. Negative ids are rejected with an
// InvalidCommandIDError.
func NewWriter(w io.Writer, seps Separators, id CommandID) (*Writer, error) {
	if id < 0 {
		return nil, &InvalidCommandIDError{ID: id}
	}
	fw := &Writer{w: w, seps: seps, id: id}

	var scratch [8]byte
	if _, err := w.Write(appendInt(scratch[:0], int64(id))); err != nil {
		fw.fail(err)
		return nil, err
	}
	return fw, nil
}

// ID returns the command id of the frame being written.
func (fw *Writer) ID() CommandID {
	return fw.id
}

func (fw *Writer) fail(err error) {
	fw.state = writerFailed
	fw.err = err
}

func (fw *Writer) check(op string) error {
	switch fw.state {
	case writerStarted:
		return nil
	case writerFailed:
		return fw.err
	default:
		return &ProtocolStateError{Op: op, State: fw.state.String()}
	}
}

// writeField writes the field separator followed by the payload built by
// fill, in a single transport write.
func (fw *Writer) writeField(op string, fill func(dst []byte) []byte) error {
	if err := fw.check(op); err != nil {
		return err
	}

	buf := bufferPool.Get()
	defer bufferPool.Put(buf)

	b := append(buf.AvailableBuffer(), fw.seps.Field)
	b = fill(b)
	buf.Write(b)

	if _, err := fw.w.Write(buf.Bytes()); err != nil {
		fw.fail(err)
		return err
	}
	return nil
}

func (fw *Writer) WriteInt8(v int8) error {
	return fw.writeField("WriteInt8", func(dst []byte) []byte { return appendInt(dst, int64(v)) })
}

// WriteUint8 writes a byte as decimal text (0-255), the way the firmware
// prints byte arguments.
func (fw *Writer) WriteUint8(v uint8) error {
	return fw.writeField("WriteUint8", func(dst []byte) []byte { return appendInt(dst, int64(v)) })
}

func (fw *Writer) WriteInt16(v int16) error {
	return fw.writeField("WriteInt16", func(dst []byte) []byte { return appendInt(dst, int64(v)) })
}

func (fw *Writer) WriteInt32(v int32) error {
	return fw.writeField("WriteInt32", func(dst []byte) []byte { return appendInt(dst, int64(v)) })
}

// WriteBool writes v as the int16 value 0 or 1.
func (fw *Writer) WriteBool(v bool) error {
	return fw.writeField("WriteBool", func(dst []byte) []byte { return appendBool(dst, v) })
}

// WriteChar writes c as a single raw byte. A char equal to a separator is
// escaped so that it survives the round trip.
func (fw *Writer) WriteChar(c byte) error {
	return fw.writeField("WriteChar", func(dst []byte) []byte {
		if fw.seps.IsSpecial(c) {
			dst = append(dst, fw.seps.Escape)
		}
		return append(dst, c)
	})
}

func (fw *Writer) WriteFloat32(v float32) error {
	return fw.writeField("WriteFloat32", func(dst []byte) []byte { return appendFloat(dst, float64(v), 32) })
}

func (fw *Writer) WriteFloat64(v float64) error {
	return fw.writeField("WriteFloat64", func(dst []byte) []byte { return appendFloat(dst, v, 64) })
}

// WriteString writes the UTF-8 bytes of s, escaped.
func (fw *Writer) WriteString(s string) error {
	return fw.writeField("WriteString", func(dst []byte) []byte { return AppendEscaped(dst, []byte(s), fw.seps) })
}

// WriteBytes writes p escaped, with no text encoding step.
func (fw *Writer) WriteBytes(p []byte) error {
	return fw.writeField("WriteBytes", func(dst []byte) []byte { return AppendEscaped(dst, p, fw.seps) })
}

// Close writes the command separator, finishing the frame. It may be called
// once; a second call returns a ProtocolStateError.
func (fw *Writer) Close() error {
	if err := fw.check("Close"); err != nil {
		return err
	}
	if _, err := fw.w.Write([]byte{fw.seps.Command}); err != nil {
		fw.fail(err)
		return err
	}
	fw.state = writerFinished
	return nil
}

// Send writes one complete frame: the command id, the fields appended by
// build, and the terminator.
//
// If build returns an error the terminator is not written and the error is
// returned wrapped in an AbortedFrameError; the peer now holds a partial
// frame and the link must be resynchronized before sending again.
func Send(w io.Writer, seps Separators, id CommandID, build func(fw *Writer) error) error {
	fw, err := NewWriter(w, seps, id)
	if err != nil {
		return err
	}
	if build != nil {
		if err := build(fw); err != nil {
			return &AbortedFrameError{ID: id, Err: err}
		}
	}
	return fw.Close()
}
