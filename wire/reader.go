package wire

// Reader decodes the fields of one complete frame in order.
//
// The command id is read when the Reader is created, so the first Read*
// call returns the first argument. There is no random access and no schema:
// callers read fields in the order the command defines. Leaving fields
// unread is fine; reading past the last field returns ErrNoMoreFields.
//
// A Reader retains frame and is not safe for concurrent use.
type Reader struct {
	frame []byte
	id    CommandID
	tok   *Tokenizer
}

// NewReader parses the command id of frame (terminator already stripped).
func NewReader(frame []byte, seps Separators) (*Reader, error) {
	r := &Reader{
		frame: frame,
		tok:   NewTokenizer(frame, seps),
	}

	field, err := r.tok.Next(false)
	if err != nil {
		return nil, err
	}
	id, err := parseInt(field, 16)
	if err != nil {
		return nil, &FramingError{Message: "invalid command id", Err: err}
	}
	if id < 0 {
		return nil, &FramingError{Message: "negative command id"}
	}
	r.id = CommandID(id)
	return r, nil
}

// ID returns the frame's command id.
func (r *Reader) ID() CommandID {
	return r.id
}

// Frame returns the raw frame bytes, without terminator.
func (r *Reader) Frame() []byte {
	return r.frame
}

// Remaining reports whether unread fields are left.
func (r *Reader) Remaining() bool {
	return r.tok.More()
}

func (r *Reader) ReadInt8() (int8, error) {
	v, err := r.readInt(8)
	return int8(v), err
}

// ReadUint8 reads a byte sent as decimal text (0-255).
func (r *Reader) ReadUint8() (uint8, error) {
	field, err := r.tok.Next(false)
	if err != nil {
		return 0, err
	}
	v, err := parseUint(field, 8)
	return uint8(v), err
}

func (r *Reader) ReadInt16() (int16, error) {
	v, err := r.readInt(16)
	return int16(v), err
}

func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.readInt(32)
	return int32(v), err
}

// ReadBool reads an int16 field; any non-zero value is true.
func (r *Reader) ReadBool() (bool, error) {
	v, err := r.readInt(16)
	return v != 0, err
}

// ReadChar reads a single-byte field.
func (r *Reader) ReadChar() (byte, error) {
	field, err := r.tok.Next(true)
	if err != nil {
		return 0, err
	}
	if len(field) != 1 {
		return 0, &FramingError{Message: "char field must be exactly one byte"}
	}
	return field[0], nil
}

func (r *Reader) ReadFloat32() (float32, error) {
	field, err := r.tok.Next(false)
	if err != nil {
		return 0, err
	}
	v, err := parseFloat(field, 32)
	return float32(v), err
}

func (r *Reader) ReadFloat64() (float64, error) {
	field, err := r.tok.Next(false)
	if err != nil {
		return 0, err
	}
	return parseFloat(field, 64)
}

// ReadString reads an escaped field as text. The bytes are returned as-is;
// invalid UTF-8 is not rejected.
func (r *Reader) ReadString() (string, error) {
	field, err := r.tok.Next(true)
	if err != nil {
		return "", err
	}
	return string(field), nil
}

// ReadBytes reads an escaped field. The returned slice is owned by the caller.
func (r *Reader) ReadBytes() ([]byte, error) {
	return r.tok.Next(true)
}

func (r *Reader) readInt(bitSize int) (int64, error) {
	field, err := r.tok.Next(false)
	if err != nil {
		return 0, err
	}
	return parseInt(field, bitSize)
}
