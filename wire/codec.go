package wire

import "strconv"

// AppendEscaped appends src to dst, prefixing every field separator,
// command separator and escape byte with one escape byte.
func AppendEscaped(dst, src []byte, seps Separators) []byte {
	for _, b := range src {
		if seps.IsSpecial(b) {
			dst = append(dst, seps.Escape)
		}
		dst = append(dst, b)
	}
	return dst
}

// Escape returns src with every special byte escaped.
// The result is never shorter than src.
func Escape(src []byte, seps Separators) []byte {
	return AppendEscaped(make([]byte, 0, len(src)+len(src)/8), src, seps)
}

// Tokenizer walks the fields of one frame, terminator already stripped.
//
// The first call to Next returns the command id text.
type Tokenizer struct {
	seps  Separators
	frame []byte
	pos   int

	// done is set once a field ended at the end of the frame instead of at
	// a delimiter: there is nothing left to read after it.
	done bool
}

// NewTokenizer returns a Tokenizer positioned at the start of frame.
func NewTokenizer(frame []byte, seps Separators) *Tokenizer {
	return &Tokenizer{seps: seps, frame: frame}
}

// More reports whether another call to Next can return a field.
func (t *Tokenizer) More() bool {
	return !t.done
}

// Next returns the raw bytes of the next field and consumes its delimiter.
//
// With escaped=false the field ends at the first field or command separator
// and is returned as a sub-slice of the frame. With escaped=true an escape
// byte makes the following byte literal; the unescaped field is returned in
// a new slice, and an escape byte with nothing after it is a FramingError.
//
// Next returns ErrNoMoreFields once the frame is exhausted.
func (t *Tokenizer) Next(escaped bool) ([]byte, error) {
	if t.done {
		return nil, ErrNoMoreFields
	}

	if !escaped {
		start := t.pos
		for t.pos < len(t.frame) {
			if t.seps.isDelimiter(t.frame[t.pos]) {
				field := t.frame[start:t.pos]
				t.pos++
				return field, nil
			}
			t.pos++
		}
		t.done = true
		return t.frame[start:], nil
	}

	field := make([]byte, 0, 16)
	for t.pos < len(t.frame) {
		b := t.frame[t.pos]
		t.pos++
		if t.seps.isDelimiter(b) {
			return field, nil
		}
		if b == t.seps.Escape {
			if t.pos >= len(t.frame) {
				t.done = true
				return nil, &FramingError{Message: "truncated escape sequence"}
			}
			b = t.frame[t.pos]
			t.pos++
		}
		field = append(field, b)
	}
	t.done = true
	return field, nil
}

// Numeric encodings. All of them are plain decimal text and can never
// contain a separator byte, so they are written without escaping.

func appendInt(dst []byte, v int64) []byte {
	return strconv.AppendInt(dst, v, 10)
}

func appendBool(dst []byte, v bool) []byte {
	if v {
		return append(dst, '1')
	}
	return append(dst, '0')
}

// appendFloat uses the shortest representation that parses back to the
// same value at the given precision. NaN and infinities are written as
// NaN, +Inf and -Inf.
func appendFloat(dst []byte, v float64, bitSize int) []byte {
	return strconv.AppendFloat(dst, v, 'g', -1, bitSize)
}

func parseInt(field []byte, bitSize int) (int64, error) {
	if len(field) == 0 {
		return 0, &FramingError{Message: "empty numeric field"}
	}
	v, err := strconv.ParseInt(string(field), 10, bitSize)
	if err != nil {
		return 0, &FramingError{Message: "invalid integer field " + strconv.Quote(string(field)), Err: err}
	}
	return v, nil
}

func parseUint(field []byte, bitSize int) (uint64, error) {
	if len(field) == 0 {
		return 0, &FramingError{Message: "empty numeric field"}
	}
	v, err := strconv.ParseUint(string(field), 10, bitSize)
	if err != nil {
		return 0, &FramingError{Message: "invalid unsigned field " + strconv.Quote(string(field)), Err: err}
	}
	return v, nil
}

func parseFloat(field []byte, bitSize int) (float64, error) {
	if len(field) == 0 {
		return 0, &FramingError{Message: "empty numeric field"}
	}
	v, err := strconv.ParseFloat(string(field), bitSize)
	if err != nil {
		return 0, &FramingError{Message: "invalid float field " + strconv.Quote(string(field)), Err: err}
	}
	return v, nil
}
