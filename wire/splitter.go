package wire

// Splitter accumulates raw stream bytes and cuts them into frames at every
// unescaped command separator.
//
// Escape state is tracked byte by byte across Write calls, so an escaped
// escape byte ("//") followed by a terminator ends the frame, while a single
// escape byte before a terminator keeps it as data. The unterminated tail is
// kept until more bytes arrive.
//
// A Splitter is not safe for concurrent use.
type Splitter struct {
	seps    Separators
	buf     []byte
	scanned int  // bytes of buf already examined
	escaped bool // buf[scanned-1] was an unescaped escape byte
}

// NewSplitter returns an empty Splitter.
func NewSplitter(seps Separators) *Splitter {
	return &Splitter{
		seps: seps,
		buf:  make([]byte, 0, 256),
	}
}

// Write appends p to the input buffer. It never fails.
func (s *Splitter) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	return len(p), nil
}

// Next returns the next complete frame, without its terminator, or false
// when no terminator has been buffered yet. The returned slice is a copy.
func (s *Splitter) Next() ([]byte, bool) {
	for s.scanned < len(s.buf) {
		b := s.buf[s.scanned]
		s.scanned++

		if s.escaped {
			s.escaped = false
			continue
		}
		switch b {
		case s.seps.Escape:
			s.escaped = true
		case s.seps.Command:
			frame := make([]byte, s.scanned-1)
			copy(frame, s.buf[:s.scanned-1])

			n := copy(s.buf, s.buf[s.scanned:])
			s.buf = s.buf[:n]
			s.scanned = 0
			return frame, true
		}
	}
	return nil, false
}

// Terminated reports whether the buffered bytes contain at least one
// complete frame. It advances the scan state but consumes nothing.
func (s *Splitter) Terminated() bool {
	for s.scanned < len(s.buf) {
		b := s.buf[s.scanned]
		if s.escaped {
			s.escaped = false
			s.scanned++
			continue
		}
		if b == s.seps.Command {
			return true
		}
		if b == s.seps.Escape {
			s.escaped = true
		}
		s.scanned++
	}
	return false
}

// Buffered returns the number of bytes held, including complete frames
// not yet returned by Next.
func (s *Splitter) Buffered() int {
	return len(s.buf)
}

// Reset discards all buffered bytes and escape state.
func (s *Splitter) Reset() {
	s.buf = s.buf[:0]
	s.scanned = 0
	s.escaped = false
}
