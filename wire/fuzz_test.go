package wire

import (
	"bytes"
	"errors"
	"testing"
)

// FuzzStringRoundTrip checks that any string survives encode, split and
// decode under any valid separator set.
// Run with: go test -fuzz='^FuzzStringRoundTrip$' -fuzztime=60s ./wire
func FuzzStringRoundTrip(f *testing.F) {
	f.Add("plain", byte(','), byte(';'), byte('/'))
	f.Add("a,b", byte(','), byte(';'), byte('/'))
	f.Add("a//,b", byte(','), byte(';'), byte('/'))
	f.Add("end/", byte(','), byte(';'), byte('/'))
	f.Add("tab\tsep", byte('\t'), byte('\n'), byte('\\'))
	f.Add("", byte(' '), byte('\r'), byte('\x1b'))

	f.Fuzz(func(t *testing.T, s string, field, cmd, esc byte) {
		seps := Separators{Field: field, Command: cmd, Escape: esc}
		if seps.Validate() != nil {
			t.Skip()
		}
		// Numeric fields are not escaped, so digits and '-' cannot be separators.
		for _, b := range []byte{field, cmd, esc} {
			if (b >= '0' && b <= '9') || b == '-' {
				t.Skip()
			}
		}

		var buf bytes.Buffer
		err := Send(&buf, seps, 7, func(w *Writer) error {
			if err := w.WriteString(s); err != nil {
				return err
			}
			return w.WriteInt16(-1)
		})
		if err != nil {
			t.Fatalf("Send failed: %v", err)
		}

		sp := NewSplitter(seps)
		sp.Write(buf.Bytes())
		frame, ok := sp.Next()
		if !ok {
			t.Fatalf("no frame in %q", buf.Bytes())
		}
		if sp.Buffered() != 0 {
			t.Fatalf("unexpected tail after frame %q", buf.Bytes())
		}

		r, err := NewReader(frame, seps)
		if err != nil {
			t.Fatalf("NewReader(%q) failed: %v", frame, err)
		}
		got, err := r.ReadString()
		if err != nil {
			t.Fatalf("ReadString failed: %v", err)
		}
		if got != s {
			t.Errorf("ReadString() = %q, want %q", got, s)
		}
		if v, err := r.ReadInt16(); err != nil || v != -1 {
			t.Errorf("ReadInt16() = %d, %v, want -1", v, err)
		}
	})
}

// FuzzReader feeds arbitrary frames to the Reader. It must never panic and
// must always terminate with ErrNoMoreFields.
func FuzzReader(f *testing.F) {
	f.Add([]byte("1,123,a/,b,-7"))
	f.Add([]byte("0"))
	f.Add([]byte(""))
	f.Add([]byte("1,/"))
	f.Add([]byte("2,,,,"))
	f.Add([]byte("3,1.5,NaN,+Inf,x"))

	f.Fuzz(func(t *testing.T, frame []byte) {
		r, err := NewReader(frame, DefaultSeparators())
		if err != nil {
			var framingErr *FramingError
			if !errors.As(err, &framingErr) {
				t.Fatalf("NewReader returned %T, want *FramingError", err)
			}
			return
		}

		readers := []func() error{
			func() error { _, err := r.ReadInt16(); return err },
			func() error { _, err := r.ReadString(); return err },
			func() error { _, err := r.ReadFloat64(); return err },
			func() error { _, err := r.ReadChar(); return err },
			func() error { _, err := r.ReadBytes(); return err },
			func() error { _, err := r.ReadUint8(); return err },
		}

		for i := 0; i <= len(frame)+1; i++ {
			err := readers[i%len(readers)]()
			if errors.Is(err, ErrNoMoreFields) {
				return
			}
		}
		t.Fatalf("reader did not reach the end of %q", frame)
	})
}

// FuzzSplitter checks that chunking does not change the frames produced.
func FuzzSplitter(f *testing.F) {
	f.Add([]byte("1,2;3,a/;b;4"), uint8(1))
	f.Add([]byte("1,end//;2;"), uint8(3))
	f.Add([]byte("///;;;"), uint8(2))

	f.Fuzz(func(t *testing.T, data []byte, chunk uint8) {
		size := int(chunk%16) + 1
		seps := DefaultSeparators()

		whole := NewSplitter(seps)
		whole.Write(data)
		var want [][]byte
		for {
			frame, ok := whole.Next()
			if !ok {
				break
			}
			want = append(want, frame)
		}

		chunked := NewSplitter(seps)
		var got [][]byte
		for start := 0; start < len(data); start += size {
			end := min(start+size, len(data))
			chunked.Write(data[start:end])
			for {
				frame, ok := chunked.Next()
				if !ok {
					break
				}
				got = append(got, frame)
			}
		}

		if len(got) != len(want) {
			t.Fatalf("chunked split produced %d frames, want %d", len(got), len(want))
		}
		for i := range want {
			if !bytes.Equal(got[i], want[i]) {
				t.Errorf("frame %d = %q, want %q", i, got[i], want[i])
			}
		}
		if chunked.Buffered() != whole.Buffered() {
			t.Errorf("tail = %d bytes, want %d", chunked.Buffered(), whole.Buffered())
		}
	})
}
