package wire

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultSeps = DefaultSeparators()

// encodeFrame runs build through Send and returns the bytes written.
func encodeFrame(t testing.TB, id CommandID, build func(w *Writer) error) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Send(&buf, defaultSeps, id, build))
	return buf.Bytes()
}

// decodeFrame splits data into exactly one frame and returns its Reader.
func decodeFrame(t testing.TB, data []byte) *Reader {
	t.Helper()
	s := NewSplitter(defaultSeps)
	s.Write(data)
	frame, ok := s.Next()
	require.True(t, ok, "no complete frame in %q", data)
	_, more := s.Next()
	require.False(t, more, "more than one frame in %q", data)

	r, err := NewReader(frame, defaultSeps)
	require.NoError(t, err)
	return r
}

func TestSeparatorsValidate(t *testing.T) {
	require.NoError(t, DefaultSeparators().Validate())

	for _, seps := range []Separators{
		{Field: ',', Command: ',', Escape: '/'},
		{Field: ',', Command: ';', Escape: ','},
		{Field: ',', Command: '/', Escape: '/'},
	} {
		assert.Error(t, seps.Validate(), "%+v", seps)
	}
}

func TestEscape(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "plain", input: "hello", expected: "hello"},
		{name: "empty", input: "", expected: ""},
		{name: "field separator", input: "a,b", expected: "a/,b"},
		{name: "command separator", input: "a;b", expected: "a/;b"},
		{name: "escape byte", input: "a/b", expected: "a//b"},
		{name: "all specials", input: ",;/", expected: "/,/;//"},
		{name: "double escape then separator", input: "a//,b", expected: "a/////,b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Escape([]byte(tt.input), defaultSeps)
			assert.Equal(t, tt.expected, string(got))
			assert.GreaterOrEqual(t, len(got), len(tt.input))
		})
	}
}

func TestWriter_ConcreteScenario(t *testing.T) {
	data := encodeFrame(t, 1, func(w *Writer) error {
		require.NoError(t, w.WriteInt16(123))
		require.NoError(t, w.WriteString("a,b"))
		return w.WriteInt32(-7)
	})
	assert.Equal(t, "1,123,a/,b,-7;", string(data))

	r := decodeFrame(t, data)
	assert.Equal(t, CommandID(1), r.ID())

	i16, err := r.ReadInt16()
	require.NoError(t, err)
	assert.Equal(t, int16(123), i16)

	s, err := r.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "a,b", s)

	i32, err := r.ReadInt32()
	require.NoError(t, err)
	assert.Equal(t, int32(-7), i32)

	assert.False(t, r.Remaining())
}

func TestWriter_Encodings(t *testing.T) {
	tests := []struct {
		name     string
		build    func(w *Writer) error
		expected string
	}{
		{name: "no fields", build: nil, expected: "5;"},
		{name: "int8", build: func(w *Writer) error { return w.WriteInt8(-128) }, expected: "5,-128;"},
		{name: "uint8", build: func(w *Writer) error { return w.WriteUint8(255) }, expected: "5,255;"},
		{name: "int16", build: func(w *Writer) error { return w.WriteInt16(math.MinInt16) }, expected: "5,-32768;"},
		{name: "int32", build: func(w *Writer) error { return w.WriteInt32(math.MaxInt32) }, expected: "5,2147483647;"},
		{name: "bool true", build: func(w *Writer) error { return w.WriteBool(true) }, expected: "5,1;"},
		{name: "bool false", build: func(w *Writer) error { return w.WriteBool(false) }, expected: "5,0;"},
		{name: "char", build: func(w *Writer) error { return w.WriteChar('A') }, expected: "5,A;"},
		{name: "char newline", build: func(w *Writer) error { return w.WriteChar(10) }, expected: "5,\n;"},
		{name: "char separator", build: func(w *Writer) error { return w.WriteChar(';') }, expected: "5,/;;"},
		{name: "float32", build: func(w *Writer) error { return w.WriteFloat32(1.23456) }, expected: "5,1.23456;"},
		{name: "float64", build: func(w *Writer) error { return w.WriteFloat64(0.1) }, expected: "5,0.1;"},
		{name: "float64 negative", build: func(w *Writer) error { return w.WriteFloat64(-2.5) }, expected: "5,-2.5;"},
		{name: "string", build: func(w *Writer) error { return w.WriteString("this is a test string") }, expected: "5,this is a test string;"},
		{name: "empty string", build: func(w *Writer) error { return w.WriteString("") }, expected: "5,;"},
		{name: "bytes", build: func(w *Writer) error { return w.WriteBytes([]byte{0x00, ',', 0xff}) }, expected: "5,\x00/,\xff;"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(encodeFrame(t, 5, tt.build)))
		})
	}
}

func TestWriter_CustomSeparators(t *testing.T) {
	seps := Separators{Field: ' ', Command: '\n', Escape: '\\'}
	var buf bytes.Buffer
	err := Send(&buf, seps, 3, func(w *Writer) error {
		return w.WriteString("a b\\c")
	})
	require.NoError(t, err)
	assert.Equal(t, "3 a\\ b\\\\c\n", buf.String())
}

func TestWriter_StateErrors(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, defaultSeps, 2)
	require.NoError(t, err)
	require.NoError(t, w.WriteInt16(1))
	require.NoError(t, w.Close())

	err = w.WriteInt16(2)
	var stateErr *ProtocolStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, "WriteInt16", stateErr.Op)
	assert.True(t, ShouldResync(err))

	require.ErrorAs(t, w.Close(), &stateErr)
	assert.Equal(t, "2,1;", buf.String(), "nothing written after the terminator")
}

// failingWriter fails every write after the first n.
type failingWriter struct {
	n   int
	buf bytes.Buffer
}

var errWriteFailed = errors.New("write failed")

func (f *failingWriter) Write(p []byte) (int, error) {
	if f.n == 0 {
		return 0, errWriteFailed
	}
	f.n--
	return f.buf.Write(p)
}

func TestWriter_TransportErrorIsSticky(t *testing.T) {
	fw := &failingWriter{n: 1}
	w, err := NewWriter(fw, defaultSeps, 4)
	require.NoError(t, err)

	require.ErrorIs(t, w.WriteInt16(1), errWriteFailed)
	require.ErrorIs(t, w.WriteString("x"), errWriteFailed)
	require.ErrorIs(t, w.Close(), errWriteFailed)
	assert.Equal(t, "4", fw.buf.String())

	_, err = NewWriter(&failingWriter{}, defaultSeps, 4)
	require.ErrorIs(t, err, errWriteFailed)
}

func TestNewWriter_NegativeID(t *testing.T) {
	var buf bytes.Buffer

	_, err := NewWriter(&buf, defaultSeps, -1)
	var idErr *InvalidCommandIDError
	require.ErrorAs(t, err, &idErr)
	assert.Equal(t, CommandID(-1), idErr.ID)
	assert.False(t, ShouldResync(err))

	err = Send(&buf, defaultSeps, -3, nil)
	require.ErrorAs(t, err, &idErr)
	assert.Empty(t, buf.String(), "nothing reaches the stream")

	_, err = NewReader([]byte("-3"), defaultSeps)
	var framingErr *FramingError
	assert.ErrorAs(t, err, &framingErr)
}

func TestSend_AbortLeavesFrameUnterminated(t *testing.T) {
	errBuild := errors.New("bad argument")
	var buf bytes.Buffer

	err := Send(&buf, defaultSeps, 7, func(w *Writer) error {
		require.NoError(t, w.WriteInt16(1))
		return errBuild
	})

	var aborted *AbortedFrameError
	require.ErrorAs(t, err, &aborted)
	assert.Equal(t, CommandID(7), aborted.ID)
	assert.ErrorIs(t, err, errBuild)
	assert.True(t, ShouldResync(err))
	assert.Equal(t, "7,1", buf.String())
}

func TestShouldResync(t *testing.T) {
	assert.False(t, ShouldResync(nil))
	assert.False(t, ShouldResync(&FramingError{Message: "x"}))
	assert.True(t, ShouldResync(&ProtocolStateError{Op: "Close", State: "finished"}))
	assert.True(t, ShouldResync(errors.New("unknown")))
}

func TestRoundTrip(t *testing.T) {
	specials := string([]byte{defaultSeps.Field, defaultSeps.Command, defaultSeps.Escape})

	int8s := []int8{0, 1, -1, math.MinInt8, math.MaxInt8, ',', ';', '/'}
	uint8s := []uint8{0, 1, 44, 59, 47, 255}
	int16s := []int16{0, 1, -1, math.MinInt16, math.MaxInt16, ',', ';', '/'}
	int32s := []int32{0, -7, math.MinInt32, math.MaxInt32}
	float32s := []float32{0, 1.23456, -0.5, math.MaxFloat32, math.SmallestNonzeroFloat32}
	float64s := []float64{0, 0.1, -1e-300, math.MaxFloat64, math.Inf(1), math.Inf(-1)}
	chars := []byte{'a', 0, 10, ',', ';', '/', 0xff}
	strs := []string{"", "plain", "a,b", "x;y", "p/q", specials, "a//,b", "end/", "//;", "héllo, wörld"}
	blobs := [][]byte{{}, {0x00}, {0x2c, 0x3b, 0x2f}, {0x2f, 0x2f, 0x3b}, bytes.Repeat([]byte{0xab, ','}, 64)}

	data := encodeFrame(t, 42, func(w *Writer) error {
		for _, v := range int8s {
			require.NoError(t, w.WriteInt8(v))
		}
		for _, v := range uint8s {
			require.NoError(t, w.WriteUint8(v))
		}
		for _, v := range int16s {
			require.NoError(t, w.WriteInt16(v))
		}
		for _, v := range int32s {
			require.NoError(t, w.WriteInt32(v))
		}
		require.NoError(t, w.WriteBool(true))
		require.NoError(t, w.WriteBool(false))
		for _, v := range float32s {
			require.NoError(t, w.WriteFloat32(v))
		}
		for _, v := range float64s {
			require.NoError(t, w.WriteFloat64(v))
		}
		for _, v := range chars {
			require.NoError(t, w.WriteChar(v))
		}
		for _, v := range strs {
			require.NoError(t, w.WriteString(v))
		}
		for _, v := range blobs {
			require.NoError(t, w.WriteBytes(v))
		}
		return nil
	})

	r := decodeFrame(t, data)
	require.Equal(t, CommandID(42), r.ID())

	for _, want := range int8s {
		got, err := r.ReadInt8()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	for _, want := range uint8s {
		got, err := r.ReadUint8()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	for _, want := range int16s {
		got, err := r.ReadInt16()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	for _, want := range int32s {
		got, err := r.ReadInt32()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	b, err := r.ReadBool()
	require.NoError(t, err)
	assert.True(t, b)
	b, err = r.ReadBool()
	require.NoError(t, err)
	assert.False(t, b)
	for _, want := range float32s {
		got, err := r.ReadFloat32()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	for _, want := range float64s {
		got, err := r.ReadFloat64()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	for _, want := range chars {
		got, err := r.ReadChar()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	for _, want := range strs {
		got, err := r.ReadString()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	for _, want := range blobs {
		got, err := r.ReadBytes()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	assert.False(t, r.Remaining())
	_, err = r.ReadInt16()
	assert.ErrorIs(t, err, ErrNoMoreFields)
}

func TestRoundTrip_NaN(t *testing.T) {
	data := encodeFrame(t, 1, func(w *Writer) error { return w.WriteFloat64(math.NaN()) })
	assert.Equal(t, "1,NaN;", string(data))

	got, err := decodeFrame(t, data).ReadFloat64()
	require.NoError(t, err)
	assert.True(t, math.IsNaN(got))
}

func TestRoundTrip_MixedFieldOrder(t *testing.T) {
	data := encodeFrame(t, 1, func(w *Writer) error {
		require.NoError(t, w.WriteInt16(123))
		require.NoError(t, w.WriteString("string,"))
		require.NoError(t, w.WriteInt32(321))
		require.NoError(t, w.WriteBytes([]byte("a;b")))
		return w.WriteBool(true)
	})

	r := decodeFrame(t, data)
	i16, _ := r.ReadInt16()
	s, _ := r.ReadString()
	i32, _ := r.ReadInt32()
	p, _ := r.ReadBytes()
	b, err := r.ReadBool()
	require.NoError(t, err)

	assert.Equal(t, int16(123), i16)
	assert.Equal(t, "string,", s)
	assert.Equal(t, int32(321), i32)
	assert.Equal(t, []byte("a;b"), p)
	assert.True(t, b)
}
