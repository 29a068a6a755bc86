// Package wire implements the CmdMessenger text framing used by embedded
// devices on serial links.
//
// A frame is a decimal command id followed by zero or more fields and a
// terminator:
//
//	<id>(<field-sep><field>)*<command-sep>
//
// With the default separators, command 1 carrying int16(123), the string
// "a,b" and int32(-7) is written as:
//
//	1,123,a/,b,-7;
//
// # Field encodings
//
//   - int8, uint8, int16, int32: decimal text
//   - bool: int16 0 or 1
//   - float32, float64: shortest round-trip decimal text
//   - char: one raw byte, escaped when it collides with a separator
//   - string: UTF-8 bytes, escaped
//   - bytes: raw bytes, escaped
//
// Numeric fields can never contain a separator, so they are not escaped.
// In escaped fields every field separator, command separator and escape
// byte is preceded by one escape byte.
//
// # Types
//
//   - Writer: builds one outbound frame directly on an io.Writer
//   - Reader: decodes the fields of one inbound frame in order
//   - Splitter: reassembles frames from arbitrary stream chunks
//   - Tokenizer: low-level field walker used by Reader
//
// Writing:
//
//	err := wire.Send(port, wire.DefaultSeparators(), 1, func(w *wire.Writer) error {
//	    if err := w.WriteInt16(123); err != nil {
//	        return err
//	    }
//	    return w.WriteString("a,b")
//	})
//
// Reading:
//
//	s := wire.NewSplitter(seps)
//	s.Write(chunk)
//	for {
//	    frame, ok := s.Next()
//	    if !ok {
//	        break
//	    }
//	    r, err := wire.NewReader(frame, seps)
//	    ...
//	}
//
// # Error Handling
//
//   - FramingError: inbound frame cannot be decoded, drop it and continue
//   - ProtocolStateError: Writer misuse, abandon the frame
//   - AbortedFrameError: frame build failed mid-way, terminator not written
//   - ErrNoMoreFields: Reader read past the last field
//
// ShouldResync tells whether the outbound stream is left in an unknown
// state and needs resynchronizing before the next frame.
package wire
