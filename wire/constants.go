package wire

import "fmt"

// CommandID identifies a frame's semantic type. It is always the first
// field of a frame and is encoded with the int16 encoding.
type CommandID int16

// Default separator bytes, matching the CmdMessenger firmware library.
const (
	DefaultFieldSeparator   byte = ','
	DefaultCommandSeparator byte = ';'
	DefaultEscapeByte       byte = '/'
)

// Separators is the separator set shared by every Writer, Reader and
// Splitter on one stream.
//
// The three bytes must be pairwise distinct. The wire protocol never checks
// this; a misconfigured set silently corrupts framing. Use Validate when the
// set comes from user input.
type Separators struct {
	Field   byte
	Command byte
	Escape  byte
}

// DefaultSeparators returns the standard `,` `;` `/` separator set.
func DefaultSeparators() Separators {
	return Separators{
		Field:   DefaultFieldSeparator,
		Command: DefaultCommandSeparator,
		Escape:  DefaultEscapeByte,
	}
}

// Validate reports an error if any two separator bytes are equal.
func (s Separators) Validate() error {
	if s.Field == s.Command || s.Field == s.Escape || s.Command == s.Escape {
		return fmt.Errorf("wire: separators must be distinct (field=%q command=%q escape=%q)",
			s.Field, s.Command, s.Escape)
	}
	return nil
}

// IsSpecial reports whether b must be escaped inside an escaped field.
func (s Separators) IsSpecial(b byte) bool {
	return b == s.Field || b == s.Command || b == s.Escape
}

// isDelimiter reports whether b ends a field.
func (s Separators) isDelimiter(b byte) bool {
	return b == s.Field || b == s.Command
}
