package lighthub

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/xxh3"

	cmdmessenger "github.com/pior/cmdmessenger"
	"github.com/pior/cmdmessenger/wire"
)

// DebugMessage is a line of text logged by the hub firmware.
type DebugMessage struct {
	Text string
}

// TouchEvent is a gesture reported by a switch.
type TouchEvent struct {
	Node      uint8
	Gesture   Gesture
	Electrode Electrode
	Repeat    uint8
}

// StatusEvent is the status report of a switch. Count is zero when the
// firmware omits it.
type StatusEvent struct {
	Node  uint8
	Vcc   int32
	Count int16
}

// SettingsDump is the raw settings block of a switch.
type SettingsDump struct {
	Node     uint8
	Settings []byte
}

// Hex formats the settings as rows of eight hex bytes prefixed by their
// offset: "0x08: 01 02 03 ...".
func (d SettingsDump) Hex() []string {
	rows := make([]string, 0, (len(d.Settings)+7)/8)
	for off := 0; off < len(d.Settings); off += 8 {
		end := min(off+8, len(d.Settings))

		var sb strings.Builder
		fmt.Fprintf(&sb, "0x%02x:", off)
		for _, b := range d.Settings[off:end] {
			sb.WriteByte(' ')
			sb.WriteString(hex.EncodeToString([]byte{b}))
		}
		rows = append(rows, sb.String())
	}
	return rows
}

// Fingerprint returns the XXH3 hash of the settings, handy to tell whether
// two dumps differ.
func (d SettingsDump) Fingerprint() uint64 {
	return xxh3.Hash(d.Settings)
}

// I2CRegister is the value of a register read on a switch's I2C bus.
type I2CRegister struct {
	Node     uint8
	Address  uint8
	Register uint8
	Value    uint8
}

// EventHandler receives the asynchronous frames sent by the hub.
type EventHandler interface {
	HandleDebug(DebugMessage)
	HandleTouch(TouchEvent)
	HandleStatus(StatusEvent)
	HandleSettingsDump(SettingsDump)
	HandleI2CRegister(I2CRegister)
}

// Routes returns the dispatch table decoding hub events into h.
func Routes(h EventHandler) cmdmessenger.Routes {
	return cmdmessenger.Routes{
		CmdMsg: func(r *wire.Reader) error {
			ev, err := DecodeDebugMessage(r)
			if err != nil {
				return err
			}
			h.HandleDebug(ev)
			return nil
		},
		CmdTouchEvent: func(r *wire.Reader) error {
			ev, err := DecodeTouchEvent(r)
			if err != nil {
				return err
			}
			h.HandleTouch(ev)
			return nil
		},
		CmdStatusEvent: func(r *wire.Reader) error {
			ev, err := DecodeStatusEvent(r)
			if err != nil {
				return err
			}
			h.HandleStatus(ev)
			return nil
		},
		CmdDumpSettings: func(r *wire.Reader) error {
			ev, err := DecodeSettingsDump(r)
			if err != nil {
				return err
			}
			h.HandleSettingsDump(ev)
			return nil
		},
		CmdGetI2C: func(r *wire.Reader) error {
			ev, err := DecodeI2CRegister(r)
			if err != nil {
				return err
			}
			h.HandleI2CRegister(ev)
			return nil
		},
	}
}

func DecodeDebugMessage(r *wire.Reader) (DebugMessage, error) {
	text, err := r.ReadString()
	if err != nil {
		return DebugMessage{}, fmt.Errorf("lighthub: debug message: %w", err)
	}
	return DebugMessage{Text: text}, nil
}

func DecodeTouchEvent(r *wire.Reader) (TouchEvent, error) {
	var ev TouchEvent
	var gesture, electrode uint8
	for _, dst := range []*uint8{&ev.Node, &gesture, &electrode, &ev.Repeat} {
		v, err := r.ReadUint8()
		if err != nil {
			return TouchEvent{}, fmt.Errorf("lighthub: touch event: %w", err)
		}
		*dst = v
	}
	ev.Gesture = Gesture(gesture)
	ev.Electrode = Electrode(electrode)
	return ev, nil
}

// DecodeStatusEvent reads node, supply voltage and the optional event count.
func DecodeStatusEvent(r *wire.Reader) (StatusEvent, error) {
	var ev StatusEvent
	var err error
	if ev.Node, err = r.ReadUint8(); err != nil {
		return StatusEvent{}, fmt.Errorf("lighthub: status event: %w", err)
	}
	if ev.Vcc, err = r.ReadInt32(); err != nil {
		return StatusEvent{}, fmt.Errorf("lighthub: status event: %w", err)
	}
	if r.Remaining() {
		if ev.Count, err = r.ReadInt16(); err != nil {
			return StatusEvent{}, fmt.Errorf("lighthub: status event: %w", err)
		}
	}
	return ev, nil
}

func DecodeSettingsDump(r *wire.Reader) (SettingsDump, error) {
	node, err := r.ReadUint8()
	if err != nil {
		return SettingsDump{}, fmt.Errorf("lighthub: settings dump: %w", err)
	}
	settings, err := r.ReadBytes()
	if err != nil {
		return SettingsDump{}, fmt.Errorf("lighthub: settings dump: %w", err)
	}
	return SettingsDump{Node: node, Settings: settings}, nil
}

func DecodeI2CRegister(r *wire.Reader) (I2CRegister, error) {
	var ev I2CRegister
	for _, dst := range []*uint8{&ev.Node, &ev.Address, &ev.Register, &ev.Value} {
		v, err := r.ReadUint8()
		if err != nil {
			return I2CRegister{}, fmt.Errorf("lighthub: i2c register: %w", err)
		}
		*dst = v
	}
	return ev, nil
}
