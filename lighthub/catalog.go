package lighthub

import (
	"fmt"

	"github.com/pior/cmdmessenger/wire"
)

// Command ids shared by the hub firmware and the host.
const (
	CmdMsg           wire.CommandID = 0
	CmdAck           wire.CommandID = 1
	CmdTouchEvent    wire.CommandID = 2
	CmdStatusEvent   wire.CommandID = 3
	CmdDumpSettings  wire.CommandID = 4
	CmdReset         wire.CommandID = 5
	CmdSetByte       wire.CommandID = 6
	CmdGetI2C        wire.CommandID = 7
	CmdSetI2C        wire.CommandID = 8
	CmdStatusRequest wire.CommandID = 9
)

// Gesture is the touch gesture recognized by a switch.
type Gesture uint8

const (
	GestureUnknown Gesture = iota
	GestureTap
	GestureDoubleTap
	GestureSwipeUp
	GestureSwipeDown
	GestureSwipeLeft
	GestureSwipeRight
	GestureProximity
)

var gestureNames = [...]string{
	GestureUnknown:    "unknown",
	GestureTap:        "tap",
	GestureDoubleTap:  "double_tap",
	GestureSwipeUp:    "swipe_up",
	GestureSwipeDown:  "swipe_down",
	GestureSwipeLeft:  "swipe_left",
	GestureSwipeRight: "swipe_right",
	GestureProximity:  "proximity",
}

func (g Gesture) String() string {
	if int(g) < len(gestureNames) {
		return gestureNames[g]
	}
	return fmt.Sprintf("gesture(%d)", uint8(g))
}

// Electrode is the pad of a switch that produced a touch.
type Electrode uint8

const (
	ElectrodeTop Electrode = iota
	ElectrodeLeft
	ElectrodeBottom
	ElectrodeRight
	ElectrodeCenter

	ElectrodeProximity Electrode = 12
)

func (e Electrode) String() string {
	switch e {
	case ElectrodeTop:
		return "top"
	case ElectrodeLeft:
		return "left"
	case ElectrodeBottom:
		return "bottom"
	case ElectrodeRight:
		return "right"
	case ElectrodeCenter:
		return "center"
	case ElectrodeProximity:
		return "proximity"
	default:
		return fmt.Sprintf("electrode(%d)", uint8(e))
	}
}
