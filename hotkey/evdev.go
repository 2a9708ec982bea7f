package hotkey

import "encoding/binary"

// Linux input_event on 64-bit: 16 bytes of timeval, then type, code, value.
const inputEventSize = 24

const (
	evKey      = 1
	keyPress   = 1
	keyRelease = 0
	keyLCtrl   = 29
	keyRCtrl   = 97
	keyLShift  = 42
	keyRShift  = 54
	keySpace   = 57
)

type inputEvent struct {
	Type  uint16
	Code  uint16
	Value int32
}

func decodeEvents(buf []byte) []inputEvent {
	events := make([]inputEvent, 0, len(buf)/inputEventSize)
	for i := 0; i+inputEventSize <= len(buf); i += inputEventSize {
		events = append(events, inputEvent{
			Type:  binary.LittleEndian.Uint16(buf[i+16:]),
			Code:  binary.LittleEndian.Uint16(buf[i+18:]),
			Value: int32(binary.LittleEndian.Uint32(buf[i+20:])),
		})
	}
	return events
}

type chordEdge int

const (
	chordNone chordEdge = iota
	chordDown
	chordUp
)

// chord tracks modifier state for Ctrl+Shift+Space. Auto-repeat events
// (value 2) keep the held state unchanged.
type chord struct {
	ctrl, shift, space bool
}

func (c *chord) feed(ev inputEvent) chordEdge {
	if ev.Type != evKey {
		return chordNone
	}
	pressed := ev.Value == keyPress
	released := ev.Value == keyRelease

	switch ev.Code {
	case keyLCtrl, keyRCtrl:
		c.ctrl = pressed || (!released && c.ctrl)
	case keyLShift, keyRShift:
		c.shift = pressed || (!released && c.shift)
	case keySpace:
		if pressed && !c.space && c.ctrl && c.shift {
			c.space = true
			return chordDown
		}
		if released && c.space {
			c.space = false
			return chordUp
		}
	}
	return chordNone
}
