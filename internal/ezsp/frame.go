package ezsp

import (
	"fmt"
)

// SleepMode is carried by commands in the low control byte.
type SleepMode uint8

const (
	SleepIdle      SleepMode = 0
	SleepDeep      SleepMode = 1
	SleepPowerDown SleepMode = 2
)

// CallbackType classifies a response.
type CallbackType uint8

const (
	CallbackNone  CallbackType = 0
	CallbackSync  CallbackType = 1
	CallbackAsync CallbackType = 2
)

func (c CallbackType) String() string {
	switch c {
	case CallbackNone:
		return "none"
	case CallbackSync:
		return "sync"
	case CallbackAsync:
		return "async"
	}
	return fmt.Sprintf("CallbackType(%d)", uint8(c))
}

// Low frame control byte.
const (
	fcResponse       = 0x80
	fcNetworkShift   = 5
	fcNetworkMask    = 0x03
	fcCallbackShift  = 3
	fcCallbackMask   = 0x03
	fcPending        = 0x04
	fcTruncated      = 0x02
	fcOverflow       = 0x01
	fcSleepMask      = 0x03
	fcHighSecurity   = 0x80
	fcHighPadding    = 0x40
	fcHighFormatMask = 0x01
)

// Frame is an EZSP frame independent of header layout. Command-only fields
// (SleepMode) and response-only fields (CallbackType, Pending, Truncated,
// Overflow) are ignored for the other direction.
type Frame struct {
	Sequence     uint8
	NetworkIndex uint8
	Response     bool

	SleepMode SleepMode

	CallbackType CallbackType
	Pending      bool
	Truncated    bool
	Overflow     bool

	// Extended header only.
	SecurityEnabled bool
	PaddingEnabled  bool

	FrameID FrameID
	Params  []byte
}

func (f *Frame) controlLow() byte {
	fc := (f.NetworkIndex & fcNetworkMask) << fcNetworkShift
	if !f.Response {
		return fc | byte(f.SleepMode)&fcSleepMask
	}
	fc |= fcResponse
	fc |= (byte(f.CallbackType) & fcCallbackMask) << fcCallbackShift
	if f.Pending {
		fc |= fcPending
	}
	if f.Truncated {
		fc |= fcTruncated
	}
	if f.Overflow {
		fc |= fcOverflow
	}
	return fc
}

func (f *Frame) controlHigh() byte {
	fc := byte(fcHighFormatMask)
	if f.SecurityEnabled {
		fc |= fcHighSecurity
	}
	if f.PaddingEnabled {
		fc |= fcHighPadding
	}
	return fc
}

// EncodeFrame serializes f using the header layout of version v.
func EncodeFrame(v ProtocolVersion, f *Frame) ([]byte, error) {
	if f.SleepMode > SleepPowerDown || f.CallbackType > CallbackAsync {
		return nil, fmt.Errorf("%w: header discriminant", ErrInvalid)
	}
	switch v {
	case Version0:
		if f.FrameID > 0xFF {
			return nil, fmt.Errorf("%w: frame id 0x%04X needs the extended header", ErrInvalid, uint16(f.FrameID))
		}
		out := make([]byte, 0, 3+len(f.Params))
		out = append(out, f.Sequence, f.controlLow(), byte(f.FrameID))
		return append(out, f.Params...), nil
	case Version1:
		out := make([]byte, 0, 5+len(f.Params))
		out = append(out, f.Sequence, f.controlLow(), f.controlHigh(), byte(f.FrameID), byte(f.FrameID>>8))
		return append(out, f.Params...), nil
	}
	return nil, fmt.Errorf("%w: protocol version %d", ErrInvalid, uint8(v))
}

// DecodeFrame parses a frame laid out for version v. Params aliases data.
func DecodeFrame(v ProtocolVersion, data []byte) (*Frame, error) {
	hdr := 3
	if v == Version1 {
		hdr = 5
	} else if v != Version0 {
		return nil, fmt.Errorf("%w: protocol version %d", ErrInvalid, uint8(v))
	}
	if len(data) < hdr {
		return nil, fmt.Errorf("%w: header needs %d bytes, have %d", ErrInsufficientData, hdr, len(data))
	}

	f := &Frame{Sequence: data[0]}
	fc := data[1]
	f.NetworkIndex = (fc >> fcNetworkShift) & fcNetworkMask
	f.Response = fc&fcResponse != 0
	if f.Response {
		f.CallbackType = CallbackType((fc >> fcCallbackShift) & fcCallbackMask)
		if f.CallbackType > CallbackAsync {
			return nil, fmt.Errorf("%w: callback type %d", ErrInvalid, uint8(f.CallbackType))
		}
		f.Pending = fc&fcPending != 0
		f.Truncated = fc&fcTruncated != 0
		f.Overflow = fc&fcOverflow != 0
	} else {
		f.SleepMode = SleepMode(fc & fcSleepMask)
		if f.SleepMode > SleepPowerDown {
			return nil, fmt.Errorf("%w: sleep mode %d", ErrInvalid, uint8(f.SleepMode))
		}
	}

	if v == Version0 {
		f.FrameID = FrameID(data[2])
	} else {
		fch := data[2]
		if fch&fcHighFormatMask == 0 {
			return nil, fmt.Errorf("%w: frame control high 0x%02X lacks format bit", ErrInvalid, fch)
		}
		f.SecurityEnabled = fch&fcHighSecurity != 0
		f.PaddingEnabled = fch&fcHighPadding != 0
		f.FrameID = FrameID(uint16(data[3]) | uint16(data[4])<<8)
	}
	f.Params = data[hdr:]
	return f, nil
}
