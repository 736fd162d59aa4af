package ash

import (
	"encoding/binary"
	"fmt"
)

// Frame is one decoded ASH frame: Reset, ResetAck, Error, Data, Ack or Nak.
type Frame interface {
	control() byte
	body() []byte
}

// Reset asks the NCP to reset its ASH state.
type Reset struct{}

// ResetAck is sent by the NCP once it has reset. Version and Code are the
// optional protocol version and reset reason bytes.
type ResetAck struct {
	Version uint8
	Code    ResetCode
}

// Error reports a fatal NCP-side condition. The link must be reset.
type Error struct {
	Version uint8
	Code    ResetCode
}

// Data carries one EZSP frame. Payload is held unmasked.
type Data struct {
	FrameNumber uint8
	AckNumber   uint8
	Retransmit  bool
	Payload     []byte
}

// Ack acknowledges every DATA frame up to, not including, AckNumber.
type Ack struct {
	AckNumber uint8
}

// Nak asks the peer to retransmit starting at AckNumber.
type Nak struct {
	AckNumber uint8
}

func (Reset) control() byte { return ctrlReset }
func (Reset) body() []byte  { return nil }

func (f ResetAck) control() byte { return ctrlResetAck }
func (f ResetAck) body() []byte {
	if f.Version == 0 && f.Code == 0 {
		return nil
	}
	return []byte{f.Version, byte(f.Code)}
}

func (f Error) control() byte { return ctrlError }
func (f Error) body() []byte  { return []byte{f.Version, byte(f.Code)} }

func (f Data) control() byte {
	c := (f.FrameNumber&numberMask)<<4 | f.AckNumber&numberMask
	if f.Retransmit {
		c |= retxBit
	}
	return c
}
func (f Data) body() []byte { return Mask(f.Payload) }

func (f Ack) control() byte { return ctrlAck | f.AckNumber&numberMask }
func (f Ack) body() []byte  { return nil }

func (f Nak) control() byte { return ctrlNak | f.AckNumber&numberMask }
func (f Nak) body() []byte  { return nil }

func (Reset) String() string      { return "RST" }
func (f ResetAck) String() string { return fmt.Sprintf("RSTACK(v%d, %s)", f.Version, f.Code) }
func (f Error) String() string    { return fmt.Sprintf("ERROR(v%d, %s)", f.Version, f.Code) }
func (f Ack) String() string      { return fmt.Sprintf("ACK(%d)", f.AckNumber) }
func (f Nak) String() string      { return fmt.Sprintf("NAK(%d)", f.AckNumber) }
func (f Data) String() string {
	r := ""
	if f.Retransmit {
		r = ",retx"
	}
	return fmt.Sprintf("DATA(%d,%d%s) %X", f.FrameNumber, f.AckNumber, r, f.Payload)
}

// ResetCode is the reason byte carried by ResetAck and Error frames.
type ResetCode uint8

const (
	ResetUnknown      ResetCode = 0x00
	ResetExternal     ResetCode = 0x01
	ResetPowerOn      ResetCode = 0x02
	ResetWatchdog     ResetCode = 0x03
	ResetAssert       ResetCode = 0x06
	ResetBootloader   ResetCode = 0x09
	ResetSoftware     ResetCode = 0x0B
	ErrorAckTimeout   ResetCode = 0x51
	ErrorChipSpecific ResetCode = 0x80
)

var resetCodeNames = map[ResetCode]string{
	ResetUnknown:      "unknown_reason",
	ResetExternal:     "external",
	ResetPowerOn:      "power_on",
	ResetWatchdog:     "watchdog",
	ResetAssert:       "assert",
	ResetBootloader:   "bootloader",
	ResetSoftware:     "software",
	ErrorAckTimeout:   "exceeded_max_ack_timeouts",
	ErrorChipSpecific: "chip_specific",
}

// Known reports whether c is one of the documented reset/error codes.
func (c ResetCode) Known() bool {
	_, ok := resetCodeNames[c]
	return ok
}

func (c ResetCode) String() string {
	if name, ok := resetCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("unknown(0x%02X)", uint8(c))
}

// Encode returns the wire form of f: control byte and body, CRC16
// big-endian, all stuffed, then a Flag. A ResetAck without version and
// code is written in its short literal form C1 38 BC.
func Encode(f Frame) []byte {
	if ra, ok := f.(ResetAck); ok && ra == (ResetAck{}) {
		return []byte{ctrlResetAck, 0x38, 0xBC, Flag}
	}
	raw := make([]byte, 0, 3+len(f.body()))
	raw = append(raw, f.control())
	raw = append(raw, f.body()...)
	raw = binary.BigEndian.AppendUint16(raw, Checksum(raw))
	out := Stuff(raw)
	return append(out, Flag)
}

// Decode parses one candidate frame as it appeared on the wire. A trailing
// Flag is optional. The checksum is verified before anything else.
func Decode(wire []byte) (Frame, error) {
	if n := len(wire); n > 0 && wire[n-1] == Flag {
		wire = wire[:n-1]
	}
	raw := Unstuff(wire)
	if len(raw) < 3 {
		return nil, fmt.Errorf("%w: %d bytes", ErrIncompleteFrame, len(raw))
	}
	n := len(raw)
	got := binary.BigEndian.Uint16(raw[n-2:])
	if want := Checksum(raw[:n-2]); got != want {
		if isResetAckLiteral(raw) {
			return ResetAck{}, nil
		}
		return nil, fmt.Errorf("%w: got 0x%04X, want 0x%04X", ErrChecksumMismatch, got, want)
	}
	ctrl, body := raw[0], raw[1:n-2]

	switch {
	case ctrl&ctrlDataMask == 0:
		return Data{
			FrameNumber: (ctrl >> 4) & numberMask,
			AckNumber:   ctrl & numberMask,
			Retransmit:  ctrl&retxBit != 0,
			Payload:     Mask(body),
		}, nil
	case ctrl&ctrlAckMask == ctrlAck:
		return Ack{AckNumber: ctrl & numberMask}, nil
	case ctrl&ctrlAckMask == ctrlNak:
		return Nak{AckNumber: ctrl & numberMask}, nil
	}

	switch ctrl {
	case ctrlReset:
		return Reset{}, nil
	case ctrlResetAck:
		f := ResetAck{}
		if len(body) >= 2 {
			f.Version, f.Code = body[0], ResetCode(body[1])
		}
		return f, nil
	case ctrlError, ctrlErrorAlt:
		if len(body) < 2 {
			return nil, fmt.Errorf("%w: error frame body %X", ErrIncompleteFrame, body)
		}
		f := Error{Version: body[0], Code: ResetCode(body[1])}
		if !f.Code.Known() {
			return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownErrorCode, body[1])
		}
		return f, nil
	}
	return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownControl, ctrl)
}

// isResetAckLiteral matches the short "C1 38 BC" form some documentation
// gives for RSTACK, which reuses the RST checksum.
func isResetAckLiteral(raw []byte) bool {
	return len(raw) == 3 && raw[0] == ctrlResetAck && raw[1] == 0x38 && raw[2] == 0xBC
}
