// Package ash implements the Asynchronous Serial Host framing layer used to
// carry EZSP traffic over a UART to a Zigbee network co-processor.
package ash

import "errors"

// Reserved bytes. Each of them is escaped inside a frame body.
const (
	Flag       byte = 0x7E // frame terminator
	Escape     byte = 0x7D
	XON        byte = 0x11
	XOFF       byte = 0x13
	Substitute byte = 0x18
	Cancel     byte = 0x1A // aborts the frame in progress

	escapeXOR byte = 0x20
)

// Control bytes.
const (
	ctrlReset    byte = 0xC0
	ctrlResetAck byte = 0xC1
	ctrlError    byte = 0xC2
	// Some firmware documents the error frame under 0xE0. Decode accepts both.
	ctrlErrorAlt byte = 0xE0

	ctrlAck byte = 0x80
	ctrlNak byte = 0xA0

	ctrlDataMask byte = 0x80
	ctrlAckMask  byte = 0xE0
	numberMask   byte = 0x07
	retxBit      byte = 0x08
)

const (
	// maxWindow is the largest number of unacknowledged DATA frames a 3-bit
	// frame counter can tell apart.
	maxWindow = 7

	// maxFrameSize bounds a stuffed frame: control + 128 byte payload + CRC,
	// all escaped, plus the flag.
	maxFrameSize = 2*(1+128+2) + 1

	// maxBufferedBytes bounds the receive buffer while no terminator arrives.
	maxBufferedBytes = 4 * maxFrameSize
)

var (
	ErrNotReady            = errors.New("ash: link not ready")
	ErrWindowFull          = errors.New("ash: send window full")
	ErrChecksumMismatch    = errors.New("ash: checksum mismatch")
	ErrIncompleteFrame     = errors.New("ash: incomplete frame")
	ErrUnknownControl      = errors.New("ash: unknown control byte")
	ErrUnknownErrorCode    = errors.New("ash: unknown error code")
	ErrRetransmitExhausted = errors.New("ash: retransmit limit reached")
)
