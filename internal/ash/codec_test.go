package ash

import (
	"bytes"
	"testing"
)

func TestChecksumKnownValues(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint16
	}{
		{"data frame body", []byte{0x53, 0x42, 0xA1, 0xA8, 0x56, 0x28, 0x04, 0x82}, 0x032A},
		{"masked version frame", []byte{0x25, 0x42, 0x21, 0xA8, 0x56}, 0xA609},
		{"reset", []byte{0xC0}, 0x38BC},
		{"reset ack", []byte{0xC1, 0x02, 0x02}, 0x9B7B},
		{"empty", nil, 0xFFFF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Checksum(tt.data); got != tt.want {
				t.Errorf("Checksum(%X) = 0x%04X, want 0x%04X", tt.data, got, tt.want)
			}
		})
	}
}

func TestStuffEscapesReservedBytes(t *testing.T) {
	in := []byte{0x01, 0x7E, 0x7D, 0x11, 0x13, 0x18, 0x1A, 0xFF}
	want := []byte{0x01, 0x7D, 0x5E, 0x7D, 0x5D, 0x7D, 0x31, 0x7D, 0x33, 0x7D, 0x38, 0x7D, 0x3A, 0xFF}
	got := Stuff(in)
	if !bytes.Equal(got, want) {
		t.Errorf("Stuff: got %X, want %X", got, want)
	}
	for _, b := range got {
		if b == Flag || b == Cancel || b == Substitute || b == XON || b == XOFF {
			t.Errorf("Stuff output contains raw reserved byte 0x%02X", b)
		}
	}
}

func TestStuffUnstuffRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"plain", []byte{0x01, 0x02, 0x03}},
		{"flag", []byte{0x7E}},
		{"escape", []byte{0x7D, 0x7D}},
		{"flow control", []byte{0x11, 0x13}},
		{"substitute and cancel", []byte{0x18, 0x1A, 0x00}},
		{"already escaped values", []byte{0x5E, 0x5D, 0x31, 0x33, 0x38, 0x3A}},
		{"empty", []byte{}},
	}
	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}
	tests = append(tests, struct {
		name string
		data []byte
	}{"every byte value", all})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Unstuff(Stuff(tt.data))
			if !bytes.Equal(got, tt.data) {
				t.Errorf("round trip: got %X, want %X", got, tt.data)
			}
		})
	}
}

func TestUnstuffTrailingEscape(t *testing.T) {
	got := Unstuff([]byte{0x01, 0x7D})
	if !bytes.Equal(got, []byte{0x01}) {
		t.Errorf("Unstuff: got %X, want 01", got)
	}
}

func TestMaskSequence(t *testing.T) {
	got := Mask(make([]byte, 8))
	want := []byte{0x42, 0x21, 0xA8, 0x54, 0x2A, 0x15, 0xB2, 0x59}
	if !bytes.Equal(got, want) {
		t.Errorf("mask sequence: got %X, want %X", got, want)
	}
}

func TestMaskRestartsPerCall(t *testing.T) {
	p := []byte{0x00, 0x00, 0x00, 0x02}
	a := Mask(p)
	b := Mask(p)
	if !bytes.Equal(a, b) {
		t.Errorf("mask not restarted: %X vs %X", a, b)
	}
	if got := Mask(a); !bytes.Equal(got, p) {
		t.Errorf("mask not an involution: got %X, want %X", got, p)
	}
}
