package ezsp

import (
	"encoding/binary"
	"fmt"
)

// Reader reads little-endian fields from a parameter block. The first
// failure sticks: later reads return zero values and Err reports it.
type Reader struct {
	b   []byte
	off int
	err error
}

// NewReader returns a Reader over b.
func NewReader(b []byte) *Reader { return &Reader{b: b} }

// Err returns the first error encountered.
func (r *Reader) Err() error { return r.err }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.b) - r.off }

// Fail records err unless an earlier error is already recorded.
func (r *Reader) Fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.Remaining() < n {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrInsufficientData, n, r.off, r.Remaining())
		return nil
	}
	p := r.b[r.off : r.off+n]
	r.off += n
	return p
}

func (r *Reader) Uint8() uint8 {
	p := r.take(1)
	if p == nil {
		return 0
	}
	return p[0]
}

func (r *Reader) Int8() int8 { return int8(r.Uint8()) }

// Bool reads one byte that must be 0 or 1.
func (r *Reader) Bool() bool {
	v := r.Uint8()
	if v > 1 {
		r.Fail(fmt.Errorf("%w: bool 0x%02X", ErrInvalid, v))
	}
	return v == 1
}

func (r *Reader) Uint16() uint16 {
	p := r.take(2)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(p)
}

func (r *Reader) Uint32() uint32 {
	p := r.take(4)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(p)
}

// Bytes returns a copy of the next n bytes.
func (r *Reader) Bytes(n int) []byte {
	p := r.take(n)
	if p == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, p)
	return out
}

// Fixed fills dst from the stream.
func (r *Reader) Fixed(dst []byte) {
	if p := r.take(len(dst)); p != nil {
		copy(dst, p)
	}
}

// LenBytes reads a one-byte length followed by that many bytes.
func (r *Reader) LenBytes() []byte {
	n := r.Uint8()
	return r.Bytes(int(n))
}

// Uint16List reads count little-endian uint16 values.
func (r *Reader) Uint16List(count int) []uint16 {
	out := make([]uint16, 0, count)
	for i := 0; i < count && r.err == nil; i++ {
		out = append(out, r.Uint16())
	}
	return out
}

// Writer appends little-endian fields to a parameter block.
type Writer struct {
	buf []byte
	err error
}

// Bytes returns the encoded block.
func (w *Writer) Bytes() []byte { return w.buf }

// Err returns the first error encountered.
func (w *Writer) Err() error { return w.err }

func (w *Writer) PutUint8(v uint8) { w.buf = append(w.buf, v) }
func (w *Writer) PutInt8(v int8)   { w.buf = append(w.buf, uint8(v)) }

func (w *Writer) PutBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
		return
	}
	w.buf = append(w.buf, 0)
}

func (w *Writer) PutUint16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *Writer) PutUint32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *Writer) PutBytes(p []byte)  { w.buf = append(w.buf, p...) }

// PutLenBytes writes a one-byte length followed by p.
func (w *Writer) PutLenBytes(p []byte) {
	w.putCount(len(p))
	w.PutBytes(p)
}

func (w *Writer) putCount(n int) {
	if n > 0xFF && w.err == nil {
		w.err = fmt.Errorf("%w: %d elements exceed a one-byte count", ErrInvalid, n)
	}
	w.PutUint8(uint8(n))
}

func (w *Writer) PutUint16List(vs []uint16) {
	for _, v := range vs {
		w.PutUint16(v)
	}
}
