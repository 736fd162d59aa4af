package ash

import (
	"bytes"
	"errors"
	"time"
)

// Default retransmission policy. The NCP acknowledges within a few tens of
// milliseconds at 115200 baud.
const (
	DefaultAckTimeout     = 400 * time.Millisecond
	DefaultMaxRetransmits = 3
)

// Stats counts framer activity since creation.
type Stats struct {
	FramesIn       uint64
	FramesOut      uint64
	DataIn         uint64
	DataOut        uint64
	ChecksumErrors uint64
	DecodeErrors   uint64
	Cancelled      uint64
	Overflows      uint64
	Duplicates     uint64
	Retransmits    uint64
	NaksSent       uint64
	NaksReceived   uint64
}

type sentFrame struct {
	number  uint8
	payload []byte
	sentAt  time.Time
	tries   int
}

// FramerOption configures a Framer.
type FramerOption func(*Framer)

// WithAckTimeout sets how long a DATA frame may stay unacknowledged before
// it is retransmitted.
func WithAckTimeout(d time.Duration) FramerOption {
	return func(f *Framer) { f.ackTimeout = d }
}

// WithMaxRetransmits sets how many times a DATA frame is retransmitted
// before the link is declared dead.
func WithMaxRetransmits(n int) FramerOption {
	return func(f *Framer) { f.maxRetransmits = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) FramerOption {
	return func(f *Framer) { f.now = now }
}

// Framer holds the state of one ASH connection: receive buffer, outgoing
// queue, frame and ack counters, and the retransmit window.
//
// A Framer is not safe for concurrent use. The owner serializes access.
type Framer struct {
	ackTimeout     time.Duration
	maxRetransmits int
	now            func() time.Time

	rx []byte
	tx [][]byte

	ready       bool
	frameNumber uint8 // next outgoing DATA frame number
	ackNumber   uint8 // next expected incoming DATA frame number
	unacked     []sentFrame

	stats Stats
}

// NewFramer returns a framer that is not ready. Call Reset and feed the
// NCP's ResetAck before sending.
func NewFramer(opts ...FramerOption) *Framer {
	f := &Framer{
		ackTimeout:     DefaultAckTimeout,
		maxRetransmits: DefaultMaxRetransmits,
		now:            time.Now,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Ready reports whether a ResetAck has been seen since the last Reset.
func (f *Framer) Ready() bool { return f.ready }

// Stats returns a copy of the counters.
func (f *Framer) Stats() Stats { return f.stats }

// Outstanding returns the number of DATA frames awaiting acknowledgement.
func (f *Framer) Outstanding() int { return len(f.unacked) }

// Reset drops all connection state and queues a Cancel byte followed by a
// Reset frame. The framer becomes ready once the NCP answers with ResetAck.
func (f *Framer) Reset() {
	f.rx = f.rx[:0]
	f.tx = f.tx[:0]
	f.unacked = nil
	f.ready = false
	f.frameNumber = 0
	f.ackNumber = 0
	f.queue(append([]byte{Cancel}, Encode(Reset{})...))
}

// Send frames payload as the next DATA frame and queues it.
func (f *Framer) Send(payload []byte) error {
	if !f.ready {
		return ErrNotReady
	}
	if len(f.unacked) >= maxWindow {
		return ErrWindowFull
	}
	p := make([]byte, len(payload))
	copy(p, payload)

	n := f.frameNumber
	f.frameNumber = (f.frameNumber + 1) & numberMask
	f.queue(Encode(Data{FrameNumber: n, AckNumber: f.ackNumber, Payload: p}))
	f.unacked = append(f.unacked, sentFrame{number: n, payload: p, sentAt: f.now()})
	f.stats.DataOut++
	return nil
}

// PollOutgoing returns every queued frame concatenated, or nil.
func (f *Framer) PollOutgoing() []byte {
	if len(f.tx) == 0 {
		return nil
	}
	out := bytes.Join(f.tx, nil)
	f.tx = f.tx[:0]
	return out
}

// Pending reports whether PollOutgoing would return bytes.
func (f *Framer) Pending() bool { return len(f.tx) > 0 }

// Feed appends data to the receive buffer and returns the frames completed
// by it. Corrupt or cancelled candidates are dropped and counted. DATA
// frames are returned only when they are the next in sequence.
func (f *Framer) Feed(data []byte) []Frame {
	f.rx = append(f.rx, data...)

	var out []Frame
	for {
		i := indexTerminator(f.rx)
		if i < 0 {
			break
		}
		term := f.rx[i]
		candidate := f.rx[:i]
		f.rx = f.rx[i+1:]

		if term == Cancel {
			f.stats.Cancelled++
			continue
		}
		if fr := f.accept(candidate); fr != nil {
			out = append(out, fr)
		}
	}

	if len(f.rx) > maxBufferedBytes {
		f.stats.Overflows++
		f.rx = f.rx[:0]
	}
	// Keep the buffer from pinning a large backing array.
	if len(f.rx) == 0 {
		f.rx = nil
	}
	return out
}

func (f *Framer) accept(candidate []byte) Frame {
	candidate = dropFlowControl(candidate)
	if len(candidate) == 0 {
		return nil
	}
	if bytes.IndexByte(candidate, Substitute) >= 0 {
		f.stats.DecodeErrors++
		return nil
	}
	fr, err := Decode(candidate)
	if err != nil {
		if errors.Is(err, ErrChecksumMismatch) {
			f.stats.ChecksumErrors++
		} else {
			f.stats.DecodeErrors++
		}
		return nil
	}
	f.stats.FramesIn++

	switch fr := fr.(type) {
	case Data:
		return f.acceptData(fr)
	case Ack:
		f.release(fr.AckNumber)
	case Nak:
		f.stats.NaksReceived++
		f.release(fr.AckNumber)
		f.retransmitAll()
	case ResetAck:
		f.ready = true
		f.frameNumber = 0
		f.ackNumber = 0
		f.unacked = nil
	case Error:
		f.ready = false
		f.unacked = nil
	}
	return fr
}

func (f *Framer) acceptData(d Data) Frame {
	if !f.ready {
		f.stats.DecodeErrors++
		return nil
	}
	f.release(d.AckNumber)

	switch {
	case d.FrameNumber == f.ackNumber:
		f.ackNumber = (d.FrameNumber + 1) & numberMask
		f.queue(Encode(Ack{AckNumber: f.ackNumber}))
		f.stats.DataIn++
		return d
	case d.Retransmit:
		// Already delivered; the peer missed our ACK.
		f.stats.Duplicates++
		f.queue(Encode(Ack{AckNumber: f.ackNumber}))
	default:
		f.stats.NaksSent++
		f.queue(Encode(Nak{AckNumber: f.ackNumber}))
	}
	return nil
}

// release drops every unacknowledged frame that precedes ack.
func (f *Framer) release(ack uint8) {
	if len(f.unacked) == 0 {
		return
	}
	for i, s := range f.unacked {
		if s.number == ack {
			f.unacked = f.unacked[i:]
			return
		}
	}
	last := f.unacked[len(f.unacked)-1].number
	if ack == (last+1)&numberMask {
		f.unacked = nil
	}
}

func (f *Framer) retransmitAll() {
	now := f.now()
	for i := range f.unacked {
		s := &f.unacked[i]
		f.queue(Encode(Data{
			FrameNumber: s.number,
			AckNumber:   f.ackNumber,
			Retransmit:  true,
			Payload:     s.payload,
		}))
		s.sentAt = now
		s.tries++
		f.stats.Retransmits++
	}
}

// Expire retransmits the window when its oldest frame has been waiting
// longer than the ack timeout. It returns the number of frames resent, or
// ErrRetransmitExhausted after the retry limit, at which point the framer
// stops being ready.
func (f *Framer) Expire(now time.Time) (int, error) {
	if len(f.unacked) == 0 {
		return 0, nil
	}
	oldest := f.unacked[0]
	if now.Sub(oldest.sentAt) < f.ackTimeout {
		return 0, nil
	}
	if oldest.tries >= f.maxRetransmits {
		f.ready = false
		f.unacked = nil
		return 0, ErrRetransmitExhausted
	}
	n := len(f.unacked)
	f.retransmitAll()
	return n, nil
}

func (f *Framer) queue(b []byte) {
	f.tx = append(f.tx, b)
	f.stats.FramesOut++
}

func indexTerminator(b []byte) int {
	for i, c := range b {
		if c == Flag || c == Cancel {
			return i
		}
	}
	return -1
}

// dropFlowControl strips raw XON/XOFF bytes, which never appear unescaped
// inside a frame.
func dropFlowControl(b []byte) []byte {
	if bytes.IndexByte(b, XON) < 0 && bytes.IndexByte(b, XOFF) < 0 {
		return b
	}
	out := make([]byte, 0, len(b))
	for _, c := range b {
		if c != XON && c != XOFF {
			out = append(out, c)
		}
	}
	return out
}
