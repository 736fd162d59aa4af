package ezsp

import (
	"bytes"
	"errors"
	"testing"
)

func TestDecodeCallbacks(t *testing.T) {
	aps := []byte{0x04, 0x01, 0x06, 0x00, 0x01, 0x01, 0x40, 0x00, 0x00, 0x00, 0x07}
	wantAps := ApsFrame{ProfileID: 0x0104, ClusterID: 0x0006, SourceEndpoint: 1, DestinationEndpoint: 1, Options: 0x0040, Sequence: 7}

	t.Run("stack status", func(t *testing.T) {
		cb, err := DecodeCallback(FrameStackStatusHandler, []byte{0x90})
		if err != nil {
			t.Fatal(err)
		}
		s, ok := cb.(*StackStatusHandler)
		if !ok || s.Status != EmberNetworkUp {
			t.Errorf("got %#v", cb)
		}
	})

	t.Run("trust center join", func(t *testing.T) {
		params := []byte{0x34, 0x12, 0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01, 0x01, 0x00, 0x00, 0x00}
		cb, err := DecodeCallback(FrameTrustCenterJoinHandler, params)
		if err != nil {
			t.Fatal(err)
		}
		tc := cb.(*TrustCenterJoinHandler)
		if tc.NewNodeID != 0x1234 || tc.NewNodeEUI64.String() != "0102030405060708" {
			t.Errorf("node: got 0x%04X %s", tc.NewNodeID, tc.NewNodeEUI64)
		}
		if tc.Status != UnsecuredJoin || tc.PolicyDecision != UsePreconfiguredKey || tc.ParentOfNewNodeID != 0 {
			t.Errorf("got %+v", tc)
		}
	})

	t.Run("message sent", func(t *testing.T) {
		params := append([]byte{0x00, 0x34, 0x12}, aps...)
		params = append(params, 0x09, 0x00, 0x01, 0xAA)
		cb, err := DecodeCallback(FrameMessageSentHandler, params)
		if err != nil {
			t.Fatal(err)
		}
		m := cb.(*MessageSentHandler)
		if m.IndexOrDestination != 0x1234 || m.MessageTag != 9 || m.Status != EmberSuccess || m.ApsFrame != wantAps {
			t.Errorf("got %+v", m)
		}
		if !bytes.Equal(m.Message, []byte{0xAA}) {
			t.Errorf("message: got %X", m.Message)
		}
	})

	t.Run("incoming message", func(t *testing.T) {
		params := append([]byte{0x00}, aps...)
		params = append(params, 0xFF, 0xC4, 0x34, 0x12, 0xFF, 0xFF, 0x03, 0x18, 0x01, 0x0A)
		cb, err := DecodeCallback(FrameIncomingMessageHandler, params)
		if err != nil {
			t.Fatal(err)
		}
		m := cb.(*IncomingMessageHandler)
		if m.Type != IncomingUnicast || m.ApsFrame != wantAps || m.LastHopLQI != 0xFF || m.LastHopRSSI != -60 {
			t.Errorf("got %+v", m)
		}
		if m.Sender != 0x1234 || !bytes.Equal(m.Message, []byte{0x18, 0x01, 0x0A}) {
			t.Errorf("got sender 0x%04X message %X", m.Sender, m.Message)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		cb, err := DecodeCallback(0x0099, []byte{0x01, 0x02})
		if err != nil {
			t.Fatal(err)
		}
		u, ok := cb.(UnknownCallback)
		if !ok || u.FrameID() != 0x0099 || !bytes.Equal(u.Params, []byte{0x01, 0x02}) {
			t.Errorf("got %#v", cb)
		}
	})
}

func TestDecodeCallbackErrors(t *testing.T) {
	if _, err := DecodeCallback(FrameStackStatusHandler, nil); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("empty stack status: err %v", err)
	}
	params := []byte{0x34, 0x12, 0, 0, 0, 0, 0, 0, 0, 0, 0x09, 0x00, 0x00, 0x00}
	if _, err := DecodeCallback(FrameTrustCenterJoinHandler, params); !errors.Is(err, ErrInvalid) {
		t.Errorf("bad device update: err %v", err)
	}
}
