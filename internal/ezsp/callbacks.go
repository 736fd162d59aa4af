package ezsp

// Callback is an unsolicited frame sent by the NCP.
type Callback interface {
	FrameID() FrameID
}

// StackStatusHandler reports a change of network state, for example
// EmberNetworkUp after formNetwork or networkInit.
type StackStatusHandler struct {
	Status EmberStatus
}

// TrustCenterJoinHandler reports a device joining, rejoining or leaving
// through the trust center.
type TrustCenterJoinHandler struct {
	NewNodeID         uint16
	NewNodeEUI64      EUI64
	Status            DeviceUpdate
	PolicyDecision    JoinDecision
	ParentOfNewNodeID uint16
}

// MessageSentHandler confirms delivery, or failure, of a sent message.
type MessageSentHandler struct {
	Type               OutgoingMessageType
	IndexOrDestination uint16
	ApsFrame           ApsFrame
	MessageTag         uint8
	Status             EmberStatus
	Message            []byte
}

// IncomingMessageHandler delivers a received APS message.
type IncomingMessageHandler struct {
	Type         IncomingMessageType
	ApsFrame     ApsFrame
	LastHopLQI   uint8
	LastHopRSSI  int8
	Sender       uint16
	BindingIndex uint8
	AddressIndex uint8
	Message      []byte
}

// UnknownCallback holds a callback this package has no decoder for.
type UnknownCallback struct {
	ID     FrameID
	Params []byte
}

func (StackStatusHandler) FrameID() FrameID     { return FrameStackStatusHandler }
func (TrustCenterJoinHandler) FrameID() FrameID { return FrameTrustCenterJoinHandler }
func (MessageSentHandler) FrameID() FrameID     { return FrameMessageSentHandler }
func (IncomingMessageHandler) FrameID() FrameID { return FrameIncomingMessageHandler }
func (u UnknownCallback) FrameID() FrameID      { return u.ID }

func (s *StackStatusHandler) decode(r *Reader) { s.Status = EmberStatus(r.Uint8()) }

func (t *TrustCenterJoinHandler) decode(r *Reader) {
	t.NewNodeID = r.Uint16()
	r.Fixed(t.NewNodeEUI64[:])
	t.Status = readDeviceUpdate(r)
	t.PolicyDecision = readJoinDecision(r)
	t.ParentOfNewNodeID = r.Uint16()
}

func (m *MessageSentHandler) decode(r *Reader) {
	m.Type = readOutgoingMessageType(r)
	m.IndexOrDestination = r.Uint16()
	m.ApsFrame.decode(r)
	m.MessageTag = r.Uint8()
	m.Status = EmberStatus(r.Uint8())
	m.Message = r.LenBytes()
}

func (m *IncomingMessageHandler) decode(r *Reader) {
	m.Type = readIncomingMessageType(r)
	m.ApsFrame.decode(r)
	m.LastHopLQI = r.Uint8()
	m.LastHopRSSI = r.Int8()
	m.Sender = r.Uint16()
	m.BindingIndex = r.Uint8()
	m.AddressIndex = r.Uint8()
	m.Message = r.LenBytes()
}

// DecodeCallback parses the parameters of callback id. Ids without a
// decoder come back as UnknownCallback with a copy of params.
func DecodeCallback(id FrameID, params []byte) (Callback, error) {
	var cb interface {
		Callback
		Response
	}
	switch id {
	case FrameStackStatusHandler:
		cb = &StackStatusHandler{}
	case FrameTrustCenterJoinHandler:
		cb = &TrustCenterJoinHandler{}
	case FrameMessageSentHandler:
		cb = &MessageSentHandler{}
	case FrameIncomingMessageHandler:
		cb = &IncomingMessageHandler{}
	default:
		p := make([]byte, len(params))
		copy(p, params)
		return UnknownCallback{ID: id, Params: p}, nil
	}
	if err := DecodeParams(params, cb); err != nil {
		return nil, err
	}
	return cb, nil
}
