package ezsp

import (
	"fmt"
)

// Command is the parameter block of a command sent to the NCP.
type Command interface {
	FrameID() FrameID
	encode(w *Writer)
}

// Response is the parameter block the NCP returns for a Command.
type Response interface {
	decode(r *Reader)
}

// StatusResponse is a Response that carries a status field.
type StatusResponse interface {
	Response
	ResponseStatus() Status
}

// EncodeParams serializes the parameters of c.
func EncodeParams(c Command) ([]byte, error) {
	var w Writer
	c.encode(&w)
	if w.err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.FrameID(), w.err)
	}
	return w.Bytes(), nil
}

// DecodeParams parses params into resp. Bytes after the last field are
// ignored; newer firmware appends fields.
func DecodeParams(params []byte, resp Response) error {
	r := NewReader(params)
	resp.decode(r)
	return r.Err()
}

// EmberStatusResponse is returned by commands that report only a stack
// status.
type EmberStatusResponse struct {
	Status EmberStatus
}

func (s *EmberStatusResponse) decode(r *Reader)       { s.Status = EmberStatus(r.Uint8()) }
func (s *EmberStatusResponse) ResponseStatus() Status { return s.Status }

// EzspStatusResponse is returned by commands that report only a protocol
// status.
type EzspStatusResponse struct {
	Status EzspStatus
}

func (s *EzspStatusResponse) decode(r *Reader)       { s.Status = EzspStatus(r.Uint8()) }
func (s *EzspStatusResponse) ResponseStatus() Status { return s.Status }

// EmptyResponse is returned by commands without response parameters.
type EmptyResponse struct{}

func (*EmptyResponse) decode(*Reader) {}

// --- Version ---

type VersionRequest struct {
	DesiredProtocolVersion uint8
}

func (VersionRequest) FrameID() FrameID   { return FrameVersion }
func (c VersionRequest) encode(w *Writer) { w.PutUint8(c.DesiredProtocolVersion) }

type VersionResponse struct {
	ProtocolVersion uint8
	StackType       uint8
	StackVersion    uint16
}

func (v *VersionResponse) decode(r *Reader) {
	v.ProtocolVersion = r.Uint8()
	v.StackType = r.Uint8()
	v.StackVersion = r.Uint16()
}

// StackVersionString formats StackVersion as major.minor.patch.build, one
// nibble each.
func (v *VersionResponse) StackVersionString() string {
	s := v.StackVersion
	return fmt.Sprintf("%d.%d.%d.%d", s>>12&0xF, s>>8&0xF, s>>4&0xF, s&0xF)
}

// --- Nop / Echo ---

type NopRequest struct{}

func (NopRequest) FrameID() FrameID { return FrameNop }
func (NopRequest) encode(*Writer)   {}

type EchoRequest struct {
	Data []byte
}

func (EchoRequest) FrameID() FrameID   { return FrameEcho }
func (c EchoRequest) encode(w *Writer) { w.PutLenBytes(c.Data) }

type EchoResponse struct {
	Data []byte
}

func (e *EchoResponse) decode(r *Reader) { e.Data = r.LenBytes() }

// --- Configuration values ---

type GetConfigurationValueRequest struct {
	ConfigID ConfigID
}

func (GetConfigurationValueRequest) FrameID() FrameID   { return FrameGetConfigurationValue }
func (c GetConfigurationValueRequest) encode(w *Writer) { w.PutUint8(uint8(c.ConfigID)) }

type GetConfigurationValueResponse struct {
	Status EzspStatus
	Value  uint16
}

func (g *GetConfigurationValueResponse) decode(r *Reader) {
	g.Status = EzspStatus(r.Uint8())
	g.Value = r.Uint16()
}
func (g *GetConfigurationValueResponse) ResponseStatus() Status { return g.Status }

type SetConfigurationValueRequest struct {
	ConfigID ConfigID
	Value    uint16
}

func (SetConfigurationValueRequest) FrameID() FrameID { return FrameSetConfigurationValue }
func (c SetConfigurationValueRequest) encode(w *Writer) {
	w.PutUint8(uint8(c.ConfigID))
	w.PutUint16(c.Value)
}

// --- Policies ---

type GetPolicyRequest struct {
	PolicyID PolicyID
}

func (GetPolicyRequest) FrameID() FrameID   { return FrameGetPolicy }
func (c GetPolicyRequest) encode(w *Writer) { w.PutUint8(uint8(c.PolicyID)) }

type GetPolicyResponse struct {
	Status   EzspStatus
	Decision DecisionID
}

func (g *GetPolicyResponse) decode(r *Reader) {
	g.Status = EzspStatus(r.Uint8())
	g.Decision = DecisionID(r.Uint8())
}
func (g *GetPolicyResponse) ResponseStatus() Status { return g.Status }

type SetPolicyRequest struct {
	PolicyID PolicyID
	Decision DecisionID
}

func (SetPolicyRequest) FrameID() FrameID { return FrameSetPolicy }
func (c SetPolicyRequest) encode(w *Writer) {
	w.PutUint8(uint8(c.PolicyID))
	w.PutUint8(uint8(c.Decision))
}

// --- Values ---

type GetValueRequest struct {
	ValueID ValueID
}

func (GetValueRequest) FrameID() FrameID   { return FrameGetValue }
func (c GetValueRequest) encode(w *Writer) { w.PutUint8(uint8(c.ValueID)) }

type GetValueResponse struct {
	Status EzspStatus
	Value  []byte
}

func (g *GetValueResponse) decode(r *Reader) {
	g.Status = EzspStatus(r.Uint8())
	g.Value = r.LenBytes()
}
func (g *GetValueResponse) ResponseStatus() Status { return g.Status }

type SetValueRequest struct {
	ValueID ValueID
	Value   []byte
}

func (SetValueRequest) FrameID() FrameID { return FrameSetValue }
func (c SetValueRequest) encode(w *Writer) {
	w.PutUint8(uint8(c.ValueID))
	w.PutLenBytes(c.Value)
}

// --- Endpoints ---

type AddEndpointRequest struct {
	Endpoint       uint8
	ProfileID      uint16
	DeviceID       uint16
	AppFlags       uint8
	InputClusters  []uint16
	OutputClusters []uint16
}

func (AddEndpointRequest) FrameID() FrameID { return FrameAddEndpoint }
func (c AddEndpointRequest) encode(w *Writer) {
	w.PutUint8(c.Endpoint)
	w.PutUint16(c.ProfileID)
	w.PutUint16(c.DeviceID)
	w.PutUint8(c.AppFlags)
	w.putCount(len(c.InputClusters))
	w.putCount(len(c.OutputClusters))
	w.PutUint16List(c.InputClusters)
	w.PutUint16List(c.OutputClusters)
}

// --- Network management ---

// NetworkInitParentInfo asks the stack to restore parent info on init.
const NetworkInitParentInfo uint16 = 0x0001

type NetworkInitRequest struct {
	Bitmask uint16
}

func (NetworkInitRequest) FrameID() FrameID   { return FrameNetworkInit }
func (c NetworkInitRequest) encode(w *Writer) { w.PutUint16(c.Bitmask) }

type NetworkStateRequest struct{}

func (NetworkStateRequest) FrameID() FrameID { return FrameNetworkState }
func (NetworkStateRequest) encode(*Writer)   {}

type NetworkStateResponse struct {
	Status NetworkStatus
}

func (n *NetworkStateResponse) decode(r *Reader) { n.Status = readNetworkStatus(r) }

type FormNetworkRequest struct {
	Parameters NetworkParameters
}

func (FormNetworkRequest) FrameID() FrameID   { return FrameFormNetwork }
func (c FormNetworkRequest) encode(w *Writer) { c.Parameters.encode(w) }

type LeaveNetworkRequest struct{}

func (LeaveNetworkRequest) FrameID() FrameID { return FrameLeaveNetwork }
func (LeaveNetworkRequest) encode(*Writer)   {}

type PermitJoiningRequest struct {
	// Duration in seconds. 0xFF keeps joining open until disabled.
	Duration uint8
}

func (PermitJoiningRequest) FrameID() FrameID   { return FramePermitJoining }
func (c PermitJoiningRequest) encode(w *Writer) { w.PutUint8(c.Duration) }

type GetEui64Request struct{}

func (GetEui64Request) FrameID() FrameID { return FrameGetEui64 }
func (GetEui64Request) encode(*Writer)   {}

type GetEui64Response struct {
	EUI64 EUI64
}

func (g *GetEui64Response) decode(r *Reader) { r.Fixed(g.EUI64[:]) }

type GetNodeIDRequest struct{}

func (GetNodeIDRequest) FrameID() FrameID { return FrameGetNodeID }
func (GetNodeIDRequest) encode(*Writer)   {}

type GetNodeIDResponse struct {
	NodeID uint16
}

func (g *GetNodeIDResponse) decode(r *Reader) { g.NodeID = r.Uint16() }

type GetNetworkParametersRequest struct{}

func (GetNetworkParametersRequest) FrameID() FrameID { return FrameGetNetworkParameters }
func (GetNetworkParametersRequest) encode(*Writer)   {}

type GetNetworkParametersResponse struct {
	Status     EmberStatus
	NodeType   NodeType
	Parameters NetworkParameters
}

func (g *GetNetworkParametersResponse) decode(r *Reader) {
	g.Status = EmberStatus(r.Uint8())
	g.NodeType = readNodeType(r)
	g.Parameters.decode(r)
}
func (g *GetNetworkParametersResponse) ResponseStatus() Status { return g.Status }

type SetInitialSecurityStateRequest struct {
	State InitialSecurityState
}

func (SetInitialSecurityStateRequest) FrameID() FrameID   { return FrameSetInitialSecurityState }
func (c SetInitialSecurityStateRequest) encode(w *Writer) { c.State.encode(w) }

// Concentrator types.
const (
	ConcentratorLowRAM  uint16 = 0xFFF8
	ConcentratorHighRAM uint16 = 0xFFF9
)

type SetConcentratorRequest struct {
	On                       bool
	ConcentratorType         uint16
	MinTime                  uint16
	MaxTime                  uint16
	RouteErrorThreshold      uint8
	DeliveryFailureThreshold uint8
	MaxHops                  uint8
}

func (SetConcentratorRequest) FrameID() FrameID { return FrameSetConcentrator }
func (c SetConcentratorRequest) encode(w *Writer) {
	w.PutBool(c.On)
	w.PutUint16(c.ConcentratorType)
	w.PutUint16(c.MinTime)
	w.PutUint16(c.MaxTime)
	w.PutUint8(c.RouteErrorThreshold)
	w.PutUint8(c.DeliveryFailureThreshold)
	w.PutUint8(c.MaxHops)
}

type SetManufacturerCodeRequest struct {
	Code uint16
}

func (SetManufacturerCodeRequest) FrameID() FrameID   { return FrameSetManufacturerCode }
func (c SetManufacturerCodeRequest) encode(w *Writer) { w.PutUint16(c.Code) }

// --- Messaging ---

type SendUnicastRequest struct {
	Type               OutgoingMessageType
	IndexOrDestination uint16
	ApsFrame           ApsFrame
	MessageTag         uint8
	Message            []byte
}

func (SendUnicastRequest) FrameID() FrameID { return FrameSendUnicast }
func (c SendUnicastRequest) encode(w *Writer) {
	w.PutUint8(uint8(c.Type))
	w.PutUint16(c.IndexOrDestination)
	c.ApsFrame.encode(w)
	w.PutUint8(c.MessageTag)
	w.PutLenBytes(c.Message)
}

type SendUnicastResponse struct {
	Status   EmberStatus
	Sequence uint8
}

func (s *SendUnicastResponse) decode(r *Reader) {
	s.Status = EmberStatus(r.Uint8())
	s.Sequence = r.Uint8()
}
func (s *SendUnicastResponse) ResponseStatus() Status { return s.Status }

// InvalidCommandResponse is sent in place of a response when the NCP could
// not process a command.
type InvalidCommandResponse struct {
	Reason EzspStatus
}

func (i *InvalidCommandResponse) decode(r *Reader) { i.Reason = EzspStatus(r.Uint8()) }
