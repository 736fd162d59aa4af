// Package ncp drives a Silicon Labs Zigbee network co-processor over ASH:
// it correlates EZSP commands with their responses and dispatches the
// callbacks the NCP sends on its own.
package ncp

import (
	"context"
	"errors"
	"fmt"

	"zigbee-ncp-host/internal/ash"
	"zigbee-ncp-host/internal/ezsp"
)

var (
	// ErrClosed is returned once the driver has been closed.
	ErrClosed = errors.New("ncp closed")
	// ErrLinkDown wraps the cause of a fatal link failure. Commands fail
	// with it until Reset succeeds.
	ErrLinkDown = errors.New("ncp link down")
	// ErrQueueDesync means a response did not match the oldest pending
	// command, so positional correlation can no longer be trusted.
	ErrQueueDesync = errors.New("ezsp response queue out of sync")
	// ErrLinkReset is delivered to commands still pending when Reset runs.
	ErrLinkReset = errors.New("ncp link reset")
	// ErrUnexpectedReset means the NCP sent RSTACK without being asked to.
	ErrUnexpectedReset = errors.New("ncp reset unexpectedly")
)

// NCP is the command surface the coordinator uses. Driver implements it.
type NCP interface {
	// Link management
	Reset(ctx context.Context) error
	QueryVersion(ctx context.Context, desired uint8) (*ezsp.VersionResponse, error)
	Nop(ctx context.Context) error
	Echo(ctx context.Context, data []byte) ([]byte, error)

	// Stack configuration
	GetConfigurationValue(ctx context.Context, id ezsp.ConfigID) (uint16, error)
	SetConfigurationValue(ctx context.Context, id ezsp.ConfigID, value uint16) error
	GetPolicy(ctx context.Context, id ezsp.PolicyID) (ezsp.DecisionID, error)
	SetPolicy(ctx context.Context, id ezsp.PolicyID, decision ezsp.DecisionID) error
	GetValue(ctx context.Context, id ezsp.ValueID) ([]byte, error)
	SetValue(ctx context.Context, id ezsp.ValueID, value []byte) error
	AddEndpoint(ctx context.Context, req ezsp.AddEndpointRequest) error
	SetConcentrator(ctx context.Context, req ezsp.SetConcentratorRequest) error
	SetManufacturerCode(ctx context.Context, code uint16) error

	// Network management
	NetworkInit(ctx context.Context) error
	NetworkState(ctx context.Context) (ezsp.NetworkStatus, error)
	SetInitialSecurityState(ctx context.Context, state ezsp.InitialSecurityState) error
	FormNetwork(ctx context.Context, params ezsp.NetworkParameters) error
	LeaveNetwork(ctx context.Context) error
	PermitJoining(ctx context.Context, seconds uint8) error
	GetEUI64(ctx context.Context) (ezsp.EUI64, error)
	GetNodeID(ctx context.Context) (uint16, error)
	GetNetworkParameters(ctx context.Context) (ezsp.NodeType, ezsp.NetworkParameters, error)

	// Messaging
	SendUnicast(ctx context.Context, req ezsp.SendUnicastRequest) (uint8, error)

	// Callbacks
	OnStackStatus(handler func(ezsp.StackStatusHandler))
	OnTrustCenterJoin(handler func(ezsp.TrustCenterJoinHandler))
	OnMessageSent(handler func(ezsp.MessageSentHandler))
	OnIncomingMessage(handler func(ezsp.IncomingMessageHandler))
	OnLinkDown(handler func(error))

	// Info
	Info() Info
	Stats() Stats

	// Lifecycle
	Close() error
}

// Info is what the driver learned about the NCP during the handshake.
type Info struct {
	ResetCode       ash.ResetCode `json:"reset_code"`
	ProtocolVersion uint8         `json:"protocol_version"`
	StackType       uint8         `json:"stack_type"`
	StackVersion    string        `json:"stack_version"`
	Ready           bool          `json:"ready"`
}

// Stats are the driver counters, including the framer's.
type Stats struct {
	ash.Stats
	Commands     uint64
	Responses    uint64
	Callbacks    uint64
	Timeouts     uint64
	StatusErrors uint64
	Orphaned     uint64
	Discarded    uint64
	Desyncs      uint64
	LinkDowns    uint64
	Pending      int
	Ready        bool
	Version      ezsp.ProtocolVersion
}

// StatusError is returned when the NCP answers a command with a
// non-success status.
type StatusError struct {
	Command ezsp.FrameID
	Status  ezsp.Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ezsp %s: status %s", e.Command, e.Status)
}

// InvalidCommandError is returned when the NCP rejects a command outright.
type InvalidCommandError struct {
	Command ezsp.FrameID
	Reason  ezsp.EzspStatus
}

func (e *InvalidCommandError) Error() string {
	return fmt.Sprintf("ezsp %s: invalid command: %s", e.Command, e.Reason)
}

// IsStatus reports whether err is a StatusError carrying code.
func IsStatus(err error, code uint8) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status.Code() == code
}
