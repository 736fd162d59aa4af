// Package ezsp encodes and decodes EmberZNet Serial Protocol frames: the
// frame header in its legacy and extended forms, and the parameter blocks of
// the commands and callbacks the host uses.
package ezsp

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData is returned when a parameter block ends before a
	// field it must contain.
	ErrInsufficientData = errors.New("ezsp: insufficient data")
	// ErrInvalid is returned for a header or enum value outside its domain.
	ErrInvalid = errors.New("ezsp: invalid value")
)

// ProtocolVersion selects the header layout.
type ProtocolVersion uint8

const (
	// Version0 is the legacy header with a one-byte frame id.
	Version0 ProtocolVersion = iota
	// Version1 is the extended header with a second control byte and a
	// little-endian two-byte frame id.
	Version1
)

func (v ProtocolVersion) String() string {
	switch v {
	case Version0:
		return "v0"
	case Version1:
		return "v1"
	}
	return fmt.Sprintf("ProtocolVersion(%d)", uint8(v))
}

// FrameID identifies a command and its response, or a callback.
type FrameID uint16

// Frame ids.
const (
	FrameVersion                 FrameID = 0x0000
	FrameAddEndpoint             FrameID = 0x0002
	FrameNop                     FrameID = 0x0005
	FrameSetConcentrator         FrameID = 0x0010
	FrameSetManufacturerCode     FrameID = 0x0015
	FrameNetworkInit             FrameID = 0x0017
	FrameNetworkState            FrameID = 0x0018
	FrameStackStatusHandler      FrameID = 0x0019
	FrameFormNetwork             FrameID = 0x001E
	FrameLeaveNetwork            FrameID = 0x0020
	FramePermitJoining           FrameID = 0x0022
	FrameTrustCenterJoinHandler  FrameID = 0x0024
	FrameGetEui64                FrameID = 0x0026
	FrameGetNodeID               FrameID = 0x0027
	FrameGetNetworkParameters    FrameID = 0x0028
	FrameSendUnicast             FrameID = 0x0034
	FrameMessageSentHandler      FrameID = 0x003F
	FrameIncomingMessageHandler  FrameID = 0x0045
	FrameGetConfigurationValue   FrameID = 0x0052
	FrameSetConfigurationValue   FrameID = 0x0053
	FrameSetPolicy               FrameID = 0x0055
	FrameGetPolicy               FrameID = 0x0056
	FrameInvalidCommand          FrameID = 0x0058
	FrameSetInitialSecurityState FrameID = 0x0068
	FrameEcho                    FrameID = 0x0081
	FrameGetValue                FrameID = 0x00AA
	FrameSetValue                FrameID = 0x00AB
)

var frameNames = map[FrameID]string{
	FrameVersion:                 "version",
	FrameAddEndpoint:             "addEndpoint",
	FrameNop:                     "nop",
	FrameSetConcentrator:         "setConcentrator",
	FrameSetManufacturerCode:     "setManufacturerCode",
	FrameNetworkInit:             "networkInit",
	FrameNetworkState:            "networkState",
	FrameStackStatusHandler:      "stackStatusHandler",
	FrameFormNetwork:             "formNetwork",
	FrameLeaveNetwork:            "leaveNetwork",
	FramePermitJoining:           "permitJoining",
	FrameTrustCenterJoinHandler:  "trustCenterJoinHandler",
	FrameGetEui64:                "getEui64",
	FrameGetNodeID:               "getNodeId",
	FrameGetNetworkParameters:    "getNetworkParameters",
	FrameSendUnicast:             "sendUnicast",
	FrameMessageSentHandler:      "messageSentHandler",
	FrameIncomingMessageHandler:  "incomingMessageHandler",
	FrameGetConfigurationValue:   "getConfigurationValue",
	FrameSetConfigurationValue:   "setConfigurationValue",
	FrameSetPolicy:               "setPolicy",
	FrameGetPolicy:               "getPolicy",
	FrameInvalidCommand:          "invalidCommand",
	FrameSetInitialSecurityState: "setInitialSecurityState",
	FrameEcho:                    "echo",
	FrameGetValue:                "getValue",
	FrameSetValue:                "setValue",
}

func (id FrameID) String() string {
	if name, ok := frameNames[id]; ok {
		return name
	}
	return fmt.Sprintf("frame(0x%04X)", uint16(id))
}
