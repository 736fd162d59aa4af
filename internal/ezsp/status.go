package ezsp

import "fmt"

// Status is the status field of a response. Unknown codes are kept as-is
// and print as unknown(0xNN).
type Status interface {
	fmt.Stringer
	Code() uint8
	Success() bool
}

// EmberStatus is a stack status code.
type EmberStatus uint8

const (
	EmberSuccess                       EmberStatus = 0x00
	EmberErrFatal                      EmberStatus = 0x01
	EmberBadArgument                   EmberStatus = 0x02
	EmberNotFound                      EmberStatus = 0x03
	EmberEepromMfgStackVersionMismatch EmberStatus = 0x04
	EmberNoBuffers                     EmberStatus = 0x18
	EmberMacNoAckReceived              EmberStatus = 0x40
	EmberDeliveryFailed                EmberStatus = 0x66
	EmberInvalidCall                   EmberStatus = 0x70
	EmberNetworkUp                     EmberStatus = 0x90
	EmberNetworkDown                   EmberStatus = 0x91
	EmberNotJoined                     EmberStatus = 0x93
	EmberJoinFailed                    EmberStatus = 0x94
	EmberMoveFailed                    EmberStatus = 0x96
	EmberCannotJoinAsRouter            EmberStatus = 0x98
	EmberNodeIDChanged                 EmberStatus = 0x99
	EmberPanIDChanged                  EmberStatus = 0x9A
	EmberChannelChanged                EmberStatus = 0x9B
	EmberNetworkOpened                 EmberStatus = 0x9C
	EmberNetworkClosed                 EmberStatus = 0x9D
	EmberNetworkBusy                   EmberStatus = 0xA1
	EmberSecurityStateNotSet           EmberStatus = 0xA8
	EmberNoBeacons                     EmberStatus = 0xAB
	EmberIndexOutOfRange               EmberStatus = 0xB1
	EmberTableFull                     EmberStatus = 0xB4
	EmberSecurityConfigurationInvalid  EmberStatus = 0xB7
)

var emberStatusNames = map[EmberStatus]string{
	EmberSuccess:                       "SUCCESS",
	EmberErrFatal:                      "ERR_FATAL",
	EmberBadArgument:                   "BAD_ARGUMENT",
	EmberNotFound:                      "NOT_FOUND",
	EmberEepromMfgStackVersionMismatch: "EEPROM_MFG_STACK_VERSION_MISMATCH",
	EmberNoBuffers:                     "NO_BUFFERS",
	EmberMacNoAckReceived:              "MAC_NO_ACK_RECEIVED",
	EmberDeliveryFailed:                "DELIVERY_FAILED",
	EmberInvalidCall:                   "INVALID_CALL",
	EmberNetworkUp:                     "NETWORK_UP",
	EmberNetworkDown:                   "NETWORK_DOWN",
	EmberNotJoined:                     "NOT_JOINED",
	EmberJoinFailed:                    "JOIN_FAILED",
	EmberMoveFailed:                    "MOVE_FAILED",
	EmberCannotJoinAsRouter:            "CANNOT_JOIN_AS_ROUTER",
	EmberNodeIDChanged:                 "NODE_ID_CHANGED",
	EmberPanIDChanged:                  "PAN_ID_CHANGED",
	EmberChannelChanged:                "CHANNEL_CHANGED",
	EmberNetworkOpened:                 "NETWORK_OPENED",
	EmberNetworkClosed:                 "NETWORK_CLOSED",
	EmberNetworkBusy:                   "NETWORK_BUSY",
	EmberSecurityStateNotSet:           "SECURITY_STATE_NOT_SET",
	EmberNoBeacons:                     "NO_BEACONS",
	EmberIndexOutOfRange:               "INDEX_OUT_OF_RANGE",
	EmberTableFull:                     "TABLE_FULL",
	EmberSecurityConfigurationInvalid:  "SECURITY_CONFIGURATION_INVALID",
}

func (s EmberStatus) Code() uint8   { return uint8(s) }
func (s EmberStatus) Success() bool { return s == EmberSuccess }
func (s EmberStatus) String() string {
	if name, ok := emberStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown(0x%02X)", uint8(s))
}

// EzspStatus is a protocol-level status code.
type EzspStatus uint8

const (
	EzspSuccess           EzspStatus = 0x00
	EzspVersionNotSet     EzspStatus = 0x30
	EzspInvalidFrameID    EzspStatus = 0x31
	EzspWrongDirection    EzspStatus = 0x32
	EzspTruncated         EzspStatus = 0x33
	EzspOverflow          EzspStatus = 0x34
	EzspOutOfMemory       EzspStatus = 0x35
	EzspInvalidValue      EzspStatus = 0x36
	EzspInvalidID         EzspStatus = 0x37
	EzspInvalidCall       EzspStatus = 0x38
	EzspNoResponse        EzspStatus = 0x39
	EzspCommandTooLong    EzspStatus = 0x40
	EzspQueueFull         EzspStatus = 0x41
	EzspCommandFiltered   EzspStatus = 0x42
	EzspSecurityKeyNotSet EzspStatus = 0x43
	EzspErrorNoError      EzspStatus = 0xFF
)

var ezspStatusNames = map[EzspStatus]string{
	EzspSuccess:           "SUCCESS",
	EzspVersionNotSet:     "VERSION_NOT_SET",
	EzspInvalidFrameID:    "INVALID_FRAME_ID",
	EzspWrongDirection:    "WRONG_DIRECTION",
	EzspTruncated:         "TRUNCATED",
	EzspOverflow:          "OVERFLOW",
	EzspOutOfMemory:       "OUT_OF_MEMORY",
	EzspInvalidValue:      "INVALID_VALUE",
	EzspInvalidID:         "INVALID_ID",
	EzspInvalidCall:       "INVALID_CALL",
	EzspNoResponse:        "NO_RESPONSE",
	EzspCommandTooLong:    "COMMAND_TOO_LONG",
	EzspQueueFull:         "QUEUE_FULL",
	EzspCommandFiltered:   "COMMAND_FILTERED",
	EzspSecurityKeyNotSet: "SECURITY_KEY_NOT_SET",
	EzspErrorNoError:      "NO_ERROR",
}

func (s EzspStatus) Code() uint8   { return uint8(s) }
func (s EzspStatus) Success() bool { return s == EzspSuccess }
func (s EzspStatus) String() string {
	if name, ok := ezspStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown(0x%02X)", uint8(s))
}

// NetworkStatus is the result of networkState.
type NetworkStatus uint8

const (
	NoNetwork             NetworkStatus = 0
	JoiningNetwork        NetworkStatus = 1
	JoinedNetwork         NetworkStatus = 2
	JoinedNetworkNoParent NetworkStatus = 3
	LeavingNetwork        NetworkStatus = 4
)

var networkStatusNames = []string{"no_network", "joining", "joined", "joined_no_parent", "leaving"}

func (s NetworkStatus) String() string {
	if int(s) < len(networkStatusNames) {
		return networkStatusNames[s]
	}
	return fmt.Sprintf("NetworkStatus(%d)", uint8(s))
}

func readNetworkStatus(r *Reader) NetworkStatus {
	v := NetworkStatus(r.Uint8())
	if r.err == nil && v > LeavingNetwork {
		r.Fail(fmt.Errorf("%w: network status %d", ErrInvalid, uint8(v)))
	}
	return v
}

// NodeType is the role of a node in the network.
type NodeType uint8

const (
	UnknownDevice   NodeType = 0
	Coordinator     NodeType = 1
	Router          NodeType = 2
	EndDevice       NodeType = 3
	SleepyEndDevice NodeType = 4
)

var nodeTypeNames = []string{"unknown", "coordinator", "router", "end_device", "sleepy_end_device"}

func (t NodeType) String() string {
	if int(t) < len(nodeTypeNames) {
		return nodeTypeNames[t]
	}
	return fmt.Sprintf("NodeType(%d)", uint8(t))
}

func readNodeType(r *Reader) NodeType {
	v := NodeType(r.Uint8())
	if r.err == nil && v > SleepyEndDevice {
		r.Fail(fmt.Errorf("%w: node type %d", ErrInvalid, uint8(v)))
	}
	return v
}

// DeviceUpdate is the event reported by trustCenterJoinHandler.
type DeviceUpdate uint8

const (
	SecuredRejoin   DeviceUpdate = 0
	UnsecuredJoin   DeviceUpdate = 1
	DeviceLeft      DeviceUpdate = 2
	UnsecuredRejoin DeviceUpdate = 3
)

var deviceUpdateNames = []string{"secured_rejoin", "unsecured_join", "device_left", "unsecured_rejoin"}

func (u DeviceUpdate) String() string {
	if int(u) < len(deviceUpdateNames) {
		return deviceUpdateNames[u]
	}
	return fmt.Sprintf("DeviceUpdate(%d)", uint8(u))
}

func readDeviceUpdate(r *Reader) DeviceUpdate {
	v := DeviceUpdate(r.Uint8())
	if r.err == nil && v > UnsecuredRejoin {
		r.Fail(fmt.Errorf("%w: device update %d", ErrInvalid, uint8(v)))
	}
	return v
}

// JoinDecision is the trust center's verdict on a join.
type JoinDecision uint8

const (
	UsePreconfiguredKey JoinDecision = 0
	SendKeyInTheClear   JoinDecision = 1
	DenyJoin            JoinDecision = 2
	NoAction            JoinDecision = 3
)

var joinDecisionNames = []string{"use_preconfigured_key", "send_key_in_the_clear", "deny_join", "no_action"}

func (d JoinDecision) String() string {
	if int(d) < len(joinDecisionNames) {
		return joinDecisionNames[d]
	}
	return fmt.Sprintf("JoinDecision(%d)", uint8(d))
}

func readJoinDecision(r *Reader) JoinDecision {
	v := JoinDecision(r.Uint8())
	if r.err == nil && v > NoAction {
		r.Fail(fmt.Errorf("%w: join decision %d", ErrInvalid, uint8(v)))
	}
	return v
}

// JoinMethod selects how formNetwork parameters are applied.
type JoinMethod uint8

const (
	JoinMacAssociation     JoinMethod = 0
	JoinNwkRejoin          JoinMethod = 1
	JoinNwkRejoinHaveKey   JoinMethod = 2
	JoinConfiguredNwkState JoinMethod = 3
)

func readJoinMethod(r *Reader) JoinMethod {
	v := JoinMethod(r.Uint8())
	if r.err == nil && v > JoinConfiguredNwkState {
		r.Fail(fmt.Errorf("%w: join method %d", ErrInvalid, uint8(v)))
	}
	return v
}

// OutgoingMessageType addresses a sendUnicast.
type OutgoingMessageType uint8

const (
	OutgoingDirect             OutgoingMessageType = 0
	OutgoingViaAddressTable    OutgoingMessageType = 1
	OutgoingViaBinding         OutgoingMessageType = 2
	OutgoingMulticast          OutgoingMessageType = 3
	OutgoingMulticastWithAlias OutgoingMessageType = 4
	OutgoingBroadcastWithAlias OutgoingMessageType = 5
	OutgoingBroadcast          OutgoingMessageType = 6
)

func readOutgoingMessageType(r *Reader) OutgoingMessageType {
	v := OutgoingMessageType(r.Uint8())
	if r.err == nil && v > OutgoingBroadcast {
		r.Fail(fmt.Errorf("%w: outgoing message type %d", ErrInvalid, uint8(v)))
	}
	return v
}

// IncomingMessageType classifies a received APS message.
type IncomingMessageType uint8

const (
	IncomingUnicast               IncomingMessageType = 0
	IncomingUnicastReply          IncomingMessageType = 1
	IncomingMulticast             IncomingMessageType = 2
	IncomingMulticastLoopback     IncomingMessageType = 3
	IncomingBroadcast             IncomingMessageType = 4
	IncomingBroadcastLoopback     IncomingMessageType = 5
	IncomingManyToOneRouteRequest IncomingMessageType = 6
)

func readIncomingMessageType(r *Reader) IncomingMessageType {
	v := IncomingMessageType(r.Uint8())
	if r.err == nil && v > IncomingManyToOneRouteRequest {
		r.Fail(fmt.Errorf("%w: incoming message type %d", ErrInvalid, uint8(v)))
	}
	return v
}

// ConfigID names a stack configuration value. Values are passed through
// unchecked; firmware revisions add new ones.
type ConfigID uint8

const (
	ConfigPacketBufferCount           ConfigID = 0x01
	ConfigNeighborTableSize           ConfigID = 0x02
	ConfigApsUnicastMessageCount      ConfigID = 0x03
	ConfigBindingTableSize            ConfigID = 0x04
	ConfigAddressTableSize            ConfigID = 0x05
	ConfigMulticastTableSize          ConfigID = 0x06
	ConfigRouteTableSize              ConfigID = 0x07
	ConfigDiscoveryTableSize          ConfigID = 0x08
	ConfigStackProfile                ConfigID = 0x0C
	ConfigSecurityLevel               ConfigID = 0x0D
	ConfigMaxHops                     ConfigID = 0x10
	ConfigMaxEndDeviceChildren        ConfigID = 0x11
	ConfigIndirectTransmissionTimeout ConfigID = 0x12
	ConfigEndDevicePollTimeout        ConfigID = 0x13
	ConfigTxPowerMode                 ConfigID = 0x17
	ConfigDisableRelay                ConfigID = 0x18
	ConfigTrustCenterAddressCacheSize ConfigID = 0x19
	ConfigSourceRouteTableSize        ConfigID = 0x1A
	ConfigKeyTableSize                ConfigID = 0x1E
	ConfigApsAckTimeout               ConfigID = 0x1F
	ConfigApplicationZdoFlags         ConfigID = 0x2A
	ConfigSupportedNetworks           ConfigID = 0x2D
)

var configNames = map[string]ConfigID{
	"packet_buffer_count":             ConfigPacketBufferCount,
	"neighbor_table_size":             ConfigNeighborTableSize,
	"aps_unicast_message_count":       ConfigApsUnicastMessageCount,
	"binding_table_size":              ConfigBindingTableSize,
	"address_table_size":              ConfigAddressTableSize,
	"multicast_table_size":            ConfigMulticastTableSize,
	"route_table_size":                ConfigRouteTableSize,
	"discovery_table_size":            ConfigDiscoveryTableSize,
	"stack_profile":                   ConfigStackProfile,
	"security_level":                  ConfigSecurityLevel,
	"max_hops":                        ConfigMaxHops,
	"max_end_device_children":         ConfigMaxEndDeviceChildren,
	"indirect_transmission_timeout":   ConfigIndirectTransmissionTimeout,
	"end_device_poll_timeout":         ConfigEndDevicePollTimeout,
	"tx_power_mode":                   ConfigTxPowerMode,
	"disable_relay":                   ConfigDisableRelay,
	"trust_center_address_cache_size": ConfigTrustCenterAddressCacheSize,
	"source_route_table_size":         ConfigSourceRouteTableSize,
	"key_table_size":                  ConfigKeyTableSize,
	"aps_ack_timeout":                 ConfigApsAckTimeout,
	"application_zdo_flags":           ConfigApplicationZdoFlags,
	"supported_networks":              ConfigSupportedNetworks,
}

// ParseConfigID maps a snake_case name such as "stack_profile" to its id.
func ParseConfigID(name string) (ConfigID, bool) {
	id, ok := configNames[name]
	return id, ok
}

func (c ConfigID) String() string {
	for name, id := range configNames {
		if id == c {
			return name
		}
	}
	return fmt.Sprintf("config(0x%02X)", uint8(c))
}

// PolicyID names a stack policy.
type PolicyID uint8

const (
	PolicyTrustCenter                PolicyID = 0x00
	PolicyBindingModification        PolicyID = 0x01
	PolicyUnicastReplies             PolicyID = 0x02
	PolicyPollHandler                PolicyID = 0x03
	PolicyMessageContentsInCallback  PolicyID = 0x04
	PolicyTcKeyRequest               PolicyID = 0x05
	PolicyAppKeyRequest              PolicyID = 0x06
	PolicyPacketValidateLibrary      PolicyID = 0x07
	PolicyZll                        PolicyID = 0x08
	PolicyTcRejoinsUsingWellKnownKey PolicyID = 0x09
)

var policyNames = map[string]PolicyID{
	"trust_center":                    PolicyTrustCenter,
	"binding_modification":            PolicyBindingModification,
	"unicast_replies":                 PolicyUnicastReplies,
	"poll_handler":                    PolicyPollHandler,
	"message_contents_in_callback":    PolicyMessageContentsInCallback,
	"tc_key_request":                  PolicyTcKeyRequest,
	"app_key_request":                 PolicyAppKeyRequest,
	"packet_validate_library":         PolicyPacketValidateLibrary,
	"zll":                             PolicyZll,
	"tc_rejoins_using_well_known_key": PolicyTcRejoinsUsingWellKnownKey,
}

// ParsePolicyID maps a snake_case policy name to its id.
func ParsePolicyID(name string) (PolicyID, bool) {
	id, ok := policyNames[name]
	return id, ok
}

func (p PolicyID) String() string {
	for name, id := range policyNames {
		if id == p {
			return name
		}
	}
	return fmt.Sprintf("policy(0x%02X)", uint8(p))
}

// DecisionID is a policy value. The trust center policy takes a bitmask of
// the Decision* flags.
type DecisionID uint8

const (
	DecisionBitmaskDefault                  DecisionID = 0x00
	DecisionAllowJoins                      DecisionID = 0x01
	DecisionAllowUnsecuredRejoins           DecisionID = 0x02
	DisallowBindingModification             DecisionID = 0x10
	AllowBindingModification                DecisionID = 0x11
	CheckBindingModificationsValidEndpoints DecisionID = 0x12
	HostWillNotSupplyReply                  DecisionID = 0x20
	HostWillSupplyReply                     DecisionID = 0x21
	PollHandlerIgnore                       DecisionID = 0x30
	PollHandlerCallback                     DecisionID = 0x31
	MessageTagOnlyInCallback                DecisionID = 0x40
	MessageTagAndContentsInCallback         DecisionID = 0x41
	DenyTcKeyRequests                       DecisionID = 0x50
	AllowTcKeyRequestsSendCurrentKey        DecisionID = 0x51
	AllowTcKeyRequestGenerateNewKey         DecisionID = 0x52
	DenyAppKeyRequests                      DecisionID = 0x60
	AllowAppKeyRequests                     DecisionID = 0x61
)

// ValueID names a getValue/setValue slot.
type ValueID uint8

const (
	ValueTokenStackNodeData            ValueID = 0x00
	ValueMacPassthroughFlags           ValueID = 0x01
	ValueEmbernetPassthroughSourceAddr ValueID = 0x02
	ValueFreeBuffers                   ValueID = 0x03
	ValueUartSynchCallbacks            ValueID = 0x04
	ValueMaximumIncomingTransferSize   ValueID = 0x05
	ValueMaximumOutgoingTransferSize   ValueID = 0x06
	ValueStackTokenWriting             ValueID = 0x07
	ValueStackIsPerformingRejoin       ValueID = 0x08
	ValueMacFilterList                 ValueID = 0x09
	ValueExtendedSecurityBitmask       ValueID = 0x0A
	ValueNodeShortID                   ValueID = 0x0B
	ValueDescriptorCapability          ValueID = 0x0C
	ValueStackDeviceRequestSequence    ValueID = 0x0D
	ValueRadioHoldOff                  ValueID = 0x0E
	ValueEndpointFlags                 ValueID = 0x0F
	ValueMfgSecurityConfig             ValueID = 0x10
	ValueVersionInfo                   ValueID = 0x11
)
