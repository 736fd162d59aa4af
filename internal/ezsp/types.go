package ezsp

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// EUI64 is an IEEE address, stored in over-the-air (little-endian) order.
type EUI64 [8]byte

// String prints the address most significant byte first, the way it is
// written on device labels.
func (e EUI64) String() string {
	var b strings.Builder
	for i := len(e) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "%02x", e[i])
	}
	return b.String()
}

// ParseEUI64 parses 16 hex digits, most significant byte first, with an
// optional 0x prefix and optional ':' separators.
func ParseEUI64(s string) (EUI64, error) {
	var e EUI64
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	s = strings.ReplaceAll(s, ":", "")
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != len(e) {
		return e, fmt.Errorf("invalid eui64 %q", s)
	}
	for i := range raw {
		e[len(e)-1-i] = raw[i]
	}
	return e, nil
}

// Key is a 128-bit link or network key.
type Key [16]byte

// WellKnownLinkKey is the default trust center link key "ZigBeeAlliance09".
var WellKnownLinkKey = Key{
	0x5A, 0x69, 0x67, 0x42, 0x65, 0x65, 0x41, 0x6C,
	0x6C, 0x69, 0x61, 0x6E, 0x63, 0x65, 0x30, 0x39,
}

// NetworkParameters describes a network to form or the one joined.
type NetworkParameters struct {
	ExtendedPanID EUI64
	PanID         uint16
	RadioTxPower  int8
	RadioChannel  uint8
	JoinMethod    JoinMethod
	NwkManagerID  uint16
	NwkUpdateID   uint8
	Channels      uint32
}

func (p *NetworkParameters) encode(w *Writer) {
	w.PutBytes(p.ExtendedPanID[:])
	w.PutUint16(p.PanID)
	w.PutInt8(p.RadioTxPower)
	w.PutUint8(p.RadioChannel)
	w.PutUint8(uint8(p.JoinMethod))
	w.PutUint16(p.NwkManagerID)
	w.PutUint8(p.NwkUpdateID)
	w.PutUint32(p.Channels)
}

func (p *NetworkParameters) decode(r *Reader) {
	r.Fixed(p.ExtendedPanID[:])
	p.PanID = r.Uint16()
	p.RadioTxPower = r.Int8()
	p.RadioChannel = r.Uint8()
	p.JoinMethod = readJoinMethod(r)
	p.NwkManagerID = r.Uint16()
	p.NwkUpdateID = r.Uint8()
	p.Channels = r.Uint32()
}

// Security bitmask flags for InitialSecurityState.
const (
	StandardSecurityMode           uint16 = 0x0000
	DistributedTrustCenterMode     uint16 = 0x0002
	TrustCenterGlobalLinkKey       uint16 = 0x0004
	PreconfiguredNetworkKeyMode    uint16 = 0x0008
	HaveTrustCenterEUI64           uint16 = 0x0040
	TrustCenterUsesHashedLinkKey   uint16 = 0x0084
	HavePreconfiguredKey           uint16 = 0x0100
	HaveNetworkKey                 uint16 = 0x0200
	GetLinkKeyWhenJoining          uint16 = 0x0400
	RequireEncryptedKey            uint16 = 0x0800
	NoFrameCounterReset            uint16 = 0x1000
	GetPreconfiguredKeyFromInstall uint16 = 0x2000
)

// InitialSecurityState configures security before forming a network.
type InitialSecurityState struct {
	Bitmask                  uint16
	PreconfiguredKey         Key
	NetworkKey               Key
	NetworkKeySequenceNumber uint8
	PreconfiguredTrustCenter EUI64
}

func (s *InitialSecurityState) encode(w *Writer) {
	w.PutUint16(s.Bitmask)
	w.PutBytes(s.PreconfiguredKey[:])
	w.PutBytes(s.NetworkKey[:])
	w.PutUint8(s.NetworkKeySequenceNumber)
	w.PutBytes(s.PreconfiguredTrustCenter[:])
}

func (s *InitialSecurityState) decode(r *Reader) {
	s.Bitmask = r.Uint16()
	r.Fixed(s.PreconfiguredKey[:])
	r.Fixed(s.NetworkKey[:])
	s.NetworkKeySequenceNumber = r.Uint8()
	r.Fixed(s.PreconfiguredTrustCenter[:])
}

// ApsFrame is the APS header of a sent or received message.
type ApsFrame struct {
	ProfileID           uint16
	ClusterID           uint16
	SourceEndpoint      uint8
	DestinationEndpoint uint8
	Options             uint16
	GroupID             uint16
	Sequence            uint8
}

// APS option flags.
const (
	ApsOptionRetry                  uint16 = 0x0040
	ApsOptionEnableRouteDiscovery   uint16 = 0x0100
	ApsOptionEnableAddressDiscovery uint16 = 0x1000
)

func (a *ApsFrame) encode(w *Writer) {
	w.PutUint16(a.ProfileID)
	w.PutUint16(a.ClusterID)
	w.PutUint8(a.SourceEndpoint)
	w.PutUint8(a.DestinationEndpoint)
	w.PutUint16(a.Options)
	w.PutUint16(a.GroupID)
	w.PutUint8(a.Sequence)
}

func (a *ApsFrame) decode(r *Reader) {
	a.ProfileID = r.Uint16()
	a.ClusterID = r.Uint16()
	a.SourceEndpoint = r.Uint8()
	a.DestinationEndpoint = r.Uint8()
	a.Options = r.Uint16()
	a.GroupID = r.Uint16()
	a.Sequence = r.Uint8()
}
