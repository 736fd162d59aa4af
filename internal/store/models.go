package store

import "time"

// Device is a node the trust center has admitted.
type Device struct {
	EUI64        string    `json:"eui64"`
	NodeID       uint16    `json:"node_id"`
	ParentID     uint16    `json:"parent_id"`
	FriendlyName string    `json:"friendly_name,omitempty"`
	LastStatus   string    `json:"last_status"`
	JoinedAt     time.Time `json:"joined_at"`
	LastSeen     time.Time `json:"last_seen"`
	LQI          uint8     `json:"lqi,omitempty"`
	RSSI         int8      `json:"rssi,omitempty"`
	Messages     uint64    `json:"messages,omitempty"`
}

// NetworkState is the network the coordinator formed.
// NetworkKey is kept out of API JSON via json:"-".
type NetworkState struct {
	Channel    uint8  `json:"channel"`
	PanID      uint16 `json:"pan_id"`
	ExtPanID   string `json:"ext_pan_id"`
	TxPower    int8   `json:"tx_power"`
	NetworkKey string `json:"-"`
	Formed     bool   `json:"formed"`
}

// networkStateStorage is the on-disk form, which keeps the network key.
type networkStateStorage struct {
	Channel    uint8  `json:"channel"`
	PanID      uint16 `json:"pan_id"`
	ExtPanID   string `json:"ext_pan_id"`
	TxPower    int8   `json:"tx_power"`
	NetworkKey string `json:"network_key,omitempty"`
	Formed     bool   `json:"formed"`
}

// NCPInfo identifies the co-processor as of the last handshake.
type NCPInfo struct {
	EUI64           string    `json:"eui64"`
	NodeID          uint16    `json:"node_id"`
	ProtocolVersion uint8     `json:"protocol_version"`
	StackType       uint8     `json:"stack_type"`
	StackVersion    string    `json:"stack_version"`
	ResetCode       string    `json:"reset_code,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}
