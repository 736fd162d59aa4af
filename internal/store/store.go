package store

import "errors"

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store persists what the host learns about its network and NCP.
type Store interface {
	// Devices seen through trust center join callbacks
	SaveDevice(dev *Device) error
	GetDevice(eui64 string) (*Device, error)
	DeleteDevice(eui64 string) error
	ListDevices() ([]*Device, error)

	// UpdateDevice reads, modifies and saves a device in one transaction.
	// Returns ErrNotFound if the device does not exist.
	UpdateDevice(eui64 string, fn func(dev *Device) error) error

	// Network formed on the NCP
	SaveNetworkState(state *NetworkState) error
	GetNetworkState() (*NetworkState, error)

	// NCP identity from the last handshake
	SaveNCPInfo(info *NCPInfo) error
	GetNCPInfo() (*NCPInfo, error)

	Close() error
}
