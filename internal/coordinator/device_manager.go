package coordinator

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"zigbee-ncp-host/internal/ezsp"
	"zigbee-ncp-host/internal/store"
)

// joinDebounce suppresses the duplicate join events a device produces when
// it moves from an unsecured join to a secured rejoin.
const joinDebounce = 3 * time.Second

// DeviceManager tracks devices from trust center and message callbacks.
type DeviceManager struct {
	coord  *Coordinator
	logger *slog.Logger

	lastJoinMu sync.Mutex
	lastJoin   map[string]time.Time

	// In-memory node id -> EUI64 index for fast lookup.
	addrMu    sync.RWMutex
	addrIndex map[uint16]string
}

// NewDeviceManager creates a new device manager.
func NewDeviceManager(coord *Coordinator) *DeviceManager {
	return &DeviceManager{
		coord:     coord,
		logger:    coord.logger.With("component", "device_manager"),
		lastJoin:  make(map[string]time.Time),
		addrIndex: make(map[uint16]string),
	}
}

func (dm *DeviceManager) updateAddrIndex(eui string, nodeID uint16) {
	dm.addrMu.Lock()
	for id, stored := range dm.addrIndex {
		if stored == eui && id != nodeID {
			delete(dm.addrIndex, id)
		}
	}
	dm.addrIndex[nodeID] = eui
	dm.addrMu.Unlock()
}

func (dm *DeviceManager) removeFromAddrIndex(eui string) {
	dm.addrMu.Lock()
	for id, stored := range dm.addrIndex {
		if stored == eui {
			delete(dm.addrIndex, id)
		}
	}
	dm.addrMu.Unlock()
}

// LookupEUI64 finds a device's EUI64 by node id. Returns "" when unknown.
func (dm *DeviceManager) LookupEUI64(nodeID uint16) string {
	dm.addrMu.RLock()
	defer dm.addrMu.RUnlock()
	return dm.addrIndex[nodeID]
}

// LookupNodeID finds a device's node id by EUI64.
func (dm *DeviceManager) LookupNodeID(eui string) (uint16, bool) {
	dm.addrMu.RLock()
	defer dm.addrMu.RUnlock()
	for id, stored := range dm.addrIndex {
		if stored == eui {
			return id, true
		}
	}
	return 0, false
}

// deviceName returns the friendly name if set, else the EUI64.
func deviceName(dev *store.Device) string {
	if dev == nil {
		return ""
	}
	if dev.FriendlyName != "" {
		return dev.FriendlyName
	}
	return dev.EUI64
}

// RebuildAddrIndex loads all devices from store and populates the index.
func (dm *DeviceManager) RebuildAddrIndex() {
	devices, err := dm.coord.Store().ListDevices()
	if err != nil {
		dm.logger.Error("rebuild addr index", "err", err)
		return
	}
	dm.addrMu.Lock()
	clear(dm.addrIndex)
	for _, d := range devices {
		dm.addrIndex[d.NodeID] = d.EUI64
	}
	dm.addrMu.Unlock()
}

// HandleTrustCenterJoin records a join or rejoin, or forgets a device that
// left.
func (dm *DeviceManager) HandleTrustCenterJoin(j ezsp.TrustCenterJoinHandler) {
	eui := j.NewNodeEUI64.String()
	if j.Status == ezsp.DeviceLeft {
		dm.handleLeave(eui, j.NewNodeID)
		return
	}
	if j.PolicyDecision == ezsp.DenyJoin {
		dm.logger.Info("join denied by policy", "eui64", eui, "node", fmt.Sprintf("0x%04X", j.NewNodeID))
		return
	}

	dm.updateAddrIndex(eui, j.NewNodeID)

	now := time.Now()
	dev, err := dm.coord.Store().GetDevice(eui)
	switch {
	case err == nil:
		dev.NodeID = j.NewNodeID
		dev.ParentID = j.ParentOfNewNodeID
		dev.LastStatus = j.Status.String()
		dev.LastSeen = now
	case errors.Is(err, store.ErrNotFound):
		dev = &store.Device{
			EUI64:      eui,
			NodeID:     j.NewNodeID,
			ParentID:   j.ParentOfNewNodeID,
			LastStatus: j.Status.String(),
			JoinedAt:   now,
			LastSeen:   now,
		}
	default:
		dm.logger.Error("get device on join", "err", err, "eui64", eui)
		return
	}

	if err := dm.coord.Store().SaveDevice(dev); err != nil {
		dm.logger.Error("save device", "err", err, "eui64", eui)
		return
	}

	dm.lastJoinMu.Lock()
	last, seen := dm.lastJoin[eui]
	dm.lastJoin[eui] = now
	dm.lastJoinMu.Unlock()
	if seen && now.Sub(last) < joinDebounce {
		dm.logger.Debug("duplicate join", "eui64", eui, "status", j.Status.String())
		return
	}

	dm.logger.Info("device joined", "eui64", eui, "node", fmt.Sprintf("0x%04X", j.NewNodeID),
		"status", j.Status.String(), "name", deviceName(dev))
	dm.coord.Events().Emit(Event{
		Type: EventDeviceJoined,
		Data: map[string]any{
			"eui64":   eui,
			"node_id": j.NewNodeID,
			"parent":  j.ParentOfNewNodeID,
			"status":  j.Status.String(),
		},
	})
}

func (dm *DeviceManager) handleLeave(eui string, nodeID uint16) {
	dev, _ := dm.coord.Store().GetDevice(eui)
	name := deviceName(dev)
	dm.logger.Info("device left", "eui64", eui, "node", fmt.Sprintf("0x%04X", nodeID), "name", name)

	dm.lastJoinMu.Lock()
	delete(dm.lastJoin, eui)
	dm.lastJoinMu.Unlock()
	dm.removeFromAddrIndex(eui)

	if err := dm.coord.Store().DeleteDevice(eui); err != nil && !errors.Is(err, store.ErrNotFound) {
		dm.logger.Error("delete device on leave", "err", err, "eui64", eui)
	}

	dm.coord.Events().Emit(Event{
		Type: EventDeviceLeft,
		Data: map[string]any{"eui64": eui, "node_id": nodeID},
	})
}

// RemoveDevice forgets a device. It does not ask the device to leave.
func (dm *DeviceManager) RemoveDevice(eui string) error {
	if err := dm.coord.Store().DeleteDevice(eui); err != nil {
		return err
	}
	dm.removeFromAddrIndex(eui)
	dm.lastJoinMu.Lock()
	delete(dm.lastJoin, eui)
	dm.lastJoinMu.Unlock()
	dm.coord.Events().Emit(Event{
		Type: EventDeviceLeft,
		Data: map[string]any{"eui64": eui, "removed": true},
	})
	return nil
}

// HandleIncomingMessage refreshes link quality for a known sender and
// publishes the message.
func (dm *DeviceManager) HandleIncomingMessage(m ezsp.IncomingMessageHandler) {
	eui := dm.LookupEUI64(m.Sender)
	if eui != "" {
		err := dm.coord.Store().UpdateDevice(eui, func(dev *store.Device) error {
			dev.LastSeen = time.Now()
			dev.LQI = m.LastHopLQI
			dev.RSSI = m.LastHopRSSI
			dev.Messages++
			return nil
		})
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			dm.logger.Error("update device on message", "err", err, "eui64", eui)
		}
	}

	dm.logger.Debug("incoming message", "sender", fmt.Sprintf("0x%04X", m.Sender),
		"cluster", fmt.Sprintf("0x%04X", m.ApsFrame.ClusterID), "lqi", m.LastHopLQI, "rssi", m.LastHopRSSI)
	dm.coord.Events().Emit(Event{
		Type: EventIncomingMessage,
		Data: map[string]any{
			"eui64":       eui,
			"sender":      m.Sender,
			"profile_id":  m.ApsFrame.ProfileID,
			"cluster_id":  m.ApsFrame.ClusterID,
			"src_ep":      m.ApsFrame.SourceEndpoint,
			"dst_ep":      m.ApsFrame.DestinationEndpoint,
			"lqi":         m.LastHopLQI,
			"rssi":        m.LastHopRSSI,
			"payload_hex": fmt.Sprintf("%X", m.Message),
		},
	})
}

// HandleMessageSent publishes the delivery result of a sent message.
func (dm *DeviceManager) HandleMessageSent(m ezsp.MessageSentHandler) {
	if !m.Status.Success() {
		dm.logger.Warn("message delivery failed", "dest", fmt.Sprintf("0x%04X", m.IndexOrDestination),
			"tag", m.MessageTag, "status", m.Status.String())
	}
	dm.coord.Events().Emit(Event{
		Type: EventMessageSent,
		Data: map[string]any{
			"destination": m.IndexOrDestination,
			"cluster_id":  m.ApsFrame.ClusterID,
			"tag":         m.MessageTag,
			"status":      m.Status.String(),
			"success":     m.Status.Success(),
		},
	})
}
