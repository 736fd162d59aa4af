package coordinator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"zigbee-ncp-host/internal/ezsp"
	"zigbee-ncp-host/internal/ncp"
	"zigbee-ncp-host/internal/store"
)

const (
	defaultProtocolVersion  = 13
	defaultNetworkUpTimeout = 10 * time.Second
	eventQueueSize          = 64
)

// Config holds the network the coordinator forms or resumes, and the stack
// settings applied on every start.
type Config struct {
	Channel          uint8
	PanID            uint16
	ExtPanID         ezsp.EUI64
	TxPower          int8
	NetworkKey       *ezsp.Key // nil picks a random key when forming
	ProtocolVersion  uint8
	ManufacturerCode uint16
	StackConfig      map[ezsp.ConfigID]uint16
	Policies         map[ezsp.PolicyID]ezsp.DecisionID
	NetworkUpTimeout time.Duration
}

// NCPConfig holds serial port settings for display purposes.
type NCPConfig struct {
	Port string
	Baud int
}

// Network states reported by EventNetworkState and NetworkInfo.
const (
	StateStarting = "starting"
	StateUp       = "up"
	StateDown     = "down"
)

// Coordinator brings the NCP up as the network coordinator and turns its
// callbacks into events.
type Coordinator struct {
	ncp       ncp.NCP
	store     store.Store
	events    *EventBus
	devices   *DeviceManager
	logger    *slog.Logger
	config    Config
	ncpConfig NCPConfig

	statusCh chan ezsp.EmberStatus
	queue    chan func()
	loopDone chan struct{}

	mu       sync.RWMutex
	state    string
	localEUI ezsp.EUI64
	nodeID   uint16
	ncpInfo  *store.NCPInfo

	startMu     sync.Mutex
	recovering  atomic.Bool
	messageTags atomic.Uint32

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Coordinator and registers its driver callbacks.
func New(backend ncp.NCP, st store.Store, events *EventBus, cfg Config, ncpCfg NCPConfig, logger *slog.Logger) *Coordinator {
	if cfg.ProtocolVersion == 0 {
		cfg.ProtocolVersion = defaultProtocolVersion
	}
	if cfg.NetworkUpTimeout <= 0 {
		cfg.NetworkUpTimeout = defaultNetworkUpTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		ncp:       backend,
		store:     st,
		events:    events,
		logger:    logger,
		config:    cfg,
		ncpConfig: ncpCfg,
		statusCh:  make(chan ezsp.EmberStatus, 16),
		queue:     make(chan func(), eventQueueSize),
		loopDone:  make(chan struct{}),
		state:     StateDown,
		ctx:       ctx,
		cancel:    cancel,
	}
	c.devices = NewDeviceManager(c)
	c.devices.RebuildAddrIndex()
	go c.eventLoop()
	c.registerCallbacks()
	return c
}

// Context returns the coordinator's context, which is cancelled on Stop.
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// eventLoop runs callback handling off the driver's read path, so event
// handlers may issue NCP commands.
func (c *Coordinator) eventLoop() {
	defer close(c.loopDone)
	for {
		select {
		case fn := <-c.queue:
			fn()
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Coordinator) post(fn func()) {
	select {
	case c.queue <- fn:
	case <-c.ctx.Done():
	}
}

func (c *Coordinator) registerCallbacks() {
	c.ncp.OnStackStatus(func(s ezsp.StackStatusHandler) {
		select {
		case c.statusCh <- s.Status:
		default:
		}
		c.post(func() {
			c.events.Emit(Event{Type: EventStackStatus, Data: map[string]any{"status": s.Status.String()}})
		})
	})
	c.ncp.OnTrustCenterJoin(func(j ezsp.TrustCenterJoinHandler) {
		c.post(func() { c.devices.HandleTrustCenterJoin(j) })
	})
	c.ncp.OnIncomingMessage(func(m ezsp.IncomingMessageHandler) {
		c.post(func() { c.devices.HandleIncomingMessage(m) })
	})
	c.ncp.OnMessageSent(func(m ezsp.MessageSentHandler) {
		c.post(func() { c.devices.HandleMessageSent(m) })
	})
	c.ncp.OnLinkDown(func(err error) {
		c.post(func() { c.handleLinkDown(err) })
	})
}

// Start resets the NCP, configures the stack and resumes the stored
// network, forming a new one when there is nothing to resume.
func (c *Coordinator) Start(ctx context.Context) error {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.setState(StateStarting)
	c.logger.Info("initializing NCP...")

	if err := c.ncp.Reset(ctx); err != nil {
		c.setState(StateDown)
		return fmt.Errorf("ncp reset: %w", err)
	}
	if err := c.negotiateVersion(ctx); err != nil {
		c.setState(StateDown)
		return err
	}
	if err := c.configureStack(ctx); err != nil {
		c.setState(StateDown)
		return err
	}

	resumed, err := c.resumeNetwork(ctx)
	if err != nil {
		c.setState(StateDown)
		return err
	}
	if !resumed {
		if err := c.formNetwork(ctx); err != nil {
			c.setState(StateDown)
			return err
		}
	}

	c.cacheIdentity(ctx)
	c.setState(StateUp)
	c.logger.Info("network up",
		"resumed", resumed,
		"channel", c.config.Channel,
		"panID", fmt.Sprintf("0x%04X", c.config.PanID),
		"extPanID", c.config.ExtPanID.String())
	return nil
}

func (c *Coordinator) negotiateVersion(ctx context.Context) error {
	desired := c.config.ProtocolVersion
	v, err := c.ncp.QueryVersion(ctx, desired)
	if err != nil {
		return fmt.Errorf("query version: %w", err)
	}
	if v.ProtocolVersion != desired {
		c.logger.Warn("NCP speaks a different protocol version, renegotiating", "want", desired, "got", v.ProtocolVersion)
		if v, err = c.ncp.QueryVersion(ctx, v.ProtocolVersion); err != nil {
			return fmt.Errorf("query version %d: %w", desired, err)
		}
	}
	c.logger.Info("NCP version", "protocol", v.ProtocolVersion, "stack", v.StackVersionString())
	return nil
}

// configureStack applies config values and policies in id order, then
// registers the coordinator endpoint and enables source routing.
func (c *Coordinator) configureStack(ctx context.Context) error {
	configIDs := make([]ezsp.ConfigID, 0, len(c.config.StackConfig))
	for id := range c.config.StackConfig {
		configIDs = append(configIDs, id)
	}
	sort.Slice(configIDs, func(i, j int) bool { return configIDs[i] < configIDs[j] })
	for _, id := range configIDs {
		if err := c.ncp.SetConfigurationValue(ctx, id, c.config.StackConfig[id]); err != nil {
			// The NCP refuses values it cannot honour; keep going with its default.
			c.logger.Warn("set config value", "id", id.String(), "value", c.config.StackConfig[id], "err", err)
		}
	}

	policyIDs := make([]ezsp.PolicyID, 0, len(c.config.Policies))
	for id := range c.config.Policies {
		policyIDs = append(policyIDs, id)
	}
	sort.Slice(policyIDs, func(i, j int) bool { return policyIDs[i] < policyIDs[j] })
	for _, id := range policyIDs {
		if err := c.ncp.SetPolicy(ctx, id, c.config.Policies[id]); err != nil {
			return fmt.Errorf("set policy %s: %w", id, err)
		}
	}

	if c.config.ManufacturerCode != 0 {
		if err := c.ncp.SetManufacturerCode(ctx, c.config.ManufacturerCode); err != nil {
			return fmt.Errorf("set manufacturer code: %w", err)
		}
	}
	if err := c.ncp.AddEndpoint(ctx, coordinatorEndpoint); err != nil {
		return fmt.Errorf("add endpoint: %w", err)
	}
	if err := c.ncp.SetConcentrator(ctx, concentrator); err != nil {
		return fmt.Errorf("set concentrator: %w", err)
	}
	return nil
}

var coordinatorEndpoint = ezsp.AddEndpointRequest{
	Endpoint:       1,
	ProfileID:      0x0104,
	DeviceID:       0x0005,
	InputClusters:  []uint16{0x0000, 0x0003, 0x0006, 0x000A, 0x0019},
	OutputClusters: []uint16{0x0000, 0x0003, 0x0004, 0x0005, 0x0006, 0x0008, 0x0019, 0x0300},
}

var concentrator = ezsp.SetConcentratorRequest{
	On:                       true,
	ConcentratorType:         ezsp.ConcentratorHighRAM,
	MinTime:                  10,
	MaxTime:                  90,
	RouteErrorThreshold:      4,
	DeliveryFailureThreshold: 3,
}

// resumeNetwork restores the network from NCP tokens. It reports false
// when there is none, or when the one found does not match the
// configuration, in which case it has already been left.
func (c *Coordinator) resumeNetwork(ctx context.Context) (bool, error) {
	c.drainStatus()
	err := c.ncp.NetworkInit(ctx)
	if ncp.IsStatus(err, uint8(ezsp.EmberNotJoined)) {
		c.logger.Info("no network stored on NCP")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("network init: %w", err)
	}
	if err := c.waitStatus(ctx, ezsp.EmberNetworkUp); err != nil {
		return false, fmt.Errorf("network init: %w", err)
	}

	_, params, err := c.ncp.GetNetworkParameters(ctx)
	if err != nil {
		return false, fmt.Errorf("get network parameters: %w", err)
	}
	if c.matches(params) {
		c.recordResumedNetwork()
		c.logger.Info("resumed existing network")
		return true, nil
	}

	c.logger.Warn("NCP network differs from configuration, leaving",
		"channel", params.RadioChannel,
		"panID", fmt.Sprintf("0x%04X", params.PanID),
		"extPanID", params.ExtendedPanID.String())
	c.drainStatus()
	if err := c.ncp.LeaveNetwork(ctx); err != nil {
		return false, fmt.Errorf("leave network: %w", err)
	}
	if err := c.waitStatus(ctx, ezsp.EmberNetworkDown); err != nil {
		return false, fmt.Errorf("leave network: %w", err)
	}
	return false, nil
}

func (c *Coordinator) formNetwork(ctx context.Context) error {
	key, err := c.networkKey()
	if err != nil {
		return err
	}
	security := ezsp.InitialSecurityState{
		Bitmask: ezsp.TrustCenterGlobalLinkKey | ezsp.HavePreconfiguredKey |
			ezsp.HaveNetworkKey | ezsp.RequireEncryptedKey,
		PreconfiguredKey: ezsp.WellKnownLinkKey,
		NetworkKey:       key,
	}
	if err := c.ncp.SetInitialSecurityState(ctx, security); err != nil {
		return fmt.Errorf("set initial security state: %w", err)
	}

	params := ezsp.NetworkParameters{
		ExtendedPanID: c.config.ExtPanID,
		PanID:         c.config.PanID,
		RadioTxPower:  c.config.TxPower,
		RadioChannel:  c.config.Channel,
		JoinMethod:    ezsp.JoinMacAssociation,
		Channels:      1 << c.config.Channel,
	}
	c.logger.Info("forming new network", "channel", params.RadioChannel, "panID", fmt.Sprintf("0x%04X", params.PanID))
	c.drainStatus()
	if err := c.ncp.FormNetwork(ctx, params); err != nil {
		return fmt.Errorf("form network: %w", err)
	}
	if err := c.waitStatus(ctx, ezsp.EmberNetworkUp); err != nil {
		return fmt.Errorf("form network: %w", err)
	}

	if err := c.store.SaveNetworkState(&store.NetworkState{
		Channel:    c.config.Channel,
		PanID:      c.config.PanID,
		ExtPanID:   c.config.ExtPanID.String(),
		TxPower:    c.config.TxPower,
		NetworkKey: hex.EncodeToString(key[:]),
		Formed:     true,
	}); err != nil {
		c.logger.Error("save network state", "err", err)
	}
	return nil
}

// ParseNetworkKey parses a 128-bit key written as 32 hex digits, with
// optional ':' separators.
func ParseNetworkKey(s string) (ezsp.Key, error) {
	var key ezsp.Key
	raw, err := hex.DecodeString(strings.ReplaceAll(s, ":", ""))
	if err != nil {
		return key, fmt.Errorf("invalid network key: %w", err)
	}
	if len(raw) != len(key) {
		return key, fmt.Errorf("invalid network key: %d bytes, want %d", len(raw), len(key))
	}
	copy(key[:], raw)
	return key, nil
}

func (c *Coordinator) networkKey() (ezsp.Key, error) {
	if c.config.NetworkKey != nil {
		return *c.config.NetworkKey, nil
	}
	var key ezsp.Key
	if _, err := rand.Read(key[:]); err != nil {
		return key, fmt.Errorf("generate network key: %w", err)
	}
	return key, nil
}

func (c *Coordinator) matches(p ezsp.NetworkParameters) bool {
	return p.RadioChannel == c.config.Channel &&
		p.PanID == c.config.PanID &&
		p.ExtendedPanID == c.config.ExtPanID
}

// recordResumedNetwork backfills the store when the NCP holds a network the
// store has no record of. The key stays on the NCP.
func (c *Coordinator) recordResumedNetwork() {
	if ns, err := c.store.GetNetworkState(); err == nil && ns.Formed {
		return
	}
	if err := c.store.SaveNetworkState(&store.NetworkState{
		Channel:  c.config.Channel,
		PanID:    c.config.PanID,
		ExtPanID: c.config.ExtPanID.String(),
		TxPower:  c.config.TxPower,
		Formed:   true,
	}); err != nil {
		c.logger.Error("save network state", "err", err)
	}
}

func (c *Coordinator) drainStatus() {
	for {
		select {
		case <-c.statusCh:
		default:
			return
		}
	}
}

// waitStatus waits for a stack status callback reporting want.
func (c *Coordinator) waitStatus(ctx context.Context, want ezsp.EmberStatus) error {
	timer := time.NewTimer(c.config.NetworkUpTimeout)
	defer timer.Stop()
	for {
		select {
		case s := <-c.statusCh:
			if s == want {
				return nil
			}
			c.logger.Debug("stack status while waiting", "got", s.String(), "want", want.String())
		case <-timer.C:
			return fmt.Errorf("no %s stack status within %s", want, c.config.NetworkUpTimeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Coordinator) cacheIdentity(ctx context.Context) {
	eui, err := c.ncp.GetEUI64(ctx)
	if err != nil {
		c.logger.Warn("get coordinator EUI64", "err", err)
	}
	nodeID, err := c.ncp.GetNodeID(ctx)
	if err != nil {
		c.logger.Warn("get coordinator node id", "err", err)
	}
	info := c.ncp.Info()
	rec := &store.NCPInfo{
		EUI64:           eui.String(),
		NodeID:          nodeID,
		ProtocolVersion: info.ProtocolVersion,
		StackType:       info.StackType,
		StackVersion:    info.StackVersion,
		ResetCode:       info.ResetCode.String(),
		UpdatedAt:       time.Now(),
	}
	if err := c.store.SaveNCPInfo(rec); err != nil {
		c.logger.Error("save ncp info", "err", err)
	}

	c.mu.Lock()
	c.localEUI = eui
	c.nodeID = nodeID
	c.ncpInfo = rec
	c.mu.Unlock()
	c.logger.Info("coordinator identity", "eui64", eui.String(), "node", fmt.Sprintf("0x%04X", nodeID))
}

func (c *Coordinator) setState(state string) {
	c.mu.Lock()
	changed := c.state != state
	c.state = state
	c.mu.Unlock()
	if changed {
		c.events.Emit(Event{Type: EventNetworkState, Data: state})
	}
}

// State returns StateStarting, StateUp or StateDown.
func (c *Coordinator) State() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// handleLinkDown reports the failure and restarts the NCP in the
// background until it comes back or the coordinator stops.
func (c *Coordinator) handleLinkDown(cause error) {
	c.logger.Error("NCP link down", "err", cause)
	c.events.Emit(Event{Type: EventLinkDown, Data: map[string]any{"error": cause.Error()}})
	c.setState(StateDown)

	if !c.recovering.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer c.recovering.Store(false)
		c.recover()
	}()
}

func (c *Coordinator) recover() {
	backoff := time.Second
	const maxBackoff = time.Minute
	for {
		select {
		case <-time.After(backoff):
		case <-c.ctx.Done():
			return
		}
		err := c.Start(c.ctx)
		if err == nil {
			c.logger.Info("NCP recovered")
			return
		}
		if errors.Is(err, ncp.ErrClosed) || c.ctx.Err() != nil {
			return
		}
		c.logger.Warn("NCP restart failed", "err", err, "retry_in", backoff)
		if backoff < maxBackoff {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

// Stop cancels background work and the event loop.
func (c *Coordinator) Stop() {
	c.cancel()
	<-c.loopDone
}

// PermitJoin opens the network for joining for seconds; 0 closes it.
func (c *Coordinator) PermitJoin(ctx context.Context, seconds uint8) error {
	if err := c.ncp.PermitJoining(ctx, seconds); err != nil {
		return fmt.Errorf("permit join: %w", err)
	}
	c.logger.Info("permit join", "duration", seconds)
	c.events.Emit(Event{Type: EventPermitJoin, Data: map[string]any{"duration": seconds}})
	return nil
}

// LeaveNetwork takes the coordinator off its network and forgets it, so the
// next Start forms a new one.
func (c *Coordinator) LeaveNetwork(ctx context.Context) error {
	c.drainStatus()
	if err := c.ncp.LeaveNetwork(ctx); err != nil {
		return fmt.Errorf("leave network: %w", err)
	}
	if err := c.waitStatus(ctx, ezsp.EmberNetworkDown); err != nil {
		return fmt.Errorf("leave network: %w", err)
	}
	if ns, err := c.store.GetNetworkState(); err == nil {
		ns.Formed = false
		if err := c.store.SaveNetworkState(ns); err != nil {
			c.logger.Error("save network state", "err", err)
		}
	}
	c.setState(StateDown)
	return nil
}

// SendUnicast sends an APS payload to nodeID and returns the message tag
// that the matching message_sent event will carry.
func (c *Coordinator) SendUnicast(ctx context.Context, nodeID uint16, aps ezsp.ApsFrame, payload []byte) (uint8, error) {
	tag := uint8(c.messageTags.Add(1))
	if aps.Options == 0 {
		aps.Options = ezsp.ApsOptionRetry | ezsp.ApsOptionEnableRouteDiscovery
	}
	req := ezsp.SendUnicastRequest{
		Type:               ezsp.OutgoingDirect,
		IndexOrDestination: nodeID,
		ApsFrame:           aps,
		MessageTag:         tag,
		Message:            payload,
	}
	if _, err := c.ncp.SendUnicast(ctx, req); err != nil {
		return 0, fmt.Errorf("send unicast to 0x%04X: %w", nodeID, err)
	}
	return tag, nil
}

// NetworkInfo returns the current network and NCP details.
func (c *Coordinator) NetworkInfo() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info := map[string]any{
		"state":            c.state,
		"channel":          c.config.Channel,
		"pan_id":           fmt.Sprintf("0x%04X", c.config.PanID),
		"ext_pan_id":       c.config.ExtPanID.String(),
		"tx_power":         c.config.TxPower,
		"port":             c.ncpConfig.Port,
		"baud":             c.ncpConfig.Baud,
		"coordinator_eui":  c.localEUI.String(),
		"coordinator_node": fmt.Sprintf("0x%04X", c.nodeID),
	}
	if c.ncpInfo != nil {
		info["stack_version"] = c.ncpInfo.StackVersion
		info["protocol_version"] = c.ncpInfo.ProtocolVersion
		info["stack_type"] = c.ncpInfo.StackType
	}
	return info
}

// LocalEUI64 returns the coordinator's own EUI64, known after Start.
func (c *Coordinator) LocalEUI64() ezsp.EUI64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.localEUI
}

// NCP returns the underlying driver.
func (c *Coordinator) NCP() ncp.NCP {
	return c.ncp
}

// Store returns the store.
func (c *Coordinator) Store() store.Store {
	return c.store
}

// Events returns the event bus.
func (c *Coordinator) Events() *EventBus {
	return c.events
}

// Devices returns the device manager.
func (c *Coordinator) Devices() *DeviceManager {
	return c.devices
}

// RemoveDevice forgets a device; see DeviceManager.RemoveDevice.
func (c *Coordinator) RemoveDevice(eui string) error {
	return c.devices.RemoveDevice(eui)
}

// Stats returns the driver's link and command counters.
func (c *Coordinator) Stats() ncp.Stats {
	return c.ncp.Stats()
}
