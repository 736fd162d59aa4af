//go:build !no_mqtt

package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"zigbee-ncp-host/internal/coordinator"
	"zigbee-ncp-host/internal/ezsp"
	"zigbee-ncp-host/internal/store"
)

// Config holds MQTT bridge configuration.
type Config struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
	ClientID    string
	Discovery   bool
}

// Backend is the coordinator surface the bridge needs.
type Backend interface {
	Context() context.Context
	Events() *coordinator.EventBus
	Store() store.Store
	NetworkInfo() map[string]any
	LocalEUI64() ezsp.EUI64
	PermitJoin(ctx context.Context, seconds uint8) error
}

// Bridge publishes coordinator events to MQTT and accepts bridge requests.
type Bridge struct {
	client    pahomqtt.Client
	backend   Backend
	prefix    string
	discovery bool
	logger    *slog.Logger
	unsub     func()
}

// NewBridge creates and connects an MQTT bridge.
func NewBridge(backend Backend, cfg Config, logger *slog.Logger) (*Bridge, error) {
	b := newBridge(nil, backend, cfg, logger)

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "ncp-host"
	}
	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(b.topic("bridge/state"), "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			b.logger.Info("MQTT connected")
			b.onConnect()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	b.client = client
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return b, nil
}

func newBridge(client pahomqtt.Client, backend Backend, cfg Config, logger *slog.Logger) *Bridge {
	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = "ncp-host"
	}
	return &Bridge{
		client:    client,
		backend:   backend,
		prefix:    prefix,
		discovery: cfg.Discovery,
		logger:    logger.With("component", "mqtt"),
	}
}

func (b *Bridge) topic(suffix string) string {
	return b.prefix + "/" + suffix
}

// onConnect runs on every (re)connect: state, info, discovery and
// subscriptions are all retained or session-bound, so they are redone.
func (b *Bridge) onConnect() {
	b.publishBridgeState("online")
	b.publishInfo()
	b.publishDevices()
	b.publishDiscovery()
	b.subscribeRequests()
}

// Start subscribes to coordinator events and begins MQTT publishing.
func (b *Bridge) Start() {
	b.unsub = b.backend.Events().OnAll(b.handleEvent)
	b.logger.Info("MQTT bridge started", "prefix", b.prefix)
}

// Stop publishes offline state, unsubscribes, and disconnects.
func (b *Bridge) Stop() {
	if b.unsub != nil {
		b.unsub()
	}
	b.publishBridgeState("offline")
	b.client.Disconnect(1000)
	b.logger.Info("MQTT bridge stopped")
}

func (b *Bridge) handleEvent(event coordinator.Event) {
	b.publish(b.topic("bridge/event"), mustJSON(event), false)

	switch event.Type {
	case coordinator.EventDeviceJoined, coordinator.EventDeviceLeft:
		b.publishDevices()
	case coordinator.EventNetworkState:
		b.publishInfo()
	}
}

func (b *Bridge) publishBridgeState(state string) {
	b.publish(b.topic("bridge/state"), []byte(state), true)
}

func (b *Bridge) publishInfo() {
	b.publish(b.topic("bridge/info"), mustJSON(b.backend.NetworkInfo()), true)
}

func (b *Bridge) publishDevices() {
	devices, err := b.backend.Store().ListDevices()
	if err != nil {
		b.logger.Error("list devices", "err", err)
		return
	}
	if devices == nil {
		devices = []*store.Device{}
	}
	b.publish(b.topic("bridge/devices"), mustJSON(devices), true)
}

// publishDiscovery announces the coordinator to Home Assistant, or clears
// a previous announcement when discovery is off.
func (b *Bridge) publishDiscovery() {
	eui := b.backend.LocalEUI64().String()
	if !b.discovery {
		for _, msg := range buildRemoveDiscovery(eui) {
			b.publish(msg.Topic, msg.Payload, true)
		}
		return
	}
	for _, msg := range buildDiscovery(eui, b.prefix) {
		b.publish(msg.Topic, msg.Payload, true)
	}
	b.logger.Info("published HA discovery", "eui64", eui)
}

func (b *Bridge) subscribeRequests() {
	topic := b.topic("bridge/request/permit_join")
	token := b.client.Subscribe(topic, 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		b.handlePermitJoin(msg.Payload())
	})
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			b.logger.Warn("MQTT subscribe timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			b.logger.Warn("MQTT subscribe error", "topic", topic, "err", err)
		}
	}()
}

type permitJoinRequest struct {
	Time  *int  `json:"time"`
	Value *bool `json:"value"`
}

type bridgeResponse struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// parsePermitJoin accepts {"time": N} with N in 0..254, {"value": bool},
// or a bare number.
func parsePermitJoin(payload []byte) (uint8, error) {
	var req permitJoinRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		var n int
		if err2 := json.Unmarshal(payload, &n); err2 != nil {
			return 0, fmt.Errorf("invalid permit_join request: %w", err)
		}
		req.Time = &n
	}
	switch {
	case req.Time != nil:
		if *req.Time < 0 || *req.Time > 254 {
			return 0, fmt.Errorf("permit_join time %d out of range 0..254", *req.Time)
		}
		return uint8(*req.Time), nil
	case req.Value != nil:
		if *req.Value {
			return 254, nil
		}
		return 0, nil
	}
	return 0, errors.New("permit_join request needs time or value")
}

func (b *Bridge) handlePermitJoin(payload []byte) {
	resp := bridgeResponse{Status: "ok"}
	seconds, err := parsePermitJoin(payload)
	if err == nil {
		ctx, cancel := context.WithTimeout(b.backend.Context(), 10*time.Second)
		err = b.backend.PermitJoin(ctx, seconds)
		cancel()
	}
	if err != nil {
		b.logger.Warn("permit_join request failed", "err", err)
		resp = bridgeResponse{Status: "error", Error: err.Error()}
	} else {
		resp.Data = map[string]any{"time": seconds}
	}
	b.publish(b.topic("bridge/response/permit_join"), mustJSON(resp), false)
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	token := b.client.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			b.logger.Warn("MQTT publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			b.logger.Warn("MQTT publish error", "topic", topic, "err", err)
		}
	}()
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
