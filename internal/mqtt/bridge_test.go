//go:build !no_mqtt

package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"zigbee-ncp-host/internal/coordinator"
	"zigbee-ncp-host/internal/ezsp"
	"zigbee-ncp-host/internal/store"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type published struct {
	topic    string
	payload  []byte
	retained bool
}

// fakeClient records publishes and subscriptions in memory.
type fakeClient struct {
	mu       sync.Mutex
	messages []published
	handlers map[string]pahomqtt.MessageHandler
}

var _ pahomqtt.Client = (*fakeClient)(nil)

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: make(map[string]pahomqtt.MessageHandler)}
}

func (c *fakeClient) IsConnected() bool      { return true }
func (c *fakeClient) IsConnectionOpen() bool { return true }
func (c *fakeClient) Connect() pahomqtt.Token {
	return doneToken{}
}
func (c *fakeClient) Disconnect(uint) {}

func (c *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) pahomqtt.Token {
	var b []byte
	switch p := payload.(type) {
	case []byte:
		b = p
	case string:
		b = []byte(p)
	}
	c.mu.Lock()
	c.messages = append(c.messages, published{topic: topic, payload: b, retained: retained})
	c.mu.Unlock()
	return doneToken{}
}

func (c *fakeClient) Subscribe(topic string, _ byte, cb pahomqtt.MessageHandler) pahomqtt.Token {
	c.mu.Lock()
	c.handlers[topic] = cb
	c.mu.Unlock()
	return doneToken{}
}

func (c *fakeClient) SubscribeMultiple(filters map[string]byte, cb pahomqtt.MessageHandler) pahomqtt.Token {
	for topic := range filters {
		c.Subscribe(topic, 0, cb)
	}
	return doneToken{}
}

func (c *fakeClient) Unsubscribe(topics ...string) pahomqtt.Token {
	c.mu.Lock()
	for _, t := range topics {
		delete(c.handlers, t)
	}
	c.mu.Unlock()
	return doneToken{}
}

func (c *fakeClient) AddRoute(string, pahomqtt.MessageHandler) {}

func (c *fakeClient) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

// deliver hands payload to the handler subscribed on topic.
func (c *fakeClient) deliver(t *testing.T, topic string, payload []byte) {
	t.Helper()
	c.mu.Lock()
	h := c.handlers[topic]
	c.mu.Unlock()
	if h == nil {
		t.Fatalf("no subscription on %s", topic)
	}
	h(c, fakeMessage{topic: topic, payload: payload})
}

// last returns the most recent publish on topic.
func (c *fakeClient) last(topic string) (published, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].topic == topic {
			return c.messages[i], true
		}
	}
	return published{}, false
}

func (c *fakeClient) count(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.messages {
		if strings.HasPrefix(m.topic, prefix) {
			n++
		}
	}
	return n
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type fakeBackend struct {
	events    *coordinator.EventBus
	store     store.Store
	permitErr error
	permits   []uint8
}

func (f *fakeBackend) Context() context.Context      { return context.Background() }
func (f *fakeBackend) Events() *coordinator.EventBus { return f.events }
func (f *fakeBackend) Store() store.Store            { return f.store }
func (f *fakeBackend) LocalEUI64() ezsp.EUI64        { return ezsp.EUI64{0xCD, 0xAB, 0x34, 0x12, 0x00, 0x4B, 0x12, 0x00} }
func (f *fakeBackend) NetworkInfo() map[string]any   { return map[string]any{"state": "up", "channel": 15} }
func (f *fakeBackend) PermitJoin(_ context.Context, seconds uint8) error {
	f.permits = append(f.permits, seconds)
	return f.permitErr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestBridge(t *testing.T, discovery bool) (*Bridge, *fakeClient, *fakeBackend) {
	t.Helper()
	st, err := store.NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	backend := &fakeBackend{events: coordinator.NewEventBus(testLogger()), store: st}
	client := newFakeClient()
	b := newBridge(client, backend, Config{TopicPrefix: "zigbee", Discovery: discovery}, testLogger())
	return b, client, backend
}

func TestOnConnectPublishesBridgeTopics(t *testing.T) {
	b, client, _ := newTestBridge(t, true)
	b.onConnect()

	state, ok := client.last("zigbee/bridge/state")
	if !ok || string(state.payload) != "online" || !state.retained {
		t.Errorf("bridge/state: got %+v", state)
	}
	info, ok := client.last("zigbee/bridge/info")
	if !ok {
		t.Fatal("bridge/info not published")
	}
	var got map[string]any
	if err := json.Unmarshal(info.payload, &got); err != nil {
		t.Fatal(err)
	}
	if got["state"] != "up" {
		t.Errorf("info state: got %v", got["state"])
	}
	devices, ok := client.last("zigbee/bridge/devices")
	if !ok || string(devices.payload) != "[]" {
		t.Errorf("bridge/devices: got %q", devices.payload)
	}
	if n := client.count("homeassistant/"); n != len(coordinatorEntities) {
		t.Errorf("discovery messages: got %d, want %d", n, len(coordinatorEntities))
	}
}

func TestEventsArePublished(t *testing.T) {
	b, client, backend := newTestBridge(t, false)
	b.Start()
	defer b.Stop()

	if err := backend.store.SaveDevice(&store.Device{EUI64: "00158d00012a3b4c", NodeID: 0x1234}); err != nil {
		t.Fatal(err)
	}
	backend.events.Emit(coordinator.Event{
		Type: coordinator.EventDeviceJoined,
		Data: map[string]any{"eui64": "00158d00012a3b4c"},
	})

	ev, ok := client.last("zigbee/bridge/event")
	if !ok {
		t.Fatal("bridge/event not published")
	}
	if ev.retained {
		t.Error("events should not be retained")
	}
	var got coordinator.Event
	if err := json.Unmarshal(ev.payload, &got); err != nil {
		t.Fatal(err)
	}
	if got.Type != coordinator.EventDeviceJoined {
		t.Errorf("event type: got %q", got.Type)
	}
	devices, ok := client.last("zigbee/bridge/devices")
	if !ok || !strings.Contains(string(devices.payload), "00158d00012a3b4c") {
		t.Errorf("bridge/devices after join: got %q", devices.payload)
	}
}

func TestStopPublishesOffline(t *testing.T) {
	b, client, _ := newTestBridge(t, false)
	b.Start()
	b.Stop()
	state, ok := client.last("zigbee/bridge/state")
	if !ok || string(state.payload) != "offline" {
		t.Errorf("bridge/state after stop: got %q", state.payload)
	}
}

func TestPermitJoinRequest(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		backendErr error
		wantStatus string
		wantPermit []uint8
	}{
		{"time", `{"time": 120}`, nil, "ok", []uint8{120}},
		{"value true", `{"value": true}`, nil, "ok", []uint8{254}},
		{"value false", `{"value": false}`, nil, "ok", []uint8{0}},
		{"bare number", `60`, nil, "ok", []uint8{60}},
		{"out of range", `{"time": 300}`, nil, "error", nil},
		{"empty object", `{}`, nil, "error", nil},
		{"garbage", `permit`, nil, "error", nil},
		{"ncp failure", `{"time": 30}`, errors.New("ezsp permitJoining: status ERR_FATAL"), "error", []uint8{30}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, client, backend := newTestBridge(t, false)
			backend.permitErr = tt.backendErr
			b.subscribeRequests()
			client.deliver(t, "zigbee/bridge/request/permit_join", []byte(tt.payload))

			resp, ok := client.last("zigbee/bridge/response/permit_join")
			if !ok {
				t.Fatal("no response published")
			}
			var got bridgeResponse
			if err := json.Unmarshal(resp.payload, &got); err != nil {
				t.Fatal(err)
			}
			if got.Status != tt.wantStatus {
				t.Errorf("status: got %q, want %q (error %q)", got.Status, tt.wantStatus, got.Error)
			}
			if len(backend.permits) != len(tt.wantPermit) {
				t.Fatalf("permits: got %v, want %v", backend.permits, tt.wantPermit)
			}
			for i := range tt.wantPermit {
				if backend.permits[i] != tt.wantPermit[i] {
					t.Errorf("permit %d: got %d, want %d", i, backend.permits[i], tt.wantPermit[i])
				}
			}
		})
	}
}

func TestDiscoveryPayloads(t *testing.T) {
	msgs := buildDiscovery("00124b001234abcd", "zigbee")
	if len(msgs) != len(coordinatorEntities) {
		t.Fatalf("got %d messages, want %d", len(msgs), len(coordinatorEntities))
	}

	byTopic := make(map[string]haDiscovery)
	for _, m := range msgs {
		var p haDiscovery
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			t.Fatalf("unmarshal %s: %v", m.Topic, err)
		}
		byTopic[m.Topic] = p
	}

	conn, ok := byTopic["homeassistant/binary_sensor/ncp_host_00124b001234abcd/connection_state/config"]
	if !ok {
		t.Fatal("connection_state discovery missing")
	}
	if conn.StateTopic != "zigbee/bridge/state" || conn.PayloadOn != "online" {
		t.Errorf("connection_state: got %+v", conn)
	}
	if conn.UniqueID != "ncp_host_00124b001234abcd_connection_state" {
		t.Errorf("unique_id = %q", conn.UniqueID)
	}

	permit, ok := byTopic["homeassistant/button/ncp_host_00124b001234abcd/permit_join/config"]
	if !ok {
		t.Fatal("permit_join discovery missing")
	}
	if permit.CommandTopic != "zigbee/bridge/request/permit_join" {
		t.Errorf("command_topic = %q", permit.CommandTopic)
	}
	if seconds, err := parsePermitJoin([]byte(permit.PayloadPress)); err != nil || seconds != 254 {
		t.Errorf("payload_press parses to %d, %v", seconds, err)
	}

	channel := byTopic["homeassistant/sensor/ncp_host_00124b001234abcd/channel/config"]
	if channel.StateTopic != "zigbee/bridge/info" || channel.ValueTemplate != "{{ value_json.channel }}" {
		t.Errorf("channel: got %+v", channel)
	}
	for topic, p := range byTopic {
		if len(p.Device.Identifiers) != 1 || p.Device.Identifiers[0] != "ncp_host_00124b001234abcd" {
			t.Errorf("%s: device identifiers %v", topic, p.Device.Identifiers)
		}
	}
}

func TestRemoveDiscovery(t *testing.T) {
	msgs := buildRemoveDiscovery("00124b001234abcd")
	if len(msgs) != len(coordinatorEntities) {
		t.Fatalf("got %d messages, want %d", len(msgs), len(coordinatorEntities))
	}
	for _, m := range msgs {
		if m.Payload != nil {
			t.Errorf("%s: payload should be empty", m.Topic)
		}
		if !strings.HasPrefix(m.Topic, "homeassistant/") || !strings.HasSuffix(m.Topic, "/config") {
			t.Errorf("unexpected topic %s", m.Topic)
		}
	}
}

func TestDiscoveryDisabledClearsEntities(t *testing.T) {
	b, client, _ := newTestBridge(t, false)
	b.onConnect()
	msg, ok := client.last("homeassistant/button/ncp_host_00124b001234abcd/permit_join/config")
	if !ok {
		t.Fatal("no discovery clear published")
	}
	if len(msg.payload) != 0 || !msg.retained {
		t.Errorf("clear message: got %q retained=%v", msg.payload, msg.retained)
	}
}

func TestMustJSON(t *testing.T) {
	if got := string(mustJSON(map[string]int{"a": 1})); got != `{"a":1}` {
		t.Errorf("got %s", got)
	}
	if got := string(mustJSON(make(chan int))); got != "{}" {
		t.Errorf("unmarshalable value: got %s, want {}", got)
	}
}
