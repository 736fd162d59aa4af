//go:build !no_mqtt

package mqtt

import (
	"fmt"
)

// discoveryMsg is a Home Assistant MQTT discovery payload.
type discoveryMsg struct {
	Topic   string // e.g. "homeassistant/sensor/ncp_host_00124b001234abcd/channel/config"
	Payload []byte // JSON, empty means delete
}

// haDevice is the "device" block in HA discovery.
type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name"`
}

// haDiscovery is a generic HA discovery payload.
type haDiscovery struct {
	Name              string   `json:"name"`
	UniqueID          string   `json:"unique_id"`
	StateTopic        string   `json:"state_topic,omitempty"`
	CommandTopic      string   `json:"command_topic,omitempty"`
	AvailabilityTopic string   `json:"availability_topic,omitempty"`
	ValueTemplate     string   `json:"value_template,omitempty"`
	UnitOfMeasurement string   `json:"unit_of_measurement,omitempty"`
	DeviceClass       string   `json:"device_class,omitempty"`
	StateClass        string   `json:"state_class,omitempty"`
	EntityCategory    string   `json:"entity_category,omitempty"`
	PayloadOn         string   `json:"payload_on,omitempty"`
	PayloadOff        string   `json:"payload_off,omitempty"`
	PayloadPress      string   `json:"payload_press,omitempty"`
	Device            haDevice `json:"device"`
}

type discoveryEntity struct {
	component string
	object    string
}

// coordinatorEntities lists every entity buildDiscovery publishes.
var coordinatorEntities = []discoveryEntity{
	{"binary_sensor", "connection_state"},
	{"sensor", "network_state"},
	{"sensor", "channel"},
	{"sensor", "devices"},
	{"button", "permit_join"},
}

// nodeIdentifier returns the unique identifier for HA device registry.
func nodeIdentifier(eui string) string {
	return "ncp_host_" + eui
}

// buildDiscovery generates HA discovery messages describing the coordinator
// itself: link state, network details and a permit join button.
func buildDiscovery(eui, prefix string) []discoveryMsg {
	nodeID := nodeIdentifier(eui)
	avail := prefix + "/bridge/state"
	info := prefix + "/bridge/info"
	haDev := haDevice{
		Identifiers:  []string{nodeID},
		Manufacturer: "Silicon Labs",
		Model:        "EmberZNet NCP",
		Name:         "Zigbee Coordinator " + eui,
	}

	topic := func(e discoveryEntity) string {
		return fmt.Sprintf("homeassistant/%s/%s/%s/config", e.component, nodeID, e.object)
	}
	entity := func(e discoveryEntity, name string) haDiscovery {
		return haDiscovery{
			Name:     name,
			UniqueID: nodeID + "_" + e.object,
			Device:   haDev,
		}
	}

	connection := entity(coordinatorEntities[0], "Connection State")
	connection.StateTopic = avail
	connection.DeviceClass = "connectivity"
	connection.EntityCategory = "diagnostic"
	connection.PayloadOn = "online"
	connection.PayloadOff = "offline"

	state := entity(coordinatorEntities[1], "Network State")
	state.StateTopic = info
	state.AvailabilityTopic = avail
	state.ValueTemplate = "{{ value_json.state }}"
	state.EntityCategory = "diagnostic"

	channel := entity(coordinatorEntities[2], "Channel")
	channel.StateTopic = info
	channel.AvailabilityTopic = avail
	channel.ValueTemplate = "{{ value_json.channel }}"
	channel.EntityCategory = "diagnostic"

	devices := entity(coordinatorEntities[3], "Devices")
	devices.StateTopic = prefix + "/bridge/devices"
	devices.AvailabilityTopic = avail
	devices.ValueTemplate = "{{ value_json | length }}"
	devices.StateClass = "measurement"

	permit := entity(coordinatorEntities[4], "Permit Join")
	permit.CommandTopic = prefix + "/bridge/request/permit_join"
	permit.AvailabilityTopic = avail
	permit.PayloadPress = `{"time": 254}`

	payloads := []haDiscovery{connection, state, channel, devices, permit}
	msgs := make([]discoveryMsg, len(payloads))
	for i, p := range payloads {
		msgs[i] = discoveryMsg{Topic: topic(coordinatorEntities[i]), Payload: mustJSON(p)}
	}
	return msgs
}

// buildRemoveDiscovery generates empty retained messages to remove the
// coordinator from HA.
func buildRemoveDiscovery(eui string) []discoveryMsg {
	nodeID := nodeIdentifier(eui)
	msgs := make([]discoveryMsg, 0, len(coordinatorEntities))
	for _, e := range coordinatorEntities {
		msgs = append(msgs, discoveryMsg{
			Topic:   fmt.Sprintf("homeassistant/%s/%s/%s/config", e.component, nodeID, e.object),
			Payload: nil,
		})
	}
	return msgs
}
