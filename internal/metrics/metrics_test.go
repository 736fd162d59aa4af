package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"zigbee-ncp-host/internal/ash"
	"zigbee-ncp-host/internal/ezsp"
	"zigbee-ncp-host/internal/ncp"
)

// gatherValue returns the value of the sample of family name whose labels
// include label=value, or of its only sample when label is empty.
func gatherValue(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			match := label == ""
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					match = true
				}
			}
			if !match {
				continue
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	t.Fatalf("no sample %s{%s=%q}", name, label, value)
	return 0
}

func TestLinkCollector(t *testing.T) {
	stats := ncp.Stats{
		Stats: ash.Stats{
			FramesIn:       12,
			FramesOut:      15,
			DataIn:         9,
			DataOut:        10,
			ChecksumErrors: 2,
			Retransmits:    3,
			NaksReceived:   1,
		},
		Commands:  10,
		Responses: 9,
		Timeouts:  1,
		Pending:   2,
		Ready:     true,
		Version:   ezsp.Version1,
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewLinkCollector(func() ncp.Stats { return stats }))

	tests := []struct {
		name, label, value string
		want               float64
	}{
		{"ncp_ash_frames_sent_total", "type", "data", 10},
		{"ncp_ash_frames_sent_total", "type", "other", 5},
		{"ncp_ash_frames_received_total", "type", "other", 3},
		{"ncp_ash_frame_errors_total", "reason", "checksum", 2},
		{"ncp_ash_naks_total", "direction", "received", 1},
		{"ncp_ash_retransmits_total", "", "", 3},
		{"ncp_ezsp_commands_total", "", "", 10},
		{"ncp_ezsp_failures_total", "kind", "timeout", 1},
		{"ncp_ezsp_pending_commands", "", "", 2},
		{"ncp_link_ready", "", "", 1},
		{"ncp_ezsp_frame_format", "", "", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.value, func(t *testing.T) {
			if got := gatherValue(t, reg, tt.name, tt.label, tt.value); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEventMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewEventMetrics(reg)
	m.Observe("device_joined")
	m.Observe("device_joined")
	m.Observe("link_down")
	m.Devices.Set(4)

	if got := gatherValue(t, reg, "ncp_events_total", "type", "device_joined"); got != 2 {
		t.Errorf("device_joined: got %v, want 2", got)
	}
	if got := gatherValue(t, reg, "ncp_events_total", "type", "link_down"); got != 1 {
		t.Errorf("link_down: got %v, want 1", got)
	}
	if got := gatherValue(t, reg, "ncp_devices", "", ""); got != 4 {
		t.Errorf("devices: got %v, want 4", got)
	}
}

func TestHandler(t *testing.T) {
	reg := NewRegistry()
	NewEventMetrics(reg).Observe("permit_join")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{`ncp_events_total{type="permit_join"} 1`, "go_goroutines"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
}
