// Package metrics exposes NCP link and coordinator counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"zigbee-ncp-host/internal/ncp"
)

const namespace = "ncp"

// NewRegistry creates a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves reg in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// StatsFunc returns a snapshot of driver counters.
type StatsFunc func() ncp.Stats

// LinkCollector reads driver counters at scrape time, so the driver needs
// no Prometheus dependency.
type LinkCollector struct {
	stats StatsFunc

	framesSent     *prometheus.Desc
	framesReceived *prometheus.Desc
	naks           *prometheus.Desc
	retransmits    *prometheus.Desc
	frameErrors    *prometheus.Desc
	commands       *prometheus.Desc
	responses      *prometheus.Desc
	callbacks      *prometheus.Desc
	failures       *prometheus.Desc
	pending        *prometheus.Desc
	ready          *prometheus.Desc
	version        *prometheus.Desc
}

// NewLinkCollector creates a collector over stats.
func NewLinkCollector(stats StatsFunc) *LinkCollector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &LinkCollector{
		stats:          stats,
		framesSent:     desc("ash_frames_sent_total", "ASH frames written, by type.", "type"),
		framesReceived: desc("ash_frames_received_total", "ASH frames decoded, by type.", "type"),
		naks:           desc("ash_naks_total", "NAK frames, by direction.", "direction"),
		retransmits:    desc("ash_retransmits_total", "DATA frames sent again after NAK or timeout."),
		frameErrors:    desc("ash_frame_errors_total", "Received frames dropped or ignored, by reason.", "reason"),
		commands:       desc("ezsp_commands_total", "EZSP commands sent."),
		responses:      desc("ezsp_responses_total", "EZSP responses matched to a command."),
		callbacks:      desc("ezsp_callbacks_total", "EZSP callbacks dispatched."),
		failures:       desc("ezsp_failures_total", "Failed or lost command exchanges, by kind.", "kind"),
		pending:        desc("ezsp_pending_commands", "Commands awaiting a response."),
		ready:          desc("link_ready", "1 when the ASH link is connected."),
		version:        desc("ezsp_frame_format", "EZSP frame format in use (0 legacy, 1 extended)."),
	}
}

// Describe implements prometheus.Collector.
func (c *LinkCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.framesSent, c.framesReceived, c.naks, c.retransmits, c.frameErrors, c.commands,
		c.responses, c.callbacks, c.failures, c.pending, c.ready, c.version,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *LinkCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}

	counter(c.framesSent, s.DataOut, "data")
	counter(c.framesSent, s.FramesOut-s.DataOut, "other")
	counter(c.framesReceived, s.DataIn, "data")
	counter(c.framesReceived, s.FramesIn-s.DataIn, "other")
	counter(c.naks, s.NaksSent, "sent")
	counter(c.naks, s.NaksReceived, "received")
	counter(c.retransmits, s.Retransmits)
	counter(c.frameErrors, s.ChecksumErrors, "checksum")
	counter(c.frameErrors, s.DecodeErrors, "decode")
	counter(c.frameErrors, s.Cancelled, "cancelled")
	counter(c.frameErrors, s.Overflows, "overflow")
	counter(c.frameErrors, s.Duplicates, "duplicate")
	counter(c.commands, s.Commands)
	counter(c.responses, s.Responses)
	counter(c.callbacks, s.Callbacks)
	counter(c.failures, s.Timeouts, "timeout")
	counter(c.failures, s.StatusErrors, "status")
	counter(c.failures, s.Orphaned, "orphaned")
	counter(c.failures, s.Discarded, "discarded")
	counter(c.failures, s.Desyncs, "desync")
	counter(c.failures, s.LinkDowns, "link_down")
	gauge(c.pending, float64(s.Pending))
	ready := 0.0
	if s.Ready {
		ready = 1
	}
	gauge(c.ready, ready)
	gauge(c.version, float64(s.Version))
}

// EventMetrics counts coordinator events and tracks network size.
type EventMetrics struct {
	Events  *prometheus.CounterVec // labels: type
	Devices prometheus.Gauge
	Up      prometheus.Gauge
}

// NewEventMetrics registers and returns the event metrics.
func NewEventMetrics(reg *prometheus.Registry) *EventMetrics {
	m := &EventMetrics{
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Coordinator events emitted, by type.",
		}, []string{"type"}),
		Devices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "devices",
			Help:      "Devices currently known to the coordinator.",
		}),
		Up: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "network_up",
			Help:      "1 when the coordinator's network is up.",
		}),
	}
	reg.MustRegister(m.Events, m.Devices, m.Up)
	return m
}

// Observe counts one event of eventType.
func (m *EventMetrics) Observe(eventType string) {
	m.Events.WithLabelValues(eventType).Inc()
}
