package promexporter

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker/v2"

	"github.com/pior/cmdmessenger/lighthub"
)

// HubCollector exposes lighthub.Stats as Prometheus metrics. Values are read
// from the hub at scrape time.
type HubCollector struct {
	stats func() lighthub.Stats

	sessions      *prometheus.Desc
	connected     *prometheus.Desc
	circuitState  *prometheus.Desc
	circuitCounts *prometheus.Desc
	bytesRead     *prometheus.Desc
	frames        *prometheus.Desc
	framesDropped *prometheus.Desc
	replies       *prometheus.Desc
	handlerErrors *prometheus.Desc
	lastFrame     *prometheus.Desc
}

var _ prometheus.Collector = (*HubCollector)(nil)

// NewHubCollector creates a collector reading stats on every scrape.
func NewHubCollector(stats func() lighthub.Stats) *HubCollector {
	return &HubCollector{
		stats: stats,
		sessions: prometheus.NewDesc(
			"lighthub_sessions_total",
			"Serial sessions opened and closed",
			[]string{"event"}, nil, // opened, closed
		),
		connected: prometheus.NewDesc(
			"lighthub_connected",
			"Whether the serial link is open (0 or 1)",
			nil, nil,
		),
		circuitState: prometheus.NewDesc(
			"lighthub_circuit_breaker_state",
			"Circuit breaker state (0=closed, 1=half-open, 2=open)",
			nil, nil,
		),
		circuitCounts: prometheus.NewDesc(
			"lighthub_circuit_breaker_requests",
			"Requests tracked by the circuit breaker",
			[]string{"result"}, // total, success, failure
			nil,
		),
		bytesRead: prometheus.NewDesc(
			"lighthub_link_bytes_read_total",
			"Bytes read from the open link",
			nil, nil,
		),
		frames: prometheus.NewDesc(
			"lighthub_link_frames_total",
			"Frames on the open link",
			[]string{"direction"}, nil, // sent, dispatched
		),
		framesDropped: prometheus.NewDesc(
			"lighthub_link_frames_dropped_total",
			"Inbound frames dropped on the open link",
			[]string{"reason"}, nil, // framing, unknown_command
		),
		replies: prometheus.NewDesc(
			"lighthub_link_acks_total",
			"Acknowledgment waits on the open link",
			[]string{"result"}, nil, // received, timeout
		),
		handlerErrors: prometheus.NewDesc(
			"lighthub_link_handler_errors_total",
			"Event handlers that failed on the open link",
			nil, nil,
		),
		lastFrame: prometheus.NewDesc(
			"lighthub_link_last_frame_timestamp_seconds",
			"Time of the last inbound frame",
			nil, nil,
		),
	}
}

func (c *HubCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.sessions
	ch <- c.connected
	ch <- c.circuitState
	ch <- c.circuitCounts
	ch <- c.bytesRead
	ch <- c.frames
	ch <- c.framesDropped
	ch <- c.replies
	ch <- c.handlerErrors
	ch <- c.lastFrame
}

func (c *HubCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.stats()
	link := st.Link

	counter := func(desc *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v), labels...)
	}
	gauge := func(desc *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, v, labels...)
	}

	counter(c.sessions, st.SessionsOpened, "opened")
	counter(c.sessions, st.SessionsClosed, "closed")

	connected := 0.0
	if st.Connected {
		connected = 1
	}
	gauge(c.connected, connected)

	gauge(c.circuitState, circuitStateValue(st.BreakerState))
	gauge(c.circuitCounts, float64(st.BreakerCounts.Requests), "total")
	gauge(c.circuitCounts, float64(st.BreakerCounts.TotalSuccesses), "success")
	gauge(c.circuitCounts, float64(st.BreakerCounts.TotalFailures), "failure")

	counter(c.bytesRead, link.BytesRead)
	counter(c.frames, link.FramesSent, "sent")
	counter(c.frames, link.FramesDispatched, "dispatched")
	counter(c.framesDropped, link.FramingErrors, "framing")
	counter(c.framesDropped, link.UnknownCommands, "unknown_command")
	counter(c.replies, link.RepliesReceived, "received")
	counter(c.replies, link.ReplyTimeouts, "timeout")
	counter(c.handlerErrors, link.HandlerErrors)

	if !link.LastFrameAt.IsZero() {
		gauge(c.lastFrame, float64(link.LastFrameAt.UnixNano())/1e9)
	}
}

func circuitStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Exporter manages Prometheus metrics export
type Exporter struct {
	registry *prometheus.Registry
}

// NewExporter creates an exporter for hub.
func NewExporter(hub *lighthub.Hub) *Exporter {
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewHubCollector(hub.Stats))
	return &Exporter{registry: registry}
}

// Handler returns an HTTP handler for the /metrics endpoint
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Server returns an HTTP server serving /metrics on addr.
func (e *Exporter) Server(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	return &http.Server{Addr: addr, Handler: mux}
}
