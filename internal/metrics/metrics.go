// metrics.go — Prometheus instrumentation for ingestion, merging and push.
// Every Metrics owns a private registry; methods are nil-safe so components
// can run uninstrumented in tests.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons.
const (
	DropRateLimited    = "rate_limited"
	DropTabRejected    = "tab_rejected"
	DropTabGone        = "tab_gone"
	DropMalformed      = "malformed"
	DropPendingTTL     = "pending_ttl"
	DropPendingEvict   = "pending_evicted"
	DropInstrumentGate = "instrumentation_gate"
	DropPanic          = "panic"
)

// Metrics holds all collectors.
type Metrics struct {
	reg *prometheus.Registry

	EventsIngested *prometheus.CounterVec
	Dropped        *prometheus.CounterVec
	Merges         *prometheus.CounterVec
	PushMessages   *prometheus.CounterVec
	HTTPRequests   *prometheus.CounterVec

	TrackedTabs    prometheus.Gauge
	PendingEntries prometheus.Gauge
	OpenSurfaces   prometheus.Gauge
}

// New creates a collector set on a fresh registry, including Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		EventsIngested: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "psat_events_ingested_total",
				Help: "Browser events accepted for processing, by kind",
			},
			[]string{"kind"},
		),
		Dropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "psat_events_dropped_total",
				Help: "Events or items dropped before aggregation, by reason",
			},
			[]string{"reason"},
		),
		Merges: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "psat_store_merges_total",
				Help: "Observations merged into an aggregation store",
			},
			[]string{"store"},
		),
		PushMessages: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "psat_push_messages_total",
				Help: "Messages pushed to UI surfaces",
			},
			[]string{"type", "result"},
		),
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "psat_http_requests_total",
				Help: "HTTP requests served",
			},
			[]string{"method", "route", "status"},
		),
		TrackedTabs: f.NewGauge(prometheus.GaugeOpts{
			Name: "psat_tracked_tabs",
			Help: "Tabs with allocated state",
		}),
		PendingEntries: f.NewGauge(prometheus.GaugeOpts{
			Name: "psat_pending_entries",
			Help: "Half-complete events waiting for their complement",
		}),
		OpenSurfaces: f.NewGauge(prometheus.GaugeOpts{
			Name: "psat_open_surfaces",
			Help: "UI surfaces currently open",
		}),
	}
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) Ingested(kind string) {
	if m == nil {
		return
	}
	m.EventsIngested.WithLabelValues(kind).Inc()
}

func (m *Metrics) Drop(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Dropped.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) Merged(store string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Merges.WithLabelValues(store).Add(float64(n))
}

func (m *Metrics) Pushed(msgType string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.PushMessages.WithLabelValues(msgType, result).Inc()
}

func (m *Metrics) Served(method, route string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

func (m *Metrics) SetTabs(n int) {
	if m == nil {
		return
	}
	m.TrackedTabs.Set(float64(n))
}

func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.PendingEntries.Set(float64(n))
}

func (m *Metrics) SetSurfaces(n int) {
	if m == nil {
		return
	}
	m.OpenSurfaces.Set(float64(n))
}
