package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bench-history/tracker/storage"
)

// Exporter exposes the latest run of every group as Prometheus gauges,
// along with the HTTP metrics of the API.
type Exporter struct {
	registry *prometheus.Registry

	benchValue   *prometheus.GaugeVec
	entriesTotal *prometheus.GaugeVec
	lastUpdate   prometheus.Gauge

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	AppendsTotal        *prometheus.CounterVec
	AlertsTotal         *prometheus.CounterVec
}

// NewExporter creates an exporter with its own registry
func NewExporter() *Exporter {
	e := &Exporter{registry: prometheus.NewRegistry()}

	e.benchValue = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bench_value",
			Help: "Value of each bench in the latest run of its group",
		},
		[]string{"group", "bench", "unit"},
	)
	e.entriesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bench_entries_total",
			Help: "Number of recorded runs per group",
		},
		[]string{"group"},
	)
	e.lastUpdate = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bench_last_update_timestamp_seconds",
			Help: "Time of the last data file update",
		},
	)
	e.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	e.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	e.AppendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bench_appends_total",
			Help: "Appends through the API by result",
		},
		[]string{"group", "result"},
	)
	e.AlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bench_alerts_total",
			Help: "Performance alerts raised by severity",
		},
		[]string{"group", "severity"},
	)

	e.registry.MustRegister(
		e.benchValue,
		e.entriesTotal,
		e.lastUpdate,
		e.HTTPRequestsTotal,
		e.HTTPRequestDuration,
		e.AppendsTotal,
		e.AlertsTotal,
	)
	return e
}

// Registry returns the underlying registry
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Refresh rebuilds the history gauges from the store
func (e *Exporter) Refresh(ctx context.Context, store storage.HistoryStore) error {
	data, err := store.Snapshot(ctx)
	if err != nil {
		return err
	}

	e.benchValue.Reset()
	e.entriesTotal.Reset()
	e.lastUpdate.Set(float64(data.LastUpdate) / 1000)

	for _, group := range data.Entries.Names() {
		entries := data.Entries.Get(group)
		e.entriesTotal.WithLabelValues(group).Set(float64(len(entries)))
		if len(entries) == 0 {
			continue
		}
		for _, b := range entries[len(entries)-1].Benches {
			e.benchValue.WithLabelValues(group, b.Name, b.Unit).Set(b.Value)
		}
	}
	return nil
}

// ObserveRequest records one served HTTP request
func (e *Exporter) ObserveRequest(method, path string, status int, elapsed time.Duration) {
	e.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	e.HTTPRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
