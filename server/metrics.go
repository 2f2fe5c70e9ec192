package server

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ncmfm/core/playback"
)

type Metrics struct {
	registry *prometheus.Registry

	ProbesTotal       *prometheus.CounterVec
	MaterializesTotal *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
	ProbeDuration     prometheus.Histogram
	ActiveStreams     prometheus.Gauge
	BytesStreamed     prometheus.Counter
	SeeksTotal        prometheus.Counter
}

// NewMetrics registers every collector on its own registry, so several
// servers can live in one process.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ProbesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ncmfm_probes_total",
				Help: "Total number of metadata probes",
			},
			[]string{"status"},
		),
		MaterializesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ncmfm_materializes_total",
				Help: "Total number of decoder pipelines started",
			},
			[]string{"kind"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ncmfm_errors_total",
				Help: "Total number of failed requests by error kind",
			},
			[]string{"endpoint", "kind"},
		),
		ProbeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ncmfm_probe_duration_seconds",
				Help:    "Time spent fetching metadata from the vendor",
				Buckets: prometheus.DefBuckets,
			},
		),
		ActiveStreams: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ncmfm_active_streams",
				Help: "Number of PCM streams currently served",
			},
		),
		BytesStreamed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ncmfm_pcm_bytes_total",
				Help: "PCM bytes written to clients",
			},
		),
		SeeksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ncmfm_seeks_total",
				Help: "Seek requests received over websocket",
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ProbesTotal,
		m.MaterializesTotal,
		m.ErrorsTotal,
		m.ProbeDuration,
		m.ActiveStreams,
		m.BytesStreamed,
		m.SeeksTotal,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// OnMaterialize counts started pipelines.
func (m *Metrics) OnMaterialize(_ context.Context, ev playback.Event) error {
	m.MaterializesTotal.WithLabelValues(ev.Ref.Kind.String()).Inc()
	return nil
}

var _ playback.Listener = (*Metrics)(nil)
