package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the acquisition engine.
type Metrics struct {
	registry *prometheus.Registry

	samplesTotal  prometheus.Counter
	dropouts      prometheus.Counter
	eventsTotal   *prometheus.CounterVec
	ringFill      prometheus.Gauge
	sessionActive prometheus.Gauge
	writeErrors   prometheus.Counter
	flushedRows   prometheus.Counter
	flushDuration prometheus.Histogram
}

// NewMetrics creates all collectors on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		samplesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "eeg_samples_total",
			Help: "Total samples received from the stream source",
		}),
		dropouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "eeg_dropouts_total",
			Help: "Discarded chunks and failed pulls (timeouts, channel mismatches, sequence gaps)",
		}),
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eeg_events_total",
			Help: "Extracted trigger events by label",
		}, []string{"label"}),
		ringFill: factory.NewGauge(prometheus.GaugeOpts{
			Name: "eeg_ring_buffer_samples",
			Help: "Current number of samples held in the ring buffer",
		}),
		sessionActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "eeg_session_active",
			Help: "1 while a recording session is active",
		}),
		writeErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "eeg_write_errors_total",
			Help: "Durable store write failures",
		}),
		flushedRows: factory.NewCounter(prometheus.CounterOpts{
			Name: "eeg_flushed_rows_total",
			Help: "CSV rows flushed to the session store",
		}),
		flushDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "eeg_flush_duration_seconds",
			Help:    "Wall-clock duration of periodic store flushes",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Registry exposes the underlying registry for the /metrics handler
// and the MQTT snapshot publisher.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
