// Package metrics exposes synthesis and cache counters in the Prometheus
// text format.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/book-expert/kokoro-service/internal/core"
	"github.com/book-expert/kokoro-service/internal/tts/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kokoro"

// Request outcomes.
const (
	OutcomeOK         = "ok"
	OutcomeValidation = "validation_error"
	OutcomeError      = "error"
)

// Transports label where a synthesis request came from.
const (
	TransportHTTP = "http"
	TransportNATS = "nats"
)

// Collector owns a private registry with the service metrics.
type Collector struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// New creates a collector with Go runtime and process metrics registered.
func New() *Collector {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "synthesis_requests_total",
		Help:      "Synthesis requests by transport and outcome.",
	}, []string{"transport", "outcome"})

	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "synthesis_duration_seconds",
		Help:      "Wall time of successful synthesis requests, cache hits included.",
		Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"transport"})

	registry.MustRegister(
		requests,
		latency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Collector{registry: registry, requests: requests, latency: latency}
}

// RegisterCache exports the counters returned by stats on every scrape.
func (c *Collector) RegisterCache(stats func() cache.Stats) {
	counter := func(name, help string, value func(cache.Stats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(value(stats())) })
	}

	c.registry.MustRegister(
		counter("hits_total", "Synthesis cache hits.", func(s cache.Stats) uint64 { return s.Hits }),
		counter("misses_total", "Synthesis cache misses.", func(s cache.Stats) uint64 { return s.Misses }),
		counter("expired_total", "Entries dropped on lookup after their TTL.", func(s cache.Stats) uint64 { return s.Expired }),
		counter("evictions_total", "Entries evicted for capacity.", func(s cache.Stats) uint64 { return s.Evictions }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Entries currently held by the synthesis cache.",
		}, func() float64 { return float64(stats().Size) }),
	)
}

// Observe records one synthesis request.
func (c *Collector) Observe(transport string, err error, elapsed time.Duration) {
	c.requests.WithLabelValues(transport, Outcome(err)).Inc()

	if err == nil {
		c.latency.WithLabelValues(transport).Observe(elapsed.Seconds())
	}
}

// Handler serves the registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Outcome classifies err for the outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case core.IsKind(err, core.KindValidation):
		return OutcomeValidation
	default:
		return OutcomeError
	}
}

// Instrument wraps synthesizer so every call is observed under transport.
func (c *Collector) Instrument(synthesizer core.Synthesizer, transport string) core.Synthesizer {
	return &instrumented{next: synthesizer, collector: c, transport: transport}
}

type instrumented struct {
	next      core.Synthesizer
	collector *Collector
	transport string
}

func (i *instrumented) Synthesize(ctx context.Context, text, voice string, speed float32) ([]float32, error) {
	started := time.Now()
	waveform, err := i.next.Synthesize(ctx, text, voice, speed)
	i.collector.Observe(i.transport, err, time.Since(started))

	return waveform, err
}
