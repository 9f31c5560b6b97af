package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects and exposes metrics
type Collector struct {
	registry      *prometheus.Registry
	cyclesTotal   *prometheus.CounterVec
	messagesTotal *prometheus.CounterVec
	bytesTotal    prometheus.Counter
	duration      prometheus.Histogram
	lastCycle     prometheus.Gauge
}

// New creates a new metrics collector on its own registry
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		cyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queue2blob_cycles_total",
				Help: "Total number of poll cycles by outcome",
			},
			[]string{"outcome"},
		),
		messagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queue2blob_messages_total",
				Help: "Total number of queue messages by result",
			},
			[]string{"result"},
		),
		bytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "queue2blob_copied_bytes_total",
				Help: "Total bytes copied to the destination",
			},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "queue2blob_copy_duration_seconds",
				Help:    "Time from starting a copy to its completion",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 250, 500},
			},
		),
		lastCycle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "queue2blob_last_cycle_timestamp_seconds",
				Help: "Unix time the last poll cycle finished",
			},
		),
	}

	c.registry.MustRegister(c.cyclesTotal, c.messagesTotal, c.bytesTotal, c.duration, c.lastCycle)

	return c
}

// Message results
const (
	ResultTransferred = "transferred"
	ResultDiscarded   = "discarded"
	ResultSkipped     = "skipped"
	ResultRetained    = "retained"
	ResultMalformed   = "malformed"
)

// IncMessage increments the message counter for result
func (c *Collector) IncMessage(result string) {
	c.messagesTotal.WithLabelValues(result).Inc()
}

// ObserveCopy records a completed copy
func (c *Collector) ObserveCopy(bytes int64, duration time.Duration) {
	c.bytesTotal.Add(float64(bytes))
	c.duration.Observe(duration.Seconds())
}

// ObserveCycle records the end of a poll cycle
func (c *Collector) ObserveCycle(ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failed"
	}
	c.cyclesTotal.WithLabelValues(outcome).Inc()
	c.lastCycle.SetToCurrentTime()
}

// Handler returns the HTTP handler serving the collector's registry
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// StartServer starts the metrics HTTP server
func (c *Collector) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	return http.ListenAndServe(addr, mux)
}
