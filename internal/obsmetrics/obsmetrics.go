// Package obsmetrics exposes run-level Prometheus counters and gauges
// for the crawl: pages fetched, outcome counts, hub detections, block
// trips, and live domain-gate occupancy.
package obsmetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the registered metric vectors for a single run.
type Collector struct {
	pagesFetchedTotal    prometheus.Counter
	fetchOutcomesTotal   *prometheus.CounterVec
	hubDetectionsTotal   prometheus.Counter
	blockTripsTotal       prometheus.Counter
	domainGateOccupancy  prometheus.Gauge
	fetchDurationSeconds prometheus.Histogram

	gatherer prometheus.Gatherer
}

// NewCollector builds a Collector registered against its own private
// registry, so concurrent test runs never collide with a global default.
func NewCollector(namespace string) *Collector {
	return NewCollectorWithRegistry(namespace, prometheus.NewRegistry())
}

// NewCollectorWithRegistry builds a Collector against the given registry.
func NewCollectorWithRegistry(namespace string, registerer prometheus.Registerer) *Collector {
	c := &Collector{}

	c.pagesFetchedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "crawl",
		Name:      "pages_fetched_total",
		Help:      "Total number of URLs driven to a final outcome.",
	})

	c.fetchOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "crawl",
		Name:      "fetch_outcomes_total",
		Help:      "Total fetch outcomes, labeled by result.",
	}, []string{"outcome"})

	c.hubDetectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "crawl",
		Name:      "hub_detections_total",
		Help:      "Total URLs whose result record had hubspotDetected=true.",
	})

	c.blockTripsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "crawl",
		Name:      "block_trips_total",
		Help:      "Total times the block detector classified the run as likely blocked.",
	})

	c.domainGateOccupancy = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "crawl",
		Name:      "domain_gate_occupancy",
		Help:      "Number of workers currently holding a domain-gate slot.",
	})

	c.fetchDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "crawl",
		Name:      "fetch_duration_seconds",
		Help:      "Observed fetch latency.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
	})

	registerer.MustRegister(
		c.pagesFetchedTotal,
		c.fetchOutcomesTotal,
		c.hubDetectionsTotal,
		c.blockTripsTotal,
		c.domainGateOccupancy,
		c.fetchDurationSeconds,
	)

	if g, ok := registerer.(prometheus.Gatherer); ok {
		c.gatherer = g
	} else {
		c.gatherer = prometheus.DefaultGatherer
	}

	return c
}

// Outcome labels a completed fetch attempt for the outcomes counter.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeBlocked Outcome = "blocked"
)

func (c *Collector) RecordFetch(outcome Outcome, durationSeconds float64) {
	c.pagesFetchedTotal.Inc()
	c.fetchOutcomesTotal.WithLabelValues(string(outcome)).Inc()
	c.fetchDurationSeconds.Observe(durationSeconds)
}

func (c *Collector) RecordHubDetection() {
	c.hubDetectionsTotal.Inc()
}

func (c *Collector) RecordBlockTrip() {
	c.blockTripsTotal.Inc()
}

func (c *Collector) SetDomainGateOccupancy(n int) {
	c.domainGateOccupancy.Set(float64(n))
}

// Handler returns an http.Handler exposing this Collector's metrics in
// the Prometheus exposition format, for wiring to --metrics-addr.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
