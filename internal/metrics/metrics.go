// Package metrics exposes process-level gauges for scraping by Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ActiveCallsProvider exposes the number of active voice-bridge calls.
type ActiveCallsProvider interface {
	ActiveCalls() int
}

// Collector is a prometheus.Collector that gathers concierge metrics at
// scrape time.
type Collector struct {
	activeCalls ActiveCallsProvider
	startTime   time.Time

	activeCallsDesc *prometheus.Desc
	uptimeDesc      *prometheus.Desc
}

// NewCollector creates a new metrics collector. activeCalls may be nil if
// unavailable (e.g. a process that only runs the HTTP surface).
func NewCollector(activeCalls ActiveCallsProvider, startTime time.Time) *Collector {
	return &Collector{
		activeCalls: activeCalls,
		startTime:   startTime,

		activeCallsDesc: prometheus.NewDesc(
			"concierge_active_calls",
			"Number of currently active voice-bridge calls",
			nil, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"concierge_uptime_seconds",
			"Seconds since the concierge process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeCallsDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.activeCalls != nil {
		ch <- prometheus.MustNewConstMetric(
			c.activeCallsDesc, prometheus.GaugeValue,
			float64(c.activeCalls.ActiveCalls()),
		)
	}

	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds(),
	)
}
