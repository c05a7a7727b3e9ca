// Package metric exposes bus and routing statistics as Prometheus metrics.
//
// The collector reads a stats snapshot on every scrape; it holds no state
// of its own and registration is optional. Bus correctness never depends
// on metrics being collected.
package metric

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/strato-bus/strato/internal/bus"
)

const (
	namespace = "strato"
	subsystem = "bus"
)

// StatsSource yields the current stats snapshot. *bus.Bus implements it.
type StatsSource interface {
	Stats() bus.StatsSnapshot
}

// Collector implements prometheus.Collector over a StatsSource.
type Collector struct {
	source StatsSource

	published       *prometheus.Desc
	delivered       *prometheus.Desc
	dropped         *prometheus.Desc
	retainedEvicted *prometheus.Desc
	subsCleanedUp   *prometheus.Desc
	routesEvaluated *prometheus.Desc
	routesMatched   *prometheus.Desc
	actionsExecuted *prometheus.Desc
	errors          *prometheus.Desc
	retained        *prometheus.Desc
	subscriptions   *prometheus.Desc
}

// NewCollector creates a collector over the given source. Register it with
// a prometheus.Registerer to expose the metrics.
func NewCollector(source StatsSource) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, name), help, nil, nil)
	}
	return &Collector{
		source:          source,
		published:       desc("published_total", "Messages accepted by the bus."),
		delivered:       desc("delivered_total", "Successful handler deliveries."),
		dropped:         desc("dropped_total", "Messages dropped by validation or rate limiting."),
		retainedEvicted: desc("retained_evicted_total", "Retained entries evicted by the LRU cap."),
		subsCleanedUp:   desc("subscriptions_cleaned_total", "Dead subscriptions removed by the sweep."),
		routesEvaluated: desc("routes_evaluated_total", "Messages evaluated by the routing engine."),
		routesMatched:   desc("routes_matched_total", "Route matches."),
		actionsExecuted: desc("actions_executed_total", "Route actions executed."),
		errors:          desc("errors_total", "Handler, route, and control failures."),
		retained:        desc("retained_entries", "Current retained-store size."),
		subscriptions:   desc("subscriptions", "Current live subscriptions."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.published
	ch <- c.delivered
	ch <- c.dropped
	ch <- c.retainedEvicted
	ch <- c.subsCleanedUp
	ch <- c.routesEvaluated
	ch <- c.routesMatched
	ch <- c.actionsExecuted
	ch <- c.errors
	ch <- c.retained
	ch <- c.subscriptions
}

// Collect implements prometheus.Collector. Each scrape reads one snapshot.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.Stats()
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	counter(c.published, s.Published)
	counter(c.delivered, s.Delivered)
	counter(c.dropped, s.Dropped)
	counter(c.retainedEvicted, s.RetainedEvicted)
	counter(c.subsCleanedUp, s.SubsCleanedUp)
	counter(c.routesEvaluated, s.RoutesEvaluated)
	counter(c.routesMatched, s.RoutesMatched)
	counter(c.actionsExecuted, s.ActionsExecuted)
	counter(c.errors, s.Errors)
	ch <- prometheus.MustNewConstMetric(c.retained, prometheus.GaugeValue, float64(s.Retained))
	ch <- prometheus.MustNewConstMetric(c.subscriptions, prometheus.GaugeValue, float64(s.Subscriptions))
}
