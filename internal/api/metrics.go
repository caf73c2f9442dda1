package api

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes engine counters and per-component performance to
// Prometheus. State is read on scrape; nothing is pre-aggregated.
type Collector struct {
	svc Service

	cyclesTotal   *prometheus.Desc
	repairsTotal  *prometheus.Desc
	repairsFailed *prometheus.Desc
	performance   *prometheus.Desc
	active        *prometheus.Desc
	openIssues    *prometheus.Desc
}

// NewCollector creates a collector over the engine service
func NewCollector(svc Service) *Collector {
	return &Collector{
		svc: svc,
		cyclesTotal: prometheus.NewDesc(
			"kaifuku_cycles_total",
			"Completed auto-repair cycles",
			nil, nil,
		),
		repairsTotal: prometheus.NewDesc(
			"kaifuku_repairs_total",
			"Repair actions attempted",
			nil, nil,
		),
		repairsFailed: prometheus.NewDesc(
			"kaifuku_repairs_failed_total",
			"Repair actions that did not succeed",
			nil, nil,
		),
		performance: prometheus.NewDesc(
			"kaifuku_component_performance",
			"Latest performance score per component",
			[]string{"component"}, nil,
		),
		active: prometheus.NewDesc(
			"kaifuku_monitoring_active",
			"Whether the monitoring scheduler is running",
			nil, nil,
		),
		openIssues: prometheus.NewDesc(
			"kaifuku_open_issues",
			"Currently open component issues",
			[]string{"severity"}, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.cyclesTotal
	ch <- c.repairsTotal
	ch <- c.repairsFailed
	ch <- c.performance
	ch <- c.active
	ch <- c.openIssues
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.svc.Stats()
	ch <- prometheus.MustNewConstMetric(c.cyclesTotal, prometheus.CounterValue, float64(stats.CyclesTotal))
	ch <- prometheus.MustNewConstMetric(c.repairsTotal, prometheus.CounterValue, float64(stats.RepairsTotal))
	ch <- prometheus.MustNewConstMetric(c.repairsFailed, prometheus.CounterValue, float64(stats.RepairsFailed))

	view := c.svc.GetSystemHealth()
	for component, status := range view.Components {
		ch <- prometheus.MustNewConstMetric(
			c.performance, prometheus.GaugeValue,
			status.Performance, string(component),
		)
	}

	active := 0.0
	if view.Active {
		active = 1.0
	}
	ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, active)

	bySeverity := make(map[string]int)
	for _, issue := range view.Issues {
		bySeverity[issue.Severity]++
	}
	for severity, n := range bySeverity {
		ch <- prometheus.MustNewConstMetric(
			c.openIssues, prometheus.GaugeValue,
			float64(n), severity,
		)
	}
}
