package metric

import "github.com/prometheus/client_golang/prometheus"

// RegistryStats is implemented by a dispatcher whose table sizes are
// reported by a Collector.
type RegistryStats interface {
	ResourceCount() int
	RedirectCount() int
}

// Collector reports the number of registered resources and redirects
// at scrape time.
type Collector struct {
	stats     RegistryStats
	resources *prometheus.Desc
	redirects *prometheus.Desc
}

// NewCollector creates a collector reading from stats.
func NewCollector(namespace string, stats RegistryStats) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Collector{
		stats: stats,
		resources: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "resources_registered"),
			"Number of registered resource handlers.", nil, nil),
		redirects: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "redirects_registered"),
			"Number of registered redirects.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.resources
	ch <- c.redirects
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.resources, prometheus.GaugeValue, float64(c.stats.ResourceCount()))
	ch <- prometheus.MustNewConstMetric(c.redirects, prometheus.GaugeValue, float64(c.stats.RedirectCount()))
}
