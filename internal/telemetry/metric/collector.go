package metric

import "github.com/prometheus/client_golang/prometheus"

// EndpointStats is a point-in-time view of one endpoint.
type EndpointStats struct {
	Name        string
	Exact       int
	AnyHost     int
	AllHosts    int
	Connections int
	Secure      bool
	HasCert     bool
}

// StatsSource returns the current stats of every live endpoint.
type StatsSource func() []EndpointStats

// Collector exports endpoint snapshots at scrape time.
type Collector struct {
	source StatsSource

	routes      *prometheus.Desc
	connections *prometheus.Desc
	certLoaded  *prometheus.Desc
}

// NewCollector creates a collector that reads from source on every scrape.
func NewCollector(source StatsSource) *Collector {
	return &Collector{
		source: source,
		routes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "routes"),
			"Registered prefixes by collection (exact, any_host, all_hosts)",
			[]string{"endpoint", "collection"}, nil,
		),
		connections: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "tracked_connections"),
			"Connections currently held in the connection registry",
			[]string{"endpoint"}, nil,
		),
		certLoaded: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "certificate_loaded"),
			"1 if a secure endpoint has certificate material, 0 otherwise",
			[]string{"endpoint"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.routes
	ch <- c.connections
	ch <- c.certLoaded
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.source == nil {
		return
	}
	for _, s := range c.source() {
		ch <- prometheus.MustNewConstMetric(c.routes, prometheus.GaugeValue, float64(s.Exact), s.Name, "exact")
		ch <- prometheus.MustNewConstMetric(c.routes, prometheus.GaugeValue, float64(s.AnyHost), s.Name, "any_host")
		ch <- prometheus.MustNewConstMetric(c.routes, prometheus.GaugeValue, float64(s.AllHosts), s.Name, "all_hosts")
		ch <- prometheus.MustNewConstMetric(c.connections, prometheus.GaugeValue, float64(s.Connections), s.Name)
		if s.Secure {
			loaded := 0.0
			if s.HasCert {
				loaded = 1
			}
			ch <- prometheus.MustNewConstMetric(c.certLoaded, prometheus.GaugeValue, loaded, s.Name)
		}
	}
}
