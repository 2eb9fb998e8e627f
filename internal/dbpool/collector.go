package dbpool

import "github.com/prometheus/client_golang/prometheus"

// StatsSource is anything that can report pool usage.
type StatsSource interface {
	Stats() Stats
}

// StatsCollector exports pool usage to Prometheus, read at scrape time.
type StatsCollector struct {
	src StatsSource

	conns        *prometheus.Desc
	maxConns     *prometheus.Desc
	acquires     *prometheus.Desc
	emptyAcquire *prometheus.Desc
	acquireWait  *prometheus.Desc
}

// NewStatsCollector creates a StatsCollector for src.
func NewStatsCollector(src StatsSource) *StatsCollector {
	return &StatsCollector{
		src: src,
		conns: prometheus.NewDesc("auditledger_db_pool_connections",
			"Open database connections by state", []string{"state"}, nil),
		maxConns: prometheus.NewDesc("auditledger_db_pool_max_connections",
			"Configured maximum database connections", nil, nil),
		acquires: prometheus.NewDesc("auditledger_db_pool_acquires_total",
			"Connections acquired from the pool", nil, nil),
		emptyAcquire: prometheus.NewDesc("auditledger_db_pool_empty_acquires_total",
			"Acquires that had to wait for a connection", nil, nil),
		acquireWait: prometheus.NewDesc("auditledger_db_pool_acquire_wait_seconds_total",
			"Time spent acquiring connections", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.conns
	ch <- c.maxConns
	ch <- c.acquires
	ch <- c.emptyAcquire
	ch <- c.acquireWait
}

// Collect implements prometheus.Collector.
func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()

	ch <- prometheus.MustNewConstMetric(c.conns, prometheus.GaugeValue, float64(s.AcquiredConns), "acquired")
	ch <- prometheus.MustNewConstMetric(c.conns, prometheus.GaugeValue, float64(s.IdleConns), "idle")
	ch <- prometheus.MustNewConstMetric(c.conns, prometheus.GaugeValue, float64(s.TotalConns), "total")
	ch <- prometheus.MustNewConstMetric(c.maxConns, prometheus.GaugeValue, float64(s.MaxConns))
	ch <- prometheus.MustNewConstMetric(c.acquires, prometheus.CounterValue, float64(s.AcquireCount))
	ch <- prometheus.MustNewConstMetric(c.emptyAcquire, prometheus.CounterValue, float64(s.EmptyAcquireCount))
	ch <- prometheus.MustNewConstMetric(c.acquireWait, prometheus.CounterValue, s.AcquireDuration.Seconds())
}
