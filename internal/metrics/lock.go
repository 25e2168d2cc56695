package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/flywheel/internal/hybridlock"
)

// LockCollector reports hybridlock.Stats at scrape time.
type LockCollector struct {
	name  string
	stats func() hybridlock.Stats

	acquisitions *prometheus.Desc
	suspend      *prometheus.Desc
	contended    *prometheus.Desc
	timeouts     *prometheus.Desc
	waitTotal    *prometheus.Desc
	waitMax      *prometheus.Desc
}

var _ prometheus.Collector = (*LockCollector)(nil)

// NewLockCollector returns a collector for the lock called name. stats is
// called on every scrape, typically (*store.Store).LockStats.
func NewLockCollector(name string, stats func() hybridlock.Stats) *LockCollector {
	labels := prometheus.Labels{"lock": name}
	desc := func(metric, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "lock", metric), help, nil, labels)
	}
	return &LockCollector{
		name:         name,
		stats:        stats,
		acquisitions: desc("acquisitions_total", "Successful lock acquisitions of either convention"),
		suspend:      desc("suspend_acquisitions_total", "Lock acquisitions made by cooperative tasks"),
		contended:    desc("contended_total", "Lock acquisitions that had to wait"),
		timeouts:     desc("timeouts_total", "Lock acquisitions abandoned at their bound"),
		waitTotal:    desc("wait_seconds_total", "Cumulative wait of contended acquisitions"),
		waitMax:      desc("wait_max_seconds", "Longest single wait"),
	}
}

// Describe implements prometheus.Collector.
func (c *LockCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.acquisitions
	ch <- c.suspend
	ch <- c.contended
	ch <- c.timeouts
	ch <- c.waitTotal
	ch <- c.waitMax
}

// Collect implements prometheus.Collector.
func (c *LockCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	ch <- prometheus.MustNewConstMetric(c.acquisitions, prometheus.CounterValue, float64(s.Acquisitions))
	ch <- prometheus.MustNewConstMetric(c.suspend, prometheus.CounterValue, float64(s.SuspendAcquisitions))
	ch <- prometheus.MustNewConstMetric(c.contended, prometheus.CounterValue, float64(s.Contended))
	ch <- prometheus.MustNewConstMetric(c.timeouts, prometheus.CounterValue, float64(s.Timeouts))
	ch <- prometheus.MustNewConstMetric(c.waitTotal, prometheus.CounterValue, s.TotalWait.Seconds())
	ch <- prometheus.MustNewConstMetric(c.waitMax, prometheus.GaugeValue, s.MaxWait.Seconds())
}
