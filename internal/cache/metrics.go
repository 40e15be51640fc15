package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultMetricsNamespace prefixes every exported metric name.
const DefaultMetricsNamespace = "scoutcache"

// Collector exports a cache's counters and its live on-disk footprint as
// Prometheus metrics. Counters are read from the cache's Stats; the entry
// gauges come from a directory scan at collection time.
type Collector struct {
	cache *Cache

	hits         *prometheus.Desc
	misses       *prometheus.Desc
	errors       *prometheus.Desc
	bytesWritten *prometheus.Desc
	entries      *prometheus.Desc
	diskBytes    *prometheus.Desc
	maxBytes     *prometheus.Desc
}

// NewCollector creates a collector for c. An empty namespace uses
// DefaultMetricsNamespace.
func NewCollector(c *Cache, namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultMetricsNamespace
	}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "cache", name), help, nil, nil)
	}

	return &Collector{
		cache:        c,
		hits:         desc("hits_total", "Lookups served from the cache."),
		misses:       desc("misses_total", "Lookups delegated to the upstream lookup function."),
		errors:       desc("errors_total", "Cache-layer faults: corrupt entries and failed reads, writes or deletes."),
		bytesWritten: desc("written_bytes_total", "Bytes written to the cache directory over the process lifetime."),
		entries:      desc("entries", "Entries currently on disk."),
		diskBytes:    desc("disk_bytes", "Bytes currently used by entries on disk."),
		maxBytes:     desc("max_bytes", "Configured on-disk budget in bytes."),
	}
}

// Describe implements prometheus.Collector.
func (m *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.hits
	ch <- m.misses
	ch <- m.errors
	ch <- m.bytesWritten
	ch <- m.entries
	ch <- m.diskBytes
	ch <- m.maxBytes
}

// Collect implements prometheus.Collector.
func (m *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := m.cache.Stats()
	ch <- prometheus.MustNewConstMetric(m.hits, prometheus.CounterValue, float64(snap.Hits))
	ch <- prometheus.MustNewConstMetric(m.misses, prometheus.CounterValue, float64(snap.Misses))
	ch <- prometheus.MustNewConstMetric(m.errors, prometheus.CounterValue, float64(snap.Errors))
	ch <- prometheus.MustNewConstMetric(m.bytesWritten, prometheus.CounterValue, float64(snap.TotalBytesWritten))
	ch <- prometheus.MustNewConstMetric(m.maxBytes, prometheus.GaugeValue, float64(m.cache.Config().MaxSizeBytes))

	var count int
	var size int64
	for info, err := range m.cache.Store().Entries() {
		if err != nil {
			ch <- prometheus.NewInvalidMetric(m.entries, err)
			return
		}
		count++
		size += info.Size
	}
	ch <- prometheus.MustNewConstMetric(m.entries, prometheus.GaugeValue, float64(count))
	ch <- prometheus.MustNewConstMetric(m.diskBytes, prometheus.GaugeValue, float64(size))
}
