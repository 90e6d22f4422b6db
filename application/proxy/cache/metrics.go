package cache

import "github.com/prometheus/client_golang/prometheus"

// Metrics exports cache activity to Prometheus.
// A nil *Metrics is valid and records nothing.
//
// Metrics:
//   - <ns>_cache_hits_total
//   - <ns>_cache_misses_total
//   - <ns>_cache_inserts_total
//   - <ns>_cache_rejections_total: objects over the size limit
//   - <ns>_cache_evictions_total
//   - <ns>_cache_entries
//   - <ns>_cache_bytes
type Metrics struct {
	hits       prometheus.Counter
	misses     prometheus.Counter
	inserts    prometheus.Counter
	rejections prometheus.Counter
	evictions  prometheus.Counter

	entries prometheus.Gauge
	bytes   prometheus.Gauge
}

// NewMetrics creates cache metrics and registers them with registry.
func NewMetrics(namespace string, registry prometheus.Registerer) *Metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      name,
			Help:      help,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      name,
			Help:      help,
		})
	}

	m := &Metrics{
		hits:       counter("hits_total", "Total number of cache hits"),
		misses:     counter("misses_total", "Total number of cache misses"),
		inserts:    counter("inserts_total", "Total number of stored responses"),
		rejections: counter("rejections_total", "Total number of responses too large to store"),
		evictions:  counter("evictions_total", "Total number of evicted entries"),
		entries:    gauge("entries", "Current number of entries in cache"),
		bytes:      gauge("bytes", "Current number of content bytes in cache"),
	}

	registry.MustRegister(
		m.hits,
		m.misses,
		m.inserts,
		m.rejections,
		m.evictions,
		m.entries,
		m.bytes,
	)

	return m
}

func (m *Metrics) hit() {
	if m != nil {
		m.hits.Inc()
	}
}

func (m *Metrics) miss() {
	if m != nil {
		m.misses.Inc()
	}
}

func (m *Metrics) reject() {
	if m != nil {
		m.rejections.Inc()
	}
}

func (m *Metrics) insert(entries, size uint) {
	if m != nil {
		m.inserts.Inc()
		m.occupancy(entries, size)
	}
}

func (m *Metrics) evict(entries, size uint) {
	if m != nil {
		m.evictions.Inc()
		m.occupancy(entries, size)
	}
}

func (m *Metrics) occupancy(entries, size uint) {
	m.entries.Set(float64(entries))
	m.bytes.Set(float64(size))
}
