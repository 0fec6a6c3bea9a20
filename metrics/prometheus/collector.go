// Package prometheus exports propstore metrics to Prometheus.
//
//	reg := prometheus.NewRegistry()
//	mc, _ := promcollector.New(reg)
//	db, _ := propstore.Open(store, topo, propstore.WithMetricsCollector(mc))
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/propstore"
)

// Collector implements propstore.MetricsCollector with Prometheus metrics.
type Collector struct {
	opLatency *prometheus.HistogramVec
	loads     *prometheus.CounterVec
	flushes   *prometheus.CounterVec
	evictions prometheus.Counter
}

var _ propstore.MetricsCollector = (*Collector)(nil)

// New creates a Collector and registers its metrics with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "propstore_operation_latency_seconds",
			Help:    "Latency of property store operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"op", "status"}),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "propstore_partition_loads_total",
			Help: "Partitions made resident, by source",
		}, []string{"source", "status"}),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "propstore_partition_flushes_total",
			Help: "Partition saves",
		}, []string{"status"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "propstore_partition_evictions_total",
			Help: "Partitions evicted from the cache",
		}),
	}

	for _, m := range []prometheus.Collector{c.opLatency, c.loads, c.flushes, c.evictions} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordInsert implements propstore.MetricsCollector.
func (c *Collector) RecordInsert(d time.Duration, err error) {
	c.opLatency.WithLabelValues("insert", status(err)).Observe(d.Seconds())
}

// RecordRead implements propstore.MetricsCollector.
func (c *Collector) RecordRead(d time.Duration, err error) {
	c.opLatency.WithLabelValues("read", status(err)).Observe(d.Seconds())
}

// RecordLoad implements propstore.MetricsCollector.
func (c *Collector) RecordLoad(fromFile bool, d time.Duration, err error) {
	source := "init"
	if fromFile {
		source = "file"
	}
	c.loads.WithLabelValues(source, status(err)).Inc()
	c.opLatency.WithLabelValues("load", status(err)).Observe(d.Seconds())
}

// RecordFlush implements propstore.MetricsCollector.
func (c *Collector) RecordFlush(d time.Duration, err error) {
	c.flushes.WithLabelValues(status(err)).Inc()
	c.opLatency.WithLabelValues("flush", status(err)).Observe(d.Seconds())
}

// RecordEviction implements propstore.MetricsCollector.
func (c *Collector) RecordEviction() {
	c.evictions.Inc()
}
