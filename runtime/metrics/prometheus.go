package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yoru-lang/yoru-runtime/runtime"
)

// promNames maps metric names to the names exported to Prometheus.
var promNames = map[string]string{
	"/gc/cycles/total:gc-cycles":      "yoru_gc_cycles_total",
	"/gc/heap/allocs:objects":         "yoru_gc_heap_allocs_objects_total",
	"/gc/heap/frees:objects":          "yoru_gc_heap_frees_objects_total",
	"/gc/heap/goal:bytes":             "yoru_gc_heap_goal_bytes",
	"/gc/heap/live:bytes":             "yoru_gc_heap_live_bytes",
	"/gc/heap/objects:objects":        "yoru_gc_heap_objects",
	"/gc/pauses/total:seconds":        "yoru_gc_pauses_seconds_total",
	"/memory/classes/heap/free:bytes": "yoru_memory_heap_free_bytes",
	"/memory/classes/total:bytes":     "yoru_memory_total_bytes",
}

type promMetric struct {
	desc      *prometheus.Desc
	valueType prometheus.ValueType
}

// Collector exports the metrics of one heap to Prometheus. The heap is read
// without locking, so Collect must not run while the mutator is allocating.
type Collector struct {
	heap    *runtime.Heap
	samples []Sample
	metrics []promMetric
}

// NewCollector returns a Collector for h. Every series carries the heap's ID
// as the "heap" label.
func NewCollector(h *runtime.Heap) *Collector {
	c := &Collector{heap: h}
	labels := prometheus.Labels{"heap": h.ID()}
	for _, d := range All() {
		valueType := prometheus.GaugeValue
		if d.Cumulative {
			valueType = prometheus.CounterValue
		}
		c.samples = append(c.samples, Sample{Name: d.Name})
		c.metrics = append(c.metrics, promMetric{
			desc:      prometheus.NewDesc(promNames[d.Name], d.Description, nil, labels),
			valueType: valueType,
		})
	}
	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.metrics {
		ch <- m.desc
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	Read(c.heap, c.samples)
	for i, s := range c.samples {
		var v float64
		switch s.Value.Kind() {
		case KindUint64:
			v = float64(s.Value.Uint64())
		case KindFloat64:
			v = s.Value.Float64()
		default:
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.metrics[i].desc, c.metrics[i].valueType, v)
	}
}
