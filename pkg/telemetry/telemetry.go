// Package telemetry exports buffer queue and allocator counters as
// prometheus metrics. Collectors read the core's own atomic counters on
// scrape; the hot path never touches prometheus types.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bufferqueue/pkg/bufferqueue"
	"bufferqueue/pkg/gfx"
)

var registry = prometheus.NewRegistry()

func init() {
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// Handler serves the metrics registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// RegisterQueue exposes a queue core's counters under the given queue
// label.
func RegisterQueue(name string, core *bufferqueue.Core) {
	labels := prometheus.Labels{"queue": name}

	counter := func(metric, help string, read func(bufferqueue.Stats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        metric,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return float64(read(core.Stats())) })
	}

	registry.MustRegister(
		counter("bufferqueue_frames_queued_total", "Frames queued by the producer.",
			func(s bufferqueue.Stats) uint64 { return s.FramesQueued }),
		counter("bufferqueue_frames_dropped_total", "Droppable frames replaced before acquisition.",
			func(s bufferqueue.Stats) uint64 { return s.FramesDropped }),
		counter("bufferqueue_frames_acquired_total", "Frames acquired by the consumer.",
			func(s bufferqueue.Stats) uint64 { return s.FramesAcquired }),
		counter("bufferqueue_frames_released_total", "Frames released back to the free pool.",
			func(s bufferqueue.Stats) uint64 { return s.FramesReleased }),
		counter("bufferqueue_dequeue_waits_total", "Times a producer blocked waiting for a free slot.",
			func(s bufferqueue.Stats) uint64 { return s.DequeueWaits }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "bufferqueue_pending_frames",
			Help:        "Frames currently waiting in the FIFO.",
			ConstLabels: labels,
		}, func() float64 { return float64(core.Stats().QueueLength) }),
	)
}

// RegisterAllocator exposes a pooled allocator's counters under the
// given queue label.
func RegisterAllocator(name string, alloc *gfx.PooledAllocator) {
	labels := prometheus.Labels{"queue": name}
	registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "bufferqueue_buffer_allocs_total",
			Help:        "Graphic buffers manufactured by the allocator.",
			ConstLabels: labels,
		}, func() float64 { return float64(alloc.Allocs()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "bufferqueue_buffer_alloc_bytes_total",
			Help:        "Cumulative bytes of buffer memory handed out.",
			ConstLabels: labels,
		}, func() float64 { return float64(alloc.AllocBytes()) }),
	)
}
