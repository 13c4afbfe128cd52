// Package prom exports store.Metrics observations as Prometheus
// counters and gauges.
package prom

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/compoundstore/store"
)

// Adapter implements store.Metrics and exports Prometheus counters/gauges.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits    *prometheus.CounterVec
	misses  *prometheus.CounterVec
	faults  *prometheus.CounterVec
	evicts  *prometheus.CounterVec
	segSize *prometheus.GaugeVec
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		hits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "hits_total",
				Help:        "Store hits by tier",
				ConstLabels: constLabels,
			},
			[]string{"tier"},
		),
		misses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "misses_total",
				Help:        "Store misses by tier",
				ConstLabels: constLabels,
			},
			[]string{"tier"},
		),
		faults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "faults_total",
				Help:        "Substitute fault attempts by outcome",
				ConstLabels: constLabels,
			},
			[]string{"outcome"},
		),
		evicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "evictions_total",
				Help:        "Entries displaced by reason",
				ConstLabels: constLabels,
			},
			[]string{"reason"},
		),
		segSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "segment_entries",
				Help:        "Resident entries per segment",
				ConstLabels: constLabels,
			},
			[]string{"segment"},
		),
	}
	reg.MustRegister(a.hits, a.misses, a.faults, a.evicts, a.segSize)
	return a
}

// HeapHit increments the heap-tier hit counter.
func (a *Adapter) HeapHit() { a.hits.WithLabelValues("heap").Inc() }

// HeapMiss increments the heap-tier miss counter.
func (a *Adapter) HeapMiss() { a.misses.WithLabelValues("heap").Inc() }

// DiskHit increments the disk-tier hit counter.
func (a *Adapter) DiskHit() { a.hits.WithLabelValues("disk").Inc() }

// DiskMiss increments the disk-tier miss counter.
func (a *Adapter) DiskMiss() { a.misses.WithLabelValues("disk").Inc() }

// FaultSuccess counts a substitute swap that won its compare-and-set.
func (a *Adapter) FaultSuccess() { a.faults.WithLabelValues("success").Inc() }

// FaultFailure counts a fault that lost to contention or a stale expect.
func (a *Adapter) FaultFailure() { a.faults.WithLabelValues("failure").Inc() }

// Evict increments the eviction counter with a reason label.
func (a *Adapter) Evict(r store.EvictReason) {
	a.evicts.WithLabelValues(reason(r)).Inc()
}

// SegmentSize updates the per-segment entry gauge.
func (a *Adapter) SegmentSize(index int, size int) {
	a.segSize.WithLabelValues(strconv.Itoa(index)).Set(float64(size))
}

// reason maps EvictReason to a stable label value.
func reason(r store.EvictReason) string {
	switch r {
	case store.EvictExplicit:
		return "explicit"
	case store.EvictEviction:
		return "eviction"
	case store.EvictClear:
		return "clear"
	default:
		return "unknown"
	}
}

// Compile-time check: ensure Adapter implements store.Metrics.
var _ store.Metrics = (*Adapter)(nil)
