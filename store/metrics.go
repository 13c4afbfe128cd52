package store

// Metrics exposes store-level observability hooks. A NoopMetrics
// implementation is used by default; metrics/prom provides a
// Prometheus-backed one.
type Metrics interface {
	HeapHit()
	HeapMiss()
	DiskHit()
	DiskMiss()
	FaultSuccess()
	FaultFailure()
	Evict(reason EvictReason)
	SegmentSize(index int, size int)
}

// NoopMetrics discards every observation.
type NoopMetrics struct{}

func (NoopMetrics) HeapHit()             {}
func (NoopMetrics) HeapMiss()            {}
func (NoopMetrics) DiskHit()             {}
func (NoopMetrics) DiskMiss()            {}
func (NoopMetrics) FaultSuccess()        {}
func (NoopMetrics) FaultFailure()        {}
func (NoopMetrics) Evict(EvictReason)    {}
func (NoopMetrics) SegmentSize(int, int) {}
