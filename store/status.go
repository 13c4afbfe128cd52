package store

import "sync/atomic"

// Status is the lifecycle state of a Store.
type Status int32

const (
	// StatusUninitialised is the zero value: a Store that has not yet
	// completed construction.
	StatusUninitialised Status = iota
	// StatusAlive is set when New returns.
	StatusAlive
	// StatusShutdown is set once by the first Dispose. Store operations
	// do not consult the status, so reads, writes and faults still work
	// after shutdown, and resident entries are not cleared.
	StatusShutdown
)

func (s Status) String() string {
	switch s {
	case StatusUninitialised:
		return "uninitialised"
	case StatusAlive:
		return "alive"
	case StatusShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// statusBox is an atomic home for a Status value.
type statusBox struct {
	v atomic.Int32
}

func (b *statusBox) load() Status {
	return Status(b.v.Load())
}

func (b *statusBox) store(s Status) {
	b.v.Store(int32(s))
}

func (b *statusBox) compareAndSwap(old, new Status) bool {
	return b.v.CompareAndSwap(int32(old), int32(new))
}
