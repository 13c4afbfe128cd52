package store

import (
	"math/bits"
	"math/rand"

	"github.com/IvanBrykalov/compoundstore/hashing"
)

const maxSize = 1<<31 - 1 // positive int32 max; Size() saturates here.

// Store fans a key out to one of a fixed array of segments by the top
// bits of its spread hash, delegating every operation. It owns the
// segments exclusively for their whole lifetime and is the only
// component that talks to the listener bus.
type Store[K comparable, V any] struct {
	segments     []*segment[K, V]
	segmentShift uint

	hasher  hashing.Hasher[K]
	factory SubstituteFactory[K, V]
	metrics Metrics

	listeners listenerBus[K, V]

	status statusBox
}

// Compile-time check: a Store is usable as the handle its factory holds.
var _ BoundStore[string, any] = (*Store[string, any])(nil)

// New constructs a Store and transitions it to StatusAlive. Factory
// defaults to IdentityFactory if opt.Factory is nil; its Bind hook
// receives the new Store (as a BoundStore handle) once before New
// returns.
func New[K comparable, V any](opt Options[K, V]) (*Store[K, V], error) {
	numSegments := opt.NumSegments
	if numSegments <= 0 {
		numSegments = defaultSegmentCount
	}
	numSegments = int(nextPow2(numSegments))

	hasher := opt.Hasher
	if hasher == nil {
		hasher = hashing.FNV32a[K]
	}

	factory := opt.Factory
	if factory == nil {
		factory = IdentityFactory[K, V]{}
	}

	metrics := opt.Metrics
	if metrics == nil {
		metrics = NoopMetrics{}
	}

	// segmentShift is how far to shift a 32-bit spread hash right so
	// only the top log2(numSegments) bits survive as the segment
	// index, i.e. 32 - log2(numSegments) for the power-of-two
	// numSegments computed above.
	st := &Store[K, V]{
		segments:     make([]*segment[K, V], numSegments),
		segmentShift: uint(32 - (bits.Len(uint(numSegments)) - 1)),
		hasher:       hasher,
		factory:      factory,
		metrics:      metrics,
	}
	for i := range st.segments {
		st.segments[i] = newSegment(opt.InitialCapacity, opt.LoadFactor, factory, metrics)
	}
	if err := factory.Bind(st); err != nil {
		return nil, err
	}
	st.status.store(StatusAlive)
	return st, nil
}

func nextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// Status returns the Store's current lifecycle state.
func (st *Store[K, V]) Status() Status {
	return st.status.load()
}

// spreadHash computes the mixed 32-bit hash this Store uses for every
// segment/bucket decision.
func (st *Store[K, V]) spreadHash(key K) uint32 {
	return hashing.Spread(st.hasher(key))
}

func (st *Store[K, V]) segmentFor(spreadHash uint32) *segment[K, V] {
	idx := spreadHash >> st.segmentShift
	return st.segments[idx]
}

// RegisterListener adds l to the end of the registration-ordered
// listener list. Listeners already registered keep firing first.
func (st *Store[K, V]) RegisterListener(l Listener[K, V]) {
	st.listeners.register(l)
}

// Get decodes and returns the element currently stored for key.
func (st *Store[K, V]) Get(key K) (*Element[K, V], bool) {
	h := st.spreadHash(key)
	return st.segmentFor(h).Get(key, h)
}

// ContainsKey reports presence without decoding or touching
// statistics.
func (st *Store[K, V]) ContainsKey(key K) bool {
	h := st.spreadHash(key)
	return st.segmentFor(h).Contains(key, h)
}

// UnretrievedGet returns the raw substitute currently resident for
// key, without decoding.
func (st *Store[K, V]) UnretrievedGet(key K) (Substitute, bool) {
	h := st.spreadHash(key)
	return st.segmentFor(h).UnretrievedGet(key, h)
}

// Put installs element for key. If onlyIfAbsent is true, an existing
// entry is left untouched and its decoded element returned. Fires
// OnUpdate when an existing entry is overwritten.
func (st *Store[K, V]) Put(key K, element *Element[K, V], onlyIfAbsent bool) (old *Element[K, V], err error) {
	if element == nil {
		return nil, errNullArgument("Put")
	}
	h := st.spreadHash(key)
	seg := st.segmentFor(h)
	old, displaced, err := seg.Put(key, h, element, onlyIfAbsent)
	if err != nil {
		return nil, err
	}
	if displaced != nil {
		st.listeners.fireUpdate(key, displaced, element)
		st.factory.Free(displaced)
	}
	return old, nil
}

// PutRawIfAbsent installs a caller-supplied substitute directly,
// bypassing factory.Create. Used to re-materialize entries discovered
// by an external disk scan.
func (st *Store[K, V]) PutRawIfAbsent(key K, substitute Substitute) bool {
	h := st.spreadHash(key)
	return st.segmentFor(h).PutRawIfAbsent(key, h, substitute)
}

// Replace swaps in newElement only if key is currently present. Fires
// OnUpdate on success.
func (st *Store[K, V]) Replace(key K, newElement *Element[K, V]) (old *Element[K, V], err error) {
	if newElement == nil {
		return nil, errNullArgument("Replace")
	}
	h := st.spreadHash(key)
	seg := st.segmentFor(h)
	old, displaced, err := seg.Replace(key, h, newElement)
	if err != nil {
		return nil, err
	}
	if displaced != nil {
		st.listeners.fireUpdate(key, displaced, newElement)
		st.factory.Free(displaced)
	}
	return old, nil
}

// ReplaceCAS swaps in newElement only if key is present and
// cmp(existing.Value, oldElement.Value) holds. Fires OnUpdate on
// success.
func (st *Store[K, V]) ReplaceCAS(key K, oldElement, newElement *Element[K, V], cmp ElementComparator[V]) (old *Element[K, V], err error) {
	if newElement == nil {
		return nil, errNullArgument("ReplaceCAS")
	}
	h := st.spreadHash(key)
	seg := st.segmentFor(h)
	old, displaced, err := seg.ReplaceCAS(key, h, oldElement, newElement, cmp)
	if err != nil {
		return nil, err
	}
	if displaced != nil {
		st.listeners.fireUpdate(key, displaced, newElement)
		st.factory.Free(displaced)
	}
	return old, nil
}

// Remove deletes key's entry, optionally only when cmp matches
// maybeMatch's decoded value. Fires OnRemove on success.
func (st *Store[K, V]) Remove(key K, maybeMatch *Element[K, V], cmp ElementComparator[V]) (removed *Element[K, V], err error) {
	h := st.spreadHash(key)
	seg := st.segmentFor(h)
	removed, displaced, err := seg.Remove(key, h, maybeMatch, cmp)
	if err != nil {
		return nil, err
	}
	if displaced != nil {
		st.listeners.fireRemove(key, displaced, removed)
		st.factory.Free(displaced)
	}
	return removed, nil
}

// Fault compare-and-swaps key's value slot from expect to fault.
// Fires OnFault on success.
func (st *Store[K, V]) Fault(key K, expect, fault Substitute) bool {
	h := st.spreadHash(key)
	ok := st.segmentFor(h).Fault(key, h, expect, fault)
	if ok {
		st.listeners.fireFault(key, expect, fault)
	}
	return ok
}

// TryFault behaves like Fault but gives up immediately on lock
// contention.
func (st *Store[K, V]) TryFault(key K, expect, fault Substitute) bool {
	h := st.spreadHash(key)
	ok := st.segmentFor(h).TryFault(key, h, expect, fault)
	if ok {
		st.listeners.fireFault(key, expect, fault)
	}
	return ok
}

// Evict removes key's entry if its current substitute matches
// maybeSubstitute (or unconditionally if nil). Fires OnEvict on
// success.
func (st *Store[K, V]) Evict(key K, maybeSubstitute Substitute) (*Element[K, V], bool) {
	h := st.spreadHash(key)
	elem, ok := st.segmentFor(h).Evict(key, h, maybeSubstitute)
	if ok {
		st.listeners.fireEvict(key, elem)
	}
	return elem, ok
}

// Size estimates the total number of live entries across all
// segments. Tries two lock-free snapshot passes before falling back
// to acquiring every segment's read lock in ascending index order.
// The result saturates at the positive int32 maximum.
func (st *Store[K, V]) Size() int {
	for attempt := 0; attempt < 2; attempt++ {
		if total, ok := st.trySizeLockFree(); ok {
			return total
		}
	}
	return st.sizeLocked()
}

func (st *Store[K, V]) trySizeLockFree() (int, bool) {
	counts := make([]int32, len(st.segments))
	modCounts := make([]int32, len(st.segments))
	total := 0
	for i, seg := range st.segments {
		c, m := seg.snapshotCounts()
		counts[i] = c
		modCounts[i] = m
		total += int(c)
	}
	for i, seg := range st.segments {
		c, m := seg.snapshotCounts()
		if c != counts[i] || m != modCounts[i] {
			return 0, false
		}
	}
	for i := range st.segments {
		st.metrics.SegmentSize(i, int(counts[i]))
	}
	return clampSize(total), true
}

func (st *Store[K, V]) sizeLocked() int {
	for _, seg := range st.segments {
		seg.mu.RLock()
	}
	total := 0
	for i, seg := range st.segments {
		n := int(seg.count.Load())
		st.metrics.SegmentSize(i, n)
		total += n
	}
	for _, seg := range st.segments {
		seg.mu.RUnlock()
	}
	return clampSize(total)
}

func clampSize(total int) int {
	if total > maxSize {
		return maxSize
	}
	return total
}

// RandomSample fills out with up to targetSize filter-accepted
// samples, starting from the segment derived from keyHint (if
// haveKeyHint is true) or from a random seed otherwise, visiting segments in ring
// order until target is reached or the ring is exhausted.
func (st *Store[K, V]) RandomSample(filter SampleFilter, targetSize int, keyHint K, haveKeyHint bool) []Sample[K] {
	var seedHash uint32
	if haveKeyHint {
		seedHash = st.spreadHash(keyHint)
	} else {
		seedHash = rand.Uint32()
	}
	startSegment := int(seedHash >> st.segmentShift)

	out := make([]Sample[K], 0, targetSize)
	n := len(st.segments)
	for visited := 0; visited < n && len(out) < targetSize; visited++ {
		idx := (startSegment + visited) % n
		st.segments[idx].AddRandomSample(filter, targetSize, &out, seedHash)
	}
	return out
}

// ForEachKey walks every live key, depth-first from the
// highest-indexed segment down to zero and, within a segment, highest
// bucket down to zero. Weakly consistent: it never errors on
// concurrent modification and may skip or double-visit entries
// mutated during the walk.
func (st *Store[K, V]) ForEachKey(visit func(key K)) {
	for i := len(st.segments) - 1; i >= 0; i-- {
		st.segments[i].forEachLocked(func(e *HashEntry[K, V]) {
			visit(e.key)
		})
	}
}

// ForEachElement walks every live entry like ForEachKey, decoding
// each substitute via this Store's factory before calling visit. A
// decode error for one entry is reported to onError (if non-nil) and
// the walk continues.
func (st *Store[K, V]) ForEachElement(visit func(elem *Element[K, V]), onError func(key K, err error)) {
	for i := len(st.segments) - 1; i >= 0; i-- {
		st.segments[i].forEachLocked(func(e *HashEntry[K, V]) {
			elem, err := st.segments[i].factory.Decode(e.value.load())
			if err != nil {
				if onError != nil {
					onError(e.key, err)
				}
				return
			}
			visit(elem)
		})
	}
}

// SyncForKey returns a SyncHandle over the segment key hashes to.
// haveKey false (a caller with no concrete key to hash) routes through
// hash 0, so key-less callers always share one well-known segment.
func (st *Store[K, V]) SyncForKey(key K, haveKey bool) SyncHandle {
	var h uint32
	if haveKey {
		h = st.spreadHash(key)
	}
	return newSegmentSync(st.segmentFor(h))
}

// Clear removes every entry from every segment, freeing each
// substitute via the factory. Clears one segment at a time in
// ascending index order, holding only that segment's write lock.
func (st *Store[K, V]) Clear() {
	for _, seg := range st.segments {
		seg.Clear()
	}
}

// Dispose transitions the Store from StatusAlive to StatusShutdown
// exactly once, calling factory.Unbind on the first call only.
// Repeated calls are no-ops. It does not clear resident entries;
// callers that want that should call Clear first.
func (st *Store[K, V]) Dispose() error {
	if !st.status.compareAndSwap(StatusAlive, StatusShutdown) {
		return nil
	}
	return st.factory.Unbind(st)
}
