package store

import (
	"math/bits"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/compoundstore/internal/util"
)

const (
	defaultSegmentCount     = 64
	defaultInitialCapacity  = 16
	defaultLoadFactor       = 0.75
	maxSegmentTableCapacity = 1 << 30
)

// EvictReason records why a substitute left a segment; it is passed to
// the Metrics.Evict hook.
type EvictReason int

const (
	EvictExplicit EvictReason = iota
	EvictEviction
	EvictClear
)

// bucketTable is the slice of bucket heads backing one segment. It is
// replaced wholesale on rehash; readers load the current table via an
// atomic.Pointer so a concurrent rehash never exposes a torn slice
// header.
type bucketTable[K comparable, V any] []atomic.Pointer[HashEntry[K, V]]

// segment is one stripe of a Store: an open-chained hash table guarded
// by its own read/write lock, with lock-free reads on the steady
// state. Each segment carries its own SubstituteFactory reference and
// tier counters so the hot path never crosses back into the Store.
type segment[K comparable, V any] struct {
	mu sync.RWMutex

	table atomic.Pointer[bucketTable[K, V]]

	count      atomic.Int32
	modCount   atomic.Int32
	threshold  int
	loadFactor float64

	factory         SubstituteFactory[K, V]
	identityFactory bool
	metrics         Metrics

	_         util.CacheLinePad
	heapHit   util.PaddedAtomicInt64
	heapMiss  util.PaddedAtomicInt64
	diskHit   util.PaddedAtomicInt64
	diskMiss  util.PaddedAtomicInt64
}

func newSegment[K comparable, V any](initialCapacity int, loadFactor float64, factory SubstituteFactory[K, V], metrics Metrics) *segment[K, V] {
	if initialCapacity < 1 {
		initialCapacity = defaultInitialCapacity
	}
	if loadFactor <= 0 {
		loadFactor = defaultLoadFactor
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	cap := int(util.NextPow2(uint64(initialCapacity)))

	s := &segment[K, V]{
		loadFactor: loadFactor,
		factory:    factory,
		metrics:    metrics,
	}
	_, s.identityFactory = any(factory).(identityTagged)
	table := make(bucketTable[K, V], cap)
	s.table.Store(&table)
	s.threshold = int(float64(cap) * loadFactor)
	return s
}

func (s *segment[K, V]) loadTable() *bucketTable[K, V] {
	return s.table.Load()
}

func bucketIndex(spreadHash uint32, tableLen int) int {
	return int(spreadHash) & (tableLen - 1)
}

// find walks a bucket chain looking for key/spreadHash. Safe to call
// without holding mu: the table is swapped via an atomic.Pointer and
// HashEntry.next is immutable after publication, so a reader always
// sees either the pre- or post-rehash chain in full, never a torn one.
// findLocked is the same walk, named separately at call sites that
// already hold mu so the locking discipline stays self-documenting.
func (s *segment[K, V]) find(key K, spreadHash uint32) *HashEntry[K, V] {
	table := s.loadTable()
	idx := bucketIndex(spreadHash, len(*table))
	e := (*table)[idx].Load()
	for e != nil {
		if e.hash == spreadHash && e.key == key {
			return e
		}
		e = e.next
	}
	return nil
}

func (s *segment[K, V]) findLocked(key K, spreadHash uint32) *HashEntry[K, V] {
	return s.find(key, spreadHash)
}

// Get decodes the element currently resident for key and records a
// hit/miss on the appropriate tier.
func (s *segment[K, V]) Get(key K, spreadHash uint32) (*Element[K, V], bool) {
	e := s.find(key, spreadHash)
	if e == nil {
		s.recordMiss()
		return nil, false
	}
	sub := e.value.load()
	elem, err := s.factory.Retrieve(sub)
	if err != nil || elem == nil {
		s.recordMiss()
		return nil, false
	}
	s.recordHit()
	return elem, true
}

func (s *segment[K, V]) recordHit() {
	if s.identityFactory {
		s.heapHit.Add(1)
		s.metrics.HeapHit()
	} else {
		s.diskHit.Add(1)
		s.metrics.DiskHit()
	}
}

// recordMiss increments both tiers' miss counters: on a genuine miss
// the key is absent, so there is no substitute to attribute the miss
// to a single tier. Best-effort, per the store's tolerance for
// approximate statistics.
func (s *segment[K, V]) recordMiss() {
	s.heapMiss.Add(1)
	s.diskMiss.Add(1)
	s.metrics.HeapMiss()
	s.metrics.DiskMiss()
}

// Contains reports presence without decoding or touching statistics.
func (s *segment[K, V]) Contains(key K, spreadHash uint32) bool {
	return s.find(key, spreadHash) != nil
}

// UnretrievedGet returns the raw substitute currently resident for
// key, without decoding and without touching statistics.
func (s *segment[K, V]) UnretrievedGet(key K, spreadHash uint32) (Substitute, bool) {
	e := s.find(key, spreadHash)
	if e == nil {
		return nil, false
	}
	return e.value.load(), true
}

// Put installs element for key, returning the previously decoded
// element (if any) and the substitute it displaced (for the caller to
// free after listener dispatch). If onlyIfAbsent is true and key is
// already present, Put is a no-op and returns the existing element
// with a nil displaced substitute.
func (s *segment[K, V]) Put(key K, spreadHash uint32, element *Element[K, V], onlyIfAbsent bool) (old *Element[K, V], displaced Substitute, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.findLocked(key, spreadHash)
	if existing != nil {
		oldSub := existing.value.load()
		oldElem, decErr := s.factory.Decode(oldSub)
		if decErr != nil {
			return nil, nil, decErr
		}
		if onlyIfAbsent {
			return oldElem, nil, nil
		}
		newSub, createErr := s.factory.Create(element)
		if createErr != nil {
			return nil, nil, createErr
		}
		existing.value.store(newSub)
		s.modCount.Add(1)
		return oldElem, oldSub, nil
	}

	newSub, createErr := s.factory.Create(element)
	if createErr != nil {
		return nil, nil, createErr
	}
	s.linkNewEntryLocked(key, spreadHash, newSub)
	return nil, nil, nil
}

// PutRawIfAbsent installs a caller-supplied substitute directly,
// bypassing factory.Create. Used to re-materialize entries discovered
// by an external disk scan. Returns false without changing anything
// if key is already present.
func (s *segment[K, V]) PutRawIfAbsent(key K, spreadHash uint32, substitute Substitute) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findLocked(key, spreadHash) != nil {
		return false
	}
	s.linkNewEntryLocked(key, spreadHash, substitute)
	return true
}

// linkNewEntryLocked must be called with mu held for writing.
func (s *segment[K, V]) linkNewEntryLocked(key K, spreadHash uint32, substitute Substitute) {
	table := s.loadTable()
	idx := bucketIndex(spreadHash, len(*table))
	head := (*table)[idx].Load()
	entry := newHashEntry(key, spreadHash, head, substitute)
	(*table)[idx].Store(entry)
	s.modCount.Add(1)
	newCount := s.count.Add(1)
	if int(newCount) > s.threshold {
		s.rehashLocked()
	}
}

// Replace swaps in newElement only if key is currently present.
func (s *segment[K, V]) Replace(key K, spreadHash uint32, newElement *Element[K, V]) (old *Element[K, V], displaced Substitute, err error) {
	return s.replaceLocked(key, spreadHash, nil, newElement, nil)
}

// ReplaceCAS swaps in newElement only if key is present and
// cmp(existingDecoded.Value, oldElement.Value) holds.
func (s *segment[K, V]) ReplaceCAS(key K, spreadHash uint32, oldElement, newElement *Element[K, V], cmp ElementComparator[V]) (old *Element[K, V], displaced Substitute, err error) {
	return s.replaceLocked(key, spreadHash, oldElement, newElement, cmp)
}

// ElementComparator decides whether two decoded values are equal for
// the purposes of a compare-and-replace or compare-and-remove.
type ElementComparator[V any] func(existing, expected V) bool

func (s *segment[K, V]) replaceLocked(key K, spreadHash uint32, expected, newElement *Element[K, V], cmp ElementComparator[V]) (*Element[K, V], Substitute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.findLocked(key, spreadHash)
	if existing == nil {
		return nil, nil, nil
	}
	oldSub := existing.value.load()
	oldElem, decErr := s.factory.Decode(oldSub)
	if decErr != nil {
		return nil, nil, decErr
	}
	if cmp != nil {
		if expected == nil || !cmp(oldElem.Value, expected.Value) {
			return nil, nil, nil
		}
	}
	newSub, createErr := s.factory.Create(newElement)
	if createErr != nil {
		return nil, nil, createErr
	}
	existing.value.store(newSub)
	s.modCount.Add(1)
	return oldElem, oldSub, nil
}

// Remove deletes key's entry. If maybeMatch is non-nil, removal only
// happens when cmp(existingDecoded.Value, maybeMatch.Value) holds.
func (s *segment[K, V]) Remove(key K, spreadHash uint32, maybeMatch *Element[K, V], cmp ElementComparator[V]) (removed *Element[K, V], displaced Substitute, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table := s.loadTable()
	idx := bucketIndex(spreadHash, len(*table))
	head := (*table)[idx].Load()

	for e := head; e != nil; e = e.next {
		if e.hash != spreadHash || e.key != key {
			continue
		}
		sub := e.value.load()
		elem, decErr := s.factory.Decode(sub)
		if decErr != nil {
			return nil, nil, decErr
		}
		if maybeMatch != nil {
			if cmp == nil || !cmp(elem.Value, maybeMatch.Value) {
				return nil, nil, nil
			}
		}
		s.unlinkLocked(idx, head, e)
		s.metrics.Evict(EvictExplicit)
		return elem, sub, nil
	}
	return nil, nil, nil
}

// unlinkLocked clones the prefix of the chain up to (not including)
// target and re-links it onto target's unchanged tail, Doug-Lea
// style, so next pointers stay immutable after publication. Must be
// called with mu held for writing.
func (s *segment[K, V]) unlinkLocked(bucketIdx int, head, target *HashEntry[K, V]) {
	table := s.loadTable()

	var rebuild func(e *HashEntry[K, V]) *HashEntry[K, V]
	rebuild = func(e *HashEntry[K, V]) *HashEntry[K, V] {
		if e == target {
			return e.next
		}
		return e.withNext(rebuild(e.next))
	}
	newHead := rebuild(head)
	(*table)[bucketIdx].Store(newHead)
	s.modCount.Add(1)
	s.count.Add(-1)
}

// Fault swaps value_slot from expect to fault under the write lock.
// On success, expect is freed; on failure (key absent, or current
// value no longer equals expect), fault is freed instead.
func (s *segment[K, V]) Fault(key K, spreadHash uint32, expect, fault Substitute) bool {
	s.mu.Lock()
	ok := s.faultLocked(key, spreadHash, expect, fault)
	s.mu.Unlock()
	return ok
}

// TryFault behaves like Fault but only proceeds if the write lock is
// free; on contention it returns false and frees fault without ever
// inspecting the entry.
func (s *segment[K, V]) TryFault(key K, spreadHash uint32, expect, fault Substitute) bool {
	if !s.mu.TryLock() {
		s.factory.Free(fault)
		return false
	}
	ok := s.faultLocked(key, spreadHash, expect, fault)
	s.mu.Unlock()
	return ok
}

// faultLocked must be called with mu held for writing.
func (s *segment[K, V]) faultLocked(key K, spreadHash uint32, expect, fault Substitute) bool {
	e := s.findLocked(key, spreadHash)
	if e == nil {
		s.factory.Free(fault)
		s.metrics.FaultFailure()
		return false
	}
	if !e.value.compareAndSwap(expect, fault) {
		s.factory.Free(fault)
		s.metrics.FaultFailure()
		return false
	}
	s.factory.Free(expect)
	s.metrics.FaultSuccess()
	return true
}

// Evict removes key's entry if its current substitute is referentially
// equal to maybeSubstitute (or unconditionally if maybeSubstitute is
// nil), decoding and returning the evicted Element.
func (s *segment[K, V]) Evict(key K, spreadHash uint32, maybeSubstitute Substitute) (*Element[K, V], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table := s.loadTable()
	idx := bucketIndex(spreadHash, len(*table))
	head := (*table)[idx].Load()

	for e := head; e != nil; e = e.next {
		if e.hash != spreadHash || e.key != key {
			continue
		}
		sub := e.value.load()
		if maybeSubstitute != nil && sub != maybeSubstitute {
			return nil, false
		}
		elem, err := s.factory.Decode(sub)
		if err != nil {
			return nil, false
		}
		s.unlinkLocked(idx, head, e)
		s.factory.Free(sub)
		s.metrics.Evict(EvictEviction)
		return elem, true
	}
	return nil, false
}

// Clear frees every substitute currently resident and empties the
// table. It acquires the segment's write lock itself, so the caller
// must not already hold it.
func (s *segment[K, V]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	table := s.loadTable()
	for i := range *table {
		for e := (*table)[i].Load(); e != nil; e = e.next {
			s.freeQuietly(e.value.load())
			s.metrics.Evict(EvictClear)
		}
		(*table)[i].Store(nil)
	}
	s.modCount.Add(1)
	s.count.Store(0)
}

// freeQuietly calls factory.Free, absorbing a panic so one broken
// substitute cannot strand the rest of a Clear drain behind the write
// lock. Single-substitute paths (Fault, Evict, displaced puts) let the
// panic propagate instead.
func (s *segment[K, V]) freeQuietly(sub Substitute) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("substitute factory panicked in Free during clear",
				zap.Any("panic", r))
		}
	}()
	s.factory.Free(sub)
}

// rehashLocked doubles the table (bounded by maxSegmentTableCapacity)
// and relinks every entry, reusing the longest tail whose target
// bucket doesn't change under the new mask (classic Doug Lea
// ConcurrentHashMap resize). Must be called with mu held for writing.
func (s *segment[K, V]) rehashLocked() {
	oldTable := s.loadTable()
	oldLen := len(*oldTable)
	if oldLen >= maxSegmentTableCapacity {
		return
	}
	newLen := oldLen << 1
	newTable := make(bucketTable[K, V], newLen)

	for i := 0; i < oldLen; i++ {
		head := (*oldTable)[i].Load()
		if head == nil {
			continue
		}

		// Find the longest suffix whose entries all map to the same
		// new bucket index: that suffix can be relinked wholesale.
		lastIdx := bucketIndex(head.hash, newLen)
		lastNode := head
		for e := head.next; e != nil; e = e.next {
			idx := bucketIndex(e.hash, newLen)
			if idx != lastIdx {
				lastIdx = idx
				lastNode = e
			}
		}
		newTable[lastIdx].Store(lastNode)

		// Clone everything before lastNode onto its own new bucket.
		for e := head; e != lastNode; e = e.next {
			idx := bucketIndex(e.hash, newLen)
			newTable[idx].Store(e.withNext(newTable[idx].Load()))
		}
	}

	s.table.Store(&newTable)
	s.threshold = int(float64(newLen) * s.loadFactor)
	s.modCount.Add(1)
}

// SampleFilter decides whether a substitute is eligible for inclusion
// in a random sample (e.g. excluding already-pinned entries).
type SampleFilter func(substitute Substitute) bool

// AcceptAll is the trivial SampleFilter that admits every substitute.
func AcceptAll(Substitute) bool { return true }

// Sample pairs a sampled key with its substitute, as handed back to
// an external evictor.
type Sample[K comparable] struct {
	Key        K
	Substitute Substitute
}

// AddRandomSample walks this segment's buckets cyclically starting
// from a seed-derived bucket, appending filter-accepted entries to out
// until out holds at least targetSize entries or every bucket has been
// visited once. Runs under the read lock: a concurrent rehash would
// otherwise tear the slice header mid-walk.
func (s *segment[K, V]) AddRandomSample(filter SampleFilter, targetSize int, out *[]Sample[K], seedHash uint32) {
	if filter == nil {
		filter = AcceptAll
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.count.Load() == 0 {
		return
	}
	table := s.loadTable()
	n := len(*table)
	if n == 0 {
		return
	}
	logN := bits.Len(uint(n)) - 1
	start := int(seedHash>>(32-uint(logN))) & (n - 1)

	for visited := 0; visited < n && len(*out) < targetSize; visited++ {
		idx := (start + visited) & (n - 1)
		for e := (*table)[idx].Load(); e != nil; e = e.next {
			sub := e.value.load()
			if filter(sub) {
				*out = append(*out, Sample[K]{Key: e.key, Substitute: sub})
			}
		}
	}
}

// Size returns the segment's current entry count (lock-free read of
// the atomic counter; may be stale under concurrent mutation).
func (s *segment[K, V]) Size() int {
	return int(s.count.Load())
}

func (s *segment[K, V]) snapshotCounts() (count, modCount int32) {
	return s.count.Load(), s.modCount.Load()
}

func (s *segment[K, V]) tierCounters() (heapHit, heapMiss, diskHit, diskMiss int64) {
	return s.heapHit.Load(), s.heapMiss.Load(), s.diskHit.Load(), s.diskMiss.Load()
}

// forEachLocked walks every live entry in descending bucket order
// under the read lock, for Store's weakly-consistent iteration.
func (s *segment[K, V]) forEachLocked(visit func(e *HashEntry[K, V])) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	table := s.loadTable()
	for i := len(*table) - 1; i >= 0; i-- {
		for e := (*table)[i].Load(); e != nil; e = e.next {
			visit(e)
		}
	}
}
