package store

import "sync/atomic"

// Substitute is whatever representation a segment currently holds for
// a key's value: the Element itself (identity substitute) or an
// opaque handle a SubstituteFactory minted in its place (an on-disk
// proxy, or any user-defined stand-in). The store never inspects a
// substitute's concrete type; only the owning SubstituteFactory does.
//
// A substitute's concrete type must be comparable: Fault matches the
// current slot contents against the expected substitute with ==, which
// panics on a non-comparable type. Pointer-shaped substitutes
// (*Element, a *proxy struct) satisfy this naturally; a factory whose
// proxy carries a slice or map must hand out a pointer to it, not the
// value.
type Substitute = any

// substituteBox gives a Substitute a stable pointer identity so it can
// live behind an atomic.Pointer. atomic.Value cannot be reused here:
// it panics if two Store calls ever load a concrete type into the same
// slot, and a fault is exactly that — swapping an *Element[K,V] for an
// unrelated proxy type, or vice versa.
type substituteBox struct {
	v Substitute
}

// valueSlot is the single mutable field of a HashEntry: the current
// Substitute representation of that entry's value, swappable in place
// by Fault without touching the entry's key/hash/next chain.
type valueSlot struct {
	p atomic.Pointer[substituteBox]
}

func newValueSlot(v Substitute) valueSlot {
	var s valueSlot
	s.p.Store(&substituteBox{v: v})
	return s
}

func (s *valueSlot) load() Substitute {
	return s.p.Load().v
}

func (s *valueSlot) store(v Substitute) {
	s.p.Store(&substituteBox{v: v})
}

// compareAndSwap installs newVal only if the slot currently holds
// exactly expect, compared by == (pointer identity for proxies and
// *Element; see the comparability requirement on Substitute). It
// retries against spurious pointer-identity churn on the box itself;
// it does not retry if the held value genuinely differs.
func (s *valueSlot) compareAndSwap(expect, newVal Substitute) bool {
	newBox := &substituteBox{v: newVal}
	for {
		cur := s.p.Load()
		if cur.v != expect {
			return false
		}
		if s.p.CompareAndSwap(cur, newBox) {
			return true
		}
	}
}

// HashEntry is a single chain node inside a segment's bucket table.
// key, hash and next are fixed at construction and never mutated
// after the entry is published into a bucket head, so lock-free
// readers may walk next pointers without synchronization. value is
// the one field a concurrent Fault may change.
type HashEntry[K comparable, V any] struct {
	key  K
	hash uint32
	next *HashEntry[K, V]

	value valueSlot
}

func newHashEntry[K comparable, V any](key K, hash uint32, next *HashEntry[K, V], initial Substitute) *HashEntry[K, V] {
	return &HashEntry[K, V]{
		key:   key,
		hash:  hash,
		next:  next,
		value: newValueSlot(initial),
	}
}

// withNext returns a new HashEntry sharing this one's key, hash and
// value box but chained onto a different next pointer. Used by
// removal and rehash, which must clone any prefix preceding a changed
// node while reusing the unchanged tail verbatim.
func (e *HashEntry[K, V]) withNext(next *HashEntry[K, V]) *HashEntry[K, V] {
	clone := &HashEntry[K, V]{key: e.key, hash: e.hash, next: next}
	clone.value.p.Store(e.value.p.Load())
	return clone
}
